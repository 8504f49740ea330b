package dockerservice

import (
	"context"
	"fmt"

	"github.com/ssuji15/docbuilder/model"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

type DockerService struct {
	docker *client.Client
}

func NewDockerService() (*DockerService, error) {
	dc, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialise docker: %w", err)
	}
	return &DockerService{
		docker: dc,
	}, nil
}

// CreateContainer creates and starts a container. seccompProfile is the JSON
// body of the profile; an empty string keeps the daemon default.
func (d *DockerService) CreateContainer(ctx context.Context, opts model.CreateOptions, seccompProfile string) (string, error) {
	networkMode := network.NetworkNone
	if opts.Networking {
		networkMode = network.NetworkDefault
	}

	mounts := make([]mount.Mount, 0, len(opts.Mounts))
	for _, m := range opts.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	env := make([]string, 0, len(opts.EnvVars))
	for k, v := range opts.EnvVars {
		env = append(env, k+"="+v)
	}

	securityOpt := []string{"no-new-privileges"}
	if seccompProfile != "" {
		securityOpt = append(securityOpt, "seccomp="+seccompProfile)
	}
	if opts.AppArmorProfile != "" {
		securityOpt = append(securityOpt, "apparmor="+opts.AppArmorProfile)
	}

	pl := opts.PidsLimit
	hostCfg := &container.HostConfig{
		Runtime:     opts.Runtime,
		NetworkMode: container.NetworkMode(networkMode),
		SecurityOpt: securityOpt,
		Resources: container.Resources{
			CPUPeriod:  100000,
			CPUQuota:   opts.CPUQuota,
			Memory:     opts.MemoryLimit,
			MemorySwap: opts.MemoryLimit,
			PidsLimit:  &pl,
		},
		Tmpfs: map[string]string{
			"/tmp":     "rw,exec,nosuid,mode=0777,size=536870912",
			"/var/tmp": "rw,exec,nosuid,mode=0777,size=67108864",
		},
		Mounts: mounts,
	}
	cfg := &container.Config{
		Image:      opts.Image,
		Labels:     opts.Labels,
		User:       opts.User,
		Cmd:        opts.Cmd,
		WorkingDir: opts.WorkDir,
		Env:        env,
	}
	networkCfg := &network.NetworkingConfig{}

	created, err := d.docker.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:           cfg,
		HostConfig:       hostCfg,
		NetworkingConfig: networkCfg,
		Name:             opts.Name,
	})
	if err != nil {
		return "", err
	}

	if _, err := d.docker.ContainerStart(ctx, created.ID, client.ContainerStartOptions{}); err != nil {
		d.RemoveContainer(ctx, created.ID)
		return "", err
	}
	return created.ID, nil
}

func (d *DockerService) StopContainer(ctx context.Context, id string) (client.ContainerStopResult, error) {
	timeout := 0
	return d.docker.ContainerStop(ctx, id, client.ContainerStopOptions{Timeout: &timeout})
}

func (d *DockerService) RemoveContainer(ctx context.Context, id string) (client.ContainerRemoveResult, error) {
	return d.docker.ContainerRemove(ctx, id, client.ContainerRemoveOptions{
		Force: true,
	})
}

func (d *DockerService) InspectContainer(ctx context.Context, id string) (client.ContainerInspectResult, error) {
	return d.docker.ContainerInspect(ctx, id, client.ContainerInspectOptions{})
}

func (d *DockerService) ContainerWait(ctx context.Context, id string, cond container.WaitCondition) client.ContainerWaitResult {
	return d.docker.ContainerWait(ctx, id, client.ContainerWaitOptions{
		Condition: cond,
	})
}

func (d *DockerService) Close() error {
	return d.docker.Close()
}
