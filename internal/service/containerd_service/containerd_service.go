package containerdservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/containers"

	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/oci"
	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/ssuji15/docbuilder/model"
)

// ErrHostNetworkDisabled is returned when a build asks for networking and the
// host network namespace has not been allowed.
var ErrHostNetworkDisabled = errors.New("networking under containerd needs SANDBOX_HOST_NETWORK")

type ContainerdService struct {
	containerd *containerd.Client
}

func NewContainerdService() (*ContainerdService, error) {
	cc, err := NewContainerdClient()
	if err != nil {
		return nil, fmt.Errorf("unable to initialise containerd: %w", err)
	}
	return &ContainerdService{
		containerd: cc,
	}, nil
}

func (d *ContainerdService) getImage(ctx context.Context, ref string) (containerd.Image, error) {
	image, err := d.containerd.GetImage(ctx, ref)
	if err == nil {
		return image, nil
	}
	if !errdefs.IsNotFound(err) {
		return nil, err
	}
	return d.containerd.Pull(ctx, ref, containerd.WithPullUnpack)
}

func (d *ContainerdService) CreateContainer(ctx context.Context, opts model.CreateOptions, seccompprofile *specs.LinuxSeccomp) (string, error) {
	client := d.containerd

	image, err := d.getImage(ctx, opts.Image)
	if err != nil {
		return "", fmt.Errorf("image %s: %w", opts.Image, err)
	}

	env := make([]string, 0, len(opts.EnvVars))
	for k, v := range opts.EnvVars {
		env = append(env, k+"="+v)
	}

	specOpts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithProcessArgs(opts.Cmd...),
		oci.WithCPUCFS(opts.CPUQuota, 100000),
		oci.WithMemoryLimit(uint64(opts.MemoryLimit)),
		oci.WithPidsLimit(opts.PidsLimit),
		oci.WithEnv(env),
		oci.WithNoNewPrivileges,
	}
	if opts.WorkDir != "" {
		specOpts = append(specOpts, oci.WithProcessCwd(opts.WorkDir))
	}
	if opts.User != "" {
		specOpts = append(specOpts, oci.WithUser(opts.User))
	}
	netOpts, err := networkSpecOpts(opts)
	if err != nil {
		return "", err
	}
	specOpts = append(specOpts, netOpts...)

	switch opts.Runtime {
	case "io.containerd.runc.v2":
		if opts.AppArmorProfile != "" {
			specOpts = append(specOpts, oci.WithApparmorProfile(opts.AppArmorProfile))
		}
		if seccompprofile != nil {
			specOpts = append(specOpts, WithSeccompProfile(seccompprofile))
		}
	}

	mounts := make([]specs.Mount, 0, len(opts.Mounts)+2)
	for _, m := range opts.Mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		mounts = append(mounts, specs.Mount{
			Type:        "bind",
			Source:      m.Source,
			Destination: m.Target,
			Options:     []string{"rbind", mode},
		})
	}
	mounts = append(mounts,
		specs.Mount{
			Type:        "tmpfs",
			Destination: "/tmp",
			Options:     []string{"nosuid", "nodev", "exec", "size=512m", "mode=1777"},
		},
		specs.Mount{
			Type:        "tmpfs",
			Destination: "/var/tmp",
			Options:     []string{"nosuid", "nodev", "exec", "size=64m", "mode=1777"},
		},
	)
	specOpts = append(specOpts, oci.WithMounts(mounts))

	container, err := client.NewContainer(
		ctx,
		opts.Name,
		containerd.WithImage(image),
		containerd.WithSnapshotter("overlayfs"),
		containerd.WithNewSnapshot(opts.Name, image),
		containerd.WithRuntime(opts.Runtime, nil),
		containerd.WithNewSpec(specOpts...),
		containerd.WithAdditionalContainerLabels(opts.Labels),
	)
	if err != nil {
		return "", err
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		container.Delete(ctx, containerd.WithSnapshotCleanup)
		return "", err
	}

	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		container.Delete(ctx, containerd.WithSnapshotCleanup)
		return "", err
	}
	return container.ID(), nil
}

func (d *ContainerdService) StopContainer(ctx context.Context, id string) error {
	container, err := d.containerd.LoadContainer(ctx, id)
	if err != nil {
		return err
	}
	return d.stopContainer(ctx, container)
}

func (d *ContainerdService) RemoveContainer(ctx context.Context, id string) error {
	container, err := d.containerd.LoadContainer(ctx, id)
	if err != nil {
		return err
	}

	if err := d.stopContainer(ctx, container); err != nil {
		return err
	}

	return container.Delete(ctx, containerd.WithSnapshotCleanup)
}

func (c *ContainerdService) InspectContainer(ctx context.Context, id string) (*containers.Container, error) {
	container, err := c.containerd.LoadContainer(ctx, id)
	if err != nil {
		return nil, err
	}

	info, err := container.Info(ctx)
	if err != nil {
		return nil, err
	}

	return &info, nil
}

func (c *ContainerdService) ContainerWait(ctx context.Context, id string) (<-chan containerd.ExitStatus, error) {
	container, err := c.containerd.LoadContainer(ctx, id)
	if err != nil {
		return nil, err
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil, err
	}

	return task.Wait(ctx)
}

func (c *ContainerdService) Close() error {
	return c.containerd.Close()
}

func (c *ContainerdService) stopContainer(ctx context.Context, container containerd.Container) error {
	task, err := container.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return err
	}

	if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
		if !errdefs.IsNotFound(err) && !strings.Contains(err.Error(), "process already finished") {
			return err
		}
	}
	exitC, err := task.Wait(ctx)
	if err != nil {
		return err
	}
	select {
	case <-exitC:
	case <-time.After(time.Second * 3):
		return fmt.Errorf("could not kill task %s: timed out", container.ID())
	}

	if _, err := task.Delete(ctx); err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}

// networkSpecOpts picks the network namespace. Without a CNI setup the
// container gets an empty namespace, so networking means sharing the host's.
func networkSpecOpts(opts model.CreateOptions) ([]oci.SpecOpts, error) {
	if !opts.Networking {
		return nil, nil
	}
	if !opts.HostNetwork {
		return nil, ErrHostNetworkDisabled
	}
	return []oci.SpecOpts{
		oci.WithHostNamespace(specs.NetworkNamespace),
		oci.WithHostResolvconf,
		oci.WithHostHostsFile,
	}, nil
}

func WithSeccompProfile(sec *specs.LinuxSeccomp) oci.SpecOpts {
	return func(ctx context.Context, client oci.Client, c *containers.Container, s *specs.Spec) error {
		if s.Linux == nil {
			s.Linux = &specs.Linux{}
		}
		s.Linux.Seccomp = sec
		return nil
	}
}
