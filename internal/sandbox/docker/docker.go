package docker

import (
	"context"
	"fmt"
	"os"

	"github.com/moby/moby/api/types/container"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/sandbox"
	dockerservice "github.com/ssuji15/docbuilder/internal/service/docker_service"
	"github.com/ssuji15/docbuilder/internal/service/logger"
)

type DockerSandbox struct {
	dockerservice  *dockerservice.DockerService
	cfg            *config.SandboxConfig
	seccompProfile string
}

func NewDockerSandbox(cfg *config.SandboxConfig) (*DockerSandbox, error) {
	svc, err := dockerservice.NewDockerService()
	if err != nil {
		return nil, err
	}
	d := &DockerSandbox{dockerservice: svc, cfg: cfg}
	if cfg.SECCOMP_PROFILE != "" {
		b, err := os.ReadFile(cfg.SECCOMP_PROFILE)
		if err != nil {
			return nil, fmt.Errorf("read seccomp profile: %w", err)
		}
		d.seccompProfile = string(b)
	}
	return d, nil
}

func (d *DockerSandbox) Run(ctx context.Context, spec sandbox.Spec) (sandbox.Result, error) {
	opts := sandbox.CreateOptions(d.cfg, spec)
	id, err := d.dockerservice.CreateContainer(ctx, opts, d.seccompProfile)
	if err != nil {
		return sandbox.Result{}, fmt.Errorf("create sandbox %s: %w", opts.Name, err)
	}
	defer d.destroy(context.WithoutCancel(ctx), id)

	waitCtx, cancel := sandbox.WithTimeout(ctx, spec.Limits.Timeout)
	defer cancel()

	res := d.dockerservice.ContainerWait(waitCtx, id, container.WaitConditionNotRunning)
	select {
	case status := <-res.Result:
		return sandbox.Result{ExitCode: status.StatusCode}, nil
	case err := <-res.Error:
		if sandbox.Expired(ctx, waitCtx) {
			return d.timedOut(ctx, id, spec)
		}
		return sandbox.Result{}, fmt.Errorf("wait sandbox %s: %w", opts.Name, err)
	case <-waitCtx.Done():
		if sandbox.Expired(ctx, waitCtx) {
			return d.timedOut(ctx, id, spec)
		}
		return sandbox.Result{}, ctx.Err()
	}
}

func (d *DockerSandbox) timedOut(ctx context.Context, id string, spec sandbox.Spec) (sandbox.Result, error) {
	logger.Ctx(ctx).Warn().Str("container", id).Dur("timeout", spec.Limits.Timeout).Msg("sandbox timed out, killing container")
	if _, err := d.dockerservice.StopContainer(context.WithoutCancel(ctx), id); err != nil {
		return sandbox.Result{}, fmt.Errorf("kill sandbox %s: %w", id, err)
	}
	return sandbox.Result{ExitCode: -1, TimedOut: true}, nil
}

func (d *DockerSandbox) destroy(ctx context.Context, id string) {
	if _, err := d.dockerservice.RemoveContainer(ctx, id); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("container", id).Msg("failed to remove sandbox container")
	}
}

func (d *DockerSandbox) Close() error {
	return d.dockerservice.Close()
}
