package containerd

import (
	"context"
	"fmt"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/sandbox"
	containerdservice "github.com/ssuji15/docbuilder/internal/service/containerd_service"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/util"
)

type ContainerdSandbox struct {
	containerdService *containerdservice.ContainerdService
	cfg               *config.SandboxConfig
	seccompProfile    *specs.LinuxSeccomp
}

func NewContainerdSandbox(cfg *config.SandboxConfig) (*ContainerdSandbox, error) {
	svc, err := containerdservice.NewContainerdService()
	if err != nil {
		return nil, err
	}
	c := &ContainerdSandbox{containerdService: svc, cfg: cfg}
	if cfg.SECCOMP_PROFILE != "" {
		c.seccompProfile, err = util.LoadSeccomp(cfg.SECCOMP_PROFILE)
		if err != nil {
			return nil, fmt.Errorf("load seccomp profile: %w", err)
		}
	}
	return c, nil
}

func (c *ContainerdSandbox) Run(ctx context.Context, spec sandbox.Spec) (sandbox.Result, error) {
	opts := sandbox.CreateOptions(c.cfg, spec)
	id, err := c.containerdService.CreateContainer(ctx, opts, c.seccompProfile)
	if err != nil {
		return sandbox.Result{}, fmt.Errorf("create sandbox %s: %w", opts.Name, err)
	}
	defer c.destroy(context.WithoutCancel(ctx), id)

	waitCtx, cancel := sandbox.WithTimeout(ctx, spec.Limits.Timeout)
	defer cancel()

	ch, err := c.containerdService.ContainerWait(ctx, id)
	if err != nil {
		return sandbox.Result{}, fmt.Errorf("wait sandbox %s: %w", id, err)
	}
	select {
	case status := <-ch:
		code, _, err := status.Result()
		if err != nil {
			return sandbox.Result{}, fmt.Errorf("sandbox %s exit status: %w", id, err)
		}
		return sandbox.Result{ExitCode: int64(code)}, nil
	case <-waitCtx.Done():
		if !sandbox.Expired(ctx, waitCtx) {
			return sandbox.Result{}, ctx.Err()
		}
		logger.Ctx(ctx).Warn().Str("container", id).Dur("timeout", spec.Limits.Timeout).Msg("sandbox timed out, killing task")
		if err := c.containerdService.StopContainer(context.WithoutCancel(ctx), id); err != nil {
			return sandbox.Result{}, fmt.Errorf("kill sandbox %s: %w", id, err)
		}
		return sandbox.Result{ExitCode: -1, TimedOut: true}, nil
	}
}

func (c *ContainerdSandbox) destroy(ctx context.Context, id string) {
	if err := c.containerdService.RemoveContainer(ctx, id); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("container", id).Msg("failed to remove sandbox container")
	}
}

func (c *ContainerdSandbox) Close() error {
	return c.containerdService.Close()
}
