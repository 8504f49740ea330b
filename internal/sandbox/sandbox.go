// Package sandbox runs one-shot commands inside resource-limited containers.
package sandbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/model"
)

// Spec is a single command to run in a fresh container.
type Spec struct {
	Cmd     []string
	WorkDir string
	Env     map[string]string
	Mounts  []model.Mount
	Limits  model.BuildLimits
}

type Result struct {
	ExitCode int64
	TimedOut bool
}

func (r Result) Success() bool {
	return !r.TimedOut && r.ExitCode == 0
}

type Sandbox interface {
	// Run blocks until the command exits or Limits.Timeout elapses. A
	// timed out container is killed and reported through Result, not as an
	// error.
	Run(ctx context.Context, spec Spec) (Result, error)
	Close() error
}

const containerUser = "1000:1000"

func NewName() string {
	return "docbuilder-" + uuid.New().String()
}

// CreateOptions merges the host sandbox policy with one run.
func CreateOptions(cfg *config.SandboxConfig, spec Spec) model.CreateOptions {
	return model.CreateOptions{
		Name:            NewName(),
		Image:           cfg.IMAGE,
		Runtime:         cfg.RUNTIME,
		Cmd:             spec.Cmd,
		WorkDir:         spec.WorkDir,
		User:            containerUser,
		EnvVars:         spec.Env,
		Mounts:          spec.Mounts,
		Labels:          map[string]string{"app": "docbuilder"},
		CPUQuota:        cfg.CPU_QUOTA,
		MemoryLimit:     spec.Limits.MemoryBytes,
		PidsLimit:       cfg.PIDS_LIMIT,
		Networking:      spec.Limits.Networking,
		HostNetwork:     cfg.HOST_NETWORK,
		AppArmorProfile: cfg.APPARMOR_PROFILE,
	}
}

// WithTimeout bounds ctx by d. A non-positive d leaves ctx unbounded.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Expired reports whether waitCtx ended because of its own deadline rather
// than cancellation of the parent.
func Expired(parent, waitCtx context.Context) bool {
	return parent.Err() == nil && waitCtx.Err() != nil
}
