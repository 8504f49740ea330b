// Package toolchain keeps the host compiler toolchain installed and current.
package toolchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/util"
)

// AssetsRefresher republishes the toolchain-shared documentation assets for
// a newly detected compiler version.
type AssetsRefresher interface {
	Refresh(ctx context.Context, version string) error
}

// StoredVersion returns the version the shared assets were last refreshed
// for. An empty string means none is known.
type StoredVersion func(ctx context.Context) (string, error)

type Manager struct {
	name      string
	targets   []string
	runner    Runner
	refresher AssetsRefresher
	stored    StoredVersion

	mu        sync.Mutex
	installed bool
	version   string
	// refreshed is the version whose shared assets were last published.
	refreshed string
}

func NewManager(name string, targets []string, runner Runner, stored StoredVersion) *Manager {
	return &Manager{
		name:    name,
		targets: targets,
		runner:  runner,
		stored:  stored,
	}
}

// SetAssetsRefresher must be called before EnsureCurrent. The refresher
// builds with this manager, so it cannot be passed to NewManager.
func (m *Manager) SetAssetsRefresher(r AssetsRefresher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresher = r
}

func (m *Manager) Name() string {
	return m.name
}

// Version is the full version line of the last detection, or "" before
// the first one.
func (m *Manager) Version() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

func (m *Manager) Installed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.installed
}

// EnsureCurrent installs or updates the toolchain and all targets, then
// refreshes the shared assets if the detected version differs from the last
// one refreshed. A failed refresh is retried on the next call.
func (m *Manager) EnsureCurrent(ctx context.Context) error {
	ctx, span := job_tracer.GetTracer().Start(ctx, "Toolchain/EnsureCurrent")
	defer span.End()

	log := logger.FromContext(ctx)
	previous := m.previousVersion(ctx)

	if err := m.install(ctx); err != nil {
		util.RecordSpanError(span, err)
		return err
	}

	current, err := m.Detect(ctx)
	if err != nil {
		util.RecordSpanError(span, err)
		return err
	}

	if previous == current {
		m.markRefreshed(current)
		return nil
	}
	log.Info().Str("previous", previous).Str("current", current).Msg("toolchain version changed")

	m.mu.Lock()
	r := m.refresher
	m.mu.Unlock()
	if r == nil {
		m.markRefreshed(current)
		return nil
	}
	if err := r.Refresh(ctx, current); err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("refresh essential files for %s: %w", current, err)
	}
	m.markRefreshed(current)
	return nil
}

func (m *Manager) markRefreshed(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = version
}

// Detect runs `rustc --version` and stores the result.
func (m *Manager) Detect(ctx context.Context) (string, error) {
	logger.Ctx(ctx).Info().Msg("detecting rustc's version")
	out, err := m.runner.Run(ctx, "", "rustc", "+"+m.name, "--version")
	if err != nil {
		return "", fmt.Errorf("detect rustc version: %w", err)
	}
	line, err := versionLine(out)
	if err != nil {
		return "", err
	}
	logger.Ctx(ctx).Info().Str("rustc", line).Msg("found rustc")

	m.mu.Lock()
	m.version = line
	m.mu.Unlock()
	return line, nil
}

func (m *Manager) previousVersion(ctx context.Context) string {
	m.mu.Lock()
	v := m.refreshed
	m.mu.Unlock()
	if v != "" {
		return v
	}
	if m.stored == nil {
		return ""
	}
	v, err := m.stored(ctx)
	if err != nil {
		logger.Ctx(ctx).Debug().Err(err).Msg("no stored rustc version")
		return ""
	}
	return v
}

func (m *Manager) install(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info().Str("toolchain", m.name).Msg("installing toolchain")
	if _, err := m.runner.Run(ctx, "", "rustup", "toolchain", "install", m.name, "--profile", "minimal"); err != nil {
		return fmt.Errorf("install toolchain %s: %w", m.name, err)
	}
	for _, target := range m.targets {
		if _, err := m.runner.Run(ctx, "", "rustup", "target", "add", "--toolchain", m.name, target); err != nil {
			return fmt.Errorf("add target %s to %s: %w", target, m.name, err)
		}
	}

	m.mu.Lock()
	m.installed = true
	m.mu.Unlock()
	return nil
}
