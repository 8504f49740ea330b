package docbuilder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/sandbox"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/toolchain"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
)

// Paths inside the build container.
const (
	sandboxRoot       = "/opt/docbuilder"
	sandboxSource     = sandboxRoot + "/source"
	sandboxTarget     = sandboxRoot + "/target"
	sandboxLogs       = sandboxRoot + "/logs"
	sandboxCargoHome  = sandboxRoot + "/cargo-home"
	sandboxRustupHome = sandboxRoot + "/rustup-home"

	buildLogName    = "build.log"
	buildStatusName = "build.status"
)

// ToolchainInfo is the compiler the executor builds with.
type ToolchainInfo interface {
	Name() string
	Version() string
}

type ExecutorConfig struct {
	DefaultTarget  string
	DocsBaseURL    string
	ServiceVersion string
	CargoHome      string
	RustupHome     string
}

// Executor runs one `cargo doc` invocation inside the sandbox.
type Executor struct {
	sandbox   sandbox.Sandbox
	toolchain ToolchainInfo
	metadata  MetadataLoader
	cfg       ExecutorConfig
}

func NewExecutor(sb sandbox.Sandbox, tc ToolchainInfo, md MetadataLoader, cfg ExecutorConfig) *Executor {
	return &Executor{sandbox: sb, toolchain: tc, metadata: md, cfg: cfg}
}

// Execute builds the documentation of the sources in build for target. An
// empty target selects the package default target, then the global one.
// A failing or timed out build is reported through BuildResult.Successful.
func (e *Executor) Execute(ctx context.Context, target string, build *BuildDir, limits model.BuildLimits) (*model.BuildResult, error) {
	ctx, span := job_tracer.GetTracer().Start(ctx, "Executor/Execute")
	defer span.End()

	meta, err := ReadPackageMetadata(build.SourceDir)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	cargoMeta, err := e.metadata.Load(ctx, build.SourceDir)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	version := e.toolchain.Version()
	parsed, err := toolchain.ParseVersion(version)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	target = ResolveTarget(target, meta, e.cfg.DefaultTarget)
	cargoArgs := CargoArgs(target, meta)
	rustdocFlags := RustdocFlags(parsed, e.cfg.DocsBaseURL, cargoMeta.RootDependencies, meta)

	storage := NewLogStorage(limits.MaxLogBytes)
	blog := storage.Logger()
	blog.Info().Msgf("running `cargo %s`", strings.Join(cargoArgs, " "))
	logger.Ctx(ctx).Debug().Str("target", target).Strs("args", cargoArgs).Msg("executing build")

	logPath := filepath.Join(build.LogDir, buildLogName)
	for _, p := range []string{logPath, filepath.Join(build.LogDir, buildStatusName)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale build log: %w", err)
		}
	}

	res, err := e.sandbox.Run(ctx, e.spec(build, limits, cargoArgs, rustdocFlags, meta))
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("run build for %s: %w", target, err)
	}

	if err := appendFile(storage, logPath); err != nil {
		blog.Warn().Err(err).Msg("no build output captured")
	}
	switch {
	case res.TimedOut:
		blog.Error().Msgf("build timed out after %s", limits.Timeout)
	case res.ExitCode != 0:
		blog.Error().Msgf("build failed with exit code %d", res.ExitCode)
	}

	return &model.BuildResult{
		ToolchainVersion: version,
		ServiceVersion:   e.cfg.ServiceVersion,
		BuildLog:         storage.String(),
		Successful:       res.Success(),
		Target:           target,
		CargoMetadata:    cargoMeta,
	}, nil
}

func (e *Executor) spec(build *BuildDir, limits model.BuildLimits, cargoArgs, rustdocFlags []string, meta model.PackageMetadata) sandbox.Spec {
	cmd := append(logCommand(sandboxLogs, limits.MaxLogBytes),
		path.Join(sandboxCargoHome, "bin", "cargo"), "+"+e.toolchain.Name(),
	)
	env := map[string]string{
		"CARGO_HOME":       sandboxCargoHome,
		"RUSTUP_HOME":      sandboxRustupHome,
		"CARGO_TARGET_DIR": sandboxTarget,
		"RUSTFLAGS":        strings.Join(meta.RustcArgs, " "),
		"RUSTDOCFLAGS":     strings.Join(rustdocFlags, " "),
	}
	if !limits.Networking {
		env["CARGO_NET_OFFLINE"] = "true"
	}
	return sandbox.Spec{
		Cmd:     append(cmd, cargoArgs...),
		WorkDir: sandboxSource,
		Env:     env,
		Mounts: []model.Mount{
			{Source: build.SourceDir, Target: sandboxSource, ReadOnly: true},
			{Source: build.TargetDir, Target: sandboxTarget},
			{Source: build.LogDir, Target: sandboxLogs},
			{Source: e.cfg.CargoHome, Target: sandboxCargoHome, ReadOnly: true},
			{Source: e.cfg.RustupHome, Target: sandboxRustupHome, ReadOnly: true},
		},
		Limits: limits,
	}
}

// logCommand wraps the command appended to it so its combined output lands in
// logDir. A positive maxLogBytes caps the file one byte past the limit, which
// is enough for the reader to notice the truncation. The rest of the output is
// drained so the build does not die on a closed pipe, and the build's exit
// status is kept.
func logCommand(logDir string, maxLogBytes int) []string {
	logFile := path.Join(logDir, buildLogName)
	if maxLogBytes <= 0 {
		return []string{"sh", "-c", `exec "$@" > ` + logFile + " 2>&1", "sh"}
	}
	statusFile := path.Join(logDir, buildStatusName)
	script := fmt.Sprintf(`{ "$@" 2>&1; echo $? > %s; } | { head -c %d; cat > /dev/null; } > %s; exit "$(cat %s)"`,
		statusFile, maxLogBytes+1, logFile, statusFile)
	return []string{"sh", "-c", script, "sh"}
}

// ResolveTarget applies explicit > package default > global default.
func ResolveTarget(explicit string, meta model.PackageMetadata, global string) string {
	if explicit != "" {
		return explicit
	}
	if meta.DefaultTarget != "" {
		return meta.DefaultTarget
	}
	return global
}

func RustdocFlags(parsedVersion, docsBaseURL string, deps []model.Dependency, meta model.PackageMetadata) []string {
	flags := []string{
		"-Z", "unstable-options",
		"--resource-suffix", "-" + parsedVersion,
		"--static-root-path", "/",
		"--disable-per-crate-search",
	}
	base := strings.TrimRight(docsBaseURL, "/")
	for _, dep := range deps {
		flags = append(flags, "--extern-html-root-url",
			fmt.Sprintf("%s=%s/%s/%s", util.GetModuleName(dep.Name), base, dep.Name, dep.Version))
	}
	return append(flags, meta.RustdocArgs...)
}

func CargoArgs(target string, meta model.PackageMetadata) []string {
	args := []string{"doc", "--lib", "--no-deps", "--target", target}
	if len(meta.Features) > 0 {
		args = append(args, "--features", strings.Join(meta.Features, " "))
	}
	if meta.AllFeatures {
		args = append(args, "--all-features")
	}
	if meta.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	return args
}

func appendFile(w io.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
