package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ssuji15/docbuilder/internal/service/logger"
)

// Runner executes host commands.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with RUSTUP_HOME and CARGO_HOME pointed at the
// workspace.
type ExecRunner struct {
	RustupHome string
	CargoHome  string
}

func NewExecRunner(workspace string) *ExecRunner {
	return &ExecRunner{
		RustupHome: filepath.Join(workspace, "rustup-home"),
		CargoHome:  filepath.Join(workspace, "cargo-home"),
	}
}

func (r *ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	bin := name
	if p := filepath.Join(r.CargoHome, "bin", name); fileExists(p) {
		bin = p
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"RUSTUP_HOME="+r.RustupHome,
		"CARGO_HOME="+r.CargoHome,
		"PATH="+filepath.Join(r.CargoHome, "bin")+string(os.PathListSeparator)+os.Getenv("PATH"),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Ctx(ctx).Debug().Str("cmd", name+" "+strings.Join(args, " ")).Msg("running host command")
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
