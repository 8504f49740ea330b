package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/opencontainers/runtime-spec/specs-go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func LoadSeccomp(path string) (*specs.LinuxSeccomp, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seccomp specs.LinuxSeccomp
	if err := json.Unmarshal(b, &seccomp); err != nil {
		return nil, err
	}
	return &seccomp, nil
}

func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetSourcesPrefix is where a release's source tree is stored.
func GetSourcesPrefix(name, version string) string {
	return fmt.Sprintf("sources/%s/%s", name, version)
}

// GetRustdocPrefix is where a release's aggregated documentation is stored.
func GetRustdocPrefix(name, version string) string {
	return fmt.Sprintf("rustdoc/%s/%s", name, version)
}

// GetDocPath is the destination layout of one target's documentation. The
// target segment is left out for the default target.
func GetDocPath(name, version, target string, isDefaultTarget bool) string {
	if isDefaultTarget {
		return path.Join(name, version)
	}
	return path.Join(name, version, target)
}

// GetBuildDirName names the per-release build directory.
func GetBuildDirName(name, version string) string {
	return fmt.Sprintf("%s-%s", name, version)
}

// GetModuleName converts a package name into the name of its library module.
func GetModuleName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func GetLimitsKey(name string) string {
	return fmt.Sprintf("limits:%s", name)
}

func GetCompletionKey(name, version string) string {
	return fmt.Sprintf("%s-%s", name, version)
}
