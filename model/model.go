package model

import (
	"time"
)

// QueueEntry represents a row of the build queue.
type QueueEntry struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Version  string `db:"version" json:"version"`
	Priority int    `db:"priority" json:"priority"`
	Attempt  int    `db:"attempt" json:"attempt"`
}

type ChangeKind string

const (
	ChangeAdded  ChangeKind = "added"
	ChangeYanked ChangeKind = "yanked"
)

// ChangeEvent is a single release change observed in the registry index.
type ChangeEvent struct {
	Name    string     `json:"name"`
	Version string     `json:"version"`
	Kind    ChangeKind `json:"kind"`
}

// BuildLimits are the sandbox limits applied to a single package build.
type BuildLimits struct {
	MemoryBytes int64         `json:"memoryBytes" msgpack:"memory_bytes"`
	Networking  bool          `json:"networking" msgpack:"networking"`
	Timeout     time.Duration `json:"timeout" msgpack:"timeout"`
	MaxLogBytes int           `json:"maxLogBytes" msgpack:"max_log_bytes"`
}

// PackageMetadata holds the docs.rs overrides a package declares in its manifest.
type PackageMetadata struct {
	DefaultTarget     string   `toml:"default-target" json:"default_target,omitempty"`
	RustdocArgs       []string `toml:"rustdoc-args" json:"rustdoc_args,omitempty"`
	RustcArgs         []string `toml:"rustc-args" json:"rustc_args,omitempty"`
	Features          []string `toml:"features" json:"features,omitempty"`
	AllFeatures       bool     `toml:"all-features" json:"all_features,omitempty"`
	NoDefaultFeatures bool     `toml:"no-default-features" json:"no_default_features,omitempty"`
}

type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Kind    string `json:"kind,omitempty"`
}

// CargoPackage is the root package as reported by cargo metadata.
type CargoPackage struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Version       string       `json:"version"`
	Description   string       `json:"description"`
	License       string       `json:"license"`
	Repository    string       `json:"repository"`
	Homepage      string       `json:"homepage"`
	Documentation string       `json:"documentation"`
	Keywords      []string     `json:"keywords"`
	Authors       []string     `json:"authors"`
	LibName       string       `json:"libName"`
	Dependencies  []Dependency `json:"dependencies"`
}

// CargoMetadata is the subset of the dependency graph the builder needs.
type CargoMetadata struct {
	Root             CargoPackage
	RootDependencies []Dependency
}

// BuildResult is produced once per compiler invocation.
type BuildResult struct {
	ToolchainVersion string
	ServiceVersion   string
	BuildLog         string
	Successful       bool
	Target           string
	CargoMetadata    CargoMetadata
}

// StoredFile is one object written to the artifact store.
type StoredFile struct {
	Mime string `json:"mime"`
	Path string `json:"path"`
}

// ReleaseRecord is everything the pipeline records about one built release.
type ReleaseRecord struct {
	Metadata        CargoMetadata
	PackageMetadata PackageMetadata
	Result          *BuildResult
	Files           []StoredFile
	DocTargets      []string
	HasDocs         bool
	HasExamples     bool
	SourceDirectory string
}

// BuildStatus is the outcome of one pipeline run.
type BuildStatus string

const (
	StatusSkipped   BuildStatus = "skipped"
	StatusSucceeded BuildStatus = "succeeded"
	StatusFailed    BuildStatus = "failed"
)

// BuildEvent is published after every queue worker cycle that built something.
type BuildEvent struct {
	Name     string      `json:"name"`
	Version  string      `json:"version"`
	Status   BuildStatus `json:"status"`
	Attempt  int         `json:"attempt"`
	Error    string      `json:"error,omitempty"`
	Finished time.Time   `json:"finished"`
}

// Mount is a host path exposed inside a sandbox container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// CreateOptions describes one sandbox container.
type CreateOptions struct {
	Name            string
	Image           string
	Runtime         string
	Cmd             []string
	WorkDir         string
	User            string
	EnvVars         map[string]string
	Mounts          []Mount
	Labels          map[string]string
	CPUQuota        int64
	MemoryLimit     int64
	PidsLimit       int64
	Networking      bool
	HostNetwork     bool
	AppArmorProfile string
}
