package docbuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"
	"github.com/ssuji15/docbuilder/internal/toolchain"
	"github.com/ssuji15/docbuilder/model"
)

type cargoManifest struct {
	Package struct {
		Metadata struct {
			Docs struct {
				Rs model.PackageMetadata `toml:"rs"`
			} `toml:"docs"`
		} `toml:"metadata"`
	} `toml:"package"`
}

// ReadPackageMetadata reads the [package.metadata.docs.rs] table of the
// manifest in sourceDir. A manifest without the table yields the zero value.
func ReadPackageMetadata(sourceDir string) (model.PackageMetadata, error) {
	b, err := os.ReadFile(filepath.Join(sourceDir, "Cargo.toml"))
	if err != nil {
		return model.PackageMetadata{}, fmt.Errorf("read manifest: %w", err)
	}
	var m cargoManifest
	if err := toml.Unmarshal(b, &m); err != nil {
		return model.PackageMetadata{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m.Package.Metadata.Docs.Rs, nil
}

type MetadataLoader interface {
	Load(ctx context.Context, sourceDir string) (model.CargoMetadata, error)
}

// CargoMetadataLoader runs `cargo metadata` on the host.
type CargoMetadataLoader struct {
	runner    toolchain.Runner
	toolchain string
}

func NewCargoMetadataLoader(runner toolchain.Runner, toolchainName string) *CargoMetadataLoader {
	return &CargoMetadataLoader{runner: runner, toolchain: toolchainName}
}

func (l *CargoMetadataLoader) Load(ctx context.Context, sourceDir string) (model.CargoMetadata, error) {
	out, err := l.runner.Run(ctx, sourceDir, "cargo", "+"+l.toolchain, "metadata",
		"--format-version", "1", "--manifest-path", filepath.Join(sourceDir, "Cargo.toml"))
	if err != nil {
		return model.CargoMetadata{}, fmt.Errorf("cargo metadata: %w", err)
	}
	return ParseCargoMetadata(out)
}

type rawTarget struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

type rawDependency struct {
	Name string `json:"name"`
	Req  string `json:"req"`
	Kind string `json:"kind"`
}

type rawPackage struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	Description   string          `json:"description"`
	License       string          `json:"license"`
	Repository    string          `json:"repository"`
	Homepage      string          `json:"homepage"`
	Documentation string          `json:"documentation"`
	Keywords      []string        `json:"keywords"`
	Authors       []string        `json:"authors"`
	Targets       []rawTarget     `json:"targets"`
	Dependencies  []rawDependency `json:"dependencies"`
}

type rawMetadata struct {
	Packages []rawPackage `json:"packages"`
	Resolve  struct {
		Root  string `json:"root"`
		Nodes []struct {
			ID   string `json:"id"`
			Deps []struct {
				Pkg string `json:"pkg"`
			} `json:"deps"`
		} `json:"nodes"`
	} `json:"resolve"`
}

// ParseCargoMetadata extracts the root package and its resolved direct
// dependencies from `cargo metadata --format-version 1` output.
func ParseCargoMetadata(b []byte) (model.CargoMetadata, error) {
	var raw rawMetadata
	if err := json.Unmarshal(b, &raw); err != nil {
		return model.CargoMetadata{}, fmt.Errorf("decode cargo metadata: %w", err)
	}

	byID := make(map[string]rawPackage, len(raw.Packages))
	for _, p := range raw.Packages {
		byID[p.ID] = p
	}
	root, ok := byID[raw.Resolve.Root]
	if !ok {
		return model.CargoMetadata{}, fmt.Errorf("cargo metadata: root package %q not found", raw.Resolve.Root)
	}

	md := model.CargoMetadata{Root: toCargoPackage(root)}
	for _, n := range raw.Resolve.Nodes {
		if n.ID != raw.Resolve.Root {
			continue
		}
		for _, d := range n.Deps {
			if p, ok := byID[d.Pkg]; ok {
				md.RootDependencies = append(md.RootDependencies, model.Dependency{Name: p.Name, Version: p.Version})
			}
		}
	}
	return md, nil
}

func toCargoPackage(p rawPackage) model.CargoPackage {
	cp := model.CargoPackage{
		ID:            p.ID,
		Name:          p.Name,
		Version:       p.Version,
		Description:   p.Description,
		License:       p.License,
		Repository:    p.Repository,
		Homepage:      p.Homepage,
		Documentation: p.Documentation,
		Keywords:      p.Keywords,
		Authors:       p.Authors,
	}
	for _, t := range p.Targets {
		if slices.Contains(t.Kind, "lib") || slices.Contains(t.Kind, "proc-macro") {
			cp.LibName = t.Name
			break
		}
	}
	for _, d := range p.Dependencies {
		cp.Dependencies = append(cp.Dependencies, model.Dependency{Name: d.Name, Version: d.Req, Kind: d.Kind})
	}
	return cp
}
