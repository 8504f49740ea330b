package docbuilder

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/toolchain"
	"github.com/ssuji15/docbuilder/internal/util"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SourceFetcher places the sources of one release into a build dir.
type SourceFetcher interface {
	Fetch(ctx context.Context, name, version, dest string) error
	Purge(name, version string) error
}

const userAgent = "docbuilder (https://github.com/ssuji15/docbuilder)"

// CrateFetcher downloads .crate archives from the registry download
// endpoint and caches them unpacked in the workspace.
type CrateFetcher struct {
	client      *http.Client
	downloadURL string
	workspace   *Workspace
	runner      toolchain.Runner
	toolchain   string
}

func NewCrateFetcher(downloadURL string, ws *Workspace, runner toolchain.Runner, toolchainName string) *CrateFetcher {
	return &CrateFetcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   5 * time.Minute,
		},
		downloadURL: strings.TrimRight(downloadURL, "/"),
		workspace:   ws,
		runner:      runner,
		toolchain:   toolchainName,
	}
}

func (f *CrateFetcher) Fetch(ctx context.Context, name, version, dest string) error {
	ctx, span := job_tracer.GetTracer().Start(ctx, "Fetcher/Fetch")
	defer span.End()

	cacheDir := f.workspace.SourceCacheDir(name, version)
	if !util.IsDir(cacheDir) {
		if err := f.download(ctx, name, version, cacheDir); err != nil {
			util.PurgeDir(cacheDir)
			util.RecordSpanError(span, err)
			return err
		}
	}
	if err := util.CopyTree(cacheDir, dest, nil); err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("copy sources of %s %s: %w", name, version, err)
	}

	// Dependencies are fetched on the host since the sandbox usually has
	// no network. A failure here surfaces as a failed build.
	if f.runner != nil {
		manifest := filepath.Join(dest, "Cargo.toml")
		if _, err := f.runner.Run(ctx, dest, "cargo", "+"+f.toolchain, "fetch", "--manifest-path", manifest); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("failed to fetch dependencies")
		}
	}
	return nil
}

func (f *CrateFetcher) Purge(name, version string) error {
	return util.PurgeDir(f.workspace.SourceCacheDir(name, version))
}

func (f *CrateFetcher) download(ctx context.Context, name, version, dest string) error {
	url := fmt.Sprintf("%s/%s/%s-%s.crate", f.downloadURL, name, name, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}
	if err := Unpack(resp.Body, dest); err != nil {
		return fmt.Errorf("unpack %s: %w", url, err)
	}
	return nil
}

// Unpack extracts a gzipped tarball into dest, dropping the top-level
// directory every .crate archive wraps its files in.
func Unpack(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	if err := util.EnsureDirExist(dest); err != nil {
		return err
	}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		parts := strings.SplitN(filepath.ToSlash(hdr.Name), "/", 2)
		if len(parts) < 2 || parts[1] == "" {
			continue
		}
		rel := filepath.FromSlash(parts[1])
		target := filepath.Join(dest, rel)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := util.EnsureDirExist(target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target); err != nil {
				return err
			}
		}
	}
}

func writeEntry(r io.Reader, target string) error {
	if err := util.EnsureDirExist(filepath.Dir(target)); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
