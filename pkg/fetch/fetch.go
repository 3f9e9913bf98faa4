// Package fetch materializes remote index files into the local cache so the
// search path can open them. A file already present in the cache is never
// re-downloaded; concurrent requests for the same missing file share one
// download.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/datapages/splitsearch/pkg/log"
)

// Fetcher downloads index files into a cache directory.
type Fetcher struct {
	cacheDir string
	client   *http.Client
	group    singleflight.Group
	logger   *log.Logger
}

// New creates a fetcher rooted at cacheDir. timeout bounds a single
// download; zero means no limit.
func New(cacheDir string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: timeout},
		logger:   log.ForService("fetch"),
	}
}

// Materialize ensures the index for the given split exists locally and
// returns its path. Remote files with a .zst suffix are decompressed while
// downloading. URLs without an http(s) scheme are treated as local paths and
// returned as-is after an existence check.
func (f *Fetcher) Materialize(ctx context.Context, dataset, config, split, filename, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		if _, err := os.Stat(url); err != nil {
			return "", fmt.Errorf("local index %s: %w", url, err)
		}
		return url, nil
	}

	local := filepath.Join(f.cacheDir, dataset, config, split, strings.TrimSuffix(filename, ".zst"))
	if _, err := os.Stat(local); err == nil {
		f.logger.Debugf("cache hit for %s", local)
		return local, nil
	}

	// Deduplicate concurrent downloads of the same file.
	_, err, _ := f.group.Do(local, func() (any, error) {
		if _, err := os.Stat(local); err == nil {
			return nil, nil
		}
		return nil, f.download(ctx, url, local)
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

// download streams url into local via a temp file in the same directory so
// the final rename is atomic and readers never observe a half-written index.
func (f *Fetcher) download(ctx context.Context, url, local string) error {
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading index: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Warnf("closing download body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading index: unexpected status %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if strings.HasSuffix(url, ".zst") {
		decoder, err := zstd.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("creating zstd reader: %w", err)
		}
		defer decoder.Close()
		body = decoder
	}

	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	written, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing index file: %w", err)
	}

	if err := os.Rename(tmp.Name(), local); err != nil {
		return fmt.Errorf("installing index file: %w", err)
	}

	f.logger.Infof("downloaded %s (%d bytes) to %s", url, written, local)
	return nil
}
