// ABOUTME: Resolves asset locations to local files, downloading remote URLs
// ABOUTME: Downloads are cached by URL hash so retries reuse the same file
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/harper/mediaindex/internal/models"
)

// Fetcher turns local paths and http(s) URLs into readable local files
type Fetcher struct {
	cacheDir string
	client   *http.Client
}

// NewFetcher creates a fetcher that stores downloads under cacheDir
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 10 * time.Minute},
	}
}

// IsRemote reports whether location is an http(s) URL
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Fetch returns a local path for location
func (f *Fetcher) Fetch(ctx context.Context, location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", models.InvalidArgument("location", "asset location cannot be empty")
	}

	if !IsRemote(location) {
		local := strings.TrimPrefix(location, "file://")
		info, err := os.Stat(local)
		if err != nil {
			return "", models.NotFound(location, "asset not found: %s", location)
		}
		if info.IsDir() {
			return "", models.InvalidArgument(location, fmt.Sprintf("asset %s is a directory", location))
		}
		return local, nil
	}

	dest := f.cachePath(location)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	if err := f.download(ctx, location, dest); err != nil {
		var gone *missingError
		if errors.As(err, &gone) {
			return "", models.NotFound(location, "asset not found: %s (%s)", location, gone.status)
		}
		return "", models.Upstream("download "+location, err)
	}
	return dest, nil
}

// missingError is a remote asset the server says does not exist
type missingError struct {
	status string
}

func (e *missingError) Error() string { return "unexpected status " + e.status }

func (f *Fetcher) cachePath(location string) string {
	sum := sha256.Sum256([]byte(location))
	ext := ""
	if u, err := url.Parse(location); err == nil {
		ext = path.Ext(u.Path)
	}
	return filepath.Join(f.cacheDir, "downloads", hex.EncodeToString(sum[:16])+ext)
}

func (f *Fetcher) download(ctx context.Context, location, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &missingError{status: resp.Status}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
