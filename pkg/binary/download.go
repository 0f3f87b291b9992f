package binary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Downloader fetches the CLI binary from the deployment's /bin endpoint and
// caches it per label under the global config dir. The cached copy is reused
// until the server reports a different ETag.
type Downloader struct {
	baseURL  string
	cacheDir string
	client   *http.Client
}

func NewDownloader(baseURL, cacheDir string) *Downloader {
	return &Downloader{
		baseURL:  baseURL,
		cacheDir: cacheDir,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (d *Downloader) FetchBinary(ctx context.Context, label string) (string, error) {
	dir := filepath.Join(d.cacheDir, "bin")
	if label != "" {
		dir = filepath.Join(d.cacheDir, label, "bin")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errors.Wrapf(err, "create binary cache directory %q", dir)
	}

	dest := filepath.Join(dir, Name())
	etagFile := dest + ".etag"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/bin/"+Name(), nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}
	if etag, err := os.ReadFile(etagFile); err == nil {
		if _, statErr := os.Stat(dest); statErr == nil {
			req.Header.Set("If-None-Match", string(etag))
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download binary: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusNotModified:
		logrus.Debugf("cached binary %s is current", dest)
		return dest, nil
	case http.StatusOK:
	default:
		return "", fmt.Errorf("download binary: unexpected status %d", resp.StatusCode)
	}

	// Write to a temp file first so a torn download never replaces a
	// working binary.
	tmp, err := os.CreateTemp(dir, Name()+".download-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp file for download")
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("download binary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "finish binary download")
	}
	if err := os.Chmod(tmp.Name(), 0o700); err != nil {
		return "", errors.Wrap(err, "mark binary executable")
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", errors.Wrapf(err, "install binary to %q", dest)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		if err := os.WriteFile(etagFile, []byte(etag), 0o600); err != nil {
			logrus.Warnf("could not record binary etag: %v", err)
		}
	}

	logrus.Infof("downloaded %s to %s", Name(), dest)
	return dest, nil
}
