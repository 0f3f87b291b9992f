// Package binary resolves the CLI binary whose proxy command the SSH client
// will run, and probes the version it reports.
package binary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Provider downloads (or finds in cache) the CLI binary matching the
// deployment and returns its local path. Download, signature verification
// and caching live behind this interface.
type Provider interface {
	FetchBinary(ctx context.Context, label string) (string, error)
}

// Resolve returns the binary path to use. A development override that
// exists on disk takes precedence over the provider; it lets a locally
// built binary stand in without touching the cache.
func Resolve(ctx context.Context, provider Provider, label, devPath string) (string, error) {
	if devPath != "" {
		if info, err := os.Stat(devPath); err == nil && !info.IsDir() {
			logrus.Infof("using development binary override %s", devPath)
			return devPath, nil
		}
	}
	path, err := provider.FetchBinary(ctx, label)
	if err != nil {
		return "", fmt.Errorf("fetch binary for deployment %q: %w", label, err)
	}
	return path, nil
}

const probeTimeout = 10 * time.Second

// ProbeVersion asks the resolved binary which version it is. The probe is
// advisory: a failure returns an empty version, and the caller falls back
// to the server-reported one.
func ProbeVersion(ctx context.Context, binPath string) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binPath, "version", "--output=json").Output()
	if err != nil {
		logrus.Warnf("version probe of %s failed: %v", binPath, err)
		return ""
	}

	var report struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(out, &report); err != nil {
		// Older binaries print the bare version string.
		if v := strings.TrimSpace(string(out)); v != "" && !strings.ContainsAny(v, "{}") {
			return v
		}
		logrus.Warnf("could not parse version report from %s: %v", binPath, err)
		return ""
	}
	return report.Version
}

// Name is the platform-dependent binary file name.
func Name() string {
	if runtime.GOOS == "windows" {
		return "coder.exe"
	}
	return "coder"
}
