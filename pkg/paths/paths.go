// Package paths resolves the filesystem locations this tool works with.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde resolves a leading "~/" against the user's home directory.
func ExpandTilde(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// DefaultGlobalConfigDir is where per-deployment state (credentials, url
// and token files, network info, proxy logs) lives.
func DefaultGlobalConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config directory: %w", err)
	}
	return filepath.Join(base, "coder-remote"), nil
}

// DeploymentDir is the per-label slice of the global config dir.
func DeploymentDir(globalConfigDir, label string) string {
	if label == "" {
		return filepath.Join(globalConfigDir, "default")
	}
	return filepath.Join(globalConfigDir, label)
}
