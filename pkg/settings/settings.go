// Package settings nudges the host IDE's settings file so the remote SSH
// transport can survive long workspace builds: it raises the connect
// timeout to a floor and records each workspace host's platform. Every
// operation is best-effort; the connection proceeds even if the file cannot
// be written.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/jsonc"

	"github.com/coder/vscode-coder-sub002/pkg/define"
)

const (
	connectTimeoutKey = "remote.SSH.connectTimeout"
	remotePlatformKey = "remote.SSH.remotePlatform"
)

// File wraps one settings file. The file may contain comments and trailing
// commas; they are tolerated on read but not preserved on write.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// EnsureConnectTimeout raises the remote SSH connect timeout to at least
// the given floor, in seconds. It reports whether the file was changed.
func (f *File) EnsureConnectTimeout(minSeconds int) (bool, error) {
	return f.mutate(func(settings map[string]any) bool {
		current, ok := settings[connectTimeoutKey].(float64)
		if ok && current >= float64(minSeconds) {
			return false
		}
		settings[connectTimeoutKey] = minSeconds
		return true
	})
}

// SetRemotePlatform records the host's operating system in the remote
// platform map so the transport skips its platform probe. Written back
// only when the entry is new or different.
func (f *File) SetRemotePlatform(host, operatingSystem string) (bool, error) {
	return f.mutate(func(settings map[string]any) bool {
		platforms, ok := settings[remotePlatformKey].(map[string]any)
		if !ok {
			platforms = make(map[string]any)
		}
		if current, ok := platforms[host].(string); ok && current == operatingSystem {
			return false
		}
		platforms[host] = operatingSystem
		settings[remotePlatformKey] = platforms
		return true
	})
}

func (f *File) mutate(apply func(map[string]any) bool) (bool, error) {
	settings, err := f.load()
	if err != nil {
		return false, err
	}
	if !apply(settings) {
		return false, nil
	}
	if err := f.save(settings); err != nil {
		return false, err
	}
	logrus.Debugf("updated %s", f.path)
	return true, nil
}

func (f *File) load() (map[string]any, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read settings %q", f.path)
	}

	settings := map[string]any{}
	if len(raw) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(raw), &settings); err != nil {
		return nil, errors.Wrapf(err, "parse settings %q", f.path)
	}
	return settings, nil
}

func (f *File) save(settings map[string]any) error {
	raw, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrapf(err, "create settings directory")
	}
	if err := os.WriteFile(f.path, append(raw, '\n'), 0o600); err != nil {
		return errors.Wrapf(err, "write settings %q", f.path)
	}
	return nil
}

// Apply performs both best-effort adjustments for a host. Failures are
// logged and swallowed: a missing settings tweak degrades the experience,
// it does not block the connection.
func Apply(path, host, operatingSystem string) {
	file := NewFile(path)
	if _, err := file.EnsureConnectTimeout(define.MinimumConnectTimeout); err != nil {
		logrus.Warnf("could not raise connect timeout: %v", err)
	}
	if operatingSystem == "" {
		return
	}
	if _, err := file.SetRemotePlatform(host, operatingSystem); err != nil {
		logrus.Warnf("could not record remote platform: %v", err)
	}
}
