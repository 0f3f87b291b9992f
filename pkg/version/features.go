// Package version negotiates the capability set of a deployment from the
// server-reported version string, cross-checked against the locally probed
// CLI binary.
package version

import (
	"errors"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/sirupsen/logrus"
)

// ErrIncompatibleServer is fatal for a connection attempt: the deployment is
// too old to speak the SSH proxy command at all.
var ErrIncompatibleServer = errors.New("deployment does not support the vscodessh proxy command")

var (
	minVSCodeSSH         = semver.MustParse("0.14.1")
	minProxyLogDirectory = semver.MustParse("2.3.3")
	minWildcardSSH       = semver.MustParse("2.19.0")
)

// Features is the capability set negotiated for one connection attempt. It
// is computed once and never mutated.
type Features struct {
	// SupportsVSCodeSSH gates the legacy per-connection proxy command.
	// Deployments without it cannot be connected to at all.
	SupportsVSCodeSSH bool
	// SupportsWildcardSSH gates the multiplexed proxy command that serves
	// every workspace on a deployment through a single Host pattern.
	SupportsWildcardSSH bool
	// SupportsProxyLogDirectory gates handing the proxy a directory to
	// write its own logs into.
	SupportsProxyLogDirectory bool
}

// Parse normalizes and parses a reported version string. Leading "v",
// pre-release tags ("-devel") and build metadata ("+abcdef") are discarded:
// capability thresholds care about the release line only.
func Parse(raw string) (semver.Version, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "v")
	if i := strings.IndexAny(s, "-+ "); i >= 0 {
		s = s[:i]
	}
	return semver.Parse(s)
}

// ForVersion derives the feature set for a parsed version.
func ForVersion(v semver.Version) Features {
	return Features{
		SupportsVSCodeSSH:         v.GTE(minVSCodeSSH),
		SupportsWildcardSSH:       v.GTE(minWildcardSSH),
		SupportsProxyLogDirectory: v.GTE(minProxyLogDirectory),
	}
}

// Negotiate picks the effective version for a connection attempt. The
// locally probed binary version wins when it parses; the server-reported
// version is the fallback. The binary is what actually runs the proxy, so
// its capabilities are authoritative.
func Negotiate(serverVersion, binaryVersion string) (semver.Version, Features, error) {
	if binaryVersion != "" {
		if v, err := Parse(binaryVersion); err == nil {
			return v, ForVersion(v), nil
		}
		logrus.Warnf("could not parse binary version %q, falling back to server version", binaryVersion)
	}

	v, err := Parse(serverVersion)
	if err != nil {
		return semver.Version{}, Features{}, err
	}
	return v, ForVersion(v), nil
}
