// Package authority parses the structured remote host identifier the host
// IDE emits when a folder is opened against a Coder workspace.
//
// An identifier looks like:
//
//	coder-vscode.dev.example.com--alice--workspace--main
//	\___________/\_____________/  \___/  \_______/  \__/
//	  namespace       label       owner  workspace  agent
//
// The label and agent segments are optional. The label names the deployment
// the workspace lives on; without one the identifier targets the default
// (unlabeled) deployment.
package authority

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coder/vscode-coder-sub002/pkg/define"
)

// ErrNotApplicable reports that an identifier does not belong to this tool.
// It is a pass-through signal, not a failure: foreign identifiers must be
// left for whichever tool owns them.
var ErrNotApplicable = errors.New("authority is not a Coder remote")

// Parts is the decomposed form of a remote host identifier. It is derived
// once per connection attempt and never mutated afterwards.
type Parts struct {
	Username  string
	Workspace string
	// Agent is empty when the identifier does not pin a specific agent.
	Agent string
	// Label identifies the deployment; empty for the default deployment.
	Label string
	// SSHHost is the host string the SSH client will be pointed at. It is
	// the identifier itself, stripped of any transport scheme.
	SSHHost string
}

// Parse decomposes a raw identifier. It returns ErrNotApplicable when the
// namespace prefix is foreign, and a format error when the dash-separated
// segment count is not two or three.
func Parse(raw string) (*Parts, error) {
	host := strings.TrimPrefix(raw, define.AuthoritySchemePrefix)

	if !strings.HasPrefix(host, define.AuthorityPrefix) {
		return nil, ErrNotApplicable
	}

	rest := host[len(define.AuthorityPrefix):]
	label := ""
	if strings.HasPrefix(rest, ".") {
		idx := strings.Index(rest, "--")
		if idx < 0 {
			return nil, fmt.Errorf("invalid remote authority %q: missing workspace segments", raw)
		}
		label = rest[1:idx]
		rest = rest[idx:]
	}
	if !strings.HasPrefix(rest, "--") {
		return nil, ErrNotApplicable
	}

	segments := strings.Split(rest[2:], "--")
	if len(segments) < 2 || len(segments) > 3 {
		return nil, fmt.Errorf("invalid remote authority %q: expected 2 or 3 segments, got %d", raw, len(segments))
	}
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("invalid remote authority %q: empty segment", raw)
		}
	}

	parts := &Parts{
		Username:  segments[0],
		Workspace: segments[1],
		Label:     label,
		SSHHost:   host,
	}
	if len(segments) == 3 {
		parts.Agent = segments[2]
	}

	return parts, nil
}

// HostPrefix derives the host prefix shared by every workspace on the given
// deployment. It is what the wildcard SSH Host pattern and the proxy
// command's --ssh-host-prefix flag are built from.
func HostPrefix(label string) string {
	if label == "" {
		return define.AuthorityPrefix + "--"
	}
	return define.AuthorityPrefix + "." + label + "--"
}
