package connect

import (
	"path/filepath"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/coder/vscode-coder-sub002/pkg/define"
	"github.com/coder/vscode-coder-sub002/pkg/version"
)

// proxyCommand renders the ProxyCommand the SSH client will run for each
// connection. Two shapes exist: the multiplexed form serves every
// workspace on the deployment through one Host pattern and resolves the
// target from %h, while the legacy form carries the session context as
// explicit file paths.
func proxyCommand(binPath, deploymentDir, hostPrefix string, feats version.Features) string {
	networkInfoDir := filepath.Join(deploymentDir, define.NetworkInfoDir)
	logDir := filepath.Join(deploymentDir, define.ProxyLogDir)

	var args []string
	if feats.SupportsWildcardSSH {
		args = []string{
			shellescape.Quote(binPath),
			"--global-config", shellescape.Quote(deploymentDir),
			"ssh", "--stdio", "--usage-app=vscode", "--disable-autostart",
			"--network-info-dir", shellescape.Quote(networkInfoDir),
		}
		if feats.SupportsProxyLogDirectory {
			args = append(args, "--log-dir", shellescape.Quote(logDir))
		}
		args = append(args, "--ssh-host-prefix", hostPrefix, "%h")
	} else {
		args = []string{
			shellescape.Quote(binPath),
			"vscodessh",
			"--network-info-dir", shellescape.Quote(networkInfoDir),
		}
		if feats.SupportsProxyLogDirectory {
			args = append(args, "--log-dir", shellescape.Quote(logDir))
		}
		args = append(args,
			"--session-token-file", shellescape.Quote(filepath.Join(deploymentDir, define.SessionTokenFile)),
			"--url-file", shellescape.Quote(filepath.Join(deploymentDir, define.URLFile)),
			"%h",
		)
	}

	return strings.Join(args, " ")
}
