package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/coder/vscode-coder-sub002/pkg/api"
	"github.com/coder/vscode-coder-sub002/pkg/binary"
	"github.com/coder/vscode-coder-sub002/pkg/creds"
	"github.com/coder/vscode-coder-sub002/pkg/define"
	"github.com/coder/vscode-coder-sub002/pkg/paths"
)

func globalConfigDir(command *cli.Command) (string, error) {
	if dir := command.String(define.FlagGlobalConfig); dir != "" {
		return paths.ExpandTilde(dir)
	}
	return paths.DefaultGlobalConfigDir()
}

func sshConfigPath(command *cli.Command) (string, error) {
	return paths.ExpandTilde(command.String(define.FlagSSHConfigFile))
}

// verifyCredentials is the login verifier: a (url, token) pair is good when
// it can fetch the deployment's build info.
func verifyCredentials(ctx context.Context, url, token string) error {
	client, err := api.New(url, token)
	if err != nil {
		return err
	}
	_, err = client.BuildInfo(ctx)
	return err
}

// deploymentBinaries downloads the CLI binary from whichever deployment the
// label's stored credentials point at. Resolution is deferred to fetch time
// because the credentials may not exist yet when the flow starts.
type deploymentBinaries struct {
	store    *creds.Store
	cacheDir string
}

func (d *deploymentBinaries) FetchBinary(ctx context.Context, label string) (string, error) {
	auth, err := d.store.Get(label)
	if err != nil {
		return "", err
	}
	return binary.NewDownloader(auth.URL, d.cacheDir).FetchBinary(ctx, label)
}
