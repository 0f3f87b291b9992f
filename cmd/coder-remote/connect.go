package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/coder/vscode-coder-sub002/pkg/connect"
	"github.com/coder/vscode-coder-sub002/pkg/creds"
	"github.com/coder/vscode-coder-sub002/pkg/define"
	"github.com/coder/vscode-coder-sub002/pkg/dialog"
)

var connectCmd = cli.Command{
	Name:        "connect",
	Usage:       "make a remote authority SSH-reachable",
	UsageText:   "connect [flags] <authority>",
	Description: "parses the authority, waits for the workspace to be ready, writes the managed SSH config block, and keeps monitoring the connection until interrupted",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  define.FlagSSHConfigFile,
			Usage: "SSH config file to manage",
			Value: define.DefaultSSHConfigPath,
		},
		&cli.StringFlag{
			Name:  define.FlagSettingsFile,
			Usage: "host IDE settings file to adjust (optional)",
		},
		&cli.StringFlag{
			Name:  define.FlagGlobalConfig,
			Usage: "directory for per-deployment state (credentials, network info, proxy logs)",
		},
		&cli.StringFlag{
			Name:  define.FlagBinary,
			Usage: "path to a locally built CLI binary, overriding the downloaded one",
		},
		&cli.StringSliceFlag{
			Name:  define.FlagSSHOption,
			Usage: "extra SSH directive for the managed block, e.g. --ssh-option=ServerAliveInterval=5",
		},
	},
	Action: runConnect,
}

func runConnect(ctx context.Context, command *cli.Command) error {
	if command.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one remote authority argument")
	}
	authority := command.Args().First()

	global, err := globalConfigDir(command)
	if err != nil {
		return err
	}
	sshPath, err := sshConfigPath(command)
	if err != nil {
		return err
	}

	term := dialog.NewTerminal(os.Stdin, os.Stderr)
	store := creds.NewStore(global)

	conn, err := connect.Setup(ctx, connect.Options{
		Authority:       authority,
		Store:           store,
		Binaries:        &deploymentBinaries{store: store, cacheDir: global},
		Prompter:        term,
		Reporter:        term,
		SSHConfigPath:   sshPath,
		SettingsPath:    command.String(define.FlagSettingsFile),
		GlobalConfigDir: global,
		DevBinaryPath:   command.String(define.FlagBinary),
		SSHOptions:      command.StringSlice(define.FlagSSHOption),
	})
	if err != nil {
		return err
	}
	if conn == nil {
		return fmt.Errorf("%q is not a coder-vscode remote authority", authority)
	}
	defer conn.Close()

	logrus.Infof("workspace is reachable as %q; monitoring until interrupted", conn.SSHHost)
	<-ctx.Done()
	return nil
}
