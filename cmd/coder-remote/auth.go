package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/coder/vscode-coder-sub002/pkg/creds"
	"github.com/coder/vscode-coder-sub002/pkg/define"
	"github.com/coder/vscode-coder-sub002/pkg/sshconfig"
)

var loginCmd = cli.Command{
	Name:        "login",
	Usage:       "store credentials for a deployment",
	UsageText:   "login [flags] [deployment-url]",
	Description: "prompts for the deployment URL and session token, verifies them, and persists them under the deployment label",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  define.FlagLabel,
			Usage: "deployment label; empty targets the default deployment",
		},
		&cli.StringFlag{
			Name:  define.FlagToken,
			Usage: "session token; skips the interactive prompt when given together with a URL argument",
		},
		&cli.StringFlag{
			Name:  define.FlagGlobalConfig,
			Usage: "directory for per-deployment state",
		},
	},
	Action: runLogin,
}

func runLogin(ctx context.Context, command *cli.Command) error {
	global, err := globalConfigDir(command)
	if err != nil {
		return err
	}
	store := creds.NewStore(global)
	label := command.String(define.FlagLabel)

	if token := command.String(define.FlagToken); token != "" {
		url := command.Args().First()
		if url == "" {
			return fmt.Errorf("a deployment URL argument is required with --%s", define.FlagToken)
		}
		if err := verifyCredentials(ctx, url, token); err != nil {
			return err
		}
		if err := store.Set(creds.Auth{URL: url, Token: token, Label: label}); err != nil {
			return err
		}
		logrus.Infof("logged in to %s", url)
		return nil
	}

	auth, err := creds.Login(ctx, store, label, os.Stdin, os.Stderr, verifyCredentials)
	if err != nil {
		return err
	}
	logrus.Infof("logged in to %s", auth.URL)
	return nil
}

var logoutCmd = cli.Command{
	Name:        "logout",
	Usage:       "forget a deployment",
	UsageText:   "logout [flags]",
	Description: "removes the deployment's stored credentials and its managed SSH config block",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  define.FlagLabel,
			Usage: "deployment label; empty targets the default deployment",
		},
		&cli.StringFlag{
			Name:  define.FlagGlobalConfig,
			Usage: "directory for per-deployment state",
		},
		&cli.StringFlag{
			Name:  define.FlagSSHConfigFile,
			Usage: "SSH config file to clean up",
			Value: define.DefaultSSHConfigPath,
		},
	},
	Action: runLogout,
}

func runLogout(ctx context.Context, command *cli.Command) error {
	global, err := globalConfigDir(command)
	if err != nil {
		return err
	}
	sshPath, err := sshConfigPath(command)
	if err != nil {
		return err
	}
	label := command.String(define.FlagLabel)

	if err := creds.NewStore(global).Delete(label); err != nil {
		return err
	}
	if err := sshconfig.NewStore(sshPath).Remove(ctx, label); err != nil {
		return err
	}
	logrus.Info("logged out")
	return nil
}
