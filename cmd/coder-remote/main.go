package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/coder/vscode-coder-sub002/pkg/define"
)

func main() {
	app := cli.Command{
		Name:                      "coder-remote",
		Usage:                     "connect the host IDE to Coder workspaces over SSH",
		UsageText:                 "coder-remote [command] [flags]",
		Description:               "turns a coder-vscode remote authority into a live, SSH-reachable workspace",
		Before:                    earlyStage,
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  define.FlagVerbose,
				Usage: "enable debug logging",
			},
		},
	}

	app.Commands = []*cli.Command{
		&connectCmd,
		&loginCmd,
		&logoutCmd,
		&inspectCmd,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func earlyStage(ctx context.Context, command *cli.Command) (context.Context, error) {
	setLogrus(command.Bool(define.FlagVerbose))
	ctx, _ = signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)

	return ctx, nil
}

func setLogrus(verbose bool) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.InfoLevel)
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}
