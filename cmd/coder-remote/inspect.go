package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/coder/vscode-coder-sub002/pkg/define"
	"github.com/coder/vscode-coder-sub002/pkg/sshconfig"
)

var inspectCmd = cli.Command{
	Name:        "inspect",
	Usage:       "show the SSH properties a host actually gets",
	UsageText:   "inspect [flags] <host>",
	Description: "evaluates the SSH config file the way the remote SSH transport does (first match per key wins) and prints the effective properties for the host",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  define.FlagSSHConfigFile,
			Usage: "SSH config file to evaluate",
			Value: define.DefaultSSHConfigPath,
		},
	},
	Action: runInspect,
}

func runInspect(ctx context.Context, command *cli.Command) error {
	if command.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one host argument")
	}
	host := command.Args().First()

	sshPath, err := sshConfigPath(command)
	if err != nil {
		return err
	}

	content, err := sshconfig.NewStore(sshPath).Load()
	if err != nil {
		return err
	}

	properties := sshconfig.ComputeEffectiveProperties(host, content)
	keys := make([]string, 0, len(properties))
	for key := range properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Fprintf(os.Stdout, "%s %s\n", key, properties[key])
	}
	return nil
}
