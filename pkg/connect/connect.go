// Package connect coordinates a whole connection attempt: credential
// resolution, version negotiation, workspace readiness, SSH config
// synthesis, and post-connection monitoring.
package connect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/coder/vscode-coder-sub002/pkg/api"
	"github.com/coder/vscode-coder-sub002/pkg/authority"
	"github.com/coder/vscode-coder-sub002/pkg/binary"
	"github.com/coder/vscode-coder-sub002/pkg/creds"
	"github.com/coder/vscode-coder-sub002/pkg/define"
	"github.com/coder/vscode-coder-sub002/pkg/dialog"
	"github.com/coder/vscode-coder-sub002/pkg/monitor"
	"github.com/coder/vscode-coder-sub002/pkg/paths"
	"github.com/coder/vscode-coder-sub002/pkg/settings"
	"github.com/coder/vscode-coder-sub002/pkg/sshconfig"
	"github.com/coder/vscode-coder-sub002/pkg/version"
	"github.com/coder/vscode-coder-sub002/pkg/workspace"
)

// ErrAborted reports that the user declined to proceed at one of the
// confirmation gates.
var ErrAborted = errors.New("connection aborted")

// Options wires the collaborators and paths one connection attempt needs.
type Options struct {
	// Authority is the raw remote host identifier.
	Authority string

	Store    *creds.Store
	Binaries binary.Provider
	Prompter dialog.Prompter
	Reporter dialog.Reporter

	// NewClient builds the API client; it defaults to api.New and exists
	// for tests.
	NewClient func(url, token string) (api.Client, error)

	SSHConfigPath   string
	SettingsPath    string
	GlobalConfigDir string
	// DevBinaryPath, when present on disk, overrides the binary provider.
	DevBinaryPath string
	// SSHOptions are user-supplied "key=value" directive overrides. They
	// win over deployment-supplied ones.
	SSHOptions []string

	// LoginInput/LoginOutput carry the interactive login flow.
	LoginInput  io.Reader
	LoginOutput io.Writer
}

// Connection is a ready, SSH-reachable workspace. Close releases the
// monitors registered during setup.
type Connection struct {
	URL     string
	Token   string
	Label   string
	SSHHost string

	closers []func()
}

func (c *Connection) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Setup turns a remote host identifier into a live connection. It returns
// (nil, nil) when the identifier belongs to another tool. A failed login,
// a declined prompt, or an incompatible deployment abort the attempt with
// an error; no monitor stays registered on any abort path.
func Setup(ctx context.Context, opts Options) (*Connection, error) {
	if opts.NewClient == nil {
		opts.NewClient = api.New
	}
	if opts.LoginInput == nil {
		opts.LoginInput = os.Stdin
	}
	if opts.LoginOutput == nil {
		opts.LoginOutput = os.Stderr
	}

	parts, err := authority.Parse(opts.Authority)
	if errors.Is(err, authority.ErrNotApplicable) {
		logrus.Debugf("authority %q is not ours", opts.Authority)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return setup(ctx, opts, parts, true)
}

// setup is one self-contained attempt. After a successful login it tail
// calls itself exactly once; every other retry requires a fresh user
// confirmation, so the recursion stays bounded.
func setup(ctx context.Context, opts Options, parts *authority.Parts, allowLogin bool) (*Connection, error) {
	auth, err := opts.Store.Get(parts.Label)
	if errors.Is(err, creds.ErrNotFound) {
		if !allowLogin {
			return nil, fmt.Errorf("no credentials for deployment %q after login", parts.Label)
		}
		if auth, err = opts.login(ctx, parts.Label); err != nil {
			return nil, err
		}
		return setup(ctx, opts, parts, false)
	}
	if err != nil {
		return nil, err
	}

	client, err := opts.NewClient(auth.URL, auth.Token)
	if err != nil {
		return nil, err
	}

	// The server's version and the local binary resolve independently.
	var (
		info    api.BuildInfo
		binPath string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = client.BuildInfo(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		binPath, err = binary.Resolve(gctx, opts.Binaries, parts.Label, opts.DevBinaryPath)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, api.ErrUnauthorized) && allowLogin {
			if _, err := opts.login(ctx, parts.Label); err != nil {
				return nil, err
			}
			return setup(ctx, opts, parts, false)
		}
		return nil, err
	}

	negotiated, feats, err := version.Negotiate(info.Version, binary.ProbeVersion(ctx, binPath))
	if err != nil {
		return nil, fmt.Errorf("parse deployment version: %w", err)
	}
	if !feats.SupportsVSCodeSSH {
		return nil, fmt.Errorf("%w (version %s)", version.ErrIncompatibleServer, negotiated)
	}
	logrus.Infof("deployment version %s (wildcard SSH: %v)", negotiated, feats.SupportsWildcardSSH)

	ws, err := client.WorkspaceByOwnerAndName(ctx, parts.Username, parts.Workspace)
	if errors.Is(err, api.ErrUnauthorized) && allowLogin {
		if _, err := opts.login(ctx, parts.Label); err != nil {
			return nil, err
		}
		return setup(ctx, opts, parts, false)
	}
	if errors.Is(err, api.ErrNotFound) {
		_, _ = opts.Prompter.Confirm(ctx,
			fmt.Sprintf("Workspace %s/%s no longer exists. Open a different workspace?", parts.Username, parts.Workspace),
			"Open Workspace")
		return nil, fmt.Errorf("workspace %s/%s: %w", parts.Username, parts.Workspace, err)
	}
	if err != nil {
		return nil, err
	}

	ws, agent, err := opts.awaitReady(ctx, client, parts, ws)
	if err != nil {
		switch {
		case errors.Is(err, workspace.ErrBuildFailed):
			retry, perr := opts.Prompter.Confirm(ctx, "The workspace failed to start. Try again?", "Retry")
			if perr != nil {
				return nil, perr
			}
			if retry {
				return setup(ctx, opts, parts, false)
			}
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		case errors.Is(err, workspace.ErrAgentTimeout):
			_, _ = opts.Prompter.Confirm(ctx, "The workspace agent timed out connecting. Reload to retry?", "Reload")
			return nil, err
		default:
			return nil, err
		}
	}

	deploymentDir, err := opts.writeSessionFiles(parts.Label, auth)
	if err != nil {
		return nil, err
	}

	overrides, err := opts.resolveOverrides(ctx, client)
	if err != nil {
		return nil, err
	}

	hostPrefix := authority.HostPrefix(parts.Label)
	hostPattern := parts.SSHHost
	if feats.SupportsWildcardSSH {
		hostPattern = hostPrefix + "*"
	}

	values := sshconfig.Values{
		Host:                  hostPattern,
		ProxyCommand:          proxyCommand(binPath, deploymentDir, hostPrefix, feats),
		ConnectTimeout:        "0",
		StrictHostKeyChecking: "no",
		UserKnownHostsFile:    "/dev/null",
		LogLevel:              "ERROR",
		SetEnv:                "CODER_SSH_SESSION_TYPE=vscode",
	}

	store := sshconfig.NewStore(opts.SSHConfigPath)
	if err := store.Update(ctx, parts.Label, values, overrides); err != nil {
		return nil, err
	}
	if err := store.Verify(parts.SSHHost, values, overrides); err != nil {
		var conflict *sshconfig.ConflictError
		if errors.As(err, &conflict) {
			_, _ = opts.Prompter.Confirm(ctx,
				fmt.Sprintf("Your SSH config overrides %s for %s and the connection cannot work. Fix the conflicting block and reload?", conflict.Key, conflict.Host),
				"Reload")
		}
		return nil, err
	}

	if opts.SettingsPath != "" {
		settings.Apply(opts.SettingsPath, parts.SSHHost, agent.OperatingSystem)
	}

	conn := &Connection{
		URL:     auth.URL,
		Token:   auth.Token,
		Label:   parts.Label,
		SSHHost: parts.SSHHost,
	}

	netMonitor := monitor.NewNetworkMonitor(filepath.Join(deploymentDir, define.NetworkInfoDir), opts.Reporter)
	netMonitor.Start(ctx)
	conn.closers = append(conn.closers, netMonitor.Close)

	removeWatch := opts.Store.OnChange(parts.Label, func(changed creds.Auth) {
		if changed.Token != conn.Token {
			opts.Reporter.Report("Deployment credentials changed; reconnect to pick them up.")
		}
	})
	conn.closers = append(conn.closers, removeWatch)

	logrus.Infof("workspace %s/%s is ready on agent %s", ws.OwnerName, ws.Name, agent.Name)
	return conn, nil
}

func (opts Options) login(ctx context.Context, label string) (creds.Auth, error) {
	verify := func(ctx context.Context, url, token string) error {
		client, err := opts.NewClient(url, token)
		if err != nil {
			return err
		}
		_, err = client.BuildInfo(ctx)
		return err
	}
	return creds.Login(ctx, opts.Store, label, opts.LoginInput, opts.LoginOutput, verify)
}

// awaitReady runs the readiness flow with a watch stream scoped to this
// attempt, so a torn-down attempt cannot receive late snapshots.
func (opts Options) awaitReady(ctx context.Context, client api.Client, parts *authority.Parts, ws api.Workspace) (api.Workspace, api.WorkspaceAgent, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := client.WatchWorkspace(watchCtx, ws.ID)
	if err != nil {
		return ws, api.WorkspaceAgent{}, fmt.Errorf("watch workspace: %w", err)
	}

	return workspace.NewMonitor(client, opts.Reporter, parts.Agent).Wait(ctx, ws, updates)
}

// writeSessionFiles lays out the per-deployment directory the proxy
// command reads its context from.
func (opts Options) writeSessionFiles(label string, auth creds.Auth) (string, error) {
	dir := paths.DeploymentDir(opts.GlobalConfigDir, label)
	for _, sub := range []string{define.NetworkInfoDir, define.ProxyLogDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return "", fmt.Errorf("create deployment directory: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, define.URLFile), []byte(auth.URL), 0o600); err != nil {
		return "", fmt.Errorf("write url file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, define.SessionTokenFile), []byte(auth.Token), 0o600); err != nil {
		return "", fmt.Errorf("write session token file: %w", err)
	}
	return dir, nil
}

// resolveOverrides folds the deployment's SSH directive policy under the
// user's. Old deployments without the endpoint contribute nothing.
func (opts Options) resolveOverrides(ctx context.Context, client api.Client) (sshconfig.Overrides, error) {
	user, err := sshconfig.ParseOptions(opts.SSHOptions)
	if err != nil {
		return nil, err
	}

	resp, err := client.SSHConfiguration(ctx)
	if err != nil {
		if !errors.Is(err, api.ErrNotFound) {
			logrus.Warnf("could not fetch deployment SSH configuration: %v", err)
		}
		return user, nil
	}

	return sshconfig.MergeOverrides(sshconfig.Overrides(resp.SSHConfigOptions), user), nil
}
