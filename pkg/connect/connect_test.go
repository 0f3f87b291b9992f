package connect

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder/vscode-coder-sub002/pkg/api"
	"github.com/coder/vscode-coder-sub002/pkg/creds"
	"github.com/coder/vscode-coder-sub002/pkg/define"
	"github.com/coder/vscode-coder-sub002/pkg/sshconfig"
	"github.com/coder/vscode-coder-sub002/pkg/version"
)

type fakeClient struct {
	mu sync.Mutex

	buildInfo    api.BuildInfo
	buildInfoErr error
	ws           api.Workspace
	wsErr        error
	sshResp      api.SSHConfigResponse
	sshErr       error
	updates      chan api.Workspace

	started []uuid.UUID
}

func (f *fakeClient) BuildInfo(context.Context) (api.BuildInfo, error) {
	return f.buildInfo, f.buildInfoErr
}

func (f *fakeClient) WorkspaceByOwnerAndName(context.Context, string, string) (api.Workspace, error) {
	return f.ws, f.wsErr
}

func (f *fakeClient) Workspace(context.Context, uuid.UUID) (api.Workspace, error) {
	return f.ws, f.wsErr
}

func (f *fakeClient) StartWorkspace(_ context.Context, id, _ uuid.UUID) (api.WorkspaceBuild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return api.WorkspaceBuild{ID: uuid.New(), Status: api.BuildStatusPending}, nil
}

func (f *fakeClient) SSHConfiguration(context.Context) (api.SSHConfigResponse, error) {
	return f.sshResp, f.sshErr
}

func (f *fakeClient) WatchWorkspace(context.Context, uuid.UUID) (<-chan api.Workspace, error) {
	return f.updates, nil
}

func (f *fakeClient) BuildLogsAfter(context.Context, uuid.UUID) (<-chan api.BuildLog, error) {
	logs := make(chan api.BuildLog)
	close(logs)
	return logs, nil
}

type fakeProvider struct {
	path string
}

func (f *fakeProvider) FetchBinary(context.Context, string) (string, error) {
	return f.path, nil
}

type fakePrompter struct {
	mu     sync.Mutex
	asked  []string
	answer bool
}

func (f *fakePrompter) Confirm(_ context.Context, message, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, message)
	return f.answer, nil
}

func (f *fakePrompter) questions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.asked...)
}

type nullReporter struct{}

func (nullReporter) Report(string) {}

func readyWorkspace() api.Workspace {
	return api.Workspace{
		ID:        uuid.New(),
		OwnerName: "alice",
		Name:      "dev",
		LatestBuild: api.WorkspaceBuild{
			ID:     uuid.New(),
			Status: api.BuildStatusRunning,
		},
		Agents: []api.WorkspaceAgent{{
			ID:              uuid.New(),
			Name:            "main",
			Status:          api.AgentStatusConnected,
			OperatingSystem: "linux",
		}},
	}
}

type fixture struct {
	opts    Options
	client  *fakeClient
	prompts *fakePrompter
	store   *creds.Store
	sshPath string
	global  string
}

func newFixture(t *testing.T, serverVersion string) *fixture {
	t.Helper()

	client := &fakeClient{
		buildInfo: api.BuildInfo{Version: serverVersion},
		ws:        readyWorkspace(),
		sshErr:    api.ErrNotFound,
		updates:   make(chan api.Workspace, 8),
	}
	prompts := &fakePrompter{}
	store := creds.NewStore(t.TempDir())
	require.NoError(t, store.Set(creds.Auth{URL: "https://example.com", Token: "secret", Label: ""}))

	sshPath := filepath.Join(t.TempDir(), "config")
	global := t.TempDir()

	return &fixture{
		opts: Options{
			Authority: "ssh-remote+coder-vscode--alice--dev",
			Store:     store,
			// The path never exists, so the version probe fails and the
			// server-reported version decides the feature set.
			Binaries: &fakeProvider{path: filepath.Join(t.TempDir(), "coder")},
			Prompter: prompts,
			Reporter: nullReporter{},
			NewClient: func(string, string) (api.Client, error) {
				return client, nil
			},
			SSHConfigPath:   sshPath,
			GlobalConfigDir: global,
		},
		client:  client,
		prompts: prompts,
		store:   store,
		sshPath: sshPath,
		global:  global,
	}
}

func TestSetupNotApplicable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v2.20.0")
	f.opts.Authority = "ssh-remote+my-other-remote--x"

	conn, err := Setup(context.Background(), f.opts)
	require.NoError(t, err)
	assert.Nil(t, conn)
}

func TestSetupIncompatibleServer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v0.13.0")

	conn, err := Setup(context.Background(), f.opts)
	require.ErrorIs(t, err, version.ErrIncompatibleServer)
	assert.Nil(t, conn)
}

func TestSetupHappyPathWildcard(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v2.20.0")

	conn, err := Setup(context.Background(), f.opts)
	require.NoError(t, err)
	require.NotNil(t, conn)
	defer conn.Close()

	assert.Equal(t, "https://example.com", conn.URL)
	assert.Equal(t, "coder-vscode--alice--dev", conn.SSHHost)

	raw, err := os.ReadFile(f.sshPath)
	require.NoError(t, err)
	config := string(raw)
	assert.Contains(t, config, "Host coder-vscode--*")
	assert.Contains(t, config, "--ssh-host-prefix coder-vscode-- %h")
	assert.Contains(t, config, "--disable-autostart")

	deployDir := filepath.Join(f.global, "default")
	url, err := os.ReadFile(filepath.Join(deployDir, define.URLFile))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", string(url))
	token, err := os.ReadFile(filepath.Join(deployDir, define.SessionTokenFile))
	require.NoError(t, err)
	assert.Equal(t, "secret", string(token))
	assert.DirExists(t, filepath.Join(deployDir, define.NetworkInfoDir))
	assert.DirExists(t, filepath.Join(deployDir, define.ProxyLogDir))
}

func TestSetupLegacyProxyCommand(t *testing.T) {
	t.Parallel()

	// Old enough for vscodessh, too old for the multiplexed command.
	f := newFixture(t, "v2.1.0")

	conn, err := Setup(context.Background(), f.opts)
	require.NoError(t, err)
	require.NotNil(t, conn)
	defer conn.Close()

	raw, err := os.ReadFile(f.sshPath)
	require.NoError(t, err)
	config := string(raw)
	assert.Contains(t, config, "Host coder-vscode--alice--dev\n")
	assert.Contains(t, config, "vscodessh")
	assert.Contains(t, config, "--session-token-file")
	assert.NotContains(t, config, "--log-dir")
}

func TestSetupLoginWhenNoCredentials(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v2.20.0")
	require.NoError(t, f.store.Delete(""))
	f.opts.LoginInput = strings.NewReader("https://example.com\nfresh-token\n")
	f.opts.LoginOutput = &strings.Builder{}

	conn, err := Setup(context.Background(), f.opts)
	require.NoError(t, err)
	require.NotNil(t, conn)
	defer conn.Close()

	auth, err := f.store.Get("")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", auth.Token)
	assert.Equal(t, "fresh-token", conn.Token)
}

func TestSetupUnauthorizedTriggersOneLogin(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v2.20.0")
	f.client.buildInfoErr = api.ErrUnauthorized
	f.opts.LoginInput = strings.NewReader("https://example.com\nnew-token\n")
	f.opts.LoginOutput = &strings.Builder{}

	// The login verifier hits the same fake, which keeps rejecting; the
	// attempt must fail instead of looping.
	conn, err := Setup(context.Background(), f.opts)
	require.Error(t, err)
	assert.Nil(t, conn)
}

func TestSetupWorkspaceDeleted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v2.20.0")
	f.client.wsErr = api.ErrNotFound

	conn, err := Setup(context.Background(), f.opts)
	require.ErrorIs(t, err, api.ErrNotFound)
	assert.Nil(t, conn)

	questions := f.prompts.questions()
	require.Len(t, questions, 1)
	assert.Contains(t, questions[0], "no longer exists")
}

func TestSetupBuildFailedDeclined(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v2.20.0")
	f.client.ws.LatestBuild.Status = api.BuildStatusStopped
	failed := f.client.ws
	failed.LatestBuild.Status = api.BuildStatusFailed
	f.client.updates <- failed

	conn, err := Setup(context.Background(), f.opts)
	require.ErrorIs(t, err, ErrAborted)
	assert.Nil(t, conn)

	// The stopped workspace was started once before the build failed.
	assert.Len(t, f.client.started, 1)
	questions := f.prompts.questions()
	require.Len(t, questions, 1)
	assert.Contains(t, questions[0], "failed to start")
}

func TestSetupConflictingUserBlock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v2.20.0")
	earlier := "Host *\n  ProxyCommand /usr/bin/corp-proxy %h\n"
	require.NoError(t, os.WriteFile(f.sshPath, []byte(earlier), 0o600))

	conn, err := Setup(context.Background(), f.opts)
	var conflict *sshconfig.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Nil(t, conn)
	assert.Equal(t, "ProxyCommand", conflict.Key)

	questions := f.prompts.questions()
	require.Len(t, questions, 1)
	assert.Contains(t, questions[0], "overrides ProxyCommand")

	// The managed block itself was still written; only verification failed.
	raw, err := os.ReadFile(f.sshPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), define.SSHStartToken)
}

func TestSetupDeploymentOverridesApplied(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v2.20.0")
	f.client.sshErr = nil
	f.client.sshResp = api.SSHConfigResponse{
		SSHConfigOptions: map[string]string{"ServerAliveInterval": "5"},
	}
	f.opts.SSHOptions = []string{"LogLevel=DEBUG"}

	conn, err := Setup(context.Background(), f.opts)
	require.NoError(t, err)
	require.NotNil(t, conn)
	defer conn.Close()

	raw, err := os.ReadFile(f.sshPath)
	require.NoError(t, err)
	config := string(raw)
	assert.Contains(t, config, "ServerAliveInterval 5")
	assert.Contains(t, config, "LogLevel DEBUG")
	assert.NotContains(t, config, "LogLevel ERROR")
}
