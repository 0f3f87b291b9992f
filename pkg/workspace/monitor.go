// Package workspace drives a workspace from whatever state it is in to
// "agent reachable": starting a stopped workspace, waiting out the build,
// selecting an agent, and waiting for it to connect.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coder/vscode-coder-sub002/pkg/api"
	"github.com/coder/vscode-coder-sub002/pkg/dialog"
)

var (
	// ErrBuildFailed reports that the workspace stopped (or failed) again
	// after a start was requested. The caller decides whether to retry.
	ErrBuildFailed = errors.New("workspace build did not reach running")
	// ErrAgentTimeout reports that the selected agent gave up connecting.
	ErrAgentTimeout = errors.New("agent connection timed out")
	// ErrAgentNotFound reports that the requested agent name does not
	// exist on the workspace.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAgentAmbiguous reports that no agent was requested and more than
	// one exists; selection is the caller's to resolve.
	ErrAgentAmbiguous = errors.New("workspace has multiple agents")
	// ErrStreamClosed reports that the snapshot stream ended before the
	// workspace became ready.
	ErrStreamClosed = errors.New("workspace update stream closed")
)

// Monitor runs the readiness flow for one connection attempt. It consumes
// snapshots strictly one at a time; snapshots arriving faster than they are
// processed are coalesced down to the most recent one.
type Monitor struct {
	client   api.Client
	reporter dialog.Reporter
	// agentName pins the agent to wait for; empty means the sole agent.
	agentName string
}

func NewMonitor(client api.Client, reporter dialog.Reporter, agentName string) *Monitor {
	return &Monitor{
		client:    client,
		reporter:  reporter,
		agentName: agentName,
	}
}

// Wait drives the workspace to ready. It takes the initially fetched
// snapshot plus the update stream, and returns the final snapshot and the
// connected agent, or one of the package's sentinel errors. Canceling ctx
// tears down every internal wait.
func (m *Monitor) Wait(ctx context.Context, ws api.Workspace, updates <-chan api.Workspace) (api.Workspace, api.WorkspaceAgent, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	next := coalesce(ctx, updates)

	ws, err := m.waitForBuild(ctx, ws, next)
	if err != nil {
		return ws, api.WorkspaceAgent{}, err
	}

	agent, err := SelectAgent(ws.Agents, m.agentName)
	if err != nil {
		return ws, api.WorkspaceAgent{}, err
	}

	agent, err = m.waitForAgent(ctx, ws, agent.ID, next)
	return ws, agent, err
}

// waitForBuild starts the workspace when it is stopped and then consumes
// snapshots until the build reaches running. A stop after the start request
// counts as a declined or failed build.
func (m *Monitor) waitForBuild(ctx context.Context, ws api.Workspace, next <-chan api.Workspace) (api.Workspace, error) {
	var (
		stopLogs func()
		logsDone <-chan struct{}
	)
	// Follow the log stream of whichever build is current. Stops before
	// returning so no log line is reported after the build phase ends.
	followLogs := func(buildID uuid.UUID) {
		if stopLogs != nil {
			stopLogs()
			<-logsDone
		}
		logCtx, cancel := context.WithCancel(ctx)
		stopLogs = cancel
		logsDone = m.streamBuildLogs(logCtx, buildID)
	}
	defer func() {
		if stopLogs != nil {
			stopLogs()
			<-logsDone
		}
	}()

	started := false
	if ws.LatestBuild.Status == api.BuildStatusStopped {
		build, err := m.startBuild(ctx, ws)
		if err != nil {
			return ws, err
		}
		ws.LatestBuild = build
		started = true
	}
	if ws.LatestBuild.Status != api.BuildStatusRunning {
		followLogs(ws.LatestBuild.ID)
	}

	for {
		switch status := ws.LatestBuild.Status; {
		case status == api.BuildStatusRunning:
			return ws, nil
		case status.Transitional():
			m.reporter.Report(fmt.Sprintf("Waiting for workspace %s/%s (%s)...", ws.OwnerName, ws.Name, status))
		case status == api.BuildStatusStopped && !started:
			build, err := m.startBuild(ctx, ws)
			if err != nil {
				return ws, err
			}
			ws.LatestBuild = build
			started = true
			followLogs(build.ID)
			continue
		default:
			// Stopped a second time, or failed/canceled/deleted.
			return ws, fmt.Errorf("%w: build status %q", ErrBuildFailed, status)
		}

		var err error
		ws, err = recv(ctx, next)
		if err != nil {
			return ws, err
		}
	}
}

func (m *Monitor) startBuild(ctx context.Context, ws api.Workspace) (api.WorkspaceBuild, error) {
	// Templates may mandate their active version; otherwise the workspace
	// restarts on whatever version it last built with.
	versionID := ws.LatestBuild.TemplateVersionID
	if ws.TemplateRequireActiveVersion {
		versionID = ws.TemplateActiveVersionID
	}

	m.reporter.Report(fmt.Sprintf("Starting workspace %s/%s...", ws.OwnerName, ws.Name))
	build, err := m.client.StartWorkspace(ctx, ws.ID, versionID)
	if err != nil {
		return api.WorkspaceBuild{}, fmt.Errorf("start workspace: %w", err)
	}
	return build, nil
}

// streamBuildLogs forwards build output to the progress reporter until ctx
// is canceled. The returned channel closes when the forwarder has fully
// stopped, so callers can guarantee no report is emitted after teardown.
func (m *Monitor) streamBuildLogs(ctx context.Context, buildID uuid.UUID) <-chan struct{} {
	done := make(chan struct{})
	logs, err := m.client.BuildLogsAfter(ctx, buildID)
	if err != nil {
		logrus.Warnf("could not stream build logs: %v", err)
		close(done)
		return done
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case log, ok := <-logs:
				if !ok {
					return
				}
				m.reporter.Report(log.Output)
			}
		}
	}()
	return done
}

// waitForAgent re-evaluates the selected agent on every snapshot until it
// connects or times out. Selection is by ID, so a rename mid-wait cannot
// switch agents.
func (m *Monitor) waitForAgent(ctx context.Context, ws api.Workspace, agentID uuid.UUID, next <-chan api.Workspace) (api.WorkspaceAgent, error) {
	for {
		agent, ok := agentByID(ws.Agents, agentID)
		if !ok {
			return api.WorkspaceAgent{}, fmt.Errorf("%w: agent disappeared from workspace", ErrAgentNotFound)
		}

		switch agent.Status {
		case api.AgentStatusConnected:
			return agent, nil
		case api.AgentStatusTimeout:
			return agent, fmt.Errorf("%w: agent %q", ErrAgentTimeout, agent.Name)
		default:
			m.reporter.Report(fmt.Sprintf("Waiting for agent %s (%s)...", agent.Name, agent.Status))
		}

		var err error
		ws, err = recv(ctx, next)
		if err != nil {
			return api.WorkspaceAgent{}, err
		}
	}
}

// SelectAgent picks the agent named by the authority, or the sole agent
// when none was named. Ambiguity is the caller's to resolve.
func SelectAgent(agents []api.WorkspaceAgent, name string) (api.WorkspaceAgent, error) {
	if name != "" {
		for _, agent := range agents {
			if agent.Name == name {
				return agent, nil
			}
		}
		return api.WorkspaceAgent{}, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}

	switch len(agents) {
	case 0:
		return api.WorkspaceAgent{}, fmt.Errorf("%w: workspace has no agents", ErrAgentNotFound)
	case 1:
		return agents[0], nil
	default:
		names := make([]string, len(agents))
		for i, agent := range agents {
			names[i] = agent.Name
		}
		return api.WorkspaceAgent{}, fmt.Errorf("%w: %v", ErrAgentAmbiguous, names)
	}
}

func agentByID(agents []api.WorkspaceAgent, id uuid.UUID) (api.WorkspaceAgent, bool) {
	for _, agent := range agents {
		if agent.ID == id {
			return agent, true
		}
	}
	return api.WorkspaceAgent{}, false
}

func recv(ctx context.Context, next <-chan api.Workspace) (api.Workspace, error) {
	select {
	case <-ctx.Done():
		return api.Workspace{}, ctx.Err()
	case ws, ok := <-next:
		if !ok {
			return api.Workspace{}, ErrStreamClosed
		}
		return ws, nil
	}
}

// coalesce serializes snapshot delivery with a single pending slot: while
// the consumer is busy, a newer snapshot replaces the waiting one instead
// of queuing behind it. Stale intermediate snapshots are dropped on
// purpose; only the most recent state matters.
func coalesce(ctx context.Context, in <-chan api.Workspace) <-chan api.Workspace {
	out := make(chan api.Workspace, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ws, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- ws:
				default:
					// Slot occupied: evict the stale snapshot. This
					// goroutine is the only sender, so the send after the
					// drain cannot block.
					select {
					case <-out:
					default:
					}
					out <- ws
				}
			}
		}
	}()
	return out
}
