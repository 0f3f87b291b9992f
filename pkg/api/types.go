package api

import (
	"github.com/google/uuid"
)

// BuildStatus is the lifecycle state of a workspace's latest build.
type BuildStatus string

const (
	BuildStatusPending   BuildStatus = "pending"
	BuildStatusStarting  BuildStatus = "starting"
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusStopping  BuildStatus = "stopping"
	BuildStatusStopped   BuildStatus = "stopped"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusCanceling BuildStatus = "canceling"
	BuildStatusCanceled  BuildStatus = "canceled"
	BuildStatusDeleting  BuildStatus = "deleting"
	BuildStatusDeleted   BuildStatus = "deleted"
)

// Transitional reports whether the build is still moving between states.
func (s BuildStatus) Transitional() bool {
	switch s {
	case BuildStatusPending, BuildStatusStarting, BuildStatusStopping:
		return true
	default:
		return false
	}
}

// AgentStatus is the connection state of a workspace agent.
type AgentStatus string

const (
	AgentStatusConnecting   AgentStatus = "connecting"
	AgentStatusConnected    AgentStatus = "connected"
	AgentStatusDisconnected AgentStatus = "disconnected"
	AgentStatusTimeout      AgentStatus = "timeout"
)

// Workspace is one snapshot of a workspace as reported by the deployment.
// Snapshots are read-only to consumers; fresh state arrives as a new value
// on the watch stream.
type Workspace struct {
	ID                           uuid.UUID        `json:"id"`
	OwnerName                    string           `json:"owner_name"`
	Name                         string           `json:"name"`
	TemplateActiveVersionID      uuid.UUID        `json:"template_active_version_id"`
	TemplateRequireActiveVersion bool             `json:"template_require_active_version"`
	LatestBuild                  WorkspaceBuild   `json:"latest_build"`
	Agents                       []WorkspaceAgent `json:"agents"`
}

type WorkspaceBuild struct {
	ID                uuid.UUID   `json:"id"`
	Status            BuildStatus `json:"status"`
	TemplateVersionID uuid.UUID   `json:"template_version_id"`
}

type WorkspaceAgent struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Status          AgentStatus `json:"status"`
	OperatingSystem string      `json:"operating_system"`
}

// BuildInfo is the deployment's self-reported build metadata.
type BuildInfo struct {
	Version string `json:"version"`
}

// SSHConfigResponse carries the deployment's SSH configuration policy:
// a hostname prefix override and directive overrides to fold into the
// managed block.
type SSHConfigResponse struct {
	HostnamePrefix   string            `json:"hostname_prefix"`
	SSHConfigOptions map[string]string `json:"ssh_config_options"`
}

// BuildLog is one line of build output.
type BuildLog struct {
	Output string `json:"output"`
}
