// Package api is the workspace API collaborator: a thin typed client for
// the deployment's REST surface plus SSE streams for workspace updates and
// build logs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionTokenHeader = "Coder-Session-Token"

var (
	// ErrNotFound is returned when the requested workspace (or other
	// resource) does not exist, typically because it was deleted.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized is returned when the session token is missing,
	// expired, or revoked.
	ErrUnauthorized = errors.New("not authenticated")
)

// Client is the surface the connection flow needs from a deployment.
type Client interface {
	BuildInfo(ctx context.Context) (BuildInfo, error)
	WorkspaceByOwnerAndName(ctx context.Context, owner, name string) (Workspace, error)
	Workspace(ctx context.Context, id uuid.UUID) (Workspace, error)
	StartWorkspace(ctx context.Context, id, templateVersionID uuid.UUID) (WorkspaceBuild, error)
	SSHConfiguration(ctx context.Context) (SSHConfigResponse, error)
	// WatchWorkspace streams workspace snapshots until ctx is canceled or
	// the stream ends; the returned channel is closed afterwards.
	WatchWorkspace(ctx context.Context, id uuid.UUID) (<-chan Workspace, error)
	// BuildLogsAfter streams build log lines the same way.
	BuildLogsAfter(ctx context.Context, buildID uuid.UUID) (<-chan BuildLog, error)
}

// New creates a Client for the deployment at baseURL authenticating with
// the given session token.
func New(baseURL, token string) (Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid deployment URL %q: %w", baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid deployment URL %q: scheme must be http or https", baseURL)
	}
	return &httpClient{
		base:  parsed,
		token: token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type httpClient struct {
	base   *url.URL
	token  string
	client *http.Client
}

func (c *httpClient) BuildInfo(ctx context.Context) (BuildInfo, error) {
	var info BuildInfo
	err := c.get(ctx, "/api/v2/buildinfo", &info)
	return info, err
}

func (c *httpClient) WorkspaceByOwnerAndName(ctx context.Context, owner, name string) (Workspace, error) {
	var ws Workspace
	path := fmt.Sprintf("/api/v2/users/%s/workspace/%s", url.PathEscape(owner), url.PathEscape(name))
	err := c.get(ctx, path, &ws)
	return ws, err
}

func (c *httpClient) Workspace(ctx context.Context, id uuid.UUID) (Workspace, error) {
	var ws Workspace
	err := c.get(ctx, "/api/v2/workspaces/"+id.String(), &ws)
	return ws, err
}

func (c *httpClient) StartWorkspace(ctx context.Context, id, templateVersionID uuid.UUID) (WorkspaceBuild, error) {
	var build WorkspaceBuild
	body := map[string]any{
		"transition":          "start",
		"template_version_id": templateVersionID,
	}
	err := c.post(ctx, "/api/v2/workspaces/"+id.String()+"/builds", body, &build)
	return build, err
}

func (c *httpClient) SSHConfiguration(ctx context.Context) (SSHConfigResponse, error) {
	var resp SSHConfigResponse
	err := c.get(ctx, "/api/v2/deployment/ssh", &resp)
	return resp, err
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *httpClient) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *httpClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set(sessionTokenHeader, c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		var apiErr struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	default:
		return nil
	}
}
