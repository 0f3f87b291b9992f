package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmaxmax/go-sse"
)

// WatchWorkspace subscribes to the workspace's server-sent event stream and
// decodes each event into a fresh snapshot. The returned channel is closed
// when the stream ends or ctx is canceled; late events after cancellation
// are dropped, never delivered.
func (c *httpClient) WatchWorkspace(ctx context.Context, id uuid.UUID) (<-chan Workspace, error) {
	return sseStream(ctx, c, "/api/v2/workspaces/"+id.String()+"/watch", func(e sse.Event) (Workspace, bool) {
		var ws Workspace
		if err := json.Unmarshal([]byte(e.Data), &ws); err != nil {
			logrus.Warnf("dropping malformed workspace event: %v", err)
			return Workspace{}, false
		}
		return ws, true
	})
}

// BuildLogsAfter follows the build's log stream from the beginning of the
// build until it completes or ctx is canceled.
func (c *httpClient) BuildLogsAfter(ctx context.Context, buildID uuid.UUID) (<-chan BuildLog, error) {
	return sseStream(ctx, c, "/api/v2/workspacebuilds/"+buildID.String()+"/logs?follow=true", func(e sse.Event) (BuildLog, bool) {
		var log BuildLog
		if err := json.Unmarshal([]byte(e.Data), &log); err != nil {
			// Plain-text log lines are forwarded as-is.
			return BuildLog{Output: e.Data}, true
		}
		return log, true
	})
}

func sseStream[T any](ctx context.Context, c *httpClient, path string, decode func(sse.Event) (T, bool)) (<-chan T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(sessionTokenHeader, c.token)

	conn := sse.NewConnection(req)
	out := make(chan T)

	unsubscribe := conn.SubscribeToAll(func(e sse.Event) {
		value, ok := decode(e)
		if !ok {
			return
		}
		select {
		case out <- value:
		case <-ctx.Done():
		}
	})

	go func() {
		defer close(out)
		defer unsubscribe()
		if err := conn.Connect(); err != nil && ctx.Err() == nil {
			logrus.Warnf("event stream %s ended: %v", path, err)
		}
	}()

	return out, nil
}
