// Package monitor watches a live connection after setup: the network
// status the SSH proxy reports through its status file, and credential
// changes that invalidate the session.
package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"

	"github.com/coder/vscode-coder-sub002/pkg/dialog"
)

// NetworkStatus is what the proxy process periodically writes into its
// status file under the network info directory.
type NetworkStatus struct {
	P2P              bool    `json:"p2p"`
	Latency          float64 `json:"latency"`
	PreferredDERP    string  `json:"preferred_derp"`
	UsingCoderConnect bool   `json:"using_coder_connect"`
}

const defaultPollInterval = 5 * time.Second

// NetworkMonitor polls the network info directory on a fixed interval. The
// proxy names its status file after its own pid; files whose pid no longer
// exists belong to dead proxies and are skipped.
type NetworkMonitor struct {
	dir      string
	interval time.Duration
	reporter dialog.Reporter

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewNetworkMonitor(dir string, reporter dialog.Reporter) *NetworkMonitor {
	return &NetworkMonitor{
		dir:      dir,
		interval: defaultPollInterval,
		reporter: reporter,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling. It returns immediately; Close stops the loop.
func (m *NetworkMonitor) Start(ctx context.Context) {
	m.started = true
	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		var last string
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				status, ok := m.read(ctx)
				if !ok {
					continue
				}
				summary := summarize(status)
				if summary != last {
					m.reporter.Report(summary)
					last = summary
				}
			}
		}
	}()
}

// Close stops the poll loop and waits for it to finish. Safe to call more
// than once.
func (m *NetworkMonitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started {
		<-m.done
	}
}

func (m *NetworkMonitor) read(ctx context.Context) (NetworkStatus, bool) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return NetworkStatus{}, false
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		pid, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 32)
		if err != nil {
			continue
		}
		alive, err := process.PidExistsWithContext(ctx, int32(pid))
		if err != nil || !alive {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = name
			newestTime = info.ModTime()
		}
	}
	if newest == "" {
		return NetworkStatus{}, false
	}

	raw, err := os.ReadFile(filepath.Join(m.dir, newest))
	if err != nil {
		return NetworkStatus{}, false
	}
	var status NetworkStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		logrus.Debugf("malformed network status file %s: %v", newest, err)
		return NetworkStatus{}, false
	}
	return status, true
}

func summarize(status NetworkStatus) string {
	latency := strconv.FormatFloat(status.Latency, 'f', 2, 64) + " ms"
	switch {
	case status.UsingCoderConnect:
		return "Connected via Coder Connect"
	case status.P2P:
		return "Direct connection (" + latency + ")"
	case status.PreferredDERP != "":
		return "Relayed via " + status.PreferredDERP + " (" + latency + ")"
	default:
		return "Relayed connection (" + latency + ")"
	}
}
