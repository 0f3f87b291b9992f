package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingReporter) Report(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingReporter) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func writeStatus(t *testing.T, dir string, pid int, status NetworkStatus) {
	t.Helper()
	raw, err := json.Marshal(status)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, strconv.Itoa(pid)+".json"), raw, 0o600))
}

func TestNetworkMonitorReportsChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Use our own pid so the liveness check passes.
	writeStatus(t, dir, os.Getpid(), NetworkStatus{P2P: true, Latency: 3.5})

	reporter := &recordingReporter{}
	m := NewNetworkMonitor(dir, reporter)
	m.interval = 10 * time.Millisecond
	m.Start(context.Background())
	defer m.Close()

	require.Eventually(t, func() bool {
		return len(reporter.all()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "Direct connection (3.50 ms)", reporter.all()[0])

	// An unchanged status is not re-reported.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, reporter.all(), 1)
}

func TestNetworkMonitorSkipsDeadProxies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Pid 1 is never our proxy; an improbable pid stands in for a dead one.
	writeStatus(t, dir, 1<<30, NetworkStatus{P2P: true, Latency: 1})

	reporter := &recordingReporter{}
	m := NewNetworkMonitor(dir, reporter)
	m.interval = 10 * time.Millisecond
	m.Start(context.Background())

	time.Sleep(100 * time.Millisecond)
	m.Close()

	assert.Empty(t, reporter.all())
}

func TestNetworkMonitorCloseBeforeStart(t *testing.T) {
	t.Parallel()

	m := NewNetworkMonitor(t.TempDir(), &recordingReporter{})
	m.Close()
	m.Close()
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Connected via Coder Connect", summarize(NetworkStatus{UsingCoderConnect: true}))
	assert.Equal(t, "Direct connection (1.00 ms)", summarize(NetworkStatus{P2P: true, Latency: 1}))
	assert.Equal(t, "Relayed via fra (20.00 ms)", summarize(NetworkStatus{PreferredDERP: "fra", Latency: 20}))
	assert.Equal(t, "Relayed connection (20.00 ms)", summarize(NetworkStatus{Latency: 20}))
}
