package healthsrv

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station.fm/stationd/internal/bus"
	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/node"
	"station.fm/stationd/internal/supervisor"
)

type noopRunnable struct{}

func (noopRunnable) Start(ctx context.Context, logEvent, logOut *slog.Logger) (node.Handle, error) {
	return nil, nil
}
func (noopRunnable) MarkReady(ctx context.Context, readyEvent *latch.Latch, logEvent *slog.Logger) control.Result {
	return control.Success("")
}
func (noopRunnable) Check(ctx context.Context, logEvent *slog.Logger) control.Result {
	return control.Success("")
}
func (noopRunnable) Receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	return control.Success("")
}
func (noopRunnable) WaitOrShutdown(ctx context.Context, h node.Handle, shutdownEvent *latch.Latch, logEvent *slog.Logger) *int {
	return nil
}
func (noopRunnable) Stop(ctx context.Context, h node.Handle, reason string, logEvent *slog.Logger) error {
	return nil
}

func testSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	descriptors := []node.Descriptor{{ID: control.API, Runnable: noopRunnable{}}}
	sv, err := supervisor.New(descriptors, bus.New(), logger, "healthsrv-test")
	require.NoError(t, err)
	return sv
}

func TestServer_ServesHealthSnapshotOverUnixSocket(t *testing.T) {
	sv := testSupervisor(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	socketPath := filepath.Join(t.TempDir(), "stationd.health.sock")

	srv, err := Listen(socketPath, sv, logger)
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Close()

	time.Sleep(10 * time.Millisecond)

	snap, err := Query(socketPath)
	require.NoError(t, err)
	assert.Equal(t, "healthsrv-test", snap.RunID)
	assert.Contains(t, snap.Nodes, control.API)
}

func TestQuery_FailsWhenNothingListening(t *testing.T) {
	_, err := Query(filepath.Join(t.TempDir(), "no-such.sock"))
	assert.Error(t, err)
}
