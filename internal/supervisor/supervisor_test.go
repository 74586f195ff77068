package supervisor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station.fm/stationd/internal/bus"
	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/node"
)

// noopRunnable satisfies node.Runnable without ever starting anything;
// useful for exercising graph construction/toposort in isolation.
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

func desc(id control.NodeId, parents ...control.NodeId) node.Descriptor {
	p := make(map[control.NodeId]struct{}, len(parents))
	for _, parent := range parents {
		p[parent] = struct{}{}
	}
	return node.Descriptor{ID: id, Runnable: noopRunnable{}, Parents: p}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestToposort_DeterministicTieBreak(t *testing.T) {
	byID := map[control.NodeId]*node.Descriptor{}
	for _, d := range []node.Descriptor{
		desc(control.HLS, control.LiquidSoap),
		desc(control.LiquidSoap),
		desc(control.API, control.LiquidSoap),
		desc(control.NowPlaying, control.LiquidSoap),
	} {
		d := d
		byID[d.ID] = &d
	}

	order, err := toposort(byID)
	require.NoError(t, err)
	require.Len(t, order, 4)
	assert.Equal(t, control.LiquidSoap, order[0])
	// Children of LiquidSoap become ready simultaneously; tie-break is
	// alphabetical NodeId order.
	assert.Equal(t, []control.NodeId{control.API, control.HLS, control.NowPlaying}, order[1:])
}

func TestToposort_RejectsCycle(t *testing.T) {
	byID := map[control.NodeId]*node.Descriptor{}
	for _, d := range []node.Descriptor{
		desc(control.LiquidSoap, control.HLS),
		desc(control.HLS, control.LiquidSoap),
	} {
		d := d
		byID[d.ID] = &d
	}

	_, err := toposort(byID)
	assert.Error(t, err)
}

func TestNew_RejectsUnknownParent(t *testing.T) {
	// DB is never declared in descriptors, so it's an unknown parent.
	descriptors := []node.Descriptor{desc(control.HLS, control.DB)}

	_, err := New(descriptors, bus.New(), testLogger(), "test")
	assert.Error(t, err)
}

func TestNew_RejectsDuplicateID(t *testing.T) {
	descriptors := []node.Descriptor{
		desc(control.LiquidSoap),
		desc(control.LiquidSoap),
	}
	_, err := New(descriptors, bus.New(), testLogger(), "test")
	assert.Error(t, err)
}

func TestNew_BuildsChildrenAndTopoOrder(t *testing.T) {
	descriptors := []node.Descriptor{
		desc(control.LiquidSoap),
		desc(control.HLS, control.LiquidSoap),
	}
	sv, err := New(descriptors, bus.New(), testLogger(), "test")
	require.NoError(t, err)
	assert.Equal(t, []control.NodeId{control.HLS}, sv.children[control.LiquidSoap])
	assert.Equal(t, []control.NodeId{control.LiquidSoap, control.HLS}, sv.topoOrder)
}

func TestStopNode_ClearsReadyLatchEvenWithoutHandle(t *testing.T) {
	descriptors := []node.Descriptor{desc(control.LiquidSoap)}
	sv, err := New(descriptors, bus.New(), testLogger(), "test")
	require.NoError(t, err)

	sv.readyEvents[control.LiquidSoap].Set()
	sv.StopNode(control.LiquidSoap, "test")
	assert.False(t, sv.readyEvents[control.LiquidSoap].IsSet())
}

func TestTriggerShutdown_IsIdempotentAndSetsLatches(t *testing.T) {
	descriptors := []node.Descriptor{desc(control.LiquidSoap)}
	sv, err := New(descriptors, bus.New(), testLogger(), "test")
	require.NoError(t, err)

	sv.TriggerShutdown("first")
	sv.TriggerShutdown("second")

	assert.True(t, sv.shutdownEvent.IsSet())
	assert.Equal(t, "first", sv.shutdownReason)
}

func TestRun_ExitsPromptlyOnShutdownWithIdleBus(t *testing.T) {
	// Disabled, so the node never calls noopRunnable.Start (whose nil
	// handle would end the run as a start failure) and only shutdown
	// ends the run.
	d := desc(control.LiquidSoap)
	d.Disabled = true
	descriptors := []node.Descriptor{d}
	sv, err := New(descriptors, bus.New(), testLogger(), "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sv.Run(ctx) }()

	// Give the supervision/dispatch goroutines a moment to start, then
	// shut down with the bus sitting idle.
	time.Sleep(10 * time.Millisecond)
	sv.TriggerShutdown("test_shutdown")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after shutdown with an idle bus")
	}
}

func TestWaitAny_ReturnsOnFirstClosedChannel(t *testing.T) {
	a := make(chan struct{})
	b := make(chan struct{})
	close(b)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		waitAny(ctx, []<-chan struct{}{a, b})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitAny did not return on already-closed channel")
	}
}
