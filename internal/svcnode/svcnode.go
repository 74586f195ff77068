// Package svcnode implements the service-backed node variant (spec
// §4.5): a long-running in-process worker with an internal stop latch
// and an external ready latch. Grounded on
// manager/runner/service_runnable.py (ServiceRunnable).
package svcnode

import (
	"context"
	"log/slog"
	"time"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/node"
)

// Run is the worker task every service node schedules from Start. It
// must: do one-time setup then set readyEvent; do useful work until
// stopEvent is set; on exit, release resources and return (spec §4.5).
type Run func(ctx context.Context, stopEvent, readyEvent *latch.Latch, log *slog.Logger)

// Handle is the service node's NodeHandle implementation. PID is
// always 0 (spec §3: "pid nullable - null for service nodes").
type Handle struct {
	started time.Time
	done    chan struct{}
}

func (h *Handle) StartedAt() time.Time { return h.started }
func (h *Handle) PID() int             { return 0 }
func (h *Handle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Node is a concrete node.Runnable backed by a goroutine instead of an
// OS process.
type Node struct {
	// GetRun returns the worker task to schedule from Start. A fresh
	// function is requested per start so per-attempt state is never
	// reused across restarts (mirrors
	// ServiceRunnable._get_service_run()).
	GetRun func() Run

	// ReceiveFn / CheckFn implement the node-specific parts of the
	// contract; concrete nodes in internal/stationnodes supply these.
	ReceiveFn func(ctx context.Context, readyEvent *latch.Latch, msg control.Message, log *slog.Logger) control.Result
	CheckFn   func(ctx context.Context, readyEvent *latch.Latch, log *slog.Logger) control.Result

	stopEvent  *latch.Latch
	readyExt   *latch.Latch
}

var _ node.Runnable = (*Node)(nil)

// Start creates the stop/ready latches and schedules the worker task
// (spec §4.5).
func (n *Node) Start(ctx context.Context, logEvent, logOut *slog.Logger) (node.Handle, error) {
	n.stopEvent = latch.New()
	n.readyExt = latch.New()

	h := &Handle{started: time.Now(), done: make(chan struct{})}
	run := n.GetRun()

	go func() {
		defer close(h.done)
		run(ctx, n.stopEvent, n.readyExt, logEvent)
	}()

	return h, nil
}

// MarkReady waits on the external ready latch set by the worker task,
// bounded by the caller's context deadline (ReadyTimeout).
func (n *Node) MarkReady(ctx context.Context, readyEvent *latch.Latch, logEvent *slog.Logger) control.Result {
	if err := n.readyExt.Wait(ctx); err != nil {
		return control.Err("ready timeout: %v", err)
	}
	readyEvent.Set()
	return control.Success("ready")
}

// Check delegates to CheckFn if present, else reports Success without
// probing the task (the supervisor's health watchdog checks the
// handle's IsAlive itself before each Check).
func (n *Node) Check(ctx context.Context, logEvent *slog.Logger) control.Result {
	if n.CheckFn != nil {
		return n.CheckFn(ctx, n.readyExt, logEvent)
	}
	return control.Success("alive")
}

// Receive delegates to ReceiveFn if present.
func (n *Node) Receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	if n.ReceiveFn != nil {
		return n.ReceiveFn(ctx, readyEvent, msg, logEvent)
	}
	return control.Err("unhandled action %s", msg.Action)
}

// WaitOrShutdown races the worker task against shutdownEvent; on
// shutdown it calls Stop before returning (spec §4.5).
func (n *Node) WaitOrShutdown(ctx context.Context, hAny node.Handle, shutdownEvent *latch.Latch, logEvent *slog.Logger) *int {
	h := hAny.(*Handle)
	select {
	case <-h.done:
		zero := 0
		return &zero
	case <-shutdownEvent.Done():
		if err := n.Stop(ctx, h, "shutdown", logEvent); err != nil {
			logEvent.Warn("svc.stop_error", "error", err)
		}
		return nil
	}
}

// Stop sets the stop latch, awaits task completion up to stop_timeout
// (read from ctx, see WithStopTimeout), then gives up waiting as a last
// resort — the goroutine is left to exit on its own. Idempotent and
// tolerant of being called while the task is already exiting from
// another cause (spec §4.5).
func (n *Node) Stop(ctx context.Context, hAny node.Handle, reason string, logEvent *slog.Logger) error {
	h := hAny.(*Handle)
	n.stopEvent.Set()

	timeout := 15 * time.Second
	if d, ok := ctx.Value(stopTimeoutCtxKey{}).(time.Duration); ok {
		timeout = d
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		logEvent.Warn("svc.stop_timeout", "reason", reason)
		return nil
	}
}

type stopTimeoutCtxKey struct{}

// WithStopTimeout lets the supervisor pass the per-node stop_timeout
// into Stop without widening the node.Runnable interface.
func WithStopTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, stopTimeoutCtxKey{}, d)
}
