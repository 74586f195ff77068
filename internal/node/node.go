// Package node defines the uniform node lifecycle contract every
// supervised unit implements (spec §4.3), and the declarative
// NodeDescriptor / opaque NodeHandle types of the data model (spec §3).
// Grounded on manager/runner/node.py's Runnable ABC and Node dataclass,
// generalized from the teacher's pkg/plugin.Plugin interface shape
// (Init/Start/Stop/Health) to the six-operation contract the spec
// requires.
package node

import (
	"context"
	"log/slog"
	"time"

	"station.fm/stationd/internal/backoff"
	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
)

// Id is an alias of control.NodeId: the node package and the control
// package share one routing-address type so nodes and messages never
// need translation at the boundary.
type Id = control.NodeId

// Handle is the opaque token start() returns, carrying what the
// supervisor needs to track a running node without seeing its
// internals (spec §3 NodeHandle).
type Handle interface {
	// StartedAt is the monotonic instant the node was started.
	StartedAt() time.Time
	// PID is the child process id, or 0 for service nodes.
	PID() int
	// IsAlive reports whether the underlying process/task is still
	// running.
	IsAlive() bool
}

// Runnable is the lifecycle contract every node implements (spec
// §4.3). The supervisor calls only these operations; it never inspects
// a node's internals.
type Runnable interface {
	// Start spawns the node's process/task. A nil Handle is a fatal
	// start error: the supervisor requests global shutdown.
	Start(ctx context.Context, logEvent, logOut *slog.Logger) (Handle, error)

	// MarkReady runs the node's readiness probe under ReadyTimeout.
	// Success sets readyEvent; Error/timeout leaves it unset and the
	// node continues without a health watchdog.
	MarkReady(ctx context.Context, readyEvent *latch.Latch, logEvent *slog.Logger) control.Result

	// Check is the health-watchdog probe; Error counts toward
	// HealthFailThreshold.
	Check(ctx context.Context, logEvent *slog.Logger) control.Result

	// Receive handles one routed control message. Exceptions/panics
	// are caught at the supervisor boundary; the result is advisory
	// only.
	Receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result

	// WaitOrShutdown blocks until the node's own exit or shutdownEvent,
	// whichever comes first, cooperating promptly with shutdown. The
	// returned exit code is advisory (supervisor does not distinguish
	// clean exit from crash — spec §4.6 tie-break).
	WaitOrShutdown(ctx context.Context, h Handle, shutdownEvent *latch.Latch, logEvent *slog.Logger) (exitCode *int)

	// Stop is idempotent and must complete within a bounded time; also
	// invoked by the health watchdog on threshold breach.
	Stop(ctx context.Context, h Handle, reason string, logEvent *slog.Logger) error
}

// Tunables are the static per-node knobs of spec §4.3.
type Tunables struct {
	ReadyTimeout        time.Duration
	StopTimeout         time.Duration
	KillTimeout         time.Duration
	HealthInterval      time.Duration // 0 disables the watchdog
	HealthFailThreshold int
	Backoff             backoff.Policy
}

// Descriptor is the declarative, immutable-for-a-run node registration
// (spec §3 NodeDescriptor).
type Descriptor struct {
	ID       Id
	Runnable Runnable
	Parents  map[Id]struct{}
	Disabled bool
	Tunables Tunables
}
