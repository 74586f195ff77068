// NowPlaying tracks the currently playing track for external consumers
// (e.g. a now-playing HTTP widget, out of scope per spec.md §1).
// Grounded on manager/prefetch/prefetch.py's sibling now-playing
// bookkeeping referenced from the coordinator's queue view.
package stationnodes

import (
	"context"
	"log/slog"
	"sync"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/svcnode"
)

// NowPlaying is a thin service node that records the head of any
// QUEUE_RESPONSE routed to it as the current track, readable through
// Current(). STATUS is acknowledged with "ok" and does not carry the
// track.
type NowPlaying struct {
	Deps
	svcnode.Node

	mu      sync.Mutex
	current string
}

// NewNowPlaying builds the NowPlaying service node.
func NewNowPlaying(deps Deps) *NowPlaying {
	np := &NowPlaying{Deps: deps}
	np.Node = svcnode.Node{
		GetRun:    func() svcnode.Run { return np.run },
		ReceiveFn: np.receive,
	}
	return np
}

func (np *NowPlaying) run(ctx context.Context, stopEvent, readyEvent *latch.Latch, log *slog.Logger) {
	readyEvent.Set()
	<-stopEvent.Done()
}

func (np *NowPlaying) receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	switch msg.Action {
	case control.ActionQueueResponse:
		lines, _ := dataField(msg.Payload, "queue")
		if rows, ok := lines.([]string); ok && len(rows) > 0 {
			np.mu.Lock()
			np.current = rows[0]
			np.mu.Unlock()
		}
		return control.Success("updated")

	case control.ActionStatus:
		return control.Success("ok")

	default:
		return control.Err("unhandled action %s", msg.Action)
	}
}

// Current returns the last-known now-playing track, for an out-of-band
// reader in the same process.
func (np *NowPlaying) Current() string {
	np.mu.Lock()
	defer np.mu.Unlock()
	return np.current
}
