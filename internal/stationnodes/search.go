// Search is the search crawler service node. Grounded on
// manager/search/search_service.py — YouTube search heuristics
// themselves are out of scope per spec.md §1; only the
// REINDEX/CLEAR_LRU maintenance verbs are wired.
package stationnodes

import (
	"context"
	"log/slog"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/svcnode"
)

// Search is the search-crawler service node.
type Search struct {
	Deps
	svcnode.Node
}

// NewSearch builds the Search service node.
func NewSearch(deps Deps) *Search {
	s := &Search{Deps: deps}
	s.Node = svcnode.Node{
		GetRun:    func() svcnode.Run { return s.run },
		ReceiveFn: s.receive,
	}
	return s
}

func (s *Search) run(ctx context.Context, stopEvent, readyEvent *latch.Latch, log *slog.Logger) {
	readyEvent.Set()
	<-stopEvent.Done()
}

func (s *Search) receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	switch msg.Action {
	case control.ActionReindex, control.ActionClearLRU:
		return control.Success("ack")
	default:
		return control.Err("unhandled action %s", msg.Action)
	}
}
