// API is a thin service node standing in for the HTTP-facing surface
// (out of scope per spec.md §1: the CLI/HTTP entry point itself is an
// external collaborator). It only acknowledges STATUS messages routed
// to it over the bus; it sends no reply.
package stationnodes

import (
	"context"
	"log/slog"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/svcnode"
)

// API is the thin API-facing service node.
type API struct {
	Deps
	svcnode.Node
}

// NewAPI builds the API service node.
func NewAPI(deps Deps) *API {
	a := &API{Deps: deps}
	a.Node = svcnode.Node{
		GetRun:    func() svcnode.Run { return a.run },
		ReceiveFn: a.receive,
	}
	return a
}

func (a *API) run(ctx context.Context, stopEvent, readyEvent *latch.Latch, log *slog.Logger) {
	readyEvent.Set()
	<-stopEvent.Done()
}

func (a *API) receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	if msg.Action == control.ActionStatus {
		return control.Success("ok")
	}
	return control.Err("unhandled action %s", msg.Action)
}
