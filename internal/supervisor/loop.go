package supervisor

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/panics"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/node"
	"station.fm/stationd/internal/procnode"
	"station.fm/stationd/internal/svcnode"
)

// withNodeTimeouts attaches the per-node stop/kill timeouts to ctx so
// procnode.Stop/svcnode.Stop can read them without widening the
// node.Runnable interface (both packages define their own unexported
// context keys and public With* setters).
func withNodeTimeouts(ctx context.Context, t node.Tunables) context.Context {
	ctx = procnode.WithStopTimeout(ctx, t.StopTimeout)
	ctx = procnode.WithKillTimeout(ctx, t.KillTimeout)
	ctx = svcnode.WithStopTimeout(ctx, t.StopTimeout)
	return ctx
}

// withHandleIfProcess attaches h to ctx via procnode.WithHandle when h
// is a process-node handle, so a process node's MarkReady/Check probe
// can reach its own *procnode.Handle (e.g. to open a side-channel
// connection) without widening the node.Runnable interface. A no-op
// for service-node handles.
func withHandleIfProcess(ctx context.Context, h node.Handle) context.Context {
	if ph, ok := h.(*procnode.Handle); ok {
		return procnode.WithHandle(ctx, ph)
	}
	return ctx
}

// superviseNode runs the per-node supervision loop of spec §4.6: wait
// for parents, start, mark ready, run the health watchdog, wait for
// exit or shutdown, cascade-stop children, stop, apply backoff, repeat.
func (sv *Supervisor) superviseNode(ctx context.Context, id control.NodeId) {
	desc := sv.descriptors[id]
	readyEvent := sv.readyEvents[id]
	state := sv.backoffStates[id]
	stopCtx := withNodeTimeouts(ctx, desc.Tunables)

	for {
		if !sv.waitParentsReady(ctx, id) {
			return
		}

		state.RegisterStart(time.Now())
		handle, err := desc.Runnable.Start(ctx, sv.logger, sv.logger)
		if err != nil || handle == nil {
			sv.logger.Error("proc.start_failed", "node", id, "error", err)
			sv.markGiveup()
			sv.TriggerShutdown("start_failure:" + string(id))
			return
		}
		sv.setHandle(id, handle)

		readyCtx := withHandleIfProcess(ctx, handle)
		var readyCancel context.CancelFunc
		if desc.Tunables.ReadyTimeout > 0 {
			readyCtx, readyCancel = context.WithTimeout(readyCtx, desc.Tunables.ReadyTimeout)
		}
		result := desc.Runnable.MarkReady(readyCtx, readyEvent, sv.logger)
		if readyCancel != nil {
			readyCancel()
		}

		var healthCancel context.CancelFunc
		if result.Ok() && desc.Tunables.HealthInterval > 0 {
			var healthCtx context.Context
			healthCtx, healthCancel = context.WithCancel(withHandleIfProcess(ctx, handle))
			sv.wg.Add(1)
			go sv.trackedGo(ctx, "health:"+string(id), func() { sv.healthWatchdog(healthCtx, id, handle) })
		}

		desc.Runnable.WaitOrShutdown(stopCtx, handle, sv.shutdownEvent, sv.logger)

		readyEvent.Clear()
		for _, child := range sv.children[id] {
			sv.StopNode(child, string(id)+"_down")
		}

		if healthCancel != nil {
			healthCancel()
		}

		desc.Runnable.Stop(stopCtx, handle, "exit", sv.logger)
		uptime := time.Since(handle.StartedAt())
		sv.clearHandle(id)

		state.ResetIfUptimeGood(uptime)

		if sv.shutdownEvent.IsSet() {
			return
		}
		if state.TooManyRestarts(time.Now()) {
			sv.logger.Error("proc.giveup", "node", id)
			sv.markGiveup()
			sv.TriggerShutdown("giveup:" + string(id))
			return
		}

		select {
		case <-time.After(state.NextDelayWithJitter()):
		case <-sv.shutdownEvent.Done():
			return
		}
	}
}

// waitParentsReady blocks until every parent's ready latch is set, or
// shutdown is triggered, or this node is disabled (spec §4.6
// Parent-readiness wait). Returns true when the node may start and
// false once shutdown is set. A disabled node stays in this wait until
// shutdown and then returns false.
func (sv *Supervisor) waitParentsReady(ctx context.Context, id control.NodeId) bool {
	desc := sv.descriptors[id]
	for {
		if sv.shutdownEvent.IsSet() {
			return false
		}
		if desc.Disabled {
			waitAny(ctx, []<-chan struct{}{sv.shutdownEvent.Done()})
			continue
		}

		allReady := true
		for p := range desc.Parents {
			if !sv.readyEvents[p].IsSet() {
				allReady = false
				break
			}
		}
		if allReady {
			return true
		}

		chans := make([]<-chan struct{}, 0, len(desc.Parents)+2)
		chans = append(chans, sv.shutdownEvent.Done(), sv.kickEvent.Done())
		for p := range desc.Parents {
			chans = append(chans, sv.readyEvents[p].Done())
		}
		waitAny(ctx, chans)
		sv.kickEvent.Clear()
	}
}

// healthWatchdog periodically calls Check while the node is alive,
// stopping the node after health_fail_threshold consecutive failures
// (spec §4.6 Health watchdog).
func (sv *Supervisor) healthWatchdog(ctx context.Context, id control.NodeId, h node.Handle) {
	desc := sv.descriptors[id]
	fails := 0
	ticker := time.NewTicker(desc.Tunables.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.IsAlive() {
				return
			}
			result := desc.Runnable.Check(ctx, sv.logger)
			if result.Ok() {
				fails = 0
				continue
			}
			fails++
			if fails >= desc.Tunables.HealthFailThreshold {
				sv.logger.Warn("proc.health_failed", "node", id, "fails", fails)
				stopCtx := withNodeTimeouts(ctx, desc.Tunables)
				desc.Runnable.Stop(stopCtx, h, "healthcheck_failed", sv.logger)
				return
			}
		}
	}
}

// dispatchLoop is the supervisor's control-dispatch main loop (spec
// §4.6 Control dispatch): races bus.Receive against shutdown, routing
// each message to its destination node's receive, isolating panics so
// one bad handler never blocks another node's messages.
func (sv *Supervisor) dispatchLoop(ctx context.Context) {
	for {
		if sv.shutdownEvent.IsSet() {
			return
		}
		msg, open, err := sv.bus.Receive(ctx)
		if err != nil {
			return
		}
		if !open {
			sv.logger.Error("bus.closed")
			sv.TriggerShutdown("bus_closed")
			return
		}

		if msg.Node == nil {
			sv.logger.Warn("bus.malformed_message", "action", msg.Action)
			continue
		}
		id := *msg.Node

		switch msg.Action {
		case control.ActionStopAll:
			sv.TriggerShutdown("control_stop_all")
			continue
		case control.ActionStopNode:
			sv.StopNode(id, "control_stop")
			continue
		}

		desc, ok := sv.descriptors[id]
		if !ok {
			sv.logger.Warn("bus.unknown_node", "node", id)
			continue
		}
		sv.dispatchOne(ctx, desc, msg)
	}
}

func (sv *Supervisor) dispatchOne(ctx context.Context, desc *node.Descriptor, msg control.Message) {
	var catcher panics.Catcher
	catcher.Try(func() {
		result := desc.Runnable.Receive(ctx, sv.readyEvents[desc.ID], msg, sv.logger)
		if !result.Ok() {
			sv.logger.Debug("node.receive_error", "node", desc.ID, "action", msg.Action, "correlation_id", msg.CorrelationID, "reason", result.Message())
		}
	})
	if r := catcher.Recovered(); r != nil {
		sv.logger.Error("node.receive_panic", "node", desc.ID, "action", msg.Action, "panic", r.Value)
	}
}

// finalStopSweep stops every still-running node in reverse topological
// order once shutdown has drained (spec §4.6 Shutdown, §8 invariant 4).
// Idempotent: each per-node loop has typically already stopped its own
// handle by the time this runs; Stop tolerates being called again.
func (sv *Supervisor) finalStopSweep(ctx context.Context) {
	for i := len(sv.topoOrder) - 1; i >= 0; i-- {
		id := sv.topoOrder[i]
		h := sv.getHandle(id)
		if h == nil {
			continue
		}
		desc := sv.descriptors[id]
		stopCtx := withNodeTimeouts(ctx, desc.Tunables)
		desc.Runnable.Stop(stopCtx, h, "shutdown_sweep", sv.logger)
		sv.clearHandle(id)
	}
}
