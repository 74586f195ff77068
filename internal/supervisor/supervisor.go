// Package supervisor implements the DAG runner (spec §4.6): per-node
// supervision loops, parent-readiness gating, dependent-cascade stop,
// health watchdog, control dispatch, and orderly shutdown. Grounded
// line-for-line on manager/runner/runner.py's Runner (_toposort,
// _supervise_node, _wait_parents_ready, _health_watchdog,
// _graceful_stop_all, _cancel_all_tasks, and the control-dispatch main
// loop).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"station.fm/stationd/internal/backoff"
	"station.fm/stationd/internal/bus"
	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/node"
)

// Supervisor is the DAG runner (C6). One instance per run.
type Supervisor struct {
	logger *slog.Logger
	bus    *bus.Bus
	runID  string

	descriptors map[control.NodeId]*node.Descriptor
	children    map[control.NodeId][]control.NodeId
	topoOrder   []control.NodeId

	readyEvents   map[control.NodeId]*latch.Latch
	backoffStates map[control.NodeId]*backoff.State

	shutdownEvent *latch.Latch
	kickEvent     *latch.Latch

	mu          sync.Mutex
	handles     map[control.NodeId]node.Handle
	startedAt   map[control.NodeId]time.Time
	giveup      bool
	shutdownOnce sync.Once
	shutdownReason string

	wg sync.WaitGroup
}

// New constructs a Supervisor from descriptors, validating the graph
// per spec §4.6 Construction & validation: duplicate IDs, unknown
// parents, and cycles all fail construction.
func New(descriptors []node.Descriptor, b *bus.Bus, logger *slog.Logger, runID string) (*Supervisor, error) {
	byID := make(map[control.NodeId]*node.Descriptor, len(descriptors))
	for i := range descriptors {
		d := &descriptors[i]
		if _, dup := byID[d.ID]; dup {
			return nil, fmt.Errorf("supervisor: duplicate node id %s", d.ID)
		}
		byID[d.ID] = d
	}
	for _, d := range byID {
		for p := range d.Parents {
			if _, ok := byID[p]; !ok {
				return nil, fmt.Errorf("supervisor: node %s has unknown parent %s", d.ID, p)
			}
		}
	}

	order, err := toposort(byID)
	if err != nil {
		return nil, err
	}

	children := make(map[control.NodeId][]control.NodeId)
	for _, d := range byID {
		for p := range d.Parents {
			children[p] = append(children[p], d.ID)
		}
	}
	for id := range children {
		sort.Slice(children[id], func(i, j int) bool { return children[id][i] < children[id][j] })
	}

	sv := &Supervisor{
		logger:        logger,
		bus:           b,
		runID:         runID,
		descriptors:   byID,
		children:      children,
		topoOrder:     order,
		readyEvents:   make(map[control.NodeId]*latch.Latch, len(byID)),
		backoffStates: make(map[control.NodeId]*backoff.State, len(byID)),
		shutdownEvent: latch.New(),
		kickEvent:     latch.New(),
		handles:       make(map[control.NodeId]node.Handle, len(byID)),
		startedAt:     make(map[control.NodeId]time.Time, len(byID)),
	}
	for id, d := range byID {
		sv.readyEvents[id] = latch.New()
		sv.backoffStates[id] = backoff.NewState(d.Tunables.Backoff)
	}
	return sv, nil
}

// toposort computes a deterministic topological order via Kahn's
// algorithm, tie-broken by NodeId, rejecting cycles (spec §8
// round-trip: "Toposort on any acyclic graph is stable w.r.t.
// tie-breaks by NodeId").
func toposort(byID map[control.NodeId]*node.Descriptor) ([]control.NodeId, error) {
	indegree := make(map[control.NodeId]int, len(byID))
	for id := range byID {
		indegree[id] = 0
	}
	for _, d := range byID {
		for range d.Parents {
			indegree[d.ID]++
		}
	}

	var ready []control.NodeId
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	dependents := make(map[control.NodeId][]control.NodeId)
	for _, d := range byID {
		for p := range d.Parents {
			dependents[p] = append(dependents[p], d.ID)
		}
	}
	for id := range dependents {
		sort.Slice(dependents[id], func(i, j int) bool { return dependents[id][i] < dependents[id][j] })
	}

	var order []control.NodeId
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, dep := range dependents[n] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	if len(order) != len(byID) {
		return nil, fmt.Errorf("supervisor: dependency graph has a cycle")
	}
	return order, nil
}

func insertSorted(xs []control.NodeId, x control.NodeId) []control.NodeId {
	i := sort.Search(len(xs), func(i int) bool { return xs[i] >= x })
	xs = append(xs, "")
	copy(xs[i+1:], xs[i:])
	xs[i] = x
	return xs
}

// Run starts every node's supervision loop and the control dispatch
// loop, installs OS signal handlers, and blocks until shutdown has been
// fully drained (spec §4.6 Shutdown). Returns a non-nil error only when
// the run ended in a breaker giveup or a node start failure, so the CLI
// can translate it to a non-zero exit code (spec §6 Exit codes).
func (sv *Supervisor) Run(ctx context.Context) error {
	stopSignals := installSignalHandlers(sv)
	defer stopSignals()

	for _, id := range sv.topoOrder {
		id := id
		sv.wg.Add(1)
		go sv.trackedGo(ctx, fmt.Sprintf("supervise:%s", id), func() { sv.superviseNode(ctx, id) })
	}

	// dispatchLoop parks in bus.Receive, which only unblocks on a
	// message or ctx cancellation. TriggerShutdown only sets latches, so
	// give dispatchLoop its own context tied to shutdownEvent — without
	// this an idle bus at shutdown never wakes the dispatch goroutine
	// and wg.Wait below hangs forever (spec §8 invariant 8 / S5).
	dispatchCtx, dispatchCancel := context.WithCancel(ctx)
	defer dispatchCancel()
	go func() {
		select {
		case <-sv.shutdownEvent.Done():
			dispatchCancel()
		case <-dispatchCtx.Done():
		}
	}()

	sv.wg.Add(1)
	go sv.trackedGo(ctx, "dispatch", func() { sv.dispatchLoop(dispatchCtx) })

	<-sv.shutdownEvent.Done()
	sv.wg.Wait()

	sv.finalStopSweep(ctx)

	if sv.giveup {
		return fmt.Errorf("supervisor: giveup (%s)", sv.shutdownReason)
	}
	return nil
}

// trackedGo runs f under a panics.Catcher so a node's bug can never
// crash the supervisor process; the recovered panic is logged with the
// task label for context, mirroring the source's done-callback
// exception logging (spec §7 last row).
func (sv *Supervisor) trackedGo(ctx context.Context, label string, f func()) {
	defer sv.wg.Done()
	var catcher panics.Catcher
	catcher.Try(f)
	if r := catcher.Recovered(); r != nil {
		sv.logger.Error("supervisor.task_panic", "task", label, "panic", r.Value, "stack", string(r.Stack))
	}
}

// TriggerShutdown sets the shutdown and kick latches. Idempotent;
// records reason for the first caller only.
func (sv *Supervisor) TriggerShutdown(reason string) {
	sv.shutdownOnce.Do(func() {
		sv.shutdownReason = reason
		sv.logger.Info("supervisor.shutdown", "reason", reason)
	})
	sv.shutdownEvent.Set()
	sv.kickEvent.Set()
}

func (sv *Supervisor) markGiveup() {
	sv.mu.Lock()
	sv.giveup = true
	sv.mu.Unlock()
}

func (sv *Supervisor) setHandle(id control.NodeId, h node.Handle) {
	sv.mu.Lock()
	sv.handles[id] = h
	sv.startedAt[id] = h.StartedAt()
	sv.mu.Unlock()
}

func (sv *Supervisor) clearHandle(id control.NodeId) {
	sv.mu.Lock()
	delete(sv.handles, id)
	sv.mu.Unlock()
}

func (sv *Supervisor) getHandle(id control.NodeId) node.Handle {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.handles[id]
}

// StopNode stops a single node directly, outside of its own
// supervision-loop iteration: used both for the STOP_NODE control
// action and for cascading a parent's exit to its children (spec §4.6
// "_stop_node(child) clears the child's ready latch..."). The node's
// own wait_or_shutdown call observes the resulting exit and the
// supervision loop proceeds through its normal per-iteration cleanup.
func (sv *Supervisor) StopNode(id control.NodeId, reason string) {
	desc, ok := sv.descriptors[id]
	if !ok {
		sv.logger.Warn("supervisor.stop_unknown_node", "node", id)
		return
	}
	sv.readyEvents[id].Clear()

	h := sv.getHandle(id)
	if h == nil {
		return
	}
	stopCtx := withNodeTimeouts(context.Background(), desc.Tunables)
	if err := desc.Runnable.Stop(stopCtx, h, reason, sv.logger); err != nil {
		sv.logger.Warn("supervisor.stop_node_error", "node", id, "error", err)
	}
}

// waitAny blocks until any of chans closes or ctx is done (spec §4.6
// Parent-readiness wait: an asyncio.wait(FIRST_COMPLETED) equivalent
// over a dynamic wait-set).
func waitAny(ctx context.Context, chans []<-chan struct{}) {
	cases := make([]reflect.SelectCase, 0, len(chans)+1)
	for _, c := range chans {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(c)})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	reflect.Select(cases)
}
