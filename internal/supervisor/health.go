package supervisor

import (
	"sort"
	"time"

	"station.fm/stationd/internal/control"
)

// NodeSnapshot is the per-node entry of the health snapshot (spec §6
// Health snapshot).
type NodeSnapshot struct {
	Name         control.NodeId
	Running      bool
	Ready        bool
	PID          *int
	UptimeSeconds float64
	Parents      []control.NodeId
}

// Snapshot is the supervisor's read-only health snapshot (spec §6). Its
// representation at any system boundary (HTTP, CLI) is out of scope;
// only this structure is contractual.
type Snapshot struct {
	RunID    string
	Shutdown bool
	Nodes    map[control.NodeId]NodeSnapshot
}

// Health builds a Snapshot of the current run state.
func (sv *Supervisor) Health() Snapshot {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	nodes := make(map[control.NodeId]NodeSnapshot, len(sv.descriptors))
	for id, desc := range sv.descriptors {
		h, running := sv.handles[id]

		var parents []control.NodeId
		for p := range desc.Parents {
			parents = append(parents, p)
		}
		sort.Slice(parents, func(i, j int) bool { return parents[i] < parents[j] })

		snap := NodeSnapshot{
			Name:    id,
			Running: running,
			Ready:   sv.readyEvents[id].IsSet(),
			Parents: parents,
		}
		if running {
			if pid := h.PID(); pid != 0 {
				snap.PID = &pid
			}
			snap.UptimeSeconds = time.Since(h.StartedAt()).Seconds()
		}
		nodes[id] = snap
	}

	return Snapshot{
		RunID:    sv.runID,
		Shutdown: sv.shutdownEvent.IsSet(),
		Nodes:    nodes,
	}
}
