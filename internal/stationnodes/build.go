// build.go wires configuration-time NodeConfig entries into concrete
// node.Descriptor values backed by this package's Runnable
// implementations — the one place that knows the closed NodeId set
// maps to concrete node types (the rest of the supervisor only ever
// sees the node.Runnable contract).
package stationnodes

import (
	"fmt"
	"time"

	"station.fm/stationd/internal/bus"
	"station.fm/stationd/internal/config"
	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/node"
	"station.fm/stationd/internal/procnode"
)

const (
	defaultCoordinatorInterval      = 30 * time.Second
	defaultCoordinatorHotWindowSize = 5
)

// BuildDescriptors converts cfg.Graph into node.Descriptor values,
// constructing the concrete Runnable for each closed NodeId.
func BuildDescriptors(cfg *config.GlobalConfig, b *bus.Bus) ([]node.Descriptor, error) {
	descriptors := make([]node.Descriptor, 0, len(cfg.Graph))

	for _, nc := range cfg.Graph {
		id := control.NodeId(nc.ID)
		deps := Deps{Bus: b, Self: id}

		runnable, err := newRunnable(id, nc, deps)
		if err != nil {
			return nil, err
		}

		parents := make(map[control.NodeId]struct{}, len(nc.Parents))
		for _, p := range nc.Parents {
			parents[control.NodeId(p)] = struct{}{}
		}

		descriptors = append(descriptors, node.Descriptor{
			ID:       id,
			Runnable: runnable,
			Parents:  parents,
			Disabled: nc.Disabled,
			Tunables: nc.ToTunables(),
		})
	}

	return descriptors, nil
}

func newRunnable(id control.NodeId, nc config.NodeConfig, deps Deps) (node.Runnable, error) {
	switch id {
	case control.LiquidSoap:
		if nc.Process == nil {
			return nil, fmt.Errorf("stationnodes: %s requires a process block", id)
		}
		return NewLiquidSoap(deps, commandFn(nc)), nil

	case control.HLS:
		if nc.Process == nil {
			return nil, fmt.Errorf("stationnodes: %s requires a process block", id)
		}
		return NewHLS(deps, commandFn(nc)), nil

	case control.DB:
		return NewDB(deps), nil

	case control.Prefetch:
		return NewPrefetch(deps), nil

	case control.Search:
		return NewSearch(deps), nil

	case control.Coordinator:
		interval := defaultCoordinatorInterval
		window := defaultCoordinatorHotWindowSize
		if nc.Coordinator != nil {
			if nc.Coordinator.IntervalSec > 0 {
				interval = time.Duration(nc.Coordinator.IntervalSec * float64(time.Second))
			}
			if nc.Coordinator.HotWindowSize > 0 {
				window = nc.Coordinator.HotWindowSize
			}
		}
		return NewCoordinator(deps, interval, window), nil

	case control.NowPlaying:
		return NewNowPlaying(deps), nil

	case control.API:
		return NewAPI(deps), nil

	default:
		return nil, fmt.Errorf("stationnodes: unknown node id %q", id)
	}
}

func commandFn(nc config.NodeConfig) func() procnode.Command {
	return func() procnode.Command {
		return nc.ToProcessCommand()
	}
}
