// LiquidSoap wraps the streaming audio pipeline process. Grounded on
// manager/liquidsoap/liquidsoap.py and manager/liquidsoap/telnet.py —
// the actual Telnet command vocabulary is out of scope per spec.md §1;
// only the ProcessCommand shape and the queue-editing verbs (SKIP,
// PUSH, POP, QUEUE) are carried, backed here by an in-memory playlist
// stand-in so the verbs round-trip over the bus end to end.
package stationnodes

import (
	"context"
	"log/slog"
	"sync"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/procnode"
)

// LiquidSoap is the process node for the audio streaming pipeline.
type LiquidSoap struct {
	Deps
	procnode.Node

	mu    sync.Mutex
	queue []string
}

// NewLiquidSoap builds the LiquidSoap process node from its spawn
// command. The ready probe defaults to "process started" (spec §4.4);
// a telnet side-channel probe can be layered on by a deployer that
// needs one, but is out of scope here. Receive is overridden below to
// add the queue-editing verbs on top of the embedded process node's
// default (every other action rejected).
func NewLiquidSoap(deps Deps, command func() procnode.Command) *LiquidSoap {
	return &LiquidSoap{
		Deps: deps,
		Node: procnode.Node{Command: command},
	}
}

// Receive handles the LiquidSoap queue-editing verbs layered on top of
// the default process-node Receive (which rejects every action).
func (ls *LiquidSoap) Receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	log := ls.logWithNode(logEvent)
	switch msg.Action {
	case control.ActionQueue:
		ls.mu.Lock()
		snapshot := append([]string(nil), ls.queue...)
		ls.mu.Unlock()

		requester, ok := replyTo(msg.Payload)
		if !ok {
			return control.Err("QUEUE request missing reply_to")
		}
		reply := control.Reply(control.ActionQueueResponse, requester, msg.CorrelationID, &control.PayloadEnvelope{
			Version: 1,
			Type:    "queue",
			Data:    map[string]any{"queue": snapshot},
		})
		if err := ls.Bus.Send(ctx, reply); err != nil {
			log.Warn("liquidsoap.queue_reply_failed", "error", err)
			return control.Err("send reply: %v", err)
		}
		return control.Success("queue sent")

	case control.ActionPush:
		uri, _ := stringField(msg.Payload, "uri")
		ls.mu.Lock()
		ls.queue = append(ls.queue, uri)
		ls.mu.Unlock()
		return control.Success("pushed")

	case control.ActionPop:
		ls.mu.Lock()
		if len(ls.queue) > 0 {
			ls.queue = ls.queue[1:]
		}
		ls.mu.Unlock()
		return control.Success("popped")

	case control.ActionSkip:
		ls.mu.Lock()
		if len(ls.queue) > 0 {
			ls.queue = ls.queue[1:]
		}
		ls.mu.Unlock()
		return control.Success("skipped")

	default:
		return control.Err("unhandled action %s", msg.Action)
	}
}

func stringField(env *control.PayloadEnvelope, key string) (string, bool) {
	if env == nil {
		return "", false
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
