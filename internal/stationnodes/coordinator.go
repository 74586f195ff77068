// Coordinator periodically requests the LiquidSoap queue and fans out
// prefetch work for a "hot window" of upcoming tracks. Grounded
// line-for-line on manager/coordinator.py (CoordinatorService):
// interval tick, QUEUE/QUEUE_RESPONSE round-trip, YouTube ID
// extraction, dedupe, LOAD_HOT + one TRIGGER to the prefetch node. This
// is a SUPPLEMENTED FEATURE per SPEC_FULL.md.
package stationnodes

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/svcnode"
)

// youtubeIDPattern mirrors manager/coordinator.py's
// _YOUTUBE_ID_REGEXP: an 11-char YouTube ID, optionally followed by a
// file extension, anchored at the end of the queue line.
var youtubeIDPattern = regexp.MustCompile(`([A-Za-z0-9_-]{11})(?:\.[^/?#]*)?$`)

// Coordinator is the coordinator service node.
type Coordinator struct {
	Deps

	svcnode.Node

	pending        *control.PendingReplyMap
	intervalSec    time.Duration
	hotWindowSize  int
}

// NewCoordinator builds the Coordinator service node. intervalSec/
// hotWindowSize come from CoordinatorService.__init__'s config-derived
// fields.
func NewCoordinator(deps Deps, interval time.Duration, hotWindowSize int) *Coordinator {
	c := &Coordinator{
		Deps:          deps,
		pending:       control.NewPendingReplyMap(),
		intervalSec:   interval,
		hotWindowSize: hotWindowSize,
	}
	c.Node = svcnode.Node{
		GetRun:    func() svcnode.Run { return c.run },
		ReceiveFn: c.receive,
	}
	return c
}

// run sets ready immediately then ticks on intervalSec until stopped,
// per CoordinatorService._get_service_run.
func (c *Coordinator) run(ctx context.Context, stopEvent, readyEvent *latch.Latch, log *slog.Logger) {
	readyEvent.Set()

	ticker := time.NewTicker(c.intervalSec)
	defer ticker.Stop()

	for {
		select {
		case <-stopEvent.Done():
			return
		case <-ticker.C:
			c.tickOnce(ctx, log)
		}
	}
}

func (c *Coordinator) receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	if msg.Action != control.ActionQueueResponse {
		return control.Err("unhandled action %s", msg.Action)
	}
	var lines []string
	if msg.Payload != nil {
		if data, ok := msg.Payload.Data.(map[string]any); ok {
			if raw, ok := data["queue"].([]string); ok {
				lines = raw
			}
		}
	}
	if !c.pending.Resolve(msg.CorrelationID, lines) {
		return control.Err("unknown or duplicate correlation id")
	}
	return control.Success("resolved")
}

// tickOnce requests the LiquidSoap queue, extracts YouTube IDs from the
// response, and fans out LOAD_HOT + TRIGGER for the hot window (spec
// SUPPLEMENTED FEATURES: Coordinator tick loop).
func (c *Coordinator) tickOnce(ctx context.Context, log *slog.Logger) {
	req := control.NewMessage(control.ActionQueue, control.LiquidSoap, &control.PayloadEnvelope{
		Version: 1, Type: "queue_request", Data: withReplyTo(c.Self, nil),
	})
	c.pending.Register(req.CorrelationID)

	if err := c.Bus.Send(ctx, req); err != nil {
		c.pending.Cancel(req.CorrelationID)
		log.Warn("coordinator.queue_request_failed", "error", err)
		return
	}

	awaitCtx, cancel := context.WithTimeout(ctx, 2500*time.Millisecond)
	defer cancel()
	v, err := c.pending.Await(awaitCtx, req.CorrelationID)
	if err != nil {
		log.Warn("coordinator.queue_response_timeout", "error", err)
		return
	}
	lines, _ := v.([]string)

	ids := extractYoutubeIDs(lines)
	window := c.hotWindowSize
	if window < 1 {
		window = 1
	}
	if len(ids) > window {
		ids = ids[:window]
	}

	for _, id := range ids {
		loadHot := control.NewMessage(control.ActionLoadHot, control.Prefetch, &control.PayloadEnvelope{
			Version: 1, Type: "load_hot", Data: map[string]any{"youtube_id": id},
		})
		if err := c.Bus.Send(ctx, loadHot); err != nil {
			log.Warn("coordinator.load_hot_failed", "error", err, "youtube_id", id)
		}
	}
	if len(ids) > 0 {
		trigger := control.NewMessage(control.ActionTrigger, control.Prefetch, nil)
		if err := c.Bus.Send(ctx, trigger); err != nil {
			log.Warn("coordinator.trigger_failed", "error", err)
		}
	}
}

// extractYoutubeIDs normalizes queue lines and extracts+dedupes
// YouTube IDs in order, mirroring
// manager/coordinator.py's _normalize_queue_lines +
// _extract_youtube_id + _unique_keep_order.
func extractYoutubeIDs(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	var ids []string
	for _, line := range lines {
		m := youtubeIDPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id := m[1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
