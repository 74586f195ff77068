// Prefetch is the media prefetcher service node. Grounded on
// manager/prefetch/prefetch.py's pending-reply map pattern: it requests
// MISSING_AUDIO from DB, keyed by a fresh correlation ID, and resolves
// the matching promise from receive when a MISSING_AUDIO_RESPONSE or
// TRACK_BY_ID_RESPONSE arrives (it issues no TRACK_BY_ID request of its
// own). yt-dlp invocation itself is out of scope per spec.md §1.
// Blacklist/LUFS/stats verbs are the SUPPLEMENTED FEATURES named in
// SPEC_FULL.md: BLACKLIST_CLEAR/BLACKLIST_REMOVE edit an in-memory
// blacklist set, RECALC_LUFS/STATS are only acknowledged.
package stationnodes

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/svcnode"
)

// Prefetch is the prefetcher service node.
type Prefetch struct {
	Deps
	svcnode.Node

	pending *control.PendingReplyMap

	mu        sync.Mutex
	blacklist map[string]struct{}
	hot       map[string]struct{}
}

// NewPrefetch builds the Prefetch service node.
func NewPrefetch(deps Deps) *Prefetch {
	p := &Prefetch{
		Deps:      deps,
		pending:   control.NewPendingReplyMap(),
		blacklist: make(map[string]struct{}),
		hot:       make(map[string]struct{}),
	}
	p.Node = svcnode.Node{
		GetRun:    func() svcnode.Run { return p.run },
		ReceiveFn: p.receive,
	}
	return p
}

func (p *Prefetch) run(ctx context.Context, stopEvent, readyEvent *latch.Latch, log *slog.Logger) {
	readyEvent.Set()
	<-stopEvent.Done()
}

// RequestMissingAudio issues a MISSING_AUDIO request to DB and blocks
// for up to timeout for the matching response (spec §4.8 request/reply
// protocol). Exported so the coordinator's TRIGGER fan-out or a test
// can drive a prefetch cycle.
func (p *Prefetch) RequestMissingAudio(ctx context.Context, limit int, timeout time.Duration) ([]Track, error) {
	msg := control.NewMessage(control.ActionMissingAudio, control.DB, &control.PayloadEnvelope{
		Version: 1,
		Type:    "missing_audio_request",
		Data:    withReplyTo(p.Self, map[string]any{"limit": limit}),
	})
	p.pending.Register(msg.CorrelationID)

	if err := p.Bus.Send(ctx, msg); err != nil {
		p.pending.Cancel(msg.CorrelationID)
		return nil, err
	}

	awaitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := p.pending.Await(awaitCtx, msg.CorrelationID)
	if err != nil {
		return nil, err
	}
	tracks, _ := v.([]Track)
	return tracks, nil
}

func (p *Prefetch) receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	log := p.logWithNode(logEvent)

	switch msg.Action {
	case control.ActionMissingAudioResponse:
		var tracks []Track
		if msg.Payload != nil {
			tracks, _ = msg.Payload.Data.([]Track)
		}
		if !p.pending.Resolve(msg.CorrelationID, tracks) {
			log.Debug("prefetch.duplicate_or_unknown_response", "correlation_id", msg.CorrelationID)
			return control.Err("unknown or duplicate correlation id")
		}
		return control.Success("resolved")

	case control.ActionTrackByIDResponse:
		var data map[string]any
		if msg.Payload != nil {
			data, _ = msg.Payload.Data.(map[string]any)
		}
		if !p.pending.Resolve(msg.CorrelationID, data) {
			log.Debug("prefetch.duplicate_or_unknown_response", "correlation_id", msg.CorrelationID)
			return control.Err("unknown or duplicate correlation id")
		}
		return control.Success("resolved")

	case control.ActionTrigger:
		// TRIGGER from the coordinator kicks a prefetch cycle; the
		// actual yt-dlp fetch pipeline is out of scope, this only
		// exercises the request/reply round-trip.
		go func() {
			_, _ = p.RequestMissingAudio(context.Background(), 5, 10*time.Second)
		}()
		return control.Success("triggered")

	case control.ActionLoadHot:
		id, _ := stringField(msg.Payload, "youtube_id")
		if id != "" {
			p.mu.Lock()
			p.hot[id] = struct{}{}
			p.mu.Unlock()
		}
		return control.Success("marked_hot")

	case control.ActionBlacklistClear:
		p.mu.Lock()
		p.blacklist = make(map[string]struct{})
		p.mu.Unlock()
		return control.Success("cleared")

	case control.ActionBlacklistRemove:
		id, _ := stringField(msg.Payload, "youtube_id")
		p.mu.Lock()
		delete(p.blacklist, id)
		p.mu.Unlock()
		return control.Success("removed")

	case control.ActionRecalcLUFS, control.ActionStats:
		return control.Success("ack")

	default:
		return control.Err("unhandled action %s", msg.Action)
	}
}
