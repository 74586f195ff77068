// DB is the database gateway service node. Grounded on
// manager/track_queue/repo_service.py (RepoService): ready immediately,
// serve requests via receive until stopped. The SQLite schema/SQL
// itself is out of scope per spec.md §1; an in-process TrackStore
// stands in so request/reply semantics over the bus can be exercised
// end to end. Verbs beyond the spec's illustrative MISSING_AUDIO are
// the SUPPLEMENTED FEATURES named in SPEC_FULL.md (TRACK_BY_ID,
// TRACK_INCREMENT_FAIL_COUNT, UPDATE_TRACK_AUDIO, UPDATE_TRACK_CACHED,
// UPDATE_TRACK_CACHE_STATE).
package stationnodes

import (
	"context"
	"log/slog"
	"sync"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/svcnode"
)

// Track mirrors the fields manager/track_queue/repo_service.py upserts
// from INSERT_TRACKS payloads.
type Track struct {
	YoutubeID    string
	Title        string
	DurationSec  float64
	URL          string
	Channel      string
	ThumbnailURL string
	IsActive     bool
	HasAudio     bool
	Cached       bool
	CacheState   string
	FailCount    int
}

// TrackStore is the in-memory stand-in for the SQLite-backed
// TracksRepo.
type TrackStore struct {
	mu     sync.Mutex
	tracks map[string]*Track
}

func newTrackStore() *TrackStore {
	return &TrackStore{tracks: make(map[string]*Track)}
}

func (s *TrackStore) upsert(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[t.YoutubeID] = &t
}

func (s *TrackStore) byID(id string) (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return Track{}, false
	}
	return *t, true
}

func (s *TrackStore) missingAudio(limit int) []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Track
	for _, t := range s.tracks {
		if !t.HasAudio && t.IsActive {
			out = append(out, *t)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

func (s *TrackStore) incrementFailCount(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		t.FailCount++
	}
}

func (s *TrackStore) updateAudio(id string, hasAudio bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		t.HasAudio = hasAudio
	}
}

func (s *TrackStore) updateCached(id string, cached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		t.Cached = cached
	}
}

func (s *TrackStore) updateCacheState(id, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		t.CacheState = state
	}
}

// DB is the database gateway service node.
type DB struct {
	Deps
	svcnode.Node

	store *TrackStore
}

// NewDB builds the DB service node.
func NewDB(deps Deps) *DB {
	db := &DB{Deps: deps, store: newTrackStore()}
	db.Node = svcnode.Node{
		GetRun:    func() svcnode.Run { return db.run },
		ReceiveFn: db.receive,
	}
	return db
}

// run sets ready immediately (no one-time setup beyond the in-memory
// store already being constructed) then idles until stopped, per
// RepoService._get_service_run.
func (db *DB) run(ctx context.Context, stopEvent, readyEvent *latch.Latch, log *slog.Logger) {
	readyEvent.Set()
	<-stopEvent.Done()
}

func (db *DB) receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	log := db.logWithNode(logEvent)

	switch msg.Action {
	case control.ActionInsertTracks:
		items, ok := dataField(msg.Payload, "tracks")
		if !ok {
			return control.Err("INSERT_TRACKS missing tracks field")
		}
		rows, ok := items.([]Track)
		if !ok {
			return control.Err("INSERT_TRACKS tracks field has wrong type")
		}
		for _, t := range rows {
			db.store.upsert(t)
		}
		return control.Success("inserted")

	case control.ActionMissingAudio:
		requester, ok := replyTo(msg.Payload)
		if !ok {
			return control.Err("MISSING_AUDIO missing reply_to")
		}
		limit := 5
		if l, ok := intField(msg.Payload, "limit"); ok {
			limit = l
		}
		tracks := db.store.missingAudio(limit)
		reply := control.Reply(control.ActionMissingAudioResponse, requester, msg.CorrelationID, &control.PayloadEnvelope{
			Version: 1, Type: "tracks", Data: tracks,
		})
		if err := db.Bus.Send(ctx, reply); err != nil {
			log.Warn("db.missing_audio_reply_failed", "error", err)
			return control.Err("send reply: %v", err)
		}
		return control.Success("replied")

	case control.ActionTrackByID:
		requester, ok := replyTo(msg.Payload)
		if !ok {
			return control.Err("TRACK_BY_ID missing reply_to")
		}
		id, _ := stringField(msg.Payload, "youtube_id")
		track, found := db.store.byID(id)
		reply := control.Reply(control.ActionTrackByIDResponse, requester, msg.CorrelationID, &control.PayloadEnvelope{
			Version: 1, Type: "track", Data: map[string]any{"track": track, "found": found},
		})
		if err := db.Bus.Send(ctx, reply); err != nil {
			log.Warn("db.track_by_id_reply_failed", "error", err)
			return control.Err("send reply: %v", err)
		}
		return control.Success("replied")

	case control.ActionTrackIncrementFailCount:
		id, _ := stringField(msg.Payload, "youtube_id")
		db.store.incrementFailCount(id)
		return control.Success("incremented")

	case control.ActionUpdateTrackAudio:
		id, _ := stringField(msg.Payload, "youtube_id")
		hasAudio, _ := boolField(msg.Payload, "has_audio")
		db.store.updateAudio(id, hasAudio)
		return control.Success("updated")

	case control.ActionUpdateTrackCached:
		id, _ := stringField(msg.Payload, "youtube_id")
		cached, _ := boolField(msg.Payload, "cached")
		db.store.updateCached(id, cached)
		return control.Success("updated")

	case control.ActionUpdateTrackCacheState:
		id, _ := stringField(msg.Payload, "youtube_id")
		state, _ := stringField(msg.Payload, "state")
		db.store.updateCacheState(id, state)
		return control.Success("updated")

	default:
		return control.Err("unhandled action %s", msg.Action)
	}
}

func dataField(env *control.PayloadEnvelope, key string) (any, bool) {
	if env == nil {
		return nil, false
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := data[key]
	return v, ok
}

func intField(env *control.PayloadEnvelope, key string) (int, bool) {
	v, ok := dataField(env, key)
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

func boolField(env *control.PayloadEnvelope, key string) (bool, bool) {
	v, ok := dataField(env, key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
