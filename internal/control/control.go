// Package control defines the wire types that cross the supervisor's
// control bus: node identifiers, control actions, the payload envelope,
// control messages, and the result sum type node operations return.
// The supervisor reads Message.Node and .CorrelationID, and .Action
// only to intercept STOP_ALL / STOP_NODE — it never reads Payload.
package control

import (
	"fmt"

	uuid "github.com/satori/go.uuid"
)

// NodeId is a stable enumerated routing address (spec §3).
type NodeId string

const (
	LiquidSoap NodeId = "LIQUID_SOAP"
	HLS        NodeId = "HLS"
	Prefetch   NodeId = "PREFETCH"
	Search     NodeId = "SEARCH"
	Coordinator NodeId = "COORDINATOR"
	DB         NodeId = "DB"
	NowPlaying NodeId = "NOW_PLAYING"
	API        NodeId = "API"
)

// AllNodeIds lists the closed set of valid routing addresses.
var AllNodeIds = []NodeId{LiquidSoap, HLS, Prefetch, Search, Coordinator, DB, NowPlaying, API}

// Action is the closed enumeration of control-bus verbs (spec §3, enum
// restored in full from manager/runner/control.py per SPEC_FULL.md).
type Action string

const (
	// Lifecycle verbs, some of which are intercepted by the supervisor
	// itself rather than routed to a node's receive (SPEC_FULL.md
	// supplemented features: STOP_ALL / STOP_NODE).
	ActionStopAll  Action = "STOP_ALL"
	ActionStopNode Action = "STOP_NODE"
	ActionStart    Action = "START"
	ActionStatus   Action = "STATUS"
	ActionStop     Action = "STOP"

	// LiquidSoap queue-editing verbs.
	ActionSkip  Action = "SKIP"
	ActionPush  Action = "PUSH"
	ActionPop   Action = "POP"
	ActionQueue Action = "QUEUE"
	ActionQueueResponse Action = "QUEUE_RESPONSE"

	// Coordinator / prefetch fan-out.
	ActionLoadHot Action = "LOAD_HOT"
	ActionTrigger Action = "TRIGGER"

	// DB gateway verbs.
	ActionInsertTracks             Action = "INSERT_TRACKS"
	ActionMissingAudio             Action = "MISSING_AUDIO"
	ActionMissingAudioResponse     Action = "MISSING_AUDIO_RESPONSE"
	ActionTrackByID                Action = "TRACK_BY_ID"
	ActionTrackByIDResponse        Action = "TRACK_BY_ID_RESPONSE"
	ActionTrackIncrementFailCount  Action = "TRACK_INCREMENT_FAIL_COUNT"
	ActionUpdateTrackAudio         Action = "UPDATE_TRACK_AUDIO"
	ActionUpdateTrackCached        Action = "UPDATE_TRACK_CACHED"
	ActionUpdateTrackCacheState    Action = "UPDATE_TRACK_CACHE_STATE"

	// Search / prefetch maintenance verbs.
	ActionReindex        Action = "REINDEX"
	ActionClearLRU       Action = "CLEAR_LRU"
	ActionRecalcLUFS     Action = "RECALC_LUFS"
	ActionStats          Action = "STATS"
	ActionBlacklistClear  Action = "BLACKLIST_CLEAR"
	ActionBlacklistRemove Action = "BLACKLIST_REMOVE"
)

// PayloadEnvelope is the versioned wrapper around opaque payloads (spec
// §4.8). The supervisor never interprets Type or Data.
type PayloadEnvelope struct {
	Version int
	Type    string
	Data    any
}

// Message is the single value type carried by the bus (spec §3/§6).
// Node is nil for malformed messages, which the supervisor logs and
// drops rather than routes.
type Message struct {
	Action        Action
	Node          *NodeId
	Payload       *PayloadEnvelope
	CorrelationID uuid.UUID
}

// NewCorrelationID generates a fresh correlation ID for a request
// message, per spec §4.8 step 1. uuid.NewV4 only fails if the runtime
// can't read random bytes, which we treat as fatal rather than hand
// back a zero-value ID that could collide.
func NewCorrelationID() uuid.UUID {
	id, err := uuid.NewV4()
	if err != nil {
		panic(fmt.Errorf("control: generate correlation id: %w", err))
	}
	return id
}

// NewMessage builds a Message addressed to node with a fresh
// correlation ID, optionally carrying payload.
func NewMessage(action Action, node NodeId, payload *PayloadEnvelope) Message {
	return Message{
		Action:        action,
		Node:          &node,
		Payload:       payload,
		CorrelationID: NewCorrelationID(),
	}
}

// Reply builds a response message addressed back to requester, echoing
// correlationID per spec §4.8: "the replying service echoes the
// correlation_id on a response-flavored action".
func Reply(action Action, requester NodeId, correlationID uuid.UUID, payload *PayloadEnvelope) Message {
	return Message{
		Action:        action,
		Node:          &requester,
		Payload:       payload,
		CorrelationID: correlationID,
	}
}

// Result is the sum type node operations return in place of exceptions
// escaping receive/check (spec §9 Design notes).
type Result struct {
	ok  bool
	msg string
}

// Success constructs an ok Result, optionally carrying a message.
func Success(msg string) Result { return Result{ok: true, msg: msg} }

// Err constructs a failed Result from a formatted message.
func Err(format string, args ...any) Result {
	return Result{ok: false, msg: fmt.Sprintf(format, args...)}
}

// Ok reports whether the result is a success.
func (r Result) Ok() bool { return r.ok }

// Message returns the result's advisory message (may be empty).
func (r Result) Message() string { return r.msg }

func (r Result) String() string {
	if r.ok {
		return "Success(" + r.msg + ")"
	}
	return "Error(" + r.msg + ")"
}
