// Package stationnodes implements the concrete node contracts wired to
// the supervisor: LiquidSoap and HLS as process nodes, DB, Prefetch,
// Search, Coordinator, NowPlaying and API as service nodes. Their
// business logic (Telnet vocabulary, HLS segment layout, SQLite schema,
// YouTube search heuristics, LUFS parsing, yt-dlp invocation) is out of
// scope per spec.md §1; each node here is implemented only to the depth
// needed to exercise the Node contract and the bus end to end, grounded
// on the corresponding manager/*.py module named in each file.
package stationnodes

import (
	"log/slog"

	"station.fm/stationd/internal/bus"
	"station.fm/stationd/internal/control"
)

// Deps are the collaborators every concrete node needs: the bus to
// publish on, and the node's own identity for addressing replies. Every
// concrete node in this package embeds Deps.
type Deps struct {
	Bus  *bus.Bus
	Self control.NodeId
}

// replyToField is the payload.Data key carrying the requester's NodeId,
// since spec §3's ControlMessage has no explicit "from" field — by
// convention (as in the original's request helpers) the requester
// stashes its own address in the envelope so the responder knows where
// to address the X_RESPONSE message.
const replyToField = "reply_to"

// withReplyTo returns data with replyToField set to requester, used by
// every request-issuing node when building its outbound envelope.
func withReplyTo(requester control.NodeId, data map[string]any) map[string]any {
	if data == nil {
		data = make(map[string]any, 1)
	}
	data[replyToField] = string(requester)
	return data
}

// replyTo extracts the requester NodeId stashed by withReplyTo, if any.
func replyTo(env *control.PayloadEnvelope) (control.NodeId, bool) {
	if env == nil {
		return "", false
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		return "", false
	}
	raw, ok := data[replyToField]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	return control.NodeId(s), true
}

// logWithNode returns a logger bound to this node's id, matching the
// teacher's WithField-per-request-context logging texture.
func (d Deps) logWithNode(logger *slog.Logger) *slog.Logger {
	return logger.With("node", d.Self)
}
