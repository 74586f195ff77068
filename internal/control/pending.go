package control

import (
	"context"
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"
)

// PendingReplyMap is a per-node mapping from correlation_id to a
// single-resolution promise of a typed result (spec §3 PendingReplyMap,
// §4.8). The requester inserts an entry before sending, resolves it
// from receive on the matching response, and evicts it on timeout or
// cancellation. A correlation ID can be resolved by at most one
// receiver; duplicate resolutions are reported to the caller as false
// so the node can log-and-drop (spec invariant, §3).
type PendingReplyMap struct {
	mu      sync.Mutex
	pending map[uuid.UUID]chan any
}

// NewPendingReplyMap returns an empty map.
func NewPendingReplyMap() *PendingReplyMap {
	return &PendingReplyMap{pending: make(map[uuid.UUID]chan any)}
}

// Register inserts a pending-reply slot for id. Must be called before
// the request is sent (spec §4.8 step 2).
func (m *PendingReplyMap) Register(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[id] = make(chan any, 1)
}

// Resolve delivers value to the pending slot for id. Returns false if
// there is no such slot (unknown or already-resolved ID) — the caller
// should log and drop per spec §3/§8 property 5.
func (m *PendingReplyMap) Resolve(id uuid.UUID, value any) bool {
	m.mu.Lock()
	ch, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	ch <- value
	return true
}

// Await blocks until id's slot is resolved or ctx is done. A Cancel of
// the same id from another goroutine does not wake it. On
// timeout/cancellation the slot is removed so a late response is
// treated as unknown.
func (m *PendingReplyMap) Await(ctx context.Context, id uuid.UUID) (any, error) {
	m.mu.Lock()
	ch, ok := m.pending[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("control: no pending reply registered for %s", id)
	}

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		m.Cancel(id)
		return nil, ctx.Err()
	}
}

// Cancel evicts id's slot without resolving it, used when the requester
// gives up waiting (spec §3 PendingReply lifecycle: "destroyed ... on
// requester cancellation").
func (m *PendingReplyMap) Cancel(id uuid.UUID) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}
