// Package latch implements one-shot set/clear signals used as the
// ReadyEvent, ShutdownEvent, and kick-event primitives of the supervisor
// data model (spec §3).
package latch

import (
	"context"
	"sync"

	"github.com/tevino/abool"
)

// Latch is a one-shot, re-armable signal. IsSet is a cheap atomic read for
// hot paths (e.g. health snapshots); Wait blocks until Set is called or ctx
// is done. A single writer is expected to call Set/Clear; many readers may
// call IsSet/Wait concurrently.
type Latch struct {
	flag *abool.AtomicBool

	mu sync.Mutex
	ch chan struct{}
}

// New returns a cleared Latch.
func New() *Latch {
	return &Latch{
		flag: abool.New(),
		ch:   make(chan struct{}),
	}
}

// IsSet reports whether the latch is currently set.
func (l *Latch) IsSet() bool {
	return l.flag.IsSet()
}

// Set latches the signal open. Idempotent.
func (l *Latch) Set() {
	if l.flag.SetToIf(false, true) {
		l.mu.Lock()
		close(l.ch)
		l.mu.Unlock()
	}
}

// Clear re-arms the latch so a future Set can be observed by new Wait
// calls. Must not be called concurrently with Set on the same latch —
// per spec §5 the per-node supervision loop is the latch's only writer.
func (l *Latch) Clear() {
	if l.flag.SetToIf(true, false) {
		l.mu.Lock()
		l.ch = make(chan struct{})
		l.mu.Unlock()
	}
}

// Wait blocks until the latch is set or ctx is done, whichever happens
// first. Returns ctx.Err() on context cancellation, nil on latch set.
func (l *Latch) Wait(ctx context.Context) error {
	l.mu.Lock()
	ch := l.ch
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns the channel that closes when the latch is currently set.
// Callers must not hold onto it across a Clear/Set cycle; re-fetch Done
// (or use Wait) after each observed close.
func (l *Latch) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ch
}
