// Package bus implements the supervisor's single in-process control bus
// (spec §4.1): a FIFO, multi-producer/single-consumer channel of
// control.Message. Grounded on manager/runner/control.py's ControlBus
// (an asyncio.Queue wrapped in send/receive) and shaped like the
// teacher's internal/eventbus single-partition consumer loop, simplified
// to one partition since the spec calls for one FIFO, not sharded
// routing.
package bus

import (
	"context"
	"fmt"

	"station.fm/stationd/internal/control"
)

// depth is generous headroom above the spec's "order of hundreds per
// second, peak" expectation (§4.1) so Send never blocks the caller
// under normal load.
const depth = 4096

// Bus is the process-local, ephemeral control bus. It holds no state
// beyond the queue: no persistence, no replay (spec §4.1, Non-goals).
type Bus struct {
	ch chan control.Message
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{ch: make(chan control.Message, depth)}
}

// Send enqueues msg without observable back-pressure for the expected
// message volume. Returns an error only if ctx is cancelled while the
// (generously sized) queue is full.
func (b *Bus) Send(ctx context.Context, msg control.Message) error {
	select {
	case b.ch <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bus: send cancelled: %w", ctx.Err())
	}
}

// Receive blocks until the next message arrives or ctx is done. ok is
// false with a nil err when the bus channel itself is closed, which the
// supervisor treats as "degraded -> trigger shutdown" (spec §4.1); ok
// is also false, with err set to ctx.Err(), when ctx is done.
func (b *Bus) Receive(ctx context.Context) (msg control.Message, ok bool, err error) {
	select {
	case m, open := <-b.ch:
		return m, open, nil
	case <-ctx.Done():
		return control.Message{}, false, ctx.Err()
	}
}

// Close closes the underlying channel. Not expected in normal operation
// (spec §4.1: "bus-never-closes in normal operation"); only the tests
// call it, the supervisor and the CLI never close the bus.
func (b *Bus) Close() {
	close(b.ch)
}
