package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingReplyMap_RegisterResolveAwait(t *testing.T) {
	m := NewPendingReplyMap()
	id := NewCorrelationID()
	m.Register(id)

	go func() {
		time.Sleep(5 * time.Millisecond)
		ok := m.Resolve(id, "payload")
		assert.True(t, ok)
	}()

	v, err := m.Await(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, "payload", v)
}

func TestPendingReplyMap_ResolveUnknownReturnsFalse(t *testing.T) {
	m := NewPendingReplyMap()
	ok := m.Resolve(NewCorrelationID(), "orphan")
	assert.False(t, ok)
}

func TestPendingReplyMap_ResolveTwiceReturnsFalseSecondTime(t *testing.T) {
	m := NewPendingReplyMap()
	id := NewCorrelationID()
	m.Register(id)

	assert.True(t, m.Resolve(id, "first"))
	assert.False(t, m.Resolve(id, "second"))
}

func TestPendingReplyMap_AwaitTimesOutAndEvicts(t *testing.T) {
	m := NewPendingReplyMap()
	id := NewCorrelationID()
	m.Register(id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := m.Await(ctx, id)
	assert.Error(t, err)

	// Evicted: a late resolve now reports unknown.
	assert.False(t, m.Resolve(id, "late"))
}

func TestPendingReplyMap_AwaitUnregisteredErrors(t *testing.T) {
	m := NewPendingReplyMap()
	_, err := m.Await(context.Background(), NewCorrelationID())
	assert.Error(t, err)
}
