package latch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatch_InitiallyUnset(t *testing.T) {
	l := New()
	assert.False(t, l.IsSet())

	select {
	case <-l.Done():
		t.Fatal("Done() closed before Set()")
	default:
	}
}

func TestLatch_SetIsIdempotent(t *testing.T) {
	l := New()
	l.Set()
	l.Set()
	assert.True(t, l.IsSet())

	select {
	case <-l.Done():
	default:
		t.Fatal("Done() did not close after Set()")
	}
}

func TestLatch_ClearRearms(t *testing.T) {
	l := New()
	l.Set()
	l.Clear()
	assert.False(t, l.IsSet())

	select {
	case <-l.Done():
		t.Fatal("Done() still closed after Clear()")
	default:
	}

	l.Set()
	select {
	case <-l.Done():
	default:
		t.Fatal("Done() did not close after re-Set()")
	}
}

func TestLatch_WaitReturnsOnceSet(t *testing.T) {
	l := New()
	done := make(chan error, 1)
	go func() {
		done <- l.Wait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	l.Set()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Set")
	}
}

func TestLatch_WaitRespectsContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.Error(t, err)
}
