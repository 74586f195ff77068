package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"station.fm/stationd/internal/control"
)

func TestBus_SendReceiveFIFO(t *testing.T) {
	b := New()
	ctx := context.Background()

	m1 := control.NewMessage(control.ActionQueue, control.LiquidSoap, nil)
	m2 := control.NewMessage(control.ActionSkip, control.LiquidSoap, nil)

	assert.NoError(t, b.Send(ctx, m1))
	assert.NoError(t, b.Send(ctx, m2))

	got1, ok, err := b.Receive(ctx)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, m1.CorrelationID, got1.CorrelationID)

	got2, ok, err := b.Receive(ctx)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, m2.CorrelationID, got2.CorrelationID)
}

func TestBus_ReceiveRespectsContext(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, _, err := b.Receive(ctx)
	assert.Error(t, err)
}

func TestBus_ReceiveReportsClosed(t *testing.T) {
	b := New()
	b.Close()

	_, ok, err := b.Receive(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestBus_SendRespectsContext(t *testing.T) {
	b := &Bus{ch: make(chan control.Message)} // zero-depth to force blocking
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := b.Send(ctx, control.NewMessage(control.ActionQueue, control.LiquidSoap, nil))
	assert.Error(t, err)
}
