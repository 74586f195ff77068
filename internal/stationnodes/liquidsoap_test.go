package stationnodes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station.fm/stationd/internal/bus"
	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/procnode"
)

func testCommand() procnode.Command {
	return procnode.Command{Exe: "/bin/true"}
}

func TestLiquidSoap_PushPopMutateQueueInFIFOOrder(t *testing.T) {
	ls := NewLiquidSoap(Deps{Bus: bus.New(), Self: control.LiquidSoap}, testCommand)

	push := func(uri string) {
		msg := control.NewMessage(control.ActionPush, control.LiquidSoap, &control.PayloadEnvelope{
			Data: map[string]any{"uri": uri},
		})
		result := ls.Receive(context.Background(), nil, msg, testLogger())
		require.True(t, result.Ok())
	}
	push("track-1")
	push("track-2")
	assert.Equal(t, []string{"track-1", "track-2"}, ls.queue)

	pop := control.NewMessage(control.ActionPop, control.LiquidSoap, nil)
	result := ls.Receive(context.Background(), nil, pop, testLogger())
	require.True(t, result.Ok())
	assert.Equal(t, []string{"track-2"}, ls.queue)
}

func TestLiquidSoap_QueueRepliesToRequester(t *testing.T) {
	b := bus.New()
	ls := NewLiquidSoap(Deps{Bus: b, Self: control.LiquidSoap}, testCommand)
	ls.queue = []string{"a", "b"}

	req := control.NewMessage(control.ActionQueue, control.LiquidSoap, &control.PayloadEnvelope{
		Data: withReplyTo(control.Coordinator, nil),
	})
	result := ls.Receive(context.Background(), nil, req, testLogger())
	require.True(t, result.Ok())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, open, err := b.Receive(ctx)
	require.NoError(t, err)
	require.True(t, open)
	assert.Equal(t, control.ActionQueueResponse, msg.Action)
	assert.Equal(t, control.Coordinator, *msg.Node)
	assert.Equal(t, req.CorrelationID, msg.CorrelationID)

	data := msg.Payload.Data.(map[string]any)
	assert.Equal(t, []string{"a", "b"}, data["queue"])
}

func TestLiquidSoap_QueueWithoutReplyToErrors(t *testing.T) {
	ls := NewLiquidSoap(Deps{Bus: bus.New(), Self: control.LiquidSoap}, testCommand)
	msg := control.NewMessage(control.ActionQueue, control.LiquidSoap, nil)
	result := ls.Receive(context.Background(), nil, msg, testLogger())
	assert.False(t, result.Ok())
}

func TestLiquidSoap_UnhandledActionFallsThroughToError(t *testing.T) {
	ls := NewLiquidSoap(Deps{Bus: bus.New(), Self: control.LiquidSoap}, testCommand)
	msg := control.NewMessage(control.ActionStatus, control.LiquidSoap, nil)
	result := ls.Receive(context.Background(), nil, msg, testLogger())
	assert.False(t, result.Ok())
}
