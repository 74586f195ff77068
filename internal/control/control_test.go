package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult_SuccessAndErr(t *testing.T) {
	ok := Success("started")
	assert.True(t, ok.Ok())
	assert.Equal(t, "started", ok.Message())
	assert.Equal(t, "Success(started)", ok.String())

	bad := Err("exit code %d", 1)
	assert.False(t, bad.Ok())
	assert.Equal(t, "exit code 1", bad.Message())
	assert.Equal(t, "Error(exit code 1)", bad.String())
}

func TestNewMessage_AddressesNodeAndFreshCorrelationID(t *testing.T) {
	m1 := NewMessage(ActionQueue, LiquidSoap, nil)
	m2 := NewMessage(ActionQueue, LiquidSoap, nil)

	assert.Equal(t, ActionQueue, m1.Action)
	assert.NotNil(t, m1.Node)
	assert.Equal(t, LiquidSoap, *m1.Node)
	assert.NotEqual(t, m1.CorrelationID, m2.CorrelationID)
}

func TestReply_EchoesCorrelationID(t *testing.T) {
	req := NewMessage(ActionQueue, LiquidSoap, nil)
	resp := Reply(ActionQueueResponse, Coordinator, req.CorrelationID, nil)

	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	assert.Equal(t, Coordinator, *resp.Node)
	assert.Equal(t, ActionQueueResponse, resp.Action)
}
