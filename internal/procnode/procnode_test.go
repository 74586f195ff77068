package procnode

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station.fm/stationd/internal/latch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMergeEnv_LayersOverrideInOrder(t *testing.T) {
	osEnv := []string{"PATH=/usr/bin", "FOO=base"}
	merged := mergeEnv(osEnv, map[string]string{"FOO": "configured"}, map[string]string{"BAR": "extra"})

	got := map[string]string{}
	for _, kv := range merged {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				got[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	assert.Equal(t, "/usr/bin", got["PATH"])
	assert.Equal(t, "configured", got["FOO"])
	assert.Equal(t, "extra", got["BAR"])
}

func TestNode_StartWaitOrShutdownOnExit(t *testing.T) {
	n := &Node{
		Command: func() Command {
			return Command{Exe: "/bin/sh", Args: []string{"-c", "exit 0"}}
		},
	}

	h, err := n.Start(context.Background(), testLogger(), testLogger())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Greater(t, h.PID(), 0)

	code := n.WaitOrShutdown(context.Background(), h, latch.New(), testLogger())
	require.NotNil(t, code)
	assert.Equal(t, 0, *code)
}

func TestNode_StopTerminatesRunningProcess(t *testing.T) {
	n := &Node{
		Command: func() Command {
			return Command{Exe: "/bin/sh", Args: []string{"-c", "sleep 30"}}
		},
	}

	hAny, err := n.Start(context.Background(), testLogger(), testLogger())
	require.NoError(t, err)
	h := hAny.(*Handle)
	assert.True(t, h.IsAlive())

	ctx := WithStopTimeout(context.Background(), 200*time.Millisecond)
	ctx = WithKillTimeout(ctx, 200*time.Millisecond)
	err = n.Stop(ctx, h, "test", testLogger())
	assert.NoError(t, err)
	assert.False(t, h.IsAlive())
}

func TestNode_StopIsIdempotent(t *testing.T) {
	n := &Node{
		Command: func() Command {
			return Command{Exe: "/bin/sh", Args: []string{"-c", "exit 0"}}
		},
	}
	hAny, err := n.Start(context.Background(), testLogger(), testLogger())
	require.NoError(t, err)
	h := hAny.(*Handle)

	time.Sleep(50 * time.Millisecond) // let it exit on its own

	assert.NoError(t, n.Stop(context.Background(), h, "first", testLogger()))
	assert.NoError(t, n.Stop(context.Background(), h, "second", testLogger()))
}

func TestNode_MarkReadyDefaultsToProcessStarted(t *testing.T) {
	n := &Node{
		Command: func() Command {
			return Command{Exe: "/bin/sh", Args: []string{"-c", "sleep 1"}}
		},
	}
	h, err := n.Start(context.Background(), testLogger(), testLogger())
	require.NoError(t, err)

	ctx := WithHandle(context.Background(), h.(*Handle))
	ready := latch.New()
	result := n.MarkReady(ctx, ready, testLogger())
	assert.True(t, result.Ok())
	assert.True(t, ready.IsSet())

	_ = n.Stop(context.Background(), h, "cleanup", testLogger())
}

func TestNode_CheckReportsErrorWhenNotAlive(t *testing.T) {
	n := &Node{}
	result := n.Check(context.Background(), testLogger())
	assert.False(t, result.Ok())
}
