package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b := New(logging.NewNop(), 64)
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSendRoutesByReceiverAndType(t *testing.T) {
	b := newTestBus(t)

	var got atomic.Int32
	b.Subscribe(core.AgentContent, []core.MessageType{core.MessageTaskRequest}, func(core.Message) {
		got.Add(1)
	})

	// Same type, different receiver: must not be delivered to content.
	b.Subscribe(core.AgentVideo, []core.MessageType{core.MessageTaskRequest}, func(core.Message) {
		t.Error("message delivered to the wrong agent")
	})

	msg := core.NewMessage(core.AgentOrchestrator, core.AgentContent, core.MessageTaskRequest, nil)
	require.NoError(t, b.Send(msg))

	waitFor(t, func() bool { return got.Load() == 1 })
}

func TestSendRequiresReceiver(t *testing.T) {
	b := newTestBus(t)
	msg := core.Message{Type: core.MessageHeartbeat}
	assert.Error(t, b.Send(msg))
}

func TestBroadcastReachesAllSubscribersOfType(t *testing.T) {
	b := newTestBus(t)

	var got atomic.Int32
	for _, id := range []core.AgentID{core.AgentContent, core.AgentVideo, core.AgentPublishing} {
		b.Subscribe(id, []core.MessageType{core.MessageCancelRequest}, func(core.Message) {
			got.Add(1)
		})
	}
	b.Subscribe(core.AgentContent, []core.MessageType{core.MessageHeartbeat}, func(core.Message) {
		t.Error("broadcast delivered to a different message type")
	})

	msg := core.NewMessage(core.AgentOrchestrator, core.BroadcastReceiver, core.MessageCancelRequest, nil)
	require.NoError(t, b.Broadcast(msg))

	waitFor(t, func() bool { return got.Load() == 3 })
}

func TestUnmatchedDirectMessageIsDropped(t *testing.T) {
	b := newTestBus(t)

	msg := core.NewMessage(core.AgentOrchestrator, core.AgentVideo, core.MessageTaskRequest, nil)
	require.NoError(t, b.Send(msg))

	waitFor(t, func() bool { return b.Dropped() == 1 })
	assert.Equal(t, int64(0), b.Delivered())
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	b := newTestBus(t)

	var got atomic.Int32
	b.Subscribe(core.AgentContent, []core.MessageType{core.MessageStatusUpdate}, func(core.Message) {
		panic("broken subscriber")
	})
	b.Subscribe(core.AgentContent, []core.MessageType{core.MessageStatusUpdate}, func(core.Message) {
		got.Add(1)
	})

	msg := core.NewMessage(core.AgentOrchestrator, core.AgentContent, core.MessageStatusUpdate, nil)
	require.NoError(t, b.Send(msg))
	require.NoError(t, b.Send(msg))

	waitFor(t, func() bool { return got.Load() == 2 })
}

func TestUnsubscribeRemovesHandlers(t *testing.T) {
	b := newTestBus(t)

	var got atomic.Int32
	b.Subscribe(core.AgentContent,
		[]core.MessageType{core.MessageTaskRequest, core.MessageCancelRequest},
		func(core.Message) { got.Add(1) })
	b.Unsubscribe(core.AgentContent)

	msg := core.NewMessage(core.AgentOrchestrator, core.AgentContent, core.MessageTaskRequest, nil)
	require.NoError(t, b.Send(msg))

	waitFor(t, func() bool { return b.Dropped() == 1 })
	assert.Equal(t, int32(0), got.Load())
}

func TestStopDrainsQueuedMessages(t *testing.T) {
	b := New(logging.NewNop(), 64)

	var mu sync.Mutex
	var got int
	b.Subscribe(core.AgentMonitoring, []core.MessageType{core.MessageHeartbeat}, func(core.Message) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	// Enqueue before the dispatcher starts so messages sit in the queue.
	for i := 0; i < 10; i++ {
		msg := core.NewMessage(core.AgentOrchestrator, core.AgentMonitoring, core.MessageHeartbeat, nil)
		require.NoError(t, b.Send(msg))
	}

	b.Start()
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, got)
}

func TestSendAfterStopFails(t *testing.T) {
	b := New(logging.NewNop(), 8)
	b.Start()
	b.Stop()

	msg := core.NewMessage(core.AgentOrchestrator, core.AgentContent, core.MessageHeartbeat, nil)
	assert.Error(t, b.Send(msg))
}
