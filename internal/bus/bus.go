// Package bus provides the in-process message broker connecting the
// orchestrator and its agents. Delivery is keyed by (receiver, type)
// and is fire-and-forget: unmatched messages are dropped with a
// warning, not an error.
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// Handler consumes one delivered message. Handlers run on the
// dispatcher goroutine; a panic inside a handler is recovered and
// logged without affecting delivery to other subscribers.
type Handler func(core.Message)

type subKey struct {
	agent core.AgentID
	mt    core.MessageType
}

// Bus is the process-wide broker. Construct one instance at startup
// and inject it into every agent; per-test instances keep tests
// isolated.
type Bus struct {
	mu       sync.RWMutex
	handlers map[subKey][]Handler
	queue    chan core.Message
	stop     chan struct{}
	done     chan struct{}
	log      *logging.Logger

	started   bool
	closed    bool
	delivered atomic.Int64
	dropped   atomic.Int64
}

// New creates a bus with the given queue capacity.
func New(log *logging.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		handlers: make(map[subKey][]Handler),
		queue:    make(chan core.Message, bufferSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      log.With("component", "bus"),
	}
}

// Start launches the dispatcher goroutine. Safe to call once;
// subsequent calls are no-ops.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	go b.consume()
}

// Stop shuts down the dispatcher after draining queued messages.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	started := b.started
	b.mu.Unlock()

	close(b.stop)
	if started {
		<-b.done
	}
}

// Subscribe registers a callback under (agentID, type) for each listed
// type. Multiple callbacks may share a key; all of them fire on a
// matching message.
func (b *Bus) Subscribe(agent core.AgentID, types []core.MessageType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, mt := range types {
		key := subKey{agent: agent, mt: mt}
		b.handlers[key] = append(b.handlers[key], h)
	}
}

// Unsubscribe removes registrations for the agent. With no types
// listed, every registration for the agent is removed.
func (b *Bus) Unsubscribe(agent core.AgentID, types ...core.MessageType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		for key := range b.handlers {
			if key.agent == agent {
				delete(b.handlers, key)
			}
		}
		return
	}
	for _, mt := range types {
		delete(b.handlers, subKey{agent: agent, mt: mt})
	}
}

// Send enqueues a message for targeted delivery to its receiver.
func (b *Bus) Send(msg core.Message) error {
	if msg.Receiver == "" {
		return fmt.Errorf("message has no receiver")
	}
	return b.enqueue(msg)
}

// Broadcast enqueues a message for delivery to every callback
// registered for its type, regardless of agent.
func (b *Bus) Broadcast(msg core.Message) error {
	msg.Receiver = core.BroadcastReceiver
	return b.enqueue(msg)
}

func (b *Bus) enqueue(msg core.Message) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return fmt.Errorf("bus is stopped")
	}

	select {
	case b.queue <- msg:
		return nil
	default:
		b.dropped.Add(1)
		b.log.Warn("bus queue full, dropping message",
			"type", string(msg.Type), "receiver", string(msg.Receiver))
		return nil
	}
}

// consume drains the queue until Stop is observed, then delivers any
// messages still queued.
func (b *Bus) consume() {
	defer close(b.done)
	for {
		select {
		case msg := <-b.queue:
			b.dispatch(msg)
		case <-b.stop:
			for {
				select {
				case msg := <-b.queue:
					b.dispatch(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(msg core.Message) {
	b.mu.RLock()
	var targets []Handler
	if msg.IsBroadcast() {
		for key, hs := range b.handlers {
			if key.mt == msg.Type {
				targets = append(targets, hs...)
			}
		}
	} else {
		targets = append(targets, b.handlers[subKey{agent: msg.Receiver, mt: msg.Type}]...)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		if !msg.IsBroadcast() {
			b.dropped.Add(1)
			b.log.Warn("no subscriber for message",
				"type", string(msg.Type), "receiver", string(msg.Receiver))
		}
		return
	}

	for _, h := range targets {
		b.deliver(h, msg)
	}
	b.delivered.Add(1)
}

// deliver invokes one handler, containing panics so a broken
// subscriber cannot take down the bus.
func (b *Bus) deliver(h Handler, msg core.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscriber panicked",
				"type", string(msg.Type),
				"receiver", string(msg.Receiver),
				"panic", fmt.Sprintf("%v", r))
		}
	}()
	h(msg)
}

// Delivered returns the number of messages dispatched to at least one
// subscriber.
func (b *Bus) Delivered() int64 {
	return b.delivered.Load()
}

// Dropped returns the number of messages dropped for lack of a
// subscriber or queue capacity.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
