package presence

import (
	"context"
	"sync"

	pollpulse_errors "pollpulse/pkg/errors"
)

// MemoryBroker is the in-process presence transport for single-instance mode
// and tests.
type MemoryBroker struct {
	mu     sync.Mutex
	topics map[string]*memoryTopic

	suppressAck bool
}

type memoryTopic struct {
	channels map[*memoryChannel]struct{}
}

type memoryChannel struct {
	broker     *MemoryBroker
	topic      string
	subscribed chan struct{}
	sync       chan Snapshot

	mu      sync.Mutex
	tracked map[string]Metadata // key -> metadata announced by this channel
	acked   bool
	closed  bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]*memoryTopic)}
}

// SetSuppressAck keeps newly joined channels in the joining state until
// AckPending is called; tests use it to exercise the desync path.
func (b *MemoryBroker) SetSuppressAck(suppress bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suppressAck = suppress
}

// AckPending acknowledges every channel still waiting on its subscription.
func (b *MemoryBroker) AckPending() {
	b.mu.Lock()
	var pending []*memoryChannel
	topics := make(map[string]struct{})
	for topic, t := range b.topics {
		for ch := range t.channels {
			ch.mu.Lock()
			if !ch.acked {
				ch.acked = true
				pending = append(pending, ch)
				topics[topic] = struct{}{}
			}
			ch.mu.Unlock()
		}
	}
	b.mu.Unlock()

	for _, ch := range pending {
		close(ch.subscribed)
	}
	for topic := range topics {
		b.broadcast(topic)
	}
}

func (b *MemoryBroker) Join(ctx context.Context, topic string) (Channel, error) {
	ch := &memoryChannel{
		broker:     b,
		topic:      topic,
		subscribed: make(chan struct{}),
		sync:       make(chan Snapshot, 16),
		tracked:    make(map[string]Metadata),
	}

	b.mu.Lock()
	t, ok := b.topics[topic]
	if !ok {
		t = &memoryTopic{channels: make(map[*memoryChannel]struct{})}
		b.topics[topic] = t
	}
	t.channels[ch] = struct{}{}
	suppress := b.suppressAck
	b.mu.Unlock()

	if !suppress {
		ch.mu.Lock()
		ch.acked = true
		ch.mu.Unlock()
		close(ch.subscribed)
		b.broadcast(topic)
	}
	return ch, nil
}

func (b *MemoryBroker) snapshot(t *memoryTopic) Snapshot {
	snap := make(Snapshot)
	for ch := range t.channels {
		ch.mu.Lock()
		for key, meta := range ch.tracked {
			snap[key] = append(snap[key], meta)
		}
		ch.mu.Unlock()
	}
	return snap
}

func (b *MemoryBroker) broadcast(topic string) {
	b.mu.Lock()
	t, ok := b.topics[topic]
	if !ok {
		b.mu.Unlock()
		return
	}
	snap := b.snapshot(t)
	channels := make([]*memoryChannel, 0, len(t.channels))
	for ch := range t.channels {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch.sync <- snap:
		default:
			// Stale intermediate snapshot dropped; the next membership
			// change delivers a fresh one.
		}
	}
}

func (c *memoryChannel) Subscribed() <-chan struct{} { return c.subscribed }
func (c *memoryChannel) Sync() <-chan Snapshot       { return c.sync }

func (c *memoryChannel) Track(ctx context.Context, key string, meta Metadata) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return pollpulse_errors.ErrServiceUnavailable
	}
	c.tracked[key] = meta
	c.mu.Unlock()

	c.broker.broadcast(c.topic)
	return nil
}

func (c *memoryChannel) Untrack(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.tracked, key)
	c.mu.Unlock()

	c.broker.broadcast(c.topic)
	return nil
}

func (c *memoryChannel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.tracked = make(map[string]Metadata)
	c.mu.Unlock()

	c.broker.mu.Lock()
	if t, ok := c.broker.topics[c.topic]; ok {
		delete(t.channels, c)
		if len(t.channels) == 0 {
			delete(c.broker.topics, c.topic)
		}
	}
	c.broker.mu.Unlock()

	c.broker.broadcast(c.topic)
	return nil
}
