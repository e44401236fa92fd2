package events

import (
	"context"
	"sync"
)

// MemoryStream is an in-process change stream for single-instance mode and
// tests. Per subscriber, notifications are queued and delivered in publish
// order by a single goroutine.
type MemoryStream struct {
	mu   sync.RWMutex
	subs map[*memorySub]struct{}
}

type memorySub struct {
	channels map[string]struct{}
	queue    chan delivery
}

type delivery struct {
	channel string
	n       Notification
}

func NewMemoryStream() *MemoryStream {
	return &MemoryStream{subs: make(map[*memorySub]struct{})}
}

// SubscriberCount reports the number of live attachments. Tests use it to
// wait for a subscriber before publishing, since pub/sub has no replay.
func (s *MemoryStream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *MemoryStream) Publish(ctx context.Context, channel string, n Notification) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs {
		if _, ok := sub.channels[channel]; !ok {
			continue
		}
		select {
		case sub.queue <- delivery{channel: channel, n: n}:
		default:
			// Subscriber queue full; consumers re-read state on every
			// notification, so a dropped one is recovered by the next.
		}
	}
	return nil
}

func (s *MemoryStream) Subscribe(ctx context.Context, channels []string, handler func(channel string, n Notification)) error {
	sub := &memorySub{
		channels: make(map[string]struct{}, len(channels)),
		queue:    make(chan delivery, 256),
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-sub.queue:
			handler(d.channel, d.n)
		}
	}
}
