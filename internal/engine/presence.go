package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pollpulse/internal/events"
	"pollpulse/internal/presence"
	pollpulse_errors "pollpulse/pkg/errors"
	"pollpulse/pkg/logger"
)

// ViewerCount is the live number of distinct presence keys watching a poll.
// Known is false while the channel is desynced; the count then is the
// last-known value, never a fabricated zero.
type ViewerCount struct {
	PollID uuid.UUID `json:"poll_id"`
	Count  int       `json:"count"`
	Known  bool      `json:"known"`
	At     time.Time `json:"at"`
}

type channelState int

const (
	stateJoining channelState = iota
	stateSubscribed
	stateLeft
)

// PresenceHandle is one viewer session on a poll's presence channel.
type PresenceHandle struct {
	pollID  uuid.UUID
	key     string
	updates chan ViewerCount
}

func (h *PresenceHandle) Updates() <-chan ViewerCount {
	return h.updates
}

// PresenceTracker maintains per-poll viewer counts. All handles for one poll
// share a single refcounted channel; the same presence key tracked twice
// still counts once, since the count is distinct keys per sync snapshot.
type PresenceTracker struct {
	joiner     presence.Joiner
	stream     events.Stream
	log        *logger.Logger
	ackTimeout time.Duration

	mu     sync.Mutex
	topics map[uuid.UUID]*presenceTopic
}

type presenceTopic struct {
	state   channelState
	refs    int
	keys    map[string]int // presence key -> handle count on this process
	last    ViewerCount
	subs    map[*PresenceHandle]struct{}
	channel presence.Channel
	cancel  context.CancelFunc
}

func NewPresenceTracker(joiner presence.Joiner, stream events.Stream, log *logger.Logger, ackTimeout time.Duration) *PresenceTracker {
	if ackTimeout <= 0 {
		ackTimeout = 5 * time.Second
	}
	return &PresenceTracker{
		joiner:     joiner,
		stream:     stream,
		log:        log,
		ackTimeout: ackTimeout,
		topics:     make(map[uuid.UUID]*presenceTopic),
	}
}

// Join registers presenceKey as a viewer of the poll and returns a handle
// streaming viewer counts. It does not block on the channel handshake.
func (t *PresenceTracker) Join(ctx context.Context, pollID uuid.UUID, presenceKey string) (*PresenceHandle, error) {
	t.mu.Lock()
	topic, ok := t.topics[pollID]
	if !ok {
		channel, err := t.joiner.Join(context.Background(), pollID.String())
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		topicCtx, cancel := context.WithCancel(context.Background())
		topic = &presenceTopic{
			state:   stateJoining,
			keys:    make(map[string]int),
			last:    ViewerCount{PollID: pollID, Known: false, At: time.Now()},
			subs:    make(map[*PresenceHandle]struct{}),
			channel: channel,
			cancel:  cancel,
		}
		t.topics[pollID] = topic
		go t.watch(topicCtx, pollID, topic)
		go t.attach(topicCtx, pollID, topic)
	}

	handle := &PresenceHandle{pollID: pollID, key: presenceKey, updates: make(chan ViewerCount, 8)}
	topic.refs++
	topic.keys[presenceKey]++
	firstForKey := topic.keys[presenceKey] == 1
	subscribed := topic.state == stateSubscribed
	topic.subs[handle] = struct{}{}
	handle.updates <- topic.last
	channel := topic.channel
	t.mu.Unlock()

	// Until the subscribed ack, track is deferred to the watcher; after it,
	// announce the new key directly.
	if subscribed && firstForKey {
		if err := channel.Track(ctx, presenceKey, presence.Metadata{"joined_at": time.Now().UTC().Format(time.RFC3339)}); err != nil {
			t.log.Warnf("presence track for poll %s key %s: %v", pollID, presenceKey, err)
		}
	}
	return handle, nil
}

// Leave releases the handle. The last handle on the poll tears the channel
// down; no count is delivered after Leave returns.
func (t *PresenceTracker) Leave(ctx context.Context, handle *PresenceHandle) {
	t.mu.Lock()
	topic, ok := t.topics[handle.pollID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if _, attached := topic.subs[handle]; !attached {
		t.mu.Unlock()
		return
	}
	delete(topic.subs, handle)
	close(handle.updates)
	topic.refs--

	topic.keys[handle.key]--
	untrack := topic.keys[handle.key] == 0
	if untrack {
		delete(topic.keys, handle.key)
	}

	teardown := topic.refs == 0
	channel := topic.channel
	if teardown {
		topic.state = stateLeft
		topic.cancel()
		delete(t.topics, handle.pollID)
	}
	t.mu.Unlock()

	if teardown {
		if err := channel.Close(ctx); err != nil {
			t.log.Warnf("presence channel close for poll %s: %v", handle.pollID, err)
		}
		return
	}
	if untrack {
		if err := channel.Untrack(ctx, handle.key); err != nil {
			t.log.Warnf("presence untrack for poll %s key %s: %v", handle.pollID, handle.key, err)
		}
	}
}

// attach follows the poll's own change topic so a deletion stops tracking.
func (t *PresenceTracker) attach(ctx context.Context, pollID uuid.UUID, topic *presenceTopic) {
	channel := events.PollChannel(pollID.String())
	err := t.stream.Subscribe(ctx, []string{channel}, func(_ string, n events.Notification) {
		if n.Table == events.TablePolls && n.Kind == events.KindDelete {
			t.drop(ctx, pollID, topic)
		}
	})
	if err != nil && ctx.Err() == nil {
		t.log.Errorf("presence stream for poll %s ended: %v", pollID, err)
	}
}

// drop tears the channel down for a deleted poll and ends every handle.
func (t *PresenceTracker) drop(ctx context.Context, pollID uuid.UUID, topic *presenceTopic) {
	t.mu.Lock()
	if t.topics[pollID] != topic {
		t.mu.Unlock()
		return
	}
	topic.state = stateLeft
	topic.cancel()
	for sub := range topic.subs {
		delete(topic.subs, sub)
		close(sub.updates)
	}
	channel := topic.channel
	delete(t.topics, pollID)
	t.mu.Unlock()

	if err := channel.Close(ctx); err != nil {
		t.log.Warnf("presence channel close for poll %s: %v", pollID, err)
	}
}

// watch drives the Joining -> Subscribed -> tracking loop for one channel.
func (t *PresenceTracker) watch(ctx context.Context, pollID uuid.UUID, topic *presenceTopic) {
	ackTimer := time.NewTimer(t.ackTimeout)
	defer ackTimer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-topic.channel.Subscribed():
	case <-ackTimer.C:
		// No subscribed acknowledgment in time: the count is stale and
		// surfaced as unknown/last-known, not zero. Keep waiting; a late
		// ack still recovers the channel.
		t.log.Warnf("poll %s: %v", pollID, pollpulse_errors.ErrPresenceDesync)
		t.markUnknown(pollID, topic)
		select {
		case <-ctx.Done():
			return
		case <-topic.channel.Subscribed():
		}
	}

	// Subscribed: announce every key joined so far.
	t.mu.Lock()
	topic.state = stateSubscribed
	keys := make([]string, 0, len(topic.keys))
	for key := range topic.keys {
		keys = append(keys, key)
	}
	t.mu.Unlock()
	for _, key := range keys {
		if err := topic.channel.Track(ctx, key, presence.Metadata{"joined_at": time.Now().UTC().Format(time.RFC3339)}); err != nil {
			t.log.Warnf("presence track for poll %s key %s: %v", pollID, key, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-topic.channel.Sync():
			if !ok {
				return
			}
			count := ViewerCount{PollID: pollID, Count: snap.DistinctKeys(), Known: true, At: time.Now()}
			t.broadcast(pollID, topic, count)
		}
	}
}

func (t *PresenceTracker) markUnknown(pollID uuid.UUID, topic *presenceTopic) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.topics[pollID] != topic {
		return
	}
	stale := topic.last
	stale.Known = false
	stale.At = time.Now()
	topic.last = stale
	for sub := range topic.subs {
		deliverCount(sub.updates, stale)
	}
}

func (t *PresenceTracker) broadcast(pollID uuid.UUID, topic *presenceTopic, count ViewerCount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.topics[pollID] != topic {
		return
	}
	topic.last = count
	for sub := range topic.subs {
		deliverCount(sub.updates, count)
	}
}

func deliverCount(ch chan ViewerCount, count ViewerCount) {
	for {
		select {
		case ch <- count:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
