package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Redis key layout:
// - presence:members:{topic}  - hash of session id -> member JSON, TTL-refreshed
// - presence:sync:{topic}     - pub/sub channel announcing membership changes

const (
	membersKeyPrefix  = "presence:members:"
	syncChannelPrefix = "presence:sync:"
)

type member struct {
	Key  string   `json:"key"`
	Meta Metadata `json:"meta,omitempty"`
}

// RedisBroker implements presence channels over Redis sets and pub/sub.
// Member entries carry a TTL so a crashed process cannot pin a viewer; live
// channels refresh it by heartbeat.
type RedisBroker struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisBroker(client *goredis.Client, ttl time.Duration) *RedisBroker {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &RedisBroker{client: client, ttl: ttl}
}

func (b *RedisBroker) Join(ctx context.Context, topic string) (Channel, error) {
	ch := &redisChannel{
		broker:     b,
		topic:      topic,
		subscribed: make(chan struct{}),
		sync:       make(chan Snapshot, 16),
		sessions:   make(map[string]string),
		done:       make(chan struct{}),
	}

	ch.pubsub = b.client.Subscribe(ctx, syncChannelPrefix+topic)
	go ch.run(ctx)
	return ch, nil
}

type redisChannel struct {
	broker     *RedisBroker
	topic      string
	pubsub     *goredis.PubSub
	subscribed chan struct{}
	sync       chan Snapshot
	done       chan struct{}

	mu       sync.Mutex
	sessions map[string]string // presence key -> session id owned by this channel
	closed   bool
}

func (c *redisChannel) run(ctx context.Context) {
	// The subscribe confirmation from Redis is the channel-subscribed ack.
	if _, err := c.pubsub.Receive(ctx); err != nil {
		return
	}
	close(c.subscribed)
	c.emitSnapshot(ctx)

	heartbeat := time.NewTicker(c.broker.ttl / 3)
	defer heartbeat.Stop()

	msgs := c.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			c.refresh(ctx)
		case msg := <-msgs:
			if msg == nil {
				return
			}
			c.emitSnapshot(ctx)
		}
	}
}

func (c *redisChannel) refresh(ctx context.Context) {
	c.mu.Lock()
	n := len(c.sessions)
	c.mu.Unlock()
	if n == 0 {
		return
	}
	c.broker.client.Expire(ctx, membersKeyPrefix+c.topic, c.broker.ttl)
}

func (c *redisChannel) emitSnapshot(ctx context.Context) {
	entries, err := c.broker.client.HGetAll(ctx, membersKeyPrefix+c.topic).Result()
	if err != nil {
		return
	}
	snap := make(Snapshot, len(entries))
	for _, raw := range entries {
		var m member
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		snap[m.Key] = append(snap[m.Key], m.Meta)
	}
	select {
	case c.sync <- snap:
	default:
	}
}

func (c *redisChannel) Subscribed() <-chan struct{} { return c.subscribed }
func (c *redisChannel) Sync() <-chan Snapshot       { return c.sync }

func (c *redisChannel) Track(ctx context.Context, key string, meta Metadata) error {
	c.mu.Lock()
	sessionID, ok := c.sessions[key]
	if !ok {
		sessionID = uuid.New().String()
		c.sessions[key] = sessionID
	}
	c.mu.Unlock()

	data, err := json.Marshal(member{Key: key, Meta: meta})
	if err != nil {
		return err
	}

	pipe := c.broker.client.Pipeline()
	pipe.HSet(ctx, membersKeyPrefix+c.topic, sessionID, data)
	pipe.Expire(ctx, membersKeyPrefix+c.topic, c.broker.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return c.notify(ctx)
}

func (c *redisChannel) Untrack(ctx context.Context, key string) error {
	c.mu.Lock()
	sessionID, ok := c.sessions[key]
	if ok {
		delete(c.sessions, key)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	if err := c.broker.client.HDel(ctx, membersKeyPrefix+c.topic, sessionID).Err(); err != nil {
		return err
	}
	return c.notify(ctx)
}

func (c *redisChannel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sessions := make([]string, 0, len(c.sessions))
	for _, sessionID := range c.sessions {
		sessions = append(sessions, sessionID)
	}
	c.sessions = make(map[string]string)
	c.mu.Unlock()

	close(c.done)
	if len(sessions) > 0 {
		c.broker.client.HDel(ctx, membersKeyPrefix+c.topic, sessions...)
		c.notify(ctx)
	}
	return c.pubsub.Close()
}

func (c *redisChannel) notify(ctx context.Context) error {
	return c.broker.client.Publish(ctx, syncChannelPrefix+c.topic, "sync").Err()
}
