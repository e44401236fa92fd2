package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher and RedisStream implement the change stream over Redis
// Pub/Sub, one channel per topic key.

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, data).Err()
}

type RedisStream struct {
	client *redis.Client
}

func NewRedisStream(client *redis.Client) *RedisStream {
	return &RedisStream{client: client}
}

func (s *RedisStream) Subscribe(ctx context.Context, channels []string, handler func(channel string, n Notification)) error {
	sub := s.client.Subscribe(ctx, channels...)
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		var n Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			continue
		}
		handler(msg.Channel, n)
	}
}
