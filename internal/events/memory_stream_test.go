package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStreamDeliversInPublishOrder(t *testing.T) {
	stream := NewMemoryStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = stream.Subscribe(ctx, []string{"channel:poll:a"}, func(_ string, n Notification) {
			mu.Lock()
			seen = append(seen, n.TopicKey)
			mu.Unlock()
		})
	}()

	// Wait for the subscriber goroutine to register before publishing.
	for i := 0; i < 100 && stream.SubscriberCount() == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	for _, key := range []string{"one", "two", "three"} {
		require.NoError(t, stream.Publish(ctx, "channel:poll:a", Notification{
			Table:    TableVotes,
			Kind:     KindInsert,
			TopicKey: key,
		}))
	}
	// Off-channel traffic is invisible to this subscriber.
	require.NoError(t, stream.Publish(ctx, "channel:poll:b", Notification{
		Table:    TableVotes,
		Kind:     KindInsert,
		TopicKey: "other",
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"one", "two", "three"}, seen)
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancellation")
	}
}

func TestMemoryStreamSubscribeReturnsOnCancel(t *testing.T) {
	stream := NewMemoryStream()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- stream.Subscribe(ctx, []string{"channel:polls:feed"}, func(string, Notification) {})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancellation")
	}
}

func TestPollChannelNaming(t *testing.T) {
	assert.Equal(t, "channel:poll:abc", PollChannel("abc"))
	assert.Equal(t, "channel:polls:feed", ChannelFeed)
}
