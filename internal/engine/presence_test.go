package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollpulse/internal/events"
	"pollpulse/internal/presence"
)

func nextCount(t *testing.T, handle *PresenceHandle) ViewerCount {
	t.Helper()
	select {
	case count, ok := <-handle.Updates():
		require.True(t, ok, "updates channel closed unexpectedly")
		return count
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for viewer count")
		return ViewerCount{}
	}
}

func waitForCount(t *testing.T, handle *PresenceHandle, pred func(ViewerCount) bool) ViewerCount {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case count, ok := <-handle.Updates():
			require.True(t, ok, "updates channel closed unexpectedly")
			if pred(count) {
				return count
			}
		case <-deadline:
			t.Fatal("timed out waiting for expected viewer count")
			return ViewerCount{}
		}
	}
}

func TestViewerCountIsDistinctKeys(t *testing.T) {
	broker := presence.NewMemoryBroker()
	tracker := NewPresenceTracker(broker, events.NewMemoryStream(), testLogger(), time.Second)
	pollID := uuid.New()

	alice, err := tracker.Join(context.Background(), pollID, "user:alice")
	require.NoError(t, err)
	waitForCount(t, alice, func(c ViewerCount) bool { return c.Known && c.Count == 1 })

	bob, err := tracker.Join(context.Background(), pollID, "user:bob")
	require.NoError(t, err)
	waitForCount(t, alice, func(c ViewerCount) bool { return c.Known && c.Count == 2 })
	waitForCount(t, bob, func(c ViewerCount) bool { return c.Known && c.Count == 2 })

	tracker.Leave(context.Background(), bob)
	_, open := <-bob.Updates()
	assert.False(t, open)
	waitForCount(t, alice, func(c ViewerCount) bool { return c.Known && c.Count == 1 })

	tracker.Leave(context.Background(), alice)
	_, open = <-alice.Updates()
	assert.False(t, open)
}

func TestSameKeyCountsOnce(t *testing.T) {
	broker := presence.NewMemoryBroker()
	tracker := NewPresenceTracker(broker, events.NewMemoryStream(), testLogger(), time.Second)
	pollID := uuid.New()

	// Two tabs of the same viewer share a presence key.
	first, err := tracker.Join(context.Background(), pollID, "user:alice")
	require.NoError(t, err)
	waitForCount(t, first, func(c ViewerCount) bool { return c.Known && c.Count == 1 })

	second, err := tracker.Join(context.Background(), pollID, "user:alice")
	require.NoError(t, err)
	count := nextCount(t, second)
	assert.Equal(t, 1, count.Count)

	// Closing one tab leaves the key tracked by the other; no membership
	// change means no new snapshot.
	tracker.Leave(context.Background(), second)
	_, open := <-second.Updates()
	assert.False(t, open)
	select {
	case count := <-first.Updates():
		assert.Equal(t, 1, count.Count)
	case <-time.After(100 * time.Millisecond):
	}

	tracker.Leave(context.Background(), first)
	_, open = <-first.Updates()
	assert.False(t, open)
}

func TestDistinctPollsAreIndependent(t *testing.T) {
	broker := presence.NewMemoryBroker()
	tracker := NewPresenceTracker(broker, events.NewMemoryStream(), testLogger(), time.Second)
	pollA := uuid.New()
	pollB := uuid.New()

	a, err := tracker.Join(context.Background(), pollA, "user:alice")
	require.NoError(t, err)
	b, err := tracker.Join(context.Background(), pollB, "user:alice")
	require.NoError(t, err)

	countA := waitForCount(t, a, func(c ViewerCount) bool { return c.Known && c.Count == 1 })
	countB := waitForCount(t, b, func(c ViewerCount) bool { return c.Known && c.Count == 1 })
	assert.Equal(t, pollA, countA.PollID)
	assert.Equal(t, pollB, countB.PollID)

	tracker.Leave(context.Background(), a)
	tracker.Leave(context.Background(), b)
}

func TestDesyncSurfacesStaleCountNeverZero(t *testing.T) {
	broker := presence.NewMemoryBroker()
	tracker := NewPresenceTracker(broker, events.NewMemoryStream(), testLogger(), 50*time.Millisecond)
	pollID := uuid.New()

	broker.SetSuppressAck(true)
	handle, err := tracker.Join(context.Background(), pollID, "user:alice")
	require.NoError(t, err)

	// Initial state before any sync: unknown.
	initial := nextCount(t, handle)
	assert.False(t, initial.Known)

	// After the ack timeout, the stale last-known value is surfaced again
	// with Known=false rather than a fabricated zero.
	stale := nextCount(t, handle)
	assert.False(t, stale.Known)

	// A late ack recovers the channel.
	broker.SetSuppressAck(false)
	broker.AckPending()
	recovered := waitForCount(t, handle, func(c ViewerCount) bool { return c.Known && c.Count == 1 })
	assert.Equal(t, pollID, recovered.PollID)

	tracker.Leave(context.Background(), handle)
}

func TestPollDeletionEndsPresenceHandles(t *testing.T) {
	broker := presence.NewMemoryBroker()
	stream := events.NewMemoryStream()
	tracker := NewPresenceTracker(broker, stream, testLogger(), time.Second)
	pollID := uuid.New()

	handle, err := tracker.Join(context.Background(), pollID, "user:alice")
	require.NoError(t, err)
	waitForCount(t, handle, func(c ViewerCount) bool { return c.Known && c.Count == 1 })
	awaitSubscribers(t, stream, 1)

	err = stream.Publish(context.Background(), events.PollChannel(pollID.String()), events.Notification{
		Table:      events.TablePolls,
		Kind:       events.KindDelete,
		TopicKey:   pollID.String(),
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-handle.Updates():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("handle not closed after poll deletion")
		}
	}
}

func TestLastLeaveTearsDownChannel(t *testing.T) {
	broker := presence.NewMemoryBroker()
	tracker := NewPresenceTracker(broker, events.NewMemoryStream(), testLogger(), time.Second)
	pollID := uuid.New()

	handle, err := tracker.Join(context.Background(), pollID, "user:alice")
	require.NoError(t, err)
	waitForCount(t, handle, func(c ViewerCount) bool { return c.Known && c.Count == 1 })
	tracker.Leave(context.Background(), handle)

	// A fresh join starts a new channel and counts from scratch.
	again, err := tracker.Join(context.Background(), pollID, "user:bob")
	require.NoError(t, err)
	count := waitForCount(t, again, func(c ViewerCount) bool { return c.Known && c.Count == 1 })
	assert.Equal(t, pollID, count.PollID)
	tracker.Leave(context.Background(), again)
}
