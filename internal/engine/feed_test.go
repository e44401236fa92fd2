package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollpulse/internal/domain/poll"
	"pollpulse/internal/events"
	"pollpulse/internal/repository"
	pollpulse_errors "pollpulse/pkg/errors"
)

func notifyPoll(t *testing.T, stream *events.MemoryStream, pollID uuid.UUID, kind events.Kind) {
	t.Helper()
	err := stream.Publish(context.Background(), events.ChannelFeed, events.Notification{
		Table:      events.TablePolls,
		Kind:       kind,
		TopicKey:   pollID.String(),
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
}

func nextWindow(t *testing.T, sub *FeedSubscription) []poll.Poll {
	t.Helper()
	select {
	case window, ok := <-sub.Updates():
		require.True(t, ok, "updates channel closed unexpectedly")
		return window
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed window")
		return nil
	}
}

func windowIDs(window []poll.Poll) []uuid.UUID {
	ids := make([]uuid.UUID, len(window))
	for i, p := range window {
		ids[i] = p.ID
	}
	return ids
}

func TestFeedSeedsCurrentWindow(t *testing.T) {
	polls := repository.NewMemoryPollRepository()
	stream := events.NewMemoryStream()
	feeds := NewFeedSynchronizer(polls, stream, testLogger(), 12)

	first := newTestPoll(t, polls, "Red", "Blue")
	second := newTestPoll(t, polls, "Yes", "No")

	sub, err := feeds.Subscribe(context.Background(), FeedView{}, "")
	require.NoError(t, err)
	defer feeds.Cancel(sub)

	window := nextWindow(t, sub)
	assert.Len(t, window, 2)
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, windowIDs(window))
}

func TestFeedSeedFailureFailsFast(t *testing.T) {
	polls := repository.NewMemoryPollRepository()
	stream := events.NewMemoryStream()
	feeds := NewFeedSynchronizer(polls, stream, testLogger(), 12)

	sub, err := feeds.Subscribe(context.Background(), FeedView{Page: -3}, "")
	require.NoError(t, err)
	feeds.Cancel(sub)

	// A repository that cannot serve the seed read must fail the subscribe.
	failing := NewFeedSynchronizer(failingPollRepository{}, stream, testLogger(), 12)
	_, err = failing.Subscribe(context.Background(), FeedView{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, pollpulse_errors.ErrLoadFailed)
}

type failingPollRepository struct{}

func (failingPollRepository) Create(context.Context, *poll.Poll) error { return nil }
func (failingPollRepository) GetByID(context.Context, uuid.UUID) (poll.Poll, error) {
	return poll.Poll{}, pollpulse_errors.ErrServiceUnavailable
}
func (failingPollRepository) List(context.Context, repository.FeedQuery) ([]poll.Poll, int64, error) {
	return nil, 0, pollpulse_errors.ErrServiceUnavailable
}
func (failingPollRepository) Delete(context.Context, uuid.UUID) error { return nil }

func TestFeedAdmitsNewPollOnUnrestrictedFirstPage(t *testing.T) {
	polls := repository.NewMemoryPollRepository()
	stream := events.NewMemoryStream()
	feeds := NewFeedSynchronizer(polls, stream, testLogger(), 12)

	existing := newTestPoll(t, polls, "Red", "Blue")
	sub, err := feeds.Subscribe(context.Background(), FeedView{}, "")
	require.NoError(t, err)
	defer feeds.Cancel(sub)
	nextWindow(t, sub)
	awaitSubscribers(t, stream, 1)

	created := newTestPoll(t, polls, "Yes", "No")
	notifyPoll(t, stream, created.ID, events.KindInsert)

	window := nextWindow(t, sub)
	require.Len(t, window, 2)
	// Newest first.
	assert.Equal(t, created.ID, window[0].ID)
	assert.Equal(t, existing.ID, window[1].ID)
}

func TestFeedTruncatesAtPageSize(t *testing.T) {
	polls := repository.NewMemoryPollRepository()
	stream := events.NewMemoryStream()
	feeds := NewFeedSynchronizer(polls, stream, testLogger(), 12)

	for i := 0; i < 3; i++ {
		newTestPoll(t, polls, "Red", "Blue")
	}
	sub, err := feeds.Subscribe(context.Background(), FeedView{PageSize: 3}, "")
	require.NoError(t, err)
	defer feeds.Cancel(sub)
	require.Len(t, nextWindow(t, sub), 3)
	awaitSubscribers(t, stream, 1)

	created := newTestPoll(t, polls, "Yes", "No")
	notifyPoll(t, stream, created.ID, events.KindInsert)

	window := nextWindow(t, sub)
	require.Len(t, window, 3)
	assert.Equal(t, created.ID, window[0].ID)
}

func TestFeedSuppressesAdmissionForNarrowedViews(t *testing.T) {
	tests := []struct {
		name string
		view FeedView
	}{
		{"second page", FeedView{Page: 2}},
		{"active search", FeedView{Search: "color"}},
		{"mine filter", FeedView{Filter: repository.FilterMine}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			polls := repository.NewMemoryPollRepository()
			stream := events.NewMemoryStream()
			feeds := NewFeedSynchronizer(polls, stream, testLogger(), 12)

			sub, err := feeds.Subscribe(context.Background(), tt.view, "user:alice")
			require.NoError(t, err)
			defer feeds.Cancel(sub)
			nextWindow(t, sub)
			awaitSubscribers(t, stream, 1)

			created := newTestPoll(t, polls, "Red", "Blue")
			notifyPoll(t, stream, created.ID, events.KindInsert)

			select {
			case window := <-sub.Updates():
				t.Fatalf("narrowed view admitted a live insertion: %v", windowIDs(window))
			case <-time.After(200 * time.Millisecond):
			}
		})
	}
}

func TestFeedDuplicateInsertionIsNoOp(t *testing.T) {
	polls := repository.NewMemoryPollRepository()
	stream := events.NewMemoryStream()
	feeds := NewFeedSynchronizer(polls, stream, testLogger(), 12)

	existing := newTestPoll(t, polls, "Red", "Blue")
	sub, err := feeds.Subscribe(context.Background(), FeedView{}, "")
	require.NoError(t, err)
	defer feeds.Cancel(sub)
	nextWindow(t, sub)
	awaitSubscribers(t, stream, 1)

	notifyPoll(t, stream, existing.ID, events.KindInsert)

	select {
	case window := <-sub.Updates():
		t.Fatalf("duplicate insertion produced a window: %v", windowIDs(window))
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFeedRemovesDeletedPoll(t *testing.T) {
	polls := repository.NewMemoryPollRepository()
	stream := events.NewMemoryStream()
	feeds := NewFeedSynchronizer(polls, stream, testLogger(), 12)

	kept := newTestPoll(t, polls, "Red", "Blue")
	doomed := newTestPoll(t, polls, "Yes", "No")
	sub, err := feeds.Subscribe(context.Background(), FeedView{}, "")
	require.NoError(t, err)
	defer feeds.Cancel(sub)
	require.Len(t, nextWindow(t, sub), 2)
	awaitSubscribers(t, stream, 1)

	require.NoError(t, polls.Delete(context.Background(), doomed.ID))
	notifyPoll(t, stream, doomed.ID, events.KindDelete)

	window := nextWindow(t, sub)
	require.Len(t, window, 1)
	assert.Equal(t, kept.ID, window[0].ID)
}
