package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollpulse/internal/domain/poll"
	pollpulse_errors "pollpulse/pkg/errors"
)

func seedPolls(t *testing.T, repo *MemoryPollRepository, n int, createdBy string) []poll.Poll {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	out := make([]poll.Poll, 0, n)
	for i := 0; i < n; i++ {
		p := poll.Poll{
			ID:        uuid.New(),
			Question:  fmt.Sprintf("Question %d?", i),
			Options:   poll.OptionList{"Yes", "No"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if createdBy != "" {
			p.CreatedBy = sql.NullString{String: createdBy, Valid: true}
		}
		require.NoError(t, repo.Create(context.Background(), &p))
		out = append(out, p)
	}
	return out
}

func TestMemoryListPagination(t *testing.T) {
	repo := NewMemoryPollRepository()
	seedPolls(t, repo, 5, "")

	page1, total, err := repo.List(context.Background(), FeedQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, page1, 2)

	page3, total, err := repo.List(context.Background(), FeedQuery{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, page3, 1)

	beyond, _, err := repo.List(context.Background(), FeedQuery{Page: 4, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestMemoryListSortNewestFirst(t *testing.T) {
	repo := NewMemoryPollRepository()
	seeded := seedPolls(t, repo, 3, "")

	newest, _, err := repo.List(context.Background(), FeedQuery{})
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, seeded[2].ID, newest[0].ID)

	oldest, _, err := repo.List(context.Background(), FeedQuery{Sort: SortOldest})
	require.NoError(t, err)
	assert.Equal(t, seeded[0].ID, oldest[0].ID)
}

func TestMemoryListFilterMine(t *testing.T) {
	repo := NewMemoryPollRepository()
	mine := seedPolls(t, repo, 2, "user:alice")
	seedPolls(t, repo, 3, "user:bob")
	seedPolls(t, repo, 1, "")

	got, total, err := repo.List(context.Background(), FeedQuery{
		Filter:    FilterMine,
		CreatedBy: "user:alice",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.ElementsMatch(t,
		[]uuid.UUID{mine[0].ID, mine[1].ID},
		[]uuid.UUID{got[0].ID, got[1].ID},
	)
}

func TestMemoryListSearch(t *testing.T) {
	repo := NewMemoryPollRepository()
	p := poll.Poll{
		ID:       uuid.New(),
		Question: "Favorite COLOR of all time?",
		Options:  poll.OptionList{"Red", "Blue"},
	}
	require.NoError(t, repo.Create(context.Background(), &p))
	seedPolls(t, repo, 2, "")

	got, total, err := repo.List(context.Background(), FeedQuery{Search: "color"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, p.ID, got[0].ID)
}

func TestMemoryVoteStoreUpsert(t *testing.T) {
	store := NewMemoryVoteStore()
	pollID := uuid.New()

	first := poll.Vote{PollID: pollID, VoterID: "user:alice", SelectedOptions: poll.OptionList{"Red"}}
	require.NoError(t, store.Upsert(context.Background(), &first))
	assert.NotEqual(t, uuid.Nil, first.ID)

	replacement := poll.Vote{PollID: pollID, VoterID: "user:alice", SelectedOptions: poll.OptionList{"Blue"}}
	require.NoError(t, store.Upsert(context.Background(), &replacement))
	assert.Equal(t, first.ID, replacement.ID, "upsert must replace in place, not add")

	votes, err := store.ListVotes(context.Background(), pollID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, poll.OptionList{"Blue"}, votes[0].SelectedOptions)

	voted, err := store.HasVoted(context.Background(), pollID, "user:alice")
	require.NoError(t, err)
	assert.True(t, voted)
	voted, err = store.HasVoted(context.Background(), pollID, "user:bob")
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestMemoryCreateDuplicate(t *testing.T) {
	repo := NewMemoryPollRepository()
	p := seedPolls(t, repo, 1, "")[0]
	err := repo.Create(context.Background(), &p)
	assert.ErrorIs(t, err, pollpulse_errors.ErrAlreadyExists)
}
