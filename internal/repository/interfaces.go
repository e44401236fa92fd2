package repository

import (
	"context"

	"github.com/google/uuid"

	"pollpulse/internal/domain/poll"
)

// FeedQuery describes one page of the poll listing.
type FeedQuery struct {
	Filter    string // FilterAll or FilterMine
	Sort      string // SortNewest, SortOldest, SortEndingSoon
	Search    string // substring match on the question, empty for none
	Page      int    // 1-based
	PageSize  int
	CreatedBy string // voter identity, required for FilterMine
}

const (
	FilterAll  = "all"
	FilterMine = "mine"

	SortNewest     = "newest"
	SortOldest     = "oldest"
	SortEndingSoon = "ending_soon"
)

type PollRepository interface {
	Create(ctx context.Context, p *poll.Poll) error
	GetByID(ctx context.Context, id uuid.UUID) (poll.Poll, error)
	List(ctx context.Context, q FeedQuery) ([]poll.Poll, int64, error)
	// Delete removes a poll and its votes. Deletion is an external operation;
	// the engine only ever reacts to its change notification.
	Delete(ctx context.Context, id uuid.UUID) error
}

// VoteStore is the durable one-row-per-(poll, voter) vote table. Dedup is
// enforced here via the upsert conflict target, never by read-then-write.
type VoteStore interface {
	// Upsert inserts the vote or, on (poll_id, voter_id) conflict, replaces
	// the existing row's selected_options and update timestamp.
	Upsert(ctx context.Context, v *poll.Vote) error
	// ListVotes returns a point-in-time snapshot of all votes for the poll.
	ListVotes(ctx context.Context, pollID uuid.UUID) ([]poll.Vote, error)
	HasVoted(ctx context.Context, pollID uuid.UUID, voterID string) (bool, error)
}
