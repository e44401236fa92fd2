package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pollpulse/internal/domain/poll"
	pollpulse_errors "pollpulse/pkg/errors"
)

// MemoryPollRepository and MemoryVoteStore back single-instance mode and the
// engine tests. The Postgres implementations are the durable truth in
// production; both sides honor the same upsert contract.

type MemoryPollRepository struct {
	mu    sync.RWMutex
	polls map[uuid.UUID]poll.Poll
}

func NewMemoryPollRepository() *MemoryPollRepository {
	return &MemoryPollRepository{polls: make(map[uuid.UUID]poll.Poll)}
}

func (r *MemoryPollRepository) Create(ctx context.Context, p *poll.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.polls[p.ID]; exists {
		return pollpulse_errors.ErrAlreadyExists
	}
	r.polls[p.ID] = *p
	return nil
}

func (r *MemoryPollRepository) GetByID(ctx context.Context, id uuid.UUID) (poll.Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.polls[id]
	if !ok {
		return poll.Poll{}, pollpulse_errors.ErrNotFound
	}
	return p, nil
}

func (r *MemoryPollRepository) List(ctx context.Context, q FeedQuery) ([]poll.Poll, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 12
	}

	r.mu.RLock()
	matched := make([]poll.Poll, 0, len(r.polls))
	for _, p := range r.polls {
		if q.Filter == FilterMine && (!p.CreatedBy.Valid || p.CreatedBy.String != q.CreatedBy) {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(p.Question), strings.ToLower(q.Search)) {
			continue
		}
		matched = append(matched, p)
	}
	r.mu.RUnlock()

	switch q.Sort {
	case SortOldest:
		sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	case SortEndingSoon:
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].EndsAt.Valid != matched[j].EndsAt.Valid {
				return matched[i].EndsAt.Valid
			}
			return matched[i].EndsAt.Time.Before(matched[j].EndsAt.Time)
		})
	default:
		sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	}

	total := int64(len(matched))
	start := (q.Page - 1) * q.PageSize
	if start >= len(matched) {
		return []poll.Poll{}, total, nil
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *MemoryPollRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.polls[id]; !ok {
		return pollpulse_errors.ErrNotFound
	}
	delete(r.polls, id)
	return nil
}

type voteKey struct {
	pollID  uuid.UUID
	voterID string
}

type MemoryVoteStore struct {
	mu    sync.RWMutex
	votes map[voteKey]poll.Vote

	failListVotes bool
}

func NewMemoryVoteStore() *MemoryVoteStore {
	return &MemoryVoteStore{votes: make(map[voteKey]poll.Vote)}
}

// SetFailListVotes makes subsequent ListVotes calls fail; tests use it to
// exercise the transient-read path.
func (s *MemoryVoteStore) SetFailListVotes(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failListVotes = fail
}

func (s *MemoryVoteStore) Upsert(ctx context.Context, v *poll.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{pollID: v.PollID, voterID: v.VoterID}
	now := time.Now()
	if existing, ok := s.votes[key]; ok {
		existing.SelectedOptions = v.SelectedOptions
		existing.UpdatedAt = now
		s.votes[key] = existing
		*v = existing
		return nil
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	s.votes[key] = *v
	return nil
}

func (s *MemoryVoteStore) ListVotes(ctx context.Context, pollID uuid.UUID) ([]poll.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failListVotes {
		return nil, pollpulse_errors.ErrServiceUnavailable
	}
	var votes []poll.Vote
	for key, v := range s.votes {
		if key.pollID == pollID {
			votes = append(votes, v)
		}
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].CreatedAt.Before(votes[j].CreatedAt) })
	return votes, nil
}

func (s *MemoryVoteStore) HasVoted(ctx context.Context, pollID uuid.UUID, voterID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.votes[voteKey{pollID: pollID, voterID: voterID}]
	return ok, nil
}
