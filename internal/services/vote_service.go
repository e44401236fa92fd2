package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"pollpulse/internal/domain/poll"
	"pollpulse/internal/events"
	"pollpulse/internal/repository"
	pollpulse_errors "pollpulse/pkg/errors"
	"pollpulse/pkg/logger"
)

type VoteService struct {
	polls     repository.PollRepository
	votes     repository.VoteStore
	publisher events.Publisher
	log       *logger.Logger
}

func NewVoteService(polls repository.PollRepository, votes repository.VoteStore, publisher events.Publisher, log *logger.Logger) *VoteService {
	return &VoteService{polls: polls, votes: votes, publisher: publisher, log: log}
}

// Submit validates and upserts a vote. The (poll, voter) upsert is the dedup
// mechanism: a resubmission replaces the previous selection and never adds a
// row. Expiry and the allow-vote-change policy are enforced here at write
// time rather than trusted to the caller.
func (s *VoteService) Submit(ctx context.Context, pollID uuid.UUID, voter Voter, selected []string) (poll.Vote, error) {
	p, err := s.polls.GetByID(ctx, pollID)
	if err != nil {
		return poll.Vote{}, err
	}
	if p.Closed(time.Now()) {
		return poll.Vote{}, pollpulse_errors.ErrPollClosed
	}

	trimmed := make([]string, 0, len(selected))
	for _, label := range selected {
		trimmed = append(trimmed, strings.TrimSpace(label))
	}
	if err := p.ValidateSelection(trimmed); err != nil {
		return poll.Vote{}, err
	}

	voted, err := s.votes.HasVoted(ctx, pollID, voter.ID)
	if err != nil {
		return poll.Vote{}, err
	}
	if voted && !p.AllowVoteChange {
		return poll.Vote{}, pollpulse_errors.ErrVoteChangeDisallowed
	}

	v := poll.Vote{
		PollID:          pollID,
		VoterID:         voter.ID,
		SelectedOptions: trimmed,
	}
	if err := s.votes.Upsert(ctx, &v); err != nil {
		return poll.Vote{}, err
	}

	kind := events.KindInsert
	if voted {
		kind = events.KindUpdate
	}
	n := events.Notification{
		Table:      events.TableVotes,
		Kind:       kind,
		TopicKey:   pollID.String(),
		OccurredAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, events.PollChannel(pollID.String()), n); err != nil {
		// Best effort: the tally's periodic reconcile recovers a missed one.
		s.log.Warnf("publish vote %s for poll %s: %v", kind, pollID, err)
	}
	return v, nil
}

func (s *VoteService) HasVoted(ctx context.Context, pollID uuid.UUID, voter Voter) (bool, error) {
	return s.votes.HasVoted(ctx, pollID, voter.ID)
}
