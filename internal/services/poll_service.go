package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"pollpulse/internal/domain/poll"
	"pollpulse/internal/events"
	"pollpulse/internal/repository"
	pollpulse_errors "pollpulse/pkg/errors"
	"pollpulse/pkg/logger"
)

type PollService struct {
	polls     repository.PollRepository
	publisher events.Publisher
	log       *logger.Logger
}

func NewPollService(polls repository.PollRepository, publisher events.Publisher, log *logger.Logger) *PollService {
	return &PollService{polls: polls, publisher: publisher, log: log}
}

type CreatePollInput struct {
	Question string
	Options  []string
	Settings poll.Settings
	EndsAt   *time.Time
	// CreatedBy is nil for anonymous creation.
	CreatedBy *string
}

func (s *PollService) Create(ctx context.Context, in CreatePollInput) (poll.Poll, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return poll.Poll{}, pollpulse_errors.ErrInvalidInput
	}
	options, err := poll.NormalizeOptions(in.Options)
	if err != nil {
		return poll.Poll{}, err
	}
	if in.EndsAt != nil && !in.EndsAt.After(time.Now()) {
		return poll.Poll{}, pollpulse_errors.ErrInvalidInput
	}

	p := poll.Poll{
		ID:                    uuid.New(),
		Question:              question,
		Options:               options,
		AllowMultiple:         in.Settings.AllowMultiple,
		ShowResultsBeforeVote: in.Settings.ShowResultsBeforeVote,
		AllowVoteChange:       in.Settings.AllowVoteChange,
		CreatedAt:             time.Now(),
	}
	if in.EndsAt != nil {
		p.EndsAt = sql.NullTime{Time: *in.EndsAt, Valid: true}
	}
	if in.CreatedBy != nil {
		p.CreatedBy = sql.NullString{String: *in.CreatedBy, Valid: true}
	}

	if err := s.polls.Create(ctx, &p); err != nil {
		return poll.Poll{}, err
	}
	s.notify(ctx, p.ID, events.KindInsert)
	return p, nil
}

func (s *PollService) Get(ctx context.Context, id uuid.UUID) (poll.Poll, error) {
	return s.polls.GetByID(ctx, id)
}

func (s *PollService) List(ctx context.Context, q repository.FeedQuery) ([]poll.Poll, int64, error) {
	return s.polls.List(ctx, q)
}

// Delete removes a poll on behalf of its creator. The engine learns of it
// only through the delete notification and stops tracking the poll.
func (s *PollService) Delete(ctx context.Context, id uuid.UUID, requester string) error {
	p, err := s.polls.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !p.CreatedBy.Valid || p.CreatedBy.String != requester {
		return pollpulse_errors.ErrForbidden
	}
	if err := s.polls.Delete(ctx, id); err != nil {
		return err
	}
	s.notify(ctx, id, events.KindDelete)
	return nil
}

// notify publishes the poll-table change to the feed channel and to the
// poll's own topic. Best effort: a dropped notification is healed by the
// subscribers' periodic reconcile.
func (s *PollService) notify(ctx context.Context, id uuid.UUID, kind events.Kind) {
	n := events.Notification{
		Table:      events.TablePolls,
		Kind:       kind,
		TopicKey:   id.String(),
		OccurredAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, events.ChannelFeed, n); err != nil {
		s.log.Warnf("publish poll %s %s to feed: %v", kind, id, err)
	}
	if err := s.publisher.Publish(ctx, events.PollChannel(id.String()), n); err != nil {
		s.log.Warnf("publish poll %s %s to topic: %v", kind, id, err)
	}
}
