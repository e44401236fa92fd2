package services

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
	"pollpulse/pkg/logger"
)

type voteFixture struct {
	polls   *repository.MemoryPollRepository
	votes   *repository.MemoryVoteStore
	stream  *events.MemoryStream
	service *VoteService
}

func newVoteFixture(t *testing.T) *voteFixture {
	t.Helper()
	polls := repository.NewMemoryPollRepository()
	votes := repository.NewMemoryVoteStore()
	stream := events.NewMemoryStream()
	return &voteFixture{
		polls:   polls,
		votes:   votes,
		stream:  stream,
		service: NewVoteService(polls, votes, stream, logger.New(logger.DevelopmentMode)),
	}
}

func (f *voteFixture) createPoll(t *testing.T, settings poll.Settings, endsAt *time.Time) poll.Poll {
	t.Helper()
	p := poll.Poll{
		ID:                    uuid.New(),
		Question:              "Favorite color?",
		Options:               poll.OptionList{"Red", "Blue"},
		AllowMultiple:         settings.AllowMultiple,
		ShowResultsBeforeVote: settings.ShowResultsBeforeVote,
		AllowVoteChange:       settings.AllowVoteChange,
		CreatedAt:             time.Now(),
	}
	if endsAt != nil {
		p.EndsAt.Time = *endsAt
		p.EndsAt.Valid = true
	}
	require.NoError(t, f.polls.Create(context.Background(), &p))
	return p
}

func TestSubmitRecordsVote(t *testing.T) {
	f := newVoteFixture(t)
	p := f.createPoll(t, poll.Settings{}, nil)
	voter := Voter{ID: "user:alice", Authenticated: true}

	v, err := f.service.Submit(context.Background(), p.ID, voter, []string{" Red "})
	require.NoError(t, err)
	assert.Equal(t, poll.OptionList{"Red"}, v.SelectedOptions)
	assert.Equal(t, voter.ID, v.VoterID)

	voted, err := f.service.HasVoted(context.Background(), p.ID, voter)
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestSubmitValidation(t *testing.T) {
	f := newVoteFixture(t)
	single := f.createPoll(t, poll.Settings{}, nil)
	multi := f.createPoll(t, poll.Settings{AllowMultiple: true}, nil)
	voter := Voter{ID: "anon:device-1"}

	tests := []struct {
		name     string
		selected []string
	}{
		{name: "empty selection", selected: nil},
		{name: "undeclared option", selected: []string{"Purple"}},
		{name: "two options on single-choice poll", selected: []string{"Red", "Blue"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Submit(context.Background(), single.ID, voter, tt.selected)
			assert.ErrorIs(t, err, pollpulse_errors.ErrInvalidInput)
		})
	}

	_, err := f.service.Submit(context.Background(), multi.ID, voter, []string{"Red", "Blue"})
	assert.NoError(t, err, "multi-select poll accepts multiple options")
}

func TestSubmitOnClosedPoll(t *testing.T) {
	f := newVoteFixture(t)
	past := time.Now().Add(-time.Hour)
	p := f.createPoll(t, poll.Settings{}, &past)

	_, err := f.service.Submit(context.Background(), p.ID, Voter{ID: "user:alice"}, []string{"Red"})
	assert.ErrorIs(t, err, pollpulse_errors.ErrPollClosed)
}

func TestSubmitUnknownPoll(t *testing.T) {
	f := newVoteFixture(t)
	_, err := f.service.Submit(context.Background(), uuid.New(), Voter{ID: "user:alice"}, []string{"Red"})
	assert.ErrorIs(t, err, pollpulse_errors.ErrNotFound)
}

func TestResubmitReplacesWhenChangeAllowed(t *testing.T) {
	f := newVoteFixture(t)
	p := f.createPoll(t, poll.Settings{AllowVoteChange: true}, nil)
	voter := Voter{ID: "user:alice"}

	_, err := f.service.Submit(context.Background(), p.ID, voter, []string{"Red"})
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), p.ID, voter, []string{"Blue"})
	require.NoError(t, err)

	votes, err := f.votes.ListVotes(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1, "resubmission must replace, never add")
	assert.Equal(t, poll.OptionList{"Blue"}, votes[0].SelectedOptions)
}

func TestResubmitRejectedWhenChangeDisallowed(t *testing.T) {
	f := newVoteFixture(t)
	p := f.createPoll(t, poll.Settings{}, nil)
	voter := Voter{ID: "user:alice"}

	_, err := f.service.Submit(context.Background(), p.ID, voter, []string{"Red"})
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), p.ID, voter, []string{"Blue"})
	assert.ErrorIs(t, err, pollpulse_errors.ErrVoteChangeDisallowed)

	votes, err := f.votes.ListVotes(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, poll.OptionList{"Red"}, votes[0].SelectedOptions)
}

func TestDistinctVotersVoteIndependently(t *testing.T) {
	f := newVoteFixture(t)
	p := f.createPoll(t, poll.Settings{}, nil)

	_, err := f.service.Submit(context.Background(), p.ID, Voter{ID: "user:alice"}, []string{"Red"})
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), p.ID, Voter{ID: "anon:device-1"}, []string{"Blue"})
	require.NoError(t, err)

	votes, err := f.votes.ListVotes(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, votes, 2)
}
