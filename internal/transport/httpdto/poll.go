package httpdto

import (
	"time"

	"pollpulse/internal/domain/poll"
)

type PollSettings struct {
	AllowMultiple         bool `json:"allow_multiple"`
	ShowResultsBeforeVote bool `json:"show_results_before_vote"`
	AllowVoteChange       bool `json:"allow_vote_change"`
}

type CreatePollRequest struct {
	Question string       `json:"question" binding:"required"`
	Options  []string     `json:"options" binding:"required"`
	Settings PollSettings `json:"settings"`
	EndsAt   *time.Time   `json:"ends_at,omitempty"`
}

type PollResponse struct {
	ID        string       `json:"id"`
	Question  string       `json:"question"`
	Options   []string     `json:"options"`
	Settings  PollSettings `json:"settings"`
	CreatedBy *string      `json:"created_by,omitempty"`
	EndsAt    *time.Time   `json:"ends_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type ListPollsResponse struct {
	Polls []PollResponse `json:"polls"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
}

func FromPoll(p poll.Poll) PollResponse {
	resp := PollResponse{
		ID:       p.ID.String(),
		Question: p.Question,
		Options:  p.Options,
		Settings: PollSettings{
			AllowMultiple:         p.AllowMultiple,
			ShowResultsBeforeVote: p.ShowResultsBeforeVote,
			AllowVoteChange:       p.AllowVoteChange,
		},
		CreatedAt: p.CreatedAt,
	}
	if p.CreatedBy.Valid {
		createdBy := p.CreatedBy.String
		resp.CreatedBy = &createdBy
	}
	if p.EndsAt.Valid {
		endsAt := p.EndsAt.Time
		resp.EndsAt = &endsAt
	}
	return resp
}

func FromPollSlice(polls []poll.Poll) []PollResponse {
	out := make([]PollResponse, 0, len(polls))
	for _, p := range polls {
		out = append(out, FromPoll(p))
	}
	return out
}
