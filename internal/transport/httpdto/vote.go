package httpdto

import (
	"time"

	"pollpulse/internal/domain/poll"
	"pollpulse/internal/engine"
)

type SubmitVoteRequest struct {
	SelectedOptions []string `json:"selected_options" binding:"required"`
}

type VoteResponse struct {
	ID              string    `json:"id"`
	PollID          string    `json:"poll_id"`
	SelectedOptions []string  `json:"selected_options"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type TallyResponse struct {
	PollID     string             `json:"poll_id"`
	Counts     map[string]int     `json:"counts"`
	Percents   map[string]float64 `json:"percents"`
	Total      int                `json:"total"`
	ComputedAt time.Time          `json:"computed_at"`
}

func FromVote(v poll.Vote) VoteResponse {
	return VoteResponse{
		ID:              v.ID.String(),
		PollID:          v.PollID.String(),
		SelectedOptions: v.SelectedOptions,
		UpdatedAt:       v.UpdatedAt,
	}
}

func FromTally(t engine.Tally) TallyResponse {
	return TallyResponse{
		PollID:     t.PollID.String(),
		Counts:     t.Counts,
		Percents:   t.Percentages(),
		Total:      t.Total,
		ComputedAt: t.ComputedAt,
	}
}
