package poll

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	pollpulse_errors "pollpulse/pkg/errors"
)

const (
	MinOptions = 2
	MaxOptions = 10
)

// Settings represents the per-poll voting policy flags.
type Settings struct {
	AllowMultiple         bool `json:"allow_multiple"`
	ShowResultsBeforeVote bool `json:"show_results_before_vote"`
	AllowVoteChange       bool `json:"allow_vote_change"`
}

// Poll represents the polls table. Immutable after creation except by its
// creator; the engine only ever reads it.
type Poll struct {
	ID                    uuid.UUID
	Question              string
	Options               OptionList
	AllowMultiple         bool
	ShowResultsBeforeVote bool
	AllowVoteChange       bool
	CreatedBy             sql.NullString // nullable, anonymous creation permitted
	EndsAt                sql.NullTime
	CreatedAt             time.Time
}

// Vote represents the votes table. At most one row exists per
// (poll_id, voter_id); resubmission replaces selected_options in place.
type Vote struct {
	ID              uuid.UUID
	PollID          uuid.UUID
	VoterID         string
	SelectedOptions OptionList
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Poll) TableName() string {
	return "polls"
}

func (Vote) TableName() string {
	return "votes"
}

func (p Poll) Settings() Settings {
	return Settings{
		AllowMultiple:         p.AllowMultiple,
		ShowResultsBeforeVote: p.ShowResultsBeforeVote,
		AllowVoteChange:       p.AllowVoteChange,
	}
}

// Closed reports whether the poll's expiry has passed at the given instant.
func (p Poll) Closed(now time.Time) bool {
	return p.EndsAt.Valid && now.After(p.EndsAt.Time)
}

func (p Poll) HasOption(label string) bool {
	for _, o := range p.Options {
		if o == label {
			return true
		}
	}
	return false
}

// NormalizeOptions trims the given labels and validates the 2..10 non-empty,
// duplicate-free contract for poll creation.
func NormalizeOptions(raw []string) (OptionList, error) {
	if len(raw) < MinOptions || len(raw) > MaxOptions {
		return nil, pollpulse_errors.ErrInvalidInput
	}
	seen := make(map[string]struct{}, len(raw))
	options := make(OptionList, 0, len(raw))
	for _, label := range raw {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, pollpulse_errors.ErrInvalidInput
		}
		if _, dup := seen[label]; dup {
			return nil, pollpulse_errors.ErrInvalidInput
		}
		seen[label] = struct{}{}
		options = append(options, label)
	}
	return options, nil
}

// ValidateSelection checks a vote's selected options against the poll:
// non-empty, no duplicates, subset of the declared options, and single-choice
// unless the poll allows multiple.
func (p Poll) ValidateSelection(selected []string) error {
	if len(selected) == 0 {
		return pollpulse_errors.ErrInvalidInput
	}
	if !p.AllowMultiple && len(selected) != 1 {
		return pollpulse_errors.ErrInvalidInput
	}
	seen := make(map[string]struct{}, len(selected))
	for _, label := range selected {
		if !p.HasOption(label) {
			return pollpulse_errors.ErrInvalidInput
		}
		if _, dup := seen[label]; dup {
			return pollpulse_errors.ErrInvalidInput
		}
		seen[label] = struct{}{}
	}
	return nil
}
