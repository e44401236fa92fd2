package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pollpulse/internal/domain/poll"
	pollpulse_errors "pollpulse/pkg/errors"
)

type PostgresVoteStore struct {
	db *gorm.DB
}

func NewVoteStore(db *gorm.DB) VoteStore {
	return &PostgresVoteStore{db: db}
}

// Upsert relies on the unique index over (poll_id, voter_id): a conflicting
// write replaces selected_options and updated_at instead of adding a row.
func (s *PostgresVoteStore) Upsert(ctx context.Context, v *poll.Vote) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := time.Now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "poll_id"}, {Name: "voter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"selected_options", "updated_at"}),
	}).Create(v)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrForeignKeyViolated) {
			// The referenced poll is gone.
			return pollpulse_errors.ErrConflict
		}
		return res.Error
	}
	return nil
}

func (s *PostgresVoteStore) ListVotes(ctx context.Context, pollID uuid.UUID) ([]poll.Vote, error) {
	var votes []poll.Vote
	err := s.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("created_at ASC").
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	return votes, nil
}

func (s *PostgresVoteStore) HasVoted(ctx context.Context, pollID uuid.UUID, voterID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&poll.Vote{}).
		Where("poll_id = ? AND voter_id = ?", pollID, voterID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
