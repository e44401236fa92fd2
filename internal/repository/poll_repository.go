package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pollpulse/internal/domain/poll"
	pollpulse_errors "pollpulse/pkg/errors"
)

type PostgresPollRepository struct {
	db *gorm.DB
}

func NewPollRepository(db *gorm.DB) PollRepository {
	return &PostgresPollRepository{db: db}
}

func (r *PostgresPollRepository) Create(ctx context.Context, p *poll.Poll) error {
	res := r.db.WithContext(ctx).Create(p)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return pollpulse_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresPollRepository) GetByID(ctx context.Context, id uuid.UUID) (poll.Poll, error) {
	var p poll.Poll
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return poll.Poll{}, pollpulse_errors.ErrNotFound
		}
		return poll.Poll{}, err
	}
	return p, nil
}

func (r *PostgresPollRepository) List(ctx context.Context, q FeedQuery) ([]poll.Poll, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 12
	}

	query := r.db.WithContext(ctx).Model(&poll.Poll{})

	if q.Filter == FilterMine {
		query = query.Where("created_by = ?", q.CreatedBy)
	}
	if q.Search != "" {
		query = query.Where("question ILIKE ?", "%"+q.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch q.Sort {
	case SortOldest:
		query = query.Order("created_at ASC")
	case SortEndingSoon:
		query = query.Order("ends_at ASC NULLS LAST")
	default:
		query = query.Order("created_at DESC")
	}

	var polls []poll.Poll
	err := query.
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&polls).Error
	if err != nil {
		return nil, 0, err
	}
	return polls, total, nil
}

func (r *PostgresPollRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("poll_id = ?", id).Delete(&poll.Vote{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&poll.Poll{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return pollpulse_errors.ErrNotFound
		}
		return nil
	})
}
