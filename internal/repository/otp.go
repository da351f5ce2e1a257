package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/musicshare/api/internal/model"
)

type OtpRepository struct {
	db *gorm.DB
}

func NewOtpRepository(db *gorm.DB) *OtpRepository {
	return &OtpRepository{db: db}
}

// CreateWithRotation expires every pending request for the user and inserts
// the replacement inside one transaction. A failure partway rolls back both
// steps, so a new pending row can never coexist with a stale one. If two
// issuance calls race past the bulk update, the partial unique index on
// (user_id, status) rejects the second insert and the whole transaction
// rolls back; the caller retries.
func (r *OtpRepository) CreateWithRotation(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) (*model.OtpRequest, error) {
	request := &model.OtpRequest{
		UserID:    userID,
		Code:      code,
		Status:    model.OtpStatusPending,
		ExpiresAt: expiresAt,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.OtpRequest{}).
			Where("user_id = ? AND status = ?", userID, model.OtpStatusPending).
			Update("status", model.OtpStatusExpired).Error; err != nil {
			return err
		}
		return tx.Create(request).Error
	})
	if err != nil {
		return nil, err
	}

	return request, nil
}

// GetPending returns the user's single pending request, if any.
func (r *OtpRepository) GetPending(ctx context.Context, userID uuid.UUID) (*model.OtpRequest, error) {
	var request model.OtpRequest
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.OtpStatusPending).
		First(&request)
	if result.Error != nil {
		return nil, result.Error
	}
	return &request, nil
}

// MarkExpired transitions a single request out of pending. Used both to
// consume an accepted code and to lazily expire a stale one at verification
// time. The status guard makes the transition idempotent under races.
func (r *OtpRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&model.OtpRequest{}).
		Where("id = ? AND status = ?", id, model.OtpStatusPending).
		Update("status", model.OtpStatusExpired)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountPending reports how many pending rows a user has. Exists for
// invariant checks; application code relies on GetPending.
func (r *OtpRepository) CountPending(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&model.OtpRequest{}).
		Where("user_id = ? AND status = ?", userID, model.OtpStatusPending).
		Count(&count)
	return count, result.Error
}
