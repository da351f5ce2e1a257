package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/musicshare/api/internal/model"
	"github.com/musicshare/api/pkg/logger"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

// GetByPhone looks a user up by normalized phone number. Callers must pass
// E.164 input; raw user input never reaches this query.
func (r *UserRepository) GetByPhone(ctx context.Context, phoneNumber string) (*model.User, error) {
	var user model.User
	result := r.db.WithContext(ctx).Where("phone_number = ?", phoneNumber).First(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

// GetOrCreateByPhone returns the user for a normalized phone number, creating
// one with pending status on first sight. The unique constraint on
// phone_number resolves create races: the loser re-reads the winner's row.
func (r *UserRepository) GetOrCreateByPhone(ctx context.Context, phoneNumber string) (*model.User, error) {
	user := model.User{
		PhoneNumber: phoneNumber,
		Status:      model.UserStatusPending,
	}

	result := r.db.WithContext(ctx).
		Where(model.User{PhoneNumber: phoneNumber}).
		Attrs(model.User{Status: model.UserStatusPending}).
		FirstOrCreate(&user)
	if result.Error != nil {
		var existing model.User
		if retry := r.db.WithContext(ctx).Where("phone_number = ?", phoneNumber).First(&existing); retry.Error == nil {
			return &existing, nil
		}
		logger.GetLogger().Error("Failed to get or create user",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}

	if result.RowsAffected > 0 {
		logger.GetLogger().Info("User created",
			zap.String("user_id", user.ID.String()),
		)
	}

	return &user, nil
}

// UpdateStatus advances a user's lifecycle status.
func (r *UserRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateRefreshToken stores the lookup key and bcrypt hash of a session
// refresh token.
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, id uuid.UUID, lookupKey, refreshTokenHash string, expiresAt *time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"refresh_token_lookup":     lookupKey,
		"refresh_token_hash":       refreshTokenHash,
		"refresh_token_expires_at": expiresAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByRefreshToken resolves a presented session refresh token to its user.
// The candidate rows come from the indexed lookup key; the bcrypt compare is
// the authoritative check.
func (r *UserRepository) FindByRefreshToken(ctx context.Context, lookupKey, refreshToken string) (*model.User, error) {
	var users []model.User
	result := r.db.WithContext(ctx).
		Where("refresh_token_lookup = ?", lookupKey).
		Where("refresh_token_expires_at IS NULL OR refresh_token_expires_at > ?", time.Now()).
		Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}

	for _, user := range users {
		if err := bcrypt.CompareHashAndPassword([]byte(user.RefreshTokenHash), []byte(refreshToken)); err == nil {
			return &user, nil
		}
	}

	return nil, gorm.ErrRecordNotFound
}

// Delete removes a user. Dependent OTP requests and linked accounts go with
// it through the cascading foreign keys.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&model.User{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
