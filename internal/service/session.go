package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/musicshare/api/internal/dto"
	apperrors "github.com/musicshare/api/internal/errors"
	"github.com/musicshare/api/internal/model"
	"github.com/musicshare/api/internal/repository"
)

// SessionService issues and rotates API sessions for users who proved phone
// possession. The access token is a short-lived JWT; the refresh token is an
// opaque secret stored only as a bcrypt hash.
type SessionService struct {
	users           *repository.UserRepository
	jwt             *JWTService
	refreshDuration time.Duration
}

func NewSessionService(users *repository.UserRepository, jwt *JWTService, refreshDuration time.Duration) *SessionService {
	return &SessionService{
		users:           users,
		jwt:             jwt,
		refreshDuration: refreshDuration,
	}
}

// Issue creates a fresh session for the user, replacing any previous one.
func (s *SessionService) Issue(ctx context.Context, user *model.User, now time.Time) (*dto.SessionResponse, error) {
	accessToken, expiresAt, err := s.jwt.GenerateToken(user, now)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	refreshToken, err := s.jwt.GenerateRefreshToken()
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	refreshHash, err := s.jwt.HashRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	refreshExpires := now.Add(s.refreshDuration)
	lookupKey := s.jwt.RefreshTokenLookupKey(refreshToken)
	if err := s.users.UpdateRefreshToken(ctx, user.ID, lookupKey, refreshHash, &refreshExpires); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	return &dto.SessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         toUserResponse(user),
	}, nil
}

// Refresh exchanges a valid refresh token for a new session pair. The old
// refresh token is invalidated by the rotation.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string, now time.Time) (*dto.SessionResponse, error) {
	user, err := s.users.FindByRefreshToken(ctx, s.jwt.RefreshTokenLookupKey(refreshToken), refreshToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	return s.Issue(ctx, user, now)
}

func toUserResponse(user *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:          user.ID.String(),
		PhoneNumber: user.PhoneNumber,
		Status:      string(user.Status),
		CreatedAt:   user.CreatedAt,
	}
}
