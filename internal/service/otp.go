package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/musicshare/api/internal/dto"
	apperrors "github.com/musicshare/api/internal/errors"
	"github.com/musicshare/api/internal/model"
	"github.com/musicshare/api/internal/repository"
	"github.com/musicshare/api/pkg/logger"
	"github.com/musicshare/api/pkg/phone"
	"github.com/musicshare/api/pkg/redis"
)

const (
	// OtpTTL is the validity window of an issued code.
	OtpTTL = 10 * time.Minute

	otpCodeLength = 6
)

// ErrTooManyRequests is returned when a phone number exceeds its issuance
// budget within the rate-limit window.
var ErrTooManyRequests = apperrors.NewDomainError("TOO_MANY_REQUESTS", "too many OTP requests for this phone number")

// VerifyResult is the typed outcome of an OTP verification. It is a closed
// set so callers must handle every case; none of the failure variants is an
// error in the Go sense.
type VerifyResult int

const (
	VerifyAccepted VerifyResult = iota
	VerifyExpired
	VerifyMismatch
	VerifyNoActiveRequest
)

func (v VerifyResult) String() string {
	switch v {
	case VerifyAccepted:
		return "accepted"
	case VerifyExpired:
		return "expired"
	case VerifyMismatch:
		return "mismatch"
	case VerifyNoActiveRequest:
		return "no_active_request"
	default:
		return "unknown"
	}
}

// OtpService drives the OTP lifecycle: at most one pending code per user,
// expiry enforced lazily at verification, issuance superseding any prior
// pending code.
type OtpService struct {
	users        *repository.UserRepository
	otps         *repository.OtpRepository
	sessions     *SessionService
	limiter      *redis.Client
	maxPerWindow int
	window       time.Duration
}

func NewOtpService(users *repository.UserRepository, otps *repository.OtpRepository, sessions *SessionService, limiter *redis.Client, maxPerWindow int, window time.Duration) *OtpService {
	return &OtpService{
		users:        users,
		otps:         otps,
		sessions:     sessions,
		limiter:      limiter,
		maxPerWindow: maxPerWindow,
		window:       window,
	}
}

// RequestOTP normalizes the phone number, creates the user on first sight
// and issues a fresh code, expiring any prior pending one in the same
// transaction. The returned request carries the code for out-of-band
// delivery; it must never reach an API response.
func (s *OtpService) RequestOTP(ctx context.Context, rawPhone string, now time.Time) (*model.OtpRequest, error) {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	if err := s.allowIssuance(ctx, phoneNumber); err != nil {
		return nil, err
	}

	user, err := s.users.GetOrCreateByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	request, err := s.otps.CreateWithRotation(ctx, user.ID, code, now.Add(OtpTTL))
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost an issuance race: the other transaction's pending row landed
		// between our bulk expiry and insert. One retry rotates it out.
		request, err = s.otps.CreateWithRotation(ctx, user.ID, code, now.Add(OtpTTL))
	}
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	logger.GetLogger().Info("OTP issued",
		zap.String("user_id", user.ID.String()),
		zap.Time("expires_at", request.ExpiresAt),
	)

	return request, nil
}

// VerifyOTP checks a submitted code against the user's pending request.
// Accepted and Expired consume the pending row; Mismatch leaves it in place
// so a later correct attempt within the window still succeeds.
func (s *OtpService) VerifyOTP(ctx context.Context, rawPhone, submittedCode string, now time.Time) (VerifyResult, *dto.SessionResponse, error) {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return 0, nil, err
	}

	user, err := s.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return VerifyNoActiveRequest, nil, nil
		}
		return 0, nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	request, err := s.otps.GetPending(ctx, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return VerifyNoActiveRequest, nil, nil
		}
		return 0, nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	if now.After(request.ExpiresAt) {
		if err := s.expire(ctx, request); err != nil {
			return 0, nil, err
		}
		return VerifyExpired, nil, nil
	}

	if subtle.ConstantTimeCompare([]byte(request.Code), []byte(submittedCode)) != 1 {
		return VerifyMismatch, nil, nil
	}

	// Consume the code before issuing the session so a replay with the same
	// code lands on NoActiveRequest.
	if err := s.expire(ctx, request); err != nil {
		return 0, nil, err
	}

	if user.Status != model.UserStatusComplete {
		if err := s.users.UpdateStatus(ctx, user.ID, model.UserStatusComplete); err != nil {
			return 0, nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
		}
		user.Status = model.UserStatusComplete
	}

	session, err := s.sessions.Issue(ctx, user, now)
	if err != nil {
		return 0, nil, err
	}

	logger.GetLogger().Info("OTP verified",
		zap.String("user_id", user.ID.String()),
	)

	return VerifyAccepted, session, nil
}

func (s *OtpService) expire(ctx context.Context, request *model.OtpRequest) error {
	if err := s.otps.MarkExpired(ctx, request.ID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.WrapError(apperrors.ErrTransientIO, err)
	}
	return nil
}

func (s *OtpService) allowIssuance(ctx context.Context, phoneNumber string) error {
	if s.limiter == nil || !s.limiter.IsEnabled() || s.maxPerWindow <= 0 {
		return nil
	}

	count, err := s.limiter.Incr(ctx, "otp:issue:"+phoneNumber, s.window)
	if err != nil {
		// Rate limiting is protective, not load-bearing; issuance proceeds
		// when the counter store is unreachable.
		logger.GetLogger().Warn("OTP rate limit check failed",
			zap.Error(err),
		)
		return nil
	}

	if count > int64(s.maxPerWindow) {
		return ErrTooManyRequests
	}

	return nil
}

// generateCode draws six independent uniform digits. Leading zeros are
// preserved; codes are only locally relevant within their validity window
// and are not globally unique.
func generateCode() (string, error) {
	digits := make([]byte, otpCodeLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to draw code digit: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
