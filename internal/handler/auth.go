package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/musicshare/api/internal/constants"
	"github.com/musicshare/api/internal/dto"
	apperrors "github.com/musicshare/api/internal/errors"
	"github.com/musicshare/api/internal/service"
	"github.com/musicshare/api/pkg/logger"
)

type AuthHandler struct {
	otpService     *service.OtpService
	sessionService *service.SessionService
}

func NewAuthHandler(otpService *service.OtpService, sessionService *service.SessionService) *AuthHandler {
	return &AuthHandler{
		otpService:     otpService,
		sessionService: sessionService,
	}
}

// RequestOTP issues a one-time code for a phone number. The code itself is
// delivered out of band and never appears in the response.
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req dto.RequestOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	request, err := h.otpService.RequestOTP(c.Request.Context(), req.PhoneNumber, time.Now())
	if err != nil {
		logger.GetLogger().Warn("OTP request failed",
			zap.Error(err),
		)
		status := apperrors.ToHTTPStatus(err)
		if apperrors.GetDomainError(err) == service.ErrTooManyRequests {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, constants.BuildErrorResponse("OTP request failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, dto.RequestOtpResponse{
		Message:   "code sent",
		ExpiresAt: request.ExpiresAt,
	})
}

// VerifyOTP checks a submitted code and, when accepted, returns an API
// session for the verified user.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req dto.VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	result, session, err := h.otpService.VerifyOTP(c.Request.Context(), req.PhoneNumber, req.Code, time.Now())
	if err != nil {
		logger.GetLogger().Warn("OTP verification errored",
			zap.Error(err),
		)
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Verification failed", apperrors.GetErrorMessage(err)))
		return
	}

	response := dto.VerifyOtpResponse{
		Result:  result.String(),
		Session: session,
	}

	if result != service.VerifyAccepted {
		c.JSON(http.StatusUnauthorized, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

// RefreshToken rotates an API session using its refresh token.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	session, err := h.sessionService.Refresh(c.Request.Context(), req.RefreshToken, time.Now())
	if err != nil {
		logger.GetLogger().Warn("Session refresh failed",
			zap.Error(err),
		)
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Token refresh failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, session)
}
