package dto

import "time"

// RequestOtpRequest asks for a one-time code to be issued for a phone number.
type RequestOtpRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required,phone"`
}

// RequestOtpResponse deliberately carries no code: the code travels out of
// band. Only the expiry is echoed so clients can show a countdown.
type RequestOtpResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyOtpRequest submits a code for verification.
type VerifyOtpRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required,phone"`
	Code        string `json:"code" binding:"required,len=6,numeric"`
}

// VerifyOtpResponse reports the typed verification outcome. Session is set
// only when the result is accepted.
type VerifyOtpResponse struct {
	Result  string           `json:"result"`
	Session *SessionResponse `json:"session,omitempty"`
}

// RefreshTokenRequest rotates a session using the opaque refresh token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// SessionResponse is the issued session pair plus the owning user.
type SessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         UserResponse `json:"user"`
}

// UserResponse is the user shape exposed over the API.
type UserResponse struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
