package model

import (
	"time"

	"github.com/google/uuid"
)

// TableOtpRequests is the explicit table name for OtpRequest rows.
const TableOtpRequests = "otp_requests"

type OtpStatus string

const (
	OtpStatusPending OtpStatus = "pending"
	OtpStatusExpired OtpStatus = "expired"
)

// OtpRequest is one issued one-time code. Rows are never deleted; superseded
// or consumed codes transition pending -> expired and stay as an audit trail.
//
// The partial unique index over (user_id, status) restricted to pending rows
// is the structural backstop for the single-active-OTP invariant: even if two
// issuance transactions race, at most one pending row can commit.
type OtpRequest struct {
	Record
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_otp_requests_user_pending,unique,where:status = 'pending'"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Code      string    `gorm:"column:code;not null"`
	Status    OtpStatus `gorm:"column:status;not null;index:idx_otp_requests_user_pending,unique,where:status = 'pending'"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
}

func (OtpRequest) TableName() string {
	return TableOtpRequests
}
