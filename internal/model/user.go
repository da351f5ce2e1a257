package model

import "time"

// TableUsers is the explicit table name for User rows.
const TableUsers = "users"

type UserStatus string

const (
	UserStatusNew      UserStatus = "new"
	UserStatusPending  UserStatus = "pending"
	UserStatusComplete UserStatus = "complete"
)

// User is the identity anchor. A row is created on the first OTP request for
// an unseen phone number; PhoneNumber is always stored in E.164 form.
//
// RefreshTokenLookup is the SHA-256 of the session refresh token so the
// refresh path resolves over an index; the bcrypt hash stays the
// authoritative verifier.
type User struct {
	Record
	PhoneNumber         string     `gorm:"column:phone_number;unique;not null"`
	Status              UserStatus `gorm:"column:status;not null"`
	RefreshTokenLookup  string     `gorm:"column:refresh_token_lookup;index;default:null"`
	RefreshTokenHash    string     `gorm:"column:refresh_token_hash;default:null"`
	RefreshTokenExpires *time.Time `gorm:"column:refresh_token_expires_at;default:null"`
}

func (User) TableName() string {
	return TableUsers
}
