package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Explicit table names for the Spotify linking entities.
const (
	TableSpotifyAccounts = "spotify_accounts"
	TableOAuthTokens     = "oauth_tokens"
)

type SpotifyAccountStatus string

const (
	SpotifyAccountStatusNew      SpotifyAccountStatus = "new"
	SpotifyAccountStatusComplete SpotifyAccountStatus = "complete"
)

// SpotifyAccount links a User to a Spotify identity. One per user; status
// becomes complete once the first token is obtained. LinkState holds the
// OAuth state issued for an in-flight consent flow; the callback must echo
// it back and completing the link clears it.
type SpotifyAccount struct {
	Record
	UserID    uuid.UUID            `gorm:"column:user_id;type:uuid;unique;not null"`
	User      User                 `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Status    SpotifyAccountStatus `gorm:"column:status;not null"`
	LinkState string               `gorm:"column:link_state;default:null"`
}

func (SpotifyAccount) TableName() string {
	return TableSpotifyAccounts
}

// OAuthToken is one delegated credential in an account's rotation history.
// Rows are never mutated in place: a refresh deactivates the old row and
// inserts a new one, so exactly one row per account has Active=true while
// the full history stays queryable.
//
// AccessToken and RefreshToken are secrets. They must never be logged or
// returned in API responses, which is why the struct carries no json tags.
type OAuthToken struct {
	Record
	AccountID    uuid.UUID                   `gorm:"column:account_id;type:uuid;not null;index"`
	Account      SpotifyAccount              `gorm:"foreignKey:AccountID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	AccessToken  string                      `gorm:"column:access_token;not null"`
	RefreshToken string                      `gorm:"column:refresh_token;not null"`
	ExpiresAt    time.Time                   `gorm:"column:expires_at;not null"`
	Scope        datatypes.JSONSlice[string] `gorm:"column:scope"`
	Active       bool                        `gorm:"column:active;not null"`
}

func (OAuthToken) TableName() string {
	return TableOAuthTokens
}
