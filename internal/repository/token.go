package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/musicshare/api/internal/model"
)

type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// GetAccountByUserID returns the user's linked Spotify account.
func (r *TokenRepository) GetAccountByUserID(ctx context.Context, userID uuid.UUID) (*model.SpotifyAccount, error) {
	var account model.SpotifyAccount
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account)
	if result.Error != nil {
		return nil, result.Error
	}
	return &account, nil
}

// GetOrCreateAccount returns the user's account, creating it with status new
// when the linking flow begins. The unique constraint on user_id resolves
// create races the same way GetOrCreateByPhone does for users.
func (r *TokenRepository) GetOrCreateAccount(ctx context.Context, userID uuid.UUID) (*model.SpotifyAccount, error) {
	account := model.SpotifyAccount{
		UserID: userID,
		Status: model.SpotifyAccountStatusNew,
	}

	result := r.db.WithContext(ctx).
		Where(model.SpotifyAccount{UserID: userID}).
		Attrs(model.SpotifyAccount{Status: model.SpotifyAccountStatusNew}).
		FirstOrCreate(&account)
	if result.Error != nil {
		var existing model.SpotifyAccount
		if retry := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing); retry.Error == nil {
			return &existing, nil
		}
		return nil, result.Error
	}

	return &account, nil
}

// UpdateLinkState stores or clears the OAuth state of an in-flight consent
// flow. A re-issued authorize overwrites the previous state, so only the
// most recent consent URL completes.
func (r *TokenRepository) UpdateLinkState(ctx context.Context, id uuid.UUID, state string) error {
	result := r.db.WithContext(ctx).Model(&model.SpotifyAccount{}).Where("id = ?", id).Update("link_state", state)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateAccountStatus advances the account lifecycle.
func (r *TokenRepository) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status model.SpotifyAccountStatus) error {
	result := r.db.WithContext(ctx).Model(&model.SpotifyAccount{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetActiveToken returns the account's single active token row.
func (r *TokenRepository) GetActiveToken(ctx context.Context, accountID uuid.UUID) (*model.OAuthToken, error) {
	var token model.OAuthToken
	result := r.db.WithContext(ctx).
		Where("account_id = ? AND active = ?", accountID, true).
		First(&token)
	if result.Error != nil {
		return nil, result.Error
	}
	return &token, nil
}

// InsertInitialToken stores the first token obtained from the authorization
// code exchange. Any previously active row (re-link of an existing account)
// is rotated out in the same transaction.
func (r *TokenRepository) InsertInitialToken(ctx context.Context, token *model.OAuthToken) error {
	token.Active = true
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.OAuthToken{}).
			Where("account_id = ? AND active = ?", token.AccountID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
}

// RotateToken replaces the active token row with the freshly exchanged one
// in a single transaction. The deactivation is conditional on the old row
// still being active: a concurrent refresh that already rotated it makes
// the update match zero rows, in which case the transaction aborts with
// ErrRecordNotFound and the caller re-reads the winner's token instead of
// double-exchanging a refresh token the provider has already invalidated.
func (r *TokenRepository) RotateToken(ctx context.Context, oldTokenID uuid.UUID, accountID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time, scope []string) (*model.OAuthToken, error) {
	rotated := &model.OAuthToken{
		AccountID:    accountID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scope:        datatypes.NewJSONSlice(scope),
		Active:       true,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.OAuthToken{}).
			Where("id = ? AND active = ?", oldTokenID, true).
			Update("active", false)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(rotated).Error
	})
	if err != nil {
		return nil, err
	}

	return rotated, nil
}

// TokenHistory returns every token row ever issued for the account, newest
// first. The rotation history is append-only and kept for audit.
func (r *TokenRepository) TokenHistory(ctx context.Context, accountID uuid.UUID) ([]model.OAuthToken, error) {
	var tokens []model.OAuthToken
	result := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&tokens)
	return tokens, result.Error
}
