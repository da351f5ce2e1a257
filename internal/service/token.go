package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/musicshare/api/config"
	apperrors "github.com/musicshare/api/internal/errors"
	"github.com/musicshare/api/internal/model"
	"github.com/musicshare/api/internal/repository"
	"github.com/musicshare/api/internal/spotify"
	"github.com/musicshare/api/pkg/logger"
)

// DefaultExpirySkew is subtracted from expiry checks so a token is never
// handed out moments before it lapses mid-flight.
const DefaultExpirySkew = 60 * time.Second

// TokenService holds the delegated Spotify credentials and rotates them.
// Token rows are never mutated in place: every refresh deactivates the old
// row and inserts the new one in a single transaction.
type TokenService struct {
	tokens       *repository.TokenRepository
	oauth        *oauth2.Config
	http         *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	skew         time.Duration
}

type TokenOption func(*TokenService)

// WithEndpoints overrides the provider endpoints, used by tests.
func WithEndpoints(authURL, tokenURL string) TokenOption {
	return func(s *TokenService) {
		s.tokenURL = tokenURL
		s.oauth.Endpoint = oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		}
	}
}

// WithTokenHTTPClient overrides the HTTP client used for token exchanges.
func WithTokenHTTPClient(httpClient *http.Client) TokenOption {
	return func(s *TokenService) {
		s.http = httpClient
	}
}

func NewTokenService(tokens *repository.TokenRepository, cfg config.SpotifyConfig, opts ...TokenOption) *TokenService {
	s := &TokenService{
		tokens: tokens,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       spotify.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotify.AuthURL,
				TokenURL:  spotify.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		http:         &http.Client{Timeout: cfg.Timeout},
		tokenURL:     spotify.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		skew:         DefaultExpirySkew,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BeginLink starts the linking flow: the account row is created with status
// new and the consent URL handed back to the client.
func (s *TokenService) BeginLink(ctx context.Context, userID uuid.UUID) (*model.SpotifyAccount, string, string, error) {
	account, err := s.tokens.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return nil, "", "", apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	state, err := randomState()
	if err != nil {
		return nil, "", "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.tokens.UpdateLinkState(ctx, account.ID, state); err != nil {
		return nil, "", "", apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	return account, s.oauth.AuthCodeURL(state), state, nil
}

// CompleteLink validates the echoed OAuth state against the one issued by
// BeginLink, then exchanges the authorization code for the first token pair
// and marks the account complete. The exchange authenticates with client
// credentials over HTTP Basic auth. The state is single-use: it is cleared
// once the link completes.
func (s *TokenService) CompleteLink(ctx context.Context, userID uuid.UUID, code, state string) (*model.SpotifyAccount, error) {
	account, err := s.tokens.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	if account.LinkState == "" || state == "" ||
		subtle.ConstantTimeCompare([]byte(account.LinkState), []byte(state)) != 1 {
		return nil, apperrors.ErrLinkStateMismatch
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.http)
	exchanged, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrRefreshFailed, err)
	}

	scope := spotify.Scopes
	if granted, ok := exchanged.Extra("scope").(string); ok && granted != "" {
		scope = strings.Fields(granted)
	}

	token := &model.OAuthToken{
		AccountID:    account.ID,
		AccessToken:  exchanged.AccessToken,
		RefreshToken: exchanged.RefreshToken,
		ExpiresAt:    exchanged.Expiry,
	}
	token.Scope = append(token.Scope, scope...)

	if err := s.tokens.InsertInitialToken(ctx, token); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	if account.Status != model.SpotifyAccountStatusComplete {
		if err := s.tokens.UpdateAccountStatus(ctx, account.ID, model.SpotifyAccountStatusComplete); err != nil {
			return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
		}
		account.Status = model.SpotifyAccountStatusComplete
	}

	if err := s.tokens.UpdateLinkState(ctx, account.ID, ""); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}
	account.LinkState = ""

	logger.GetLogger().Info("Spotify account linked",
		zap.String("account_id", account.ID.String()),
		zap.Time("token_expires_at", token.ExpiresAt),
	)

	return account, nil
}

// CurrentToken returns the active token row for the user's linked account.
func (s *TokenService) CurrentToken(ctx context.Context, userID uuid.UUID) (*model.OAuthToken, error) {
	account, err := s.tokens.GetAccountByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNoLinkedAccount
		}
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	token, err := s.tokens.GetActiveToken(ctx, account.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNoLinkedAccount
		}
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	return token, nil
}

// IsExpired reports whether the token is past, or within the safety skew of,
// its expiry.
func (s *TokenService) IsExpired(token *model.OAuthToken, now time.Time) bool {
	return !now.Before(token.ExpiresAt.Add(-s.skew))
}

// Refresh exchanges the current refresh token for a rotated pair and
// persists it. On provider rejection or network failure the stored state is
// left untouched and the caller gets ErrRefreshFailed. A concurrent refresh
// that already rotated the row is not an error: the freshly stored token is
// read back instead of double-exchanging an already-invalidated refresh
// token.
func (s *TokenService) Refresh(ctx context.Context, userID uuid.UUID) (*model.OAuthToken, error) {
	current, err := s.CurrentToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	exchanged, err := s.exchangeRefreshToken(ctx, current.RefreshToken)
	if err != nil {
		// A concurrent refresh may have consumed this refresh token at the
		// provider before our exchange landed, which surfaces as a rejection
		// even though the winner already stored a valid rotated token.
		if winner := s.rotatedByWinner(ctx, userID, current); winner != nil {
			return winner, nil
		}
		return nil, err
	}

	refreshToken := exchanged.RefreshToken
	if refreshToken == "" {
		// The provider may omit the refresh token when it stays valid.
		refreshToken = current.RefreshToken
	}

	scope := []string(current.Scope)
	if exchanged.Scope != "" {
		scope = strings.Fields(exchanged.Scope)
	}

	expiresAt := time.Now().Add(time.Duration(exchanged.ExpiresIn) * time.Second)

	rotated, err := s.tokens.RotateToken(ctx, current.ID, current.AccountID, exchanged.AccessToken, refreshToken, expiresAt, scope)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Lost the rotation race; the winner's token is the live one.
			return s.CurrentToken(ctx, userID)
		}
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	logger.GetLogger().Info("OAuth token rotated",
		zap.String("account_id", rotated.AccountID.String()),
		zap.Time("expires_at", rotated.ExpiresAt),
	)

	return rotated, nil
}

// rotatedByWinner re-reads the active token after a rejected exchange and
// returns it when a concurrent refresh replaced the row we exchanged with a
// still-valid one. Returns nil when the store is unchanged, so the original
// rejection propagates.
func (s *TokenService) rotatedByWinner(ctx context.Context, userID uuid.UUID, exchangedWith *model.OAuthToken) *model.OAuthToken {
	winner, err := s.CurrentToken(ctx, userID)
	if err != nil {
		return nil
	}
	if winner.ID == exchangedWith.ID || s.IsExpired(winner, time.Now()) {
		return nil
	}
	return winner
}

// ProviderFor binds the store to one user as a spotify.TokenProvider.
func (s *TokenService) ProviderFor(userID uuid.UUID) spotify.TokenProvider {
	return &boundProvider{service: s, userID: userID}
}

type boundProvider struct {
	service *TokenService
	userID  uuid.UUID
}

func (p *boundProvider) Current(ctx context.Context) (string, error) {
	token, err := p.service.CurrentToken(ctx, p.userID)
	if err != nil {
		return "", err
	}

	if p.service.IsExpired(token, time.Now()) {
		token, err = p.service.Refresh(ctx, p.userID)
		if err != nil {
			return "", err
		}
	}

	return token.AccessToken, nil
}

func (p *boundProvider) Refresh(ctx context.Context) (string, error) {
	token, err := p.service.Refresh(ctx, p.userID)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

func (s *TokenService) exchangeRefreshToken(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.clientID, s.clientSecret)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.WrapError(apperrors.ErrRefreshFailed,
			fmt.Errorf("token endpoint returned status %d", resp.StatusCode))
	}

	var exchanged refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&exchanged); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrRefreshFailed, err)
	}
	if exchanged.AccessToken == "" {
		return nil, apperrors.WrapError(apperrors.ErrRefreshFailed,
			errors.New("token endpoint returned no access token"))
	}

	return &exchanged, nil
}

func randomState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
