package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/musicshare/api/config"
	apperrors "github.com/musicshare/api/internal/errors"
	"github.com/musicshare/api/internal/model"
)

func testSpotifyConfig() config.SpotifyConfig {
	return config.SpotifyConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURI:  "http://localhost:8080/api/v1/spotify/callback",
		Timeout:      5 * time.Second,
	}
}

func newTokenService(t *testing.T, env *testEnv, tokenEndpoint *httptest.Server) *TokenService {
	t.Helper()
	opts := []TokenOption{}
	if tokenEndpoint != nil {
		opts = append(opts,
			WithEndpoints(tokenEndpoint.URL+"/authorize", tokenEndpoint.URL+"/api/token"),
			WithTokenHTTPClient(tokenEndpoint.Client()),
		)
	}
	return NewTokenService(env.tokens, testSpotifyConfig(), opts...)
}

// seedLinkedAccount creates a user with a linked account holding one active
// token pair.
func seedLinkedAccount(t *testing.T, env *testEnv, expiresAt time.Time) (uuid.UUID, *model.OAuthToken) {
	t.Helper()
	ctx := context.Background()

	user, err := env.users.GetOrCreateByPhone(ctx, testPhone)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	account, err := env.tokens.GetOrCreateAccount(ctx, user.ID)
	if err != nil {
		t.Fatalf("seeding account: %v", err)
	}

	token := &model.OAuthToken{
		AccountID:    account.ID,
		AccessToken:  "initial-access",
		RefreshToken: "initial-refresh",
		ExpiresAt:    expiresAt,
		Scope:        datatypes.NewJSONSlice([]string{"playlist-read-private"}),
	}
	if err := env.tokens.InsertInitialToken(ctx, token); err != nil {
		t.Fatalf("seeding token: %v", err)
	}
	if err := env.tokens.UpdateAccountStatus(ctx, account.ID, model.SpotifyAccountStatusComplete); err != nil {
		t.Fatalf("seeding account status: %v", err)
	}

	return user.ID, token
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var gotGrantType, gotRefreshToken string
	var gotBasicAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing token request form: %v", err)
		}
		gotGrantType = r.PostForm.Get("grant_type")
		gotRefreshToken = r.PostForm.Get("refresh_token")
		user, pass, ok := r.BasicAuth()
		gotBasicAuth = ok && user == "test-client-id" && pass == "test-client-secret"

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "rotated-access",
			"refresh_token": "rotated-refresh",
			"expires_in":    3600,
			"scope":         "playlist-read-private playlist-modify-private",
		})
	}))
	defer srv.Close()

	userID, initial := seedLinkedAccount(t, env, time.Now().Add(time.Hour))
	svc := newTokenService(t, env, srv)

	rotated, err := svc.Refresh(ctx, userID)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	if gotGrantType != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", gotGrantType)
	}
	if gotRefreshToken != "initial-refresh" {
		t.Errorf("refresh_token sent = %q, want initial-refresh", gotRefreshToken)
	}
	if !gotBasicAuth {
		t.Error("token request did not carry client credentials over Basic auth")
	}

	if rotated.AccessToken != "rotated-access" {
		t.Errorf("rotated access token = %q, want rotated-access", rotated.AccessToken)
	}
	if rotated.RefreshToken != "rotated-refresh" {
		t.Errorf("rotated refresh token = %q, want rotated-refresh", rotated.RefreshToken)
	}
	if !rotated.ExpiresAt.After(time.Now()) {
		t.Errorf("rotated token already expired at %v", rotated.ExpiresAt)
	}
	if got := []string(rotated.Scope); len(got) != 2 || got[0] != "playlist-read-private" {
		t.Errorf("rotated scope = %v", got)
	}

	// The old row is deactivated but stays in the history.
	history, err := env.tokens.TokenHistory(ctx, rotated.AccountID)
	if err != nil {
		t.Fatalf("TokenHistory returned error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	var activeCount int
	for _, row := range history {
		if row.Active {
			activeCount++
			if row.ID != rotated.ID {
				t.Errorf("active row is %s, want the rotated one %s", row.ID, rotated.ID)
			}
		}
		if row.ID == initial.ID && row.Active {
			t.Error("superseded token row is still active")
		}
	}
	if activeCount != 1 {
		t.Errorf("active rows = %d, want exactly 1", activeCount)
	}
}

func TestRefreshRejectedLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	userID, initial := seedLinkedAccount(t, env, time.Now().Add(time.Hour))
	svc := newTokenService(t, env, srv)

	_, err := svc.Refresh(ctx, userID)
	domainErr := apperrors.GetDomainError(err)
	if domainErr == nil || domainErr.Code != apperrors.ErrRefreshFailed.Code {
		t.Fatalf("error = %v, want %s", err, apperrors.ErrRefreshFailed.Code)
	}

	current, err := svc.CurrentToken(ctx, userID)
	if err != nil {
		t.Fatalf("CurrentToken returned error: %v", err)
	}
	if current.ID != initial.ID || current.AccessToken != "initial-access" {
		t.Error("failed refresh modified the stored token")
	}
}

func TestRefreshKeepsRefreshTokenWhenOmitted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "rotated-access",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	userID, _ := seedLinkedAccount(t, env, time.Now().Add(time.Hour))
	svc := newTokenService(t, env, srv)

	rotated, err := svc.Refresh(ctx, userID)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if rotated.RefreshToken != "initial-refresh" {
		t.Errorf("refresh token = %q, want the retained initial-refresh", rotated.RefreshToken)
	}
}

func TestCurrentTokenWithoutLinkedAccount(t *testing.T) {
	env := newTestEnv(t)
	svc := newTokenService(t, env, nil)

	_, err := svc.CurrentToken(context.Background(), uuid.New())
	if !errors.Is(err, apperrors.ErrNoLinkedAccount) {
		domainErr := apperrors.GetDomainError(err)
		if domainErr == nil || domainErr.Code != apperrors.ErrNoLinkedAccount.Code {
			t.Errorf("error = %v, want %s", err, apperrors.ErrNoLinkedAccount.Code)
		}
	}
}

func TestIsExpired(t *testing.T) {
	env := newTestEnv(t)
	svc := newTokenService(t, env, nil)
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"fresh", now.Add(time.Hour), false},
		{"just outside skew", now.Add(DefaultExpirySkew + time.Second), false},
		{"inside skew", now.Add(30 * time.Second), true},
		{"exactly at expiry", now, true},
		{"past expiry", now.Add(-time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := &model.OAuthToken{ExpiresAt: tt.expiresAt}
			if got := svc.IsExpired(token, now); got != tt.want {
				t.Errorf("IsExpired(expires %v) = %v, want %v", tt.expiresAt, got, tt.want)
			}
		})
	}
}

func TestBeginLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := newTokenService(t, env, nil)

	user, err := env.users.GetOrCreateByPhone(ctx, testPhone)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	account, authURL, state, err := svc.BeginLink(ctx, user.ID)
	if err != nil {
		t.Fatalf("BeginLink returned error: %v", err)
	}
	if account.Status != model.SpotifyAccountStatusNew {
		t.Errorf("account status = %q, want %q", account.Status, model.SpotifyAccountStatusNew)
	}
	if state == "" {
		t.Error("BeginLink returned empty state")
	}
	if !strings.Contains(authURL, "client_id=test-client-id") {
		t.Errorf("auth URL missing client_id: %s", authURL)
	}
	if !strings.Contains(authURL, "state="+state) {
		t.Errorf("auth URL missing state: %s", authURL)
	}

	// A second BeginLink reuses the same account row.
	again, _, _, err := svc.BeginLink(ctx, user.ID)
	if err != nil {
		t.Fatalf("second BeginLink returned error: %v", err)
	}
	if again.ID != account.ID {
		t.Errorf("second BeginLink created a new account %s, want %s", again.ID, account.ID)
	}
}

func TestCompleteLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing token request form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want authorization_code", got)
		}
		if got := r.PostForm.Get("code"); got != "consent-code" {
			t.Errorf("code = %q, want consent-code", got)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "linked-access",
			"token_type":    "Bearer",
			"refresh_token": "linked-refresh",
			"expires_in":    3600,
			"scope":         "playlist-read-private user-read-private",
		})
	}))
	defer srv.Close()

	user, err := env.users.GetOrCreateByPhone(ctx, testPhone)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	svc := newTokenService(t, env, srv)

	_, _, state, err := svc.BeginLink(ctx, user.ID)
	if err != nil {
		t.Fatalf("BeginLink returned error: %v", err)
	}

	account, err := svc.CompleteLink(ctx, user.ID, "consent-code", state)
	if err != nil {
		t.Fatalf("CompleteLink returned error: %v", err)
	}
	if account.Status != model.SpotifyAccountStatusComplete {
		t.Errorf("account status = %q, want %q", account.Status, model.SpotifyAccountStatusComplete)
	}
	if account.LinkState != "" {
		t.Error("state survived the completed link, want it cleared")
	}

	token, err := svc.CurrentToken(ctx, user.ID)
	if err != nil {
		t.Fatalf("CurrentToken returned error: %v", err)
	}
	if token.AccessToken != "linked-access" || token.RefreshToken != "linked-refresh" {
		t.Errorf("stored token = %q/%q, want linked-access/linked-refresh", token.AccessToken, token.RefreshToken)
	}
	if got := []string(token.Scope); len(got) != 2 || got[0] != "playlist-read-private" {
		t.Errorf("stored scope = %v", got)
	}
}

func TestRefreshLostExchangeReadsWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userID, initial := seedLinkedAccount(t, env, time.Now().Add(time.Hour))

	// The provider rejects our exchange because a concurrent refresh already
	// consumed the refresh token; that refresh stored its rotated pair before
	// the rejection reaches us.
	var rotatedOnce bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rotatedOnce {
			rotatedOnce = true
			if _, err := env.tokens.RotateToken(r.Context(), initial.ID, initial.AccountID,
				"winner-access", "winner-refresh", time.Now().Add(time.Hour), nil); err != nil {
				t.Errorf("rotating as the concurrent winner: %v", err)
			}
		}
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := newTokenService(t, env, srv)

	token, err := svc.Refresh(ctx, userID)
	if err != nil {
		t.Fatalf("losing Refresh errored instead of reading the winner's token: %v", err)
	}
	if token.AccessToken != "winner-access" {
		t.Errorf("Refresh = %q, want the winner's winner-access", token.AccessToken)
	}

	history, err := env.tokens.TokenHistory(ctx, initial.AccountID)
	if err != nil {
		t.Fatalf("TokenHistory returned error: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2 (loser must not insert)", len(history))
	}
}

func TestRefreshLostExchangeWinnerExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userID, initial := seedLinkedAccount(t, env, time.Now().Add(time.Hour))

	// The replacement token is itself already expired, so the rejection must
	// propagate rather than handing out a dead token.
	var rotatedOnce bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rotatedOnce {
			rotatedOnce = true
			if _, err := env.tokens.RotateToken(r.Context(), initial.ID, initial.AccountID,
				"stale-access", "stale-refresh", time.Now().Add(-time.Minute), nil); err != nil {
				t.Errorf("rotating as the concurrent winner: %v", err)
			}
		}
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := newTokenService(t, env, srv)

	_, err := svc.Refresh(ctx, userID)
	domainErr := apperrors.GetDomainError(err)
	if domainErr == nil || domainErr.Code != apperrors.ErrRefreshFailed.Code {
		t.Errorf("error = %v, want %s", err, apperrors.ErrRefreshFailed.Code)
	}
}

func TestCompleteLinkStateMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var exchanges int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "linked-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	user, err := env.users.GetOrCreateByPhone(ctx, testPhone)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	svc := newTokenService(t, env, srv)

	tests := []struct {
		name  string
		setup func() string
	}{
		{"no authorize issued", func() string { return "forged-state" }},
		{"wrong state", func() string {
			if _, _, _, err := svc.BeginLink(ctx, user.ID); err != nil {
				t.Fatalf("BeginLink returned error: %v", err)
			}
			return "forged-state"
		}},
		{"empty state", func() string {
			if _, _, _, err := svc.BeginLink(ctx, user.ID); err != nil {
				t.Fatalf("BeginLink returned error: %v", err)
			}
			return ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.setup()
			_, err := svc.CompleteLink(ctx, user.ID, "consent-code", state)
			if !errors.Is(err, apperrors.ErrLinkStateMismatch) {
				domainErr := apperrors.GetDomainError(err)
				if domainErr == nil || domainErr.Code != apperrors.ErrLinkStateMismatch.Code {
					t.Fatalf("error = %v, want %s", err, apperrors.ErrLinkStateMismatch.Code)
				}
			}
		})
	}

	// A rejected state must never reach the provider.
	if exchanges != 0 {
		t.Errorf("rejected callbacks performed %d exchanges, want 0", exchanges)
	}

	// A reused state is rejected too: completing once clears it.
	_, _, state, err := svc.BeginLink(ctx, user.ID)
	if err != nil {
		t.Fatalf("BeginLink returned error: %v", err)
	}
	if _, err := svc.CompleteLink(ctx, user.ID, "consent-code", state); err != nil {
		t.Fatalf("CompleteLink returned error: %v", err)
	}
	_, err = svc.CompleteLink(ctx, user.ID, "consent-code", state)
	domainErr := apperrors.GetDomainError(err)
	if domainErr == nil || domainErr.Code != apperrors.ErrLinkStateMismatch.Code {
		t.Errorf("replayed state error = %v, want %s", err, apperrors.ErrLinkStateMismatch.Code)
	}
}

func TestProviderRefreshesExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "rotated-access",
			"refresh_token": "rotated-refresh",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	// Stored token is already past its expiry.
	userID, _ := seedLinkedAccount(t, env, time.Now().Add(-time.Minute))
	svc := newTokenService(t, env, srv)

	accessToken, err := svc.ProviderFor(userID).Current(ctx)
	if err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	if accessToken != "rotated-access" {
		t.Errorf("Current = %q, want the refreshed rotated-access", accessToken)
	}
}
