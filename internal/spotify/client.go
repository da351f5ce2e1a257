package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/musicshare/api/internal/errors"
)

// TokenProvider supplies delegated credentials for one bound account. The
// client calls it explicitly before each outbound request; there is no
// hidden refresh callback.
type TokenProvider interface {
	// Current returns a usable access token, refreshing a stale one first.
	Current(ctx context.Context) (string, error)
	// Refresh forces a rotation, typically after the provider returned 401.
	Refresh(ctx context.Context) (string, error)
}

// Client wraps outbound calls to the Spotify Web API with automatic
// credential attachment, cursor pagination and a single refresh-and-retry
// on authorization failure.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
}

type Option func(*Client)

// WithBaseURL overrides the API root, used by tests and mock servers.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func NewClient(tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL: APIBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Me retrieves the current authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*RemoteUser, error) {
	var user RemoteUser
	if err := c.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Playlists lists the user's playlists, following next-links until the
// cursor runs out or maxCount items are collected. maxCount <= 0 fetches
// everything.
func (c *Client) Playlists(ctx context.Context, maxCount int) ([]SimplePlaylist, error) {
	return listPaginated[SimplePlaylist](ctx, c, "/me/playlists?limit=50", maxCount)
}

// PlaylistTracks lists the tracks of one playlist with the same pagination
// contract as Playlists.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string, maxCount int) ([]PlaylistTrack, error) {
	return listPaginated[PlaylistTrack](ctx, c, fmt.Sprintf("/playlists/%s/tracks?limit=50", playlistID), maxCount)
}

// listPaginated follows the next-link cursor embedded in each page. Pages
// are fetched sequentially: the cursor for page N+1 is only known after
// page N arrives. A surplus on the final page is truncated so the result
// never exceeds maxCount.
func listPaginated[T any](ctx context.Context, c *Client, startURL string, maxCount int) ([]T, error) {
	var items []T

	next := &startURL
	for next != nil {
		var pg page[T]
		if err := c.doRequest(ctx, http.MethodGet, *next, nil, &pg); err != nil {
			return nil, err
		}

		items = append(items, pg.Items...)
		if maxCount > 0 && len(items) >= maxCount {
			return items[:maxCount], nil
		}

		next = pg.Next
	}

	return items, nil
}

// doRequest performs one authenticated call. On a 401 the bound account's
// token is refreshed and the request retried exactly once; a second
// authorization failure propagates.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	accessToken, err := c.tokens.Current(ctx)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, method, endpoint, payload, accessToken)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()

		accessToken, err = c.tokens.Refresh(ctx)
		if err != nil {
			return err
		}

		resp, err = c.send(ctx, method, endpoint, payload, accessToken)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			return apperrors.ErrUnauthorized
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return apperrors.WrapError(apperrors.ErrTransientIO, fmt.Errorf("spotify API error: status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, accessToken string) (*http.Response, error) {
	requestURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		requestURL = c.baseURL + endpoint
	}

	var bodyReader *bytes.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTransientIO, err)
	}

	return resp, nil
}
