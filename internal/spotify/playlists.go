package spotify

import (
	"context"
	"fmt"
	"net/http"

	apperrors "github.com/musicshare/api/internal/errors"
)

// CreatePlaylist creates a playlist owned by the given remote user.
func (c *Client) CreatePlaylist(ctx context.Context, remoteUserID, name, description string, public bool) (*Playlist, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}

	var playlist Playlist
	endpoint := fmt.Sprintf("/users/%s/playlists", remoteUserID)
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// AddTracks appends tracks to a playlist. The batch is validated against the
// provider limit before any network call.
func (c *Client) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if err := checkBatch(trackIDs); err != nil {
		return err
	}

	body := map[string]any{
		"uris": trackURIs(trackIDs),
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	return c.doRequest(ctx, http.MethodPost, endpoint, body, nil)
}

// RemoveTracks removes tracks from a playlist under the same batch contract
// as AddTracks.
func (c *Client) RemoveTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if err := checkBatch(trackIDs); err != nil {
		return err
	}

	tracks := make([]map[string]string, 0, len(trackIDs))
	for _, uri := range trackURIs(trackIDs) {
		tracks = append(tracks, map[string]string{"uri": uri})
	}

	body := map[string]any{
		"tracks": tracks,
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	return c.doRequest(ctx, http.MethodDelete, endpoint, body, nil)
}

func checkBatch(trackIDs []string) error {
	if len(trackIDs) >= MaxTrackBatch {
		return apperrors.WrapError(apperrors.ErrBatchTooLarge,
			fmt.Errorf("%d track ids, provider limit is %d per call", len(trackIDs), MaxTrackBatch))
	}
	return nil
}

func trackURIs(trackIDs []string) []string {
	uris := make([]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		uris = append(uris, "spotify:track:"+id)
	}
	return uris
}
