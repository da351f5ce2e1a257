// Spotify Web API types and constants.
//
// Response shapes based on https://developer.spotify.com/documentation/web-api/reference/
package spotify

const (
	accountsBaseURL = "https://accounts.spotify.com"

	// AuthURL is the redirect-based consent endpoint.
	AuthURL = accountsBaseURL + "/authorize"
	// TokenURL accepts authorization codes and refresh tokens, client-
	// authenticated via HTTP Basic auth.
	TokenURL = accountsBaseURL + "/api/token"
	// APIBaseURL is the resource API root.
	APIBaseURL = "https://api.spotify.com/v1"

	// MaxTrackBatch is the provider's per-call track limit. Batches at or
	// above it are rejected client-side, never silently truncated.
	MaxTrackBatch = 100
)

// Scopes requested during delegated authorization.
// https://developer.spotify.com/documentation/web-api/concepts/scopes
var Scopes = []string{
	"user-library-read",
	"user-read-recently-played",
	"user-top-read",
	"user-read-private",
	"user-read-email",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-private",
	"playlist-modify-public",
}

type followers struct {
	Total int `json:"total"`
}

// RemoteUser is the provider-side identity of the linked account.
type RemoteUser struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Product     string    `json:"product"`
	Followers   followers `json:"followers"`
	Images      []Image   `json:"images"`
}

// Image represents an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type trackCount struct {
	Total int `json:"total"`
}

// SimplePlaylist is the simplified playlist object used in list responses.
type SimplePlaylist struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Owner       Owner      `json:"owner"`
	Public      bool       `json:"public"`
	Tracks      trackCount `json:"tracks"`
	URI         string     `json:"uri"`
}

// Playlist is the full playlist object.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       Owner  `json:"owner"`
	Public      bool   `json:"public"`
	URI         string `json:"uri"`
}

// Track is a track resource.
type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
	URI        string `json:"uri"`
}

// PlaylistTrack is a track within a playlist context.
type PlaylistTrack struct {
	AddedAt string `json:"added_at"`
	Track   Track  `json:"track"`
}

// page is one cursor-paginated response. A nil Next link signals the end of
// the result set.
type page[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}
