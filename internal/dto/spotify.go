package dto

// AuthorizeResponse carries the provider consent URL the client must visit.
type AuthorizeResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// LinkAccountResponse reports the linked account after the callback exchange.
// Token values are secrets and never appear here.
type LinkAccountResponse struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

// CreatePlaylistRequest creates a playlist on the linked account.
type CreatePlaylistRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// TrackBatchRequest adds or removes a batch of tracks. Batches at or above
// the provider limit are rejected before any network call.
type TrackBatchRequest struct {
	TrackIDs []string `json:"track_ids" binding:"required,min=1"`
}
