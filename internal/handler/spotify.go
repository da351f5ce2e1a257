package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/musicshare/api/internal/constants"
	"github.com/musicshare/api/internal/dto"
	apperrors "github.com/musicshare/api/internal/errors"
	"github.com/musicshare/api/internal/service"
	"github.com/musicshare/api/internal/spotify"
	"github.com/musicshare/api/pkg/logger"
)

type SpotifyHandler struct {
	tokenService *service.TokenService
	clientOpts   []spotify.Option
}

func NewSpotifyHandler(tokenService *service.TokenService, clientOpts ...spotify.Option) *SpotifyHandler {
	return &SpotifyHandler{
		tokenService: tokenService,
		clientOpts:   clientOpts,
	}
}

// Authorize begins the linking flow and returns the consent URL.
func (h *SpotifyHandler) Authorize(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	_, authURL, state, err := h.tokenService.BeginLink(c.Request.Context(), userID)
	if err != nil {
		logger.GetLogger().Warn("Spotify authorize failed",
			zap.Error(err),
		)
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Authorization failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, dto.AuthorizeResponse{
		URL:   authURL,
		State: state,
	})
}

// Callback completes the linking flow with the provider's authorization code
// and the state issued by Authorize. The route requires a bearer token, so
// the client app intercepts the provider redirect and re-submits code and
// state here with its own session; the state check ties the submission to
// the consent flow this user started.
func (h *SpotifyHandler) Callback(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Missing authorization code", nil))
		return
	}
	state := c.Query("state")
	if state == "" {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Missing state", nil))
		return
	}

	account, err := h.tokenService.CompleteLink(c.Request.Context(), userID, code, state)
	if err != nil {
		logger.GetLogger().Warn("Spotify link failed",
			zap.Error(err),
		)
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Linking failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, dto.LinkAccountResponse{
		AccountID: account.ID.String(),
		Status:    string(account.Status),
	})
}

// Me proxies the linked account's remote identity.
func (h *SpotifyHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	client := h.clientFor(userID)
	remote, err := client.Me(c.Request.Context())
	if err != nil {
		h.apiError(c, "Failed to fetch identity", err)
		return
	}

	c.JSON(http.StatusOK, remote)
}

// ListPlaylists lists the linked account's playlists. The optional limit
// query bounds the total fetched across pages; absence fetches everything.
func (h *SpotifyHandler) ListPlaylists(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	maxCount := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid limit", nil))
			return
		}
		maxCount = parsed
	}

	client := h.clientFor(userID)
	playlists, err := client.Playlists(c.Request.Context(), maxCount)
	if err != nil {
		h.apiError(c, "Failed to list playlists", err)
		return
	}

	c.JSON(http.StatusOK, constants.BuildListResponse(playlists, len(playlists)))
}

// CreatePlaylist creates a playlist on the linked account.
func (h *SpotifyHandler) CreatePlaylist(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.CreatePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	client := h.clientFor(userID)
	remote, err := client.Me(c.Request.Context())
	if err != nil {
		h.apiError(c, "Failed to fetch identity", err)
		return
	}

	playlist, err := client.CreatePlaylist(c.Request.Context(), remote.ID, req.Name, req.Description, req.Public)
	if err != nil {
		h.apiError(c, "Failed to create playlist", err)
		return
	}

	c.JSON(http.StatusCreated, playlist)
}

// AddTracks appends a track batch to a playlist.
func (h *SpotifyHandler) AddTracks(c *gin.Context) {
	h.trackBatch(c, func(client *spotify.Client, playlistID string, trackIDs []string) error {
		return client.AddTracks(c.Request.Context(), playlistID, trackIDs)
	})
}

// RemoveTracks removes a track batch from a playlist.
func (h *SpotifyHandler) RemoveTracks(c *gin.Context) {
	h.trackBatch(c, func(client *spotify.Client, playlistID string, trackIDs []string) error {
		return client.RemoveTracks(c.Request.Context(), playlistID, trackIDs)
	})
}

func (h *SpotifyHandler) trackBatch(c *gin.Context, op func(*spotify.Client, string, []string) error) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	playlistID := c.Param("id")

	var req dto.TrackBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	client := h.clientFor(userID)
	if err := op(client, playlistID, req.TrackIDs); err != nil {
		h.apiError(c, "Track operation failed", err)
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("ok"))
}

func (h *SpotifyHandler) clientFor(userID uuid.UUID) *spotify.Client {
	return spotify.NewClient(h.tokenService.ProviderFor(userID), h.clientOpts...)
}

func (h *SpotifyHandler) apiError(c *gin.Context, message string, err error) {
	logger.GetLogger().Warn(message,
		zap.Error(err),
	)
	c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse(message, apperrors.GetErrorMessage(err)))
}

// currentUserID pulls the authenticated user id set by the JWT middleware.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", "user not found in context"))
		c.Abort()
		return uuid.Nil, false
	}

	userID, ok := value.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", "invalid user id in context"))
		c.Abort()
		return uuid.Nil, false
	}

	return userID, true
}
