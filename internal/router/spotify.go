package router

import "github.com/gin-gonic/gin"

// spotifyRoutes defines the account-linking and delegated API endpoints.
// Everything requires an authenticated session: linking is gated on a
// verified user. The callback is no exception: the provider redirect lands
// in the client app, which re-submits code and state here under its own
// bearer token rather than the browser hitting this route directly.
func (r *Router) spotifyRoutes(rg *gin.RouterGroup) {
	spotify := rg.Group("/spotify")
	spotify.Use(r.jwtMw.RequireAuth())
	{
		spotify.GET("/authorize", r.spotifyHandler.Authorize)
		spotify.GET("/callback", r.spotifyHandler.Callback)

		spotify.GET("/me", r.spotifyHandler.Me)
		spotify.GET("/playlists", r.spotifyHandler.ListPlaylists)
		spotify.POST("/playlists", r.spotifyHandler.CreatePlaylist)
		spotify.POST("/playlists/:id/tracks", r.spotifyHandler.AddTracks)
		spotify.DELETE("/playlists/:id/tracks", r.spotifyHandler.RemoveTracks)
	}
}
