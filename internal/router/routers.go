package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/musicshare/api/config"
	"github.com/musicshare/api/internal/handler"
	"github.com/musicshare/api/internal/middleware"
	"github.com/musicshare/api/pkg/phone"
)

type Router struct {
	authHandler    *handler.AuthHandler
	spotifyHandler *handler.SpotifyHandler
	healthHandler  *handler.HealthHandler

	jwtMw  *middleware.JWTMiddleware
	Config *config.Config
}

func NewRouter(
	auth *handler.AuthHandler,
	spotifyHandler *handler.SpotifyHandler,
	health *handler.HealthHandler,
	jwtMw *middleware.JWTMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:    auth,
		spotifyHandler: spotifyHandler,
		healthHandler:  health,
		jwtMw:          jwtMw,
		Config:         cfg,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	if r.Config.Env == config.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	registerValidators()

	router := gin.New()

	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.CORS())

	api := router.Group("/api")
	{
		api.GET("/health", r.healthHandler.Health)

		v1 := api.Group("/v1")
		{
			v1.Use(middleware.RateLimit(r.Config.RateLimit.Request, time.Duration(r.Config.RateLimit.Duration)*time.Second))

			r.authRoutes(v1)
			r.spotifyRoutes(v1)
		}
	}

	return router
}

// registerValidators installs the custom binding validators. The "phone"
// tag accepts anything the normalizer can canonicalize.
func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		_, err := phone.Normalize(fl.Field().String())
		return err == nil
	})
}
