package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/musicshare/api/internal/constants"
	"github.com/musicshare/api/internal/service"
)

type JWTMiddleware struct {
	jwtService *service.JWTService
}

func NewJWTMiddleware(jwtService *service.JWTService) *JWTMiddleware {
	return &JWTMiddleware{jwtService: jwtService}
}

// RequireAuth validates the bearer token and stores the caller's user id in
// the request context.
func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", "missing authorization header"))
			c.Abort()
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := m.jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", "invalid or expired token"))
			c.Abort()
			return
		}

		rawID, ok := claims["user_id"].(string)
		if !ok {
			c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", "malformed token claims"))
			c.Abort()
			return
		}

		userID, err := uuid.Parse(rawID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", "malformed token claims"))
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
