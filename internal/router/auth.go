package router

import "github.com/gin-gonic/gin"

// authRoutes defines the phone-auth endpoints
func (r *Router) authRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/request_otp", r.authHandler.RequestOTP)
		auth.POST("/verify_otp", r.authHandler.VerifyOTP)
		auth.POST("/refresh", r.authHandler.RefreshToken)
	}
}
