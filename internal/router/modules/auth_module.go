package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/go-account-lifecycle/internal/interface/http"
)

// AuthModule registers the public lifecycle routes under /api/auth.
type AuthModule struct {
	Handler *handlers.AccountHandler
}

func NewAuthModule(h *handlers.AccountHandler) *AuthModule {
	return &AuthModule{Handler: h}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/register", m.Handler.Register)
		auth.POST("/login", m.Handler.Login)
		auth.POST("/logout", m.Handler.Logout)

		auth.GET("/verify", m.Handler.VerifyEmail)
		auth.POST("/verify/resend", m.Handler.ResendVerification)

		auth.POST("/reset", m.Handler.RequestPasswordReset)
		auth.GET("/reset-password", m.Handler.ValidateResetToken)
		auth.POST("/reset-password", m.Handler.ResetPassword)
	}
}
