package modules

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	handlers "github.com/oksasatya/go-account-lifecycle/internal/interface/http"
	"github.com/oksasatya/go-account-lifecycle/internal/interface/middleware"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
)

// AccountModule registers routes that need a verified session.
// Protected: GET /api/account
type AccountModule struct {
	Handler  *handlers.AccountHandler
	Sessions middleware.SessionResolver
	Accounts middleware.VerifiedLoader
	Cookies  *helpers.CookieManager
	Logger   *logrus.Logger
}

func NewAccountModule(h *handlers.AccountHandler, sessions middleware.SessionResolver, accounts middleware.VerifiedLoader, cookies *helpers.CookieManager, logger *logrus.Logger) *AccountModule {
	return &AccountModule{Handler: h, Sessions: sessions, Accounts: accounts, Cookies: cookies, Logger: logger}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	protected := rg.Group("/")
	protected.Use(
		middleware.RequireSession(m.Sessions, m.Cookies),
		middleware.RequireVerified(m.Accounts, m.Logger),
	)
	{
		protected.GET("/account", m.Handler.Me)
	}
}
