package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-account-lifecycle/internal/application/apperr"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
	"github.com/oksasatya/go-account-lifecycle/pkg/response"
)

const (
	CtxAccountIDKey = "accountID"
	CtxAccountKey   = "account"
)

// SessionResolver is satisfied by session.Manager.
type SessionResolver interface {
	RequireAccount(ctx context.Context, handle string) (string, error)
}

// VerifiedLoader is satisfied by application.AccountService.
type VerifiedLoader interface {
	RequireVerified(ctx context.Context, accountID string) (*entity.Account, error)
}

// RequireSession resolves the session cookie and sets accountID in the
// Gin context. Requests without a live session stop with 401.
func RequireSession(sessions SessionResolver, cookies *helpers.CookieManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := sessions.RequireAccount(c.Request.Context(), cookies.Session(c))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, messageOf(err), nil)
			return
		}
		c.Set(CtxAccountIDKey, id)
		c.Next()
	}
}

// RequireVerified must run after RequireSession. It loads the account and
// rejects unverified ones with 403.
func RequireVerified(accounts VerifiedLoader, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := accounts.RequireVerified(c.Request.Context(), c.GetString(CtxAccountIDKey))
		if err != nil {
			status := StatusOf(err)
			if status == http.StatusInternalServerError {
				helpers.LogError(logger, "load account failed", err, logrus.Fields{"request_id": c.GetString(CtxRequestIDKey)})
			}
			response.Abort(c, status, messageOf(err), nil)
			return
		}
		c.Set(CtxAccountKey, a)
		c.Next()
	}
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindInvalidToken:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindAuth, apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindUnverified:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func messageOf(err error) string {
	if ae, ok := apperr.As(err); ok {
		return ae.Message
	}
	return "Something went wrong. Please try again."
}
