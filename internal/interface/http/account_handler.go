package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-account-lifecycle/internal/application"
	"github.com/oksasatya/go-account-lifecycle/internal/application/apperr"
	"github.com/oksasatya/go-account-lifecycle/internal/application/notify"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/go-account-lifecycle/internal/interface/middleware"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
	"github.com/oksasatya/go-account-lifecycle/pkg/response"
	"github.com/oksasatya/go-account-lifecycle/pkg/validation"
)

// AccountService is the lifecycle surface the handler drives.
type AccountService interface {
	Register(ctx context.Context, in application.RegisterInput) (*application.RegisterResult, error)
	Login(ctx context.Context, in application.LoginInput) (*application.LoginResult, error)
	VerifyEmail(ctx context.Context, token string) (*application.VerifyResult, error)
	ResendVerification(ctx context.Context, email string) (*application.ResetRequestResult, error)
	RequestPasswordReset(ctx context.Context, email string) (*application.ResetRequestResult, error)
	ValidateResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, in application.ResetPasswordInput) (*application.ResetResult, error)
	Logout(ctx context.Context, handle string) error
}

type AccountHandler struct {
	Svc     AccountService
	Cookies *helpers.CookieManager
	Logger  *logrus.Logger
}

func NewAccountHandler(svc AccountService, cookies *helpers.CookieManager, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{Svc: svc, Cookies: cookies, Logger: logger}
}

type emailRequest struct {
	Email string `json:"email"`
}

type accountView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// fail renders err with the status of its kind. Internal failures are logged
// and answered with a generic message.
func (h *AccountHandler) fail(c *gin.Context, err error) {
	status := middleware.StatusOf(err)
	if status == http.StatusInternalServerError {
		helpers.LogError(h.Logger, "request failed", err, logrus.Fields{
			"request_id": c.GetString(middleware.CtxRequestIDKey),
			"path":       c.FullPath(),
		})
		response.Error[any](c, status, "Something went wrong. Please try again.", nil)
		return
	}
	e, _ := apperr.As(err)
	var details any
	if len(e.Details) > 0 {
		details = e.Details
	}
	response.Error[any](c, status, e.Message, details)
}

func (h *AccountHandler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return false
	}
	return true
}

// Register POST /api/auth/register {email, password, name}
func (h *AccountHandler) Register(c *gin.Context) {
	var req application.RegisterInput
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Svc.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"account_id": res.AccountID, "email": res.Email},
		"Account created. Check your email to verify your address.", nil)
}

// Login POST /api/auth/login {email, password}
func (h *AccountHandler) Login(c *gin.Context) {
	var req application.LoginInput
	if !h.bind(c, &req) {
		return
	}
	req.Client = notify.Describe(middleware.ClientIP(c), c.GetHeader("User-Agent"))
	res, err := h.Svc.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Cookies.SetSession(c, res.Session.Token, res.Session.ExpiresAt)
	response.Success(c, http.StatusOK, gin.H{"redirect": res.Redirect}, "signed in", nil)
}

// Logout POST /api/auth/logout
func (h *AccountHandler) Logout(c *gin.Context) {
	if err := h.Svc.Logout(c.Request.Context(), h.Cookies.Session(c)); err != nil {
		helpers.LogError(h.Logger, "logout failed", err, nil)
	}
	h.Cookies.Clear(c)
	response.Success(c, http.StatusOK, gin.H{"redirect": "/login"}, "signed out", nil)
}

// VerifyEmail GET /api/auth/verify?token=
func (h *AccountHandler) VerifyEmail(c *gin.Context) {
	res, err := h.Svc.VerifyEmail(c.Request.Context(), c.Query("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.AlreadyVerified {
		response.Success(c, http.StatusOK, gin.H{"already_verified": true, "redirect": "/login"}, "email already verified", nil)
		return
	}
	h.Cookies.SetSession(c, res.Session.Token, res.Session.ExpiresAt)
	response.Success(c, http.StatusOK, gin.H{"already_verified": false, "redirect": res.Redirect}, "email verified", nil)
}

// ResendVerification POST /api/auth/verify/resend {email}
func (h *AccountHandler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Svc.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, res.Message, nil)
}

// RequestPasswordReset POST /api/auth/reset {email}
func (h *AccountHandler) RequestPasswordReset(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Svc.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, res.Message, nil)
}

// ValidateResetToken GET /api/auth/reset-password?token=
func (h *AccountHandler) ValidateResetToken(c *gin.Context) {
	if err := h.Svc.ValidateResetToken(c.Request.Context(), c.Query("token")); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"valid": true}, "reset link is valid", nil)
}

// ResetPassword POST /api/auth/reset-password {token, password, confirm_password}
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req application.ResetPasswordInput
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Svc.ResetPassword(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"redirect": res.Redirect}, "password updated", nil)
}

// Me GET /api/account (session and verified guards)
func (h *AccountHandler) Me(c *gin.Context) {
	a, ok := c.MustGet(middleware.CtxAccountKey).(*entity.Account)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "Please sign in to continue", nil)
		return
	}
	response.Success(c, http.StatusOK, accountView{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.DisplayName,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}, "account", nil)
}
