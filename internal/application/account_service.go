package application

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-account-lifecycle/internal/application/apperr"
	"github.com/oksasatya/go-account-lifecycle/internal/application/notify"
	"github.com/oksasatya/go-account-lifecycle/internal/application/session"
	"github.com/oksasatya/go-account-lifecycle/internal/application/token"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/entity"
	repo "github.com/oksasatya/go-account-lifecycle/internal/domain/repository"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
	"github.com/oksasatya/go-account-lifecycle/pkg/mailer"
	"github.com/oksasatya/go-account-lifecycle/pkg/mailer/templates"
	"github.com/oksasatya/go-account-lifecycle/pkg/validation"
)

const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgUnverified         = "Please verify your email before signing in. Check your inbox for the verification link."
	MsgEmailTaken         = "An account with this email already exists"
	MsgInvalidVerifyLink  = "Invalid or expired verification link"
	MsgInvalidResetLink   = "Invalid or expired reset link"
	MsgResetRequested     = "If an account exists with this email, you will receive a password reset link."
	MsgResendRequested    = "If an unverified account exists with this email, you will receive a new verification link."

	RedirectAfterLogin  = "/"
	RedirectAfterVerify = "/dashboard?verified=true"
	RedirectAfterReset  = "/login?reset=success"

	defaultDispatchTimeout = 15 * time.Second
)

// Hasher is satisfied by helpers.PasswordHasher.
type Hasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
	CompareDummy(plain string)
}

// Links are the front-end pages mailed tokens point at.
type Links struct {
	VerifyURL   string
	ResetURL    string
	RecoveryURL string
}

type AccountDeps struct {
	Repo     repo.AccountRepository
	Tokens   *token.Issuer
	Sessions *session.Manager
	Hasher   Hasher
	Mail     mailer.Dispatcher
	Brand    templates.Brand
	Links    Links
	Logger   *logrus.Logger
}

// AccountService drives registration, login, verification and password reset.
type AccountService struct {
	repo     repo.AccountRepository
	tokens   *token.Issuer
	sessions *session.Manager
	hasher   Hasher
	mail     mailer.Dispatcher
	brand    templates.Brand
	links    Links
	logger   *logrus.Logger
	validate *validator.Validate

	dispatchTimeout time.Duration
	inflight        sync.WaitGroup
}

type Option func(*AccountService)

// WithDispatchTimeout bounds each background email dispatch.
func WithDispatchTimeout(d time.Duration) Option {
	return func(s *AccountService) {
		if d > 0 {
			s.dispatchTimeout = d
		}
	}
}

// WithValidator replaces the default validator.
func WithValidator(v *validator.Validate) Option {
	return func(s *AccountService) {
		if v != nil {
			s.validate = v
		}
	}
}

func NewAccountService(d AccountDeps, opts ...Option) *AccountService {
	s := &AccountService{
		repo:            d.Repo,
		tokens:          d.Tokens,
		sessions:        d.Sessions,
		hasher:          d.Hasher,
		mail:            d.Mail,
		brand:           d.Brand,
		links:           d.Links,
		logger:          d.Logger,
		validate:        validation.New(),
		dispatchTimeout: defaultDispatchTimeout,
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,emailish"`
	Password string `json:"password" validate:"regpwd,max=72"`
	Name     string `json:"name" validate:"max=100"`
}

type RegisterResult struct {
	AccountID string
	Email     string
}

type LoginInput struct {
	Email    string        `json:"email" validate:"required,emailish"`
	Password string        `json:"password" validate:"required"`
	Client   notify.Client `json:"-" validate:"-"`
}

type LoginResult struct {
	AccountID string
	Session   session.Handle
	Redirect  string
}

type VerifyResult struct {
	AccountID       string
	AlreadyVerified bool
	// Session is zero when AlreadyVerified is set.
	Session  session.Handle
	Redirect string
}

type ResetRequestResult struct {
	Message string
}

type ResetPasswordInput struct {
	Token           string `json:"token"`
	NewPassword     string `json:"password" validate:"pwd,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"eqfield=NewPassword"`
}

type ResetResult struct {
	Redirect string
}

// NormalizeEmail trims and lower-cases an address. Every lookup and write
// goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unverified account and mails its verification link.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByEmail(ctx, in.Email)
	switch {
	case err == nil && existing != nil:
		return nil, apperr.Conflict(MsgEmailTaken)
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "register").Wrap(err)
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	plain, grant, err := s.issue(token.VerificationTTL)
	if err != nil {
		return nil, err
	}

	a := &entity.Account{
		Email:        in.Email,
		PasswordHash: hash,
		DisplayName:  in.Name,
	}
	a.SetVerification(grant)
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, apperr.Conflict(MsgEmailTaken)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").Wrap(err)
	}

	s.sendVerification(ctx, a, plain, grant.ExpiresAt)
	s.logger.WithField("account_id", a.ID).Info("account registered")
	return &RegisterResult{AccountID: a.ID, Email: a.Email}, nil
}

// Login checks credentials and opens a session for a verified account.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := s.check(in); err != nil {
		return nil, err
	}

	a, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "login").Wrap(err)
		}
		s.hasher.CompareDummy(in.Password)
		return nil, apperr.Auth(MsgInvalidCredentials)
	}
	if !s.hasher.Compare(a.PasswordHash, in.Password) {
		return nil, apperr.Auth(MsgInvalidCredentials)
	}
	if !a.EmailVerified {
		return nil, apperr.Unverified(MsgUnverified)
	}

	now := s.tokens.Now()
	if notify.ShouldNotify(a.LastLoginNotificationAt, now) {
		s.notifyLogin(ctx, a, in.Client, now)
	}

	h, err := s.sessions.Create(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("account_id", a.ID).Info("login succeeded")
	return &LoginResult{AccountID: a.ID, Session: h, Redirect: RedirectAfterLogin}, nil
}

// VerifyEmail consumes a verification token and opens a session.
func (s *AccountService) VerifyEmail(ctx context.Context, tok string) (*VerifyResult, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, apperr.InvalidToken(MsgInvalidVerifyLink)
	}
	digest := s.tokens.Digest(tok)

	a, err := s.repo.FindByVerificationToken(ctx, digest)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.InvalidToken(MsgInvalidVerifyLink)
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "verify_email").Wrap(err)
	}
	if a.EmailVerified {
		return &VerifyResult{AccountID: a.ID, AlreadyVerified: true, Redirect: RedirectAfterVerify}, nil
	}
	if s.tokens.IsExpired(a.VerificationTokenExpiry) {
		return nil, apperr.InvalidToken(MsgInvalidVerifyLink)
	}

	a, err = s.repo.ConsumeVerificationToken(ctx, digest, s.tokens.Now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.InvalidToken(MsgInvalidVerifyLink)
		}
		return nil, oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "verify_email").Wrap(err)
	}

	s.dispatch(ctx, mailer.EmailJob{
		To:       a.Email,
		Template: templates.Welcome,
		Data:     templates.NewWelcomeData(s.brand, displayName(a), a.Email),
	})

	h, err := s.sessions.Create(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("account_id", a.ID).Info("email verified")
	return &VerifyResult{AccountID: a.ID, Session: h, Redirect: RedirectAfterVerify}, nil
}

// ResendVerification mails a fresh verification link to an unverified account.
// The result does not reveal whether one exists.
func (s *AccountService) ResendVerification(ctx context.Context, email string) (*ResetRequestResult, error) {
	email, err := s.checkEmail(email)
	if err != nil {
		return nil, err
	}
	res := &ResetRequestResult{Message: MsgResendRequested}

	plain, grant, err := s.issue(token.VerificationTTL)
	if err != nil {
		helpers.LogError(s.logger, "verification token generation failed", err, nil)
		return res, nil
	}
	a, ok := s.lookupQuietly(ctx, email, "resend_verification")
	if !ok || a.EmailVerified {
		return res, nil
	}
	if err := s.repo.Update(ctx, a.ID, repo.AccountPatch{Verification: grant}); err != nil {
		helpers.LogError(s.logger, "store verification token failed", err, logrus.Fields{"account_id": a.ID})
		return res, nil
	}
	s.sendVerification(ctx, a, plain, grant.ExpiresAt)
	return res, nil
}

// RequestPasswordReset mails a one hour reset link when the account exists.
// Every outcome past input validation yields the same result.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (*ResetRequestResult, error) {
	email, err := s.checkEmail(email)
	if err != nil {
		return nil, err
	}
	res := &ResetRequestResult{Message: MsgResetRequested}

	plain, grant, err := s.issue(token.ResetTTL)
	if err != nil {
		helpers.LogError(s.logger, "reset token generation failed", err, nil)
		return res, nil
	}
	a, ok := s.lookupQuietly(ctx, email, "request_password_reset")
	if !ok {
		return res, nil
	}
	if err := s.repo.Update(ctx, a.ID, repo.AccountPatch{Reset: grant}); err != nil {
		helpers.LogError(s.logger, "store reset token failed", err, logrus.Fields{"account_id": a.ID})
		return res, nil
	}

	s.dispatch(ctx, mailer.EmailJob{
		To:       a.Email,
		Template: templates.ResetPassword,
		Data: templates.NewResetPasswordData(s.brand, displayName(a), a.Email, withToken(s.links.ResetURL, plain),
			templates.WithExpiry(grant.ExpiresAt, token.ResetTTL)),
	})
	return res, nil
}

// ValidateResetToken gates the reset form.
func (s *AccountService) ValidateResetToken(ctx context.Context, tok string) error {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return apperr.InvalidToken(MsgInvalidResetLink)
	}
	a, err := s.repo.FindByResetToken(ctx, s.tokens.Digest(tok))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.InvalidToken(MsgInvalidResetLink)
		}
		return oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "validate_reset_token").Wrap(err)
	}
	if s.tokens.IsExpired(a.ResetTokenExpiry) {
		return apperr.InvalidToken(MsgInvalidResetLink)
	}
	return nil
}

// ResetPassword sets a new password if the token is still valid at submit time.
func (s *AccountService) ResetPassword(ctx context.Context, in ResetPasswordInput) (*ResetResult, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	tok := strings.TrimSpace(in.Token)
	if tok == "" {
		return nil, apperr.InvalidToken(MsgInvalidResetLink)
	}

	hash, err := s.hashPassword(in.NewPassword)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.ConsumeResetToken(ctx, s.tokens.Digest(tok), s.tokens.Now(), hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.InvalidToken(MsgInvalidResetLink)
		}
		return nil, oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "reset_password").Wrap(err)
	}
	s.logger.WithField("account_id", a.ID).Info("password reset")
	return &ResetResult{Redirect: RedirectAfterReset}, nil
}

// Logout destroys the session behind handle. Absent sessions are not an error.
func (s *AccountService) Logout(ctx context.Context, handle string) error {
	return s.sessions.Destroy(ctx, handle)
}

// Account loads the account behind an authenticated session.
func (s *AccountService) Account(ctx context.Context, id string) (*entity.Account, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.Unauthenticated("Please sign in to continue")
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("account_id", id).Wrap(err)
	}
	return a, nil
}

// RequireVerified is Account for routes that need a verified email.
func (s *AccountService) RequireVerified(ctx context.Context, id string) (*entity.Account, error) {
	a, err := s.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.EmailVerified {
		return nil, apperr.Unverified(MsgUnverified)
	}
	return a, nil
}

// Drain waits for background email dispatches started so far.
func (s *AccountService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AccountService) check(in any) error {
	if err := s.validate.Struct(in); err != nil {
		return apperr.Validation("Please check your input", validation.ToDetails(err))
	}
	return nil
}

func (s *AccountService) checkEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	if err := s.validate.Var(email, "required,emailish"); err != nil {
		return "", apperr.Validation("Please enter a valid email address", map[string]string{"email": "must be a valid email"})
	}
	return email, nil
}

// lookupQuietly logs store failures instead of returning them, for flows
// whose response must not depend on the lookup.
func (s *AccountService) lookupQuietly(ctx context.Context, email, op string) (*entity.Account, bool) {
	a, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			helpers.LogError(s.logger, "account lookup failed", err, logrus.Fields{"operation": op})
		}
		return nil, false
	}
	return a, true
}

func (s *AccountService) hashPassword(plain string) (string, error) {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		if helpers.IsTooLong(err) {
			return "", apperr.Validation("Please check your input", map[string]string{"password": "must be at most 72 bytes"})
		}
		return "", oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	return hash, nil
}

// issue mints a token and the grant under which its digest is stored.
func (s *AccountService) issue(ttl time.Duration) (string, *entity.TokenGrant, error) {
	plain, err := s.tokens.Generate()
	if err != nil {
		return "", nil, err
	}
	return plain, &entity.TokenGrant{
		Digest:    s.tokens.Digest(plain),
		ExpiresAt: s.tokens.ExpiryFrom(s.tokens.Now(), ttl),
	}, nil
}

func (s *AccountService) sendVerification(ctx context.Context, a *entity.Account, plain string, expiresAt time.Time) {
	s.dispatch(ctx, mailer.EmailJob{
		To:       a.Email,
		Template: templates.VerifyEmail,
		Data: templates.NewVerifyEmailData(s.brand, displayName(a), a.Email, withToken(s.links.VerifyURL, plain),
			templates.WithExpiry(expiresAt, token.VerificationTTL)),
	})
}

// notifyLogin mails the login alert in the background and records the time
// so the throttle holds even if the send fails.
func (s *AccountService) notifyLogin(ctx context.Context, a *entity.Account, c notify.Client, now time.Time) {
	s.dispatch(ctx, mailer.EmailJob{
		To:       a.Email,
		Template: templates.LoginNotification,
		Data: templates.NewLoginNotificationData(s.brand, displayName(a), a.Email, s.links.RecoveryURL,
			templates.WithIP(c.IP),
			templates.WithUserAgent(c.UserAgent),
			templates.WithClient(c.Browser, c.Device),
			templates.WithTime(now)),
	})
	if err := s.repo.Update(ctx, a.ID, repo.AccountPatch{LastLoginNotificationAt: &now}); err != nil {
		helpers.LogError(s.logger, "record login notification failed", err, logrus.Fields{"account_id": a.ID})
	}
}

// dispatch hands job to the mailer on its own goroutine. The request context
// only contributes values; its cancellation does not stop the send.
func (s *AccountService) dispatch(ctx context.Context, job mailer.EmailJob) {
	if s.mail == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(logrus.Fields{"template": job.Template, "panic": r}).Error("email dispatch panicked")
			}
		}()
		dctx, cancel := context.WithTimeout(bg, s.dispatchTimeout)
		defer cancel()
		if err := s.mail.Dispatch(dctx, job); err != nil {
			helpers.LogError(s.logger, "email dispatch failed", err, logrus.Fields{"template": job.Template})
		}
	}()
}

func displayName(a *entity.Account) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if at := strings.IndexByte(a.Email, '@'); at > 0 {
		return a.Email[:at]
	}
	return a.Email
}

func withToken(base, tok string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(tok)
	}
	q := u.Query()
	q.Set("token", tok)
	u.RawQuery = q.Encode()
	return u.String()
}
