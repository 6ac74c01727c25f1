package application_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/go-account-lifecycle/internal/application"
	"github.com/oksasatya/go-account-lifecycle/internal/application/apperr"
	"github.com/oksasatya/go-account-lifecycle/internal/application/notify"
	"github.com/oksasatya/go-account-lifecycle/internal/application/session"
	"github.com/oksasatya/go-account-lifecycle/internal/application/token"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/repository"
	"github.com/oksasatya/go-account-lifecycle/internal/infrastructure/memory"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
	"github.com/oksasatya/go-account-lifecycle/pkg/mailer"
	"github.com/oksasatya/go-account-lifecycle/pkg/mailer/templates"
)

type recordingMailer struct {
	mu   sync.Mutex
	jobs []mailer.EmailJob
	err  error
}

func (m *recordingMailer) Dispatch(_ context.Context, job mailer.EmailJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return m.err
}

func (m *recordingMailer) sent(template string) []mailer.EmailJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mailer.EmailJob
	for _, j := range m.jobs {
		if j.Template == template {
			out = append(out, j)
		}
	}
	return out
}

// lookupFailingRepo simulates a store outage on email lookups.
type lookupFailingRepo struct {
	*memory.AccountRepository
}

func (lookupFailingRepo) FindByEmail(context.Context, string) (*entity.Account, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	svc      *application.AccountService
	repo     *memory.AccountRepository
	mail     *recordingMailer
	sessions *session.Manager

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: memory.NewAccountRepository(),
		mail: &recordingMailer{},
		now:  time.Now().UTC().Truncate(time.Second),
	}
	f.svc = f.build(f.repo)
	return f
}

func (f *fixture) build(r repository.AccountRepository) *application.AccountService {
	tokens := token.NewIssuer(token.WithClock(f.clock))
	f.sessions = session.NewManager(
		memory.NewSessionStore(),
		helpers.NewJWTManager("test-secret", time.Hour, "test"),
		tokens,
		nil,
	)
	return application.NewAccountService(application.AccountDeps{
		Repo:     r,
		Tokens:   tokens,
		Sessions: f.sessions,
		Hasher:   helpers.NewPasswordHasher(bcrypt.MinCost),
		Mail:     f.mail,
		Brand:    templates.Brand{AppName: "rrdemo"},
		Links: application.Links{
			VerifyURL:   "http://app.test/verify",
			ResetURL:    "http://app.test/reset-password",
			RecoveryURL: "http://app.test/reset",
		},
	}, application.WithDispatchTimeout(time.Second))
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Drain(ctx))
}

// lastToken returns the token carried by the newest email of template.
func (f *fixture) lastToken(t *testing.T, template, field string) string {
	t.Helper()
	f.drain(t)
	jobs := f.mail.sent(template)
	require.NotEmpty(t, jobs, "no %s email", template)
	link, ok := jobs[len(jobs)-1].Data[field].(string)
	require.True(t, ok)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func (f *fixture) register(t *testing.T, email, password string) string {
	t.Helper()
	res, err := f.svc.Register(context.Background(), application.RegisterInput{Email: email, Password: password, Name: "Alice"})
	require.NoError(t, err)
	return res.AccountID
}

func (f *fixture) registerVerified(t *testing.T, email, password string) string {
	t.Helper()
	id := f.register(t, email, password)
	_, err := f.svc.VerifyEmail(context.Background(), f.lastToken(t, templates.VerifyEmail, "VerifyURL"))
	require.NoError(t, err)
	return id
}

func (f *fixture) account(t *testing.T, id string) *entity.Account {
	t.Helper()
	a, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, application.RegisterInput{Email: "  Alice@X.com ", Password: "secret1", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", res.Email)

	tok := f.lastToken(t, templates.VerifyEmail, "VerifyURL")
	assert.Len(t, tok, 64)

	a := f.account(t, res.AccountID)
	assert.False(t, a.EmailVerified)
	assert.Equal(t, entity.StatePendingVerification, a.State(f.clock()))
	require.NotNil(t, a.VerificationToken)
	assert.NotEqual(t, tok, *a.VerificationToken, "token must be stored as a digest")
	assert.Equal(t, token.NewIssuer().Digest(tok), *a.VerificationToken)
	require.NotNil(t, a.VerificationTokenExpiry)
	assert.Equal(t, f.clock().Add(24*time.Hour), *a.VerificationTokenExpiry)
	assert.NotEqual(t, "secret1", a.PasswordHash)

	jobs := f.mail.sent(templates.VerifyEmail)
	require.Len(t, jobs, 1)
	assert.Equal(t, "alice@x.com", jobs[0].To)
	assert.Equal(t, "24 hours", jobs[0].Data["ExpiresIn"])
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    application.RegisterInput
		field string
	}{
		{"missing at sign", application.RegisterInput{Email: "alice", Password: "secret1"}, "email"},
		{"empty email", application.RegisterInput{Email: "", Password: "secret1"}, "email"},
		{"short password", application.RegisterInput{Email: "alice@x.com", Password: "12345"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Register(context.Background(), tt.in)
			require.ErrorIs(t, err, apperr.ErrValidation)

			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Contains(t, ae.Details, tt.field)
			f.drain(t)
			assert.Empty(t, f.mail.sent(templates.VerifyEmail))
		})
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret1")

	_, err := f.svc.Register(ctx, application.RegisterInput{Email: "alice@x.com", Password: "other12"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Register(ctx, application.RegisterInput{Email: "ALICE@x.com", Password: "other12"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("mailgun down")

	id := f.register(t, "alice@x.com", "secret1")
	f.drain(t)
	assert.NotEmpty(t, id)
	assert.Len(t, f.mail.sent(templates.VerifyEmail), 1)
}

func TestLoginUnverifiedAccount(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.com", "secret1")

	_, err := f.svc.Login(context.Background(), application.LoginInput{Email: "alice@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrUnverified)
	assert.NotErrorIs(t, err, apperr.ErrAuth)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@x.com", "secret1")

	_, wrongPassword := f.svc.Login(ctx, application.LoginInput{Email: "alice@x.com", Password: "nope"})
	_, unknownEmail := f.svc.Login(ctx, application.LoginInput{Email: "bob@x.com", Password: "nope"})

	require.ErrorIs(t, wrongPassword, apperr.ErrAuth)
	require.ErrorIs(t, unknownEmail, apperr.ErrAuth)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, wrongPassword, unknownEmail)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), application.LoginInput{Email: "alice", Password: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Login(context.Background(), application.LoginInput{Email: "alice@x.com"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLoginCreatesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "alice@x.com", "secret1")

	res, err := f.svc.Login(ctx, application.LoginInput{Email: "ALICE@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "/", res.Redirect)
	assert.Equal(t, id, res.AccountID)

	got, ok := f.sessions.Resolve(ctx, res.Session.Token)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestLoginNotificationIsThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "alice@x.com", "secret1")
	client := notify.Describe("203.0.113.7", "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Safari/537.36")
	in := application.LoginInput{Email: "alice@x.com", Password: "secret1", Client: client}

	_, err := f.svc.Login(ctx, in)
	require.NoError(t, err)
	f.drain(t)
	jobs := f.mail.sent(templates.LoginNotification)
	require.Len(t, jobs, 1)
	assert.Equal(t, "203.0.113.7", jobs[0].Data["IP"])
	assert.Equal(t, "Chrome", jobs[0].Data["Browser"])
	assert.Equal(t, "Desktop", jobs[0].Data["Device"])
	first := f.account(t, id).LastLoginNotificationAt
	require.NotNil(t, first)
	assert.Equal(t, f.clock(), *first)

	f.advance(30 * time.Minute)
	_, err = f.svc.Login(ctx, in)
	require.NoError(t, err)
	f.drain(t)
	assert.Len(t, f.mail.sent(templates.LoginNotification), 1)
	assert.Equal(t, *first, *f.account(t, id).LastLoginNotificationAt)

	f.advance(31 * time.Minute)
	_, err = f.svc.Login(ctx, in)
	require.NoError(t, err)
	f.drain(t)
	assert.Len(t, f.mail.sent(templates.LoginNotification), 2)
}

func TestLoginSucceedsWhenNotificationFails(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "alice@x.com", "secret1")
	f.mail.err = errors.New("queue closed")

	_, err := f.svc.Login(context.Background(), application.LoginInput{Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)
	f.drain(t)
}

func TestVerifyEmailConsumesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "alice@x.com", "secret1")
	tok := f.lastToken(t, templates.VerifyEmail, "VerifyURL")

	res, err := f.svc.VerifyEmail(ctx, tok)
	require.NoError(t, err)
	assert.False(t, res.AlreadyVerified)
	assert.Equal(t, "/dashboard?verified=true", res.Redirect)
	got, ok := f.sessions.Resolve(ctx, res.Session.Token)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	a := f.account(t, id)
	assert.True(t, a.EmailVerified)
	assert.Nil(t, a.VerificationToken)
	assert.Nil(t, a.VerificationTokenExpiry)

	f.drain(t)
	assert.Len(t, f.mail.sent(templates.Welcome), 1)

	_, err = f.svc.VerifyEmail(ctx, tok)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestVerifyEmailAlreadyVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "alice@x.com", "secret1")

	// A verified account still holding a token, as left by a partial write.
	tokens := token.NewIssuer()
	plain, err := tokens.Generate()
	require.NoError(t, err)
	grant := &entity.TokenGrant{Digest: tokens.Digest(plain), ExpiresAt: f.clock().Add(time.Hour)}
	require.NoError(t, f.repo.Update(ctx, id, repository.AccountPatch{Verification: grant}))
	before := f.account(t, id)

	res, err := f.svc.VerifyEmail(ctx, plain)
	require.NoError(t, err)
	assert.True(t, res.AlreadyVerified)
	assert.Empty(t, res.Session.Token)

	after := f.account(t, id)
	assert.Equal(t, before.VerificationToken, after.VerificationToken)
	f.drain(t)
	assert.Len(t, f.mail.sent(templates.Welcome), 1)
}

func TestVerifyEmailRejectsUnknownAndEmpty(t *testing.T) {
	f := newFixture(t)
	for _, tok := range []string{"", "   ", "deadbeef"} {
		_, err := f.svc.VerifyEmail(context.Background(), tok)
		assert.ErrorIs(t, err, apperr.ErrInvalidToken, tok)
	}
}

func TestVerifyEmailExpiry(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.com", "secret1")
	tok := f.lastToken(t, templates.VerifyEmail, "VerifyURL")

	f.advance(24*time.Hour + time.Second)
	_, err := f.svc.VerifyEmail(context.Background(), tok)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestVerifyEmailAtExactExpiry(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.com", "secret1")
	tok := f.lastToken(t, templates.VerifyEmail, "VerifyURL")

	f.advance(24 * time.Hour)
	_, err := f.svc.VerifyEmail(context.Background(), tok)
	assert.NoError(t, err)
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@x.com", "secret1")
	old := f.lastToken(t, templates.VerifyEmail, "VerifyURL")

	known, err := f.svc.ResendVerification(ctx, "alice@x.com")
	require.NoError(t, err)
	unknown, err := f.svc.ResendVerification(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Equal(t, known, unknown)

	fresh := f.lastToken(t, templates.VerifyEmail, "VerifyURL")
	assert.NotEqual(t, old, fresh)
	assert.Len(t, f.mail.sent(templates.VerifyEmail), 2)

	_, err = f.svc.VerifyEmail(ctx, old)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	_, err = f.svc.VerifyEmail(ctx, fresh)
	require.NoError(t, err)

	_, err = f.svc.ResendVerification(ctx, "alice@x.com")
	require.NoError(t, err)
	f.drain(t)
	assert.Len(t, f.mail.sent(templates.VerifyEmail), 2, "verified accounts get no new link")

	_, err = f.svc.ResendVerification(ctx, "not-an-email")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRequestPasswordResetIsGeneric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@x.com", "secret1")

	known, err := f.svc.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	unknown, err := f.svc.RequestPasswordReset(ctx, "nobody@x.com")
	require.NoError(t, err)

	assert.Equal(t, known, unknown)
	assert.Equal(t, "If an account exists with this email, you will receive a password reset link.", known.Message)
	f.drain(t)
	require.Len(t, f.mail.sent(templates.ResetPassword), 1)
	assert.Equal(t, "1 hour", f.mail.sent(templates.ResetPassword)[0].Data["ExpiresIn"])
}

func TestRequestPasswordResetSurvivesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@x.com", "secret1")
	f.mail.err = errors.New("mailgun down")

	res, err := f.svc.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, application.MsgResetRequested, res.Message)

	broken := f.build(lookupFailingRepo{f.repo})
	res, err = broken.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, application.MsgResetRequested, res.Message)
	f.drain(t)
}

func TestRequestPasswordResetRejectsMalformedEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RequestPasswordReset(context.Background(), "alice")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRequestPasswordResetOverwritesPriorToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "alice@x.com", "secret1")

	_, err := f.svc.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	first := f.lastToken(t, templates.ResetPassword, "ResetURL")
	_, err = f.svc.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	second := f.lastToken(t, templates.ResetPassword, "ResetURL")

	assert.ErrorIs(t, f.svc.ValidateResetToken(ctx, first), apperr.ErrInvalidToken)
	assert.NoError(t, f.svc.ValidateResetToken(ctx, second))

	a := f.account(t, id)
	require.NotNil(t, a.ResetToken)
	require.NotNil(t, a.ResetTokenExpiry)
	assert.Equal(t, entity.StatePasswordResetPending, a.State(f.clock()))
}

func TestResetPasswordFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "alice@x.com", "secret1")

	_, err := f.svc.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	tok := f.lastToken(t, templates.ResetPassword, "ResetURL")
	require.NoError(t, f.svc.ValidateResetToken(ctx, tok))

	res, err := f.svc.ResetPassword(ctx, application.ResetPasswordInput{Token: tok, NewPassword: "newpass1", ConfirmPassword: "newpass1"})
	require.NoError(t, err)
	assert.Equal(t, "/login?reset=success", res.Redirect)

	a := f.account(t, id)
	assert.Nil(t, a.ResetToken)
	assert.Nil(t, a.ResetTokenExpiry)

	_, err = f.svc.Login(ctx, application.LoginInput{Email: "alice@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrAuth)
	_, err = f.svc.Login(ctx, application.LoginInput{Email: "alice@x.com", Password: "newpass1"})
	assert.NoError(t, err)

	_, err = f.svc.ResetPassword(ctx, application.ResetPasswordInput{Token: tok, NewPassword: "another1", ConfirmPassword: "another1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	assert.ErrorIs(t, f.svc.ValidateResetToken(ctx, tok), apperr.ErrInvalidToken)
}

func TestResetPasswordValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ResetPassword(ctx, application.ResetPasswordInput{Token: "t", NewPassword: "short", ConfirmPassword: "short"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.ResetPassword(ctx, application.ResetPasswordInput{Token: "t", NewPassword: "newpass1", ConfirmPassword: "newpass2"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.ResetPassword(ctx, application.ResetPasswordInput{Token: "", NewPassword: "newpass1", ConfirmPassword: "newpass1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestResetTokenExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@x.com", "secret1")
	_, err := f.svc.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	tok := f.lastToken(t, templates.ResetPassword, "ResetURL")

	f.advance(time.Hour)
	assert.NoError(t, f.svc.ValidateResetToken(ctx, tok))

	f.advance(time.Second)
	assert.ErrorIs(t, f.svc.ValidateResetToken(ctx, tok), apperr.ErrInvalidToken)
	_, err = f.svc.ResetPassword(ctx, application.ResetPasswordInput{Token: tok, NewPassword: "newpass1", ConfirmPassword: "newpass1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestResetPasswordConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@x.com", "secret1")
	_, err := f.svc.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	tok := f.lastToken(t, templates.ResetPassword, "ResetURL")

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.ResetPassword(ctx, application.ResetPasswordInput{Token: tok, NewPassword: "newpass1", ConfirmPassword: "newpass1"})
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	}
	assert.Equal(t, 1, wins)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@x.com", "secret1")
	res, err := f.svc.Login(ctx, application.LoginInput{Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, res.Session.Token))
	_, ok := f.sessions.Resolve(ctx, res.Session.Token)
	assert.False(t, ok)

	assert.NoError(t, f.svc.Logout(ctx, res.Session.Token))
	assert.NoError(t, f.svc.Logout(ctx, ""))
	assert.NoError(t, f.svc.Logout(ctx, "garbage"))
}

func TestRequireVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.register(t, "bob@x.com", "secret1")
	verified := f.registerVerified(t, "alice@x.com", "secret1")

	a, err := f.svc.RequireVerified(ctx, verified)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", a.Email)

	_, err = f.svc.RequireVerified(ctx, pending)
	assert.ErrorIs(t, err, apperr.ErrUnverified)

	_, err = f.svc.Account(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

type blockingMailer struct {
	release chan struct{}
}

func (m *blockingMailer) Dispatch(ctx context.Context, _ mailer.EmailJob) error {
	select {
	case <-m.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestDrainWaitsForDispatch(t *testing.T) {
	bm := &blockingMailer{release: make(chan struct{})}
	svc := application.NewAccountService(application.AccountDeps{
		Repo:   memory.NewAccountRepository(),
		Tokens: token.NewIssuer(),
		Hasher: helpers.NewPasswordHasher(bcrypt.MinCost),
		Mail:   bm,
	}, application.WithDispatchTimeout(5*time.Second))

	reqCtx, cancelReq := context.WithCancel(context.Background())
	_, err := svc.Register(reqCtx, application.RegisterInput{Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)
	cancelReq()

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Drain(short), context.DeadlineExceeded, "request cancellation must not stop the send")

	close(bm.release)
	require.NoError(t, svc.Drain(context.Background()))
}
