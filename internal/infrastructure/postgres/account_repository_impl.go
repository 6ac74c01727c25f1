package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/oksasatya/go-account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/repository"
)

const uniqueViolation = "23505"

// poolIface is the subset of pgxpool.Pool the repository needs; pgxmock implements it too.
type poolIface interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const accountColumns = `id, email, password_hash, display_name, email_verified,
	verification_token, verification_token_expiry, reset_token, reset_token_expiry,
	last_login_notification_at, created_at, updated_at`

type AccountRepository struct {
	pool poolIface
}

func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*entity.Account, error) {
	a := &entity.Account{}
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.EmailVerified,
		&a.VerificationToken, &a.VerificationTokenExpiry, &a.ResetToken, &a.ResetTokenExpiry,
		&a.LastLoginNotificationAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *AccountRepository) findOne(ctx context.Context, operation, where string, arg any) (*entity.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, arg)
	a, err := scanAccount(row)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, oops.With("operation", operation).Wrap(err)
	}
	return a, err
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	return r.findOne(ctx, "find account by id", `id = $1`, id)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return r.findOne(ctx, "find account by email", `email = $1`, email)
}

func (r *AccountRepository) FindByVerificationToken(ctx context.Context, digest string) (*entity.Account, error) {
	return r.findOne(ctx, "find account by verification token", `verification_token = $1`, digest)
}

func (r *AccountRepository) FindByResetToken(ctx context.Context, digest string) (*entity.Account, error) {
	return r.findOne(ctx, "find account by reset token", `reset_token = $1`, digest)
}

func (r *AccountRepository) Create(ctx context.Context, a *entity.Account) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, display_name, email_verified,
			verification_token, verification_token_expiry)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, a.Email, a.PasswordHash, a.DisplayName, a.EmailVerified, a.VerificationToken, a.VerificationTokenExpiry)

	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicateEmail
		}
		return oops.With("operation", "create account").Wrap(err)
	}
	return nil
}

// Update writes only the columns named by patch.
func (r *AccountRepository) Update(ctx context.Context, id string, patch repository.AccountPatch) error {
	if patch.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}
	if patch.DisplayName != nil {
		set("display_name", *patch.DisplayName)
	}
	if patch.EmailVerified != nil && *patch.EmailVerified {
		set("email_verified", true)
	}
	switch {
	case patch.Verification != nil:
		set("verification_token", patch.Verification.Digest)
		set("verification_token_expiry", patch.Verification.ExpiresAt)
	case patch.ClearVerification:
		set("verification_token", nil)
		set("verification_token_expiry", nil)
	}
	switch {
	case patch.Reset != nil:
		set("reset_token", patch.Reset.Digest)
		set("reset_token_expiry", patch.Reset.ExpiresAt)
	case patch.ClearReset:
		set("reset_token", nil)
		set("reset_token_expiry", nil)
	}
	if patch.LastLoginNotificationAt != nil {
		set("last_login_notification_at", *patch.LastLoginNotificationAt)
	}

	args = append(args, id)
	sql := fmt.Sprintf(`UPDATE accounts SET %s, updated_at = now() WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	res, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return oops.With("operation", "update account").With("account_id", id).Wrap(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) ConsumeVerificationToken(ctx context.Context, digest string, now time.Time) (*entity.Account, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET email_verified = TRUE, verification_token = NULL, verification_token_expiry = NULL, updated_at = now()
		WHERE verification_token = $1 AND email_verified = FALSE AND verification_token_expiry >= $2
		RETURNING `+accountColumns, digest, now)
	a, err := scanAccount(row)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, oops.With("operation", "consume verification token").Wrap(err)
	}
	return a, err
}

func (r *AccountRepository) ConsumeResetToken(ctx context.Context, digest string, now time.Time, passwordHash string) (*entity.Account, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET password_hash = $3, reset_token = NULL, reset_token_expiry = NULL, updated_at = now()
		WHERE reset_token = $1 AND reset_token_expiry >= $2
		RETURNING `+accountColumns, digest, now, passwordHash)
	a, err := scanAccount(row)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, oops.With("operation", "consume reset token").Wrap(err)
	}
	return a, err
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
