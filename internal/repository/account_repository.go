package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/eaglebank/identity-service/shared/models"
	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"

	emailConstraint  = "accounts_email_key"
	mobileConstraint = "accounts_mobile_key"
)

const accountColumns = `id, name, email, mobile, password_hash, otp, created_at, updated_at`

// PostgresAccountRepository is the PostgreSQL account store (source of truth).
// Every mutation is a single statement, which is what gives the service its
// per-record atomicity.
type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, name, email, mobile, password_hash, otp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Name, account.Email, account.Mobile, account.PasswordHash,
		nullString(account.OTP), account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.getOne(ctx, query, email)
}

// EmailTaken reports whether another account (not excludeID) uses email.
func (r *PostgresAccountRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1 AND id <> $2)`, email, excludeID)
}

// MobileTaken reports whether another account (not excludeID) uses mobile.
func (r *PostgresAccountRepository) MobileTaken(ctx context.Context, mobile, excludeID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE mobile = $1 AND id <> $2)`, mobile, excludeID)
}

func (r *PostgresAccountRepository) UpdateProfile(ctx context.Context, id, name, email, mobile string, at time.Time) error {
	query := `
		UPDATE accounts
		SET name = $2, email = $3, mobile = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, name, email, mobile, at)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireOneRow(result)
}

// SetOTP stores a new code, replacing any outstanding one.
func (r *PostgresAccountRepository) SetOTP(ctx context.Context, id, otp string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET otp = $2, updated_at = $3 WHERE id = $1`, id, otp, at)
	if err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return requireOneRow(result)
}

// ConsumeOTP clears the OTP of the account matching both email and otp and
// returns that account. The match and the clear are one statement, so a code
// can be consumed only once even under concurrent verification.
func (r *PostgresAccountRepository) ConsumeOTP(ctx context.Context, email, otp string, at time.Time) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET otp = NULL, updated_at = $3
		WHERE email = $1 AND otp = $2
		RETURNING ` + accountColumns
	return r.getOne(ctx, query, email, otp, at)
}

func (r *PostgresAccountRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireOneRow(result)
}

func (r *PostgresAccountRepository) getOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	var account models.Account
	var otp sql.NullString

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&account.ID, &account.Name, &account.Email, &account.Mobile, &account.PasswordHash,
		&otp, &account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if otp.Valid {
		account.OTP = otp.String
	}
	return &account, nil
}

func (r *PostgresAccountRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check account uniqueness: %w", err)
	}
	return found, nil
}

func requireOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// mapUniqueViolation returns the duplicate sentinel for a violation of the
// email or mobile index, or nil for anything else. Other constraints hold
// server-generated values and stay internal errors.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case emailConstraint:
		return apperr.ErrDuplicateEmail
	case mobileConstraint:
		return apperr.ErrDuplicateMobile
	default:
		return nil
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
