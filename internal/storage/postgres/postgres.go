package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"passkeep/internal/storage"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ── Accounts ────────────────────────────────────────────────────────────

func (s *Store) Create(ctx context.Context, a storage.Account) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO accounts (email, name, phone, password_hash, verification_token, verification_expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		a.Email,
		a.Name,
		a.Phone,
		a.PasswordHash,
		nullString(a.VerificationToken),
		a.VerificationExpiresAt,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, storage.ErrDuplicateEmail
	}
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return id, nil
}

const accountColumns = `
id, email, name, phone, password_hash, is_verified, is_paid,
COALESCE(key_verifier, ''), COALESCE(verification_token, ''), verification_expires_at,
COALESCE(reset_token, ''), reset_expires_at, last_login_at, created_at, updated_at`

func scanAccount(row *sql.Row) (storage.Account, error) {
	var a storage.Account
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.Phone, &a.PasswordHash, &a.IsVerified, &a.IsPaid,
		&a.KeyVerifier, &a.VerificationToken, &a.VerificationExpiresAt,
		&a.ResetToken, &a.ResetExpiresAt, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Account{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Account{}, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (storage.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (storage.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (s *Store) updateAccount(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SetKeyVerifier(ctx context.Context, id int64, verifier string) error {
	return s.updateAccount(ctx, "set key verifier", `
UPDATE accounts SET key_verifier = $2, updated_at = now() WHERE id = $1`, id, verifier)
}

func (s *Store) MarkVerified(ctx context.Context, id int64) error {
	return s.updateAccount(ctx, "mark verified", `
UPDATE accounts
SET is_verified = TRUE, verification_token = NULL, verification_expires_at = NULL, updated_at = now()
WHERE id = $1`, id)
}

func (s *Store) SetPaid(ctx context.Context, id int64, paid bool) error {
	return s.updateAccount(ctx, "set paid", `
UPDATE accounts SET is_paid = $2, updated_at = now() WHERE id = $1`, id, paid)
}

func (s *Store) TouchLastLogin(ctx context.Context, id int64, now time.Time) error {
	return s.updateAccount(ctx, "touch last login", `
UPDATE accounts SET last_login_at = $2 WHERE id = $1`, id, now)
}

func (s *Store) SetResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	return s.updateAccount(ctx, "set reset token", `
UPDATE accounts SET reset_token = $2, reset_expires_at = $3, updated_at = now() WHERE id = $1`,
		id, token, expiresAt)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return s.updateAccount(ctx, "update password hash", `
UPDATE accounts
SET password_hash = $2, reset_token = NULL, reset_expires_at = NULL, updated_at = now()
WHERE id = $1`, id, hash)
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE accounts
SET verification_token = CASE WHEN verification_expires_at <= $1 THEN NULL ELSE verification_token END,
    verification_expires_at = CASE WHEN verification_expires_at <= $1 THEN NULL ELSE verification_expires_at END,
    reset_token = CASE WHEN reset_expires_at <= $1 THEN NULL ELSE reset_token END,
    reset_expires_at = CASE WHEN reset_expires_at <= $1 THEN NULL ELSE reset_expires_at END
WHERE verification_expires_at <= $1 OR reset_expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens rows affected: %w", err)
	}
	return n, nil
}

// ── Credentials ─────────────────────────────────────────────────────────

func (s *Store) Insert(ctx context.Context, c storage.Credential, maxPerOwner int64) error {
	if maxPerOwner <= 0 {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO credentials (account_id, label, ciphertext)
VALUES ($1, $2, $3)`,
			c.AccountID, c.Label, c.Ciphertext)
		if isUniqueViolation(err) {
			return storage.ErrDuplicateLabel
		}
		if err != nil {
			return fmt.Errorf("insert credential: %w", err)
		}
		return nil
	}

	// Conditional insert: the count check and the insert run in one
	// statement, so concurrent saves cannot race past the limit.
	res, err := s.db.ExecContext(ctx, `
INSERT INTO credentials (account_id, label, ciphertext)
SELECT $1, $2, $3
WHERE (SELECT COUNT(*) FROM credentials WHERE account_id = $1) < $4`,
		c.AccountID, c.Label, c.Ciphertext, maxPerOwner)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateLabel
	}
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert credential rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrQuotaExceeded
	}
	return nil
}

func (s *Store) GetByOwnerAndLabel(ctx context.Context, accountID int64, label string) (storage.Credential, error) {
	var c storage.Credential
	err := s.db.QueryRowContext(ctx, `
SELECT id, account_id, label, ciphertext, created_at, updated_at
FROM credentials
WHERE account_id = $1 AND label = $2`,
		accountID, label,
	).Scan(&c.ID, &c.AccountID, &c.Label, &c.Ciphertext, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Credential{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

func (s *Store) CountByOwner(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credentials WHERE account_id = $1`, accountID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}

func (s *Store) UpdateCiphertext(ctx context.Context, accountID int64, label string, ciphertext string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE credentials
SET ciphertext = $3, updated_at = now()
WHERE account_id = $1 AND label = $2`,
		accountID, label, ciphertext)
	if err != nil {
		return false, fmt.Errorf("update credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update credential rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Delete(ctx context.Context, accountID int64, label string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM credentials WHERE account_id = $1 AND label = $2`,
		accountID, label)
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credential rows affected: %w", err)
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
