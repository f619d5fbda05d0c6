// Package storage defines the persistence types and interfaces for accounts
// and encrypted credential records. Implementations live in subpackages.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateLabel is returned when an account already holds a
	// credential under the same label.
	ErrDuplicateLabel = errors.New("duplicate label")

	// ErrDuplicateEmail is returned when an account email is already taken.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrQuotaExceeded is returned by Insert when the owner is at its
	// per-account record limit.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// Account is a registered user of the vault.
type Account struct {
	ID           int64
	Email        string
	Name         string
	Phone        string
	PasswordHash string

	IsVerified bool
	IsPaid     bool

	// KeyVerifier is a bcrypt hash of the account's encryption passphrase,
	// set via SetEncryptionKey. Empty until the user sets a key.
	KeyVerifier string

	VerificationToken     string
	VerificationExpiresAt *time.Time
	ResetToken            string
	ResetExpiresAt        *time.Time

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Credential is one stored (label, ciphertext) pair owned by an account.
// Ciphertext is only ever produced by the cipher adapter; plaintext is never
// persisted.
type Credential struct {
	ID         int64
	AccountID  int64
	Label      string
	Ciphertext string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type AccountsStore interface {
	Create(ctx context.Context, a Account) (int64, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)

	SetKeyVerifier(ctx context.Context, id int64, verifier string) error
	MarkVerified(ctx context.Context, id int64) error
	SetPaid(ctx context.Context, id int64, paid bool) error
	TouchLastLogin(ctx context.Context, id int64, now time.Time) error

	SetResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// DeleteExpiredTokens clears verification and reset tokens whose expiry
	// has passed, returning how many accounts were touched.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

type CredentialsStore interface {
	// Insert stores a new credential. maxPerOwner caps how many records the
	// owner may hold (zero means unbounded); the count-and-insert is atomic,
	// so concurrent saves cannot race past the limit. Returns
	// ErrQuotaExceeded at the limit and ErrDuplicateLabel when the
	// (owner, label) pair already exists.
	Insert(ctx context.Context, c Credential, maxPerOwner int64) error

	GetByOwnerAndLabel(ctx context.Context, accountID int64, label string) (Credential, error)
	CountByOwner(ctx context.Context, accountID int64) (int64, error)

	// UpdateCiphertext overwrites the stored ciphertext in place, reporting
	// whether a record existed.
	UpdateCiphertext(ctx context.Context, accountID int64, label string, ciphertext string) (bool, error)

	// Delete removes the record permanently, reporting whether it existed.
	Delete(ctx context.Context, accountID int64, label string) (bool, error)
}
