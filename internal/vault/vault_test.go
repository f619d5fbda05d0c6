package vault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passkeep/internal/storage"
	"passkeep/internal/vaultcrypto"
)

type memAccounts struct {
	mu       sync.Mutex
	accounts map[int64]storage.Account
	nextID   int64
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[int64]storage.Account), nextID: 1}
}

func (m *memAccounts) add(a storage.Account) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID
	m.nextID++
	m.accounts[a.ID] = a
	return a.ID
}

func (m *memAccounts) Create(_ context.Context, a storage.Account) (int64, error) {
	for _, existing := range m.accounts {
		if existing.Email == a.Email {
			return 0, storage.ErrDuplicateEmail
		}
	}
	return m.add(a), nil
}

func (m *memAccounts) GetByID(_ context.Context, id int64) (storage.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return storage.Account{}, storage.ErrNotFound
	}
	return a, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (storage.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return storage.Account{}, storage.ErrNotFound
}

func (m *memAccounts) mutate(id int64, fn func(*storage.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return storage.ErrNotFound
	}
	fn(&a)
	m.accounts[id] = a
	return nil
}

func (m *memAccounts) SetKeyVerifier(_ context.Context, id int64, verifier string) error {
	return m.mutate(id, func(a *storage.Account) { a.KeyVerifier = verifier })
}

func (m *memAccounts) MarkVerified(_ context.Context, id int64) error {
	return m.mutate(id, func(a *storage.Account) {
		a.IsVerified = true
		a.VerificationToken = ""
		a.VerificationExpiresAt = nil
	})
}

func (m *memAccounts) SetPaid(_ context.Context, id int64, paid bool) error {
	return m.mutate(id, func(a *storage.Account) { a.IsPaid = paid })
}

func (m *memAccounts) TouchLastLogin(_ context.Context, id int64, now time.Time) error {
	return m.mutate(id, func(a *storage.Account) { a.LastLoginAt = &now })
}

func (m *memAccounts) SetResetToken(_ context.Context, id int64, token string, expiresAt time.Time) error {
	return m.mutate(id, func(a *storage.Account) {
		a.ResetToken = token
		a.ResetExpiresAt = &expiresAt
	})
}

func (m *memAccounts) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	return m.mutate(id, func(a *storage.Account) {
		a.PasswordHash = hash
		a.ResetToken = ""
		a.ResetExpiresAt = nil
	})
}

func (m *memAccounts) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.accounts {
		touched := false
		if a.VerificationExpiresAt != nil && !a.VerificationExpiresAt.After(now) {
			a.VerificationToken = ""
			a.VerificationExpiresAt = nil
			touched = true
		}
		if a.ResetExpiresAt != nil && !a.ResetExpiresAt.After(now) {
			a.ResetToken = ""
			a.ResetExpiresAt = nil
			touched = true
		}
		if touched {
			m.accounts[id] = a
			n++
		}
	}
	return n, nil
}

type credKey struct {
	owner int64
	label string
}

type memCredentials struct {
	mu    sync.Mutex
	creds map[credKey]storage.Credential
}

func newMemCredentials() *memCredentials {
	return &memCredentials{creds: make(map[credKey]storage.Credential)}
}

func (m *memCredentials) Insert(_ context.Context, c storage.Credential, maxPerOwner int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[credKey{c.AccountID, c.Label}]; ok {
		return storage.ErrDuplicateLabel
	}
	if maxPerOwner > 0 {
		var n int64
		for k := range m.creds {
			if k.owner == c.AccountID {
				n++
			}
		}
		if n >= maxPerOwner {
			return storage.ErrQuotaExceeded
		}
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.creds[credKey{c.AccountID, c.Label}] = c
	return nil
}

func (m *memCredentials) GetByOwnerAndLabel(_ context.Context, accountID int64, label string) (storage.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[credKey{accountID, label}]
	if !ok {
		return storage.Credential{}, storage.ErrNotFound
	}
	return c, nil
}

func (m *memCredentials) CountByOwner(_ context.Context, accountID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.creds {
		if k.owner == accountID {
			n++
		}
	}
	return n, nil
}

func (m *memCredentials) UpdateCiphertext(_ context.Context, accountID int64, label string, ciphertext string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[credKey{accountID, label}]
	if !ok {
		return false, nil
	}
	c.Ciphertext = ciphertext
	c.UpdatedAt = time.Now()
	m.creds[credKey{accountID, label}] = c
	return true, nil
}

func (m *memCredentials) Delete(_ context.Context, accountID int64, label string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := credKey{accountID, label}
	if _, ok := m.creds[k]; !ok {
		return false, nil
	}
	delete(m.creds, k)
	return true, nil
}

func newTestService(t *testing.T) (*Service, *memAccounts, *memCredentials) {
	t.Helper()
	accounts := newMemAccounts()
	credentials := newMemCredentials()
	return New(accounts, credentials), accounts, credentials
}

func freeAccount(accounts *memAccounts) int64 {
	return accounts.add(storage.Account{Email: "free@example.com", IsVerified: true})
}

func TestSaveAndViewPassword(t *testing.T) {
	t.Parallel()

	svc, accounts, creds := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	require.NoError(t, svc.SavePassword(ctx, id, "site1.com", "p@ss1", "k1"))

	stored, err := creds.GetByOwnerAndLabel(ctx, id, "site1.com")
	require.NoError(t, err)
	assert.NotContains(t, stored.Ciphertext, "p@ss1", "plaintext must never be persisted")

	pt, err := svc.ViewPassword(ctx, id, "site1.com", "k1")
	require.NoError(t, err)
	assert.Equal(t, "p@ss1", pt)

	_, err = svc.ViewPassword(ctx, id, "site1.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSavePasswordValidation(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	var vErr ValidationError
	err := svc.SavePassword(ctx, id, "", "pt", "k")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "label", vErr.Field)

	err = svc.SavePassword(ctx, id, "l", "", "k")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "password", vErr.Field)

	err = svc.SavePassword(ctx, id, "l", "pt", "")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "key", vErr.Field)
}

func TestSavePasswordAccountNotFound(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	err := svc.SavePassword(context.Background(), 999, "l", "pt", "k")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestFreeTierQuota(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	for i, label := range []string{"a.com", "b.com", "c.com"} {
		require.NoError(t, svc.SavePassword(ctx, id, label, "pt", "k"), "save %d", i)
	}

	err := svc.SavePassword(ctx, id, "d.com", "pt", "k")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestPaidTierUnbounded(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := accounts.add(storage.Account{Email: "paid@example.com", IsVerified: true, IsPaid: true})
	ctx := context.Background()

	labels := []string{"a.com", "b.com", "c.com", "d.com", "e.com", "f.com"}
	for _, label := range labels {
		require.NoError(t, svc.SavePassword(ctx, id, label, "pt", "k"))
	}
}

func TestSaveDuplicateLabel(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	require.NoError(t, svc.SavePassword(ctx, id, "site.com", "pt", "k"))
	err := svc.SavePassword(ctx, id, "site.com", "pt2", "k")
	assert.ErrorIs(t, err, ErrDuplicateLabel)
}

func TestViewPasswordNotFound(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)

	// Missing record reports NotFound, never a key error: the lookup runs
	// before the cipher adapter is ever consulted.
	_, err := svc.ViewPassword(context.Background(), id, "nope.com", "whatever")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NotErrorIs(t, err, ErrInvalidKey)
}

func TestUpdatePassword(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	require.NoError(t, svc.SavePassword(ctx, id, "site.com", "old-pass", "k1"))
	require.NoError(t, svc.UpdatePassword(ctx, id, "site.com", "new-pass", "k1"))

	pt, err := svc.ViewPassword(ctx, id, "site.com", "k1")
	require.NoError(t, err)
	assert.Equal(t, "new-pass", pt)
}

func TestUpdatePasswordWrongKeyLeavesRecordIntact(t *testing.T) {
	t.Parallel()

	svc, accounts, creds := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	require.NoError(t, svc.SavePassword(ctx, id, "site.com", "old-pass", "k1"))
	before, err := creds.GetByOwnerAndLabel(ctx, id, "site.com")
	require.NoError(t, err)

	err = svc.UpdatePassword(ctx, id, "site.com", "new-pass", "wrong")
	assert.ErrorIs(t, err, ErrInvalidKey)

	after, err := creds.GetByOwnerAndLabel(ctx, id, "site.com")
	require.NoError(t, err)
	assert.Equal(t, before.Ciphertext, after.Ciphertext, "failed update must not touch the stored ciphertext")

	pt, err := svc.ViewPassword(ctx, id, "site.com", "k1")
	require.NoError(t, err)
	assert.Equal(t, "old-pass", pt)
}

func TestUpdatePasswordNotFound(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)

	err := svc.UpdatePassword(context.Background(), id, "nope.com", "pt", "k")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDeletePassword(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	require.NoError(t, svc.SavePassword(ctx, id, "site.com", "pt", "k"))
	require.NoError(t, svc.DeletePassword(ctx, id, "site.com"))

	_, err := svc.ViewPassword(ctx, id, "site.com", "k")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	err = svc.DeletePassword(ctx, id, "site.com")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDeleteFreesQuota(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	for _, label := range []string{"a.com", "b.com", "c.com"} {
		require.NoError(t, svc.SavePassword(ctx, id, label, "pt", "k"))
	}
	require.ErrorIs(t, svc.SavePassword(ctx, id, "d.com", "pt", "k"), ErrQuotaExceeded)

	require.NoError(t, svc.DeletePassword(ctx, id, "a.com"))
	assert.NoError(t, svc.SavePassword(ctx, id, "d.com", "pt", "k"))
}

func TestSetEncryptionKey(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	require.NoError(t, svc.SetEncryptionKey(ctx, id, "master-key"))

	a, err := accounts.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, a.KeyVerifier)
	assert.NotEqual(t, "master-key", a.KeyVerifier, "raw key must never be stored")
	assert.True(t, vaultcrypto.CheckKeyVerifier(a.KeyVerifier, "master-key"))
	assert.False(t, vaultcrypto.CheckKeyVerifier(a.KeyVerifier, "other"))
}

func TestSavePasswordChecksRegisteredKey(t *testing.T) {
	t.Parallel()

	svc, accounts, creds := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	require.NoError(t, svc.SetEncryptionKey(ctx, id, "master-key"))

	// A key that does not match the registered verifier is rejected before
	// anything is encrypted or stored.
	err := svc.SavePassword(ctx, id, "site.com", "pt", "wrong")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = creds.GetByOwnerAndLabel(ctx, id, "site.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, svc.SavePassword(ctx, id, "site.com", "pt", "master-key"))

	pt, err := svc.ViewPassword(ctx, id, "site.com", "master-key")
	require.NoError(t, err)
	assert.Equal(t, "pt", pt)
}

func TestSavePasswordWithoutVerifierAcceptsAnyKey(t *testing.T) {
	t.Parallel()

	svc, accounts, _ := newTestService(t)
	id := freeAccount(accounts)
	ctx := context.Background()

	// No SetEncryptionKey call: every key is accepted at save time; the
	// wrong-key signal then comes from decryption alone.
	require.NoError(t, svc.SavePassword(ctx, id, "a.com", "pt1", "k1"))
	require.NoError(t, svc.SavePassword(ctx, id, "b.com", "pt2", "k2"))
}

func TestSetEncryptionKeyErrors(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var vErr ValidationError
	require.ErrorAs(t, svc.SetEncryptionKey(ctx, 1, ""), &vErr)
	assert.ErrorIs(t, svc.SetEncryptionKey(ctx, 999, "k"), ErrAccountNotFound)
}

type failingCredentials struct {
	memCredentials
	err error
}

func (f *failingCredentials) Insert(context.Context, storage.Credential, int64) error {
	return f.err
}

func TestSavePasswordStorageFault(t *testing.T) {
	t.Parallel()

	accounts := newMemAccounts()
	id := freeAccount(accounts)
	boom := errors.New("connection reset")
	svc := New(accounts, &failingCredentials{err: boom})

	err := svc.SavePassword(context.Background(), id, "l", "pt", "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom, "storage faults wrap the underlying error")
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
}
