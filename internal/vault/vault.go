// Package vault orchestrates encrypted credential storage: quota checks,
// encryption and decryption via the cipher adapter, and persistence.
//
// All failures callers are expected to handle are typed: sentinel errors for
// missing accounts/records, wrong keys, and quota limits, and ValidationError
// for empty required fields. Anything else is a storage fault and wraps the
// underlying error.
package vault

import (
	"context"
	"errors"
	"fmt"

	"passkeep/internal/storage"
	"passkeep/internal/tier"
	"passkeep/internal/vaultcrypto"
)

type Service struct {
	accounts    storage.AccountsStore
	credentials storage.CredentialsStore
}

func New(accounts storage.AccountsStore, credentials storage.CredentialsStore) *Service {
	return &Service{accounts: accounts, credentials: credentials}
}

func (s *Service) account(ctx context.Context, id int64) (storage.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return storage.Account{}, fmt.Errorf("load account: %w", err)
	}
	return a, nil
}

// SetEncryptionKey stores a bcrypt verifier of the key against the account.
// The raw key is never persisted.
func (s *Service) SetEncryptionKey(ctx context.Context, accountID int64, key string) error {
	if key == "" {
		return ValidationError{Field: "key"}
	}

	if _, err := s.account(ctx, accountID); err != nil {
		return err
	}

	verifier, err := vaultcrypto.HashKeyVerifier(key)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	if err := s.accounts.SetKeyVerifier(ctx, accountID, verifier); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("store key verifier: %w", err)
	}
	return nil
}

// checkKey validates key against the account's registered verifier. Accounts
// that never called SetEncryptionKey have no verifier and any key passes.
func checkKey(account storage.Account, key string) error {
	if account.KeyVerifier == "" {
		return nil
	}
	if !vaultcrypto.CheckKeyVerifier(account.KeyVerifier, key) {
		return ErrInvalidKey
	}
	return nil
}

// SavePassword encrypts plaintext under key and stores it as a new credential
// record. Free-tier accounts are limited in how many records they may hold;
// the limit check and insert are atomic in the store. When the account has a
// registered key verifier, a mismatched key is rejected before anything is
// encrypted; without that check a typo here would store a record the usual
// key can never open.
func (s *Service) SavePassword(ctx context.Context, accountID int64, label, plaintext, key string) error {
	switch {
	case label == "":
		return ValidationError{Field: "label"}
	case plaintext == "":
		return ValidationError{Field: "password"}
	case key == "":
		return ValidationError{Field: "key"}
	}

	account, err := s.account(ctx, accountID)
	if err != nil {
		return err
	}
	if err := checkKey(account, key); err != nil {
		return err
	}

	ciphertext, err := vaultcrypto.Encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	err = s.credentials.Insert(ctx, storage.Credential{
		AccountID:  accountID,
		Label:      label,
		Ciphertext: ciphertext,
	}, tier.Limit(account.IsPaid))
	switch {
	case errors.Is(err, storage.ErrQuotaExceeded):
		return ErrQuotaExceeded
	case errors.Is(err, storage.ErrDuplicateLabel):
		return ErrDuplicateLabel
	case err != nil:
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// ViewPassword decrypts the credential stored under (account, label). The
// record lookup runs first; the cipher adapter is never invoked for a missing
// record. A wrong key returns ErrInvalidKey.
func (s *Service) ViewPassword(ctx context.Context, accountID int64, label, key string) (string, error) {
	switch {
	case label == "":
		return "", ValidationError{Field: "label"}
	case key == "":
		return "", ValidationError{Field: "key"}
	}

	if _, err := s.account(ctx, accountID); err != nil {
		return "", err
	}

	cred, err := s.credentials.GetByOwnerAndLabel(ctx, accountID, label)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrRecordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}

	plaintext, err := vaultcrypto.Decrypt(cred.Ciphertext, key)
	if err != nil {
		if errors.Is(err, vaultcrypto.ErrInvalidKey) {
			return "", ErrInvalidKey
		}
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return plaintext, nil
}

// UpdatePassword re-encrypts the credential under (account, label) with a new
// plaintext. The key is verified by decrypting the EXISTING ciphertext first,
// so an update with the wrong key fails without touching the stored record.
func (s *Service) UpdatePassword(ctx context.Context, accountID int64, label, newPlaintext, key string) error {
	switch {
	case label == "":
		return ValidationError{Field: "label"}
	case newPlaintext == "":
		return ValidationError{Field: "password"}
	case key == "":
		return ValidationError{Field: "key"}
	}

	if _, err := s.account(ctx, accountID); err != nil {
		return err
	}

	cred, err := s.credentials.GetByOwnerAndLabel(ctx, accountID, label)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}

	if _, err := vaultcrypto.Decrypt(cred.Ciphertext, key); err != nil {
		if errors.Is(err, vaultcrypto.ErrInvalidKey) {
			return ErrInvalidKey
		}
		return fmt.Errorf("verify key: %w", err)
	}

	ciphertext, err := vaultcrypto.Encrypt(newPlaintext, key)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	updated, err := s.credentials.UpdateCiphertext(ctx, accountID, label, ciphertext)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	if !updated {
		// Deleted between lookup and write.
		return ErrRecordNotFound
	}
	return nil
}

// DeletePassword removes the credential under (account, label) permanently.
// There is no soft delete and no recovery.
func (s *Service) DeletePassword(ctx context.Context, accountID int64, label string) error {
	if label == "" {
		return ValidationError{Field: "label"}
	}

	if _, err := s.account(ctx, accountID); err != nil {
		return err
	}

	deleted, err := s.credentials.Delete(ctx, accountID, label)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if !deleted {
		return ErrRecordNotFound
	}
	return nil
}
