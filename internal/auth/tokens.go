package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
)

const (
	// VerificationTokenTTL bounds how long a signup OTP stays valid.
	VerificationTokenTTL = 1 * time.Hour

	// ResetTokenTTL bounds how long a password-reset token stays valid.
	ResetTokenTTL = 1 * time.Hour

	resetTokenBytes = 32
)

// GenerateVerificationCode returns a 6-digit OTP and its expiry. The code is
// drawn from crypto/rand; leading zeros are allowed.
func GenerateVerificationCode(now time.Time) (string, time.Time, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), now.Add(VerificationTokenTTL), nil
}

// GenerateResetToken returns a high-entropy URL-safe reset token and its
// expiry.
func GenerateResetToken(now time.Time) (string, time.Time, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), now.Add(ResetTokenTTL), nil
}

// TokensMatch compares a stored token against a submitted one in constant
// time. An empty stored token never matches.
func TokensMatch(stored, submitted string) bool {
	if stored == "" {
		return false
	}
	return hmac.Equal([]byte(stored), []byte(submitted))
}
