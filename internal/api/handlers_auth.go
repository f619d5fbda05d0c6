package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"passkeep/internal/auth"
	"passkeep/internal/mail"
	"passkeep/internal/storage"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.signupLimiter.Allow(clientIP(r)) {
		rateLimited(w)
		return
	}

	var req SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Name == "" || req.Password == "" || req.Phone == "" {
		badRequest(w, "email, name, phone, and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("hash password error", "err", err)
		internalServerError(w)
		return
	}

	code, expiresAt, err := auth.GenerateVerificationCode(s.now().UTC())
	if err != nil {
		slog.Error("verification code error", "err", err)
		internalServerError(w)
		return
	}

	id, err := s.accounts.Create(ctx, storage.Account{
		Email:                 req.Email,
		Name:                  req.Name,
		Phone:                 req.Phone,
		PasswordHash:          hash,
		VerificationToken:     code,
		VerificationExpiresAt: &expiresAt,
	})
	if errors.Is(err, storage.ErrDuplicateEmail) {
		badRequest(w, "email already exists")
		return
	}
	if err != nil {
		slog.Error("create account error", "err", err)
		internalServerError(w)
		return
	}

	if err := s.mailer.Send(ctx, req.Email, "Account activation code", mail.VerificationBody(req.Name, code)); err != nil {
		slog.Error("send verification email error", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to send verification email")
		return
	}

	writeJSON(w, http.StatusCreated, SignupResponse{ID: id, Email: req.Email})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	// Same bucket as login: a 6-digit code must not be guessable by volume.
	if !s.loginLimiter.Allow(clientIP(r)) {
		rateLimited(w)
		return
	}

	var req VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Code == "" {
		badRequest(w, "email and code are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "account not found")
		return
	}
	if err != nil {
		slog.Error("get account error", "err", err)
		internalServerError(w)
		return
	}

	if !auth.TokensMatch(account.VerificationToken, req.Code) {
		badRequest(w, "invalid verification code")
		return
	}
	if account.VerificationExpiresAt == nil || s.now().UTC().After(*account.VerificationExpiresAt) {
		badRequest(w, "verification code has expired")
		return
	}

	if err := s.accounts.MarkVerified(ctx, account.ID); err != nil {
		slog.Error("mark verified error", "err", err)
		internalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, AccountSummary{ID: account.ID, Email: account.Email, Name: account.Name})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.Allow(clientIP(r)) {
		rateLimited(w)
		return
	}

	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		badRequest(w, "email and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		slog.Error("get account error", "err", err)
		internalServerError(w)
		return
	}

	if !auth.CheckPassword(account.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !account.IsVerified {
		writeError(w, http.StatusForbidden, "email not verified")
		return
	}

	token, err := s.sessions.Issue(account.ID)
	if err != nil {
		slog.Error("issue session error", "err", err)
		internalServerError(w)
		return
	}

	if err := s.accounts.TouchLastLogin(ctx, account.ID, s.now().UTC()); err != nil {
		// Login still succeeds; the timestamp is best-effort.
		slog.Warn("touch last login error", "err", err)
	}

	s.setSessionCookie(w, token, auth.SessionTTL)
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:   token,
		Account: AccountSummary{ID: account.ID, Email: account.Email, Name: account.Name},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.Allow(clientIP(r)) {
		rateLimited(w)
		return
	}

	var req ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		badRequest(w, "email is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	// Always respond OK so the endpoint cannot be used to probe for accounts.
	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if err != nil {
		slog.Error("get account error", "err", err)
		internalServerError(w)
		return
	}

	token, expiresAt, err := auth.GenerateResetToken(s.now().UTC())
	if err != nil {
		slog.Error("reset token error", "err", err)
		internalServerError(w)
		return
	}
	if err := s.accounts.SetResetToken(ctx, account.ID, token, expiresAt); err != nil {
		slog.Error("set reset token error", "err", err)
		internalServerError(w)
		return
	}

	resetURL := s.cfg.PublicBaseURL + "/reset?token=" + token
	if err := s.mailer.Send(ctx, account.Email, "Password reset", mail.ResetBody(account.Name, resetURL)); err != nil {
		slog.Error("send reset email error", "err", err)
		internalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.Allow(clientIP(r)) {
		rateLimited(w)
		return
	}

	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Token == "" || req.NewPassword == "" {
		badRequest(w, "email, token, and new_password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		badRequest(w, "invalid or expired reset token")
		return
	}
	if err != nil {
		slog.Error("get account error", "err", err)
		internalServerError(w)
		return
	}

	if !auth.TokensMatch(account.ResetToken, req.Token) {
		badRequest(w, "invalid or expired reset token")
		return
	}
	if account.ResetExpiresAt == nil || s.now().UTC().After(*account.ResetExpiresAt) {
		badRequest(w, "invalid or expired reset token")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		slog.Error("hash password error", "err", err)
		internalServerError(w)
		return
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		slog.Error("update password hash error", "err", err)
		internalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
