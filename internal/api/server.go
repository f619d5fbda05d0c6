// Package api exposes the HTTP surface: account lifecycle endpoints and the
// credential vault operations.
package api

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"passkeep/internal/auth"
	"passkeep/internal/config"
	"passkeep/internal/mail"
	"passkeep/internal/ratelimit"
	"passkeep/internal/storage"
	"passkeep/internal/vault"
)

const (
	sessionCookie = "token"
	maxBodyBytes  = 64 * 1024

	dbTimeout = 5 * time.Second
)

type Server struct {
	cfg      config.Config
	accounts storage.AccountsStore
	vault    *vault.Service
	sessions *auth.Sessions
	mailer   mail.Sender

	// Single-instance rate limits per IP on the unauthenticated endpoints.
	signupLimiter *ratelimit.Limiter
	loginLimiter  *ratelimit.Limiter

	now func() time.Time

	mux *http.ServeMux
}

func NewServer(cfg config.Config, accounts storage.AccountsStore, credentials storage.CredentialsStore, mailer mail.Sender) *Server {
	mux := http.NewServeMux()

	s := &Server{
		cfg:      cfg,
		accounts: accounts,
		vault:    vault.New(accounts, credentials),
		sessions: auth.NewSessions(cfg.JWTSecret),
		mailer:   mailer,

		signupLimiter: ratelimit.New(0.2, 5), // ~12/min burst 5 per IP
		loginLimiter:  ratelimit.New(0.5, 10),

		now: time.Now,
		mux: mux,
	}

	// Sweep idle limiter buckets so the per-IP maps stay bounded.
	s.signupLimiter.StartGC(2*time.Minute, 10*time.Minute)
	s.loginLimiter.StartGC(2*time.Minute, 10*time.Minute)

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /api/v1/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/v1/auth/verify", s.handleVerify)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", s.handleLogout)
	mux.HandleFunc("POST /api/v1/auth/forgot", s.handleForgotPassword)
	mux.HandleFunc("POST /api/v1/auth/reset", s.handleResetPassword)

	// Vault endpoints require a session; the account id comes from the token.
	mux.HandleFunc("PUT /api/v1/vault/key", s.handleSetEncryptionKey)
	mux.HandleFunc("POST /api/v1/vault/passwords", s.handleSavePassword)
	mux.HandleFunc("POST /api/v1/vault/passwords/view", s.handleViewPassword)
	mux.HandleFunc("PUT /api/v1/vault/passwords", s.handleUpdatePassword)
	mux.HandleFunc("POST /api/v1/vault/passwords/delete", s.handleDeletePassword)

	return s
}

func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux, s.cfg.CORSOrigin)
}

// Close stops background goroutines (rate limiter GC). Safe to call multiple times.
func (s *Server) Close() {
	s.signupLimiter.Stop()
	s.loginLimiter.Stop()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": s.now().UTC().Format(time.RFC3339Nano),
	})
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields, trailing
// data, and oversized bodies. It writes the error response itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !isJSONContentType(r) {
		badRequest(w, "content-type must be application/json")
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		badRequest(w, mapDecodeError(err))
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		badRequest(w, "invalid json")
		return false
	}
	return true
}

// requireSession authenticates the request from the Authorization header or
// the session cookie and returns the account id the token was issued for.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := ""
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		raw = strings.TrimSpace(authz[len("bearer "):])
	}
	if raw == "" {
		if c, err := r.Cookie(sessionCookie); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		unauthorized(w)
		return 0, false
	}

	accountID, err := s.sessions.Verify(raw)
	if err != nil {
		unauthorized(w)
		return 0, false
	}
	return accountID, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Env == "production",
		SameSite: http.SameSiteStrictMode,
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	// Trust proxy headers only from loopback (reverse proxy on same host).
	if host == "127.0.0.1" || host == "::1" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Leftmost IP is the original client.
			if i := strings.IndexByte(xff, ','); i > 0 {
				return strings.TrimSpace(xff[:i])
			}
			return strings.TrimSpace(xff)
		}
	}

	return host
}
