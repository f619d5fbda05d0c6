package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"passkeep/internal/vault"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func internalServerError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func rateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "10")
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded; please try again in a few seconds")
}

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return len(ct) >= len("application/json") && ct[:len("application/json")] == "application/json"
}

func mapDecodeError(err error) string {
	if err == nil {
		return "invalid json"
	}
	var synErr *json.SyntaxError
	if errors.As(err, &synErr) {
		return "invalid json"
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "invalid json"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return "invalid json field type"
	}
	return "invalid request body"
}

// writeVaultError maps the vault service's typed failures to response codes.
// Storage faults are logged by the caller and surface as a generic 500.
func writeVaultError(w http.ResponseWriter, err error) bool {
	var vErr vault.ValidationError
	switch {
	case errors.As(err, &vErr):
		badRequest(w, vErr.Error())
	case errors.Is(err, vault.ErrAccountNotFound):
		notFound(w, "account not found")
	case errors.Is(err, vault.ErrRecordNotFound):
		notFound(w, "credential not found")
	case errors.Is(err, vault.ErrInvalidKey):
		badRequest(w, "invalid encryption key")
	case errors.Is(err, vault.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, "free accounts can only save up to 3 passwords; upgrade to save more")
	case errors.Is(err, vault.ErrDuplicateLabel):
		writeError(w, http.StatusConflict, "a password is already saved for this label")
	default:
		return false
	}
	return true
}
