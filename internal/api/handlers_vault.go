package api

import (
	"context"
	"log/slog"
	"net/http"
)

func (s *Server) handleSetEncryptionKey(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req SetKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	if err := s.vault.SetEncryptionKey(ctx, accountID, req.Key); err != nil {
		if !writeVaultError(w, err) {
			slog.Error("set encryption key error", "err", err)
			internalServerError(w)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSavePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req SaveCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	if err := s.vault.SavePassword(ctx, accountID, req.Label, req.Password, req.Key); err != nil {
		if !writeVaultError(w, err) {
			slog.Error("save password error", "err", err)
			internalServerError(w)
		}
		return
	}
	// The plaintext is never echoed back.
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleViewPassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req ViewCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	plaintext, err := s.vault.ViewPassword(ctx, accountID, req.Label, req.Key)
	if err != nil {
		if !writeVaultError(w, err) {
			slog.Error("view password error", "err", err)
			internalServerError(w)
		}
		return
	}
	writeJSON(w, http.StatusOK, ViewCredentialResponse{Label: req.Label, Password: plaintext})
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req UpdateCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	if err := s.vault.UpdatePassword(ctx, accountID, req.Label, req.NewPassword, req.Key); err != nil {
		if !writeVaultError(w, err) {
			slog.Error("update password error", "err", err)
			internalServerError(w)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDeletePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req DeleteCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	if err := s.vault.DeletePassword(ctx, accountID, req.Label); err != nil {
		if !writeVaultError(w, err) {
			slog.Error("delete password error", "err", err)
			internalServerError(w)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
