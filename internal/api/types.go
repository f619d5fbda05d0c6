package api

// ── Account lifecycle ───────────────────────────────────────────────────

type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type SignupResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string         `json:"token"`
	Account AccountSummary `json:"account"`
}

type AccountSummary struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ── Vault operations ────────────────────────────────────────────────────

// SetKeyRequest registers a verifier for the account's encryption
// passphrase. The passphrase itself is never stored.
type SetKeyRequest struct {
	Key string `json:"key"`
}

type SaveCredentialRequest struct {
	Label    string `json:"label"`
	Password string `json:"password"`
	Key      string `json:"key"`
}

type ViewCredentialRequest struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

type ViewCredentialResponse struct {
	Label    string `json:"label"`
	Password string `json:"password"`
}

type UpdateCredentialRequest struct {
	Label       string `json:"label"`
	NewPassword string `json:"new_password"`
	Key         string `json:"key"`
}

type DeleteCredentialRequest struct {
	Label string `json:"label"`
}
