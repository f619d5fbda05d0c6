package vault

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrRecordNotFound  = errors.New("credential not found")
	ErrInvalidKey      = errors.New("invalid encryption key")
	ErrQuotaExceeded   = errors.New("credential quota exceeded")
	ErrDuplicateLabel  = errors.New("a credential already exists for this label")
)

// ValidationError reports an empty required field. It maps to a bad-request
// response at the API boundary.
type ValidationError struct {
	Field string
}

func (e ValidationError) Error() string {
	return e.Field + " is required"
}
