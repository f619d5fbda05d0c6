// Package tier decides per-account storage quotas.
package tier

const (
	// FreeMaxCredentials is how many credential records a free account may
	// hold at any time.
	FreeMaxCredentials = 3

	// Unlimited disables the limit (paid accounts).
	Unlimited = 0
)

// Limit returns the maximum number of credential records an account may hold.
// Zero means unbounded, matching the storage layer's convention.
func Limit(paid bool) int64 {
	if paid {
		return Unlimited
	}
	return FreeMaxCredentials
}
