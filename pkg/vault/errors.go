package vault

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	// ErrInvalidSecret indicates the secret length falls outside the
	// configured bounds. Local validation only; nothing was attempted.
	ErrInvalidSecret = errors.New("vault: secret length out of bounds")

	// ErrIncorrectSecret indicates the secret did not decrypt an
	// existing vault. The attempt is recorded in the ledger.
	ErrIncorrectSecret = errors.New("vault: incorrect secret for existing vault")

	// ErrRateLimited indicates the distinct-attempt budget for the
	// current window is exhausted. Match with errors.Is; the concrete
	// error is a *RateLimitError carrying the reset time.
	ErrRateLimited = errors.New("vault: too many distinct secrets attempted")

	// ErrVaultOpen indicates an operation that requires the vault to be
	// closed was attempted while a handle to it is still open.
	ErrVaultOpen = errors.New("vault: vault is currently open")
)

// RateLimitError is returned when the distinct-attempt ceiling is
// reached. ResetAt is when the window rolls over and attempts become
// possible again. It matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	Attempts int       // Distinct secrets attempted in the window
	Limit    int       // Configured ceiling
	ResetAt  time.Time // Start of the next window
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("vault: %d of %d distinct secrets attempted, try again after %s",
		e.Attempts, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// Is reports ErrRateLimited equivalence so callers can use errors.Is
// without knowing the concrete type.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// StorageError wraps an underlying storage-engine failure that is not
// attributable to the secret. The cause is preserved for diagnostics
// and reachable through errors.Unwrap.
type StorageError struct {
	Op    string // Operation that failed: "open", "probe", "migrate", "close", "delete"
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vault: storage fault during %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Kind is the classified failure category of an Open, Close, or Delete
// call. Every error crossing the package boundary maps to exactly one
// Kind; callers never parse engine error strings.
type Kind int

const (
	// KindNone means the operation succeeded.
	KindNone Kind = iota
	// KindInvalidSecret: input validation failure, user retries.
	KindInvalidSecret
	// KindRateLimited: policy rejection, recoverable after the window
	// rolls over. Not a wrong secret; the UI must not phrase it as one.
	KindRateLimited
	// KindIncorrectSecret: wrong key for an existing vault.
	KindIncorrectSecret
	// KindStorageFault: underlying storage or medium failure.
	KindStorageFault
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidSecret:
		return "invalid-secret"
	case KindRateLimited:
		return "rate-limited"
	case KindIncorrectSecret:
		return "incorrect-secret"
	case KindStorageFault:
		return "storage-fault"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by this package to its Kind. Errors
// from elsewhere classify as KindStorageFault, since the manager never
// lets a raw engine error escape unclassified.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidSecret):
		return KindInvalidSecret
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrIncorrectSecret):
		return KindIncorrectSecret
	default:
		return KindStorageFault
	}
}
