// Package octaveerr defines the core's tagged error kinds. Each kind is a
// distinct sentinel-style type so callers can use errors.Is/errors.As instead
// of comparing string messages, matching the typed-error-over-raw-SQL-error
// split the storage layer has always used.
package octaveerr

import (
	"errors"
	"fmt"
)

// Kind tags an error with one of the categories named in the error handling
// design. Kind alone is never sufficient for user display — always wrap the
// underlying cause.
type Kind string

const (
	KindStorageInit           Kind = "storage_init"
	KindDbError               Kind = "db_error"
	KindDbConflict            Kind = "db_conflict"
	KindDbConstraint          Kind = "db_constraint"
	KindNotFound              Kind = "not_found"
	KindInvalidArgument       Kind = "invalid_argument"
	KindToolServerUnavailable Kind = "tool_server_unavailable"
	KindToolServerCrashed     Kind = "tool_server_crashed"
	KindToolCallTimeout       Kind = "tool_call_timeout"
	KindParseError            Kind = "parse_error"
	KindCancelled             Kind = "cancelled"
	KindRateLimited           Kind = "rate_limited"
	KindModelError            Kind = "model_error"
	KindDangerousCommand      Kind = "dangerous_command"
	KindTooFewMessages        Kind = "too_few_messages"
)

// Error is the core's tagged error value. Op names the operation that failed
// (e.g. "save_message_with_blocks"), Kind classifies it, and Err (optional)
// wraps the underlying cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error target on Kind alone, ignoring Op and the
// wrapped cause. To test an error against a bare Kind, use the package-level
// Is below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds a tagged error for operation op.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap is shorthand for New when the caller only has a cause and a kind.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return New(op, kind, err)
}

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error.
// Returns ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is tagged with kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
