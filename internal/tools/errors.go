package tools

import (
	"errors"
	"fmt"
)

// Kind classifies tool failures so the agent can route them: transient
// failures are retried with backoff, everything else surfaces immediately.
type Kind string

const (
	// KindTransient: timeouts, unavailable backends. Safe to retry if the
	// tool is retry-safe.
	KindTransient Kind = "transient"
	// KindPermanent: the operation cannot succeed no matter how often it is
	// retried.
	KindPermanent Kind = "permanent"
	// KindInvalidArgs: arguments failed schema or semantic validation.
	KindInvalidArgs Kind = "invalid_args"
	// KindNotFound: the referenced entity does not exist.
	KindNotFound Kind = "not_found"
	// KindUnauthorized: the entity exists but belongs to someone else.
	KindUnauthorized Kind = "unauthorized"
)

// Retryable reports whether a failure of this kind may be retried.
// Only transient failures qualify; not_found and unauthorized are facts,
// not flakes.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// ErrUnknownTool indicates a tool name not present in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// Error is a classified tool failure.
type Error struct {
	Tool string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a classified tool failure.
func NewError(tool string, kind Kind, err error) *Error {
	return &Error{Tool: tool, Kind: kind, Err: err}
}

// Errorf is NewError with formatting.
func Errorf(tool string, kind Kind, format string, args ...any) *Error {
	return &Error{Tool: tool, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from err.
// Unclassified errors are treated as permanent: retrying an unknown failure
// against a non-retry-safe tool risks duplicate side effects.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindPermanent
}
