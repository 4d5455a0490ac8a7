// Package errors defines Pentagon's error taxonomy: a small, closed set of
// kinds that map directly onto the failure modes of the sandbox pipeline,
// each carrying an HTTP status for the few places status matters (startup
// failures; the /execute stream itself is always 200 once it starts).
package errors

import (
	"fmt"
)

// Kind identifies which stage of the pipeline produced an error.
type Kind int

const (
	// ConfigError is startup-time only and aborts the process.
	ConfigError Kind = iota
	// BlobStoreError covers transient failures and not-found on fetch/store.
	BlobStoreError
	// WorkspaceError covers workspace create/cleanup failure; request-level fatal.
	WorkspaceError
	// TransferError covers an invalid source/sink pair, a missing tmp id,
	// a path escape, or a transfer I/O failure; stage-level.
	TransferError
	// SandboxError covers namespace/mount/seccomp setup failure or exec failure; stage-level.
	SandboxError
	// LimitExceeded covers a wall-clock timeout or a CPU/memory rlimit kill.
	LimitExceeded
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "config_error"
	case BlobStoreError:
		return "blob_store_error"
	case WorkspaceError:
		return "workspace_error"
	case TransferError:
		return "transfer_error"
	case SandboxError:
		return "sandbox_error"
	case LimitExceeded:
		return "limit_exceeded"
	default:
		return "unknown_error"
	}
}

// HTTPStatus returns the status code appropriate for a startup-time failure
// of this kind. It has no bearing on the /execute stream, which reports
// errors as SSE events rather than status codes once streaming has begun.
func (k Kind) HTTPStatus() int {
	switch k {
	case ConfigError:
		return 500
	case BlobStoreError:
		return 503
	case WorkspaceError:
		return 500
	case TransferError:
		return 400
	case SandboxError:
		return 500
	case LimitExceeded:
		return 200
	default:
		return 500
	}
}

// Error is Pentagon's error type: a kind, a message, and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a kind and message. Returns nil if err is nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrapf wraps an existing error with a kind and a formatted message.
func Wrapf(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// GetKind extracts the Kind from any error, defaulting to SandboxError for
// errors that did not originate from this package (an internal failure with
// no more specific classification is still a sandbox-adjacent failure in
// this service).
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return SandboxError
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
