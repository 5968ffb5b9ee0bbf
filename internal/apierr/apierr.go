// Package apierr is the stable error taxonomy of the error handling design:
// Input, NotFound, Conflict, Storage, Upstream, Config. HTTP handlers
// translate a Kind to a status code; everything else defaults to 500
// without leaking internals, the same posture as the teacher's handler
// fallbacks.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable error categories.
type Kind int

const (
	// Input is a malformed PID or token: 400.
	Input Kind = iota
	// NotFound is an unknown PID or token, or a PID known absent by Bloom: 404.
	NotFound
	// Conflict is reserved for future use; current design treats
	// already-revoked as idempotent 200, not a conflict.
	Conflict
	// Storage is a durable-store failure: 500.
	Storage
	// Upstream is a wallet RPC failure; never surfaced across the process
	// boundary, logged and retried by the ingestion worker instead.
	Upstream
	// Config is a fatal bootstrap-time failure.
	Config
)

func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Storage:
		return "storage"
	case Upstream:
		return "upstream"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying a Kind plus a human-readable message and
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error wrapping cause with %w semantics via Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Storage for anything unrecognized -- unexpected errors default to the
// most conservative (500) handler treatment.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Storage
}
