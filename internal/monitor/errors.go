// Package monitor implements the connection-state supervisor and the
// idempotent ingestion pipeline: it owns the account-session client, keeps
// a single status row up to date, dispatches live events, and guarantees
// at-most-once forwarding through a durable claim ledger.
//
// This file defines the failure taxonomy. Every operation that can fail
// returns an *Error carrying a Kind, so callers branch on the kind instead
// of matching error types.
package monitor

import (
	"errors"
	"fmt"
)

// Kind classifies a monitor failure.
type Kind int

const (
	// KindUnknown covers failures that fit no other class.
	KindUnknown Kind = iota
	// KindConfiguration covers missing or invalid settings (credentials,
	// session file, target title, unauthorized session). Never fatal: the
	// supervisor reports it and retries on the next tick.
	KindConfiguration
	// KindTransport covers connect, RPC, and session-layer failures. The
	// live client handle is discarded and the connect is retried after a
	// backoff.
	KindTransport
	// KindResolution covers target-channel lookup failures (no dialog with
	// the configured title, or more than one).
	KindResolution
)

// String returns the lowercase label used in logs and status messages.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindResolution:
		return "resolution"
	default:
		return "unknown"
	}
}

// Error is the tagged failure type returned by monitor operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, or KindUnknown when err is not a
// monitor error.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

// Sentinel causes used inside tagged errors.
var (
	// ErrTargetNotFound means no dialog title matched the configured target.
	ErrTargetNotFound = errors.New("target channel not found")

	// ErrTargetAmbiguous means more than one dialog title matched; the
	// operator must rename one of the channels to disambiguate.
	ErrTargetAmbiguous = errors.New("target channel title is ambiguous")

	// ErrNotAuthorized means the stored session is missing or expired and a
	// fresh interactive login is required.
	ErrNotAuthorized = errors.New("session is not authorized")
)

func configErr(op string, err error) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

func transportErr(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func resolutionErr(op string, err error) *Error {
	return &Error{Kind: KindResolution, Op: op, Err: err}
}
