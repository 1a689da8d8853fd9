// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// These symbolic constants are mapped to HTTP responses via the fail()
// helper and give clients a stable, machine-readable error taxonomy next to
// the human-readable message. Generic codes mirror common HTTP status
// semantics; domain-specific codes cover business outcomes a status alone
// cannot convey.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeStatusFailed     = "status_failed"
	ErrCodeControlFailed    = "control_failed"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
