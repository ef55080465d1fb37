package api

import (
	"errors"
	"fmt"
)

// Error codes carried in the "code" field of an API error body.
const (
	CodeInvalidArgument      = "invalid_argument"
	CodeUnauthorized         = "unauthorized"
	CodeForbidden            = "forbidden"
	CodeNotFound             = "not_found"
	CodeConflict             = "conflict"
	CodeInvalidRelationship  = "invalid_relationship"
	CodeConfirmationRequired = "confirmation_required"
	CodeResourceExhausted    = "resource_exhausted"
	CodeCorrupt              = "corrupt"
	CodeInternal             = "internal"
)

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Status > 0 {
		return fmt.Sprintf("dupegraph api error: %d", e.Status)
	}
	return "dupegraph api error"
}

// Retryable reports whether the same request may succeed unchanged later.
// A conflict is not retryable: the reviewer must look at the files again.
func (e *APIError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Code == CodeResourceExhausted || e.Status >= 500 && e.Code != CodeCorrupt
}

// ErrorCode returns the API code carried by err, or "" when err is not an
// API error.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsConflict reports whether a decision was refused because the files
// changed since the caller observed them.
func IsConflict(err error) bool {
	return ErrorCode(err) == CodeConflict
}

// IsConfirmationRequired reports whether a destructive decision was sent
// without X-Confirm.
func IsConfirmationRequired(err error) bool {
	return ErrorCode(err) == CodeConfirmationRequired
}

// IsInvalidRelationship reports whether a decision contradicts the graph.
func IsInvalidRelationship(err error) bool {
	return ErrorCode(err) == CodeInvalidRelationship
}
