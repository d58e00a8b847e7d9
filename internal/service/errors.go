package service

import (
	"errors"
	"fmt"
	"strings"
)

// --- Error Definitions ---
var (
	ErrUnauthorized      = errors.New("missing or invalid credentials")
	ErrForbidden         = errors.New("access denied to this video")
	ErrNotFound          = errors.New("video not found")
	ErrUploadIncomplete  = errors.New("upload has not completed; finish the transfer and confirm again")
	ErrInvalidTransition = errors.New("video cannot be confirmed in its current status")
	ErrStoreUnavailable  = errors.New("storage is temporarily unavailable")
)

// Violation is one failed request constraint.
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError carries every violated constraint of a request.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
