package api

import (
	"alcyxob/video-uploads/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes returned in the error envelope.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeValidationFailed  = "validation_failed"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeUploadIncomplete  = "upload_incomplete"
	CodeInvalidTransition = "invalid_transition"
	CodeStoreUnavailable  = "store_unavailable"
	CodeInternal          = "internal_error"
)

// ErrorBody is the payload of every error response, under the "error" key.
type ErrorBody struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, status int, code, message string) {
	abortWithDetails(c, status, code, message, nil)
}

func abortWithDetails(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: c.GetString(ContextRequestIDKey),
		Details:   details,
	}})
}

// respondServiceError maps service errors to HTTP responses. Unknown errors
// become a generic 500 so store internals never reach the client.
func respondServiceError(c *gin.Context, err error) {
	if ve, ok := service.IsValidationError(err); ok {
		abortWithDetails(c, http.StatusBadRequest, CodeValidationFailed, "Request validation failed", ve.Violations)
		return
	}

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		abortWithError(c, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		abortWithError(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, service.ErrUploadIncomplete):
		abortWithError(c, http.StatusBadRequest, CodeUploadIncomplete, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		abortWithError(c, http.StatusConflict, CodeInvalidTransition, err.Error())
	case errors.Is(err, service.ErrStoreUnavailable):
		c.Header("Retry-After", "5")
		abortWithError(c, http.StatusServiceUnavailable, CodeStoreUnavailable, err.Error())
	default:
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}
