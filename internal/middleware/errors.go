package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// APIError is the body of every error response, wrapped as {"error": ...}.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	RetryAfter int    `json:"retry_after_ms,omitempty"`
}

const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeTooLarge           = "PAYLOAD_TOO_LARGE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeDatabaseError      = "DATABASE_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeCircuitOpen        = "CIRCUIT_OPEN"
)

// respond aborts the chain with e. A retry hint is mirrored in the
// Retry-After header, rounded up to whole seconds.
func respond(c *gin.Context, status int, e APIError) {
	if e.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa((e.RetryAfter+999)/1000))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": e})
}

// RespondError sends a structured error response
func RespondError(c *gin.Context, status int, code string, message string) {
	respond(c, status, APIError{Code: code, Message: message})
}

// RespondErrorWithDetails sends a structured error response with details
func RespondErrorWithDetails(c *gin.Context, status int, code string, message string, details string) {
	respond(c, status, APIError{Code: code, Message: message, Details: details})
}

// RespondErrorWithRetry sends a structured error response with a retry hint
// in milliseconds.
func RespondErrorWithRetry(c *gin.Context, status int, code string, message string, retryAfterMs int) {
	respond(c, status, APIError{Code: code, Message: message, RetryAfter: retryAfterMs})
}

func BadRequest(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	RespondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func Conflict(c *gin.Context, message string) {
	RespondError(c, http.StatusConflict, ErrCodeConflict, message)
}

func NotFound(c *gin.Context, message string) {
	RespondError(c, http.StatusNotFound, ErrCodeNotFound, message)
}

func InternalError(c *gin.Context, message string) {
	RespondError(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ServiceUnavailable sends a 503 error with a retry hint
func ServiceUnavailable(c *gin.Context, message string, retryAfterMs int) {
	RespondErrorWithRetry(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message, retryAfterMs)
}
