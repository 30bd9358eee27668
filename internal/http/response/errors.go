package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteErrorWithDetails(w, statusCode, message, code, "")
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	status := "fail"
	if statusCode >= 500 {
		status = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Status:  status,
		Error:   message,
		Code:    code,
		Details: details,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}

// Common error codes
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeEmailExists     = "EMAIL_EXISTS"
	CodeDuplicateReview = "DUPLICATE_REVIEW"
	CodeNoSuchUser      = "NO_SUCH_USER"
	CodeDeliveryFailure = "EMAIL_DELIVERY_FAILED"
	CodeBadCredentials  = "INVALID_CREDENTIALS"
	CodeUnauthenticated = "UNAUTHENTICATED"
)

const msgSomethingWrong = "Something went very wrong!"

// errorMapping pairs a domain error kind with its HTTP status, code and
// fallback message. Order matters: the first match wins.
var errorMapping = []struct {
	kind    error
	status  int
	code    string
	message string
}{
	{domain.ErrValidation, http.StatusBadRequest, CodeInvalidInput, "Invalid input data"},
	{domain.ErrInvalidOrExpiredToken, http.StatusBadRequest, CodeInvalidToken, "Token is invalid or has expired"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthenticated, "You are not logged in! Please log in to get access."},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, CodeBadCredentials, "Incorrect email or password"},
	{domain.ErrForbidden, http.StatusForbidden, CodeForbidden, "You do not have permission to perform this action"},
	{domain.ErrNoSuchUser, http.StatusNotFound, CodeNoSuchUser, "There is no user with the specified email address"},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound, "Resource not found"},
	{domain.ErrDuplicateReview, http.StatusConflict, CodeDuplicateReview, "You have already reviewed this tour"},
	{domain.ErrDuplicateEmail, http.StatusConflict, CodeEmailExists, "An account with this email already exists"},
	{domain.ErrDeliveryFailure, http.StatusInternalServerError, CodeDeliveryFailure, "There was an error sending the email, Try again later!"},
}

// FromError maps err to a status and a client-safe message. Anything not
// recognised is logged in full and reported as a generic 500.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMapping {
		if !errors.Is(err, m.kind) {
			continue
		}
		message := m.message
		if safe, ok := domain.SafeMessage(err); ok {
			message = safe
		}
		if m.status >= 500 {
			logger.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		}
		WriteError(w, m.status, message, m.code)
		return
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", CodeInvalidInput)
		return
	}

	logger.ErrorContext(r.Context(), "unhandled error", "error", err, "path", r.URL.Path, "method", r.Method)
	InternalError(w, msgSomethingWrong)
}

// Convenience functions for common errors
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}
