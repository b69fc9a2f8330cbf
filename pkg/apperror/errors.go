package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes that callers branch on.
const (
	CodeValidation        = "PAY_002"
	CodeNotFound          = "PAY_004"
	CodeNotSubmitted      = "PAY_008"
	CodeSubmissionRunning = "PAY_009"
	CodeGatewayAuth       = "GW_001"
	CodeGatewayNetwork    = "GW_002"
	CodeGatewayBusiness   = "GW_003"
	CodeInvalidSignature  = "SEC_002"
)

// CodeOf returns the AppError code carried by err, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether err is a transient gateway failure worth retrying.
// Business and authentication failures are terminal.
func IsRetryable(err error) bool {
	return Is(err, CodeGatewayNetwork)
}

// ---- Security & Authentication (SEC / AUTH) ----

func ErrInvalidSignature() *AppError {
	return New(CodeInvalidSignature, "Invalid signature", http.StatusUnauthorized)
}

func ErrSignatureRequired() *AppError {
	return New("SEC_005", "Notification signature required", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Payment Business Logic (PAY) ----

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAlreadyCompleted() *AppError {
	return New("PAY_007", "Payment already completed", http.StatusConflict)
}

func ErrNotSubmitted() *AppError {
	return New(CodeNotSubmitted, "Payment has not been submitted to the gateway", http.StatusConflict)
}

func ErrSubmissionInProgress() *AppError {
	return New(CodeSubmissionRunning, "Payment submission already in progress", http.StatusConflict)
}

// ---- Gateway (GW) ----

func ErrGatewayAuth(err error) *AppError {
	return Wrap(CodeGatewayAuth, "Gateway rejected credentials", http.StatusBadGateway, err)
}

func ErrGatewayNetwork(err error) *AppError {
	return Wrap(CodeGatewayNetwork, "Gateway unreachable", http.StatusGatewayTimeout, err)
}

func ErrGatewayBusiness(message string) *AppError {
	return New(CodeGatewayBusiness, message, http.StatusUnprocessableEntity)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}
