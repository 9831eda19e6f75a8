package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses and user-facing messages.
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

// HasCode reports whether err (or anything it wraps) is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code constants, grouped by family.
const (
	CodeInsufficientFunds = "WAL_001"
	CodeInvalidAmount     = "WAL_002"
	CodeBelowMinimum      = "WAL_003"

	CodeRequestNotFound     = "REQ_001"
	CodeAlreadyProcessed    = "REQ_002"
	CodeDuplicatePending    = "REQ_003"
	CodeAlreadyRefunded     = "REQ_004"
	CodeUnknownMethod       = "REQ_005"
	CodeUnknownAction       = "REQ_006"
	CodeNothingToCompensate = "REQ_007"

	CodeUnknownTaskKind = "TASK_001"
	CodeInvalidPayload  = "TASK_002"
	CodeAccountExists   = "TASK_003"
	CodeAccountNotFound = "TASK_004"
	CodeAccountNotReady = "TASK_005"

	CodeAgentUnavailable = "AGT_001"
	CodeAgentRejected    = "AGT_002"
	CodeCashierShortfall = "AGT_003"
)

// ---- Wallet Ledger (WAL) ----

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient wallet balance", http.StatusUnprocessableEntity)
}

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Invalid amount", http.StatusBadRequest)
}

func ErrBelowMinimum(min string) *AppError {
	return New(CodeBelowMinimum, fmt.Sprintf("Amount is below the minimum of %s", min), http.StatusBadRequest)
}

// ---- Pending Requests (REQ) ----

func ErrNotFound(entity string) *AppError {
	return New(CodeRequestNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAlreadyProcessed() *AppError {
	return New(CodeAlreadyProcessed, "Request already processed", http.StatusConflict)
}

func ErrDuplicatePending(entity string) *AppError {
	return New(CodeDuplicatePending, fmt.Sprintf("A pending %s already exists", entity), http.StatusConflict)
}

func ErrAlreadyRefunded() *AppError {
	return New(CodeAlreadyRefunded, "Withdrawal already refunded", http.StatusConflict)
}

func ErrUnknownMethod(methodID string) *AppError {
	return New(CodeUnknownMethod, fmt.Sprintf("Unknown payment method %q", methodID), http.StatusBadRequest)
}

func ErrUnknownAction(data string) *AppError {
	return New(CodeUnknownAction, fmt.Sprintf("Unknown moderation action %q", data), http.StatusBadRequest)
}

func ErrNothingToCompensate() *AppError {
	return New(CodeNothingToCompensate, "No eligible losses to compensate", http.StatusUnprocessableEntity)
}

// ---- Operation Queue (TASK) ----

func ErrUnknownTaskKind(kind string) *AppError {
	return New(CodeUnknownTaskKind, fmt.Sprintf("Unknown task kind %q", kind), http.StatusBadRequest)
}

func ErrInvalidPayload(err error) *AppError {
	return Wrap(CodeInvalidPayload, "Invalid task payload", http.StatusBadRequest, err)
}

func ErrAccountExists() *AppError {
	return New(CodeAccountExists, "Account already exists", http.StatusConflict)
}

func ErrAccountNotFound() *AppError {
	return New(CodeAccountNotFound, "Account not found", http.StatusNotFound)
}

func ErrAccountNotReady() *AppError {
	return New(CodeAccountNotReady, "Account is still loading", http.StatusConflict)
}

// ---- Agent API (AGT) ----

func ErrAgentUnavailable(err error) *AppError {
	return Wrap(CodeAgentUnavailable, "Platform is temporarily unavailable", http.StatusBadGateway, err)
}

func ErrAgentRejected(reason string) *AppError {
	return New(CodeAgentRejected, reason, http.StatusUnprocessableEntity)
}

func ErrCashierShortfall() *AppError {
	return New(CodeCashierShortfall, "Cashier balance is insufficient", http.StatusUnprocessableEntity)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a WAL_002-style validation error.
func Validation(message string) *AppError {
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}
