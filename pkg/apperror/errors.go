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

// Is reports whether any AppError in err's chain carries the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Error codes.
const (
	CodeInvalidAmount       = "LED_001"
	CodeInsufficientBalance = "LED_002"
	CodeDuplicateOperation  = "LED_003"
	CodeCurrencyMismatch    = "LED_004"
	CodeInvalidEntryType    = "LED_005"

	CodeBelowMinimum       = "PAY_001"
	CodeNoDefaultAccount   = "PAY_002"
	CodeAccountNotFound    = "PAY_003"
	CodeHasPendingPayouts  = "PAY_004"
	CodeInvalidTransition  = "PAY_005"
	CodePayoutNotFound     = "PAY_006"
	CodeAccountNotVerified = "PAY_007"

	CodeGatewayError    = "GW_001"
	CodeUnknownProvider = "GW_002"

	CodeAuthentication = "SEC_001"
	CodeInvalidToken   = "SEC_002"
	CodeForbidden      = "SEC_003"

	CodeRateLimited = "RATE_001"
	CodeValidation  = "REQ_001"

	CodeInternal  = "SYS_001"
	CodeTransient = "SYS_002"
)

// ---- Ledger (LED) ----

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Invalid amount", http.StatusBadRequest)
}

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient balance in wallet", http.StatusUnprocessableEntity)
}

// ErrDuplicateOperation signals an idempotency key collision. Callers treat it
// as a success echo of the original record.
func ErrDuplicateOperation() *AppError {
	return New(CodeDuplicateOperation, "Operation already applied", http.StatusOK)
}

func ErrCurrencyMismatch(want, got string) *AppError {
	return New(CodeCurrencyMismatch, fmt.Sprintf("Currency mismatch: wallet is %s, got %s", want, got), http.StatusBadRequest)
}

func ErrInvalidEntryType(entryType string) *AppError {
	return New(CodeInvalidEntryType, fmt.Sprintf("Entry type %q not allowed for this operation", entryType), http.StatusBadRequest)
}

// ---- Payouts (PAY) ----

func ErrBelowMinimum(min string) *AppError {
	return New(CodeBelowMinimum, fmt.Sprintf("Amount is below the minimum payout of %s", min), http.StatusUnprocessableEntity)
}

func ErrNoDefaultAccount() *AppError {
	return New(CodeNoDefaultAccount, "No default bank account configured", http.StatusUnprocessableEntity)
}

func ErrAccountNotFound() *AppError {
	return New(CodeAccountNotFound, "Bank account not found", http.StatusNotFound)
}

func ErrHasPendingPayouts() *AppError {
	return New(CodeHasPendingPayouts, "Bank account has pending payouts", http.StatusConflict)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New(CodeInvalidTransition, fmt.Sprintf("Cannot move payout from %s to %s", from, to), http.StatusConflict)
}

func ErrPayoutNotFound() *AppError {
	return New(CodePayoutNotFound, "Payout not found", http.StatusNotFound)
}

func ErrAccountNotVerified() *AppError {
	return New(CodeAccountNotVerified, "Bank account is not verified", http.StatusUnprocessableEntity)
}

// ---- Gateway (GW) ----

func ErrGateway(err error) *AppError {
	return Wrap(CodeGatewayError, "Payment gateway error", http.StatusBadGateway, err)
}

func ErrUnknownProvider(provider string) *AppError {
	return New(CodeUnknownProvider, fmt.Sprintf("Unknown payment provider %q", provider), http.StatusBadRequest)
}

// ---- Security (SEC) ----

func ErrAuthentication() *AppError {
	return New(CodeAuthentication, "Signature verification failed", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Insufficient permissions", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Request (REQ) ----

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap(CodeTransient, "Wallet is busy, retry later", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap(CodeInternal, "Encryption service failure", http.StatusInternalServerError, err)
}
