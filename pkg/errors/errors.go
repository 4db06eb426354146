// Package errors defines structured error types for the sessiond service.
// Every error carries a machine-readable code from pkg/constants, an HTTP
// status for the transport layer, and optional metadata for automated callers
// that must branch on policy outcomes.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/bitizen-labs/sessiond/pkg/constants"
)

// AppError is the structured error type used across the service.
type AppError struct {
	code       constants.ErrorCode
	httpStatus int
	message    string
	cause      error
	metadata   map[string]interface{}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the machine-readable error code.
func (e *AppError) Code() constants.ErrorCode {
	return e.code
}

// HTTPStatus returns the HTTP status code for the transport layer.
func (e *AppError) HTTPStatus() int {
	return e.httpStatus
}

// Unwrap returns the underlying cause for error-chain support.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause attaches a cause error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.cause = cause
	return e
}

// WithMetadata attaches a context value and returns the receiver.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all attached metadata.
func (e *AppError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Constructors
// ================================================================================

// New creates a new AppError with the given code, HTTP status and message.
func New(code constants.ErrorCode, httpStatus int, message string) *AppError {
	return &AppError{
		code:       code,
		httpStatus: httpStatus,
		message:    message,
	}
}

// Wrap wraps err in a new AppError with the given code and message.
func Wrap(err error, code constants.ErrorCode, message string) *AppError {
	return New(code, statusFor(code), message).WithCause(err)
}

func statusFor(code constants.ErrorCode) int {
	switch code {
	case constants.ErrCodeInvalidPermissionSet,
		constants.ErrCodeInvalidSpendLimits,
		constants.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case constants.ErrCodeUnknownCredential:
		return http.StatusNotFound
	case constants.ErrCodeCredentialNotActive,
		constants.ErrCodeActionNotPermitted,
		constants.ErrCodeExceedsPerTransaction,
		constants.ErrCodeExceedsDaily,
		constants.ErrCodePrincipalMismatch:
		return http.StatusForbidden
	case constants.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case constants.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case constants.ErrCodeExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ================================================================================
// Validation Errors
// ================================================================================

// ErrInvalidPermissionSet reports a malformed or unknown permission set.
func ErrInvalidPermissionSet(message string) *AppError {
	return New(constants.ErrCodeInvalidPermissionSet, http.StatusBadRequest, message)
}

// ErrInvalidSpendLimits reports malformed spend limits.
func ErrInvalidSpendLimits(message string) *AppError {
	return New(constants.ErrCodeInvalidSpendLimits, http.StatusBadRequest, message)
}

// ErrInvalidRequest reports an otherwise malformed request.
func ErrInvalidRequest(message string) *AppError {
	return New(constants.ErrCodeInvalidRequest, http.StatusBadRequest, message)
}

// ================================================================================
// Not-Found Errors
// ================================================================================

// ErrUnknownCredential reports a session id that does not resolve.
func ErrUnknownCredential(sessionID string) *AppError {
	return New(constants.ErrCodeUnknownCredential, http.StatusNotFound,
		fmt.Sprintf("session credential %s not found", sessionID)).
		WithMetadata("session_id", sessionID)
}

// ================================================================================
// Authorization-Denial Errors
// ================================================================================
// These are expected, non-exceptional policy outcomes. Automated callers
// branch on their codes, so they are always structured, never bare faults.

// ErrCredentialNotActive reports a terminal credential, carrying the specific
// terminal status (revoked vs expired).
func ErrCredentialNotActive(sessionID string, status constants.SessionStatus) *AppError {
	return New(constants.ErrCodeCredentialNotActive, http.StatusForbidden,
		fmt.Sprintf("session credential is %s", status)).
		WithMetadata("session_id", sessionID).
		WithMetadata("status", string(status))
}

// ErrActionNotPermitted reports a capability tag outside the credential grant.
func ErrActionNotPermitted(action constants.Permission) *AppError {
	return New(constants.ErrCodeActionNotPermitted, http.StatusForbidden,
		fmt.Sprintf("action %q is not covered by the session grant", action)).
		WithMetadata("action", string(action))
}

// ErrExceedsPerTransaction reports a charge above the per-transaction cap.
func ErrExceedsPerTransaction(amount, perTxMax int64) *AppError {
	return New(constants.ErrCodeExceedsPerTransaction, http.StatusForbidden,
		"amount exceeds per-transaction spend limit").
		WithMetadata("amount", amount).
		WithMetadata("per_transaction_max", perTxMax)
}

// ErrExceedsDaily reports a charge that would breach the cumulative cap.
func ErrExceedsDaily(amount, spent, dailyMax int64) *AppError {
	return New(constants.ErrCodeExceedsDaily, http.StatusForbidden,
		"amount exceeds remaining daily spend limit").
		WithMetadata("amount", amount).
		WithMetadata("cumulative_spent", spent).
		WithMetadata("daily_max", dailyMax)
}

// ================================================================================
// External & Fault Errors
// ================================================================================

// ErrExecutionFailed reports a downstream settlement failure. No local state
// was mutated; the caller may retry with a fresh request.
func ErrExecutionFailed(cause error) *AppError {
	return New(constants.ErrCodeExecutionFailed, http.StatusBadGateway,
		"settlement execution failed").WithCause(cause)
}

// ErrReconciliationFault reports a usage-recording failure after a successful
// external execution. Accounting may now lag the real-world effect, so the
// fault carries everything needed for out-of-band reconciliation.
func ErrReconciliationFault(sessionID string, amount int64, reference string, cause error) *AppError {
	return New(constants.ErrCodeReconciliationFault, http.StatusInternalServerError,
		"usage recording failed after successful execution").
		WithCause(cause).
		WithMetadata("session_id", sessionID).
		WithMetadata("amount", amount).
		WithMetadata("external_reference", reference)
}

// ErrRateLimitExceeded reports an issuance rate limit hit.
func ErrRateLimitExceeded(principalID string) *AppError {
	return New(constants.ErrCodeRateLimitExceeded, http.StatusTooManyRequests,
		"issuance rate limit exceeded").
		WithMetadata("principal_id", principalID)
}

// ErrPrincipalMismatch reports an authenticated caller acting on a resource
// owned by a different principal.
func ErrPrincipalMismatch(callerID string) *AppError {
	return New(constants.ErrCodePrincipalMismatch, http.StatusForbidden,
		"resource belongs to a different principal").
		WithMetadata("principal_id", callerID)
}

// ErrUnauthorized reports a failed principal authentication.
func ErrUnauthorized(message string) *AppError {
	return New(constants.ErrCodeUnauthorized, http.StatusUnauthorized, message)
}

// ErrInternal reports an unexpected internal failure.
func ErrInternal(message string) *AppError {
	return New(constants.ErrCodeInternal, http.StatusInternalServerError, message)
}

// ================================================================================
// Predicates
// ================================================================================

// AsAppError extracts an *AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) constants.ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code()
	}
	return constants.ErrCodeInternal
}

// IsNotFound reports whether err resolves to an unknown credential.
func IsNotFound(err error) bool {
	return CodeOf(err) == constants.ErrCodeUnknownCredential
}

// IsAuthzDenial reports whether err is an expected policy-denial outcome.
func IsAuthzDenial(err error) bool {
	switch CodeOf(err) {
	case constants.ErrCodeCredentialNotActive,
		constants.ErrCodeActionNotPermitted,
		constants.ErrCodeExceedsPerTransaction,
		constants.ErrCodeExceedsDaily:
		return true
	}
	return false
}

// IsReconciliationFault reports whether err indicates accounting divergence.
func IsReconciliationFault(err error) bool {
	return CodeOf(err) == constants.ErrCodeReconciliationFault
}
