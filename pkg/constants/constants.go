// Package constants defines system-wide constants for the sessiond service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Permission Constants
// ================================================================================

// Permission is one named capability from the closed vocabulary of grantable
// actions. The vocabulary is flat: no wildcards, no hierarchy.
type Permission string

const (
	// PermissionExecuteTransfer allows delegated token transfers.
	PermissionExecuteTransfer Permission = "execute-transfer"

	// PermissionExecuteSwap allows delegated currency swaps through the
	// settlement partner.
	PermissionExecuteSwap Permission = "execute-swap"

	// PermissionExecuteStake allows delegated staking operations.
	PermissionExecuteStake Permission = "execute-stake"

	// PermissionExecuteVote allows delegated governance votes.
	PermissionExecuteVote Permission = "execute-vote"
)

// PermissionVocabulary is the closed set of grantable capability tags.
// Tags outside this set are rejected at issuance and denied at authorization.
var PermissionVocabulary = map[Permission]struct{}{
	PermissionExecuteTransfer: {},
	PermissionExecuteSwap:     {},
	PermissionExecuteStake:    {},
	PermissionExecuteVote:     {},
}

// IsKnownPermission reports whether tag is a member of the closed vocabulary.
func IsKnownPermission(tag Permission) bool {
	_, ok := PermissionVocabulary[tag]
	return ok
}

// ================================================================================
// Session Status Constants
// ================================================================================

// SessionStatus represents the lifecycle status of a session credential.
type SessionStatus string

const (
	// SessionStatusActive indicates the credential is currently usable.
	SessionStatusActive SessionStatus = "active"

	// SessionStatusRevoked indicates the credential was explicitly revoked.
	SessionStatusRevoked SessionStatus = "revoked"

	// SessionStatusExpired indicates the credential passed its expiration
	// instant. The transition is derived lazily at read time.
	SessionStatusExpired SessionStatus = "expired"
)

// IsTerminal reports whether the status is one of the terminal states.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusRevoked || s == SessionStatusExpired
}

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode is a machine-readable error code surfaced to automated callers.
type ErrorCode string

const (
	ErrCodeInvalidPermissionSet  ErrorCode = "invalid_permission_set"
	ErrCodeInvalidSpendLimits    ErrorCode = "invalid_spend_limits"
	ErrCodeInvalidRequest        ErrorCode = "invalid_request"
	ErrCodeUnknownCredential     ErrorCode = "unknown_credential"
	ErrCodeCredentialNotActive   ErrorCode = "credential_not_active"
	ErrCodeActionNotPermitted    ErrorCode = "action_not_permitted"
	ErrCodeExceedsPerTransaction ErrorCode = "exceeds_per_transaction"
	ErrCodeExceedsDaily          ErrorCode = "exceeds_daily"
	ErrCodeExecutionFailed       ErrorCode = "execution_failed"
	ErrCodeReconciliationFault   ErrorCode = "reconciliation_fault"
	ErrCodeRateLimitExceeded     ErrorCode = "rate_limit_exceeded"
	ErrCodeUnauthorized          ErrorCode = "unauthorized"
	ErrCodePrincipalMismatch     ErrorCode = "principal_mismatch"
	ErrCodeInternal              ErrorCode = "internal_error"
)

// ================================================================================
// Session Lifetime Constants
// ================================================================================

const (
	// BlockInterval is the fixed ledger block time used to convert
	// block-denominated expiration horizons into instants.
	BlockInterval = 3 * time.Minute

	// SessionDefaultTTL is the default session lifetime when the caller
	// supplies no horizon.
	SessionDefaultTTL = 24 * time.Hour

	// SessionMaxTTL is the maximum allowed session lifetime.
	SessionMaxTTL = 30 * 24 * time.Hour
)

// ================================================================================
// Spend Limit Defaults
// ================================================================================

// Amounts are fixed-point integers in the smallest currency unit.
const (
	// DefaultDailyMax is the default cumulative spend cap per credential.
	DefaultDailyMax int64 = 1000

	// DefaultPerTransactionMax is the default single-charge cap.
	DefaultPerTransactionMax int64 = 100

	// DefaultCurrencyUnit is the settlement currency for spend limits.
	DefaultCurrencyUnit = "STRK"
)

// ================================================================================
// Cache TTL Constants
// ================================================================================

const (
	// SessionCacheTTL is the L2 (redis) cache lifetime for redacted
	// credential records.
	SessionCacheTTL = 5 * time.Minute

	// SessionCacheL1TTL is the L1 (in-process) cache lifetime.
	SessionCacheL1TTL = 30 * time.Second

	// RevocationCacheTTL bounds blacklist entries for credentials whose
	// expiry could not be determined.
	RevocationCacheTTL = 24 * time.Hour

	// RateLimitWindow is the fixed window for issuance rate limiting.
	RateLimitWindow = 1 * time.Minute
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type used for values stored in request contexts.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request correlation id.
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyPrincipalID carries the authenticated principal id.
	ContextKeyPrincipalID ContextKey = "principal_id"

	// ContextKeyTraceID carries the distributed trace id.
	ContextKeyTraceID ContextKey = "trace_id"
)

// ================================================================================
// Misc
// ================================================================================

const (
	// ServiceName identifies this service in traces and log streams.
	ServiceName = "sessiond"

	// AuditTopicDefault is the default kafka topic for revocation and
	// reconciliation events.
	AuditTopicDefault = "sessiond.audit.events"
)
