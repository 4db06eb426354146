package service

import (
	"context"
	"time"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
)

// ================================================================================
// External Collaborator Ports
// ================================================================================

// ExecutionRequest is the opaque payload handed to the settlement network.
// The core does not interpret it beyond passing it through.
type ExecutionRequest struct {
	TaskID string
	Action string
	Amount int64
	// Payload is the settlement-partner call data (contract address,
	// entrypoint, calldata and the like). Opaque to the core.
	Payload map[string]interface{}
	// Assertion authorizes the call; minted from the session's vault-held
	// private key.
	Assertion string
}

// ExecutionResult carries the settlement network's transaction reference.
type ExecutionResult struct {
	Reference  string
	ExecutedAt time.Time
}

// TaskExecutor is the opaque "execute transaction" capability of the
// settlement/ledger network. A call may block without an upper bound; once
// dispatched it must be allowed to resolve before usage recording is
// attempted, so implementations must not tie their lifetime to a caller
// context that may be abandoned mid-flight.
type TaskExecutor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// KeyVault is the custody boundary for session private keys. Key material is
// referenced by opaque handles; nothing outside implementations of this
// interface ever sees a private key after issuance.
type KeyVault interface {
	// GenerateKeypair creates a fresh asymmetric keypair for a session,
	// stores the private half, and returns the hex public key plus the
	// storage handle.
	GenerateKeypair(ctx context.Context, sessionID string) (publicKey string, handle string, err error)

	// SignAssertion mints a short-lived signed assertion authorizing one
	// settlement call with the handle's private key.
	SignAssertion(ctx context.Context, handle string, claims map[string]interface{}) (string, error)

	// Destroy removes the private key for a terminal credential. Best
	// effort; the credential record itself is retained for audit.
	Destroy(ctx context.Context, handle string) error
}

// ================================================================================
// Eventing & Audit Ports
// ================================================================================

// AuditPublisher emits lifecycle and fault events to the audit stream.
// Publish failures are logged, never allowed to fail the calling operation.
// The single exception is reconciliation faults, which callers must
// also persist locally.
type AuditPublisher interface {
	Publish(ctx context.Context, event models.AuditEvent) error
	Close() error
}

// TaskLogStore durably appends gate outcomes for audit and reconciliation.
type TaskLogStore interface {
	Append(ctx context.Context, entry *models.TaskLog) error
	FindBySession(ctx context.Context, sessionID string, limit int) ([]*models.TaskLog, error)
}

// ================================================================================
// Caching & Rate Limiting Ports
// ================================================================================

// RevocationCache is a fast shared blacklist of revoked session ids so
// replicas observe revocations before their next store read.
type RevocationCache interface {
	MarkRevoked(ctx context.Context, sessionID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// SessionCache is a read-through cache of redacted credential records.
// Mutating operations invalidate; the gate always reads the store.
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*models.SessionCredential, bool)
	Set(ctx context.Context, session *models.SessionCredential) error
	Invalidate(ctx context.Context, sessionID string) error
}

// RateLimitService throttles issuance per principal.
type RateLimitService interface {
	// Allow reports whether one more issuance is admitted for the key
	// within the current window.
	Allow(ctx context.Context, key string) (bool, error)
}
