// Package repository defines the persistence ports of the domain layer.
// Implementations live under internal/infrastructure/persistence.
package repository

import (
	"context"
	"time"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/pkg/constants"
)

// IncrementOutcome is the result of the atomic conditional usage increment.
type IncrementOutcome int

const (
	// IncrementApplied means the charge was recorded within the daily cap.
	IncrementApplied IncrementOutcome = iota

	// IncrementExceedsDaily means recording was refused because the charge
	// would have pushed cumulative spend past the daily cap.
	IncrementExceedsDaily

	// IncrementNotFound means no credential matched the id.
	IncrementNotFound
)

// SessionRepository is the keyed record store for session credentials.
//
// IncrementUsage is the concurrency-critical operation: it must fold the
// daily-cap check and the usage record into one atomic read-modify-write so
// that concurrent executions against one credential can never both pass on
// stale usage. A read-then-write sequence is not an acceptable implementation.
type SessionRepository interface {
	// Save persists a newly issued credential.
	Save(ctx context.Context, session *models.SessionCredential) error

	// FindByID returns the credential, or an unknown_credential error.
	// No status derivation happens here; lazy expiry belongs to the
	// application layer.
	FindByID(ctx context.Context, id string) (*models.SessionCredential, error)

	// FindByPrincipal returns all credentials of a principal ordered by
	// CreatedAt descending.
	FindByPrincipal(ctx context.Context, principalID string) ([]*models.SessionCredential, error)

	// UpdateStatus transitions a credential's persisted status.
	UpdateStatus(ctx context.Context, id string, status constants.SessionStatus) error

	// UpdateSpendLimits replaces the credential's spend limits.
	UpdateSpendLimits(ctx context.Context, id string, limits models.SpendLimits) error

	// IncrementUsage atomically adds amount to CumulativeSpent, bumps
	// TransactionCount and sets LastUsedAt, but only if the resulting
	// cumulative spend stays within the credential's daily cap. Returns the
	// updated usage snapshot when applied.
	IncrementUsage(ctx context.Context, id string, amount int64, now time.Time) (IncrementOutcome, *models.Usage, error)
}
