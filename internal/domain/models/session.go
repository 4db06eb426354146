// Package models defines the domain models for the sessiond service.
// This file contains the SessionCredential model with its lifecycle logic.
package models

import (
	"time"

	"github.com/bitizen-labs/sessiond/pkg/constants"
)

// SpendLimits bounds the value a session credential may authorize.
// Amounts are fixed-point integers in the smallest unit of CurrencyUnit.
type SpendLimits struct {
	// PerTransactionMax caps any single charge.
	PerTransactionMax int64 `json:"per_transaction_max" db:"per_transaction_max"`

	// DailyMax caps cumulative spend over the credential's lifetime.
	// Treated as a lifetime cap; no reset policy is layered on.
	DailyMax int64 `json:"daily_max" db:"daily_max"`

	// CurrencyUnit names the settlement currency the limits are denominated in.
	CurrencyUnit string `json:"currency_unit" db:"currency_unit"`
}

// Validate checks the structural invariant dailyMax >= perTransactionMax >= 0.
func (l SpendLimits) Validate() bool {
	return l.PerTransactionMax >= 0 && l.DailyMax >= l.PerTransactionMax
}

// Usage tracks accumulated spend against a credential's limits. It is mutated
// only by the task executor gate, once per successfully executed action.
type Usage struct {
	// CumulativeSpent is the sum of all successfully recorded charges.
	CumulativeSpent int64 `json:"cumulative_spent" db:"cumulative_spent"`

	// TransactionCount is the number of successfully executed actions.
	// Never decremented.
	TransactionCount int64 `json:"transaction_count" db:"transaction_count"`

	// LastUsedAt is the instant of the most recent recorded charge.
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// SessionCredential is a time-bounded, permission-scoped, spend-limited
// delegation that lets an automated process act on a principal's behalf.
type SessionCredential struct {
	// ID is the opaque unique identifier, generated at issuance. Immutable.
	ID string `json:"id" db:"id"`

	// PrincipalID identifies the account on whose behalf the credential
	// acts. Immutable.
	PrincipalID string `json:"principal_id" db:"principal_id"`

	// PublicKey is the hex-encoded public half of the session keypair.
	PublicKey string `json:"public_key" db:"public_key"`

	// PrivateKeyHandle references the vault location of the private key.
	// Held exclusively inside the authority's trusted boundary; never
	// serialized outward.
	PrivateKeyHandle string `json:"-" db:"private_key_handle"`

	// Permissions is the set of capability tags granted at issuance.
	// Immutable; there is no grant escalation.
	Permissions []constants.Permission `json:"permissions" db:"permissions"`

	// ExpiresAt is the absolute expiration instant.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// SpendLimits is mutable only through the explicit limit-update operation.
	SpendLimits SpendLimits `json:"spend_limits" db:"spend_limits"`

	// Usage is mutated only by post-execution usage recording.
	Usage Usage `json:"usage" db:"usage"`

	// Status is active, revoked, or expired. Terminal states are final.
	Status constants.SessionStatus `json:"status" db:"status"`

	// CreatedAt is set once at issuance.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is bumped on every persisted mutation.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewSessionCredential builds an active credential with zeroed usage.
func NewSessionCredential(id, principalID, publicKey, keyHandle string, permissions []constants.Permission, expiresAt time.Time, limits SpendLimits) *SessionCredential {
	now := time.Now().UTC()
	return &SessionCredential{
		ID:               id,
		PrincipalID:      principalID,
		PublicKey:        publicKey,
		PrivateKeyHandle: keyHandle,
		Permissions:      permissions,
		ExpiresAt:        expiresAt,
		SpendLimits:      limits,
		Status:           constants.SessionStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsExpired reports whether the credential's expiration instant has passed,
// regardless of its persisted status.
func (s *SessionCredential) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// EffectiveStatus derives the status as of now. A persisted active status
// with a past expiry reads as expired; the caller is responsible for
// persisting that lazy transition.
func (s *SessionCredential) EffectiveStatus(now time.Time) constants.SessionStatus {
	if s.Status == constants.SessionStatusActive && s.IsExpired(now) {
		return constants.SessionStatusExpired
	}
	return s.Status
}

// IsActive reports whether the credential is usable as of now.
func (s *SessionCredential) IsActive(now time.Time) bool {
	return s.EffectiveStatus(now) == constants.SessionStatusActive
}

// HasPermission reports whether the requested capability tag is a member of
// the grant. Unknown tags always fail (default deny).
func (s *SessionCredential) HasPermission(tag constants.Permission) bool {
	if !constants.IsKnownPermission(tag) {
		return false
	}
	for _, p := range s.Permissions {
		if p == tag {
			return true
		}
	}
	return false
}

// RemainingDaily returns the spend headroom left under the cumulative cap.
func (s *SessionCredential) RemainingDaily() int64 {
	remaining := s.SpendLimits.DailyMax - s.Usage.CumulativeSpent
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeUntilExpiry returns the remaining lifetime, or 0 if already expired.
func (s *SessionCredential) TimeUntilExpiry(now time.Time) time.Duration {
	if s.IsExpired(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Redacted returns a copy safe to hand to any caller after issuance: the
// private-key handle is stripped. The handle leaves the trusted boundary
// exactly once, in the issuance response.
func (s *SessionCredential) Redacted() *SessionCredential {
	c := *s
	c.PrivateKeyHandle = ""
	c.Permissions = append([]constants.Permission(nil), s.Permissions...)
	return &c
}
