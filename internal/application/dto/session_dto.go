// Package dto defines the request and response shapes exposed by the
// application services to the transport layer.
package dto

import (
	"time"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/pkg/constants"
)

// IssueSessionRequest asks the authority to mint a new session credential.
// Exactly one of ExpiresInSeconds / ExpirationBlocks should be set; blocks
// are converted with the fixed block interval. Both zero falls back to the
// default session TTL.
type IssueSessionRequest struct {
	PrincipalID       string                 `json:"principal_id" binding:"required"`
	Permissions       []constants.Permission `json:"permissions" binding:"required"`
	ExpiresInSeconds  int64                  `json:"expires_in_seconds,omitempty"`
	ExpirationBlocks  int64                  `json:"expiration_blocks,omitempty"`
	PerTransactionMax *int64                 `json:"per_transaction_max,omitempty"`
	DailyMax          *int64                 `json:"daily_max,omitempty"`
	CurrencyUnit      string                 `json:"currency_unit,omitempty"`
}

// SpendLimitsView mirrors models.SpendLimits in responses.
type SpendLimitsView struct {
	PerTransactionMax int64  `json:"per_transaction_max"`
	DailyMax          int64  `json:"daily_max"`
	CurrencyUnit      string `json:"currency_unit"`
}

// UsageView mirrors models.Usage in responses.
type UsageView struct {
	CumulativeSpent  int64      `json:"cumulative_spent"`
	TransactionCount int64      `json:"transaction_count"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
}

// SessionView is the redacted representation of a credential returned by
// every read path.
type SessionView struct {
	SessionID   string                  `json:"session_id"`
	PrincipalID string                  `json:"principal_id"`
	PublicKey   string                  `json:"public_key"`
	Permissions []constants.Permission  `json:"permissions"`
	ExpiresAt   time.Time               `json:"expires_at"`
	SpendLimits SpendLimitsView         `json:"spend_limits"`
	Usage       UsageView               `json:"usage"`
	Status      constants.SessionStatus `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
}

// IssueSessionResponse is the single response that carries private-key
// material. Every subsequent read returns a SessionView only.
type IssueSessionResponse struct {
	SessionView
	// PrivateKeyHandle is disclosed exactly once so the delegated process
	// can request signing through the authority. It never appears again.
	PrivateKeyHandle string `json:"private_key_handle"`
}

// RevokeSessionResponse reports the credential's terminal status. Revoking an
// already-terminal credential is a no-op that reports the existing status.
type RevokeSessionResponse struct {
	SessionID string                  `json:"session_id"`
	Status    constants.SessionStatus `json:"status"`
	RevokedAt *time.Time              `json:"revoked_at,omitempty"`
}

// UpdateSpendLimitsRequest replaces a credential's spend limits.
type UpdateSpendLimitsRequest struct {
	PerTransactionMax int64  `json:"per_transaction_max" binding:"required"`
	DailyMax          int64  `json:"daily_max" binding:"required"`
	CurrencyUnit      string `json:"currency_unit,omitempty"`
}

// ExecuteTaskRequest submits a delegated action to the executor gate.
type ExecuteTaskRequest struct {
	SessionID string                 `json:"session_id" binding:"required"`
	Action    constants.Permission   `json:"action" binding:"required"`
	Amount    int64                  `json:"amount"`
	Payload   map[string]interface{} `json:"payload"`
}

// ExecuteTaskResponse carries the settlement reference and the usage
// snapshot recorded for the charge.
type ExecuteTaskResponse struct {
	TaskID     string    `json:"task_id"`
	SessionID  string    `json:"session_id"`
	Action     string    `json:"action"`
	Reference  string    `json:"reference"`
	Usage      UsageView `json:"usage"`
	ExecutedAt time.Time `json:"executed_at"`
}

// NewSessionView maps a credential to its redacted response shape.
func NewSessionView(s *models.SessionCredential) SessionView {
	return SessionView{
		SessionID:   s.ID,
		PrincipalID: s.PrincipalID,
		PublicKey:   s.PublicKey,
		Permissions: append([]constants.Permission(nil), s.Permissions...),
		ExpiresAt:   s.ExpiresAt,
		SpendLimits: SpendLimitsView{
			PerTransactionMax: s.SpendLimits.PerTransactionMax,
			DailyMax:          s.SpendLimits.DailyMax,
			CurrencyUnit:      s.SpendLimits.CurrencyUnit,
		},
		Usage: UsageView{
			CumulativeSpent:  s.Usage.CumulativeSpent,
			TransactionCount: s.Usage.TransactionCount,
			LastUsedAt:       s.Usage.LastUsedAt,
		},
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
	}
}

// NewUsageView maps a usage snapshot to its response shape.
func NewUsageView(u models.Usage) UsageView {
	return UsageView{
		CumulativeSpent:  u.CumulativeSpent,
		TransactionCount: u.TransactionCount,
		LastUsedAt:       u.LastUsedAt,
	}
}
