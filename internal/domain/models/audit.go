package models

import "time"

// AuditEventType classifies lifecycle and fault events emitted on the audit
// stream.
type AuditEventType string

const (
	// AuditSessionIssued is emitted after a successful issuance.
	AuditSessionIssued AuditEventType = "session.issued"

	// AuditSessionRevoked is emitted after an effective revocation.
	AuditSessionRevoked AuditEventType = "session.revoked"

	// AuditSessionExpired is emitted when a lazy-expiry transition persists.
	AuditSessionExpired AuditEventType = "session.expired"

	// AuditLimitsUpdated is emitted after a spend-limit update.
	AuditLimitsUpdated AuditEventType = "session.limits_updated"

	// AuditReconciliationFault is emitted when usage recording fails after a
	// successful external execution. These events are the durable trail for
	// out-of-band reconciliation and must never be dropped silently.
	AuditReconciliationFault AuditEventType = "session.reconciliation_fault"
)

// AuditEvent is the payload published to the audit stream.
type AuditEvent struct {
	Type        AuditEventType         `json:"type"`
	SessionID   string                 `json:"session_id"`
	PrincipalID string                 `json:"principal_id,omitempty"`
	Amount      int64                  `json:"amount,omitempty"`
	Reference   string                 `json:"external_reference,omitempty"`
	Detail      map[string]interface{} `json:"detail,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// TaskLog is one row of the delegated-task execution log. Every gate outcome
// is appended, successes and denials alike.
type TaskLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TaskID      string    `gorm:"index;size:64" json:"task_id"`
	SessionID   string    `gorm:"index;size:64" json:"session_id"`
	PrincipalID string    `gorm:"index;size:128" json:"principal_id"`
	Action      string    `gorm:"size:32" json:"action"`
	Amount      int64     `json:"amount"`
	Status      string    `gorm:"size:32" json:"status"`
	Reference   string    `gorm:"size:128" json:"reference"`
	ErrorCode   string    `gorm:"size:48" json:"error_code"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName keeps the original backend's table name.
func (TaskLog) TableName() string {
	return "task_logs"
}
