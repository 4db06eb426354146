package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/pkg/constants"
)

func spendTestCredential(spent int64) *models.SessionCredential {
	s := models.NewSessionCredential(
		"session_y", "principal_1", "0xabc", "sessions/session_y",
		[]constants.Permission{constants.PermissionExecuteTransfer},
		time.Now().Add(time.Hour),
		models.SpendLimits{PerTransactionMax: 100, DailyMax: 1000},
	)
	s.Usage.CumulativeSpent = spent
	return s
}

func TestCanSpend(t *testing.T) {
	policy := NewSpendPolicy()

	tests := []struct {
		name   string
		spent  int64
		amount int64
		want   SpendDecision
	}{
		{"within both caps", 0, 100, SpendAdmissible},
		{"zero amount", 0, 0, SpendAdmissible},
		{"just above per-tx", 0, 101, SpendExceedsPerTransaction},
		{"exactly fills daily", 900, 100, SpendAdmissible},
		{"would breach daily", 950, 100, SpendExceedsDaily},
		{"daily already full", 1000, 1, SpendExceedsDaily},
		{"negative amount", 0, -5, SpendExceedsPerTransaction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.CanSpend(spendTestCredential(tt.spent), tt.amount))
		})
	}
}

func TestCanSpendPerTransactionCheckedBeforeDaily(t *testing.T) {
	policy := NewSpendPolicy()
	// 200 fails both caps; the per-transaction denial wins.
	s := spendTestCredential(950)
	assert.Equal(t, SpendExceedsPerTransaction, policy.CanSpend(s, 200))
}
