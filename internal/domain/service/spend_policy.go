package service

import (
	"github.com/bitizen-labs/sessiond/internal/domain/models"
)

// SpendDecision is the outcome of the admissibility check.
type SpendDecision int

const (
	// SpendAdmissible means the proposed charge passes both caps on the
	// usage snapshot it was evaluated against.
	SpendAdmissible SpendDecision = iota

	// SpendExceedsPerTransaction means the charge is above the single-charge cap.
	SpendExceedsPerTransaction

	// SpendExceedsDaily means the charge would breach the cumulative cap.
	SpendExceedsDaily
)

// SpendPolicy is the pure decision half of the spend-limit ledger. It never
// mutates state; recording happens through the repository's atomic increment,
// which re-checks the daily cap under the storage-level guard.
type SpendPolicy interface {
	CanSpend(credential *models.SessionCredential, amount int64) SpendDecision
}

type spendPolicy struct{}

// NewSpendPolicy returns the standard spend-limit decision function.
func NewSpendPolicy() SpendPolicy {
	return spendPolicy{}
}

func (spendPolicy) CanSpend(credential *models.SessionCredential, amount int64) SpendDecision {
	if amount < 0 {
		return SpendExceedsPerTransaction
	}
	if amount > credential.SpendLimits.PerTransactionMax {
		return SpendExceedsPerTransaction
	}
	if credential.Usage.CumulativeSpent+amount > credential.SpendLimits.DailyMax {
		return SpendExceedsDaily
	}
	return SpendAdmissible
}
