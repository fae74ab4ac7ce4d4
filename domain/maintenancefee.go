package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"corebank/events"
	"corebank/shared"
)

// FeeLookback is the window scanned when rebuilding maintenance-fee criteria
// from history.
const FeeLookback = 27 * 24 * time.Hour

// ComputeFeeCriteria folds the lookback window of an account's history into
// the fee-waiver criteria. The balance criterion fails the moment any
// observed balance dips below the threshold; the deposit criterion flips
// true on the first qualifying deposit and short-circuits the rest of the
// scan, since no later event can unset it.
//
// openingBalance is the balance at the start of the window.
func ComputeFeeCriteria(history []events.Event, openingBalance decimal.Decimal, now time.Time) shared.MaintenanceFeeCriteria {
	criteria := shared.MaintenanceFeeCriteria{
		BalanceThresholdHeld: openingBalance.GreaterThanOrEqual(FeeCriteriaThreshold),
	}
	cutoff := now.Add(-FeeLookback)
	balance := openingBalance

	for _, ev := range history {
		base := ev.GetBase()
		if base.Timestamp.Before(cutoff) {
			continue
		}
		delta, ok := events.MoneyTransaction(ev)
		if !ok {
			continue
		}
		balance = balance.Add(delta)
		if balance.LessThan(FeeCriteriaThreshold) {
			criteria.BalanceThresholdHeld = false
		}
		if delta.GreaterThanOrEqual(FeeCriteriaThreshold) && isDeposit(ev) {
			// The waiver is already earned; nothing later can revoke it.
			criteria.QualifyingDepositFound = true
			break
		}
	}
	return criteria
}

func isDeposit(ev events.Event) bool {
	switch ev.(type) {
	case events.CashDeposited, events.TransferWithinOrgDeposited,
		events.TransferBetweenOrgsDeposited, events.PlatformPaymentDeposited:
		return true
	}
	return false
}

// FeeDecision reports whether the fee should be skipped for the given
// criteria snapshot.
func FeeDecision(criteria shared.MaintenanceFeeCriteria) (skip bool) {
	return criteria.QualifyingDepositFound || criteria.BalanceThresholdHeld
}
