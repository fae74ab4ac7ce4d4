package domain_test

import (
	"testing"
	"time"

	"corebank/domain"
	"corebank/events"
	"corebank/shared"
)

func TestComputeFeeCriteria(t *testing.T) {
	now := time.Now().UTC()
	m := meta("acc-1")

	t.Run("QuietMonthAboveThreshold", func(t *testing.T) {
		criteria := domain.ComputeFeeCriteria(nil, dec("500"), now)
		if !criteria.BalanceThresholdHeld || criteria.QualifyingDepositFound {
			t.Errorf("unexpected criteria %+v", criteria)
		}
	})

	t.Run("DipBreaksBalanceCriterion", func(t *testing.T) {
		history := []events.Event{
			events.Debited{
				BaseEvent: events.NewBaseEvent(m, 1, events.DebitedType),
				Amount:    dec("300"),
			},
		}
		criteria := domain.ComputeFeeCriteria(history, dec("500"), now)
		if criteria.BalanceThresholdHeld {
			t.Error("a dip below the threshold should break the criterion")
		}
	})

	t.Run("QualifyingDepositEarnsWaiver", func(t *testing.T) {
		history := []events.Event{
			events.Debited{
				BaseEvent: events.NewBaseEvent(m, 1, events.DebitedType),
				Amount:    dec("300"),
			},
			events.CashDeposited{
				BaseEvent: events.NewBaseEvent(m, 2, events.CashDepositedType),
				Amount:    dec("300"),
			},
		}
		criteria := domain.ComputeFeeCriteria(history, dec("500"), now)
		if !criteria.QualifyingDepositFound {
			t.Error("a deposit at the threshold should earn the waiver")
		}
		if !domain.FeeDecision(criteria) {
			t.Error("either criterion should waive the fee")
		}
	})

	t.Run("OutboundPendingIsNotADeposit", func(t *testing.T) {
		history := []events.Event{
			events.TransferWithinOrgDeposited{
				BaseEvent: events.NewBaseEvent(m, 1, events.TransferWithinOrgDepositedType),
				Amount:    dec("300"),
				SenderID:  "acc-2",
			},
		}
		criteria := domain.ComputeFeeCriteria(history, dec("0"), now)
		if !criteria.QualifyingDepositFound {
			t.Error("an inbound transfer deposit qualifies")
		}

		outbound := []events.Event{
			events.TransferWithinOrgPending{
				BaseEvent:   events.NewBaseEvent(m, 1, events.TransferWithinOrgPendingType),
				Amount:      dec("300"),
				RecipientID: "acc-2",
			},
		}
		criteria = domain.ComputeFeeCriteria(outbound, dec("1000"), now)
		if criteria.QualifyingDepositFound {
			t.Error("an outbound pending must not qualify as a deposit")
		}
	})

	t.Run("RejectionRefundKeepsRunningBalance", func(t *testing.T) {
		history := []events.Event{
			events.TransferWithinOrgPending{
				BaseEvent:   events.NewBaseEvent(m, 1, events.TransferWithinOrgPendingType),
				Amount:      dec("300"),
				RecipientID: "acc-2",
			},
			events.TransferWithinOrgRejected{
				BaseEvent:   events.NewBaseEvent(m, 2, events.TransferWithinOrgRejectedType),
				Amount:      dec("300"),
				RecipientID: "acc-2",
				Reason:      shared.RejectAccountClosed,
			},
			events.Debited{
				BaseEvent: events.NewBaseEvent(m, 3, events.DebitedType),
				Amount:    dec("300"),
			},
		}
		criteria := domain.ComputeFeeCriteria(history, dec("600"), now)
		if !criteria.BalanceThresholdHeld {
			t.Error("the refund restores the hold, so the balance never dips")
		}
		if criteria.QualifyingDepositFound {
			t.Error("a refund must not qualify as a deposit")
		}
	})

	t.Run("EventsOutsideWindowIgnored", func(t *testing.T) {
		stale := events.Debited{
			BaseEvent: events.NewBaseEvent(m, 1, events.DebitedType),
			Amount:    dec("400"),
		}
		stale.Timestamp = now.Add(-40 * 24 * time.Hour)
		criteria := domain.ComputeFeeCriteria([]events.Event{stale}, dec("500"), now)
		if !criteria.BalanceThresholdHeld {
			t.Error("a debit outside the lookback window should not count")
		}
	})
}
