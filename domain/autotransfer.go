package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"corebank/shared"
)

// ComputedTransfer is one rule evaluation result. Out transfers debit this
// account; In transfers name the managing account that must restore it.
type ComputedTransfer struct {
	RuleID      uuid.UUID
	Out         bool
	SenderID    shared.AccountID
	RecipientID shared.AccountID
	Amount      decimal.Decimal
}

// ComputeAutoTransfers evaluates the account's rules of one frequency
// against current state. Rules that would move nothing are dropped.
func ComputeAutoTransfers(a *Account, freq shared.AutoTransferFrequency) []ComputedTransfer {
	var out []ComputedTransfer
	for _, rule := range a.RulesOf(freq) {
		switch rule.Kind {
		case shared.RuleZeroBalance:
			if a.Balance.IsPositive() {
				out = append(out, ComputedTransfer{
					RuleID:      rule.ID,
					Out:         true,
					SenderID:    a.ID,
					RecipientID: rule.RecipientID,
					Amount:      a.Balance,
				})
			}
		case shared.RuleTargetBalance:
			if a.Balance.LessThan(rule.TargetBalance) {
				out = append(out, ComputedTransfer{
					RuleID:      rule.ID,
					Out:         false,
					SenderID:    rule.ManagingAccountID,
					RecipientID: a.ID,
					Amount:      rule.TargetBalance.Sub(a.Balance),
				})
			}
		case shared.RulePercentDistribution:
			if a.Balance.IsPositive() {
				amount := a.Balance.Mul(rule.Percent).Div(hundred).RoundBank(2)
				if amount.IsPositive() {
					out = append(out, ComputedTransfer{
						RuleID:      rule.ID,
						Out:         true,
						SenderID:    a.ID,
						RecipientID: rule.RecipientID,
						Amount:      amount,
					})
				}
			}
		}
	}
	return out
}

// PartitionComputed splits evaluated transfers into the batch this account
// persists atomically (out) and the restore requests sent to managing
// accounts (in).
func PartitionComputed(transfers []ComputedTransfer) (out, in []ComputedTransfer) {
	for _, t := range transfers {
		if t.Out {
			out = append(out, t)
		} else {
			in = append(in, t)
		}
	}
	return out, in
}
