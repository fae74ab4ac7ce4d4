package events_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"corebank/events"
	"corebank/shared"
)

func TestCodecRoundTrip(t *testing.T) {
	m := shared.NewCommandMeta("acc-1", "org-1", "test")

	t.Run("CashDeposited", func(t *testing.T) {
		in := events.CashDeposited{
			BaseEvent: events.NewBaseEvent(m, 3, events.CashDepositedType),
			Amount:    decimal.RequireFromString("120.50"),
			Origin:    "wire",
		}
		raw, err := events.Encode(in)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		out, err := events.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		got, ok := out.(events.CashDeposited)
		if !ok {
			t.Fatalf("expected CashDeposited, got %T", out)
		}
		if got.Amount.Cmp(in.Amount) != 0 || got.Origin != "wire" {
			t.Errorf("payload mismatch: %+v", got)
		}
		if got.GetBase().Version != 3 || got.GetBase().CorrelationID != m.CorrelationID {
			t.Errorf("envelope mismatch: %+v", got.GetBase())
		}
	})

	t.Run("AutoTransferRuleConfigured", func(t *testing.T) {
		in := events.AutoTransferRuleConfigured{
			BaseEvent: events.NewBaseEvent(m, 5, events.AutoTransferRuleConfiguredType),
			Rule: shared.AutoTransferRule{
				ID:          uuid.New(),
				Kind:        shared.RulePercentDistribution,
				Frequency:   shared.TwiceMonthly,
				RecipientID: "acc-2",
				Percent:     decimal.RequireFromString("12.5"),
			},
		}
		raw, err := events.Encode(in)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		out, err := events.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		got := out.(events.AutoTransferRuleConfigured)
		if got.Rule.ID != in.Rule.ID || got.Rule.Percent.Cmp(in.Rule.Percent) != 0 {
			t.Errorf("rule mismatch: %+v", got.Rule)
		}
	})

	t.Run("DomesticTransferRejected", func(t *testing.T) {
		in := events.DomesticTransferRejected{
			BaseEvent:   events.NewBaseEvent(m, 7, events.DomesticTransferRejectedType),
			Amount:      decimal.RequireFromString("75"),
			RecipientID: "vendor-1",
			Reason:      shared.RejectInvalidAccountInfo,
		}
		raw, err := events.Encode(in)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		out, err := events.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		got := out.(events.DomesticTransferRejected)
		if got.Reason != shared.RejectInvalidAccountInfo {
			t.Errorf("reason mismatch: %s", got.Reason)
		}
	})
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := events.Decode([]byte(`{"type":"NoSuchEvent","data":{}}`)); err == nil {
		t.Fatal("unknown type should fail to decode")
	}
}

func TestMoneyTransactionDeltas(t *testing.T) {
	m := shared.NewCommandMeta("acc-1", "org-1", "test")
	amount := decimal.RequireFromString("40")

	deposit := events.CashDeposited{
		BaseEvent: events.NewBaseEvent(m, 1, events.CashDepositedType),
		Amount:    amount,
	}
	delta, ok := events.MoneyTransaction(deposit)
	if !ok || delta.Cmp(amount) != 0 {
		t.Errorf("deposit should be a positive delta, got %s", delta)
	}

	pending := events.DomesticTransferPending{
		BaseEvent: events.NewBaseEvent(m, 2, events.DomesticTransferPendingType),
		Amount:    amount,
	}
	delta, ok = events.MoneyTransaction(pending)
	if !ok || delta.Cmp(amount.Neg()) != 0 {
		t.Errorf("outbound pending should be a negative delta, got %s", delta)
	}

	// A rejection refunds the pending hold, so its delta mirrors the fold.
	rejected := events.TransferWithinOrgRejected{
		BaseEvent: events.NewBaseEvent(m, 3, events.TransferWithinOrgRejectedType),
		Amount:    amount,
		Reason:    shared.RejectAccountClosed,
	}
	delta, ok = events.MoneyTransaction(rejected)
	if !ok || delta.Cmp(amount) != 0 {
		t.Errorf("rejection should refund the hold, got %s", delta)
	}

	// Automated transfers move money like any other, but are flagged so
	// per-transaction rules cannot cascade off their own output.
	automated := events.AutomatedTransferPending{
		BaseEvent: events.NewBaseEvent(m, 4, events.AutomatedTransferPendingType),
		Amount:    amount,
	}
	delta, ok = events.MoneyTransaction(automated)
	if !ok || delta.Cmp(amount.Neg()) != 0 {
		t.Errorf("automated pending should be a negative delta, got %s", delta)
	}
	if !events.AutomatedTransfer(automated) {
		t.Error("automated pending must be flagged as rule output")
	}
	if events.AutomatedTransfer(deposit) {
		t.Error("a cash deposit is not rule output")
	}
}
