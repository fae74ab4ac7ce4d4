package domain_test

import (
	"testing"

	"github.com/google/uuid"

	"corebank/domain"
	"corebank/shared"
)

func TestComputeAutoTransfers(t *testing.T) {
	t.Run("ZeroBalanceSweepsEverything", func(t *testing.T) {
		a := activeAccount(t, "acc-1", "420")
		ruleID := uuid.New()
		mustDecide(t, a, domain.ConfigureAutoTransferRule{
			Envelope: domain.WithMeta(meta("acc-1")),
			Rule: shared.AutoTransferRule{
				ID:          ruleID,
				Kind:        shared.RuleZeroBalance,
				Frequency:   shared.Daily,
				RecipientID: "acc-2",
			},
		})

		computed := domain.ComputeAutoTransfers(a, shared.Daily)
		if len(computed) != 1 {
			t.Fatalf("expected 1 transfer, got %d", len(computed))
		}
		tr := computed[0]
		if !tr.Out || tr.Amount.Cmp(dec("420")) != 0 || tr.RecipientID != "acc-2" {
			t.Errorf("unexpected sweep %+v", tr)
		}
		if tr.RuleID != ruleID {
			t.Error("transfer should carry the originating rule id")
		}
	})

	t.Run("ZeroBalanceSkipsEmptyAccount", func(t *testing.T) {
		a := activeAccount(t, "acc-1", "0")
		mustDecide(t, a, domain.ConfigureAutoTransferRule{
			Envelope: domain.WithMeta(meta("acc-1")),
			Rule: shared.AutoTransferRule{
				ID:          uuid.New(),
				Kind:        shared.RuleZeroBalance,
				Frequency:   shared.Daily,
				RecipientID: "acc-2",
			},
		})
		if got := domain.ComputeAutoTransfers(a, shared.Daily); len(got) != 0 {
			t.Errorf("nothing to sweep, got %d transfers", len(got))
		}
	})

	t.Run("TargetBalanceRequestsRestore", func(t *testing.T) {
		a := activeAccount(t, "acc-1", "30")
		mustDecide(t, a, domain.ConfigureAutoTransferRule{
			Envelope: domain.WithMeta(meta("acc-1")),
			Rule: shared.AutoTransferRule{
				ID:                uuid.New(),
				Kind:              shared.RuleTargetBalance,
				Frequency:         shared.Daily,
				ManagingAccountID: "acc-main",
				TargetBalance:     dec("100"),
			},
		})

		computed := domain.ComputeAutoTransfers(a, shared.Daily)
		if len(computed) != 1 {
			t.Fatalf("expected 1 transfer, got %d", len(computed))
		}
		tr := computed[0]
		if tr.Out {
			t.Error("a restore is a transfer-in against the managing account")
		}
		if tr.SenderID != "acc-main" || tr.RecipientID != "acc-1" {
			t.Errorf("unexpected restore route %s -> %s", tr.SenderID, tr.RecipientID)
		}
		if tr.Amount.Cmp(dec("70")) != 0 {
			t.Errorf("expected restore of 70, got %s", tr.Amount)
		}
	})

	t.Run("PercentDistributionRounds", func(t *testing.T) {
		a := activeAccount(t, "acc-1", "333.33")
		mustDecide(t, a, domain.ConfigureAutoTransferRule{
			Envelope: domain.WithMeta(meta("acc-1")),
			Rule: shared.AutoTransferRule{
				ID:          uuid.New(),
				Kind:        shared.RulePercentDistribution,
				Frequency:   shared.TwiceMonthly,
				RecipientID: "acc-2",
				Percent:     dec("10"),
			},
		})

		computed := domain.ComputeAutoTransfers(a, shared.TwiceMonthly)
		if len(computed) != 1 {
			t.Fatalf("expected 1 transfer, got %d", len(computed))
		}
		if computed[0].Amount.Cmp(dec("33.33")) != 0 {
			t.Errorf("expected 33.33, got %s", computed[0].Amount)
		}
	})

	t.Run("FrequencyFilter", func(t *testing.T) {
		a := activeAccount(t, "acc-1", "100")
		mustDecide(t, a, domain.ConfigureAutoTransferRule{
			Envelope: domain.WithMeta(meta("acc-1")),
			Rule: shared.AutoTransferRule{
				ID:          uuid.New(),
				Kind:        shared.RuleZeroBalance,
				Frequency:   shared.Daily,
				RecipientID: "acc-2",
			},
		})
		if got := domain.ComputeAutoTransfers(a, shared.TwiceMonthly); len(got) != 0 {
			t.Errorf("daily rule must not fire on the twice-monthly pass, got %d", len(got))
		}
	})
}

func TestPartitionComputed(t *testing.T) {
	transfers := []domain.ComputedTransfer{
		{Out: true, RecipientID: "acc-2"},
		{Out: false, SenderID: "acc-main"},
		{Out: true, RecipientID: "acc-3"},
	}
	out, in := domain.PartitionComputed(transfers)
	if len(out) != 2 || len(in) != 1 {
		t.Fatalf("expected 2 out / 1 in, got %d / %d", len(out), len(in))
	}
	if in[0].SenderID != "acc-main" {
		t.Errorf("unexpected in partition %+v", in[0])
	}
}
