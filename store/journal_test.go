package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"corebank/domain"
	"corebank/events"
	"corebank/shared"
	"corebank/store"
)

// Both journal implementations must honor the same contract, so every test
// runs against each.
func journals(t *testing.T) map[string]store.Journal {
	t.Helper()
	bolt, err := store.OpenBolt(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open bolt journal: %v", err)
	}
	t.Cleanup(func() { bolt.Close() })

	return map[string]store.Journal{
		"memory": store.NewMemoryJournal(),
		"bolt":   bolt,
	}
}

func deposit(entityID string, version int, amount string) events.Event {
	m := shared.NewCommandMeta(entityID, "org-1", "test")
	return events.CashDeposited{
		BaseEvent: events.NewBaseEvent(m, version, events.CashDepositedType),
		Amount:    decimal.RequireFromString(amount),
	}
}

func closed(entityID string, version int) events.Event {
	m := shared.NewCommandMeta(entityID, "org-1", "test")
	return events.AccountClosed{
		BaseEvent: events.NewBaseEvent(m, version, events.AccountClosedType),
	}
}

func TestJournalAppendAndRead(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			seq, err := j.AppendEvents("acc-1", 0, []events.Event{
				deposit("acc-1", 1, "100"),
				deposit("acc-1", 2, "50"),
			})
			if err != nil {
				t.Fatalf("append: %v", err)
			}
			if seq != 2 {
				t.Errorf("expected high-water 2, got %d", seq)
			}

			evs, err := j.ReadEvents("acc-1", 0, 0)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if len(evs) != 2 {
				t.Fatalf("expected 2 events, got %d", len(evs))
			}
			if evs[0].GetBase().Version != 1 || evs[1].GetBase().Version != 2 {
				t.Error("events must come back in sequence order")
			}

			// Tail read skips what the snapshot covers.
			tail, err := j.ReadEvents("acc-1", 1, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(tail) != 1 || tail[0].GetBase().Version != 2 {
				t.Errorf("expected only version 2 in the tail, got %d events", len(tail))
			}

			high, err := j.HighestSeq("acc-1")
			if err != nil || high != 2 {
				t.Errorf("expected highest seq 2, got %d (%v)", high, err)
			}
		})
	}
}

func TestJournalOptimisticConcurrency(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := j.AppendEvents("acc-1", 0, []events.Event{deposit("acc-1", 1, "100")}); err != nil {
				t.Fatal(err)
			}

			// Stale writer: still believes the stream is empty.
			_, err := j.AppendEvents("acc-1", 0, []events.Event{deposit("acc-1", 1, "50")})
			if !errors.Is(err, store.ErrConflict) {
				t.Errorf("expected ErrConflict, got %v", err)
			}

			// Version gap inside the batch.
			_, err = j.AppendEvents("acc-1", 1, []events.Event{deposit("acc-1", 3, "50")})
			if err == nil {
				t.Error("gap in event versions should be rejected")
			}

			// Event addressed to another entity.
			_, err = j.AppendEvents("acc-1", 1, []events.Event{deposit("acc-2", 2, "50")})
			if err == nil {
				t.Error("cross-entity event should be rejected")
			}
		})
	}
}

func TestJournalSoftDeletePreservesSequence(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := j.AppendEvents("acc-1", 0, []events.Event{
				deposit("acc-1", 1, "100"),
				deposit("acc-1", 2, "50"),
				closed("acc-1", 3),
			}); err != nil {
				t.Fatal(err)
			}

			if err := j.DeleteEventsUpTo("acc-1", 3); err != nil {
				t.Fatalf("delete: %v", err)
			}
			evs, err := j.ReadEvents("acc-1", 0, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(evs) != 0 {
				t.Errorf("expected empty stream after delete, got %d events", len(evs))
			}

			// The counter survives so a later append cannot reuse sequences.
			if _, err := j.AppendEvents("acc-1", 0, []events.Event{deposit("acc-1", 1, "10")}); err == nil {
				t.Error("append below the deleted floor should conflict")
			}
			if _, err := j.AppendEvents("acc-1", 3, []events.Event{deposit("acc-1", 4, "10")}); err != nil {
				t.Errorf("append continuing the sequence should succeed: %v", err)
			}
		})
	}
}

func TestJournalSnapshotRoundTrip(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, _ := j.ReadLatestSnapshot("acc-1"); ok {
				t.Fatal("no snapshot expected yet")
			}

			account := domain.NewAccount("acc-1")
			account.Balance = decimal.RequireFromString("420")
			account.Status = domain.StatusActive
			account.Version = 7
			snap, err := domain.SnapshotAccount(account)
			if err != nil {
				t.Fatal(err)
			}
			if err := j.WriteSnapshot(snap); err != nil {
				t.Fatalf("write snapshot: %v", err)
			}

			got, ok, err := j.ReadLatestSnapshot("acc-1")
			if err != nil || !ok {
				t.Fatalf("read snapshot: ok=%v err=%v", ok, err)
			}
			restored, err := domain.AccountFromSnapshot(got)
			if err != nil {
				t.Fatal(err)
			}
			if restored.Balance.Cmp(account.Balance) != 0 || restored.Version != 7 {
				t.Errorf("snapshot round-trip mismatch: %+v", restored)
			}
		})
	}
}

func TestJournalTagIndex(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := j.AppendEvents("acc-1", 0, []events.Event{
				deposit("acc-1", 1, "100"),
				closed("acc-1", 2),
			}); err != nil {
				t.Fatal(err)
			}
			if _, err := j.AppendEvents("acc-2", 0, []events.Event{
				closed("acc-2", 1),
			}); err != nil {
				t.Fatal(err)
			}

			tagged, err := j.CurrentEventsByTag(store.TagAccountClosed)
			if err != nil {
				t.Fatalf("read tag: %v", err)
			}
			if len(tagged) != 2 {
				t.Fatalf("expected 2 closed accounts, got %d", len(tagged))
			}
			seen := map[string]bool{}
			for _, ev := range tagged {
				if _, ok := ev.(events.AccountClosed); !ok {
					t.Errorf("unexpected event under the closed tag: %T", ev)
				}
				seen[ev.GetBase().EntityID] = true
			}
			if !seen["acc-1"] || !seen["acc-2"] {
				t.Errorf("missing entities in tag index: %v", seen)
			}
		})
	}
}
