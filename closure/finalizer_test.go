package closure

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"corebank/app"
	"corebank/domain"
	"corebank/events"
	"corebank/shared"
	"corebank/store"
)

// scriptedAccounts answers snapshot asks from a per-account queue, holding the
// last entry once the queue drains, and records Delete deliveries.
type scriptedAccounts struct {
	mu      sync.Mutex
	snaps   map[shared.AccountID][]app.AccountSnapshot
	deletes chan shared.AccountID
}

func newScriptedAccounts() *scriptedAccounts {
	return &scriptedAccounts{
		snaps:   make(map[shared.AccountID][]app.AccountSnapshot),
		deletes: make(chan shared.AccountID, 8),
	}
}

func (s *scriptedAccounts) push(id shared.AccountID, status domain.AccountStatus) {
	a := domain.NewAccount(id)
	a.Status = status
	a.Version = 1
	s.mu.Lock()
	s.snaps[id] = append(s.snaps[id], app.AccountSnapshot{Exists: true, Account: a})
	s.mu.Unlock()
}

func (s *scriptedAccounts) Tell(id string, msg any) {
	switch m := msg.(type) {
	case app.GetAccount:
		s.mu.Lock()
		queue := s.snaps[shared.AccountID(id)]
		var snap app.AccountSnapshot
		if len(queue) > 0 {
			snap = queue[0]
			if len(queue) > 1 {
				s.snaps[shared.AccountID(id)] = queue[1:]
			}
		}
		s.mu.Unlock()
		m.ReplyTo <- snap
	case app.Delete:
		s.deletes <- shared.AccountID(id)
	}
}

type recordingDeregistrar struct {
	mu  sync.Mutex
	ids []shared.AccountID
}

func (r *recordingDeregistrar) DeregisterAccount(id shared.AccountID) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *recordingDeregistrar) deregistered() []shared.AccountID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.AccountID(nil), r.ids...)
}

func newTestFinalizer(t *testing.T, journal store.Journal, accounts *scriptedAccounts) (*Finalizer, *recordingDeregistrar) {
	t.Helper()
	dereg := &recordingDeregistrar{}
	f := NewFinalizer(journal, accounts, dereg, zap.NewNop())
	f.pollInterval = 10 * time.Millisecond
	f.pollBudget = 2 * time.Second
	t.Cleanup(f.Stop)
	return f, dereg
}

func awaitDelete(t *testing.T, accounts *scriptedAccounts) shared.AccountID {
	t.Helper()
	select {
	case id := <-accounts.deletes:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the delete")
		return ""
	}
}

func TestFinalizerDeletesDrainedAccount(t *testing.T) {
	accounts := newScriptedAccounts()
	// Still draining on the first poll, drained on the second.
	accounts.push("acc-1", domain.StatusClosed)
	accounts.push("acc-1", domain.StatusReadyForDelete)
	f, dereg := newTestFinalizer(t, store.NewMemoryJournal(), accounts)

	f.Register("acc-1")

	assert.Equal(t, shared.AccountID("acc-1"), awaitDelete(t, accounts))
	assert.Equal(t, []shared.AccountID{"acc-1"}, dereg.deregistered(),
		"scheduled obligations are dropped before the drain wait")
}

func TestFinalizerRegisterIsIdempotent(t *testing.T) {
	accounts := newScriptedAccounts()
	accounts.push("acc-1", domain.StatusClosed)
	accounts.push("acc-1", domain.StatusReadyForDelete)
	f, dereg := newTestFinalizer(t, store.NewMemoryJournal(), accounts)

	f.Register("acc-1")
	f.Register("acc-1")

	awaitDelete(t, accounts)
	select {
	case id := <-accounts.deletes:
		t.Fatalf("duplicate finalization of %s", id)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Len(t, dereg.deregistered(), 1)
}

func TestFinalizerDropsAbsentAccount(t *testing.T) {
	accounts := newScriptedAccounts()
	f, _ := newTestFinalizer(t, store.NewMemoryJournal(), accounts)

	// No snapshot scripted: the account reports as not found, meaning it was
	// already deleted before the restart.
	f.Register("acc-gone")

	select {
	case id := <-accounts.deletes:
		t.Fatalf("an absent account must not be deleted again, got %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFinalizerRecoverFromTagIndex(t *testing.T) {
	journal := store.NewMemoryJournal()
	m := shared.NewCommandMeta("acc-1", "org-1", "test")
	_, err := journal.AppendEvents("acc-1", 0, []events.Event{
		events.CashDeposited{
			BaseEvent: events.NewBaseEvent(m, 1, events.CashDepositedType),
			Amount:    decimal.RequireFromString("10"),
		},
		events.AccountClosed{
			BaseEvent: events.NewBaseEvent(m, 2, events.AccountClosedType),
		},
	})
	require.NoError(t, err)

	accounts := newScriptedAccounts()
	accounts.push("acc-1", domain.StatusReadyForDelete)
	f, _ := newTestFinalizer(t, journal, accounts)

	require.NoError(t, f.Recover())
	assert.Equal(t, shared.AccountID("acc-1"), awaitDelete(t, accounts),
		"a closure interrupted by a restart resumes from the tag index")
}
