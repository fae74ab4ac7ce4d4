package closure

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"corebank/app"
	"corebank/domain"
	"corebank/events"
	"corebank/shared"
	"corebank/store"
)

// ScheduleDeregistrar removes an account's recurring obligations (billing
// fan-out membership, scheduled transfers) from the scheduler.
type ScheduleDeregistrar interface {
	DeregisterAccount(id shared.AccountID)
}

// Finalizer is the closure singleton. A closed account registers here; the
// finalizer deregisters its scheduled obligations, waits for in-flight
// transfers to drain, then forwards the journal soft-delete. Registrations
// survive restarts through the journal's closed-account tag index.
type Finalizer struct {
	journal   store.Journal
	accounts  app.Teller
	scheduler ScheduleDeregistrar
	log       *zap.Logger

	pollInterval time.Duration
	pollBudget   time.Duration

	mu      sync.Mutex
	pending map[shared.AccountID]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFinalizer(journal store.Journal, accounts app.Teller, scheduler ScheduleDeregistrar, log *zap.Logger) *Finalizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Finalizer{
		journal:      journal,
		accounts:     accounts,
		scheduler:    scheduler,
		log:          log.Named("closure"),
		pollInterval: 5 * time.Second,
		pollBudget:   time.Hour,
		pending:      make(map[shared.AccountID]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (f *Finalizer) Stop() {
	f.cancel()
	f.wg.Wait()
}

// Recover re-registers accounts that closed before a restart but were not
// finalized. Already-deleted accounts report as absent and drop out on the
// first poll.
func (f *Finalizer) Recover() error {
	closed, err := f.journal.CurrentEventsByTag(store.TagAccountClosed)
	if err != nil {
		return err
	}
	for _, ev := range closed {
		if _, ok := ev.(events.AccountClosed); ok {
			f.Register(shared.AccountID(ev.GetBase().EntityID))
		}
	}
	return nil
}

// Register accepts a closed account for finalization. Idempotent.
func (f *Finalizer) Register(id shared.AccountID) {
	f.mu.Lock()
	if f.pending[id] {
		f.mu.Unlock()
		return
	}
	f.pending[id] = true
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() {
			f.mu.Lock()
			delete(f.pending, id)
			f.mu.Unlock()
		}()
		f.finalize(id)
	}()
}

func (f *Finalizer) finalize(id shared.AccountID) {
	f.scheduler.DeregisterAccount(id)

	deadline := time.Now().Add(f.pollBudget)
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		switch f.check(id) {
		case finalizeDone:
			return
		case finalizeDelete:
			f.log.Info("finalizing closed account", zap.String("account", string(id)))
			f.accounts.Tell(string(id), app.Delete{})
			return
		}

		if time.Now().After(deadline) {
			// Still draining; the tag index re-registers it on restart.
			f.log.Warn("closure finalization gave up waiting for drain",
				zap.String("account", string(id)))
			return
		}
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type finalizeAction int

const (
	finalizeWait finalizeAction = iota
	finalizeDelete
	finalizeDone
)

func (f *Finalizer) check(id shared.AccountID) finalizeAction {
	reply := make(chan app.AccountSnapshot, 1)
	f.accounts.Tell(string(id), app.GetAccount{ReplyTo: reply})

	select {
	case snap := <-reply:
		if !snap.Exists {
			return finalizeDone
		}
		if snap.Account.Status == domain.StatusReadyForDelete {
			return finalizeDelete
		}
		return finalizeWait
	case <-time.After(5 * time.Second):
		return finalizeWait
	case <-f.ctx.Done():
		return finalizeDone
	}
}
