package sched

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"corebank/app"
	"corebank/domain"
	"corebank/shared"
)

const (
	dailySpec        = "0 0 * * *"
	twiceMonthlySpec = "0 0 1,16 * *"
)

// Scheduler is the outbound proxy for time-driven command delivery: one-shot
// timers for scheduled transfers, cron entries for recurring auto-transfer
// evaluation and the monthly billing fan-out. Entries are indexed per account
// so closure can deregister everything an account owns.
type Scheduler struct {
	accounts app.Teller
	log      *zap.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	timers  map[uuid.UUID]*time.Timer
	byAcct  map[shared.AccountID]map[uuid.UUID]struct{}
	entries map[shared.AccountID]map[shared.AutoTransferFrequency]cron.EntryID
}

func New(accounts app.Teller, log *zap.Logger) *Scheduler {
	return &Scheduler{
		accounts: accounts,
		log:      log.Named("sched"),
		cron:     cron.New(),
		timers:   make(map[uuid.UUID]*time.Timer),
		byAcct:   make(map[shared.AccountID]map[uuid.UUID]struct{}),
		entries:  make(map[shared.AccountID]map[shared.AutoTransferFrequency]cron.EntryID),
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[uuid.UUID]*time.Timer)
	s.byAcct = make(map[shared.AccountID]map[uuid.UUID]struct{})
}

// ScheduleCommand delivers the command to its entity at the given time. The
// correlation id keys the timer, so a rescheduled workflow replaces its
// predecessor instead of double-firing.
func (s *Scheduler) ScheduleCommand(at time.Time, cmd domain.Command) {
	meta := cmd.Meta()
	accountID := shared.AccountID(meta.EntityID)
	key := meta.CorrelationID

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[key]; ok {
		old.Stop()
	}
	s.timers[key] = time.AfterFunc(time.Until(at), func() {
		s.mu.Lock()
		delete(s.timers, key)
		if owned := s.byAcct[accountID]; owned != nil {
			delete(owned, key)
		}
		s.mu.Unlock()

		s.log.Info("delivering scheduled command",
			zap.String("entity", meta.EntityID),
			zap.String("correlationId", key.String()))
		s.accounts.Tell(meta.EntityID, app.StateChange{Command: cmd})
	})
	if s.byAcct[accountID] == nil {
		s.byAcct[accountID] = make(map[uuid.UUID]struct{})
	}
	s.byAcct[accountID][key] = struct{}{}
}

// RegisterAutoTransferEvaluation adds a recurring AutoTransferCompute for the
// account. Idempotent per account and frequency.
func (s *Scheduler) RegisterAutoTransferEvaluation(id shared.AccountID, freq shared.AutoTransferFrequency) {
	var spec string
	switch freq {
	case shared.Daily:
		spec = dailySpec
	case shared.TwiceMonthly:
		spec = twiceMonthlySpec
	default:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[id] == nil {
		s.entries[id] = make(map[shared.AutoTransferFrequency]cron.EntryID)
	}
	if _, exists := s.entries[id][freq]; exists {
		return
	}
	entryID, err := s.cron.AddFunc(spec, func() {
		s.accounts.Tell(string(id), app.AutoTransferCompute{Frequency: freq})
	})
	if err != nil {
		s.log.Error("cron registration failed",
			zap.String("account", string(id)),
			zap.String("frequency", string(freq)),
			zap.Error(err))
		return
	}
	s.entries[id][freq] = entryID
}

// ScheduleBillingFanout wires the monthly billing trigger.
func (s *Scheduler) ScheduleBillingFanout(spec string, run func()) error {
	_, err := s.cron.AddFunc(spec, run)
	return err
}

// DeregisterAccount drops every timer and cron entry the account owns; called
// by the closure finalizer.
func (s *Scheduler) DeregisterAccount(id shared.AccountID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.byAcct[id] {
		if t, ok := s.timers[key]; ok {
			t.Stop()
			delete(s.timers, key)
		}
	}
	delete(s.byAcct, id)

	for _, entryID := range s.entries[id] {
		s.cron.Remove(entryID)
	}
	delete(s.entries, id)
}
