package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corebank/app"
	"corebank/domain"
	"corebank/events"
	"corebank/runtime"
	"corebank/shared"
	"corebank/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func meta(id string) shared.CommandMeta {
	return shared.NewCommandMeta(id, "org-1", "test")
}

type told struct {
	ID  string
	Msg any
}

type fakeTeller struct {
	msgs []told
}

func (f *fakeTeller) Tell(id string, msg any) {
	f.msgs = append(f.msgs, told{ID: id, Msg: msg})
}

type fakeRegion struct {
	fakeTeller
	remembered []string
	forgotten  []string
}

func (f *fakeRegion) Remember(id string) error {
	f.remembered = append(f.remembered, id)
	return nil
}

func (f *fakeRegion) Forget(id string) error {
	f.forgotten = append(f.forgotten, id)
	return nil
}

type fakeInternal struct {
	reqs []app.InternalTransferRequest
}

func (f *fakeInternal) Submit(req app.InternalTransferRequest) {
	f.reqs = append(f.reqs, req)
}

type fakeDomestic struct {
	reqs []app.DomesticTransferRequest
}

func (f *fakeDomestic) Submit(req app.DomesticTransferRequest) {
	f.reqs = append(f.reqs, req)
}

type scheduled struct {
	At  time.Time
	Cmd domain.Command
}

type fakeScheduler struct {
	commands      []scheduled
	registrations []shared.AutoTransferFrequency
}

func (f *fakeScheduler) ScheduleCommand(at time.Time, cmd domain.Command) {
	f.commands = append(f.commands, scheduled{At: at, Cmd: cmd})
}

func (f *fakeScheduler) RegisterAutoTransferEvaluation(_ shared.AccountID, freq shared.AutoTransferFrequency) {
	f.registrations = append(f.registrations, freq)
}

type fakeClosure struct {
	registered []shared.AccountID
}

func (f *fakeClosure) Register(id shared.AccountID) {
	f.registered = append(f.registered, id)
}

type fakeBus struct {
	events      []events.Event
	validations []error
}

func (f *fakeBus) PublishEvent(ev events.Event) { f.events = append(f.events, ev) }

func (f *fakeBus) PublishValidation(_ string, err error) {
	f.validations = append(f.validations, err)
}

type fakeNotifier struct {
	app.NopNotifier
	opened   []shared.AccountID
	closed   []shared.AccountID
	deposits []string
	billed   []shared.BillingPeriod
	declined []string
	invites  []string
	tokens   []string
}

func (f *fakeNotifier) AccountOpened(id shared.AccountID, _ string) { f.opened = append(f.opened, id) }
func (f *fakeNotifier) AccountClosed(id shared.AccountID)           { f.closed = append(f.closed, id) }
func (f *fakeNotifier) DepositReceived(_ shared.AccountID, _ decimal.Decimal, sender string) {
	f.deposits = append(f.deposits, sender)
}
func (f *fakeNotifier) BillingStatementReady(_ shared.AccountID, period shared.BillingPeriod) {
	f.billed = append(f.billed, period)
}
func (f *fakeNotifier) PurchaseDeclined(_ shared.EmployeeID, reason string) {
	f.declined = append(f.declined, reason)
}
func (f *fakeNotifier) EmployeeInvited(email, token string) {
	f.invites = append(f.invites, email)
	f.tokens = append(f.tokens, token)
}

// failingJournal rejects appends while appendErr is set, simulating a store
// outage; reads pass through.
type failingJournal struct {
	store.Journal
	appendErr error
}

func (f *failingJournal) AppendEvents(entityID string, expectedSeq int, evs []events.Event) (int, error) {
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	return f.Journal.AppendEvents(entityID, expectedSeq, evs)
}

type fakeStatements struct {
	appended []*app.Statement
}

func (f *fakeStatements) Append(_ context.Context, st *app.Statement) error {
	f.appended = append(f.appended, st)
	return nil
}

// harness drives one account actor directly, with every collaborator replaced
// by a recording fake over a real in-memory journal.
type harness struct {
	journal    store.Journal
	accounts   *fakeRegion
	employees  *fakeTeller
	internal   *fakeInternal
	domestic   *fakeDomestic
	scheduler  *fakeScheduler
	closure    *fakeClosure
	bus        *fakeBus
	notifier   *fakeNotifier
	statements *fakeStatements

	actor runtime.Entity
}

func newHarness(t *testing.T, id string) *harness {
	t.Helper()
	h := &harness{
		journal:    store.NewMemoryJournal(),
		accounts:   &fakeRegion{},
		employees:  &fakeTeller{},
		internal:   &fakeInternal{},
		domestic:   &fakeDomestic{},
		scheduler:  &fakeScheduler{},
		closure:    &fakeClosure{},
		bus:        &fakeBus{},
		notifier:   &fakeNotifier{},
		statements: &fakeStatements{},
	}
	h.actor = app.NewAccountFactory(h.env())(id)
	return h
}

func (h *harness) env() app.Env {
	return app.Env{
		Journal:    h.journal,
		Accounts:   h.accounts,
		Employees:  h.employees,
		Internal:   h.internal,
		Domestic:   h.domestic,
		Scheduler:  h.scheduler,
		Closure:    h.closure,
		Bus:        h.bus,
		Notifier:   h.notifier,
		Statements: h.statements,
	}
}

func (h *harness) receive(t *testing.T, msg any) error {
	t.Helper()
	return h.actor.Receive(context.Background(), msg)
}

func (h *harness) command(t *testing.T, cmd domain.Command) {
	t.Helper()
	require.NoError(t, h.receive(t, app.StateChange{Command: cmd}))
}

func (h *harness) snapshot(t *testing.T) app.AccountSnapshot {
	t.Helper()
	reply := make(chan app.AccountSnapshot, 1)
	require.NoError(t, h.receive(t, app.GetAccount{ReplyTo: reply}))
	select {
	case snap := <-reply:
		return snap
	default:
		t.Fatal("no snapshot reply")
		return app.AccountSnapshot{}
	}
}

func (h *harness) create(t *testing.T, id string) {
	t.Helper()
	h.command(t, domain.CreateAccount{
		Envelope:  domain.WithMeta(meta(id)),
		Name:      "Operating",
		OwnerName: "Dana",
		Currency:  shared.USD,
	})
}

func (h *harness) deposit(t *testing.T, id, amount string) {
	t.Helper()
	h.command(t, domain.DepositCash{
		Envelope: domain.WithMeta(meta(id)),
		Amount:   dec(amount),
	})
}

// drainSelfTells feeds commands the actor addressed to itself back into the
// mailbox, the way the live region would.
func (h *harness) drainSelfTells(t *testing.T, id string) {
	t.Helper()
	for {
		var pending []any
		rest := h.accounts.msgs[:0]
		for _, m := range h.accounts.msgs {
			if m.ID == id {
				pending = append(pending, m.Msg)
			} else {
				rest = append(rest, m)
			}
		}
		h.accounts.msgs = rest
		if len(pending) == 0 {
			return
		}
		for _, msg := range pending {
			require.NoError(t, h.receive(t, msg))
		}
	}
}

func TestAccountActorPersistsAndReplies(t *testing.T) {
	h := newHarness(t, "acc-1")

	snap := h.snapshot(t)
	assert.False(t, snap.Exists, "unknown account must report not found")

	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "300")

	snap = h.snapshot(t)
	require.True(t, snap.Exists)
	assert.Equal(t, 2, snap.Account.Version)
	assert.True(t, snap.Account.Balance.Equal(dec("300")))

	evs, err := h.journal.ReadEvents("acc-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.IsType(t, events.AccountCreated{}, evs[0])
	assert.IsType(t, events.CashDeposited{}, evs[1])

	assert.Len(t, h.bus.events, 2, "every committed event is broadcast")
	assert.Equal(t, []shared.AccountID{"acc-1"}, h.notifier.opened)
}

func TestAccountActorRecoversFromJournal(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "120")

	// A fresh actor over the same journal sees the same state.
	fresh := app.NewAccountFactory(h.env())("acc-1")
	reply := make(chan app.AccountSnapshot, 1)
	require.NoError(t, fresh.Receive(context.Background(), app.GetAccount{ReplyTo: reply}))
	snap := <-reply
	require.True(t, snap.Exists)
	assert.Equal(t, 2, snap.Account.Version)
	assert.True(t, snap.Account.Balance.Equal(dec("120")))
}

func TestAccountActorInternalTransferWorkflow(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "500")
	h.command(t, domain.RegisterInternalRecipient{
		Envelope: domain.WithMeta(meta("acc-1")),
		Recipient: shared.TransferRecipient{
			Kind:      shared.RecipientWithinOrg,
			Name:      "Payroll",
			AccountID: "acc-2",
		},
	})

	h.command(t, domain.InternalTransferWithinOrg{
		Envelope:    domain.WithMeta(meta("acc-1")),
		Amount:      dec("200"),
		RecipientID: "acc-2",
	})

	require.Len(t, h.internal.reqs, 1, "pending transfer goes to the coordinator")
	req := h.internal.reqs[0]
	assert.Equal(t, shared.RecipientWithinOrg, req.Kind)
	assert.Equal(t, shared.AccountID("acc-2"), req.RecipientID)
	assert.True(t, req.Amount.Equal(dec("200")))
	assert.Equal(t, []string{"acc-1"}, h.accounts.remembered,
		"an in-flight transfer pins the entity in the shard index")

	// The coordinator answers with an approve carrying the same correlation.
	h.command(t, domain.ApproveInternalTransfer{
		Envelope: domain.WithMeta(req.Meta),
		Kind:     shared.RecipientWithinOrg,
	})

	snap := h.snapshot(t)
	assert.Empty(t, snap.Account.InFlight)
	assert.True(t, snap.Account.Balance.Equal(dec("300")))
	assert.Equal(t, []string{"acc-1"}, h.accounts.forgotten,
		"settling the last in-flight transfer releases the entity")
}

func TestAccountActorResumesPendingOnWake(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "500")
	h.command(t, domain.RegisterInternalRecipient{
		Envelope: domain.WithMeta(meta("acc-1")),
		Recipient: shared.TransferRecipient{
			Kind:      shared.RecipientWithinOrg,
			Name:      "Payroll",
			AccountID: "acc-2",
		},
	})
	h.command(t, domain.InternalTransferWithinOrg{
		Envelope:    domain.WithMeta(meta("acc-1")),
		Amount:      dec("50"),
		RecipientID: "acc-2",
	})
	require.Len(t, h.internal.reqs, 1)
	correlation := h.internal.reqs[0].Meta.CorrelationID

	// Simulated restart: new instance wakes from the remember index.
	fresh := app.NewAccountFactory(h.env())("acc-1")
	require.NoError(t, fresh.Receive(context.Background(), runtime.Started{}))

	require.Len(t, h.internal.reqs, 2, "wake-up redelivers the in-flight transfer")
	assert.Equal(t, correlation, h.internal.reqs[1].Meta.CorrelationID,
		"the redelivery reuses the correlation so the coordinator deduplicates")
}

func TestAccountActorCardDebitDeclined(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "40")

	h.command(t, domain.Debit{
		Envelope:   domain.WithMeta(meta("acc-1")),
		Amount:     dec("75"),
		EmployeeID: "emp-1",
		CardID:     "card-1",
		Merchant:   "acme",
	})

	require.Len(t, h.bus.validations, 1, "the rejection is published for clients")
	require.Len(t, h.employees.msgs, 1, "the card network gets a compensating decline")
	assert.Equal(t, "emp-1", h.employees.msgs[0].ID)
	change, ok := h.employees.msgs[0].Msg.(app.StateChange)
	require.True(t, ok)
	decline, ok := change.Command.(domain.DeclineDebit)
	require.True(t, ok, "expected DeclineDebit, got %T", change.Command)
	assert.Equal(t, shared.CardID("card-1"), decline.CardID)
	assert.True(t, decline.Amount.Equal(dec("75")))

	snap := h.snapshot(t)
	assert.True(t, snap.Account.Balance.Equal(dec("40")), "a declined debit moves no money")
}

func TestAccountActorBillingCycle(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "100")

	h.command(t, domain.StartBillingCycle{
		Envelope: domain.WithMeta(meta("acc-1")),
		Month:    7,
		Year:     2026,
	})
	h.drainSelfTells(t, "acc-1")

	require.Len(t, h.statements.appended, 1)
	st := h.statements.appended[0]
	assert.Equal(t, shared.BillingPeriod{Month: 7, Year: 2026}, st.Period)
	assert.True(t, st.OpeningBalance.Equal(dec("0")))
	assert.True(t, st.ClosingBalance.Equal(dec("100")))
	require.Len(t, st.Lines, 1)
	assert.True(t, st.Lines[0].Amount.Equal(dec("100")))

	assert.Equal(t, []shared.BillingPeriod{{Month: 7, Year: 2026}}, h.notifier.billed)

	// Neither fee criterion held for a quiet month at 100, so the fee lands.
	snap := h.snapshot(t)
	assert.True(t, snap.Account.Balance.Equal(dec("95")),
		"expected the maintenance fee to be charged, balance %s", snap.Account.Balance)
}

func TestAccountActorBillingCycleWaivesFee(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "300")

	h.command(t, domain.StartBillingCycle{
		Envelope: domain.WithMeta(meta("acc-1")),
		Month:    7,
		Year:     2026,
	})
	h.drainSelfTells(t, "acc-1")

	snap := h.snapshot(t)
	assert.True(t, snap.Account.Balance.Equal(dec("300")),
		"a qualifying deposit waives the fee, balance %s", snap.Account.Balance)
}

func TestAccountActorPerTransactionRule(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.command(t, domain.RegisterInternalRecipient{
		Envelope: domain.WithMeta(meta("acc-1")),
		Recipient: shared.TransferRecipient{
			Kind:      shared.RecipientWithinOrg,
			Name:      "Savings",
			AccountID: "acc-2",
		},
	})
	h.command(t, domain.ConfigureAutoTransferRule{
		Envelope: domain.WithMeta(meta("acc-1")),
		Rule: shared.AutoTransferRule{
			ID:          uuid.New(),
			Kind:        shared.RulePercentDistribution,
			Frequency:   shared.PerTransaction,
			RecipientID: "acc-2",
			Percent:     dec("10"),
		},
	})
	assert.Empty(t, h.scheduler.registrations,
		"per-transaction rules are event driven, not scheduled")

	h.deposit(t, "acc-1", "100")
	h.drainSelfTells(t, "acc-1")

	require.Len(t, h.internal.reqs, 1, "the rule output is handed to the coordinator")
	req := h.internal.reqs[0]
	assert.True(t, req.Automated)
	assert.True(t, req.Amount.Equal(dec("10")))

	snap := h.snapshot(t)
	assert.True(t, snap.Account.Balance.Equal(dec("90")),
		"the automated pending reserves the distributed slice")
}

func TestAccountActorScheduledRuleRegistration(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.command(t, domain.RegisterInternalRecipient{
		Envelope: domain.WithMeta(meta("acc-1")),
		Recipient: shared.TransferRecipient{
			Kind:      shared.RecipientWithinOrg,
			Name:      "Savings",
			AccountID: "acc-2",
		},
	})
	h.command(t, domain.ConfigureAutoTransferRule{
		Envelope: domain.WithMeta(meta("acc-1")),
		Rule: shared.AutoTransferRule{
			ID:          uuid.New(),
			Kind:        shared.RuleZeroBalance,
			Frequency:   shared.Daily,
			RecipientID: "acc-2",
		},
	})
	assert.Equal(t, []shared.AutoTransferFrequency{shared.Daily}, h.scheduler.registrations)
}

func TestAccountActorCloseAndDelete(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "10")

	h.command(t, domain.CloseAccount{Envelope: domain.WithMeta(meta("acc-1"))})
	assert.Equal(t, []shared.AccountID{"acc-1"}, h.closure.registered)
	assert.Equal(t, []shared.AccountID{"acc-1"}, h.notifier.closed)

	snap := h.snapshot(t)
	require.Equal(t, domain.StatusReadyForDelete, snap.Account.Status,
		"no in-flight transfers, so closure completes immediately")

	err := h.receive(t, app.Delete{})
	assert.ErrorIs(t, err, runtime.ErrStop, "a deleted entity stops its mailbox")

	evs, readErr := h.journal.ReadEvents("acc-1", 0, 0)
	require.NoError(t, readErr)
	assert.Empty(t, evs, "the journal is soft-deleted")
	assert.Contains(t, h.accounts.forgotten, "acc-1")
}

func TestAccountActorAppendFailureSkipsConfirm(t *testing.T) {
	h := newHarness(t, "acc-1")
	journal := &failingJournal{Journal: h.journal, appendErr: errors.New("store unavailable")}
	h.journal = journal
	h.actor = app.NewAccountFactory(h.env())("acc-1")

	confirmed := false
	envelope := runtime.NewConfirmable(app.StateChange{Command: domain.CreateAccount{
		Envelope:  domain.WithMeta(meta("acc-1")),
		Name:      "Operating",
		OwnerName: "Dana",
		Currency:  shared.USD,
	}}, func() { confirmed = true })

	err := h.receive(t, envelope)
	require.Error(t, err, "an append failure must surface to the supervisor")
	assert.False(t, confirmed, "nothing was persisted, so nothing may be acknowledged")

	evs, readErr := journal.ReadEvents("acc-1", 0, 0)
	require.NoError(t, readErr)
	assert.Empty(t, evs)

	// After the store recovers, the sender's redelivery lands on a fresh
	// instance and is acknowledged.
	journal.appendErr = nil
	fresh := app.NewAccountFactory(h.env())("acc-1")
	require.NoError(t, fresh.Receive(context.Background(), envelope))
	assert.True(t, confirmed)

	evs, readErr = journal.ReadEvents("acc-1", 0, 0)
	require.NoError(t, readErr)
	assert.Len(t, evs, 1)
}

func TestAccountActorStatementAfterRejectedTransfer(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "500")
	h.command(t, domain.RegisterInternalRecipient{
		Envelope: domain.WithMeta(meta("acc-1")),
		Recipient: shared.TransferRecipient{
			Kind:      shared.RecipientWithinOrg,
			Name:      "Payroll",
			AccountID: "acc-2",
		},
	})
	h.command(t, domain.InternalTransferWithinOrg{
		Envelope:    domain.WithMeta(meta("acc-1")),
		Amount:      dec("200"),
		RecipientID: "acc-2",
	})
	require.Len(t, h.internal.reqs, 1)
	req := h.internal.reqs[0]

	h.command(t, domain.RejectInternalTransfer{
		Envelope:    domain.WithMeta(req.Meta),
		Kind:        shared.RecipientWithinOrg,
		Amount:      dec("200"),
		RecipientID: "acc-2",
		Reason:      shared.RejectAccountClosed,
	})

	h.command(t, domain.StartBillingCycle{
		Envelope: domain.WithMeta(meta("acc-1")),
		Month:    7,
		Year:     2026,
	})
	h.drainSelfTells(t, "acc-1")

	require.Len(t, h.statements.appended, 1)
	st := h.statements.appended[0]
	assert.True(t, st.OpeningBalance.Equal(dec("0")),
		"the refund line must offset the pending hold, opening %s", st.OpeningBalance)
	assert.True(t, st.ClosingBalance.Equal(dec("500")))
	require.Len(t, st.Lines, 3, "deposit, hold, and refund all appear on the statement")
	assert.True(t, st.Lines[1].Amount.Equal(dec("-200")))
	assert.True(t, st.Lines[2].Amount.Equal(dec("200")))
}

func TestAccountActorSnapshotOnPassivate(t *testing.T) {
	h := newHarness(t, "acc-1")
	h.create(t, "acc-1")
	h.deposit(t, "acc-1", "75")

	require.NoError(t, h.receive(t, runtime.Passivate{}))

	snap, ok, err := h.journal.ReadLatestSnapshot("acc-1")
	require.NoError(t, err)
	require.True(t, ok, "passivation writes a final snapshot")
	restored, err := domain.AccountFromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Version)
	assert.True(t, restored.Balance.Equal(dec("75")))
}
