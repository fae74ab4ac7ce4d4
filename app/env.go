package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"corebank/domain"
	"corebank/events"
	"corebank/shared"
	"corebank/store"
)

// Teller delivers a message to an entity's mailbox by ID.
type Teller interface {
	Tell(entityID string, msg any)
}

// AccountRegion is the account shard route plus the remember-entities index,
// so actors with in-flight transfers survive a restart.
type AccountRegion interface {
	Teller
	Remember(entityID string) error
	Forget(entityID string) error
}

// InternalTransferRequest hands a pending internal transfer to the
// coordinator. Meta carries the correlation id that ties the approve or
// reject back to the pending event.
type InternalTransferRequest struct {
	Meta           shared.CommandMeta
	Kind           shared.RecipientKind
	SenderID       shared.AccountID
	RecipientID    shared.AccountID
	RecipientOrgID shared.OrgID
	Amount         decimal.Decimal
	Automated      bool
	RuleID         uuid.UUID
}

type InternalCoordinator interface {
	Submit(req InternalTransferRequest)
}

// DomesticTransferRequest hands a pending domestic transfer to the worker.
// The correlation id doubles as the gateway idempotency reference, so
// redelivered requests never double-initiate.
type DomesticTransferRequest struct {
	Meta      shared.CommandMeta
	SenderID  shared.AccountID
	Amount    decimal.Decimal
	Recipient shared.TransferRecipient
	InFlight  bool
}

type DomesticWorker interface {
	Submit(req DomesticTransferRequest)
}

// Scheduler is the outbound proxy for deferred and recurring command
// delivery.
type Scheduler interface {
	ScheduleCommand(at time.Time, cmd domain.Command)

	// RegisterAutoTransferEvaluation arranges periodic AutoTransferCompute
	// deliveries for an account holding Daily or TwiceMonthly rules.
	RegisterAutoTransferEvaluation(id shared.AccountID, freq shared.AutoTransferFrequency)
}

// ClosureRegistrar receives closed accounts for finalization.
type ClosureRegistrar interface {
	Register(id shared.AccountID)
}

// Bus is the broadcast fabric: committed events with resulting state for
// projections and live clients, validation rejections keyed by entity.
type Bus interface {
	PublishEvent(ev events.Event)
	PublishValidation(entityID string, err error)
}

// Notifier is the email proxy.
type Notifier interface {
	AccountOpened(id shared.AccountID, ownerName string)
	AccountClosed(id shared.AccountID)
	DepositReceived(id shared.AccountID, amount decimal.Decimal, sender string)
	BillingStatementReady(id shared.AccountID, period shared.BillingPeriod)
	PurchaseDeclined(employeeID shared.EmployeeID, reason string)
	EmployeeInvited(email, token string)
}

// Statement is one billing cycle's account activity.
type Statement struct {
	AccountID      shared.AccountID     `json:"accountId"`
	Period         shared.BillingPeriod `json:"period"`
	OpeningBalance decimal.Decimal      `json:"openingBalance"`
	ClosingBalance decimal.Decimal      `json:"closingBalance"`
	Lines          []StatementLine      `json:"lines"`
}

type StatementLine struct {
	At     time.Time        `json:"at"`
	Type   events.EventType `json:"type"`
	Amount decimal.Decimal  `json:"amount"`
}

type StatementStore interface {
	Append(ctx context.Context, st *Statement) error
}

// Env wires the actors to everything outside their own mailbox. Nil
// collaborators are replaced with no-ops so tests can wire only what they
// observe.
type Env struct {
	Journal store.Journal
	Log     *zap.Logger

	Accounts  AccountRegion
	Employees Teller

	Internal  InternalCoordinator
	Domestic  DomesticWorker
	Scheduler Scheduler
	Closure   ClosureRegistrar

	Bus        Bus
	Notifier   Notifier
	Statements StatementStore

	// SnapshotEvery is the event count between periodic snapshots; a final
	// snapshot is always written on passivation.
	SnapshotEvery int
}

func (e Env) normalized() Env {
	if e.Log == nil {
		e.Log = zap.NewNop()
	}
	if e.Accounts == nil {
		e.Accounts = nopRegion{}
	}
	if e.Employees == nil {
		e.Employees = nopTeller{}
	}
	if e.Internal == nil {
		e.Internal = nopInternal{}
	}
	if e.Domestic == nil {
		e.Domestic = nopDomestic{}
	}
	if e.Scheduler == nil {
		e.Scheduler = nopScheduler{}
	}
	if e.Closure == nil {
		e.Closure = nopClosure{}
	}
	if e.Bus == nil {
		e.Bus = nopBus{}
	}
	if e.Notifier == nil {
		e.Notifier = NopNotifier{}
	}
	if e.Statements == nil {
		e.Statements = nopStatements{}
	}
	if e.SnapshotEvery <= 0 {
		e.SnapshotEvery = 50
	}
	return e
}

type nopTeller struct{}

func (nopTeller) Tell(string, any) {}

type nopRegion struct{ nopTeller }

func (nopRegion) Remember(string) error { return nil }
func (nopRegion) Forget(string) error   { return nil }

type nopInternal struct{}

func (nopInternal) Submit(InternalTransferRequest) {}

type nopDomestic struct{}

func (nopDomestic) Submit(DomesticTransferRequest) {}

type nopScheduler struct{}

func (nopScheduler) ScheduleCommand(time.Time, domain.Command) {}
func (nopScheduler) RegisterAutoTransferEvaluation(shared.AccountID, shared.AutoTransferFrequency) {
}

type nopClosure struct{}

func (nopClosure) Register(shared.AccountID) {}

type nopBus struct{}

func (nopBus) PublishEvent(events.Event)       {}
func (nopBus) PublishValidation(string, error) {}

// NopNotifier discards every notification; exported for wiring setups that
// run without an email proxy.
type NopNotifier struct{}

func (NopNotifier) AccountOpened(shared.AccountID, string)                    {}
func (NopNotifier) AccountClosed(shared.AccountID)                            {}
func (NopNotifier) DepositReceived(shared.AccountID, decimal.Decimal, string) {}
func (NopNotifier) BillingStatementReady(shared.AccountID, shared.BillingPeriod) {
}
func (NopNotifier) PurchaseDeclined(shared.EmployeeID, string) {}
func (NopNotifier) EmployeeInvited(string, string)             {}

type nopStatements struct{}

func (nopStatements) Append(context.Context, *Statement) error { return nil }
