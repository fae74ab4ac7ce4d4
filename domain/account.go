package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"corebank/events"
	"corebank/shared"
)

type AccountStatus string

const (
	StatusActive         AccountStatus = "Active"
	StatusClosed         AccountStatus = "Closed"
	StatusReadyForDelete AccountStatus = "ReadyForDelete"
)

// Package-level policy defaults. The originals were configuration-backed;
// they only influence Decide, never Apply, so replay is unaffected by
// changing them.
var (
	MinimumDeposit          = decimal.NewFromInt(1)
	MaintenanceFeeAmount    = decimal.RequireFromString("5.00")
	FeeCriteriaThreshold    = decimal.NewFromInt(250)
	DefaultOverdraftAllowed = decimal.Zero
)

type TransferStatus string

const (
	TransferPending    TransferStatus = "Pending"
	TransferInProgress TransferStatus = "InProgress"
)

// InFlightTransfer tracks an outbound transfer between its pending event and
// its terminal event, keyed by correlation id.
type InFlightTransfer struct {
	CorrelationID uuid.UUID            `json:"correlationId"`
	Kind          shared.RecipientKind `json:"kind"`
	Amount        decimal.Decimal      `json:"amount"`
	RecipientID   string               `json:"recipientId"`
	RecipientOrg  shared.OrgID         `json:"recipientOrg,omitempty"`
	Status        TransferStatus       `json:"status"`
	Progress      string               `json:"progress,omitempty"`
	Automated     bool                 `json:"automated"`
	RuleID        uuid.UUID            `json:"ruleId,omitempty"`
}

// FailedDomesticTransfer is retained after an InvalidAccountInfo rejection so
// an edit of the recipient's banking details can trigger a retry.
type FailedDomesticTransfer struct {
	CorrelationID uuid.UUID           `json:"correlationId"`
	RecipientID   string              `json:"recipientId"`
	Amount        decimal.Decimal     `json:"amount"`
	Reason        shared.RejectReason `json:"reason"`
}

// Account is the aggregate root. All writes are serialized through its
// entity mailbox; Decide validates invariants and Apply folds events into
// state, both for live transitions and journal replay.
type Account struct {
	ID        shared.AccountID `json:"id"`
	OrgID     shared.OrgID     `json:"orgId"`
	Name      string           `json:"name"`
	OwnerName string           `json:"ownerName"`
	Currency  shared.Currency  `json:"currency"`
	Status    AccountStatus    `json:"status"`

	Balance            decimal.Decimal  `json:"balance"`
	OverdraftAllowance decimal.Decimal  `json:"overdraftAllowance"`
	DailyDebitLimit    *decimal.Decimal `json:"dailyDebitLimit,omitempty"`

	DailyDebitAccrued   decimal.Decimal `json:"dailyDebitAccrued"`
	LastDebitDate       time.Time       `json:"lastDebitDate"`
	MonthlyDebitAccrued decimal.Decimal `json:"monthlyDebitAccrued"`
	LastDebitMonth      time.Time       `json:"lastDebitMonth"`

	Recipients     map[string]shared.TransferRecipient  `json:"recipients"`
	InFlight       map[uuid.UUID]InFlightTransfer       `json:"inFlight"`
	FailedDomestic map[uuid.UUID]FailedDomesticTransfer `json:"failedDomestic"`

	FeeCriteria       shared.MaintenanceFeeCriteria `json:"feeCriteria"`
	AutoTransferRules []shared.AutoTransferRule     `json:"autoTransferRules"`
	LastBillingCycle  *shared.BillingPeriod         `json:"lastBillingCycle,omitempty"`

	Version int `json:"version"`
}

func NewAccount(id shared.AccountID) *Account {
	return &Account{
		ID:                 id,
		Status:             StatusActive,
		Balance:            decimal.Zero,
		OverdraftAllowance: DefaultOverdraftAllowed,
		Recipients:         make(map[string]shared.TransferRecipient),
		InFlight:           make(map[uuid.UUID]InFlightTransfer),
		FailedDomestic:     make(map[uuid.UUID]FailedDomesticTransfer),
	}
}

// Clone deep-copies the account so batch decisions can fold onto a shadow
// state without touching the live aggregate.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Recipients = make(map[string]shared.TransferRecipient, len(a.Recipients))
	for k, v := range a.Recipients {
		cp.Recipients[k] = v
	}
	cp.InFlight = make(map[uuid.UUID]InFlightTransfer, len(a.InFlight))
	for k, v := range a.InFlight {
		cp.InFlight[k] = v
	}
	cp.FailedDomestic = make(map[uuid.UUID]FailedDomesticTransfer, len(a.FailedDomestic))
	for k, v := range a.FailedDomestic {
		cp.FailedDomestic[k] = v
	}
	cp.AutoTransferRules = append([]shared.AutoTransferRule(nil), a.AutoTransferRules...)
	if a.DailyDebitLimit != nil {
		l := *a.DailyDebitLimit
		cp.DailyDebitLimit = &l
	}
	if a.LastBillingCycle != nil {
		p := *a.LastBillingCycle
		cp.LastBillingCycle = &p
	}
	return &cp
}

// RulesOf returns the auto-transfer rules of the given frequency.
func (a *Account) RulesOf(freq shared.AutoTransferFrequency) []shared.AutoTransferRule {
	var out []shared.AutoTransferRule
	for _, r := range a.AutoTransferRules {
		if r.Frequency == freq {
			out = append(out, r)
		}
	}
	return out
}

func (a *Account) availableBalance() decimal.Decimal {
	return a.Balance.Add(a.OverdraftAllowance)
}

// Apply folds one event into the account. It is total over the event
// vocabulary and enforces the gap-free version sequence the journal relies
// on.
func (a *Account) Apply(event events.Event) error {
	base := event.GetBase()
	if base.Version != a.Version+1 {
		return fmt.Errorf("apply %s on account %s: expected version %d, got %d",
			base.Type, a.ID, a.Version+1, base.Version)
	}

	switch e := event.(type) {
	case events.AccountCreated:
		a.ID = shared.AccountID(base.EntityID)
		a.OrgID = base.OrgID
		a.Name = e.Name
		a.OwnerName = e.OwnerName
		a.Currency = e.Currency
		a.Status = StatusActive

	case events.CashDeposited:
		a.credit(e.Amount)

	case events.Debited:
		a.debit(e.Amount)
		a.accrueDebit(e.Amount, base.Timestamp)

	case events.MaintenanceFeeDebited:
		a.debit(e.Amount)

	case events.MaintenanceFeeSkipped:
		// Criteria reset happens on BillingCycleStarted; nothing to fold here.

	case events.DailyDebitLimitUpdated:
		l := e.Limit
		if l.IsZero() {
			a.DailyDebitLimit = nil
		} else {
			a.DailyDebitLimit = &l
		}

	case events.InternalRecipientRegistered:
		a.Recipients[e.Recipient.ID] = e.Recipient
	case events.DomesticRecipientRegistered:
		a.Recipients[e.Recipient.ID] = e.Recipient
	case events.DomesticRecipientEdited:
		a.Recipients[e.Recipient.ID] = e.Recipient

	case events.TransferWithinOrgPending:
		a.debit(e.Amount)
		a.InFlight[base.CorrelationID] = InFlightTransfer{
			CorrelationID: base.CorrelationID,
			Kind:          shared.RecipientWithinOrg,
			Amount:        e.Amount,
			RecipientID:   string(e.RecipientID),
			Status:        TransferPending,
		}
	case events.TransferWithinOrgApproved:
		a.settle(base.CorrelationID)
	case events.TransferWithinOrgRejected:
		a.refund(e.Amount)
		a.settleRejection(base.CorrelationID, e.Reason)
	case events.TransferWithinOrgDeposited:
		a.credit(e.Amount)

	case events.TransferBetweenOrgsPending:
		a.debit(e.Amount)
		a.InFlight[base.CorrelationID] = InFlightTransfer{
			CorrelationID: base.CorrelationID,
			Kind:          shared.RecipientBetweenOrgs,
			Amount:        e.Amount,
			RecipientID:   string(e.RecipientID),
			RecipientOrg:  e.RecipientOrgID,
			Status:        TransferPending,
		}
	case events.TransferBetweenOrgsApproved:
		a.settle(base.CorrelationID)
	case events.TransferBetweenOrgsRejected:
		a.refund(e.Amount)
		a.settleRejection(base.CorrelationID, e.Reason)
	case events.TransferBetweenOrgsDeposited:
		a.credit(e.Amount)
	case events.TransferBetweenOrgsScheduled:
		// Funds move when the scheduler delivers the transfer back.

	case events.DomesticTransferPending:
		a.debit(e.Amount)
		a.InFlight[base.CorrelationID] = InFlightTransfer{
			CorrelationID: base.CorrelationID,
			Kind:          shared.RecipientDomestic,
			Amount:        e.Amount,
			RecipientID:   e.RecipientID,
			Status:        TransferPending,
		}
		// A retry of a previously failed transfer clears the failure record.
		delete(a.FailedDomestic, base.CorrelationID)
	case events.DomesticTransferApproved:
		a.settle(base.CorrelationID)
	case events.DomesticTransferRejected:
		a.refund(e.Amount)
		if e.Reason == shared.RejectInvalidAccountInfo {
			a.FailedDomestic[base.CorrelationID] = FailedDomesticTransfer{
				CorrelationID: base.CorrelationID,
				RecipientID:   e.RecipientID,
				Amount:        e.Amount,
				Reason:        e.Reason,
			}
		}
		a.settleRejection(base.CorrelationID, e.Reason)
	case events.DomesticTransferProgressUpdated:
		if t, ok := a.InFlight[base.CorrelationID]; ok {
			t.Status = TransferInProgress
			t.Progress = e.Status
			a.InFlight[base.CorrelationID] = t
		}
	case events.DomesticTransferScheduled:
		// Funds move when the scheduler delivers the transfer back.

	case events.AutomatedTransferPending:
		a.debit(e.Amount)
		a.InFlight[base.CorrelationID] = InFlightTransfer{
			CorrelationID: base.CorrelationID,
			Kind:          shared.RecipientWithinOrg,
			Amount:        e.Amount,
			RecipientID:   string(e.RecipientID),
			Status:        TransferPending,
			Automated:     true,
			RuleID:        e.RuleID,
		}
	case events.AutomatedTransferApproved:
		a.settle(base.CorrelationID)
	case events.AutomatedTransferRejected:
		a.refund(e.Amount)
		a.settleRejection(base.CorrelationID, e.Reason)
	case events.AutomatedTransferDeposited:
		// Rule-driven shuffles between an org's accounts are not qualifying
		// deposits.
		a.refund(e.Amount)

	case events.AutoTransferRuleConfigured:
		replaced := false
		for i, r := range a.AutoTransferRules {
			if r.ID == e.Rule.ID {
				a.AutoTransferRules[i] = e.Rule
				replaced = true
				break
			}
		}
		if !replaced {
			a.AutoTransferRules = append(a.AutoTransferRules, e.Rule)
		}

	case events.PlatformPaymentPaid:
		a.debit(e.Amount)
	case events.PlatformPaymentDeposited:
		a.credit(e.Amount)

	case events.BillingCycleStarted:
		a.LastBillingCycle = &shared.BillingPeriod{Month: e.Month, Year: e.Year}
		a.FeeCriteria = shared.MaintenanceFeeCriteria{
			QualifyingDepositFound: false,
			BalanceThresholdHeld:   a.Balance.GreaterThanOrEqual(FeeCriteriaThreshold),
		}

	case events.AccountClosed:
		a.Status = StatusClosed
		if len(a.InFlight) == 0 {
			a.Status = StatusReadyForDelete
		}

	default:
		return fmt.Errorf("apply: unknown event type %T for account %s", event, a.ID)
	}

	a.Version = base.Version
	return nil
}

// ApplyAll replays a slice of events, as used during recovery.
func (a *Account) ApplyAll(history []events.Event) error {
	for _, event := range history {
		if err := a.Apply(event); err != nil {
			base := event.GetBase()
			return fmt.Errorf("replay failed at event %s (%s, v%d): %w",
				base.EventID, base.Type, base.Version, err)
		}
	}
	return nil
}

func (a *Account) credit(amount decimal.Decimal) {
	a.Balance = a.Balance.Add(amount)
	if amount.GreaterThanOrEqual(FeeCriteriaThreshold) {
		a.FeeCriteria.QualifyingDepositFound = true
	}
}

// refund restores held funds without counting as a qualifying deposit.
func (a *Account) refund(amount decimal.Decimal) {
	a.Balance = a.Balance.Add(amount)
}

func (a *Account) debit(amount decimal.Decimal) {
	a.Balance = a.Balance.Sub(amount)
	if a.Balance.LessThan(FeeCriteriaThreshold) {
		a.FeeCriteria.BalanceThresholdHeld = false
	}
}

func (a *Account) accrueDebit(amount decimal.Decimal, at time.Time) {
	if shared.SameDay(a.LastDebitDate, at) {
		a.DailyDebitAccrued = a.DailyDebitAccrued.Add(amount)
	} else {
		a.DailyDebitAccrued = amount
	}
	a.LastDebitDate = shared.DateOf(at)

	if shared.SameMonth(a.LastDebitMonth, at) {
		a.MonthlyDebitAccrued = a.MonthlyDebitAccrued.Add(amount)
	} else {
		a.MonthlyDebitAccrued = amount
	}
	a.LastDebitMonth = shared.DateOf(at)
}

// settle removes the in-flight record; once a closed account has drained its
// last in-flight transfer it is ready for deletion.
func (a *Account) settle(correlationID uuid.UUID) {
	delete(a.InFlight, correlationID)
	if a.Status == StatusClosed && len(a.InFlight) == 0 {
		a.Status = StatusReadyForDelete
	}
}

func (a *Account) settleRejection(correlationID uuid.UUID, _ shared.RejectReason) {
	a.settle(correlationID)
}
