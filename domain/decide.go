package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"corebank/events"
	"corebank/shared"
)

var hundred = decimal.NewFromInt(100)

func asValidation(err error, target *ValidationError) bool {
	return errors.As(err, target)
}

// Decide validates a command against the current account state and produces
// at most one event. It never mutates state; the caller persists the event
// and then folds it in with Apply.
func Decide(a *Account, cmd Command) (events.Event, error) {
	if create, ok := cmd.(CreateAccount); ok {
		return decideCreate(a, create)
	}

	if a == nil || a.Version == 0 {
		return nil, ValidationFailure{Field: "entityId", Reason: "account does not exist"}
	}

	next := a.Version + 1
	m := cmd.Meta()

	if err := checkStatus(a, cmd); err != nil {
		return nil, err
	}

	switch c := cmd.(type) {
	case DepositCash:
		if c.Amount.LessThan(MinimumDeposit) {
			return nil, DepositTooSmallError{Minimum: MinimumDeposit, Amount: c.Amount}
		}
		return events.CashDeposited{
			BaseEvent: events.NewBaseEvent(m, next, events.CashDepositedType),
			Amount:    c.Amount,
			Origin:    c.Origin,
		}, nil

	case Debit:
		if !c.Amount.IsPositive() {
			return nil, DebitAmountNotPositiveError{Amount: c.Amount}
		}
		if c.Amount.GreaterThan(a.availableBalance()) {
			return nil, InsufficientBalanceError{Balance: a.Balance, Requested: c.Amount}
		}
		if a.DailyDebitLimit != nil {
			accrued := a.DailyDebitAccrued
			if !shared.SameDay(a.LastDebitDate, m.Timestamp) {
				accrued = decimal.Zero
			}
			if accrued.Add(c.Amount).GreaterThan(*a.DailyDebitLimit) {
				return nil, ExceededDailyDebitError{Limit: *a.DailyDebitLimit, Accrued: accrued}
			}
		}
		return events.Debited{
			BaseEvent:  events.NewBaseEvent(m, next, events.DebitedType),
			Amount:     c.Amount,
			EmployeeID: c.EmployeeID,
			CardID:     c.CardID,
			Merchant:   c.Merchant,
			Reference:  c.Reference,
		}, nil

	case UpdateDailyDebitLimit:
		if c.Limit.IsNegative() {
			return nil, ValidationFailure{Field: "limit", Reason: "must not be negative"}
		}
		return events.DailyDebitLimitUpdated{
			BaseEvent: events.NewBaseEvent(m, next, events.DailyDebitLimitUpdatedType),
			Limit:     c.Limit,
		}, nil

	case RegisterInternalRecipient:
		r := c.Recipient
		if r.Kind != shared.RecipientWithinOrg && r.Kind != shared.RecipientBetweenOrgs {
			return nil, ValidationFailure{Field: "recipient.kind", Reason: "must be an internal kind"}
		}
		if r.AccountID == "" {
			return nil, ValidationFailure{Field: "recipient.accountId", Reason: "required"}
		}
		if r.AccountID == a.ID {
			return nil, ValidationFailure{Field: "recipient.accountId", Reason: "cannot register own account"}
		}
		if r.Kind == shared.RecipientBetweenOrgs && r.OrgID == "" {
			return nil, ValidationFailure{Field: "recipient.orgId", Reason: "required for cross-org recipients"}
		}
		r.Status = shared.RecipientConfirmed
		if r.ID == "" {
			r.ID = string(r.AccountID)
		}
		return events.InternalRecipientRegistered{
			BaseEvent: events.NewBaseEvent(m, next, events.InternalRecipientRegisteredType),
			Recipient: r,
		}, nil

	case RegisterDomesticRecipient:
		r := c.Recipient
		if err := validateDomesticRecipient(r); err != nil {
			return nil, err
		}
		r.Kind = shared.RecipientDomestic
		r.Status = shared.RecipientConfirmed
		if r.ID == "" {
			r.ID = r.AccountNumber + "_" + r.RoutingNumber
		}
		return events.DomesticRecipientRegistered{
			BaseEvent: events.NewBaseEvent(m, next, events.DomesticRecipientRegisteredType),
			Recipient: r,
		}, nil

	case EditDomesticRecipient:
		existing, ok := a.Recipients[c.Recipient.ID]
		if !ok {
			return nil, RecipientNotRegisteredError{RecipientID: c.Recipient.ID}
		}
		if existing.Kind != shared.RecipientDomestic {
			return nil, ValidationFailure{Field: "recipient.kind", Reason: "not a domestic recipient"}
		}
		r := c.Recipient
		if err := validateDomesticRecipient(r); err != nil {
			return nil, err
		}
		r.Kind = shared.RecipientDomestic
		r.Status = shared.RecipientConfirmed
		return events.DomesticRecipientEdited{
			BaseEvent: events.NewBaseEvent(m, next, events.DomesticRecipientEditedType),
			Recipient: r,
		}, nil

	case InternalTransferWithinOrg:
		if err := checkOutbound(a, c.Amount, string(c.RecipientID), shared.RecipientWithinOrg); err != nil {
			return nil, err
		}
		return events.TransferWithinOrgPending{
			BaseEvent:   events.NewBaseEvent(m, next, events.TransferWithinOrgPendingType),
			Amount:      c.Amount,
			RecipientID: c.RecipientID,
		}, nil

	case InternalTransferBetweenOrgs:
		if err := checkOutbound(a, c.Amount, string(c.RecipientID), shared.RecipientBetweenOrgs); err != nil {
			return nil, err
		}
		if !c.DeliverAt.IsZero() {
			if !c.DeliverAt.After(m.Timestamp) {
				return nil, DateNotDefaultError{Field: "deliverAt"}
			}
			return events.TransferBetweenOrgsScheduled{
				BaseEvent:      events.NewBaseEvent(m, next, events.TransferBetweenOrgsScheduledType),
				Amount:         c.Amount,
				RecipientID:    c.RecipientID,
				RecipientOrgID: c.RecipientOrgID,
				DeliverAt:      c.DeliverAt.UTC(),
			}, nil
		}
		return events.TransferBetweenOrgsPending{
			BaseEvent:      events.NewBaseEvent(m, next, events.TransferBetweenOrgsPendingType),
			Amount:         c.Amount,
			RecipientID:    c.RecipientID,
			RecipientOrgID: c.RecipientOrgID,
		}, nil

	case DomesticTransfer:
		if err := checkOutbound(a, c.Amount, c.RecipientID, shared.RecipientDomestic); err != nil {
			return nil, err
		}
		if !c.DeliverAt.IsZero() {
			if !c.DeliverAt.After(m.Timestamp) {
				return nil, DateNotDefaultError{Field: "deliverAt"}
			}
			return events.DomesticTransferScheduled{
				BaseEvent:   events.NewBaseEvent(m, next, events.DomesticTransferScheduledType),
				Amount:      c.Amount,
				RecipientID: c.RecipientID,
				DeliverAt:   c.DeliverAt.UTC(),
			}, nil
		}
		return events.DomesticTransferPending{
			BaseEvent:   events.NewBaseEvent(m, next, events.DomesticTransferPendingType),
			Amount:      c.Amount,
			RecipientID: c.RecipientID,
		}, nil

	case ApproveInternalTransfer:
		t, ok := a.InFlight[m.CorrelationID]
		if !ok {
			return nil, TransferAlreadyProgressedError{CorrelationID: m.CorrelationID}
		}
		if c.Kind == shared.RecipientBetweenOrgs {
			return events.TransferBetweenOrgsApproved{
				BaseEvent:      events.NewBaseEvent(m, next, events.TransferBetweenOrgsApprovedType),
				Amount:         t.Amount,
				RecipientID:    shared.AccountID(t.RecipientID),
				RecipientOrgID: t.RecipientOrg,
			}, nil
		}
		return events.TransferWithinOrgApproved{
			BaseEvent:   events.NewBaseEvent(m, next, events.TransferWithinOrgApprovedType),
			Amount:      t.Amount,
			RecipientID: shared.AccountID(t.RecipientID),
		}, nil

	case RejectInternalTransfer:
		t, ok := a.InFlight[m.CorrelationID]
		if !ok {
			return nil, TransferAlreadyProgressedError{CorrelationID: m.CorrelationID}
		}
		if c.Kind == shared.RecipientBetweenOrgs {
			return events.TransferBetweenOrgsRejected{
				BaseEvent:      events.NewBaseEvent(m, next, events.TransferBetweenOrgsRejectedType),
				Amount:         t.Amount,
				RecipientID:    shared.AccountID(t.RecipientID),
				RecipientOrgID: t.RecipientOrg,
				Reason:         c.Reason,
			}, nil
		}
		return events.TransferWithinOrgRejected{
			BaseEvent:   events.NewBaseEvent(m, next, events.TransferWithinOrgRejectedType),
			Amount:      t.Amount,
			RecipientID: shared.AccountID(t.RecipientID),
			Reason:      c.Reason,
		}, nil

	case DepositTransferWithinOrg:
		if !c.Amount.IsPositive() {
			return nil, DebitAmountNotPositiveError{Amount: c.Amount}
		}
		return events.TransferWithinOrgDeposited{
			BaseEvent: events.NewBaseEvent(m, next, events.TransferWithinOrgDepositedType),
			Amount:    c.Amount,
			SenderID:  c.SenderID,
		}, nil

	case DepositTransferBetweenOrgs:
		if !c.Amount.IsPositive() {
			return nil, DebitAmountNotPositiveError{Amount: c.Amount}
		}
		if !senderRegistered(a, c.SenderID) {
			return nil, SenderRegistrationRequiredError{SenderID: c.SenderID}
		}
		return events.TransferBetweenOrgsDeposited{
			BaseEvent:   events.NewBaseEvent(m, next, events.TransferBetweenOrgsDepositedType),
			Amount:      c.Amount,
			SenderID:    c.SenderID,
			SenderOrgID: c.SenderOrgID,
		}, nil

	case InternalAutoTransfer:
		if !c.Amount.IsPositive() {
			return nil, DebitAmountNotPositiveError{Amount: c.Amount}
		}
		if c.Amount.GreaterThan(a.availableBalance()) {
			return nil, InsufficientBalanceError{Balance: a.Balance, Requested: c.Amount}
		}
		return events.AutomatedTransferPending{
			BaseEvent:   events.NewBaseEvent(m, next, events.AutomatedTransferPendingType),
			Amount:      c.Amount,
			RecipientID: c.RecipientID,
			RuleID:      c.RuleID,
		}, nil

	case ApproveAutomatedTransfer:
		t, ok := a.InFlight[m.CorrelationID]
		if !ok {
			return nil, TransferAlreadyProgressedError{CorrelationID: m.CorrelationID}
		}
		return events.AutomatedTransferApproved{
			BaseEvent:   events.NewBaseEvent(m, next, events.AutomatedTransferApprovedType),
			Amount:      t.Amount,
			RecipientID: shared.AccountID(t.RecipientID),
			RuleID:      t.RuleID,
		}, nil

	case RejectAutomatedTransfer:
		t, ok := a.InFlight[m.CorrelationID]
		if !ok {
			return nil, TransferAlreadyProgressedError{CorrelationID: m.CorrelationID}
		}
		return events.AutomatedTransferRejected{
			BaseEvent:   events.NewBaseEvent(m, next, events.AutomatedTransferRejectedType),
			Amount:      t.Amount,
			RecipientID: shared.AccountID(t.RecipientID),
			RuleID:      t.RuleID,
			Reason:      c.Reason,
		}, nil

	case DepositAutomatedTransfer:
		if !c.Amount.IsPositive() {
			return nil, DebitAmountNotPositiveError{Amount: c.Amount}
		}
		return events.AutomatedTransferDeposited{
			BaseEvent: events.NewBaseEvent(m, next, events.AutomatedTransferDepositedType),
			Amount:    c.Amount,
			SenderID:  c.SenderID,
			RuleID:    c.RuleID,
		}, nil

	case ApproveDomesticTransfer:
		t, ok := a.InFlight[m.CorrelationID]
		if !ok {
			return nil, TransferAlreadyProgressedError{CorrelationID: m.CorrelationID}
		}
		return events.DomesticTransferApproved{
			BaseEvent:     events.NewBaseEvent(m, next, events.DomesticTransferApprovedType),
			Amount:        t.Amount,
			RecipientID:   t.RecipientID,
			TransactionID: c.TransactionID,
		}, nil

	case RejectDomesticTransfer:
		t, ok := a.InFlight[m.CorrelationID]
		if !ok {
			return nil, TransferAlreadyProgressedError{CorrelationID: m.CorrelationID}
		}
		return events.DomesticTransferRejected{
			BaseEvent:   events.NewBaseEvent(m, next, events.DomesticTransferRejectedType),
			Amount:      t.Amount,
			RecipientID: t.RecipientID,
			Reason:      c.Reason,
		}, nil

	case UpdateDomesticTransferProgress:
		t, ok := a.InFlight[m.CorrelationID]
		if !ok {
			return nil, TransferAlreadyProgressedError{CorrelationID: m.CorrelationID}
		}
		if t.Progress == c.Status {
			return nil, TransferProgressNoChangeError{CorrelationID: m.CorrelationID, Status: c.Status}
		}
		return events.DomesticTransferProgressUpdated{
			BaseEvent:   events.NewBaseEvent(m, next, events.DomesticTransferProgressUpdatedType),
			RecipientID: t.RecipientID,
			Status:      c.Status,
		}, nil

	case ConfigureAutoTransferRule:
		if err := validateRule(a, c.Rule); err != nil {
			return nil, err
		}
		return events.AutoTransferRuleConfigured{
			BaseEvent: events.NewBaseEvent(m, next, events.AutoTransferRuleConfiguredType),
			Rule:      c.Rule,
		}, nil

	case StartBillingCycle:
		if c.Month < 1 || c.Month > 12 || c.Year == 0 {
			return nil, ValidationFailure{Field: "period", Reason: "invalid billing period"}
		}
		if a.LastBillingCycle != nil &&
			a.LastBillingCycle.Month == c.Month && a.LastBillingCycle.Year == c.Year {
			return nil, ValidationFailure{Field: "period", Reason: "billing cycle already started for period"}
		}
		return events.BillingCycleStarted{
			BaseEvent: events.NewBaseEvent(m, next, events.BillingCycleStartedType),
			Month:     c.Month,
			Year:      c.Year,
			Criteria:  a.FeeCriteria,
		}, nil

	case MaintenanceFee:
		amount := c.Amount
		if amount.IsZero() {
			amount = MaintenanceFeeAmount
		}
		return events.MaintenanceFeeDebited{
			BaseEvent: events.NewBaseEvent(m, next, events.MaintenanceFeeDebitedType),
			Amount:    amount,
		}, nil

	case SkipMaintenanceFee:
		return events.MaintenanceFeeSkipped{
			BaseEvent: events.NewBaseEvent(m, next, events.MaintenanceFeeSkippedType),
			Reason:    c.Reason,
		}, nil

	case PayPlatform:
		if !c.Amount.IsPositive() {
			return nil, DebitAmountNotPositiveError{Amount: c.Amount}
		}
		if c.Amount.GreaterThan(a.availableBalance()) {
			return nil, InsufficientBalanceError{Balance: a.Balance, Requested: c.Amount}
		}
		return events.PlatformPaymentPaid{
			BaseEvent:      events.NewBaseEvent(m, next, events.PlatformPaymentPaidType),
			PayeeAccountID: c.PayeeAccountID,
			PayeeOrgID:     c.PayeeOrgID,
			Amount:         c.Amount,
		}, nil

	case DepositPlatformPayment:
		if !c.Amount.IsPositive() {
			return nil, DebitAmountNotPositiveError{Amount: c.Amount}
		}
		return events.PlatformPaymentDeposited{
			BaseEvent:      events.NewBaseEvent(m, next, events.PlatformPaymentDepositedType),
			PayerAccountID: c.PayerAccountID,
			Amount:         c.Amount,
		}, nil

	case CloseAccount:
		return events.AccountClosed{
			BaseEvent: events.NewBaseEvent(m, next, events.AccountClosedType),
			Reference: c.Reference,
		}, nil

	default:
		return nil, ValidationFailure{Field: "command", Reason: fmt.Sprintf("unsupported command %T", cmd)}
	}
}

// BatchRejectedError reports the offending command when a DecideMany fold
// fails; none of the batch's events are persisted.
type BatchRejectedError struct {
	Index   int
	Command Command
	Err     error
}

func (e BatchRejectedError) Error() string {
	return fmt.Sprintf("batch rejected at command %d (%T): %v", e.Index, e.Command, e.Err)
}

func (e BatchRejectedError) Unwrap() error { return e.Err }

func (e BatchRejectedError) Code() string {
	var v ValidationError
	if asValidation(e.Err, &v) {
		return v.Code()
	}
	return "ValidationFailure"
}

// DecideMany validates a batch of commands by threading each produced event
// through a shadow state. Either every command yields an event or the batch
// is rejected whole.
func DecideMany(a *Account, cmds []Command) ([]events.Event, error) {
	shadow := a.Clone()
	out := make([]events.Event, 0, len(cmds))
	for i, cmd := range cmds {
		ev, err := Decide(shadow, cmd)
		if err != nil {
			return nil, BatchRejectedError{Index: i, Command: cmd, Err: err}
		}
		if err := shadow.Apply(ev); err != nil {
			return nil, fmt.Errorf("batch shadow apply: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func decideCreate(a *Account, c CreateAccount) (events.Event, error) {
	if a != nil && a.Version > 0 {
		// Redelivered create for an initialized aggregate is a benign no-op.
		return nil, AccountNotReadyToActivateError{}
	}
	if c.Name == "" {
		return nil, ValidationFailure{Field: "name", Reason: "required"}
	}
	if c.Currency == "" {
		return nil, ValidationFailure{Field: "currency", Reason: "required"}
	}
	return events.AccountCreated{
		BaseEvent: events.NewBaseEvent(c.Meta(), 1, events.AccountCreatedType),
		Name:      c.Name,
		OwnerName: c.OwnerName,
		Currency:  c.Currency,
	}, nil
}

// checkStatus enforces the lifecycle gate: Active accounts take everything,
// Closed accounts only accept workflow-terminal commands for their in-flight
// transfers, ReadyForDelete accepts nothing.
func checkStatus(a *Account, cmd Command) error {
	switch a.Status {
	case StatusActive:
		return nil
	case StatusClosed:
		switch cmd.(type) {
		case ApproveInternalTransfer, RejectInternalTransfer,
			ApproveAutomatedTransfer, RejectAutomatedTransfer,
			ApproveDomesticTransfer, RejectDomesticTransfer,
			UpdateDomesticTransferProgress:
			return nil
		}
		return AccountNotActiveError{Status: a.Status}
	default:
		return AccountNotActiveError{Status: a.Status}
	}
}

func checkOutbound(a *Account, amount decimal.Decimal, recipientID string, kind shared.RecipientKind) error {
	if !amount.IsPositive() {
		return DebitAmountNotPositiveError{Amount: amount}
	}
	r, ok := a.Recipients[recipientID]
	if !ok {
		return RecipientNotRegisteredError{RecipientID: recipientID}
	}
	if r.Kind != kind {
		return ValidationFailure{Field: "recipientId", Reason: "recipient kind mismatch"}
	}
	if r.Status != shared.RecipientConfirmed {
		return RecipientDeactivatedError{RecipientID: recipientID, Status: r.Status}
	}
	if amount.GreaterThan(a.availableBalance()) {
		return InsufficientBalanceError{Balance: a.Balance, Requested: amount}
	}
	return nil
}

func senderRegistered(a *Account, sender shared.AccountID) bool {
	for _, r := range a.Recipients {
		if r.Kind == shared.RecipientBetweenOrgs && r.AccountID == sender {
			return true
		}
	}
	return false
}

func validateDomesticRecipient(r shared.TransferRecipient) error {
	if r.AccountNumber == "" {
		return ValidationFailure{Field: "recipient.accountNumber", Reason: "required"}
	}
	if len(r.RoutingNumber) != 9 {
		return ValidationFailure{Field: "recipient.routingNumber", Reason: "must be 9 digits"}
	}
	for _, ch := range r.RoutingNumber {
		if ch < '0' || ch > '9' {
			return ValidationFailure{Field: "recipient.routingNumber", Reason: "must be 9 digits"}
		}
	}
	if r.Depository != shared.DepositoryChecking && r.Depository != shared.DepositorySavings {
		return ValidationFailure{Field: "recipient.depository", Reason: "must be Checking or Savings"}
	}
	return nil
}

func validateRule(a *Account, r shared.AutoTransferRule) error {
	switch r.Kind {
	case shared.RuleZeroBalance:
		if r.RecipientID == "" {
			return ValidationFailure{Field: "rule.recipientId", Reason: "required"}
		}
	case shared.RuleTargetBalance:
		if r.ManagingAccountID == "" {
			return ValidationFailure{Field: "rule.managingAccountId", Reason: "required"}
		}
		if !r.TargetBalance.IsPositive() {
			return ValidationFailure{Field: "rule.targetBalance", Reason: "must be positive"}
		}
	case shared.RulePercentDistribution:
		if r.RecipientID == "" {
			return ValidationFailure{Field: "rule.recipientId", Reason: "required"}
		}
		if !r.Percent.IsPositive() || r.Percent.GreaterThan(hundred) {
			return ValidationFailure{Field: "rule.percent", Reason: "must be in (0, 100]"}
		}
	default:
		return ValidationFailure{Field: "rule.kind", Reason: "unknown rule kind"}
	}
	switch r.Frequency {
	case shared.PerTransaction, shared.Daily, shared.TwiceMonthly:
	default:
		return ValidationFailure{Field: "rule.frequency", Reason: "unknown frequency"}
	}
	if r.RecipientID == a.ID {
		return ValidationFailure{Field: "rule.recipientId", Reason: "cannot target own account"}
	}
	return nil
}
