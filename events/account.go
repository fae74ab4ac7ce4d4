package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"corebank/shared"
)

type AccountCreated struct {
	BaseEvent
	Name      string          `json:"name"`
	OwnerName string          `json:"ownerName"`
	Currency  shared.Currency `json:"currency"`
}

type CashDeposited struct {
	BaseEvent
	Amount decimal.Decimal `json:"amount"`
	Origin string          `json:"origin,omitempty"`
}

// Debited records a card-backed purchase debit initiated by an employee.
type Debited struct {
	BaseEvent
	Amount     decimal.Decimal   `json:"amount"`
	EmployeeID shared.EmployeeID `json:"employeeId"`
	CardID     shared.CardID     `json:"cardId"`
	Merchant   string            `json:"merchant,omitempty"`
	Reference  string            `json:"reference,omitempty"`
}

type MaintenanceFeeDebited struct {
	BaseEvent
	Amount decimal.Decimal `json:"amount"`
}

type MaintenanceFeeSkipped struct {
	BaseEvent
	Reason shared.MaintenanceFeeCriteria `json:"reason"`
}

type DailyDebitLimitUpdated struct {
	BaseEvent
	Limit decimal.Decimal `json:"limit"`
}

type InternalRecipientRegistered struct {
	BaseEvent
	Recipient shared.TransferRecipient `json:"recipient"`
}

type DomesticRecipientRegistered struct {
	BaseEvent
	Recipient shared.TransferRecipient `json:"recipient"`
}

type DomesticRecipientEdited struct {
	BaseEvent
	Recipient shared.TransferRecipient `json:"recipient"`
}

// --- Internal transfer, sender and recipient timelines ---

type TransferWithinOrgPending struct {
	BaseEvent
	Amount      decimal.Decimal  `json:"amount"`
	RecipientID shared.AccountID `json:"recipientId"`
}

type TransferWithinOrgApproved struct {
	BaseEvent
	Amount      decimal.Decimal  `json:"amount"`
	RecipientID shared.AccountID `json:"recipientId"`
}

type TransferWithinOrgRejected struct {
	BaseEvent
	Amount      decimal.Decimal     `json:"amount"`
	RecipientID shared.AccountID    `json:"recipientId"`
	Reason      shared.RejectReason `json:"reason"`
}

type TransferWithinOrgDeposited struct {
	BaseEvent
	Amount   decimal.Decimal  `json:"amount"`
	SenderID shared.AccountID `json:"senderId"`
}

type TransferBetweenOrgsPending struct {
	BaseEvent
	Amount         decimal.Decimal  `json:"amount"`
	RecipientID    shared.AccountID `json:"recipientId"`
	RecipientOrgID shared.OrgID     `json:"recipientOrgId"`
}

type TransferBetweenOrgsApproved struct {
	BaseEvent
	Amount         decimal.Decimal  `json:"amount"`
	RecipientID    shared.AccountID `json:"recipientId"`
	RecipientOrgID shared.OrgID     `json:"recipientOrgId"`
}

type TransferBetweenOrgsRejected struct {
	BaseEvent
	Amount         decimal.Decimal     `json:"amount"`
	RecipientID    shared.AccountID    `json:"recipientId"`
	RecipientOrgID shared.OrgID        `json:"recipientOrgId"`
	Reason         shared.RejectReason `json:"reason"`
}

type TransferBetweenOrgsDeposited struct {
	BaseEvent
	Amount      decimal.Decimal  `json:"amount"`
	SenderID    shared.AccountID `json:"senderId"`
	SenderOrgID shared.OrgID     `json:"senderOrgId"`
}

type TransferBetweenOrgsScheduled struct {
	BaseEvent
	Amount         decimal.Decimal  `json:"amount"`
	RecipientID    shared.AccountID `json:"recipientId"`
	RecipientOrgID shared.OrgID     `json:"recipientOrgId"`
	DeliverAt      time.Time        `json:"deliverAt"`
}

// --- Domestic transfer (sender timeline only; settlement is external) ---

type DomesticTransferPending struct {
	BaseEvent
	Amount      decimal.Decimal `json:"amount"`
	RecipientID string          `json:"recipientId"`
}

type DomesticTransferApproved struct {
	BaseEvent
	Amount        decimal.Decimal `json:"amount"`
	RecipientID   string          `json:"recipientId"`
	TransactionID string          `json:"transactionId"`
}

type DomesticTransferRejected struct {
	BaseEvent
	Amount      decimal.Decimal     `json:"amount"`
	RecipientID string              `json:"recipientId"`
	Reason      shared.RejectReason `json:"reason"`
}

type DomesticTransferProgressUpdated struct {
	BaseEvent
	RecipientID string `json:"recipientId"`
	Status      string `json:"status"`
}

type DomesticTransferScheduled struct {
	BaseEvent
	Amount      decimal.Decimal `json:"amount"`
	RecipientID string          `json:"recipientId"`
	DeliverAt   time.Time       `json:"deliverAt"`
}

// --- Rule-driven automated transfers ---

type AutomatedTransferPending struct {
	BaseEvent
	Amount      decimal.Decimal  `json:"amount"`
	RecipientID shared.AccountID `json:"recipientId"`
	RuleID      uuid.UUID        `json:"ruleId"`
}

type AutomatedTransferApproved struct {
	BaseEvent
	Amount      decimal.Decimal  `json:"amount"`
	RecipientID shared.AccountID `json:"recipientId"`
	RuleID      uuid.UUID        `json:"ruleId"`
}

type AutomatedTransferRejected struct {
	BaseEvent
	Amount      decimal.Decimal     `json:"amount"`
	RecipientID shared.AccountID    `json:"recipientId"`
	RuleID      uuid.UUID           `json:"ruleId"`
	Reason      shared.RejectReason `json:"reason"`
}

type AutomatedTransferDeposited struct {
	BaseEvent
	Amount   decimal.Decimal  `json:"amount"`
	SenderID shared.AccountID `json:"senderId"`
	RuleID   uuid.UUID        `json:"ruleId"`
}

type AutoTransferRuleConfigured struct {
	BaseEvent
	Rule shared.AutoTransferRule `json:"rule"`
}

type PlatformPaymentPaid struct {
	BaseEvent
	PayeeAccountID shared.AccountID `json:"payeeAccountId"`
	PayeeOrgID     shared.OrgID     `json:"payeeOrgId"`
	Amount         decimal.Decimal  `json:"amount"`
}

type PlatformPaymentDeposited struct {
	BaseEvent
	PayerAccountID shared.AccountID `json:"payerAccountId"`
	Amount         decimal.Decimal  `json:"amount"`
}

// BillingCycleStarted snapshots the fee criteria accumulated over the closing
// cycle; Apply resets the live criteria, so the fee decision reads this copy.
type BillingCycleStarted struct {
	BaseEvent
	Month    int                           `json:"month"`
	Year     int                           `json:"year"`
	Criteria shared.MaintenanceFeeCriteria `json:"criteria"`
}

type AccountClosed struct {
	BaseEvent
	Reference string `json:"reference,omitempty"`
}

// MoneyTransaction reports the signed balance delta an event carries, if any.
// The deltas mirror Account.Apply exactly, so a fold over a stream of events
// reproduces the balance the aggregate held at each point; rejection events
// carry the refund of their pending hold.
func MoneyTransaction(e Event) (decimal.Decimal, bool) {
	switch ev := e.(type) {
	case CashDeposited:
		return ev.Amount, true
	case Debited:
		return ev.Amount.Neg(), true
	case MaintenanceFeeDebited:
		return ev.Amount.Neg(), true
	case TransferWithinOrgPending:
		return ev.Amount.Neg(), true
	case TransferWithinOrgDeposited:
		return ev.Amount, true
	case TransferWithinOrgRejected:
		return ev.Amount, true
	case TransferBetweenOrgsPending:
		return ev.Amount.Neg(), true
	case TransferBetweenOrgsDeposited:
		return ev.Amount, true
	case TransferBetweenOrgsRejected:
		return ev.Amount, true
	case DomesticTransferPending:
		return ev.Amount.Neg(), true
	case DomesticTransferRejected:
		return ev.Amount, true
	case AutomatedTransferPending:
		return ev.Amount.Neg(), true
	case AutomatedTransferRejected:
		return ev.Amount, true
	case AutomatedTransferDeposited:
		return ev.Amount, true
	case PlatformPaymentPaid:
		return ev.Amount.Neg(), true
	case PlatformPaymentDeposited:
		return ev.Amount, true
	}
	return decimal.Zero, false
}

// AutomatedTransfer reports whether the event was produced by an automated
// transfer rule. Per-transaction rule evaluation skips these so a rule cannot
// cascade off its own output.
func AutomatedTransfer(e Event) bool {
	switch e.(type) {
	case AutomatedTransferPending, AutomatedTransferRejected, AutomatedTransferDeposited:
		return true
	}
	return false
}
