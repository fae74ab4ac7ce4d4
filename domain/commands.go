package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"corebank/shared"
)

// Command is the intent to change one aggregate. Every command carries the
// envelope meta; the sharded runtime routes by Meta().EntityID.
type Command interface {
	Meta() shared.CommandMeta
}

// Envelope is embedded by every command struct.
type Envelope struct {
	M shared.CommandMeta `json:"meta"`
}

func (e Envelope) Meta() shared.CommandMeta { return e.M }

func WithMeta(m shared.CommandMeta) Envelope { return Envelope{M: m} }

// --- Account commands ---

type CreateAccount struct {
	Envelope
	Name      string
	OwnerName string
	Currency  shared.Currency
}

type DepositCash struct {
	Envelope
	Amount decimal.Decimal
	Origin string
}

type Debit struct {
	Envelope
	Amount     decimal.Decimal
	EmployeeID shared.EmployeeID
	CardID     shared.CardID
	Merchant   string
	Reference  string
}

type UpdateDailyDebitLimit struct {
	Envelope
	Limit decimal.Decimal
}

type RegisterInternalRecipient struct {
	Envelope
	Recipient shared.TransferRecipient
}

type RegisterDomesticRecipient struct {
	Envelope
	Recipient shared.TransferRecipient
}

type EditDomesticRecipient struct {
	Envelope
	Recipient shared.TransferRecipient
}

type InternalTransferWithinOrg struct {
	Envelope
	Amount      decimal.Decimal
	RecipientID shared.AccountID
}

// InternalTransferBetweenOrgs schedules when DeliverAt is set; otherwise the
// pending event is emitted immediately.
type InternalTransferBetweenOrgs struct {
	Envelope
	Amount         decimal.Decimal
	RecipientID    shared.AccountID
	RecipientOrgID shared.OrgID
	DeliverAt      time.Time
}

type DomesticTransfer struct {
	Envelope
	Amount      decimal.Decimal
	RecipientID string
	DeliverAt   time.Time
}

// ApproveInternalTransfer and RejectInternalTransfer are issued by the
// internal transfer coordinator against the sender; the correlation id in
// the meta ties them to the pending event.
type ApproveInternalTransfer struct {
	Envelope
	Kind           shared.RecipientKind
	Amount         decimal.Decimal
	RecipientID    shared.AccountID
	RecipientOrgID shared.OrgID
}

type RejectInternalTransfer struct {
	Envelope
	Kind           shared.RecipientKind
	Amount         decimal.Decimal
	RecipientID    shared.AccountID
	RecipientOrgID shared.OrgID
	Reason         shared.RejectReason
}

type DepositTransferWithinOrg struct {
	Envelope
	Amount   decimal.Decimal
	SenderID shared.AccountID
}

type DepositTransferBetweenOrgs struct {
	Envelope
	Amount      decimal.Decimal
	SenderID    shared.AccountID
	SenderOrgID shared.OrgID
}

// InternalAutoTransfer asks the managing account to restore a target account
// (a transfer-in computed by the rule engine on the target).
type InternalAutoTransfer struct {
	Envelope
	Amount      decimal.Decimal
	RecipientID shared.AccountID
	RuleID      uuid.UUID
}

type ApproveAutomatedTransfer struct {
	Envelope
	Amount      decimal.Decimal
	RecipientID shared.AccountID
	RuleID      uuid.UUID
}

type RejectAutomatedTransfer struct {
	Envelope
	Amount      decimal.Decimal
	RecipientID shared.AccountID
	RuleID      uuid.UUID
	Reason      shared.RejectReason
}

type DepositAutomatedTransfer struct {
	Envelope
	Amount   decimal.Decimal
	SenderID shared.AccountID
	RuleID   uuid.UUID
}

type ApproveDomesticTransfer struct {
	Envelope
	TransactionID string
}

type RejectDomesticTransfer struct {
	Envelope
	Reason shared.RejectReason
}

type UpdateDomesticTransferProgress struct {
	Envelope
	Status string
}

type ConfigureAutoTransferRule struct {
	Envelope
	Rule shared.AutoTransferRule
}

type StartBillingCycle struct {
	Envelope
	Month int
	Year  int
}

type MaintenanceFee struct {
	Envelope
	Amount decimal.Decimal
}

type SkipMaintenanceFee struct {
	Envelope
	Reason shared.MaintenanceFeeCriteria
}

type PayPlatform struct {
	Envelope
	PayeeAccountID shared.AccountID
	PayeeOrgID     shared.OrgID
	Amount         decimal.Decimal
}

type DepositPlatformPayment struct {
	Envelope
	PayerAccountID shared.AccountID
	Amount         decimal.Decimal
}

type CloseAccount struct {
	Envelope
	Reference string
}

// --- Employee commands ---

type CreateEmployee struct {
	Envelope
	Name  string
	Email string
	Role  string
}

type ConfirmEmployeeInvite struct {
	Envelope
	Token string
}

type IssueCard struct {
	Envelope
	CardID       shared.CardID
	AccountID    shared.AccountID
	LastFour     string
	Virtual      bool
	DailyLimit   decimal.Decimal
	MonthlyLimit decimal.Decimal
}

type LockCard struct {
	Envelope
	CardID shared.CardID
}

type UnlockCard struct {
	Envelope
	CardID shared.CardID
}

// RequestPurchase is the card-network-facing entry point; it produces
// DebitRequested, which in turn drives a Debit on the linked account.
type RequestPurchase struct {
	Envelope
	CardID    shared.CardID
	Amount    decimal.Decimal
	Merchant  string
	Reference string
}

type ApproveDebit struct {
	Envelope
	CardID shared.CardID
	Amount decimal.Decimal
}

type DeclineDebit struct {
	Envelope
	CardID shared.CardID
	Amount decimal.Decimal
	Reason string
}
