package shared

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RejectReason classifies why a transfer workflow terminated without
// depositing funds.
type RejectReason string

const (
	RejectInvalidAccountInfo RejectReason = "InvalidAccountInfo"
	RejectAccountClosed      RejectReason = "AccountClosed"
	RejectUnknown            RejectReason = "Unknown"
)

type RecipientKind string

const (
	RecipientWithinOrg   RecipientKind = "InternalWithinOrg"
	RecipientBetweenOrgs RecipientKind = "InternalBetweenOrgs"
	RecipientDomestic    RecipientKind = "Domestic"
)

type RecipientStatus string

const (
	RecipientConfirmed      RecipientStatus = "Confirmed"
	RecipientInvalidAccount RecipientStatus = "InvalidAccount"
	RecipientClosed         RecipientStatus = "Closed"
)

type Depository string

const (
	DepositoryChecking Depository = "Checking"
	DepositorySavings  Depository = "Savings"
)

type PaymentNetwork string

const NetworkACH PaymentNetwork = "ACH"

// TransferRecipient is the registered counterparty of a transfer. Internal
// recipients are addressed by account id (plus org id across organizations);
// domestic recipients by account and routing number.
type TransferRecipient struct {
	ID            string          `json:"id"`
	Kind          RecipientKind   `json:"kind"`
	Name          string          `json:"name"`
	AccountID     AccountID       `json:"accountId,omitempty"`
	OrgID         OrgID           `json:"orgId,omitempty"`
	AccountNumber string          `json:"accountNumber,omitempty"`
	RoutingNumber string          `json:"routingNumber,omitempty"`
	Depository    Depository      `json:"depository,omitempty"`
	Network       PaymentNetwork  `json:"network,omitempty"`
	Status        RecipientStatus `json:"status"`
}

type AutoTransferFrequency string

const (
	PerTransaction AutoTransferFrequency = "PerTransaction"
	Daily          AutoTransferFrequency = "Daily"
	TwiceMonthly   AutoTransferFrequency = "TwiceMonthly"
)

type AutoTransferRuleKind string

const (
	RuleZeroBalance         AutoTransferRuleKind = "ZeroBalance"
	RuleTargetBalance       AutoTransferRuleKind = "TargetBalance"
	RulePercentDistribution AutoTransferRuleKind = "PercentDistribution"
)

// AutoTransferRule drives rule-based internal automated transfers.
// ZeroBalance sweeps the full balance to RecipientID. TargetBalance restores
// the account to TargetBalance by pulling from ManagingAccountID.
// PercentDistribution moves Percent (0-100) of the balance to RecipientID.
type AutoTransferRule struct {
	ID                uuid.UUID             `json:"id"`
	Frequency         AutoTransferFrequency `json:"frequency"`
	Kind              AutoTransferRuleKind  `json:"kind"`
	RecipientID       AccountID             `json:"recipientId,omitempty"`
	ManagingAccountID AccountID             `json:"managingAccountId,omitempty"`
	TargetBalance     decimal.Decimal       `json:"targetBalance"`
	Percent           decimal.Decimal       `json:"percent"`
}

// MaintenanceFeeCriteria is the fee-waiver snapshot folded over the billing
// lookback window. The fee is skipped iff either criterion holds.
type MaintenanceFeeCriteria struct {
	QualifyingDepositFound bool `json:"qualifyingDepositFound"`
	BalanceThresholdHeld   bool `json:"balanceThresholdHeld"`
}

type BillingPeriod struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}
