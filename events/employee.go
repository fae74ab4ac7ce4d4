package events

import (
	"github.com/shopspring/decimal"

	"corebank/shared"
)

type EmployeeCreated struct {
	BaseEvent
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	InviteToken string `json:"inviteToken"`
}

type EmployeeInviteConfirmed struct {
	BaseEvent
}

type CardIssued struct {
	BaseEvent
	CardID       shared.CardID    `json:"cardId"`
	AccountID    shared.AccountID `json:"accountId"`
	LastFour     string           `json:"lastFour"`
	Virtual      bool             `json:"virtual"`
	DailyLimit   decimal.Decimal  `json:"dailyLimit"`
	MonthlyLimit decimal.Decimal  `json:"monthlyLimit"`
}

type CardLocked struct {
	BaseEvent
	CardID shared.CardID `json:"cardId"`
}

type CardUnlocked struct {
	BaseEvent
	CardID shared.CardID `json:"cardId"`
}

// DebitRequested is the employee-side record of a card purchase; it triggers
// a Debit command against the linked account.
type DebitRequested struct {
	BaseEvent
	CardID    shared.CardID    `json:"cardId"`
	AccountID shared.AccountID `json:"accountId"`
	Amount    decimal.Decimal  `json:"amount"`
	Merchant  string           `json:"merchant"`
	Reference string           `json:"reference"`
}

type DebitApproved struct {
	BaseEvent
	CardID shared.CardID   `json:"cardId"`
	Amount decimal.Decimal `json:"amount"`
}

type DebitDeclined struct {
	BaseEvent
	CardID shared.CardID   `json:"cardId"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}
