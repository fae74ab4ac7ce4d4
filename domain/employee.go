package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"corebank/events"
	"corebank/shared"
)

type InviteStatus string

const (
	InvitePending   InviteStatus = "Pending"
	InviteConfirmed InviteStatus = "Confirmed"
)

// Card is an employee's purchase instrument. Spend accrues per day and per
// month with reset-if-stale-date semantics, mirroring the account's debit
// counters.
type Card struct {
	ID           shared.CardID    `json:"id"`
	AccountID    shared.AccountID `json:"accountId"`
	LastFour     string           `json:"lastFour"`
	Virtual      bool             `json:"virtual"`
	Locked       bool             `json:"locked"`
	DailyLimit   decimal.Decimal  `json:"dailyLimit"`
	MonthlyLimit decimal.Decimal  `json:"monthlyLimit"`
	DailySpend   decimal.Decimal  `json:"dailySpend"`
	MonthlySpend decimal.Decimal  `json:"monthlySpend"`
	LastSpendDay time.Time        `json:"lastSpendDay"`
}

// Employee couples to accounts only through card-backed debits: a purchase
// request produces DebitRequested, the account decides the Debit, and the
// outcome returns as ApproveDebit or DeclineDebit.
type Employee struct {
	ID          shared.EmployeeID       `json:"id"`
	OrgID       shared.OrgID            `json:"orgId"`
	Name        string                  `json:"name"`
	Email       string                  `json:"email"`
	Role        string                  `json:"role"`
	InviteToken string                  `json:"inviteToken"`
	Invite      InviteStatus            `json:"invite"`
	Cards       map[shared.CardID]*Card `json:"cards"`
	Version     int                     `json:"version"`
}

func NewEmployee(id shared.EmployeeID) *Employee {
	return &Employee{
		ID:     id,
		Invite: InvitePending,
		Cards:  make(map[shared.CardID]*Card),
	}
}

func (e *Employee) Clone() *Employee {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Cards = make(map[shared.CardID]*Card, len(e.Cards))
	for k, v := range e.Cards {
		c := *v
		cp.Cards[k] = &c
	}
	return &cp
}

// DecideEmployee validates a command against employee state; the same
// decide/apply contract as the account aggregate.
func DecideEmployee(e *Employee, cmd Command) (events.Event, error) {
	if create, ok := cmd.(CreateEmployee); ok {
		if e != nil && e.Version > 0 {
			return nil, AccountNotReadyToActivateError{}
		}
		if create.Name == "" || create.Email == "" {
			return nil, ValidationFailure{Field: "employee", Reason: "name and email required"}
		}
		return events.EmployeeCreated{
			BaseEvent:   events.NewBaseEvent(create.Meta(), 1, events.EmployeeCreatedType),
			Name:        create.Name,
			Email:       create.Email,
			Role:        create.Role,
			InviteToken: uuid.NewString(),
		}, nil
	}

	if e == nil || e.Version == 0 {
		return nil, ValidationFailure{Field: "entityId", Reason: "employee does not exist"}
	}

	next := e.Version + 1
	m := cmd.Meta()

	switch c := cmd.(type) {
	case ConfirmEmployeeInvite:
		if e.Invite == InviteConfirmed {
			return nil, AccountNotReadyToActivateError{}
		}
		if c.Token != e.InviteToken {
			return nil, ValidationFailure{Field: "token", Reason: "invite token mismatch"}
		}
		return events.EmployeeInviteConfirmed{
			BaseEvent: events.NewBaseEvent(m, next, events.EmployeeInviteConfirmedType),
		}, nil

	case IssueCard:
		if e.Invite != InviteConfirmed {
			return nil, ValidationFailure{Field: "invite", Reason: "invite not confirmed"}
		}
		id := c.CardID
		if id == "" {
			id = shared.CardID(uuid.NewString())
		}
		if _, dup := e.Cards[id]; dup {
			return nil, ValidationFailure{Field: "cardId", Reason: "card already issued"}
		}
		if c.AccountID == "" {
			return nil, ValidationFailure{Field: "accountId", Reason: "required"}
		}
		return events.CardIssued{
			BaseEvent:    events.NewBaseEvent(m, next, events.CardIssuedType),
			CardID:       id,
			AccountID:    c.AccountID,
			LastFour:     c.LastFour,
			Virtual:      c.Virtual,
			DailyLimit:   c.DailyLimit,
			MonthlyLimit: c.MonthlyLimit,
		}, nil

	case LockCard:
		card, ok := e.Cards[c.CardID]
		if !ok {
			return nil, ValidationFailure{Field: "cardId", Reason: "unknown card"}
		}
		if card.Locked {
			return nil, AccountNotReadyToActivateError{}
		}
		return events.CardLocked{
			BaseEvent: events.NewBaseEvent(m, next, events.CardLockedType),
			CardID:    c.CardID,
		}, nil

	case UnlockCard:
		card, ok := e.Cards[c.CardID]
		if !ok {
			return nil, ValidationFailure{Field: "cardId", Reason: "unknown card"}
		}
		if !card.Locked {
			return nil, AccountNotReadyToActivateError{}
		}
		return events.CardUnlocked{
			BaseEvent: events.NewBaseEvent(m, next, events.CardUnlockedType),
			CardID:    c.CardID,
		}, nil

	case RequestPurchase:
		card, ok := e.Cards[c.CardID]
		if !ok {
			return nil, ValidationFailure{Field: "cardId", Reason: "unknown card"}
		}
		if card.Locked {
			return nil, AccountCardLockedError{CardID: c.CardID}
		}
		if !c.Amount.IsPositive() {
			return nil, DebitAmountNotPositiveError{Amount: c.Amount}
		}
		daily, monthly := card.accruedAt(m.Timestamp)
		if card.DailyLimit.IsPositive() && daily.Add(c.Amount).GreaterThan(card.DailyLimit) {
			return nil, ExceededDailyDebitError{Limit: card.DailyLimit, Accrued: daily}
		}
		if card.MonthlyLimit.IsPositive() && monthly.Add(c.Amount).GreaterThan(card.MonthlyLimit) {
			return nil, ExceededMonthlyDebitError{Limit: card.MonthlyLimit, Accrued: monthly}
		}
		return events.DebitRequested{
			BaseEvent: events.NewBaseEvent(m, next, events.DebitRequestedType),
			CardID:    c.CardID,
			AccountID: card.AccountID,
			Amount:    c.Amount,
			Merchant:  c.Merchant,
			Reference: c.Reference,
		}, nil

	case ApproveDebit:
		return events.DebitApproved{
			BaseEvent: events.NewBaseEvent(m, next, events.DebitApprovedType),
			CardID:    c.CardID,
			Amount:    c.Amount,
		}, nil

	case DeclineDebit:
		return events.DebitDeclined{
			BaseEvent: events.NewBaseEvent(m, next, events.DebitDeclinedType),
			CardID:    c.CardID,
			Amount:    c.Amount,
			Reason:    c.Reason,
		}, nil

	default:
		return nil, ValidationFailure{Field: "command", Reason: fmt.Sprintf("unsupported command %T", cmd)}
	}
}

// ApplyEmployee folds one event into employee state.
func (e *Employee) Apply(event events.Event) error {
	base := event.GetBase()
	if base.Version != e.Version+1 {
		return fmt.Errorf("apply %s on employee %s: expected version %d, got %d",
			base.Type, e.ID, e.Version+1, base.Version)
	}

	switch ev := event.(type) {
	case events.EmployeeCreated:
		e.ID = shared.EmployeeID(base.EntityID)
		e.OrgID = base.OrgID
		e.Name = ev.Name
		e.Email = ev.Email
		e.Role = ev.Role
		e.InviteToken = ev.InviteToken
		e.Invite = InvitePending

	case events.EmployeeInviteConfirmed:
		e.Invite = InviteConfirmed

	case events.CardIssued:
		e.Cards[ev.CardID] = &Card{
			ID:           ev.CardID,
			AccountID:    ev.AccountID,
			LastFour:     ev.LastFour,
			Virtual:      ev.Virtual,
			DailyLimit:   ev.DailyLimit,
			MonthlyLimit: ev.MonthlyLimit,
		}

	case events.CardLocked:
		if card, ok := e.Cards[ev.CardID]; ok {
			card.Locked = true
		}
	case events.CardUnlocked:
		if card, ok := e.Cards[ev.CardID]; ok {
			card.Locked = false
		}

	case events.DebitRequested:
		if card, ok := e.Cards[ev.CardID]; ok {
			daily, monthly := card.accruedAt(base.Timestamp)
			card.DailySpend = daily.Add(ev.Amount)
			card.MonthlySpend = monthly.Add(ev.Amount)
			card.LastSpendDay = shared.DateOf(base.Timestamp)
		}

	case events.DebitApproved:
		// Spend was accrued at request time.

	case events.DebitDeclined:
		if card, ok := e.Cards[ev.CardID]; ok {
			card.DailySpend = card.DailySpend.Sub(ev.Amount)
			card.MonthlySpend = card.MonthlySpend.Sub(ev.Amount)
		}

	default:
		return fmt.Errorf("apply: unknown event type %T for employee %s", event, e.ID)
	}

	e.Version = base.Version
	return nil
}

func (e *Employee) ApplyAll(history []events.Event) error {
	for _, event := range history {
		if err := e.Apply(event); err != nil {
			base := event.GetBase()
			return fmt.Errorf("replay failed at event %s (%s, v%d): %w",
				base.EventID, base.Type, base.Version, err)
		}
	}
	return nil
}

// accruedAt applies the stale-window reset: spend from a previous day or
// month does not count against the current window.
func (c *Card) accruedAt(at time.Time) (daily, monthly decimal.Decimal) {
	daily = c.DailySpend
	monthly = c.MonthlySpend
	if !shared.SameDay(c.LastSpendDay, at) {
		daily = decimal.Zero
	}
	if !shared.SameMonth(c.LastSpendDay, at) {
		monthly = decimal.Zero
	}
	return daily, monthly
}
