package shared

import (
	"time"

	"github.com/google/uuid"
)

type AccountID string

type OrgID string

type EmployeeID string

type CardID string

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// CommandMeta is carried by every command entering the system. The same
// fields are stamped onto the event a command produces, so a multi-step
// workflow (pending -> approved/rejected -> deposited) can be correlated
// across aggregates.
type CommandMeta struct {
	EntityID      string    `json:"entityId"`
	OrgID         OrgID     `json:"orgId"`
	CorrelationID uuid.UUID `json:"correlationId"`
	InitiatedByID string    `json:"initiatedById"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewCommandMeta(entityID string, orgID OrgID, initiatedBy string) CommandMeta {
	return CommandMeta{
		EntityID:      entityID,
		OrgID:         orgID,
		CorrelationID: uuid.New(),
		InitiatedByID: initiatedBy,
		Timestamp:     time.Now().UTC(),
	}
}

// WithCorrelation returns a copy of the meta re-stamped for a follow-up
// command in the same workflow: same correlation id, fresh timestamp,
// retargeted entity.
func (m CommandMeta) WithCorrelation(entityID string, orgID OrgID) CommandMeta {
	return CommandMeta{
		EntityID:      entityID,
		OrgID:         orgID,
		CorrelationID: m.CorrelationID,
		InitiatedByID: m.InitiatedByID,
		Timestamp:     time.Now().UTC(),
	}
}

// DateOf truncates a timestamp to its UTC calendar date. Debit accrual
// windows compare dates, never instants.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

func SameMonth(a, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	return au.Year() == bu.Year() && au.Month() == bu.Month()
}
