package events

import (
	"time"

	"github.com/google/uuid"

	"corebank/shared"
)

type EventType string

// BaseEvent carries the envelope fields every domain event shares. Version is
// the sequence number of the aggregate *after* this event is applied; the
// journal enforces that versions are gap-free and monotonic per entity.
type BaseEvent struct {
	EventID       uuid.UUID    `json:"eventId"`
	EntityID      string       `json:"entityId"`
	OrgID         shared.OrgID `json:"orgId"`
	CorrelationID uuid.UUID    `json:"correlationId"`
	InitiatedByID string       `json:"initiatedById"`
	Version       int          `json:"version"`
	Timestamp     time.Time    `json:"timestamp"`
	Type          EventType    `json:"type"`
}

type Event interface {
	GetBase() BaseEvent
}

func (e BaseEvent) GetBase() BaseEvent {
	return e
}

// Account events.
const (
	AccountCreatedType              EventType = "AccountCreated"
	CashDepositedType               EventType = "CashDeposited"
	DebitedType                     EventType = "Debited"
	MaintenanceFeeDebitedType       EventType = "MaintenanceFeeDebited"
	MaintenanceFeeSkippedType       EventType = "MaintenanceFeeSkipped"
	DailyDebitLimitUpdatedType      EventType = "DailyDebitLimitUpdated"
	InternalRecipientRegisteredType EventType = "InternalRecipientRegistered"
	DomesticRecipientRegisteredType EventType = "DomesticRecipientRegistered"
	DomesticRecipientEditedType     EventType = "DomesticRecipientEdited"

	TransferWithinOrgPendingType     EventType = "InternalTransferWithinOrgPending"
	TransferWithinOrgApprovedType    EventType = "InternalTransferWithinOrgApproved"
	TransferWithinOrgRejectedType    EventType = "InternalTransferWithinOrgRejected"
	TransferWithinOrgDepositedType   EventType = "InternalTransferWithinOrgDeposited"
	TransferBetweenOrgsPendingType   EventType = "InternalTransferBetweenOrgsPending"
	TransferBetweenOrgsApprovedType  EventType = "InternalTransferBetweenOrgsApproved"
	TransferBetweenOrgsRejectedType  EventType = "InternalTransferBetweenOrgsRejected"
	TransferBetweenOrgsDepositedType EventType = "InternalTransferBetweenOrgsDeposited"
	TransferBetweenOrgsScheduledType EventType = "InternalTransferBetweenOrgsScheduled"

	DomesticTransferPendingType         EventType = "DomesticTransferPending"
	DomesticTransferApprovedType        EventType = "DomesticTransferApproved"
	DomesticTransferRejectedType        EventType = "DomesticTransferRejected"
	DomesticTransferProgressUpdatedType EventType = "DomesticTransferProgressUpdated"
	DomesticTransferScheduledType       EventType = "DomesticTransferScheduled"

	AutomatedTransferPendingType   EventType = "InternalAutomatedTransferPending"
	AutomatedTransferApprovedType  EventType = "InternalAutomatedTransferApproved"
	AutomatedTransferRejectedType  EventType = "InternalAutomatedTransferRejected"
	AutomatedTransferDepositedType EventType = "InternalAutomatedTransferDeposited"

	AutoTransferRuleConfiguredType EventType = "AutoTransferRuleConfigured"
	PlatformPaymentPaidType        EventType = "PlatformPaymentPaid"
	PlatformPaymentDepositedType   EventType = "PlatformPaymentDeposited"
	BillingCycleStartedType        EventType = "BillingCycleStarted"
	AccountClosedType              EventType = "AccountClosed"
)

// Employee events.
const (
	EmployeeCreatedType         EventType = "EmployeeCreated"
	EmployeeInviteConfirmedType EventType = "EmployeeInviteConfirmed"
	CardIssuedType              EventType = "CardIssued"
	CardLockedType              EventType = "CardLocked"
	CardUnlockedType            EventType = "CardUnlocked"
	DebitRequestedType          EventType = "DebitRequested"
	DebitApprovedType           EventType = "DebitApproved"
	DebitDeclinedType           EventType = "DebitDeclined"
)

// CommandMeta rebuilds the envelope meta for follow-up commands in the same
// workflow, preserving the correlation id.
func (e BaseEvent) CommandMeta() shared.CommandMeta {
	return shared.CommandMeta{
		EntityID:      e.EntityID,
		OrgID:         e.OrgID,
		CorrelationID: e.CorrelationID,
		InitiatedByID: e.InitiatedByID,
		Timestamp:     e.Timestamp,
	}
}

func NewBaseEvent(meta shared.CommandMeta, version int, eventType EventType) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New(),
		EntityID:      meta.EntityID,
		OrgID:         meta.OrgID,
		CorrelationID: meta.CorrelationID,
		InitiatedByID: meta.InitiatedByID,
		Version:       version,
		Timestamp:     time.Now().UTC(),
		Type:          eventType,
	}
}
