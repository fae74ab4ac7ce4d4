package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// The codec turns typed events into self-describing JSON records so durable
// journals can round-trip them. Every event type is registered once at init;
// packages that define their own journal events (the shard index does)
// register theirs the same way.

type decodeFunc func(data []byte) (Event, error)

var (
	codecMu  sync.RWMutex
	decoders = make(map[EventType]decodeFunc)
)

type record struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Register makes an event type decodable. Registering the same type twice
// panics: it is always a wiring bug.
func Register[E Event](t EventType) {
	codecMu.Lock()
	defer codecMu.Unlock()
	if _, dup := decoders[t]; dup {
		panic(fmt.Sprintf("events: duplicate codec registration for %q", t))
	}
	decoders[t] = func(data []byte) (Event, error) {
		var e E
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		return e, nil
	}
}

func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.GetBase().Type, err)
	}
	return json.Marshal(record{Type: e.GetBase().Type, Data: data})
}

func Decode(raw []byte) (Event, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode event record: %w", err)
	}
	codecMu.RLock()
	dec, ok := decoders[rec.Type]
	codecMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decode event record: unknown type %q", rec.Type)
	}
	return dec(rec.Data)
}

func init() {
	Register[AccountCreated](AccountCreatedType)
	Register[CashDeposited](CashDepositedType)
	Register[Debited](DebitedType)
	Register[MaintenanceFeeDebited](MaintenanceFeeDebitedType)
	Register[MaintenanceFeeSkipped](MaintenanceFeeSkippedType)
	Register[DailyDebitLimitUpdated](DailyDebitLimitUpdatedType)
	Register[InternalRecipientRegistered](InternalRecipientRegisteredType)
	Register[DomesticRecipientRegistered](DomesticRecipientRegisteredType)
	Register[DomesticRecipientEdited](DomesticRecipientEditedType)
	Register[TransferWithinOrgPending](TransferWithinOrgPendingType)
	Register[TransferWithinOrgApproved](TransferWithinOrgApprovedType)
	Register[TransferWithinOrgRejected](TransferWithinOrgRejectedType)
	Register[TransferWithinOrgDeposited](TransferWithinOrgDepositedType)
	Register[TransferBetweenOrgsPending](TransferBetweenOrgsPendingType)
	Register[TransferBetweenOrgsApproved](TransferBetweenOrgsApprovedType)
	Register[TransferBetweenOrgsRejected](TransferBetweenOrgsRejectedType)
	Register[TransferBetweenOrgsDeposited](TransferBetweenOrgsDepositedType)
	Register[TransferBetweenOrgsScheduled](TransferBetweenOrgsScheduledType)
	Register[DomesticTransferPending](DomesticTransferPendingType)
	Register[DomesticTransferApproved](DomesticTransferApprovedType)
	Register[DomesticTransferRejected](DomesticTransferRejectedType)
	Register[DomesticTransferProgressUpdated](DomesticTransferProgressUpdatedType)
	Register[DomesticTransferScheduled](DomesticTransferScheduledType)
	Register[AutomatedTransferPending](AutomatedTransferPendingType)
	Register[AutomatedTransferApproved](AutomatedTransferApprovedType)
	Register[AutomatedTransferRejected](AutomatedTransferRejectedType)
	Register[AutomatedTransferDeposited](AutomatedTransferDepositedType)
	Register[AutoTransferRuleConfigured](AutoTransferRuleConfiguredType)
	Register[PlatformPaymentPaid](PlatformPaymentPaidType)
	Register[PlatformPaymentDeposited](PlatformPaymentDepositedType)
	Register[BillingCycleStarted](BillingCycleStartedType)
	Register[AccountClosed](AccountClosedType)

	Register[EmployeeCreated](EmployeeCreatedType)
	Register[EmployeeInviteConfirmed](EmployeeInviteConfirmedType)
	Register[CardIssued](CardIssuedType)
	Register[CardLocked](CardLockedType)
	Register[CardUnlocked](CardUnlockedType)
	Register[DebitRequested](DebitRequestedType)
	Register[DebitApproved](DebitApprovedType)
	Register[DebitDeclined](DebitDeclinedType)
}
