package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"corebank/shared"
)

// Snapshot is a point-in-time serialization of an aggregate, written on
// passivation and on the snapshot-frequency boundary. Seq is the journal
// sequence the snapshot covers; recovery replays events after it.
type Snapshot struct {
	EntityID  string    `json:"entityId"`
	Seq       int       `json:"seq"`
	State     []byte    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

func SnapshotAccount(a *Account) (*Snapshot, error) {
	state, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal account %s for snapshot: %w", a.ID, err)
	}
	return &Snapshot{
		EntityID:  string(a.ID),
		Seq:       a.Version,
		State:     state,
		Timestamp: time.Now().UTC(),
	}, nil
}

func AccountFromSnapshot(snap *Snapshot) (*Account, error) {
	var a Account
	if err := json.Unmarshal(snap.State, &a); err != nil {
		return nil, fmt.Errorf("unmarshal account snapshot %s (seq %d): %w", snap.EntityID, snap.Seq, err)
	}
	if a.Recipients == nil {
		a.Recipients = make(map[string]shared.TransferRecipient)
	}
	if a.InFlight == nil {
		a.InFlight = make(map[uuid.UUID]InFlightTransfer)
	}
	if a.FailedDomestic == nil {
		a.FailedDomestic = make(map[uuid.UUID]FailedDomesticTransfer)
	}
	a.Version = snap.Seq
	return &a, nil
}

func SnapshotEmployee(e *Employee) (*Snapshot, error) {
	state, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal employee %s for snapshot: %w", e.ID, err)
	}
	return &Snapshot{
		EntityID:  string(e.ID),
		Seq:       e.Version,
		State:     state,
		Timestamp: time.Now().UTC(),
	}, nil
}

func EmployeeFromSnapshot(snap *Snapshot) (*Employee, error) {
	var e Employee
	if err := json.Unmarshal(snap.State, &e); err != nil {
		return nil, fmt.Errorf("unmarshal employee snapshot %s (seq %d): %w", snap.EntityID, snap.Seq, err)
	}
	if e.Cards == nil {
		e.Cards = make(map[shared.CardID]*Card)
	}
	e.Version = snap.Seq
	return &e, nil
}
