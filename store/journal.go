package store

import (
	"errors"

	"corebank/domain"
	"corebank/events"
)

var (
	// ErrConflict is the optimistic-lock failure: the stream moved past the
	// expected sequence between load and append.
	ErrConflict = errors.New("journal: sequence conflict")
	ErrNotFound = errors.New("journal: entity not found")
)

// Journal is the append-only per-entity event log plus snapshot storage the
// entity runtime persists through. Guarantees required of implementations:
// per-entity total order, durable commit before return, optimistic
// concurrency on the expected sequence.
type Journal interface {
	// AppendEvents commits events after expectedSeq and returns the new
	// high-water sequence. Event versions must continue the sequence
	// gap-free; a stale expectedSeq yields ErrConflict.
	AppendEvents(entityID string, expectedSeq int, evs []events.Event) (int, error)

	// ReadEvents streams [fromSeq+1, toSeq]; toSeq <= 0 means no upper bound.
	ReadEvents(entityID string, fromSeq, toSeq int) ([]events.Event, error)

	// HighestSeq reports the current sequence, 0 for an unknown entity.
	HighestSeq(entityID string) (int, error)

	WriteSnapshot(snap *domain.Snapshot) error
	ReadLatestSnapshot(entityID string) (*domain.Snapshot, bool, error)

	// DeleteEventsUpTo soft-deletes the entity's events up to and including
	// seq. The sequence counter is preserved so later appends stay
	// monotonic.
	DeleteEventsUpTo(entityID string, seq int) error

	// CurrentEventsByTag returns every committed event carrying the tag in
	// commit order, for read-model rebuild and closure reconciliation.
	CurrentEventsByTag(tag string) ([]events.Event, error)
}

// TagsOf derives the tags an event is indexed under: its concrete type plus
// a coarse category tag.
func TagsOf(ev events.Event) []string {
	base := ev.GetBase()
	tags := []string{string(base.Type)}
	switch ev.(type) {
	case events.AccountClosed:
		tags = append(tags, TagAccountClosed)
	}
	return tags
}

const TagAccountClosed = "account-closed"
