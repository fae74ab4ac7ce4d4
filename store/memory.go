package store

import (
	"fmt"
	"sync"

	"corebank/domain"
	"corebank/events"
)

// MemoryJournal is the in-process implementation used by tests and the CLI
// demo commands. Streams are copied on read so callers can never alias the
// journal's backing slices.
type MemoryJournal struct {
	sync.RWMutex
	streams   map[string][]events.Event
	deleted   map[string]int
	snapshots map[string]*domain.Snapshot
	byTag     map[string][]events.Event
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		streams:   make(map[string][]events.Event),
		deleted:   make(map[string]int),
		snapshots: make(map[string]*domain.Snapshot),
		byTag:     make(map[string][]events.Event),
	}
}

func (j *MemoryJournal) AppendEvents(entityID string, expectedSeq int, evs []events.Event) (int, error) {
	if len(evs) == 0 {
		return expectedSeq, nil
	}
	j.Lock()
	defer j.Unlock()

	current := j.currentSeqLocked(entityID)
	if current != expectedSeq {
		return current, fmt.Errorf("%w: entity %s expected %d, have %d",
			ErrConflict, entityID, expectedSeq, current)
	}

	next := expectedSeq
	for _, ev := range evs {
		base := ev.GetBase()
		next++
		if base.Version != next {
			return current, fmt.Errorf("journal: entity %s event %s has version %d, expected %d",
				entityID, base.EventID, base.Version, next)
		}
		if base.EntityID != entityID {
			return current, fmt.Errorf("journal: stream %s got event for entity %s",
				entityID, base.EntityID)
		}
	}

	j.streams[entityID] = append(j.streams[entityID], evs...)
	for _, ev := range evs {
		for _, tag := range TagsOf(ev) {
			j.byTag[tag] = append(j.byTag[tag], ev)
		}
	}
	return next, nil
}

func (j *MemoryJournal) ReadEvents(entityID string, fromSeq, toSeq int) ([]events.Event, error) {
	j.RLock()
	defer j.RUnlock()

	floor := j.deleted[entityID]
	if fromSeq < floor {
		fromSeq = floor
	}

	var out []events.Event
	for _, ev := range j.streams[entityID] {
		v := ev.GetBase().Version
		if v <= fromSeq {
			continue
		}
		if toSeq > 0 && v > toSeq {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}

func (j *MemoryJournal) HighestSeq(entityID string) (int, error) {
	j.RLock()
	defer j.RUnlock()
	return j.currentSeqLocked(entityID), nil
}

func (j *MemoryJournal) currentSeqLocked(entityID string) int {
	if stream := j.streams[entityID]; len(stream) > 0 {
		return stream[len(stream)-1].GetBase().Version
	}
	return j.deleted[entityID]
}

func (j *MemoryJournal) WriteSnapshot(snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("journal: nil snapshot")
	}
	j.Lock()
	defer j.Unlock()
	j.snapshots[snap.EntityID] = snap
	return nil
}

func (j *MemoryJournal) ReadLatestSnapshot(entityID string) (*domain.Snapshot, bool, error) {
	j.RLock()
	defer j.RUnlock()

	snap, ok := j.snapshots[entityID]
	if !ok {
		return nil, false, nil
	}
	state := make([]byte, len(snap.State))
	copy(state, snap.State)
	cp := *snap
	cp.State = state
	return &cp, true, nil
}

func (j *MemoryJournal) DeleteEventsUpTo(entityID string, seq int) error {
	j.Lock()
	defer j.Unlock()

	stream := j.streams[entityID]
	if len(stream) == 0 {
		return nil
	}
	high := stream[len(stream)-1].GetBase().Version
	if seq <= 0 || seq > high {
		seq = high
	}

	kept := stream[:0:0]
	for _, ev := range stream {
		if ev.GetBase().Version > seq {
			kept = append(kept, ev)
		}
	}
	j.streams[entityID] = kept
	if seq > j.deleted[entityID] {
		j.deleted[entityID] = seq
	}
	return nil
}

func (j *MemoryJournal) CurrentEventsByTag(tag string) ([]events.Event, error) {
	j.RLock()
	defer j.RUnlock()

	tagged := j.byTag[tag]
	out := make([]events.Event, len(tagged))
	copy(out, tagged)
	return out, nil
}
