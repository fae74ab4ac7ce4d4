package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"corebank/domain"
	"corebank/events"
)

var (
	bucketEvents    = []byte("events")
	bucketSnapshots = []byte("snapshots")
	bucketSeq       = []byte("seq")
	bucketTags      = []byte("tags")
)

// BoltJournal persists the event log, snapshots and tag index in a single
// bbolt file. Events live in one sub-bucket per entity keyed by big-endian
// sequence number, so cursor order is replay order.
type BoltJournal struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEvents, bucketSnapshots, bucketSeq, bucketTags} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltJournal{db: db}, nil
}

func (j *BoltJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func seqKey(seq int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(seq))
	return k
}

func (j *BoltJournal) AppendEvents(entityID string, expectedSeq int, evs []events.Event) (int, error) {
	if len(evs) == 0 {
		return expectedSeq, nil
	}

	next := expectedSeq
	err := j.db.Update(func(tx *bolt.Tx) error {
		seqBkt := tx.Bucket(bucketSeq)
		current := 0
		if raw := seqBkt.Get([]byte(entityID)); raw != nil {
			current = int(binary.BigEndian.Uint64(raw))
		}
		if current != expectedSeq {
			return fmt.Errorf("%w: entity %s expected %d, have %d",
				ErrConflict, entityID, expectedSeq, current)
		}

		stream, err := tx.Bucket(bucketEvents).CreateBucketIfNotExists([]byte(entityID))
		if err != nil {
			return err
		}
		tags := tx.Bucket(bucketTags)

		for _, ev := range evs {
			base := ev.GetBase()
			next++
			if base.Version != next {
				return fmt.Errorf("journal: entity %s event %s has version %d, expected %d",
					entityID, base.EventID, base.Version, next)
			}
			if base.EntityID != entityID {
				return fmt.Errorf("journal: stream %s got event for entity %s",
					entityID, base.EntityID)
			}

			raw, err := events.Encode(ev)
			if err != nil {
				return err
			}
			if err := stream.Put(seqKey(next), raw); err != nil {
				return err
			}
			for _, tag := range TagsOf(ev) {
				tagBkt, err := tags.CreateBucketIfNotExists([]byte(tag))
				if err != nil {
					return err
				}
				n, err := tagBkt.NextSequence()
				if err != nil {
					return err
				}
				if err := tagBkt.Put(seqKey(int(n)), raw); err != nil {
					return err
				}
			}
		}
		return seqBkt.Put([]byte(entityID), seqKey(next))
	})
	if err != nil {
		return expectedSeq, err
	}
	return next, nil
}

func (j *BoltJournal) ReadEvents(entityID string, fromSeq, toSeq int) ([]events.Event, error) {
	var out []events.Event
	err := j.db.View(func(tx *bolt.Tx) error {
		stream := tx.Bucket(bucketEvents).Bucket([]byte(entityID))
		if stream == nil {
			return nil
		}
		c := stream.Cursor()
		for k, v := c.Seek(seqKey(fromSeq + 1)); k != nil; k, v = c.Next() {
			seq := int(binary.BigEndian.Uint64(k))
			if toSeq > 0 && seq > toSeq {
				break
			}
			ev, err := events.Decode(v)
			if err != nil {
				return fmt.Errorf("entity %s seq %d: %w", entityID, seq, err)
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

func (j *BoltJournal) HighestSeq(entityID string) (int, error) {
	seq := 0
	err := j.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketSeq).Get([]byte(entityID)); raw != nil {
			seq = int(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	return seq, err
}

func (j *BoltJournal) WriteSnapshot(snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("journal: nil snapshot")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(snap.EntityID), payload)
	})
}

func (j *BoltJournal) ReadLatestSnapshot(entityID string) (*domain.Snapshot, bool, error) {
	var snap *domain.Snapshot
	err := j.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSnapshots).Get([]byte(entityID))
		if raw == nil {
			return nil
		}
		var s domain.Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		snap = &s
		return nil
	})
	if err != nil || snap == nil {
		return nil, false, err
	}
	return snap, true, nil
}

func (j *BoltJournal) DeleteEventsUpTo(entityID string, seq int) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		stream := tx.Bucket(bucketEvents).Bucket([]byte(entityID))
		if stream == nil {
			return nil
		}
		c := stream.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			s := int(binary.BigEndian.Uint64(k))
			if seq > 0 && s > seq {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *BoltJournal) CurrentEventsByTag(tag string) ([]events.Event, error) {
	var out []events.Event
	err := j.db.View(func(tx *bolt.Tx) error {
		tagBkt := tx.Bucket(bucketTags).Bucket([]byte(tag))
		if tagBkt == nil {
			return nil
		}
		c := tagBkt.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ev, err := events.Decode(v)
			if err != nil {
				return fmt.Errorf("tag %s: %w", tag, err)
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}
