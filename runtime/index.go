package runtime

import (
	"fmt"
	"sort"
	"sync"

	"corebank/events"
	"corebank/shared"
	"corebank/store"
)

// The shard index is the remember-entities journal: one event stream per
// shard recording which entity IDs must be revived after a restart. It
// reuses the event journal so index durability matches event durability.

const (
	entityRememberedType events.EventType = "runtime.EntityRemembered"
	entityForgottenType  events.EventType = "runtime.EntityForgotten"
)

type entityRemembered struct {
	events.BaseEvent
	RememberedID string `json:"rememberedId"`
}

type entityForgotten struct {
	events.BaseEvent
	ForgottenID string `json:"forgottenId"`
}

func init() {
	events.Register[entityRemembered](entityRememberedType)
	events.Register[entityForgotten](entityForgottenType)
}

type ShardIndex struct {
	mu      sync.Mutex
	journal store.Journal
}

func NewShardIndex(journal store.Journal) *ShardIndex {
	return &ShardIndex{journal: journal}
}

func indexStreamID(region string, shard int) string {
	return fmt.Sprintf("shard-index/%s/%d", region, shard)
}

func (x *ShardIndex) remember(region string, shard int, entityID string) error {
	return x.append(region, shard, entityID, true)
}

func (x *ShardIndex) forget(region string, shard int, entityID string) error {
	return x.append(region, shard, entityID, false)
}

func (x *ShardIndex) append(region string, shard int, entityID string, remember bool) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	streamID := indexStreamID(region, shard)
	seq, err := x.journal.HighestSeq(streamID)
	if err != nil {
		return err
	}

	live, err := x.rememberedLocked(streamID)
	if err != nil {
		return err
	}
	if _, has := live[entityID]; has == remember {
		return nil
	}

	meta := shared.NewCommandMeta(streamID, "", "runtime")
	var ev events.Event
	if remember {
		ev = entityRemembered{
			BaseEvent:    events.NewBaseEvent(meta, seq+1, entityRememberedType),
			RememberedID: entityID,
		}
	} else {
		ev = entityForgotten{
			BaseEvent:   events.NewBaseEvent(meta, seq+1, entityForgottenType),
			ForgottenID: entityID,
		}
	}
	_, err = x.journal.AppendEvents(streamID, seq, []events.Event{ev})
	return err
}

// remembered folds a shard's index stream into the set of live entity IDs,
// in first-remembered order.
func (x *ShardIndex) remembered(region string, shard int) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	live, err := x.rememberedLocked(indexStreamID(region, shard))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return live[ids[i]] < live[ids[j]] })
	return ids, nil
}

func (x *ShardIndex) rememberedLocked(streamID string) (map[string]int, error) {
	history, err := x.journal.ReadEvents(streamID, 0, 0)
	if err != nil {
		return nil, err
	}
	live := make(map[string]int)
	for _, ev := range history {
		switch e := ev.(type) {
		case entityRemembered:
			if _, has := live[e.RememberedID]; !has {
				live[e.RememberedID] = len(live)
			}
		case entityForgotten:
			delete(live, e.ForgottenID)
		}
	}
	return live, nil
}
