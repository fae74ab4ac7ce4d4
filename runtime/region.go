package runtime

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrPassivate is returned from Receive when the entity wants to leave
	// memory now. Its state is already snapshotted by the time it returns
	// this.
	ErrPassivate = errors.New("runtime: entity passivated")

	// ErrStop removes the entity without a restart, for entities whose
	// stream has been finalized.
	ErrStop = errors.New("runtime: entity stopped")

	ErrRegionStopped = errors.New("runtime: region stopped")
)

// Entity is a single-threaded message handler. The runtime guarantees
// Receive is never called concurrently for the same entity ID and that
// messages from one sender arrive in order.
type Entity interface {
	Receive(ctx context.Context, msg any) error
}

// Factory creates a fresh, unrecovered entity. It is called on first
// message, after a restart, and when waking a remembered entity.
type Factory func(entityID string) Entity

type Config struct {
	Name           string
	Shards         int
	MailboxSize    int
	PassivateAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 16
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 256
	}
	if c.PassivateAfter <= 0 {
		c.PassivateAfter = 2 * time.Minute
	}
	return c
}

// Region is a sharded collection of entities of one kind. Entities are
// spawned on first message, keep a FIFO mailbox served by their own
// goroutine, and passivate after an idle period.
type Region struct {
	cfg     Config
	factory Factory
	index   *ShardIndex
	log     *zap.Logger

	shards []*shard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegion(cfg Config, factory Factory, index *ShardIndex, log *zap.Logger) *Region {
	cfg = cfg.withDefaults()
	r := &Region{
		cfg:     cfg,
		factory: factory,
		index:   index,
		log:     log.Named(cfg.Name),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.shards = make([]*shard, cfg.Shards)
	for i := range r.shards {
		r.shards[i] = &shard{region: r, n: i, entities: make(map[string]*mailbox)}
	}
	return r
}

// Start replays the region's remembered-entity index and wakes every
// remembered entity with a Started message.
func (r *Region) Start(ctx context.Context) error {
	if r.index == nil {
		return nil
	}
	g, _ := errgroup.WithContext(ctx)
	for _, s := range r.shards {
		g.Go(func() error {
			ids, err := r.index.remembered(r.cfg.Name, s.n)
			if err != nil {
				return err
			}
			for _, id := range ids {
				r.log.Info("waking remembered entity", zap.String("entity", id))
				r.Tell(id, Started{})
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop passivates every live entity and waits for the mailboxes to drain.
func (r *Region) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Region) shardOf(entityID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(entityID))
	return r.shards[int(h.Sum32())%len(r.shards)]
}

// Tell enqueues a message for the entity, spawning it if needed. Delivery is
// FIFO per sender goroutine.
func (r *Region) Tell(entityID string, msg any) {
	r.shardOf(entityID).post(entityID, msg)
}

// Remember marks the entity for revival after a region restart. Idempotent.
func (r *Region) Remember(entityID string) error {
	if r.index == nil {
		return nil
	}
	return r.index.remember(r.cfg.Name, r.shardOf(entityID).n, entityID)
}

// Forget removes the entity from the revival index once it has no pending
// work left.
func (r *Region) Forget(entityID string) error {
	if r.index == nil {
		return nil
	}
	return r.index.forget(r.cfg.Name, r.shardOf(entityID).n, entityID)
}

type shard struct {
	region *Region
	n      int

	mu       sync.Mutex
	entities map[string]*mailbox
}

type mailbox struct {
	id     string
	ch     chan any
	closed bool

	// pending counts senders that acquired the mailbox but have not yet
	// finished their channel send; the worker never passivates while it is
	// nonzero.
	pending int
}

func (s *shard) post(entityID string, msg any) {
	s.mu.Lock()
	mb, ok := s.entities[entityID]
	if !ok || mb.closed {
		mb = &mailbox{id: entityID, ch: make(chan any, s.region.cfg.MailboxSize)}
		s.entities[entityID] = mb
		s.region.wg.Add(1)
		go s.serve(mb)
	}
	mb.pending++
	s.mu.Unlock()

	mb.ch <- msg

	s.mu.Lock()
	mb.pending--
	s.mu.Unlock()
}

// serve is the entity's single goroutine: it owns the entity value, delivers
// mailbox messages one at a time, restarts the entity on handler errors, and
// passivates it after the idle timeout.
func (s *shard) serve(mb *mailbox) {
	defer s.region.wg.Done()

	ent := s.region.factory(mb.id)
	idle := time.NewTimer(s.region.cfg.PassivateAfter)
	defer idle.Stop()

	for {
		select {
		case msg := <-mb.ch:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.region.cfg.PassivateAfter)

			if s.deliver(mb, &ent, msg) {
				return
			}

		case <-idle.C:
			if s.tryRetire(mb) {
				s.passivate(mb.id, ent)
				return
			}
			idle.Reset(s.region.cfg.PassivateAfter)

		case <-s.region.ctx.Done():
			s.retire(mb)
			s.passivate(mb.id, ent)
			return
		}
	}
}

// deliver runs one message through the entity. A non-sentinel error restarts
// the entity with a fresh instance; it recovers from the journal on its next
// message. Reports whether the worker should exit.
func (s *shard) deliver(mb *mailbox, ent *Entity, msg any) bool {
	err := (*ent).Receive(s.region.ctx, msg)
	switch {
	case err == nil:
		return false

	case errors.Is(err, ErrPassivate), errors.Is(err, ErrStop):
		if s.tryRetire(mb) {
			return true
		}
		// New messages raced in; the entity stays up to serve them.
		if errors.Is(err, ErrStop) {
			*ent = s.region.factory(mb.id)
		}
		return false

	default:
		s.region.log.Error("entity receive failed, restarting",
			zap.String("entity", mb.id),
			zap.Error(err))
		*ent = s.region.factory(mb.id)
		return false
	}
}

// tryRetire removes the mailbox from the shard if nothing is queued or in
// flight toward it.
func (s *shard) tryRetire(mb *mailbox) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(mb.ch) > 0 || mb.pending > 0 {
		return false
	}
	mb.closed = true
	delete(s.entities, mb.id)
	return true
}

// retire removes the mailbox unconditionally; used on region shutdown after
// the context is cancelled and no new sends are expected.
func (s *shard) retire(mb *mailbox) {
	s.mu.Lock()
	mb.closed = true
	delete(s.entities, mb.id)
	s.mu.Unlock()
}

func (s *shard) passivate(entityID string, ent Entity) {
	err := ent.Receive(context.WithoutCancel(s.region.ctx), Passivate{})
	if err != nil && !errors.Is(err, ErrPassivate) && !errors.Is(err, ErrStop) {
		s.region.log.Warn("passivation hook failed",
			zap.String("entity", entityID),
			zap.Error(err))
	}
}
