package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"corebank/events"
	"corebank/notify"
	"corebank/shared"
)

// OpenPool connects the billing projection's Postgres pool.
func OpenPool(uri string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("connect pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// ProjectFromBus maintains the in-memory read model off the broadcast bus,
// the same role the SQL projection writer plays out of process. The
// subscription is never cancelled; it lives as long as the node.
func ProjectFromBus(bus *notify.Broadcast, rm *MemoryReadModel) {
	ch, _ := bus.SubscribeEvents(notify.SubscribeAll, 1024)
	go func() {
		for ev := range ch {
			id := shared.AccountID(ev.GetBase().EntityID)
			switch e := ev.(type) {
			case events.AccountCreated:
				rm.SetActive(id, time.Time{})
			case events.BillingCycleStarted:
				rm.SetActive(id, time.Date(e.Year, time.Month(e.Month), 1, 0, 0, 0, 0, time.UTC))
			case events.AccountClosed:
				rm.Remove(id)
			}
		}
	}()
}
