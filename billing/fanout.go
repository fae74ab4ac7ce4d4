package billing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"corebank/app"
	"corebank/domain"
	"corebank/shared"
)

// Throttle is the fan-out's token bucket: Burst tokens up front, Count more
// every Per.
type Throttle struct {
	Burst int
	Count int
	Per   time.Duration
}

func (t Throttle) withDefaults() Throttle {
	if t.Burst <= 0 {
		t.Burst = 5
	}
	if t.Count <= 0 {
		t.Count = 25
	}
	if t.Per <= 0 {
		t.Per = time.Second
	}
	return t
}

// Fanout starts one billing cycle per active account. Scheduled monthly; the
// throttle keeps the burst of StartBillingCycle commands from flooding the
// shard mailboxes.
type Fanout struct {
	readModel ReadModel
	accounts  app.Teller
	log       *zap.Logger

	throttle Throttle
	lookback time.Duration

	// OnFinished runs after the stream completes, with the number of
	// accounts billed.
	OnFinished func(billed int)
}

func NewFanout(readModel ReadModel, accounts app.Teller, throttle Throttle, log *zap.Logger) *Fanout {
	return &Fanout{
		readModel: readModel,
		accounts:  accounts,
		log:       log.Named("billing"),
		throttle:  throttle.withDefaults(),
		lookback:  27 * 24 * time.Hour,
	}
}

// Run streams the eligible account ids and emits one StartBillingCycle per
// account through the sharded route. Halts early on context cancellation.
func (f *Fanout) Run(ctx context.Context, period shared.BillingPeriod) error {
	cutoff := time.Now().UTC().Add(-f.lookback)
	ids, err := f.readModel.ActiveAccountIDs(ctx, cutoff)
	if err != nil {
		return err
	}
	f.log.Info("billing cycle fan-out started",
		zap.Int("month", period.Month),
		zap.Int("year", period.Year),
		zap.Int("accounts", len(ids)))

	tokens := f.throttle.Burst
	refill := time.NewTicker(f.throttle.Per)
	defer refill.Stop()

	billed := 0
	for _, id := range ids {
		for tokens == 0 {
			select {
			case <-ctx.Done():
				f.log.Warn("billing fan-out halted", zap.Int("billed", billed))
				return ctx.Err()
			case <-refill.C:
				tokens = f.throttle.Count
			}
		}
		tokens--

		meta := shared.NewCommandMeta(string(id), "", "billing")
		f.accounts.Tell(string(id), app.StateChange{Command: domain.StartBillingCycle{
			Envelope: domain.WithMeta(meta),
			Month:    period.Month,
			Year:     period.Year,
		}})
		billed++
	}

	f.log.Info("billing cycle fan-out finished", zap.Int("billed", billed))
	if f.OnFinished != nil {
		f.OnFinished(billed)
	}
	return nil
}
