package transfer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"corebank/app"
	"corebank/domain"
	"corebank/shared"
)

// Worker is the singleton that drives domestic transfers through the
// external gateway. Each accepted transfer gets its own polling loop; the
// breaker spans all of them, so a dead gateway trips once and everything
// fails fast until the cooldown probe succeeds.
type Worker struct {
	gateway  Gateway
	breaker  *Breaker
	accounts app.Teller
	log      *zap.Logger

	pollInterval time.Duration
	pollBudget   time.Duration

	mu     sync.Mutex
	active map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(gateway Gateway, breaker *Breaker, accounts app.Teller, log *zap.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		gateway:      gateway,
		breaker:      breaker,
		accounts:     accounts,
		log:          log.Named("domestic"),
		pollInterval: 15 * time.Second,
		pollBudget:   24 * time.Hour,
		active:       make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Submit accepts a pending domestic transfer. Resubmissions of a transfer
// already being driven (redeliveries, restarts) are dropped; the correlation
// id is the dedupe key.
func (w *Worker) Submit(req app.DomesticTransferRequest) {
	ref := req.Meta.CorrelationID.String()

	w.mu.Lock()
	if w.active[ref] {
		w.mu.Unlock()
		return
	}
	w.active[ref] = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.active, ref)
			w.mu.Unlock()
		}()
		w.drive(req, ref)
	}()
}

func (w *Worker) drive(req app.DomesticTransferRequest, ref string) {
	if !req.InFlight {
		resp, err := w.initiate(req, ref)
		if err != nil {
			w.log.Warn("transfer initiation failed",
				zap.String("ref", ref),
				zap.Error(err))
			w.reject(req, shared.RejectUnknown)
			return
		}
		if w.finishIfTerminal(req, resp) {
			return
		}
		w.progressUpdate(req, resp.Status)
	}
	w.poll(req, ref)
}

// initiate submits the transfer through the breaker, retrying transient
// failures with backoff. The gateway dedupes on ref, so a retried initiation
// never double-sends money.
func (w *Worker) initiate(req app.DomesticTransferRequest, ref string) (GatewayResponse, error) {
	var resp GatewayResponse

	backoff := retry.WithCappedDuration(8*time.Second,
		retry.WithMaxRetries(3, retry.NewExponential(time.Second)))

	err := retry.Do(w.ctx, backoff, func(ctx context.Context) error {
		if err := w.breaker.Allow(); err != nil {
			return retry.RetryableError(err)
		}
		var err error
		resp, err = w.gateway.Initiate(ctx, GatewayRequest{
			AccountNumber: req.Recipient.AccountNumber,
			RoutingNumber: req.Recipient.RoutingNumber,
			Amount:        req.Amount,
			Ref:           ref,
		})
		if err != nil {
			w.breaker.Failure()
			return retry.RetryableError(err)
		}
		w.breaker.Success()
		return nil
	})
	return resp, err
}

// poll checks the transfer's progress until it reaches a terminal status.
// Breaker-open and transport errors just skip the tick; the transfer stays
// in flight and the sender keeps it remembered across restarts.
func (w *Worker) poll(req app.DomesticTransferRequest, ref string) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(w.pollBudget)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			w.log.Error("transfer exceeded poll budget", zap.String("ref", ref))
			w.reject(req, shared.RejectUnknown)
			return
		}

		if err := w.breaker.Allow(); err != nil {
			continue
		}
		resp, err := w.gateway.Progress(w.ctx, ref)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.breaker.Failure()
				w.log.Warn("progress check failed", zap.String("ref", ref), zap.Error(err))
			}
			continue
		}
		w.breaker.Success()

		if w.finishIfTerminal(req, resp) {
			return
		}
		w.progressUpdate(req, resp.Status)
	}
}

// finishIfTerminal translates a terminal gateway status into the sender's
// approve or reject command.
func (w *Worker) finishIfTerminal(req app.DomesticTransferRequest, resp GatewayResponse) bool {
	status := resp.Status
	if !resp.OK && !terminalStatus(status) {
		status = StatusFailed
	}
	switch status {
	case StatusCompleted:
		w.accounts.Tell(string(req.SenderID), app.StateChange{Command: domain.ApproveDomesticTransfer{
			Envelope:      domain.WithMeta(req.Meta),
			TransactionID: resp.TransactionID,
		}})
		return true
	case StatusInvalidAccount:
		w.reject(req, shared.RejectInvalidAccountInfo)
		return true
	case StatusFailed:
		w.reject(req, shared.RejectUnknown)
		return true
	}
	return false
}

func (w *Worker) progressUpdate(req app.DomesticTransferRequest, status string) {
	if status == "" {
		return
	}
	w.accounts.Tell(string(req.SenderID), app.StateChange{Command: domain.UpdateDomesticTransferProgress{
		Envelope: domain.WithMeta(req.Meta),
		Status:   status,
	}})
}

func (w *Worker) reject(req app.DomesticTransferRequest, reason shared.RejectReason) {
	w.accounts.Tell(string(req.SenderID), app.StateChange{Command: domain.RejectDomesticTransfer{
		Envelope: domain.WithMeta(req.Meta),
		Reason:   reason,
	}})
}
