package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"corebank/app"
	"corebank/domain"
	"corebank/shared"
)

// Coordinator settles internal transfers between two account aggregates. It
// asks the recipient for its state, then issues the matching approve or
// reject to the sender and, on approval, the deposit to the recipient. The
// correlation id carried in the request meta ties all three timelines
// together.
type Coordinator struct {
	accounts   app.Teller
	log        *zap.Logger
	askTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(accounts app.Teller, log *zap.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		accounts:   accounts,
		log:        log.Named("coordinator"),
		askTimeout: 5 * time.Second,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit runs one settlement asynchronously; the account actor is never
// blocked on the recipient lookup.
func (c *Coordinator) Submit(req app.InternalTransferRequest) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.settle(c.ctx, req)
	}()
}

// Stop cancels pending asks and waits for in-flight settlements to finish.
// Transfers still open in an account's journal are re-submitted by the
// account on its next recovery.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) settle(ctx context.Context, req app.InternalTransferRequest) {
	snap, err := c.askRecipient(ctx, req.RecipientID)
	switch {
	case errors.Is(err, context.Canceled):
		// Shutdown, not a verdict on the recipient; the sender's pending
		// record drives a resubmit after restart.
		c.log.Debug("settlement abandoned on shutdown",
			zap.String("recipient", string(req.RecipientID)))

	case err != nil:
		c.log.Warn("recipient unavailable",
			zap.String("recipient", string(req.RecipientID)),
			zap.Error(err))
		c.reject(req, shared.RejectUnknown)

	case !snap.Exists:
		c.reject(req, shared.RejectInvalidAccountInfo)

	case snap.Account.Status != domain.StatusActive:
		c.reject(req, shared.RejectAccountClosed)

	default:
		c.approve(req)
		c.deposit(req)
	}
}

// askRecipient polls the recipient actor for a snapshot, retrying the ask up
// to three times with exponential backoff before declaring it unavailable.
func (c *Coordinator) askRecipient(ctx context.Context, recipientID shared.AccountID) (app.AccountSnapshot, error) {
	var snap app.AccountSnapshot

	backoff := retry.WithCappedDuration(8*time.Second,
		retry.WithMaxRetries(3, retry.NewExponential(time.Second)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		reply := make(chan app.AccountSnapshot, 1)
		c.accounts.Tell(string(recipientID), app.GetAccount{ReplyTo: reply})

		select {
		case snap = <-reply:
			return nil
		case <-time.After(c.askTimeout):
			return retry.RetryableError(fmt.Errorf("ask timed out after %s", c.askTimeout))
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return snap, err
}

func (c *Coordinator) approve(req app.InternalTransferRequest) {
	meta := domain.WithMeta(req.Meta)
	var cmd domain.Command
	if req.Automated {
		cmd = domain.ApproveAutomatedTransfer{
			Envelope:    meta,
			Amount:      req.Amount,
			RecipientID: req.RecipientID,
			RuleID:      req.RuleID,
		}
	} else {
		cmd = domain.ApproveInternalTransfer{
			Envelope:       meta,
			Kind:           req.Kind,
			Amount:         req.Amount,
			RecipientID:    req.RecipientID,
			RecipientOrgID: req.RecipientOrgID,
		}
	}
	c.accounts.Tell(string(req.SenderID), app.StateChange{Command: cmd})
}

func (c *Coordinator) reject(req app.InternalTransferRequest, reason shared.RejectReason) {
	meta := domain.WithMeta(req.Meta)
	var cmd domain.Command
	if req.Automated {
		cmd = domain.RejectAutomatedTransfer{
			Envelope:    meta,
			Amount:      req.Amount,
			RecipientID: req.RecipientID,
			RuleID:      req.RuleID,
			Reason:      reason,
		}
	} else {
		cmd = domain.RejectInternalTransfer{
			Envelope:       meta,
			Kind:           req.Kind,
			Amount:         req.Amount,
			RecipientID:    req.RecipientID,
			RecipientOrgID: req.RecipientOrgID,
			Reason:         reason,
		}
	}
	c.accounts.Tell(string(req.SenderID), app.StateChange{Command: cmd})
}

func (c *Coordinator) deposit(req app.InternalTransferRequest) {
	meta := domain.WithMeta(req.Meta.WithCorrelation(string(req.RecipientID), req.RecipientOrgID))
	var cmd domain.Command
	switch {
	case req.Automated:
		cmd = domain.DepositAutomatedTransfer{
			Envelope: meta,
			Amount:   req.Amount,
			SenderID: req.SenderID,
			RuleID:   req.RuleID,
		}
	case req.Kind == shared.RecipientBetweenOrgs:
		cmd = domain.DepositTransferBetweenOrgs{
			Envelope:    meta,
			Amount:      req.Amount,
			SenderID:    req.SenderID,
			SenderOrgID: req.Meta.OrgID,
		}
	default:
		cmd = domain.DepositTransferWithinOrg{
			Envelope: meta,
			Amount:   req.Amount,
			SenderID: req.SenderID,
		}
	}
	c.accounts.Tell(string(req.RecipientID), app.StateChange{Command: cmd})
}
