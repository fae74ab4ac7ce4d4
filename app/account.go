package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"corebank/domain"
	"corebank/events"
	"corebank/runtime"
	"corebank/shared"
)

// AccountActor hosts one account aggregate inside the sharded runtime. It
// recovers from snapshot plus replay on first use, persists decided events
// before applying them, and fires post-persist side effects.
type AccountActor struct {
	id  string
	env Env

	state         *domain.Account
	recovered     bool
	sinceSnapshot int
	remembered    bool

	log *zap.Logger
}

// NewAccountFactory adapts the actor to the runtime's entity factory.
func NewAccountFactory(env Env) runtime.Factory {
	env = env.normalized()
	return func(entityID string) runtime.Entity {
		return &AccountActor{
			id:  entityID,
			env: env,
			log: env.Log.Named("account").With(zap.String("entity", entityID)),
		}
	}
}

func (a *AccountActor) Receive(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case runtime.Confirmable:
		if err := a.Receive(ctx, m.Msg); err != nil {
			return err
		}
		m.Confirm()
		return nil

	case runtime.Started:
		if err := a.ensureRecovered(); err != nil {
			return err
		}
		a.resumePending()
		return nil

	case runtime.Passivate:
		if !a.recovered || a.state.Version == 0 {
			return nil
		}
		return a.snapshot()

	case StateChange:
		if err := a.ensureRecovered(); err != nil {
			return err
		}
		return a.handleCommand(ctx, m.Command)

	case GetAccount:
		if err := a.ensureRecovered(); err != nil {
			return err
		}
		snap := AccountSnapshot{}
		if a.state.Version > 0 {
			snap = AccountSnapshot{Exists: true, Account: a.state.Clone()}
		}
		select {
		case m.ReplyTo <- snap:
		default:
			a.log.Warn("dropping snapshot reply, channel full")
		}
		return nil

	case AutoTransferCompute:
		if err := a.ensureRecovered(); err != nil {
			return err
		}
		return a.computeAutoTransfers(ctx, m.Frequency)

	case Delete:
		if err := a.ensureRecovered(); err != nil {
			return err
		}
		if err := a.env.Journal.DeleteEventsUpTo(a.id, a.state.Version); err != nil {
			return fmt.Errorf("delete events for %s: %w", a.id, err)
		}
		if err := a.env.Accounts.Forget(a.id); err != nil {
			a.log.Warn("forget after delete failed", zap.Error(err))
		}
		a.log.Info("journal soft-deleted", zap.Int("upToSeq", a.state.Version))
		return runtime.ErrStop

	default:
		a.log.Warn("unhandled message", zap.String("type", fmt.Sprintf("%T", msg)))
		return nil
	}
}

// ensureRecovered loads the latest snapshot and replays the journal tail.
func (a *AccountActor) ensureRecovered() error {
	if a.recovered {
		return nil
	}

	state := domain.NewAccount(shared.AccountID(a.id))
	snap, ok, err := a.env.Journal.ReadLatestSnapshot(a.id)
	if err != nil {
		return fmt.Errorf("read snapshot for %s: %w", a.id, err)
	}
	if ok {
		state, err = domain.AccountFromSnapshot(snap)
		if err != nil {
			return err
		}
	}

	tail, err := a.env.Journal.ReadEvents(a.id, state.Version, 0)
	if err != nil {
		return fmt.Errorf("read events for %s: %w", a.id, err)
	}
	if err := state.ApplyAll(tail); err != nil {
		return err
	}

	a.state = state
	a.recovered = true
	a.remembered = len(state.InFlight) > 0
	a.log.Debug("recovered",
		zap.Int("version", state.Version),
		zap.Int("replayed", len(tail)),
		zap.Bool("fromSnapshot", ok))
	return nil
}

func (a *AccountActor) handleCommand(ctx context.Context, cmd domain.Command) error {
	ev, err := domain.Decide(a.state, cmd)
	if err != nil {
		a.handleValidationError(cmd, err)
		return nil
	}
	return a.persist(ctx, cmd, []events.Event{ev})
}

// persist appends the batch, folds it into live state, and dispatches side
// effects after durability. An append failure propagates out of Receive, so a
// confirmable envelope stays unacknowledged and the supervisor restarts the
// entity from its last snapshot.
func (a *AccountActor) persist(ctx context.Context, cmd domain.Command, evs []events.Event) error {
	if _, err := a.env.Journal.AppendEvents(a.id, a.state.Version, evs); err != nil {
		a.log.Error("journal append failed",
			zap.String("command", fmt.Sprintf("%T", cmd)),
			zap.Error(err))
		return fmt.Errorf("append events for %s: %w", a.id, err)
	}

	for _, ev := range evs {
		if err := a.state.Apply(ev); err != nil {
			return fmt.Errorf("apply persisted event: %w", err)
		}
		a.sinceSnapshot++
	}

	if a.sinceSnapshot >= a.env.SnapshotEvery {
		if err := a.snapshot(); err != nil {
			a.log.Warn("periodic snapshot failed", zap.Error(err))
		}
	}
	a.syncResidency()

	for _, ev := range evs {
		a.sideEffects(ctx, ev)
	}
	return nil
}

func (a *AccountActor) snapshot() error {
	snap, err := domain.SnapshotAccount(a.state)
	if err != nil {
		return err
	}
	if err := a.env.Journal.WriteSnapshot(snap); err != nil {
		return fmt.Errorf("write snapshot for %s: %w", a.id, err)
	}
	a.sinceSnapshot = 0
	return nil
}

// syncResidency keeps the remember-entities index aligned with whether the
// account still has in-flight transfers to drive to completion.
func (a *AccountActor) syncResidency() {
	want := len(a.state.InFlight) > 0
	if want == a.remembered {
		return
	}
	var err error
	if want {
		err = a.env.Accounts.Remember(a.id)
	} else {
		err = a.env.Accounts.Forget(a.id)
	}
	if err != nil {
		a.log.Warn("shard index update failed", zap.Error(err))
		return
	}
	a.remembered = want
}

// sideEffects dispatches the post-persist actions for one committed event.
func (a *AccountActor) sideEffects(ctx context.Context, ev events.Event) {
	a.env.Bus.PublishEvent(ev)
	base := ev.GetBase()

	switch e := ev.(type) {
	case events.AccountCreated:
		a.env.Notifier.AccountOpened(a.state.ID, e.OwnerName)

	case events.Debited:
		a.env.Employees.Tell(string(e.EmployeeID), StateChange{Command: domain.ApproveDebit{
			Envelope: domain.WithMeta(base.CommandMeta().WithCorrelation(string(e.EmployeeID), a.state.OrgID)),
			CardID:   e.CardID,
			Amount:   e.Amount,
		}})

	case events.DomesticRecipientEdited:
		a.retryFailedDomestic(e.Recipient)

	case events.TransferWithinOrgPending:
		a.env.Internal.Submit(InternalTransferRequest{
			Meta:        base.CommandMeta(),
			Kind:        shared.RecipientWithinOrg,
			SenderID:    a.state.ID,
			RecipientID: e.RecipientID,
			Amount:      e.Amount,
		})

	case events.TransferBetweenOrgsPending:
		a.env.Internal.Submit(InternalTransferRequest{
			Meta:           base.CommandMeta(),
			Kind:           shared.RecipientBetweenOrgs,
			SenderID:       a.state.ID,
			RecipientID:    e.RecipientID,
			RecipientOrgID: e.RecipientOrgID,
			Amount:         e.Amount,
		})

	case events.AutomatedTransferPending:
		a.env.Internal.Submit(InternalTransferRequest{
			Meta:        base.CommandMeta(),
			Kind:        shared.RecipientWithinOrg,
			SenderID:    a.state.ID,
			RecipientID: e.RecipientID,
			Amount:      e.Amount,
			Automated:   true,
			RuleID:      e.RuleID,
		})

	case events.TransferBetweenOrgsScheduled:
		a.env.Scheduler.ScheduleCommand(e.DeliverAt, domain.InternalTransferBetweenOrgs{
			Envelope:       domain.WithMeta(base.CommandMeta()),
			Amount:         e.Amount,
			RecipientID:    e.RecipientID,
			RecipientOrgID: e.RecipientOrgID,
		})

	case events.DomesticTransferScheduled:
		a.env.Scheduler.ScheduleCommand(e.DeliverAt, domain.DomesticTransfer{
			Envelope:    domain.WithMeta(base.CommandMeta()),
			Amount:      e.Amount,
			RecipientID: e.RecipientID,
		})

	case events.DomesticTransferPending:
		a.env.Domestic.Submit(DomesticTransferRequest{
			Meta:      base.CommandMeta(),
			SenderID:  a.state.ID,
			Amount:    e.Amount,
			Recipient: a.state.Recipients[e.RecipientID],
		})

	case events.TransferBetweenOrgsDeposited:
		a.env.Notifier.DepositReceived(a.state.ID, e.Amount, string(e.SenderID))

	case events.PlatformPaymentPaid:
		a.env.Accounts.Tell(string(e.PayeeAccountID), StateChange{Command: domain.DepositPlatformPayment{
			Envelope:       domain.WithMeta(base.CommandMeta().WithCorrelation(string(e.PayeeAccountID), e.PayeeOrgID)),
			PayerAccountID: a.state.ID,
			Amount:         e.Amount,
		}})

	case events.AutoTransferRuleConfigured:
		if e.Rule.Frequency != shared.PerTransaction {
			a.env.Scheduler.RegisterAutoTransferEvaluation(a.state.ID, e.Rule.Frequency)
		}

	case events.BillingCycleStarted:
		a.onBillingCycle(ctx, e)

	case events.AccountClosed:
		a.env.Closure.Register(a.state.ID)
		a.env.Notifier.AccountClosed(a.state.ID)
	}

	if _, moved := events.MoneyTransaction(ev); moved && !events.AutomatedTransfer(ev) {
		if len(a.state.RulesOf(shared.PerTransaction)) > 0 {
			a.env.Accounts.Tell(a.id, AutoTransferCompute{Frequency: shared.PerTransaction})
		}
	}
}

// retryFailedDomestic re-issues transfers that were rejected with
// InvalidAccountInfo against the recipient whose details were just fixed.
// The retry reuses the original correlation id so the failure record clears
// when the new pending event lands.
func (a *AccountActor) retryFailedDomestic(recipient shared.TransferRecipient) {
	for _, failed := range a.state.FailedDomestic {
		if failed.RecipientID != recipient.ID {
			continue
		}
		meta := shared.CommandMeta{
			EntityID:      a.id,
			OrgID:         a.state.OrgID,
			CorrelationID: failed.CorrelationID,
			InitiatedByID: "system",
			Timestamp:     time.Now().UTC(),
		}
		a.log.Info("retrying failed domestic transfer",
			zap.String("correlationId", failed.CorrelationID.String()),
			zap.String("recipient", failed.RecipientID))
		a.env.Accounts.Tell(a.id, StateChange{Command: domain.DomesticTransfer{
			Envelope:    domain.WithMeta(meta),
			Amount:      failed.Amount,
			RecipientID: failed.RecipientID,
		}})
	}
}

// onBillingCycle appends the monthly statement, decides the maintenance fee
// from the cycle's criteria snapshot, and queues the billing notification.
func (a *AccountActor) onBillingCycle(ctx context.Context, e events.BillingCycleStarted) {
	period := shared.BillingPeriod{Month: e.Month, Year: e.Year}

	st, err := a.buildStatement(period)
	if err != nil {
		a.log.Error("statement build failed", zap.Error(err))
	} else if err := a.env.Statements.Append(ctx, st); err != nil {
		a.log.Error("statement append failed", zap.Error(err))
	}

	meta := e.CommandMeta()
	if domain.FeeDecision(e.Criteria) {
		a.env.Accounts.Tell(a.id, StateChange{Command: domain.SkipMaintenanceFee{
			Envelope: domain.WithMeta(meta),
			Reason:   e.Criteria,
		}})
	} else {
		a.env.Accounts.Tell(a.id, StateChange{Command: domain.MaintenanceFee{
			Envelope: domain.WithMeta(meta),
		}})
	}

	a.env.Notifier.BillingStatementReady(a.state.ID, period)
}

// buildStatement folds the journal tail since the previous billing cycle into
// statement lines, reconstructing the opening balance from the closing one.
func (a *AccountActor) buildStatement(period shared.BillingPeriod) (*Statement, error) {
	history, err := a.env.Journal.ReadEvents(a.id, 0, a.state.Version)
	if err != nil {
		return nil, err
	}

	// The cycle starts after the previous BillingCycleStarted; the current
	// one is the last event in the history.
	start := 0
	for i := 0; i < len(history)-1; i++ {
		if _, ok := history[i].(events.BillingCycleStarted); ok {
			start = i + 1
		}
	}

	st := &Statement{
		AccountID:      a.state.ID,
		Period:         period,
		ClosingBalance: a.state.Balance,
	}
	total := decimal.Zero
	for _, ev := range history[start:] {
		delta, ok := events.MoneyTransaction(ev)
		if !ok {
			continue
		}
		base := ev.GetBase()
		st.Lines = append(st.Lines, StatementLine{
			At:     base.Timestamp,
			Type:   base.Type,
			Amount: delta,
		})
		total = total.Add(delta)
	}
	st.OpeningBalance = st.ClosingBalance.Sub(total)
	return st, nil
}

// computeAutoTransfers evaluates the account's rules of one frequency.
// Transfers-in become restore commands to the managing accounts;
// transfers-out are validated as a batch against a shadow state and
// persisted atomically, so an interleaved debit cannot fail half the batch.
func (a *AccountActor) computeAutoTransfers(ctx context.Context, freq shared.AutoTransferFrequency) error {
	computed := domain.ComputeAutoTransfers(a.state, freq)
	if len(computed) == 0 {
		return nil
	}
	out, in := domain.PartitionComputed(computed)

	for _, t := range in {
		meta := shared.NewCommandMeta(string(t.SenderID), a.state.OrgID, "system")
		a.env.Accounts.Tell(string(t.SenderID), StateChange{Command: domain.InternalAutoTransfer{
			Envelope:    domain.WithMeta(meta),
			Amount:      t.Amount,
			RecipientID: t.RecipientID,
			RuleID:      t.RuleID,
		}})
	}

	if len(out) == 0 {
		return nil
	}
	cmds := make([]domain.Command, 0, len(out))
	for _, t := range out {
		meta := shared.NewCommandMeta(a.id, a.state.OrgID, "system")
		cmds = append(cmds, domain.InternalAutoTransfer{
			Envelope:    domain.WithMeta(meta),
			Amount:      t.Amount,
			RecipientID: t.RecipientID,
			RuleID:      t.RuleID,
		})
	}

	evs, err := domain.DecideMany(a.state, cmds)
	if err != nil {
		var rejected domain.BatchRejectedError
		if errors.As(err, &rejected) {
			a.handleValidationError(rejected.Command, err)
			return nil
		}
		return err
	}
	return a.persist(ctx, cmds[0], evs)
}

// handleValidationError reports a rejected command. No-op rejections are
// logged at debug only; a card-backed debit bouncing on insufficient balance
// additionally synthesizes the compensating DeclineDebit.
func (a *AccountActor) handleValidationError(cmd domain.Command, err error) {
	if domain.IsNoOp(err) {
		a.log.Debug("command is a no-op",
			zap.String("command", fmt.Sprintf("%T", cmd)),
			zap.Error(err))
		return
	}

	a.log.Warn("command rejected",
		zap.String("command", fmt.Sprintf("%T", cmd)),
		zap.Error(err))
	a.env.Bus.PublishValidation(a.id, err)

	debit, isDebit := cmd.(domain.Debit)
	if !isDebit || debit.CardID == "" {
		return
	}
	var insufficient domain.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		return
	}
	meta := cmd.Meta().WithCorrelation(string(debit.EmployeeID), a.state.OrgID)
	a.env.Employees.Tell(string(debit.EmployeeID), StateChange{Command: domain.DeclineDebit{
		Envelope: domain.WithMeta(meta),
		CardID:   debit.CardID,
		Amount:   debit.Amount,
		Reason:   insufficient.Error(),
	}})
}

// resumePending re-dispatches the in-flight transfers after a restart. The
// coordinator and worker treat the correlation id as an idempotency key, so
// redelivery is safe.
func (a *AccountActor) resumePending() {
	for _, t := range a.state.InFlight {
		meta := shared.CommandMeta{
			EntityID:      a.id,
			OrgID:         a.state.OrgID,
			CorrelationID: t.CorrelationID,
			InitiatedByID: "system",
			Timestamp:     time.Now().UTC(),
		}
		switch t.Kind {
		case shared.RecipientDomestic:
			a.env.Domestic.Submit(DomesticTransferRequest{
				Meta:      meta,
				SenderID:  a.state.ID,
				Amount:    t.Amount,
				Recipient: a.state.Recipients[t.RecipientID],
				InFlight:  t.Status == domain.TransferInProgress,
			})
		default:
			a.env.Internal.Submit(InternalTransferRequest{
				Meta:           meta,
				Kind:           t.Kind,
				SenderID:       a.state.ID,
				RecipientID:    shared.AccountID(t.RecipientID),
				RecipientOrgID: t.RecipientOrg,
				Amount:         t.Amount,
				Automated:      t.Automated,
				RuleID:         t.RuleID,
			})
		}
	}
}
