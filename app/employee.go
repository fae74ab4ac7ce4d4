package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"corebank/domain"
	"corebank/events"
	"corebank/runtime"
	"corebank/shared"
)

// EmployeeActor hosts one employee aggregate. Card purchases couple it to the
// account region: a DebitRequested event issues a Debit command against the
// linked account, and the account answers with ApproveDebit or DeclineDebit.
type EmployeeActor struct {
	id  string
	env Env

	state         *domain.Employee
	recovered     bool
	sinceSnapshot int

	log *zap.Logger
}

func NewEmployeeFactory(env Env) runtime.Factory {
	env = env.normalized()
	return func(entityID string) runtime.Entity {
		return &EmployeeActor{
			id:  entityID,
			env: env,
			log: env.Log.Named("employee").With(zap.String("entity", entityID)),
		}
	}
}

func (e *EmployeeActor) Receive(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case runtime.Confirmable:
		if err := e.Receive(ctx, m.Msg); err != nil {
			return err
		}
		m.Confirm()
		return nil

	case runtime.Started:
		return e.ensureRecovered()

	case runtime.Passivate:
		if !e.recovered || e.state.Version == 0 {
			return nil
		}
		return e.snapshot()

	case StateChange:
		if err := e.ensureRecovered(); err != nil {
			return err
		}
		return e.handleCommand(m.Command)

	default:
		e.log.Warn("unhandled message", zap.String("type", fmt.Sprintf("%T", msg)))
		return nil
	}
}

func (e *EmployeeActor) ensureRecovered() error {
	if e.recovered {
		return nil
	}

	state := domain.NewEmployee(shared.EmployeeID(e.id))
	snap, ok, err := e.env.Journal.ReadLatestSnapshot(e.id)
	if err != nil {
		return fmt.Errorf("read snapshot for %s: %w", e.id, err)
	}
	if ok {
		state, err = domain.EmployeeFromSnapshot(snap)
		if err != nil {
			return err
		}
	}

	tail, err := e.env.Journal.ReadEvents(e.id, state.Version, 0)
	if err != nil {
		return fmt.Errorf("read events for %s: %w", e.id, err)
	}
	if err := state.ApplyAll(tail); err != nil {
		return err
	}

	e.state = state
	e.recovered = true
	return nil
}

func (e *EmployeeActor) handleCommand(cmd domain.Command) error {
	ev, err := domain.DecideEmployee(e.state, cmd)
	if err != nil {
		e.handleValidationError(cmd, err)
		return nil
	}

	// The error propagates out of Receive: a confirmable envelope stays
	// unacknowledged and the supervisor restarts the entity.
	if _, err := e.env.Journal.AppendEvents(e.id, e.state.Version, []events.Event{ev}); err != nil {
		e.log.Error("journal append failed",
			zap.String("command", fmt.Sprintf("%T", cmd)),
			zap.Error(err))
		return fmt.Errorf("append events for %s: %w", e.id, err)
	}
	if err := e.state.Apply(ev); err != nil {
		return fmt.Errorf("apply persisted event: %w", err)
	}
	e.sinceSnapshot++
	if e.sinceSnapshot >= e.env.SnapshotEvery {
		if err := e.snapshot(); err != nil {
			e.log.Warn("periodic snapshot failed", zap.Error(err))
		}
	}

	e.sideEffects(ev)
	return nil
}

func (e *EmployeeActor) snapshot() error {
	snap, err := domain.SnapshotEmployee(e.state)
	if err != nil {
		return err
	}
	if err := e.env.Journal.WriteSnapshot(snap); err != nil {
		return fmt.Errorf("write snapshot for %s: %w", e.id, err)
	}
	e.sinceSnapshot = 0
	return nil
}

func (e *EmployeeActor) sideEffects(ev events.Event) {
	e.env.Bus.PublishEvent(ev)
	base := ev.GetBase()

	switch event := ev.(type) {
	case events.EmployeeCreated:
		e.env.Notifier.EmployeeInvited(event.Email, event.InviteToken)

	case events.DebitRequested:
		meta := base.CommandMeta().WithCorrelation(string(event.AccountID), e.state.OrgID)
		e.env.Accounts.Tell(string(event.AccountID), StateChange{Command: domain.Debit{
			Envelope:   domain.WithMeta(meta),
			Amount:     event.Amount,
			EmployeeID: e.state.ID,
			CardID:     event.CardID,
			Merchant:   event.Merchant,
			Reference:  event.Reference,
		}})

	case events.DebitDeclined:
		e.env.Notifier.PurchaseDeclined(e.state.ID, event.Reason)
	}
}

func (e *EmployeeActor) handleValidationError(cmd domain.Command, err error) {
	if domain.IsNoOp(err) {
		e.log.Debug("command is a no-op",
			zap.String("command", fmt.Sprintf("%T", cmd)),
			zap.Error(err))
		return
	}

	e.log.Warn("command rejected",
		zap.String("command", fmt.Sprintf("%T", cmd)),
		zap.Error(err))
	e.env.Bus.PublishValidation(e.id, err)

	if _, isPurchase := cmd.(domain.RequestPurchase); isPurchase {
		e.env.Notifier.PurchaseDeclined(shared.EmployeeID(e.id), err.Error())
	}
}
