package runtime

import (
	"github.com/google/uuid"
)

// Confirmable wraps a message whose sender wants an at-least-once guarantee.
// The receiving entity calls Confirm only after the resulting events are
// durably persisted; an unconfirmed delivery is redelivered by the sender
// with a bumped DeliveryAttempt.
type Confirmable struct {
	Msg             any
	ConfirmationID  uuid.UUID
	DeliveryAttempt int

	confirm func()
}

func NewConfirmable(msg any, confirm func()) Confirmable {
	return Confirmable{
		Msg:             msg,
		ConfirmationID:  uuid.New(),
		DeliveryAttempt: 1,
		confirm:         confirm,
	}
}

// Redelivered returns a copy carrying the same confirmation identity with the
// attempt counter bumped.
func (c Confirmable) Redelivered() Confirmable {
	c.DeliveryAttempt++
	return c
}

func (c Confirmable) Confirm() {
	if c.confirm != nil {
		c.confirm()
	}
}

// Passivate is delivered by the runtime when an entity's idle timeout fires
// or the region shuts down. Entities write their final snapshot on it.
type Passivate struct{}

// Started wakes a remembered entity after a region restart so it can recover
// state and resume any pending work.
type Started struct{}
