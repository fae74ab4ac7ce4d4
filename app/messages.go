package app

import (
	"corebank/domain"
	"corebank/shared"
)

// Mailbox messages understood by the account and employee actors. Commands
// arrive wrapped in StateChange; the other variants are runtime and workflow
// plumbing.

type StateChange struct {
	Command domain.Command
}

// GetAccount asks the actor for a state snapshot. The reply channel must be
// buffered; the actor never blocks on it.
type GetAccount struct {
	ReplyTo chan<- AccountSnapshot
}

type AccountSnapshot struct {
	Exists  bool
	Account *domain.Account
}

// Delete soft-deletes the entity's journal after closure finalization; the
// actor stops afterwards.
type Delete struct{}

// AutoTransferCompute triggers rule evaluation for one frequency, either
// self-enqueued after a money transaction or delivered by the scheduler.
type AutoTransferCompute struct {
	Frequency shared.AutoTransferFrequency
}
