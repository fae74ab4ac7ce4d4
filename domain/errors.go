package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"corebank/shared"
)

// Validation errors are the business-rule rejections Decide can produce.
// They are never persisted; the account actor reports them on the broadcast
// bus and, for card-backed debits, as a compensating DeclineDebit.
//
// Callers match them with errors.As; Code gives the stable name surfaced to
// users.

type ValidationError interface {
	error
	Code() string
}

// NoOp marks the rejections that are expected under at-least-once delivery
// (redelivered envelopes, stale schedules). The actor logs them at debug and
// does nothing else.
type NoOp interface {
	NoOp() bool
}

type AccountNotActiveError struct {
	Status AccountStatus
}

func (e AccountNotActiveError) Error() string {
	return fmt.Sprintf("account not active (status %s)", e.Status)
}
func (e AccountNotActiveError) Code() string { return "AccountNotActive" }

type AccountCardLockedError struct {
	CardID shared.CardID
}

func (e AccountCardLockedError) Error() string {
	return fmt.Sprintf("card %s is locked", e.CardID)
}
func (e AccountCardLockedError) Code() string { return "AccountCardLocked" }

type InsufficientBalanceError struct {
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, requested %s", e.Balance, e.Requested)
}
func (e InsufficientBalanceError) Code() string { return "InsufficientBalance" }

type ExceededDailyDebitError struct {
	Limit   decimal.Decimal
	Accrued decimal.Decimal
}

func (e ExceededDailyDebitError) Error() string {
	return fmt.Sprintf("exceeded daily debit limit %s (accrued %s)", e.Limit, e.Accrued)
}
func (e ExceededDailyDebitError) Code() string { return "ExceededDailyDebit" }

type ExceededMonthlyDebitError struct {
	Limit   decimal.Decimal
	Accrued decimal.Decimal
}

func (e ExceededMonthlyDebitError) Error() string {
	return fmt.Sprintf("exceeded monthly debit limit %s (accrued %s)", e.Limit, e.Accrued)
}
func (e ExceededMonthlyDebitError) Code() string { return "ExceededMonthlyDebit" }

type RecipientNotRegisteredError struct {
	RecipientID string
}

func (e RecipientNotRegisteredError) Error() string {
	return fmt.Sprintf("recipient %s is not registered", e.RecipientID)
}
func (e RecipientNotRegisteredError) Code() string { return "RecipientNotRegistered" }

type RecipientDeactivatedError struct {
	RecipientID string
	Status      shared.RecipientStatus
}

func (e RecipientDeactivatedError) Error() string {
	return fmt.Sprintf("recipient %s is deactivated (status %s)", e.RecipientID, e.Status)
}
func (e RecipientDeactivatedError) Code() string { return "RecipientDeactivated" }

type TransferAlreadyProgressedError struct {
	CorrelationID uuid.UUID
}

func (e TransferAlreadyProgressedError) Error() string {
	return fmt.Sprintf("transfer %s already progressed to a terminal state", e.CorrelationID)
}
func (e TransferAlreadyProgressedError) Code() string { return "TransferAlreadyProgressed" }
func (e TransferAlreadyProgressedError) NoOp() bool   { return true }

type TransferProgressNoChangeError struct {
	CorrelationID uuid.UUID
	Status        string
}

func (e TransferProgressNoChangeError) Error() string {
	return fmt.Sprintf("transfer %s progress unchanged (%s)", e.CorrelationID, e.Status)
}
func (e TransferProgressNoChangeError) Code() string { return "TransferProgressNoChange" }
func (e TransferProgressNoChangeError) NoOp() bool   { return true }

type AccountNotReadyToActivateError struct{}

func (e AccountNotReadyToActivateError) Error() string {
	return "account is not ready to activate"
}
func (e AccountNotReadyToActivateError) Code() string { return "AccountNotReadyToActivate" }
func (e AccountNotReadyToActivateError) NoOp() bool   { return true }

type DepositTooSmallError struct {
	Minimum decimal.Decimal
	Amount  decimal.Decimal
}

func (e DepositTooSmallError) Error() string {
	return fmt.Sprintf("deposit %s below minimum %s", e.Amount, e.Minimum)
}
func (e DepositTooSmallError) Code() string { return "DepositTooSmall" }

type DebitAmountNotPositiveError struct {
	Amount decimal.Decimal
}

func (e DebitAmountNotPositiveError) Error() string {
	return fmt.Sprintf("debit amount must be positive, got %s", e.Amount)
}
func (e DebitAmountNotPositiveError) Code() string { return "DebitAmountNotPositive" }

type DateNotDefaultError struct {
	Field string
}

func (e DateNotDefaultError) Error() string {
	return fmt.Sprintf("date field %s must be unset", e.Field)
}
func (e DateNotDefaultError) Code() string { return "DateNotDefault" }

type SenderRegistrationRequiredError struct {
	SenderID shared.AccountID
}

func (e SenderRegistrationRequiredError) Error() string {
	return fmt.Sprintf("sender %s must be registered before depositing", e.SenderID)
}
func (e SenderRegistrationRequiredError) Code() string { return "SenderRegistrationRequired" }

// ValidationFailure is the fallback for rejections no dedicated rule names.
type ValidationFailure struct {
	Field  string
	Reason string
}

func (e ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
func (e ValidationFailure) Code() string { return "ValidationFailure" }

// IsNoOp reports whether a rejection is one of the benign replays that need
// no reporting beyond a debug log.
func IsNoOp(err error) bool {
	n, ok := err.(NoOp)
	return ok && n.NoOp()
}
