package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"corebank/shared"
)

// EmailTag classifies outbound mail for the delivery service's templating.
type EmailTag string

const (
	TagBillingStatement EmailTag = "BillingStatement"
	TagAccountOpen      EmailTag = "AccountOpen"
	TagAccountClose     EmailTag = "AccountClose"
	TagDeposit          EmailTag = "InternalTransferBetweenOrgsDeposited"
	TagPurchaseDeclined EmailTag = "PurchaseDeclined"
	TagEmployeeInvite   EmailTag = "EmployeeInvite"
)

// EmailMessage is the tagged payload handed to the delivery service; the
// actual rendering and addressing happen there.
type EmailMessage struct {
	Tag    EmailTag          `json:"tag"`
	Fields map[string]string `json:"fields"`
	At     time.Time         `json:"at"`
}

// Outbox delivers tagged email messages. Delivery is best-effort; a lost
// notification never fails the workflow that produced it.
type Outbox interface {
	Deliver(msg EmailMessage)
}

// Emailer maps workflow notifications onto tagged email messages.
type Emailer struct {
	outbox Outbox
}

func NewEmailer(outbox Outbox) *Emailer {
	return &Emailer{outbox: outbox}
}

func (e *Emailer) send(tag EmailTag, fields map[string]string) {
	e.outbox.Deliver(EmailMessage{Tag: tag, Fields: fields, At: time.Now().UTC()})
}

func (e *Emailer) AccountOpened(id shared.AccountID, ownerName string) {
	e.send(TagAccountOpen, map[string]string{
		"accountId": string(id),
		"ownerName": ownerName,
	})
}

func (e *Emailer) AccountClosed(id shared.AccountID) {
	e.send(TagAccountClose, map[string]string{"accountId": string(id)})
}

func (e *Emailer) DepositReceived(id shared.AccountID, amount decimal.Decimal, sender string) {
	e.send(TagDeposit, map[string]string{
		"accountId": string(id),
		"amount":    amount.String(),
		"sender":    sender,
	})
}

func (e *Emailer) BillingStatementReady(id shared.AccountID, period shared.BillingPeriod) {
	e.send(TagBillingStatement, map[string]string{
		"accountId": string(id),
		"period":    fmt.Sprintf("%04d-%02d", period.Year, period.Month),
	})
}

func (e *Emailer) PurchaseDeclined(employeeID shared.EmployeeID, reason string) {
	e.send(TagPurchaseDeclined, map[string]string{
		"employeeId": string(employeeID),
		"reason":     reason,
	})
}

func (e *Emailer) EmployeeInvited(email, token string) {
	e.send(TagEmployeeInvite, map[string]string{
		"email": email,
		"token": token,
	})
}

// LogOutbox writes notifications to the log; the default when no mail
// transport is configured.
type LogOutbox struct {
	Log *zap.Logger
}

func (o LogOutbox) Deliver(msg EmailMessage) {
	o.Log.Info("email queued",
		zap.String("tag", string(msg.Tag)),
		zap.Any("fields", msg.Fields))
}

// AMQPOutbox hands messages to the mail worker through the topic exchange.
type AMQPOutbox struct {
	Publisher *AMQPPublisher
	Log       *zap.Logger
}

func (o AMQPOutbox) Deliver(msg EmailMessage) {
	if err := o.Publisher.PublishJSON(context.Background(), "email."+string(msg.Tag), msg); err != nil {
		o.Log.Warn("email publish failed",
			zap.String("tag", string(msg.Tag)),
			zap.Error(err))
	}
}
