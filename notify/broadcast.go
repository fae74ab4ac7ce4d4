package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"corebank/domain"
	"corebank/events"
)

// ValidationEvent is the client-facing form of a rejected command.
type ValidationEvent struct {
	EntityID string    `json:"entityId"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// HealthEvent reports a component state change, such as a circuit breaker
// transition.
type HealthEvent struct {
	Component string    `json:"component"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	At        time.Time `json:"at"`
}

// Broadcast is the event egress: committed events and validation rejections
// fan out to in-process subscribers keyed by entity id and, when an AMQP
// publisher is attached, to a topic exchange for out-of-process consumers.
// Slow subscribers lose messages rather than back-pressuring the actors.
type Broadcast struct {
	log  *zap.Logger
	amqp *AMQPPublisher

	mu             sync.RWMutex
	eventSubs      map[string][]chan events.Event
	validationSubs map[string][]chan ValidationEvent
	healthSubs     []chan HealthEvent
}

// SubscribeAll is the subscription key matching every entity.
const SubscribeAll = "*"

func NewBroadcast(log *zap.Logger, publisher *AMQPPublisher) *Broadcast {
	return &Broadcast{
		log:            log.Named("broadcast"),
		amqp:           publisher,
		eventSubs:      make(map[string][]chan events.Event),
		validationSubs: make(map[string][]chan ValidationEvent),
	}
}

func (b *Broadcast) PublishEvent(ev events.Event) {
	base := ev.GetBase()

	b.mu.RLock()
	subs := append([]chan events.Event(nil), b.eventSubs[base.EntityID]...)
	subs = append(subs, b.eventSubs[SubscribeAll]...)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			b.log.Debug("dropping event for slow subscriber",
				zap.String("entity", base.EntityID))
		}
	}

	if b.amqp != nil {
		body, err := events.Encode(ev)
		if err != nil {
			b.log.Error("encode event for egress", zap.Error(err))
			return
		}
		key := "events." + base.EntityID + "." + string(base.Type)
		if err := b.amqp.Publish(context.Background(), key, body); err != nil {
			b.log.Warn("event egress publish failed", zap.Error(err))
		}
	}
}

func (b *Broadcast) PublishValidation(entityID string, err error) {
	ve := ValidationEvent{
		EntityID: entityID,
		Code:     "ValidationFailure",
		Message:  err.Error(),
		At:       time.Now().UTC(),
	}
	var typed domain.ValidationError
	if errors.As(err, &typed) {
		ve.Code = typed.Code()
	}

	b.mu.RLock()
	subs := append([]chan ValidationEvent(nil), b.validationSubs[entityID]...)
	subs = append(subs, b.validationSubs[SubscribeAll]...)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ve:
		default:
		}
	}

	if b.amqp != nil {
		if err := b.amqp.PublishJSON(context.Background(), "validation."+entityID, ve); err != nil {
			b.log.Warn("validation egress publish failed", zap.Error(err))
		}
	}
}

// PublishHealth broadcasts a component transition; wired as the circuit
// breaker's transition callback.
func (b *Broadcast) PublishHealth(component, from, to string) {
	he := HealthEvent{Component: component, From: from, To: to, At: time.Now().UTC()}
	b.log.Info("component state change",
		zap.String("component", component),
		zap.String("from", from),
		zap.String("to", to))

	b.mu.RLock()
	subs := append([]chan HealthEvent(nil), b.healthSubs...)
	b.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- he:
		default:
		}
	}

	if b.amqp != nil {
		if err := b.amqp.PublishJSON(context.Background(), "health."+component, he); err != nil {
			b.log.Warn("health egress publish failed", zap.Error(err))
		}
	}
}

// SubscribeEvents registers for committed events of one entity (or
// SubscribeAll). The returned cancel removes the subscription.
func (b *Broadcast) SubscribeEvents(entityID string, buf int) (<-chan events.Event, func()) {
	ch := make(chan events.Event, buf)
	b.mu.Lock()
	b.eventSubs[entityID] = append(b.eventSubs[entityID], ch)
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.eventSubs[entityID] = removeChan(b.eventSubs[entityID], ch)
	}
}

func (b *Broadcast) SubscribeValidation(entityID string, buf int) (<-chan ValidationEvent, func()) {
	ch := make(chan ValidationEvent, buf)
	b.mu.Lock()
	b.validationSubs[entityID] = append(b.validationSubs[entityID], ch)
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.validationSubs[entityID] = removeChan(b.validationSubs[entityID], ch)
	}
}

func (b *Broadcast) SubscribeHealth(buf int) (<-chan HealthEvent, func()) {
	ch := make(chan HealthEvent, buf)
	b.mu.Lock()
	b.healthSubs = append(b.healthSubs, ch)
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.healthSubs = removeChan(b.healthSubs, ch)
	}
}

func removeChan[T any](subs []chan T, target chan T) []chan T {
	out := subs[:0]
	for _, ch := range subs {
		if ch != target {
			out = append(out, ch)
		}
	}
	return out
}

// AMQPPublisher publishes to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, body []byte) error {
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *AMQPPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, key, body)
}

func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
