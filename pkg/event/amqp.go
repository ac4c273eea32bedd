package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const producer = "zendly-allocation"

// Meta describes a published event.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"` // event name and version, e.g. conversation.resolved.v1
	TenantID      string    `json:"tenant_id"`
}

// Envelope is the broker message body.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope wraps ev for publishing.
func NewEnvelope(ev Event, now time.Time) Envelope {
	id := uuid.NewString()
	return Envelope{
		Meta: Meta{
			ID:            id,
			CorrelationID: id,
			Producer:      producer,
			Time:          now.UTC(),
			Type:          ev.EventName() + ".v1",
			TenantID:      ev.Tenant(),
		},
		Data: ev,
	}
}

// Publisher is the subset of *amqp.Channel used for publishing.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type outgoing struct {
	routingKey string
	env        Envelope
}

// AMQPBridge forwards emitted events to a topic exchange, using the event
// name as routing key. Publishing happens on its own goroutine so emitters
// never wait on the broker; events are dropped when the buffer is full.
type AMQPBridge struct {
	conn     *amqp.Connection
	pub      Publisher
	exchange string
	queue    chan outgoing
	logger   *slog.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(rawURL, exchange string) (*AMQPBridge, error) {
	logger := utils.GetLogger()
	if u, err := url.Parse(rawURL); err == nil {
		logger.Info("Connecting to rabbitmq", "host", u.Host, "exchange", exchange)
	}

	conn, err := amqp.Dial(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	b := NewAMQPBridge(ch, exchange)
	b.conn = conn
	return b, nil
}

// NewAMQPBridge builds a bridge over an existing publisher.
func NewAMQPBridge(pub Publisher, exchange string) *AMQPBridge {
	return &AMQPBridge{
		pub:      pub,
		exchange: exchange,
		queue:    make(chan outgoing, 256),
		logger:   utils.GetLogger(),
	}
}

// Attach subscribes the bridge to every event of e. Returns the unsubscribe
// function.
func (b *AMQPBridge) Attach(e *Emitter) func() {
	return e.OnAny(func(ev Event) {
		select {
		case b.queue <- outgoing{routingKey: ev.EventName(), env: NewEnvelope(ev, time.Now())}:
		default:
			b.logger.Warn("Dropped broker event, publish buffer full", "event", ev.EventName())
		}
	})
}

// Run publishes queued events until ctx is cancelled.
func (b *AMQPBridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-b.queue:
			pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := b.publish(pubCtx, out.routingKey, out.env); err != nil {
				b.logger.Error("Failed to publish event", "event", out.routingKey, "error", err)
			}
			cancel()
		}
	}
}

func (b *AMQPBridge) publish(ctx context.Context, routingKey string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return b.pub.PublishWithContext(ctx, b.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         producer,
	})
}

// Close closes the broker connection if the bridge owns one.
func (b *AMQPBridge) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
