package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/config"
)

const (
	SentRoutingKey      = "reminder.sent"
	ReconcileRoutingKey = "reminder.reconcile"
)

// ReminderEvent is published after a reminder send.
type ReminderEvent struct {
	NotificationID string    `json:"notification_id"`
	CustomerName   string    `json:"customer_name"`
	PhoneNumber    string    `json:"phone_number"`
	SentAt         time.Time `json:"sent_at"`
	Error          string    `json:"error,omitempty"` // set on reconcile events
}

type publisher interface {
	PublishWithRetry(body []byte, routingKey, contentType string, strategy retry.Strategy, options ...rabbitmq.PublishingOptions) error
}

type consumer interface {
	ConsumeWithRetry(out chan []byte, strategy retry.Strategy) error
}

// ReminderQueue publishes reminder events to RabbitMQ.
//
// Sent events feed downstream consumers (reports, CRM sync). Reconcile events
// mark the rare case of a delivered message whose "sent" mark could not be
// stored; an operator drains that queue and fixes the records by hand.
type ReminderQueue struct {
	publisher publisher
	consumer  consumer // reads the reconcile queue
	strategy  retry.Strategy
}

// NewReminderQueue declares the exchange, the sent/reconcile queues and the DLQ.
func NewReminderQueue(ch *rabbitmq.Channel, cfg *config.Config) (*ReminderQueue, error) {
	exchange := rabbitmq.NewExchange(cfg.RabbitMQ.Exchange, "direct")
	if err := exchange.BindToChannel(ch); err != nil {
		return nil, fmt.Errorf("failed to bind to exchange: %w", err)
	}

	qm := rabbitmq.NewQueueManager(ch)

	if _, err := qm.DeclareQueue(cfg.RabbitMQ.DLQ, rabbitmq.QueueConfig{Durable: true}); err != nil {
		return nil, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	args := map[string]interface{}{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitMQ.DLQ,
	}

	bindings := map[string]string{
		cfg.RabbitMQ.SentQueue:      SentRoutingKey,
		cfg.RabbitMQ.ReconcileQueue: ReconcileRoutingKey,
	}

	for name, key := range bindings {
		q, err := qm.DeclareQueue(name, rabbitmq.QueueConfig{Durable: true, Args: args})
		if err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		if err := ch.QueueBind(q.Name, key, exchange.Name(), false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue %s: %w", name, err)
		}
	}

	pub := rabbitmq.NewPublisher(ch, exchange.Name())
	cons := rabbitmq.NewConsumer(ch, rabbitmq.NewConsumerConfig(cfg.RabbitMQ.ReconcileQueue))

	return &ReminderQueue{publisher: pub, consumer: cons, strategy: cfg.Retry}, nil
}

// PublishSent announces a reminder that was sent and marked.
func (q *ReminderQueue) PublishSent(_ context.Context, ev ReminderEvent) error {
	return q.publish(SentRoutingKey, ev)
}

// PublishReconcile announces a reminder that was sent but not marked.
func (q *ReminderQueue) PublishReconcile(_ context.Context, ev ReminderEvent) error {
	return q.publish(ReconcileRoutingKey, ev)
}

func (q *ReminderQueue) publish(routingKey string, ev ReminderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return q.publisher.PublishWithRetry(body, routingKey, "application/json", q.strategy)
}

// ConsumeReconcile decodes reconcile events into out until the channel is
// closed. Undecodable messages are logged and dropped.
func (q *ReminderQueue) ConsumeReconcile(out chan<- ReminderEvent) error {
	msgChan := make(chan []byte)

	go func() {
		for m := range msgChan {
			var ev ReminderEvent
			if err := json.Unmarshal(m, &ev); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to unmarshal reconcile event")
				continue
			}

			out <- ev
		}
	}()

	return q.consumer.ConsumeWithRetry(msgChan, q.strategy)
}
