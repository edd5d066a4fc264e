package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"archmarket.io/internal/obs"
	"archmarket.io/internal/workflow"
)

const (
	DefaultExchange = "archmarket.workflow"
	publishTimeout  = 5 * time.Second
)

// Channel is the subset of *amqp.Channel the forwarder needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPForwarder republishes stream events to a topic exchange.
type AMQPForwarder struct {
	ch       Channel
	exchange string
	logger   *slog.Logger
}

// NewAMQPForwarder declares a durable topic exchange and returns a forwarder for it.
func NewAMQPForwarder(ch Channel, exchange string, logger *slog.Logger) (*AMQPForwarder, error) {
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPForwarder{ch: ch, exchange: exchange, logger: obs.ResolveLogger(logger)}, nil
}

// RoutingKey is "<event type>.<destination status>" in lower case,
// e.g. modification_request.transitioned.completed.
func RoutingKey(evt workflow.Event) string {
	return strings.ToLower(evt.Type + "." + string(evt.To))
}

// Forward publishes one event.
func (f *AMQPForwarder) Forward(ctx context.Context, evt workflow.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = f.ch.PublishWithContext(pubCtx, f.exchange, RoutingKey(evt), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.OccurredAt,
		MessageId:    evt.RequestID + ":" + string(evt.To),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run forwards events from s until ctx ends. Publish failures are logged and skipped.
func (f *AMQPForwarder) Run(ctx context.Context, s *Stream) {
	events := s.Subscribe(ctx)
	for evt := range events {
		if err := f.Forward(ctx, evt); err != nil {
			f.logger.Warn("event forward failed", "event", "amqp_forward_failed", "module", "stream",
				"request_id", evt.RequestID, "routing_key", RoutingKey(evt), "error", err.Error())
		}
	}
}
