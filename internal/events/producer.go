// Package events publishes billing domain events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

// Producer owns one connection and one channel. Publishes are serialized
// because an AMQP channel must not be shared between goroutines.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func NewProducer(amqpURL, exchange string, logger *slog.Logger) (*Producer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dialing amqp: %w", err)
	}

	p := &Producer{conn: conn, exchange: exchange, logger: logger}

	if err := p.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}

	return p, nil
}

func (p *Producer) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declaring exchange %s: %w", p.exchange, err)
	}

	p.channel = ch

	return nil
}

// Publish sends the event with its type as routing key. A closed channel is
// reopened once before giving up.
func (p *Producer) Publish(ctx context.Context, e billing.Event) error {
	msg, err := newPublishing(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg)
	if err == nil {
		return nil
	}

	p.logger.Warn("publish failed, reopening channel", "exchange", p.exchange, "routing_key", e.Type, "error", err)

	if reopenErr := p.openChannel(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}

	return p.channel.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg)
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}

	if p.conn != nil {
		p.conn.Close()
	}
}

func newPublishing(e billing.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encoding event: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID(e),
		Type:         string(e.Type),
		Timestamp:    e.OccurredAt,
		Body:         body,
	}, nil
}

// messageID is stable per event so consumers can drop redeliveries.
func messageID(e billing.Event) string {
	if e.IntentID != nil {
		return string(e.Type) + ":" + e.IntentID.String()
	}

	return string(e.Type) + ":" + e.PaymentID.String()
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")

	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parsing amqp url: %w", err)
	}

	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url must start with amqp:// or amqps://")
	}

	return clean, nil
}

// Fallback drops events with a warning. It stands in when no broker is configured
// or the broker is unreachable at startup.
type Fallback struct {
	Logger *slog.Logger
}

func (f Fallback) Publish(_ context.Context, e billing.Event) error {
	f.Logger.Warn("event publish skipped", "type", e.Type, "payment_id", e.PaymentID)
	return nil
}

// Connect returns a live producer, or Fallback when amqpURL is empty or the
// broker cannot be reached. The returned close func is always safe to call.
func Connect(amqpURL, exchange string, logger *slog.Logger) (billing.Publisher, func()) {
	if amqpURL == "" {
		logger.Info("amqp not configured, events disabled")
		return Fallback{Logger: logger}, func() {}
	}

	p, err := NewProducer(amqpURL, exchange, logger)
	if err != nil {
		logger.Warn("amqp unavailable, events disabled", "error", err)
		return Fallback{Logger: logger}, func() {}
	}

	return p, p.Close
}
