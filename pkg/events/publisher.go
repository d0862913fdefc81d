package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tabbacklog/pkg/domain"
)

// Publisher mirrors pipeline events to an external broker. The event log in
// the database stays the source of truth; the mirror is for downstream
// consumers (notifications, analytics) and is always best-effort.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}

// NopPublisher drops everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) error { return nil }
func (NopPublisher) Close() error                                { return nil }

// AMQPPublisher publishes events to a RabbitMQ topic exchange. Routing keys
// are "tabbacklog.<event_type>", so consumers can bind to e.g.
// "tabbacklog.fetch_error" or "tabbacklog.#".
type AMQPPublisher struct {
	mu       sync.Mutex
	url      string
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("amqp url required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "tabbacklog.events"
	}
	p := &AMQPPublisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("amqp exchange declare: %w", err)
	}
	p.conn = conn
	p.channel = channel
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil || p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, "tabbacklog."+event.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		MessageId:   event.ID,
		Body:        body,
	})
	if err != nil {
		// One reconnect attempt; broker restarts are the common cause.
		if rerr := p.connect(); rerr != nil {
			return err
		}
		return p.channel.PublishWithContext(ctx, p.exchange, "tabbacklog."+event.Type, false, false, amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			MessageId:   event.ID,
			Body:        body,
		})
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
