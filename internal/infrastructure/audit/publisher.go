// Package audit publishes user action events to a fanout exchange.
// Delivery is fire-and-forget: an unreachable broker degrades audit to
// log lines, never the operation itself.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"dealdesk/internal/config"
	"dealdesk/internal/domain/interfaces"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher sends audit events to RabbitMQ.
type Publisher struct {
	cfg    config.RabbitConfig
	logger *logrus.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(cfg config.RabbitConfig, logger *logrus.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	p := &Publisher{cfg: cfg, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.cfg.AuditExchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.cfg.AuditExchange, err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// Record publishes one event. Failures are logged and swallowed.
func (p *Publisher) Record(ctx context.Context, event interfaces.AuditEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Warn("audit event marshal failed")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.cfg.AuditExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.logger.WithError(err).WithField("action", event.Action).Warn("audit publish failed")
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// NopSink discards audit events. Used in tests and when the broker is
// not configured.
type NopSink struct{}

func (NopSink) Record(context.Context, interfaces.AuditEvent) {}
