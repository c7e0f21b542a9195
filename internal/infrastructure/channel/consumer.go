// Package channel is the external messaging transport: an AMQP consumer
// for inbound events and an HTTP gateway client for outbound sends.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"dealdesk/internal/application/service/inbound"
	"dealdesk/internal/config"
	"dealdesk/internal/domain/entity/chat"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer subscribes to the chat events fanout exchange and feeds
// inbound events into the merge buffer.
type Consumer struct {
	cfg    config.RabbitConfig
	buffer *inbound.Buffer
	logger *logrus.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
	wg   sync.WaitGroup
}

func NewConsumer(cfg config.RabbitConfig, buffer *inbound.Buffer, logger *logrus.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	return &Consumer{cfg: cfg, buffer: buffer, logger: logger}, nil
}

// Start establishes the AMQP connection and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	c.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	c.ch = ch

	if err := ch.ExchangeDeclare(c.cfg.EventsExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.cfg.EventsExchange, err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", c.cfg.EventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue.Name, c.cfg.EventsExchange, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	c.wg.Add(1)
	go c.consumeLoop(ctx, deliveries)

	c.logger.WithField("exchange", c.cfg.EventsExchange).Info("chat events consumer started")
	return nil
}

// Close stops consumption and releases the connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.wg.Wait()
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.handleDelivery(&delivery); err != nil {
				c.logger.WithError(err).Warn("failed to process chat event")
				_ = delivery.Nack(false, false)
				continue
			}
			if err := delivery.Ack(false); err != nil {
				c.logger.WithError(err).Warn("failed to ack delivery")
			}
		}
	}
}

func (c *Consumer) handleDelivery(delivery *amqp.Delivery) error {
	var event chat.InboundEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		return fmt.Errorf("decode chat event: %w", err)
	}
	// Echoes of our own outbound messages come back through the same
	// exchange; they are already recorded.
	if event.IsOwn {
		return nil
	}
	c.buffer.Add(event)
	return nil
}
