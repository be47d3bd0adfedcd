// Package messaging publishes portal audit events to RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/config"
	"github.com/spec-kit/worker-portal/internal/events"
)

const (
	reconnectDelay = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrChannelUnavailable is returned while the broker connection is down.
var ErrChannelUnavailable = errors.New("amqp channel not available")

// RabbitMQ publishes events to a durable topic exchange and reconnects when
// the broker drops the connection.
type RabbitMQ struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	done    chan struct{}
	once    sync.Once
}

// NewRabbitMQ dials the broker and declares the audit exchange.
func NewRabbitMQ(cfg config.AMQPConfig, logger *zap.Logger) (*RabbitMQ, error) {
	if cfg.URL == "" {
		return nil, errors.New("AMQP_URL is empty")
	}
	r := &RabbitMQ{
		url:      cfg.URL,
		exchange: cfg.Exchange,
		logger:   logger,
		done:     make(chan struct{}),
	}
	if err := r.connect(); err != nil {
		return nil, err
	}
	go r.handleReconnect()
	return r, nil
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		r.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", r.exchange, err)
	}

	r.conn, r.channel = conn, ch
	r.logger.Info("rabbitmq connected", zap.String("exchange", r.exchange))
	return nil
}

func (r *RabbitMQ) handleReconnect() {
	for {
		r.mu.RLock()
		closed := r.conn.NotifyClose(make(chan *amqp.Error, 1))
		r.mu.RUnlock()

		select {
		case <-r.done:
			return
		case err := <-closed:
			if err != nil {
				r.logger.Warn("rabbitmq connection lost, reconnecting", zap.Error(err))
			}
		}

		r.mu.Lock()
		r.channel = nil
		for {
			select {
			case <-r.done:
				r.mu.Unlock()
				return
			default:
			}
			if err := r.connect(); err != nil {
				r.logger.Warn("rabbitmq reconnect failed", zap.Error(err), zap.Duration("retry_in", reconnectDelay))
				time.Sleep(reconnectDelay)
				continue
			}
			break
		}
		r.mu.Unlock()
	}
}

// Publish sends the event as persistent JSON under routingKey.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, event events.Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.channel == nil {
		return ErrChannelUnavailable
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.Timestamp,
			Type:         string(event.Type),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	r.logger.Debug("audit event published", zap.String("routing_key", routingKey), zap.String("event_id", event.ID))
	return nil
}

// Close stops reconnecting and closes the channel and connection.
func (r *RabbitMQ) Close() {
	r.once.Do(func() { close(r.done) })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.logger.Info("rabbitmq connection closed")
}
