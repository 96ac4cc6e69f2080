package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/metrics"
	"github.com/iliyamo/homewatch/internal/model"
)

// Publisher publishes notification.created events.  The connection is
// opened lazily and re-dialled after a failure.
type Publisher struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher creates a Publisher for url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// PublishNotificationCreated publishes n as a persistent message.  Errors
// are logged, counted and returned; callers may ignore them.
func (p *Publisher) PublishNotificationCreated(ctx context.Context, n *model.Notification) error {
	msg, err := notificationCreatedMessage(n)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		return p.fail(err)
	}
	if err := p.ch.PublishWithContext(ctx, "", NotificationCreatedQueue, false, false, msg); err != nil {
		p.reset()
		return p.fail(fmt.Errorf("publish: %w", err))
	}
	return nil
}

func notificationCreatedMessage(n *model.Notification) (amqp.Publishing, error) {
	body, err := json.Marshal(NewNotificationCreatedEvent(n))
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

func (p *Publisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(NotificationCreatedQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *Publisher) fail(err error) error {
	metrics.BrokerPublishFailuresTotal.WithLabelValues(NotificationCreatedQueue).Inc()
	p.log.Warn("rabbitmq publish failed", zap.String("queue", NotificationCreatedQueue), zap.Error(err))
	return err
}

// Close releases the connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
