package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/notify"
	"github.com/iliyamo/homewatch/internal/repository"
)

// errMalformed marks bodies that can never decode.
var errMalformed = errors.New("malformed device event")

// requeueDelay throttles redelivery while a dependency is down.
const requeueDelay = 2 * time.Second

// Recorder is the part of the notification dispatcher the consumers need.
type Recorder interface {
	RecordAndDispatch(ctx context.Context, ev notify.Event) ([]*model.Notification, error)
}

// DeviceEventHandler decodes a DeviceEvent and records it.
type DeviceEventHandler struct {
	recorder Recorder
	source   string
	timeout  time.Duration
	log      *zap.Logger
}

// NewDeviceEventHandler creates a handler tagging events with source.
func NewDeviceEventHandler(recorder Recorder, source string, log *zap.Logger) *DeviceEventHandler {
	return &DeviceEventHandler{recorder: recorder, source: source, timeout: 15 * time.Second, log: log}
}

// Handle processes one message body.
func (h *DeviceEventHandler) Handle(ctx context.Context, body []byte) error {
	var ev DeviceEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	return h.record(ctx, ev)
}

func (h *DeviceEventHandler) record(ctx context.Context, ev DeviceEvent) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	out, err := h.recorder.RecordAndDispatch(ctx, ev.ToEvent(h.source))
	if err != nil {
		return err
	}
	h.log.Debug("device event recorded", zap.String("source", h.source), zap.Int("notifications", len(out)))
	return nil
}

// Consumer reads device.events from RabbitMQ and hands every message to
// the handler.  It reconnects with exponential backoff until ctx is done.
type Consumer struct {
	url          string
	queue        string
	handler      *DeviceEventHandler
	requeueDelay time.Duration
	log          *zap.Logger
}

// NewConsumer creates a consumer of DeviceEventsQueue.
func NewConsumer(url string, handler *DeviceEventHandler, log *zap.Logger) *Consumer {
	return &Consumer{url: url, queue: DeviceEventsQueue, handler: handler, requeueDelay: requeueDelay, log: log}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("device-events consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			c.log.Info("device-events consumer stopped")
			return
		}
		c.log.Warn("device-events consumer: loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("device-events consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(ctx, d, c.handler.Handle(ctx, d.Body))
		}
	}
}

// acknowledger is the settle side of an amqp.Delivery.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// settle acks handled messages, drops ones that can never succeed and
// requeues the rest after requeueDelay.
func (c *Consumer) settle(ctx context.Context, d acknowledger, err error) {
	if err == nil {
		_ = d.Ack(false)
		return
	}
	if !retryable(err) {
		c.log.Warn("device-events consumer: dropping message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	c.log.Warn("device-events consumer: handle failed, requeueing", zap.Error(err))
	sleepCtx(ctx, c.requeueDelay)
	_ = d.Nack(false, true)
}

// retryable reports whether a handler error is transient.  Decode and
// validation failures and unknown devices are not.
func retryable(err error) bool {
	switch {
	case errors.Is(err, errMalformed),
		errors.Is(err, repository.ErrInvalid),
		errors.Is(err, repository.ErrNotFound):
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
