package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/notify"
	"github.com/iliyamo/homewatch/internal/repository"
)

type fakeRecorder struct {
	events []notify.Event
	err    error
}

func (f *fakeRecorder) RecordAndDispatch(_ context.Context, ev notify.Event) ([]*model.Notification, error) {
	f.events = append(f.events, ev)
	if f.err != nil {
		return nil, f.err
	}
	return []*model.Notification{{ID: "n1"}}, nil
}

func TestDeviceEventHandler_Handle(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewDeviceEventHandler(rec, "amqp", zap.NewNop())

	body := []byte(`{"dispositivos":["AA:01","AA:02"],"tipoEvento":"movimiento","descripcion":"Puerta abierta","criticidad":"alta"}`)
	require.NoError(t, h.Handle(context.Background(), body))

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, []string{"AA:01", "AA:02"}, ev.MACs)
	assert.Equal(t, model.SeverityHigh, ev.Criticidad)
	assert.Equal(t, "amqp", ev.Source)
}

func TestDeviceEventHandler_Errors(t *testing.T) {
	rec := &fakeRecorder{err: repository.ErrNotFound}
	h := NewDeviceEventHandler(rec, "amqp", zap.NewNop())

	assert.Error(t, h.Handle(context.Background(), []byte(`{not json`)))
	assert.Empty(t, rec.events)

	err := h.Handle(context.Background(), []byte(`{"dispositivos":["ZZ"],"tipoEvento":"x","criticidad":"baja"}`))
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestMQTT_MACFromTopic(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewMQTTSubscriber(MQTTConfig{Broker: "tcp://127.0.0.1:1", ClientID: "t", Topic: "homewatch/devices/+/events"},
		NewDeviceEventHandler(rec, "mqtt", zap.NewNop()), zap.NewNop())

	err := s.handle(context.Background(), "homewatch/devices/AA:01/events", []byte(`{"tipoEvento":"caida","criticidad":"media"}`))
	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	assert.Equal(t, []string{"AA:01"}, rec.events[0].MACs)
	assert.Equal(t, "mqtt", rec.events[0].Source)

	err = s.handle(context.Background(), "homewatch/devices/AA:01/events", []byte(`{"dispositivos":["BB:02"],"tipoEvento":"caida","criticidad":"media"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"BB:02"}, rec.events[1].MACs)
}

func TestMacFromTopic(t *testing.T) {
	assert.Equal(t, "AA", macFromTopic("a/+/c", "a/AA/c"))
	assert.Empty(t, macFromTopic("a/+/c", "a/AA"))
	assert.Empty(t, macFromTopic("a/b/c", "a/b/c"))
}

func TestNotificationCreatedMessage(t *testing.T) {
	url := "rtsp://cam"
	n := &model.Notification{
		ID:           "n1",
		RegionID:     "r1",
		UserID:       "u1",
		TipoEvento:   "movimiento",
		Criticidad:   model.SeverityHigh,
		FechaHora:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Dispositivos: []model.DeviceSnapshot{{Nombre: "Puerta", URL: &url}},
	}

	msg, err := notificationCreatedMessage(n)
	require.NoError(t, err)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "n1", msg.MessageId)

	var ev NotificationCreatedEvent
	require.NoError(t, json.Unmarshal(msg.Body, &ev))
	assert.Equal(t, "r1", ev.RegionID)
	assert.Equal(t, "alta", ev.Criticidad)
	assert.Equal(t, "2026-03-01T12:00:00Z", ev.CreatedAt)
	require.Len(t, ev.Devices, 1)
}

type fakeDelivery struct {
	acked, nacked, requeued bool
}

func (d *fakeDelivery) Ack(bool) error {
	d.acked = true
	return nil
}

func (d *fakeDelivery) Nack(_, requeue bool) error {
	d.nacked, d.requeued = true, requeue
	return nil
}

func TestConsumer_Settle(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewDeviceEventHandler(rec, "amqp", zap.NewNop())
	c := NewConsumer("amqp://unused", h, zap.NewNop())
	c.requeueDelay = time.Millisecond
	ctx := context.Background()

	malformed := h.Handle(ctx, []byte(`{not json`))
	require.Error(t, malformed)

	cases := []struct {
		name    string
		err     error
		acked   bool
		requeue bool
	}{
		{"handled", nil, true, false},
		{"malformed body", malformed, false, false},
		{"invalid event", fmt.Errorf("record: %w", repository.ErrInvalid), false, false},
		{"unknown device", repository.ErrNotFound, false, false},
		{"database down", errors.New("dial tcp 127.0.0.1:3306: connection refused"), false, true},
		{"deadline", fmt.Errorf("insert: %w", context.DeadlineExceeded), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &fakeDelivery{}
			c.settle(ctx, d, tc.err)
			assert.Equal(t, tc.acked, d.acked)
			assert.Equal(t, !tc.acked, d.nacked)
			assert.Equal(t, tc.requeue, d.requeued)
		})
	}
}
