// Package queue defines message payloads exchanged over the message brokers
// and the consumers and publisher that move them.
package queue

import (
	"time"

	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/notify"
)

// Queue names on RabbitMQ.
const (
	DeviceEventsQueue        = "device.events"
	NotificationCreatedQueue = "notification.created"
)

// DeviceEvent is what a device (or the edge bridge in front of it) reports.
// It mirrors the body of POST /api/notificaciones/enviar.
type DeviceEvent struct {
	Dispositivos []string `json:"dispositivos"`
	TipoEvento   string   `json:"tipoEvento"`
	Descripcion  string   `json:"descripcion"`
	Criticidad   string   `json:"criticidad"`
}

// ToEvent converts the wire payload for the dispatcher.
func (e DeviceEvent) ToEvent(source string) notify.Event {
	return notify.Event{
		MACs:        e.Dispositivos,
		TipoEvento:  e.TipoEvento,
		Descripcion: e.Descripcion,
		Criticidad:  model.Severity(e.Criticidad),
		Source:      source,
	}
}

// NotificationCreatedEvent is published after a notification is stored.
// It carries enough for downstream consumers (analytics, e-mail digests)
// without querying the primary database.
type NotificationCreatedEvent struct {
	NotificationID string                 `json:"notification_id"`
	RegionID       string                 `json:"region_id"`
	UserID         string                 `json:"user_id"`
	TipoEvento     string                 `json:"tipo_evento"`
	Criticidad     string                 `json:"criticidad"`
	Devices        []model.DeviceSnapshot `json:"dispositivos"`
	CreatedAt      string                 `json:"created_at"`
}

// NewNotificationCreatedEvent builds the event for n.
func NewNotificationCreatedEvent(n *model.Notification) NotificationCreatedEvent {
	return NotificationCreatedEvent{
		NotificationID: n.ID,
		RegionID:       n.RegionID,
		UserID:         n.UserID,
		TipoEvento:     n.TipoEvento,
		Criticidad:     string(n.Criticidad),
		Devices:        n.Dispositivos,
		CreatedAt:      n.FechaHora.UTC().Format(time.RFC3339),
	}
}
