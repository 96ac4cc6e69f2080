package model

import (
	"strings"
	"time"
)

// Severity is the criticality of a notification.
type Severity string

const (
	SeverityLow    Severity = "baja"
	SeverityMedium Severity = "media"
	SeverityHigh   Severity = "alta"
)

// ParseSeverity normalizes raw to a stored severity.  Case and surrounding
// space are ignored and the English names low, medium and high are accepted
// as aliases.  Unknown values are returned lower-cased and fail Valid.
func ParseSeverity(raw string) Severity {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	}
	return Severity(s)
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// DeviceSnapshot is the copy of a device taken when a notification is
// created.  URL is the stream locator of the device's active camera, or
// nil when it had none.
type DeviceSnapshot struct {
	Nombre string  `json:"nombre"`
	URL    *string `json:"url"`
}

// Notification is an immutable alarm/care event record.  The Dispositivos
// snapshot never follows later edits or deletes of devices and cameras.
//
// Fields:
//  ID           – UUID primary key.
//  RegionID     – region the event happened in.
//  UserID       – owner of the region at creation time.
//  TipoEvento   – event type reported by the device.
//  Descripcion  – free text.
//  Criticidad   – baja, media or alta.
//  FechaHora    – creation timestamp.
//  Dispositivos – snapshot of the involved devices.
type Notification struct {
	ID           string           `json:"id"`           // notifications.id
	RegionID     string           `json:"regionId"`     // notifications.region_id
	UserID       string           `json:"userId"`       // notifications.user_id
	TipoEvento   string           `json:"tipoEvento"`   // notifications.tipo_evento
	Descripcion  string           `json:"descripcion"`  // notifications.descripcion
	Criticidad   Severity         `json:"criticidad"`   // notifications.criticidad
	FechaHora    time.Time        `json:"fechaHora"`    // notifications.fecha_hora
	Dispositivos []DeviceSnapshot `json:"dispositivos"` // notifications.dispositivos (JSON)
}
