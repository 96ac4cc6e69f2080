package model

// DefaultCameraType is used when a camera is added without a type; most
// installs use an ESP32 board with an embedded camera.
const DefaultCameraType = "integrada"

// Camera is the optional video source attached to a device.  Tipo is an
// open enumeration validated against the configured camera types.
//
// Fields:
//  ID        – UUID primary key.
//  DeviceID  – owning device.
//  Nombre    – display name.
//  StreamURL – stream locator.
//  Activo    – whether the camera is enabled.
//  Tipo      – camera type (integrada, externa, ip, relay, recording, ...).
type Camera struct {
	ID        string `json:"id"`            // cameras.id
	DeviceID  string `json:"dispositivoId"` // cameras.device_id
	Nombre    string `json:"nombre"`        // cameras.nombre
	StreamURL string `json:"streamUrl"`     // cameras.stream_url
	Activo    bool   `json:"activo"`        // cameras.activo
	Tipo      string `json:"tipo"`          // cameras.tipo
}
