package model

// Device is an ESP32-class sensor unit installed in a region.  The MAC
// address is the identifier the device-control gateway and the event
// ingestion paths use.
//
// Fields:
//  ID         – UUID primary key.
//  RegionID   – containing region.
//  Nombre     – display name.
//  MACAddress – hardware address.
//  Activo     – whether the device is enabled.
//  CamaraID   – attached camera (nullable, at most one).
type Device struct {
	ID         string  `json:"id"`                 // devices.id
	RegionID   string  `json:"regionId"`           // devices.region_id
	Nombre     string  `json:"nombre"`             // devices.nombre
	MACAddress string  `json:"macAddress"`         // devices.mac_address
	Activo     bool    `json:"activo"`             // devices.activo
	CamaraID   *string `json:"camaraId,omitempty"` // devices.camara_id (nullable)
}
