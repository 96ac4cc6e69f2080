package model

import "time"

// DetectionMode selects which behaviour the devices of a region run.
type DetectionMode string

const (
	ModeAlarm DetectionMode = "ALARM"
	ModeCare  DetectionMode = "CARE"
)

// DefaultMode is the mode every new region starts in.
const DefaultMode = ModeAlarm

// Valid reports whether m is a known detection mode.
func (m DetectionMode) Valid() bool {
	return m == ModeAlarm || m == ModeCare
}

// Region represents a physical site owned by a single user.  Ownership is
// recorded by reference only; the store does not enforce it.
//
// Fields:
//  ID            – UUID primary key.
//  UserID        – owning account.
//  Nombre        – display name.
//  Direccion     – street address.
//  Ciudad        – city.
//  ModoDeteccion – ALARM or CARE.
type Region struct {
	ID            string        `json:"id"`            // regions.id
	UserID        string        `json:"userId"`        // regions.user_id
	Nombre        string        `json:"nombre"`        // regions.nombre
	Direccion     string        `json:"direccion"`     // regions.direccion
	Ciudad        string        `json:"ciudad"`        // regions.ciudad
	ModoDeteccion DetectionMode `json:"modoDeteccion"` // regions.modo_deteccion
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
