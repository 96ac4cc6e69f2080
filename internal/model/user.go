package model

import "time"

// Tier is the subscription level of an account.
type Tier string

const (
	TierNormal   Tier = "NORMAL"
	TierPremium  Tier = "PREMIUM"
	TierAdherent Tier = "ADHERENTE"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierNormal, TierPremium, TierAdherent:
		return true
	}
	return false
}

// User represents an account as stored in the `users` table plus the
// collections that hang off it.  Adherents is derived from the
// premium_ref column of other users; PushTokens lives in
// `user_push_tokens` and Payments in `payments`.
//
// Fields:
//  ID           – UUID primary key.
//  Nombre       – given name.
//  Apellido     – family name.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hash, never serialized.
//  Tier         – NORMAL, PREMIUM or ADHERENTE.
//  PremiumRef   – owning PREMIUM account (only for ADHERENTE).
//  Adherents    – ids of linked adherent accounts (only for PREMIUM).
//  Payments     – ids of recorded payments.
//  PushTokens   – Expo push tokens registered by the user's phones.
type User struct {
	ID           string    `json:"id"`                   // users.id
	Nombre       string    `json:"nombre"`               // users.nombre
	Apellido     string    `json:"apellido"`             // users.apellido
	Email        string    `json:"email"`                // users.email
	PasswordHash string    `json:"-"`                    // users.password_hash
	Tier         Tier      `json:"tipo"`                 // users.tier
	PremiumRef   *string   `json:"premiumRef,omitempty"` // users.premium_ref (nullable)
	Adherents    []string  `json:"adherentes"`
	Payments     []string  `json:"pagos"`
	PushTokens   []string  `json:"expoTokens"`
	CreatedAt    time.Time `json:"createdAt"` // users.created_at
	UpdatedAt    time.Time `json:"updatedAt"` // users.updated_at
}

// Clone returns a deep copy so callers can mutate slices freely.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.PremiumRef != nil {
		ref := *u.PremiumRef
		c.PremiumRef = &ref
	}
	c.Adherents = append([]string(nil), u.Adherents...)
	c.Payments = append([]string(nil), u.Payments...)
	c.PushTokens = append([]string(nil), u.PushTokens...)
	return &c
}
