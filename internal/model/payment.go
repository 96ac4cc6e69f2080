package model

import (
	"encoding/json"
	"time"
)

// PaymentStatus tracks the lifecycle of a subscription payment.
type PaymentStatus string

const (
	PaymentActive    PaymentStatus = "ACTIVE"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentPending   PaymentStatus = "PENDING"
)

// Payment represents a row in the `payments` table.  Provider specific
// data is kept verbatim in RawResponse.
//
// Fields:
//  ID              – UUID primary key.
//  UserID          – account that paid.
//  SubscriptionID  – provider subscription id (optional).
//  Status          – ACTIVE, CANCELLED or PENDING.
//  Amount          – amount charged.
//  Currency        – ISO currency, ARS by default.
//  PaidAt          – when the payment was recorded.
//  NextPaymentDate – when the next charge is due (nullable).
//  RawResponse     – provider payload.
type Payment struct {
	ID              string          `json:"id"`
	UserID          string          `json:"usuario"`
	SubscriptionID  string          `json:"subscriptionId,omitempty"`
	Status          PaymentStatus   `json:"status"`
	Amount          float64         `json:"monto"`
	Currency        string          `json:"moneda"`
	PaidAt          time.Time       `json:"fechaPago"`
	NextPaymentDate *time.Time      `json:"nextPaymentDate,omitempty"`
	RawResponse     json.RawMessage `json:"rawResponse,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}
