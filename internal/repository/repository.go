// Package repository contains data access logic separated from HTTP
// handlers.  Each collection has an interface with a MySQL implementation
// (used in production) and an in-memory implementation (local development
// and tests).  A Store bundles them and can run a function inside a single
// transaction so multi-entity cascades commit or roll back together.
package repository

import (
	"context"

	"github.com/iliyamo/homewatch/internal/model"
)

// UserRepository persists accounts and their push tokens.
type UserRepository interface {
	// Create inserts u and returns ErrConflict when the email is taken.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateTier sets the tier and premium reference in one write.
	UpdateTier(ctx context.Context, id string, tier model.Tier, premiumRef *string) error
	ListAdherents(ctx context.Context, premiumID string) ([]*model.User, error)
	CountAdherents(ctx context.Context, premiumID string) (int, error)
	// Delete removes the account and its push tokens; absence is not an error.
	Delete(ctx context.Context, id string) error
	AddPushToken(ctx context.Context, userID, token string) error
	RemovePushToken(ctx context.Context, userID, token string) error
	PushTokens(ctx context.Context, userID string) ([]string, error)
}

// PaymentRepository persists subscription payments.
type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	ListByUser(ctx context.Context, userID string) ([]*model.Payment, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// RegionRepository persists regions.
type RegionRepository interface {
	Create(ctx context.Context, r *model.Region) error
	GetByID(ctx context.Context, id string) (*model.Region, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Region, error)
	// Update writes every editable field of r (name, address, city, mode).
	Update(ctx context.Context, r *model.Region) error
	// Delete removes the region; absence is not an error.
	Delete(ctx context.Context, id string) error
}

// DeviceRepository persists devices.
type DeviceRepository interface {
	Create(ctx context.Context, d *model.Device) error
	GetByID(ctx context.Context, id string) (*model.Device, error)
	ListByRegion(ctx context.Context, regionID string) ([]*model.Device, error)
	// ListByMACs returns every device whose MAC is in macs, in store order.
	ListByMACs(ctx context.Context, macs []string) ([]*model.Device, error)
	// CountByUser counts devices across all regions owned by userID.
	CountByUser(ctx context.Context, userID string) (int, error)
	Update(ctx context.Context, d *model.Device) error
	SetCamera(ctx context.Context, deviceID string, cameraID *string) error
	// Delete removes the device; absence is not an error.
	Delete(ctx context.Context, id string) error
}

// CameraRepository persists cameras.
type CameraRepository interface {
	Create(ctx context.Context, c *model.Camera) error
	GetByID(ctx context.Context, id string) (*model.Camera, error)
	GetByDevice(ctx context.Context, deviceID string) (*model.Camera, error)
	// ListActiveByDevices returns active cameras attached to any of deviceIDs.
	ListActiveByDevices(ctx context.Context, deviceIDs []string) ([]*model.Camera, error)
	Update(ctx context.Context, c *model.Camera) error
	// Delete and DeleteByDevice treat absence as success.
	Delete(ctx context.Context, id string) error
	DeleteByDevice(ctx context.Context, deviceID string) error
}

// NotificationRepository persists notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	// ListByUser returns newest first; limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// Store bundles every repository.  InTx runs fn against a Store bound to a
// single transaction; returning an error from fn rolls everything back.
type Store interface {
	Users() UserRepository
	Payments() PaymentRepository
	Regions() RegionRepository
	Devices() DeviceRepository
	Cameras() CameraRepository
	Notifications() NotificationRepository
	InTx(ctx context.Context, fn func(tx Store) error) error
}
