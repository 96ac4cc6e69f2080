// Package authz resolves the acting user's ownership of a topology chain
// (region → device → camera) or of a notification.  Every reading and
// mutating topology operation goes through Guard; nothing is cached, so a
// tier or ownership change is seen on the very next request.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/repository"
)

// Chain names the resources a request addresses.  Any suffix may be empty:
// a camera-only chain is walked upwards Camera→Device→Region, and a chain
// with no ids only authenticates the acting user.
type Chain struct {
	RegionID string
	DeviceID string
	CameraID string
}

// Resolution carries every entity loaded while checking a chain so callers
// do not fetch them again.
type Resolution struct {
	User   *model.User
	Region *model.Region
	Device *model.Device
	Camera *model.Camera
}

// Guard checks ownership against the store.
type Guard struct {
	store repository.Store
}

// NewGuard creates a Guard reading from store.
func NewGuard(store repository.Store) *Guard {
	return &Guard{store: store}
}

// Authenticate loads the acting user.  An empty id or an id that no longer
// maps to an account is ErrUnauthenticated.
func (g *Guard) Authenticate(ctx context.Context, actingUserID string) (*model.User, error) {
	if actingUserID == "" {
		return nil, repository.ErrUnauthenticated
	}
	u, err := g.store.Users().GetByID(ctx, actingUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("user %s gone: %w", actingUserID, repository.ErrUnauthenticated)
		}
		return nil, err
	}
	return u, nil
}

// Resolve walks chain and confirms the root region belongs to the acting
// user.  A missing link, a device outside the given region or a camera
// outside the given device is ErrNotFound; a foreign region is
// ErrForbidden.
func (g *Guard) Resolve(ctx context.Context, actingUserID string, chain Chain) (*Resolution, error) {
	u, err := g.Authenticate(ctx, actingUserID)
	if err != nil {
		return nil, err
	}
	res := &Resolution{User: u}

	if chain.CameraID != "" {
		cam, err := g.store.Cameras().GetByID(ctx, chain.CameraID)
		if err != nil {
			return nil, err
		}
		if chain.DeviceID != "" && cam.DeviceID != chain.DeviceID {
			return nil, fmt.Errorf("camera %s not on device %s: %w", cam.ID, chain.DeviceID, repository.ErrNotFound)
		}
		chain.DeviceID = cam.DeviceID
		res.Camera = cam
	}

	if chain.DeviceID != "" {
		dev, err := g.store.Devices().GetByID(ctx, chain.DeviceID)
		if err != nil {
			return nil, err
		}
		if chain.RegionID != "" && dev.RegionID != chain.RegionID {
			return nil, fmt.Errorf("device %s not in region %s: %w", dev.ID, chain.RegionID, repository.ErrNotFound)
		}
		chain.RegionID = dev.RegionID
		res.Device = dev
	}

	if chain.RegionID == "" {
		return res, nil
	}
	reg, err := g.store.Regions().GetByID(ctx, chain.RegionID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != u.ID {
		return nil, fmt.Errorf("region %s: %w", reg.ID, repository.ErrForbidden)
	}
	res.Region = reg
	return res, nil
}

// ResolveNotification loads a notification owned by the acting user.
func (g *Guard) ResolveNotification(ctx context.Context, actingUserID, notificationID string) (*model.User, *model.Notification, error) {
	u, err := g.Authenticate(ctx, actingUserID)
	if err != nil {
		return nil, nil, err
	}
	n, err := g.store.Notifications().GetByID(ctx, notificationID)
	if err != nil {
		return nil, nil, err
	}
	if n.UserID != u.ID {
		return nil, nil, fmt.Errorf("notification %s: %w", n.ID, repository.ErrForbidden)
	}
	return u, n, nil
}
