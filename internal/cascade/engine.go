// Package cascade removes topology entities together with everything that
// hangs off them: a region takes its devices and their cameras, a device
// takes its camera, and a camera clears its device's reference.  Each
// cascade runs inside one store transaction and every step treats absence
// as success, so re-running a failed cascade converges.  PurgeUser applies
// the region cascade to every region of a removed account.
package cascade

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/authz"
	"github.com/iliyamo/homewatch/internal/repository"
)

// Engine performs owner-checked cascading deletes.
type Engine struct {
	store repository.Store
	guard *authz.Guard
	log   *zap.Logger
}

// New creates an Engine.
func New(store repository.Store, guard *authz.Guard, log *zap.Logger) *Engine {
	return &Engine{store: store, guard: guard, log: log}
}

// DeleteRegion deletes regionID, all of its devices and their cameras.
func (e *Engine) DeleteRegion(ctx context.Context, regionID, actingUserID string) error {
	if _, err := e.guard.Resolve(ctx, actingUserID, authz.Chain{RegionID: regionID}); err != nil {
		return err
	}
	var removed int
	err := e.store.InTx(ctx, func(tx repository.Store) error {
		n, err := deleteRegion(ctx, tx, regionID)
		removed = n
		return err
	})
	if err != nil {
		e.log.Error("region cascade failed", zap.String("region_id", regionID), zap.Error(err))
		return err
	}
	e.log.Info("region deleted",
		zap.String("region_id", regionID),
		zap.String("user_id", actingUserID),
		zap.Int("devices", removed))
	return nil
}

// DeleteDevice deletes deviceID and its camera.  The device must belong to
// regionID.
func (e *Engine) DeleteDevice(ctx context.Context, deviceID, regionID, actingUserID string) error {
	if _, err := e.guard.Resolve(ctx, actingUserID, authz.Chain{RegionID: regionID, DeviceID: deviceID}); err != nil {
		return err
	}
	err := e.store.InTx(ctx, func(tx repository.Store) error {
		return deleteDevice(ctx, tx, deviceID)
	})
	if err != nil {
		e.log.Error("device cascade failed", zap.String("device_id", deviceID), zap.Error(err))
		return err
	}
	e.log.Info("device deleted", zap.String("device_id", deviceID), zap.String("region_id", regionID))
	return nil
}

// DeleteCamera deletes cameraID and clears the reference on its device.
func (e *Engine) DeleteCamera(ctx context.Context, cameraID, actingUserID string) error {
	res, err := e.guard.Resolve(ctx, actingUserID, authz.Chain{CameraID: cameraID})
	if err != nil {
		return err
	}
	err = e.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Cameras().Delete(ctx, cameraID); err != nil {
			return err
		}
		if ref := res.Device.CamaraID; ref != nil && *ref != cameraID {
			return nil
		}
		return tx.Devices().SetCamera(ctx, res.Device.ID, nil)
	})
	if err != nil {
		e.log.Error("camera delete failed", zap.String("camera_id", cameraID), zap.Error(err))
		return err
	}
	e.log.Info("camera deleted", zap.String("camera_id", cameraID), zap.String("device_id", res.Device.ID))
	return nil
}

// PurgeUser removes an account together with everything it owns: its
// regions with their devices and cameras, its notifications and its
// payments.  It runs against tx so the caller decides the transaction and
// performs any ownership check.
func PurgeUser(ctx context.Context, tx repository.Store, userID string) error {
	regions, err := tx.Regions().ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, r := range regions {
		if _, err := deleteRegion(ctx, tx, r.ID); err != nil {
			return err
		}
	}
	if err := tx.Notifications().DeleteByUser(ctx, userID); err != nil {
		return err
	}
	if err := tx.Payments().DeleteByUser(ctx, userID); err != nil {
		return err
	}
	return tx.Users().Delete(ctx, userID)
}

func deleteRegion(ctx context.Context, tx repository.Store, regionID string) (int, error) {
	devices, err := tx.Devices().ListByRegion(ctx, regionID)
	if err != nil {
		return 0, err
	}
	for _, d := range devices {
		if err := deleteDevice(ctx, tx, d.ID); err != nil {
			return 0, err
		}
	}
	return len(devices), tx.Regions().Delete(ctx, regionID)
}

func deleteDevice(ctx context.Context, tx repository.Store, deviceID string) error {
	if err := tx.Cameras().DeleteByDevice(ctx, deviceID); err != nil {
		return err
	}
	return tx.Devices().Delete(ctx, deviceID)
}
