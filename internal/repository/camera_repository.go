package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/homewatch/internal/model"
)

// CameraRepo is the MySQL CameraRepository.
type CameraRepo struct {
	db DBTX
}

const cameraColumns = "id, device_id, nombre, stream_url, activo, tipo"

func scanCamera(row interface{ Scan(...any) error }) (*model.Camera, error) {
	var c model.Camera
	if err := row.Scan(&c.ID, &c.DeviceID, &c.Nombre, &c.StreamURL, &c.Activo, &c.Tipo); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new camera.
func (r *CameraRepo) Create(ctx context.Context, c *model.Camera) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO cameras ("+cameraColumns+") VALUES (?,?,?,?,?,?)",
		c.ID, c.DeviceID, c.Nombre, c.StreamURL, c.Activo, c.Tipo)
	if err != nil && isDuplicate(err) {
		return fmt.Errorf("device %s already has a camera: %w", c.DeviceID, ErrConflict)
	}
	return err
}

func (r *CameraRepo) one(ctx context.Context, where, arg string) (*model.Camera, error) {
	c, err := scanCamera(r.db.QueryRowContext(ctx, "SELECT "+cameraColumns+" FROM cameras WHERE "+where+" LIMIT 1", arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("camera: %w", ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}

// GetByID fetches a camera by id.
func (r *CameraRepo) GetByID(ctx context.Context, id string) (*model.Camera, error) {
	return r.one(ctx, "id = ?", id)
}

// GetByDevice fetches the camera attached to deviceID.
func (r *CameraRepo) GetByDevice(ctx context.Context, deviceID string) (*model.Camera, error) {
	return r.one(ctx, "device_id = ?", deviceID)
}

// ListActiveByDevices returns active cameras of the given devices.
func (r *CameraRepo) ListActiveByDevices(ctx context.Context, deviceIDs []string) ([]*model.Camera, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+cameraColumns+" FROM cameras WHERE activo = TRUE AND device_id IN ("+placeholders(len(deviceIDs))+") ORDER BY id",
		stringArgs(deviceIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update writes name, stream locator, type and active flag.
func (r *CameraRepo) Update(ctx context.Context, c *model.Camera) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE cameras SET nombre = ?, stream_url = ?, tipo = ?, activo = ? WHERE id = ?",
		c.Nombre, c.StreamURL, c.Tipo, c.Activo, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("camera %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a camera by id.
func (r *CameraRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM cameras WHERE id = ?", id)
	return err
}

// DeleteByDevice removes whatever camera is attached to deviceID.
func (r *CameraRepo) DeleteByDevice(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM cameras WHERE device_id = ?", deviceID)
	return err
}
