package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/homewatch/internal/model"
)

// DeviceRepo is the MySQL DeviceRepository.
type DeviceRepo struct {
	db DBTX
}

const deviceColumns = "id, region_id, nombre, mac_address, activo, camara_id"

func scanDevice(row interface{ Scan(...any) error }) (*model.Device, error) {
	var (
		d   model.Device
		cam sql.NullString
	)
	if err := row.Scan(&d.ID, &d.RegionID, &d.Nombre, &d.MACAddress, &d.Activo, &cam); err != nil {
		return nil, err
	}
	if cam.Valid {
		d.CamaraID = &cam.String
	}
	return &d, nil
}

func (r *DeviceRepo) list(ctx context.Context, q string, args ...any) ([]*model.Device, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Create inserts a new device.
func (r *DeviceRepo) Create(ctx context.Context, d *model.Device) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO devices ("+deviceColumns+") VALUES (?,?,?,?,?,?)",
		d.ID, d.RegionID, d.Nombre, d.MACAddress, d.Activo, d.CamaraID)
	return err
}

// GetByID fetches a device by id.
func (r *DeviceRepo) GetByID(ctx context.Context, id string) (*model.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return d, nil
}

// ListByRegion returns the devices of a region.
func (r *DeviceRepo) ListByRegion(ctx context.Context, regionID string) ([]*model.Device, error) {
	return r.list(ctx, "SELECT "+deviceColumns+" FROM devices WHERE region_id = ? ORDER BY nombre, id", regionID)
}

// ListByMACs resolves devices by hardware address.
func (r *DeviceRepo) ListByMACs(ctx context.Context, macs []string) ([]*model.Device, error) {
	if len(macs) == 0 {
		return nil, nil
	}
	return r.list(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE mac_address IN ("+placeholders(len(macs))+") ORDER BY id",
		stringArgs(macs)...)
}

// CountByUser counts devices in every region owned by userID.
func (r *DeviceRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM devices d JOIN regions r ON r.id = d.region_id WHERE r.user_id = ?`, userID).Scan(&n)
	return n, err
}

// Update writes name, MAC and active flag.
func (r *DeviceRepo) Update(ctx context.Context, d *model.Device) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE devices SET nombre = ?, mac_address = ?, activo = ? WHERE id = ?",
		d.Nombre, d.MACAddress, d.Activo, d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("device %s: %w", d.ID, ErrNotFound)
	}
	return nil
}

// SetCamera sets or clears (nil) the device's camera reference.
func (r *DeviceRepo) SetCamera(ctx context.Context, deviceID string, cameraID *string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE devices SET camara_id = ? WHERE id = ?", cameraID, deviceID)
	return err
}

// Delete removes a device row.
func (r *DeviceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	return err
}
