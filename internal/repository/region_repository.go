// This file defines the MySQL repository for regions.  A Region is a
// physical site owned by a single user and may contain multiple devices.
// Ownership is not enforced here; callers go through the authorization
// guard before reading or mutating a region.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/homewatch/internal/model"
)

// RegionRepo encapsulates all database queries related to regions.
type RegionRepo struct {
	db DBTX // db is the pool or the active transaction
}

const regionColumns = "id, user_id, nombre, direccion, ciudad, modo_deteccion, created_at, updated_at"

func scanRegion(row interface{ Scan(...any) error }) (*model.Region, error) {
	var (
		reg  model.Region
		mode string
	)
	if err := row.Scan(&reg.ID, &reg.UserID, &reg.Nombre, &reg.Direccion, &reg.Ciudad, &mode, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
		return nil, err
	}
	reg.ModoDeteccion = model.DetectionMode(mode)
	return &reg, nil
}

// Create inserts a new region.  An empty mode defaults to ALARM.
func (r *RegionRepo) Create(ctx context.Context, reg *model.Region) error {
	if reg.ModoDeteccion == "" {
		reg.ModoDeteccion = model.DefaultMode
	}
	now := time.Now().UTC()
	reg.CreatedAt, reg.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO regions ("+regionColumns+") VALUES (?,?,?,?,?,?,?,?)",
		reg.ID, reg.UserID, reg.Nombre, reg.Direccion, reg.Ciudad, string(reg.ModoDeteccion), reg.CreatedAt, reg.UpdatedAt)
	return err
}

// GetByID fetches a region regardless of owner.
func (r *RegionRepo) GetByID(ctx context.Context, id string) (*model.Region, error) {
	reg, err := scanRegion(r.db.QueryRowContext(ctx, "SELECT "+regionColumns+" FROM regions WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("region %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return reg, nil
}

// ListByUser returns all regions owned by userID ordered by creation.
func (r *RegionRepo) ListByUser(ctx context.Context, userID string) ([]*model.Region, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+regionColumns+" FROM regions WHERE user_id = ? ORDER BY created_at, id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Region
	for rows.Next() {
		reg, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes the editable fields of reg in a single statement.
func (r *RegionRepo) Update(ctx context.Context, reg *model.Region) error {
	reg.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE regions
		 SET nombre = ?, direccion = ?, ciudad = ?, modo_deteccion = ?, updated_at = ?
		 WHERE id = ?`,
		reg.Nombre, reg.Direccion, reg.Ciudad, string(reg.ModoDeteccion), reg.UpdatedAt, reg.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("region %s: %w", reg.ID, ErrNotFound)
	}
	return nil
}

// Delete removes the region row.  Children are handled by the cascade.
func (r *RegionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM regions WHERE id = ?", id)
	return err
}
