package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/homewatch/internal/model"
)

// NotificationRepo is the MySQL NotificationRepository.  The device
// snapshot is stored as a JSON column so it never follows later edits.
type NotificationRepo struct {
	db DBTX
}

const notificationColumns = "id, region_id, user_id, tipo_evento, descripcion, criticidad, fecha_hora, dispositivos"

func scanNotification(row interface{ Scan(...any) error }) (*model.Notification, error) {
	var (
		n    model.Notification
		sev  string
		snap []byte
	)
	if err := row.Scan(&n.ID, &n.RegionID, &n.UserID, &n.TipoEvento, &n.Descripcion, &sev, &n.FechaHora, &snap); err != nil {
		return nil, err
	}
	n.Criticidad = model.Severity(sev)
	if len(snap) > 0 {
		if err := json.Unmarshal(snap, &n.Dispositivos); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	}
	return &n, nil
}

// Create inserts n.  A zero FechaHora is set to now; the column keeps
// milliseconds.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	if n.FechaHora.IsZero() {
		n.FechaHora = time.Now().UTC()
	}
	n.FechaHora = n.FechaHora.Truncate(time.Millisecond)
	if n.Dispositivos == nil {
		n.Dispositivos = []model.DeviceSnapshot{}
	}
	snap, err := json.Marshal(n.Dispositivos)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO notifications ("+notificationColumns+") VALUES (?,?,?,?,?,?,?,?)",
		n.ID, n.RegionID, n.UserID, n.TipoEvento, n.Descripcion, string(n.Criticidad), n.FechaHora, snap)
	return err
}

// GetByID fetches a notification by id.
func (r *NotificationRepo) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return n, nil
}

// ListByUser returns the notifications of userID newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	q := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = ? ORDER BY fecha_hora DESC, id DESC"
	args := []any{userID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Delete removes a notification by id.
func (r *NotificationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	return err
}

// DeleteByUser removes every notification of userID.
func (r *NotificationRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM notifications WHERE user_id = ?", userID)
	return err
}
