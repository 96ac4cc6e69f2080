package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/homewatch/internal/model"
)

// PaymentRepo is the MySQL PaymentRepository.
type PaymentRepo struct{ db DBTX }

// Create inserts p; CreatedAt is filled in.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	p.CreatedAt = time.Now().UTC()
	if p.Currency == "" {
		p.Currency = "ARS"
	}
	var raw any
	if len(p.RawResponse) > 0 {
		raw = []byte(p.RawResponse)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, subscription_id, status, monto, moneda, fecha_pago, next_payment_date, raw_response, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, p.SubscriptionID, string(p.Status), p.Amount, p.Currency, p.PaidAt, p.NextPaymentDate, raw, p.CreatedAt)
	return err
}

// ListByUser returns the payments of userID, newest first.
func (r *PaymentRepo) ListByUser(ctx context.Context, userID string) ([]*model.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, subscription_id, status, monto, moneda, fecha_pago, next_payment_date, raw_response, created_at
		 FROM payments WHERE user_id = ? ORDER BY fecha_pago DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		var (
			p      model.Payment
			status string
			next   sql.NullTime
			raw    []byte
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.SubscriptionID, &status, &p.Amount, &p.Currency, &p.PaidAt, &next, &raw, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Status = model.PaymentStatus(status)
		if next.Valid {
			t := next.Time
			p.NextPaymentDate = &t
		}
		if len(raw) > 0 {
			p.RawResponse = raw
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteByUser removes every payment of userID.
func (r *PaymentRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM payments WHERE user_id = ?", userID)
	return err
}
