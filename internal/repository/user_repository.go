package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/homewatch/internal/model"
)

// UserRepo is the MySQL UserRepository.  Push tokens live in
// user_push_tokens; adherents are users whose premium_ref points here.
type UserRepo struct{ db DBTX }

const userColumns = "id, nombre, apellido, email, password_hash, tier, premium_ref, created_at, updated_at"

// Create inserts the user (email normalized) and any initial push tokens.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		u.ID, u.Nombre, u.Apellido, u.Email, u.PasswordHash, string(u.Tier), u.PremiumRef, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
		}
		return err
	}
	for _, tok := range u.PushTokens {
		if err := r.AddPushToken(ctx, u.ID, tok); err != nil {
			return err
		}
	}
	return nil
}

func (r *UserRepo) scanOne(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		u    model.User
		tier string
		ref  sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg).
		Scan(&u.ID, &u.Nombre, &u.Apellido, &u.Email, &u.PasswordHash, &tier, &ref, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, err
	}
	u.Tier = model.Tier(tier)
	if ref.Valid {
		u.PremiumRef = &ref.String
	}
	if u.PushTokens, err = r.PushTokens(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID fetches a user by id together with its push tokens.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.scanOne(ctx, "id = ?", id)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.scanOne(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// UpdateTier writes tier and premium_ref; sql.ErrNoRows maps to ErrNotFound.
func (r *UserRepo) UpdateTier(ctx context.Context, id string, tier model.Tier, premiumRef *string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET tier = ?, premium_ref = ?, updated_at = ? WHERE id = ?",
		string(tier), premiumRef, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListAdherents returns the adherent accounts linked to premiumID.
func (r *UserRepo) ListAdherents(ctx context.Context, premiumID string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE premium_ref = ? ORDER BY created_at", premiumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		var (
			u    model.User
			tier string
			ref  sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Nombre, &u.Apellido, &u.Email, &u.PasswordHash, &tier, &ref, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Tier = model.Tier(tier)
		if ref.Valid {
			u.PremiumRef = &ref.String
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// CountAdherents counts accounts linked to premiumID.
func (r *UserRepo) CountAdherents(ctx context.Context, premiumID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE premium_ref = ?", premiumID).Scan(&n)
	return n, err
}

// Delete removes the user and its push tokens.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM user_push_tokens WHERE user_id = ?", id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	return err
}

// AddPushToken registers token for userID; re-registering is a no-op.
func (r *UserRepo) AddPushToken(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT IGNORE INTO user_push_tokens (user_id, token) VALUES (?, ?)", userID, token)
	return err
}

// RemovePushToken unregisters token for userID.
func (r *UserRepo) RemovePushToken(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM user_push_tokens WHERE user_id = ? AND token = ?", userID, token)
	return err
}

// PushTokens lists the tokens registered by userID.
func (r *UserRepo) PushTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT token FROM user_push_tokens WHERE user_id = ? ORDER BY token", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
