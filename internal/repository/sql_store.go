package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// DBTX is the subset of *sql.DB and *sql.Tx the MySQL repositories use, so
// the same repository code runs inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is the MySQL-backed Store.
type SQLStore struct {
	db *sql.DB // db is the connection pool used to begin transactions
	q  DBTX    // q is either db or the active transaction
}

// NewSQLStore wraps an open connection pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, q: db}
}

func (s *SQLStore) Users() UserRepository                 { return &UserRepo{db: s.q} }
func (s *SQLStore) Payments() PaymentRepository           { return &PaymentRepo{db: s.q} }
func (s *SQLStore) Regions() RegionRepository             { return &RegionRepo{db: s.q} }
func (s *SQLStore) Devices() DeviceRepository             { return &DeviceRepo{db: s.q} }
func (s *SQLStore) Cameras() CameraRepository             { return &CameraRepo{db: s.q} }
func (s *SQLStore) Notifications() NotificationRepository { return &NotificationRepo{db: s.q} }

// InTx begins a transaction, runs fn with a Store bound to it and commits
// when fn returns nil.  Nested calls reuse the outer transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx Store) error) (err error) {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(&SQLStore{db: s.db, q: tx})
	return err
}

// isDuplicate reports whether err is a MySQL duplicate-key violation (1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

// placeholders returns "?, ?, ?" with n markers for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// stringArgs converts ids into a variadic argument list.
func stringArgs(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
