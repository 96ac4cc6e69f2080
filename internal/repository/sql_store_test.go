package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/homewatch/internal/model"
)

func setupMockStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SQLStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewSQLStore(db)
}

func TestSQLStore_InTxCommits(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM cameras WHERE device_id`).WithArgs("d1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM devices WHERE id`).WithArgs("d1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx Store) error {
		if err := tx.Cameras().DeleteByDevice(context.Background(), "d1"); err != nil {
			return err
		}
		return tx.Devices().Delete(context.Background(), "d1")
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_InTxRollsBack(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM cameras`).WillReturnError(boom)
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx Store) error {
		return tx.Cameras().Delete(context.Background(), "c1")
	})

	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_NestedInTxReusesTransaction(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM regions`).WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx Store) error {
		return tx.InTx(context.Background(), func(inner Store) error {
			return inner.Regions().Delete(context.Background(), "r1")
		})
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_CreateDuplicateEmail(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := store.Users().Create(context.Background(), &model.User{
		ID: uuid.NewString(), Email: " Ana@Example.com ", Tier: model.TierNormal,
	})

	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_CreateStoresPushTokens(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	u := &model.User{ID: "u1", Email: "Ana@Example.com", Tier: model.TierNormal, PushTokens: []string{"ExponentPushToken[a]"}}
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT IGNORE INTO user_push_tokens`).
		WithArgs("u1", "ExponentPushToken[a]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Users().Create(context.Background(), u))
	assert.Equal(t, "ana@example.com", u.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByIDLoadsTokens(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "nombre", "apellido", "email", "password_hash", "tier", "premium_ref", "created_at", "updated_at",
	}).AddRow("u2", "Luis", "Paz", "luis@example.com", "hash", "ADHERENTE", "u1", now, now)
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id`).WithArgs("u2").WillReturnRows(rows)
	mock.ExpectQuery(`SELECT token FROM user_push_tokens`).WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("t1").AddRow("t2"))

	u, err := store.Users().GetByID(context.Background(), "u2")

	require.NoError(t, err)
	assert.Equal(t, model.TierAdherent, u.Tier)
	require.NotNil(t, u.PremiumRef)
	assert.Equal(t, "u1", *u.PremiumRef)
	assert.Equal(t, []string{"t1", "t2"}, u.PushTokens)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByIDNotFound(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM users`).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	u, err := store.Users().GetByID(context.Background(), "missing")

	assert.Nil(t, u)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegionRepo_UpdateMissing(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE regions`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Regions().Update(context.Background(), &model.Region{ID: "r1", ModoDeteccion: model.ModeCare})

	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_ListByMACs(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "region_id", "nombre", "mac_address", "activo", "camara_id"}).
		AddRow("d1", "r1", "Front Door", "AA:BB", true, "c1").
		AddRow("d2", "r1", "Garage", "CC:DD", false, nil)
	mock.ExpectQuery(`WHERE mac_address IN \(\?, \?\)`).WithArgs("AA:BB", "CC:DD").WillReturnRows(rows)

	devices, err := store.Devices().ListByMACs(context.Background(), []string{"AA:BB", "CC:DD"})

	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.NotNil(t, devices[0].CamaraID)
	assert.Equal(t, "c1", *devices[0].CamaraID)
	assert.Nil(t, devices[1].CamaraID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_ListByMACsEmpty(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	devices, err := store.Devices().ListByMACs(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, devices)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_CountByUser(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM devices d JOIN regions r`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := store.Devices().CountByUser(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCameraRepo_CreateSecondCamera(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO cameras`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := store.Cameras().Create(context.Background(), &model.Camera{ID: "c2", DeviceID: "d1"})

	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepo_SnapshotRoundTrip(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "region_id", "user_id", "tipo_evento", "descripcion", "criticidad", "fecha_hora", "dispositivos",
	}).AddRow("n1", "r1", "u1", "motion", "Movement detected", "alta", now,
		[]byte(`[{"nombre":"Front Door","url":"rtsp://cam"},{"nombre":"Garage","url":null}]`))
	mock.ExpectQuery(`SELECT (.+) FROM notifications WHERE id`).WithArgs("n1").WillReturnRows(rows)

	n, err := store.Notifications().GetByID(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, n.Criticidad)
	require.Len(t, n.Dispositivos, 2)
	require.NotNil(t, n.Dispositivos[0].URL)
	assert.Equal(t, "rtsp://cam", *n.Dispositivos[0].URL)
	assert.Nil(t, n.Dispositivos[1].URL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepo_ListByUserWithLimit(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	cols := []string{"id", "region_id", "user_id", "tipo_evento", "descripcion", "criticidad", "fecha_hora", "dispositivos"}
	mock.ExpectQuery(`ORDER BY fecha_hora DESC, id DESC LIMIT \?`).WithArgs("u1", 3).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("n1", "r1", "u1", "motion", "", "baja", time.Now(), []byte(`[]`)))

	list, err := store.Notifications().ListByUser(context.Background(), "u1", 3)

	require.NoError(t, err)
	assert.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepo_CreateKeepsMilliseconds(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs("n1", "r1", "u1", "motion", "", "alta",
			time.Date(2026, 3, 1, 12, 0, 0, 123000000, time.UTC), []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &model.Notification{ID: "n1", RegionID: "r1", UserID: "u1", TipoEvento: "motion", Criticidad: model.SeverityHigh, FechaHora: at}
	require.NoError(t, store.Notifications().Create(context.Background(), n))

	assert.Equal(t, 123*time.Millisecond, time.Duration(n.FechaHora.Nanosecond()))
	require.NoError(t, mock.ExpectationsWereMet())
}
