package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/authz"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func setup(t *testing.T) (*Service, *repository.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Users().Create(ctx, &model.User{ID: "u1", Email: "ana@example.com", Tier: model.TierNormal}))
	require.NoError(t, store.Users().Create(ctx, &model.User{ID: "u2", Email: "luis@example.com", Tier: model.TierNormal}))
	return New(store, authz.NewGuard(store), []string{"integrada", "ip"}, zap.NewNop()), store
}

func TestCreateAndListRegions(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	r, err := svc.CreateRegion(ctx, "u1", NewRegion{Nombre: "Casa", Direccion: "Calle 1", Ciudad: "Cordoba"})
	require.NoError(t, err)
	assert.Equal(t, model.ModeAlarm, r.ModoDeteccion)
	assert.Equal(t, "u1", r.UserID)

	_, err = svc.CreateRegion(ctx, "u1", NewRegion{Nombre: "Casa"})
	assert.ErrorIs(t, err, repository.ErrInvalid)

	_, err = svc.CreateRegion(ctx, "", NewRegion{Nombre: "Casa", Direccion: "x", Ciudad: "y"})
	assert.ErrorIs(t, err, repository.ErrUnauthenticated)

	mine, err := svc.Regions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := svc.Regions(ctx, "u2")
	require.NoError(t, err)
	assert.NotNil(t, theirs)
	assert.Empty(t, theirs)
}

func TestDevicesAndUpdate(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	require.NoError(t, store.Regions().Create(ctx, &model.Region{ID: "r1", UserID: "u1", ModoDeteccion: model.ModeAlarm}))
	require.NoError(t, store.Devices().Create(ctx, &model.Device{ID: "d1", RegionID: "r1", Nombre: "Puerta", MACAddress: "AA", Activo: true}))

	list, err := svc.Devices(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Devices(ctx, "u2", "r1")
	assert.ErrorIs(t, err, repository.ErrForbidden)

	d, err := svc.UpdateDevice(ctx, "u1", "r1", "d1", DevicePatch{Nombre: ptr("Porton"), Activo: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Porton", d.Nombre)
	assert.Equal(t, "AA", d.MACAddress)
	assert.False(t, d.Activo)

	_, err = svc.UpdateDevice(ctx, "u1", "r1", "d1", DevicePatch{MACAddress: ptr("  ")})
	assert.ErrorIs(t, err, repository.ErrInvalid)

	_, err = svc.UpdateDevice(ctx, "u1", "r-other", "d1", DevicePatch{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCameraReadAndUpdate(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	require.NoError(t, store.Regions().Create(ctx, &model.Region{ID: "r1", UserID: "u1", ModoDeteccion: model.ModeAlarm}))
	require.NoError(t, store.Devices().Create(ctx, &model.Device{ID: "d1", RegionID: "r1", MACAddress: "AA"}))
	require.NoError(t, store.Devices().Create(ctx, &model.Device{ID: "d2", RegionID: "r1", MACAddress: "BB"}))
	require.NoError(t, store.Cameras().Create(ctx, &model.Camera{ID: "c1", DeviceID: "d1", Nombre: "Cam", StreamURL: "rtsp://a", Tipo: "integrada", Activo: true}))

	c, err := svc.Camera(ctx, "u1", "r1", "d1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "c1", c.ID)

	none, err := svc.Camera(ctx, "u1", "r1", "d2")
	require.NoError(t, err)
	assert.Nil(t, none)

	updated, err := svc.UpdateCamera(ctx, "u1", "c1", CameraPatch{StreamURL: ptr("rtsp://b"), Tipo: ptr("ip")})
	require.NoError(t, err)
	assert.Equal(t, "rtsp://b", updated.StreamURL)
	assert.Equal(t, "ip", updated.Tipo)
	assert.Equal(t, "Cam", updated.Nombre)

	_, err = svc.UpdateCamera(ctx, "u1", "c1", CameraPatch{Tipo: ptr("holografica")})
	assert.ErrorIs(t, err, repository.ErrInvalid)

	_, err = svc.UpdateCamera(ctx, "u2", "c1", CameraPatch{Nombre: ptr("x")})
	assert.ErrorIs(t, err, repository.ErrForbidden)
}
