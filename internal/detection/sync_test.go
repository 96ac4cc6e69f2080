package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/authz"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/repository"
)

type call struct {
	Op   string
	MAC  string
	User string
	Mode model.DetectionMode
}

type fakeController struct {
	mu        sync.Mutex
	calls     []call
	failStop  map[string]bool
	failStart map[string]bool
	camOK     bool
	camErr    error
	slow      time.Duration
}

func (f *fakeController) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeController) Start(ctx context.Context, mac, userID string, mode model.DetectionMode) error {
	f.record(call{"start", mac, userID, mode})
	if f.failStart[mac] {
		return errors.New("gateway unreachable")
	}
	return nil
}

func (f *fakeController) Stop(ctx context.Context, mac, userID string, mode model.DetectionMode) error {
	f.record(call{"stop", mac, userID, mode})
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failStop[mac] {
		return errors.New("gateway unreachable")
	}
	return nil
}

func (f *fakeController) ActivateCamera(ctx context.Context, mac, userID string) (bool, error) {
	f.record(call{Op: "activate", MAC: mac, User: userID})
	return f.camOK, f.camErr
}

func (f *fakeController) callsFor(mac string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.MAC == mac {
			out = append(out, c)
		}
	}
	return out
}

type fixedCapacity bool

func (c fixedCapacity) CanAddDevice(context.Context, *model.User) (bool, error) { return bool(c), nil }

func seed(t *testing.T, macs ...string) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := repository.NewMemoryStore()
	require.NoError(t, s.Users().Create(ctx, &model.User{ID: "u1", Email: "u1@example.com", Tier: model.TierNormal}))
	require.NoError(t, s.Regions().Create(ctx, &model.Region{ID: "r1", UserID: "u1", Nombre: "Home"}))
	for i, mac := range macs {
		require.NoError(t, s.Devices().Create(ctx, &model.Device{
			ID: fmt.Sprintf("d%d", i+1), RegionID: "r1", Nombre: fmt.Sprintf("dev %d", i+1), MACAddress: mac,
		}))
	}
	return s
}

func newSync(s repository.Store, ctrl Controller, capacity Capacity) *Sync {
	return New(s, authz.NewGuard(s), ctrl, capacity, Options{
		Concurrency: 4,
		CallTimeout: 200 * time.Millisecond,
		CameraTypes: []string{"integrada", "externa", "ip"},
	}, zap.NewNop())
}

func modePtr(m model.DetectionMode) *model.DetectionMode { return &m }

func TestUpdateRegion_AlarmToCareSingleDevice(t *testing.T) {
	s := seed(t, "AA:BB")
	ctrl := &fakeController{}

	reg, report, err := newSync(s, ctrl, fixedCapacity(true)).
		UpdateRegion(context.Background(), "u1", "r1", RegionPatch{ModoDeteccion: modePtr(model.ModeCare)})

	require.NoError(t, err)
	assert.Equal(t, model.ModeCare, reg.ModoDeteccion)
	assert.Equal(t, []call{
		{"stop", "AA:BB", "u1", model.ModeAlarm},
		{"start", "AA:BB", "u1", model.ModeCare},
	}, ctrl.callsFor("AA:BB"))
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Failed())

	stored, err := s.Regions().GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.ModeCare, stored.ModoDeteccion)
}

func TestUpdateRegion_FailingDeviceDoesNotBlockOthers(t *testing.T) {
	s := seed(t, "AA:01", "AA:02", "AA:03")
	ctrl := &fakeController{failStop: map[string]bool{"AA:02": true}}

	_, report, err := newSync(s, ctrl, fixedCapacity(true)).
		UpdateRegion(context.Background(), "u1", "r1", RegionPatch{ModoDeteccion: modePtr(model.ModeCare)})

	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Failed())
	for _, mac := range []string{"AA:01", "AA:03"} {
		assert.Equal(t, []call{
			{"stop", mac, "u1", model.ModeAlarm},
			{"start", mac, "u1", model.ModeCare},
		}, ctrl.callsFor(mac))
	}
	assert.Len(t, ctrl.callsFor("AA:02"), 1)

	stored, err := s.Regions().GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.ModeCare, stored.ModoDeteccion)
}

func TestUpdateRegion_CallTimeoutIsRecorded(t *testing.T) {
	s := seed(t, "AA:BB")
	ctrl := &fakeController{slow: time.Second}

	_, report, err := newSync(s, ctrl, fixedCapacity(true)).
		UpdateRegion(context.Background(), "u1", "r1", RegionPatch{ModoDeteccion: modePtr(model.ModeCare)})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Contains(t, report.Outcomes[0].Error, "deadline")
}

func TestUpdateRegion_SameModeSkipsGateway(t *testing.T) {
	s := seed(t, "AA:BB")
	ctrl := &fakeController{}
	name := "Casa"

	reg, report, err := newSync(s, ctrl, fixedCapacity(true)).
		UpdateRegion(context.Background(), "u1", "r1", RegionPatch{Nombre: &name, ModoDeteccion: modePtr(model.ModeAlarm)})

	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, "Casa", reg.Nombre)
	assert.Empty(t, ctrl.callsFor("AA:BB"))
}

func TestUpdateRegion_InvalidMode(t *testing.T) {
	s := seed(t)

	_, _, err := newSync(s, &fakeController{}, fixedCapacity(true)).
		UpdateRegion(context.Background(), "u1", "r1", RegionPatch{ModoDeteccion: modePtr("PANIC")})

	assert.ErrorIs(t, err, repository.ErrInvalid)
}

func TestAddDevice_StartsNonDefaultModeBestEffort(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	reg, err := s.Regions().GetByID(ctx, "r1")
	require.NoError(t, err)
	reg.ModoDeteccion = model.ModeCare
	require.NoError(t, s.Regions().Update(ctx, reg))
	ctrl := &fakeController{failStart: map[string]bool{"EE:FF": true}}

	d, err := newSync(s, ctrl, fixedCapacity(true)).
		AddDevice(ctx, "u1", "r1", NewDevice{Nombre: "Back Door", MACAddress: "EE:FF"})

	require.NoError(t, err)
	assert.True(t, d.Activo)
	assert.Equal(t, []call{{"start", "EE:FF", "u1", model.ModeCare}}, ctrl.callsFor("EE:FF"))
	_, err = s.Devices().GetByID(ctx, d.ID)
	assert.NoError(t, err)
}

func TestAddDevice_DefaultModeNoGatewayCall(t *testing.T) {
	s := seed(t)
	ctrl := &fakeController{}

	_, err := newSync(s, ctrl, fixedCapacity(true)).
		AddDevice(context.Background(), "u1", "r1", NewDevice{Nombre: "Back Door", MACAddress: "EE:FF"})

	require.NoError(t, err)
	assert.Empty(t, ctrl.callsFor("EE:FF"))
}

func TestAddDevice_CapReached(t *testing.T) {
	s := seed(t)

	_, err := newSync(s, &fakeController{}, fixedCapacity(false)).
		AddDevice(context.Background(), "u1", "r1", NewDevice{Nombre: "Back Door", MACAddress: "EE:FF"})

	assert.ErrorIs(t, err, repository.ErrLimitExceeded)
}

func TestAddCamera_ActivationFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	for name, ctrl := range map[string]*fakeController{
		"declined":    {camOK: false},
		"unreachable": {camOK: false, camErr: errors.New("timeout")},
	} {
		t.Run(name, func(t *testing.T) {
			s := seed(t, "AA:BB")

			_, err := newSync(s, ctrl, fixedCapacity(true)).
				AddCamera(ctx, "u1", "r1", "d1", NewCamera{Nombre: "Cam", StreamURL: "rtsp://x"})

			assert.ErrorIs(t, err, repository.ErrGatewayFailure)
			_, err = s.Cameras().GetByDevice(ctx, "d1")
			assert.ErrorIs(t, err, repository.ErrNotFound)
			d, err := s.Devices().GetByID(ctx, "d1")
			require.NoError(t, err)
			assert.Nil(t, d.CamaraID)
		})
	}
}

func TestAddCamera_Success(t *testing.T) {
	ctx := context.Background()
	s := seed(t, "AA:BB")
	svc := newSync(s, &fakeController{camOK: true}, fixedCapacity(true))

	cam, err := svc.AddCamera(ctx, "u1", "r1", "d1", NewCamera{StreamURL: "rtsp://x"})

	require.NoError(t, err)
	assert.Equal(t, "integrada", cam.Tipo)
	assert.Equal(t, "dev 1", cam.Nombre)
	d, err := s.Devices().GetByID(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, d.CamaraID)
	assert.Equal(t, cam.ID, *d.CamaraID)

	_, err = svc.AddCamera(ctx, "u1", "r1", "d1", NewCamera{})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestAddCamera_UnknownType(t *testing.T) {
	s := seed(t, "AA:BB")
	ctrl := &fakeController{camOK: true}

	_, err := newSync(s, ctrl, fixedCapacity(true)).
		AddCamera(context.Background(), "u1", "r1", "d1", NewCamera{Tipo: "thermal"})

	assert.ErrorIs(t, err, repository.ErrInvalid)
	assert.Empty(t, ctrl.callsFor("AA:BB"))
}

// cancelAwareStore fails region writes whose context is done, as
// database/sql does.
type cancelAwareStore struct {
	*repository.MemoryStore
}

func (s cancelAwareStore) Regions() repository.RegionRepository {
	return cancelAwareRegions{s.MemoryStore.Regions()}
}

type cancelAwareRegions struct {
	repository.RegionRepository
}

func (r cancelAwareRegions) Update(ctx context.Context, reg *model.Region) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.RegionRepository.Update(ctx, reg)
}

func TestUpdateRegion_ModeSavedAfterRequestDeadline(t *testing.T) {
	mem := seed(t, "AA:01", "AA:02", "AA:03", "AA:04")
	store := cancelAwareStore{mem}
	ctrl := &fakeController{slow: time.Second}
	svc := New(store, authz.NewGuard(store), ctrl, fixedCapacity(true), Options{
		Concurrency: 1,
		CallTimeout: 150 * time.Millisecond,
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	reg, report, err := svc.UpdateRegion(ctx, "u1", "r1", RegionPatch{ModoDeteccion: modePtr(model.ModeCare)})

	require.NoError(t, err)
	assert.Equal(t, model.ModeCare, reg.ModoDeteccion)
	require.NotNil(t, report)
	assert.Equal(t, 4, report.Failed())

	stored, err := mem.Regions().GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.ModeCare, stored.ModoDeteccion)
}

func TestUpdateRegion_SyncBudgetBoundsFanOut(t *testing.T) {
	s := seed(t, "AA:01", "AA:02", "AA:03")
	ctrl := &fakeController{slow: time.Second}
	svc := New(s, authz.NewGuard(s), ctrl, fixedCapacity(true), Options{
		Concurrency: 1,
		CallTimeout: time.Second,
		SyncBudget:  100 * time.Millisecond,
	}, zap.NewNop())

	started := time.Now()
	_, report, err := svc.UpdateRegion(context.Background(), "u1", "r1", RegionPatch{ModoDeteccion: modePtr(model.ModeCare)})

	require.NoError(t, err)
	assert.Less(t, time.Since(started), 900*time.Millisecond)
	assert.Equal(t, 3, report.Failed())
}
