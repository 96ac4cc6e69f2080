// Package detection keeps devices in step with their region's detection
// mode.  A mode change fans out stop(previous)/start(new) pairs to every
// device of the region through the device-control gateway; failures are
// collected in a Report and never block the region update.  Adding a
// device starts the current mode best-effort, while adding a camera
// requires the gateway to confirm activation before anything is stored.
package detection

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/homewatch/internal/authz"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/repository"
)

// Controller is the device-control gateway.
type Controller interface {
	Start(ctx context.Context, mac, userID string, mode model.DetectionMode) error
	Stop(ctx context.Context, mac, userID string, mode model.DetectionMode) error
	// ActivateCamera reports whether the device confirmed activation.
	ActivateCamera(ctx context.Context, mac, userID string) (bool, error)
}

// Capacity decides whether an account may add another device.
type Capacity interface {
	CanAddDevice(ctx context.Context, u *model.User) (bool, error)
}

// Options tune the sync.
type Options struct {
	Concurrency int           // devices synced in parallel
	CallTimeout time.Duration // per gateway call
	SyncBudget  time.Duration // whole fan-out of a mode change
	CameraTypes []string      // accepted camera types
}

// persistTimeout bounds the region write that follows a mode fan-out.
const persistTimeout = 5 * time.Second

// Sync coordinates region, device and camera writes with the gateway.
type Sync struct {
	store repository.Store
	guard *authz.Guard
	ctrl  Controller
	cap   Capacity
	opts  Options
	log   *zap.Logger
}

// New creates a Sync.
func New(store repository.Store, guard *authz.Guard, ctrl Controller, capacity Capacity, opts Options, log *zap.Logger) *Sync {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.SyncBudget <= 0 {
		opts.SyncBudget = 20 * time.Second
	}
	if len(opts.CameraTypes) == 0 {
		opts.CameraTypes = []string{model.DefaultCameraType}
	}
	return &Sync{store: store, guard: guard, ctrl: ctrl, cap: capacity, opts: opts, log: log}
}

// RegionPatch holds the fields of a partial region update; nil means
// unchanged.
type RegionPatch struct {
	Nombre        *string
	Direccion     *string
	Ciudad        *string
	ModoDeteccion *model.DetectionMode
}

// Outcome is the result of syncing one device.
type Outcome struct {
	DeviceID string `json:"dispositivoId"`
	MAC      string `json:"macAddress"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// Report describes a mode transition and how each device fared.
type Report struct {
	RegionID string              `json:"regionId"`
	From     model.DetectionMode `json:"from"`
	To       model.DetectionMode `json:"to"`
	Outcomes []Outcome           `json:"dispositivos"`
}

// Failed counts devices whose sync did not complete.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK {
			n++
		}
	}
	return n
}

// UpdateRegion applies patch to regionID.  When the detection mode changes
// every device is re-synced within SyncBudget before the region is
// persisted; the returned Report is nil when the mode did not change.
// The region write does not inherit the caller's cancellation, so a fan-out
// that used up the request deadline still saves the new mode.
func (s *Sync) UpdateRegion(ctx context.Context, actingUserID, regionID string, patch RegionPatch) (*model.Region, *Report, error) {
	res, err := s.guard.Resolve(ctx, actingUserID, authz.Chain{RegionID: regionID})
	if err != nil {
		return nil, nil, err
	}
	reg := res.Region
	from := reg.ModoDeteccion

	if patch.Nombre != nil {
		if strings.TrimSpace(*patch.Nombre) == "" {
			return nil, nil, fmt.Errorf("nombre must not be empty: %w", repository.ErrInvalid)
		}
		reg.Nombre = strings.TrimSpace(*patch.Nombre)
	}
	if patch.Direccion != nil {
		reg.Direccion = *patch.Direccion
	}
	if patch.Ciudad != nil {
		reg.Ciudad = *patch.Ciudad
	}
	if patch.ModoDeteccion != nil {
		if !patch.ModoDeteccion.Valid() {
			return nil, nil, fmt.Errorf("modoDeteccion %q: %w", *patch.ModoDeteccion, repository.ErrInvalid)
		}
		reg.ModoDeteccion = *patch.ModoDeteccion
	}

	var report *Report
	if reg.ModoDeteccion != from {
		devices, err := s.store.Devices().ListByRegion(ctx, reg.ID)
		if err != nil {
			return nil, nil, err
		}
		syncCtx, cancel := context.WithTimeout(ctx, s.opts.SyncBudget)
		report = s.transition(syncCtx, res.User.ID, reg.ID, from, reg.ModoDeteccion, devices)
		cancel()
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.Regions().Update(saveCtx, reg); err != nil {
		return nil, nil, err
	}
	return reg, report, nil
}

func (s *Sync) transition(ctx context.Context, userID, regionID string, from, to model.DetectionMode, devices []*model.Device) *Report {
	report := &Report{RegionID: regionID, From: from, To: to, Outcomes: make([]Outcome, len(devices))}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, d := range devices {
		g.Go(func() error {
			report.Outcomes[i] = s.syncDevice(ctx, userID, d, from, to)
			return nil
		})
	}
	_ = g.Wait()

	if failed := report.Failed(); failed > 0 {
		s.log.Warn("detection mode sync incomplete",
			zap.String("region_id", regionID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Int("devices", len(devices)),
			zap.Int("failed", failed))
	} else {
		s.log.Info("detection mode synced",
			zap.String("region_id", regionID),
			zap.String("to", string(to)),
			zap.Int("devices", len(devices)))
	}
	return report
}

// syncDevice stops the previous mode and then starts the new one.  A stop
// failure skips the start for that device.
func (s *Sync) syncDevice(ctx context.Context, userID string, d *model.Device, from, to model.DetectionMode) Outcome {
	out := Outcome{DeviceID: d.ID, MAC: d.MACAddress}

	stopCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	err := s.ctrl.Stop(stopCtx, d.MACAddress, userID, from)
	cancel()
	if err != nil {
		out.Error = fmt.Sprintf("stop %s: %v", from, err)
		s.log.Warn("device stop failed", zap.String("device_id", d.ID), zap.String("mac", d.MACAddress), zap.Error(err))
		return out
	}

	startCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	err = s.ctrl.Start(startCtx, d.MACAddress, userID, to)
	cancel()
	if err != nil {
		out.Error = fmt.Sprintf("start %s: %v", to, err)
		s.log.Warn("device start failed", zap.String("device_id", d.ID), zap.String("mac", d.MACAddress), zap.Error(err))
		return out
	}
	out.OK = true
	return out
}

// NewDevice is the input for AddDevice.
type NewDevice struct {
	Nombre     string
	MACAddress string
	Activo     *bool
}

// AddDevice creates a device in regionID.  NORMAL accounts are subject to
// the device cap.  When the region runs a non-default mode the gateway is
// asked to start it on the new device; that call is best-effort.
func (s *Sync) AddDevice(ctx context.Context, actingUserID, regionID string, in NewDevice) (*model.Device, error) {
	res, err := s.guard.Resolve(ctx, actingUserID, authz.Chain{RegionID: regionID})
	if err != nil {
		return nil, err
	}
	in.Nombre, in.MACAddress = strings.TrimSpace(in.Nombre), strings.TrimSpace(in.MACAddress)
	if in.Nombre == "" || in.MACAddress == "" {
		return nil, fmt.Errorf("nombre and mac are required: %w", repository.ErrInvalid)
	}
	ok, err := s.cap.CanAddDevice(ctx, res.User)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("device cap reached for %s: %w", res.User.ID, repository.ErrLimitExceeded)
	}

	d := &model.Device{
		ID:         uuid.NewString(),
		RegionID:   res.Region.ID,
		Nombre:     in.Nombre,
		MACAddress: in.MACAddress,
		Activo:     in.Activo == nil || *in.Activo,
	}
	if err := s.store.Devices().Create(ctx, d); err != nil {
		return nil, err
	}

	if mode := res.Region.ModoDeteccion; mode != model.DefaultMode {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
		if err := s.ctrl.Start(callCtx, d.MACAddress, res.User.ID, mode); err != nil {
			s.log.Warn("device start on join failed",
				zap.String("device_id", d.ID),
				zap.String("mode", string(mode)),
				zap.Error(err))
		}
	}
	return d, nil
}

// NewCamera is the input for AddCamera.
type NewCamera struct {
	Nombre    string
	StreamURL string
	Tipo      string
}

// DefaultCameraType is the type given to cameras added without one.
func (s *Sync) DefaultCameraType() string {
	if slices.Contains(s.opts.CameraTypes, model.DefaultCameraType) {
		return model.DefaultCameraType
	}
	return s.opts.CameraTypes[0]
}

// ValidCameraType reports whether t is one of the configured types.
func (s *Sync) ValidCameraType(t string) bool {
	return slices.Contains(s.opts.CameraTypes, t)
}

// AddCamera attaches a camera to deviceID.  The gateway must confirm
// activation first; otherwise ErrGatewayFailure is returned and nothing is
// stored.  The camera row and the device reference are written in one
// transaction.
func (s *Sync) AddCamera(ctx context.Context, actingUserID, regionID, deviceID string, in NewCamera) (*model.Camera, error) {
	res, err := s.guard.Resolve(ctx, actingUserID, authz.Chain{RegionID: regionID, DeviceID: deviceID})
	if err != nil {
		return nil, err
	}
	dev := res.Device
	if dev.CamaraID != nil {
		return nil, fmt.Errorf("device %s already has a camera: %w", dev.ID, repository.ErrConflict)
	}
	if in.Tipo == "" {
		in.Tipo = s.DefaultCameraType()
	}
	if !s.ValidCameraType(in.Tipo) {
		return nil, fmt.Errorf("tipo %q: %w", in.Tipo, repository.ErrInvalid)
	}
	if strings.TrimSpace(in.Nombre) == "" {
		in.Nombre = dev.Nombre
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	ok, err := s.ctrl.ActivateCamera(callCtx, dev.MACAddress, res.User.ID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("activate camera on %s: %v: %w", dev.MACAddress, err, repository.ErrGatewayFailure)
	}
	if !ok {
		return nil, fmt.Errorf("activate camera on %s: device declined: %w", dev.MACAddress, repository.ErrGatewayFailure)
	}

	cam := &model.Camera{
		ID:        uuid.NewString(),
		DeviceID:  dev.ID,
		Nombre:    strings.TrimSpace(in.Nombre),
		StreamURL: strings.TrimSpace(in.StreamURL),
		Activo:    true,
		Tipo:      in.Tipo,
	}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Cameras().Create(ctx, cam); err != nil {
			return err
		}
		return tx.Devices().SetCamera(ctx, dev.ID, &cam.ID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("camera added", zap.String("camera_id", cam.ID), zap.String("device_id", dev.ID))
	return cam, nil
}
