// Package topology is the owner-checked read and edit surface of the
// region → device → camera tree.  Creation of devices and cameras, mode
// changes and deletes live in the detection and cascade packages because
// they involve the device-control gateway or multi-entity transactions.
package topology

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/authz"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/repository"
)

// Service edits regions, devices and cameras on behalf of their owner.
type Service struct {
	store       repository.Store
	guard       *authz.Guard
	cameraTypes []string
	log         *zap.Logger
}

// New creates a Service.  cameraTypes lists the accepted camera types.
func New(store repository.Store, guard *authz.Guard, cameraTypes []string, log *zap.Logger) *Service {
	return &Service{store: store, guard: guard, cameraTypes: cameraTypes, log: log}
}

// NewRegion is the input for CreateRegion.  Every field is required.
type NewRegion struct {
	Nombre    string
	Direccion string
	Ciudad    string
}

// CreateRegion creates a region owned by the acting user in the default
// detection mode.
func (s *Service) CreateRegion(ctx context.Context, actingUserID string, in NewRegion) (*model.Region, error) {
	u, err := s.guard.Authenticate(ctx, actingUserID)
	if err != nil {
		return nil, err
	}
	in.Nombre = strings.TrimSpace(in.Nombre)
	in.Direccion = strings.TrimSpace(in.Direccion)
	in.Ciudad = strings.TrimSpace(in.Ciudad)
	if in.Nombre == "" || in.Direccion == "" || in.Ciudad == "" {
		return nil, fmt.Errorf("nombre, direccion and ciudad are required: %w", repository.ErrInvalid)
	}
	r := &model.Region{
		ID:            uuid.NewString(),
		UserID:        u.ID,
		Nombre:        in.Nombre,
		Direccion:     in.Direccion,
		Ciudad:        in.Ciudad,
		ModoDeteccion: model.DefaultMode,
	}
	if err := s.store.Regions().Create(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("region created", zap.String("region_id", r.ID), zap.String("user_id", u.ID))
	return r, nil
}

// Regions lists the acting user's regions.
func (s *Service) Regions(ctx context.Context, actingUserID string) ([]*model.Region, error) {
	u, err := s.guard.Authenticate(ctx, actingUserID)
	if err != nil {
		return nil, err
	}
	out, err := s.store.Regions().ListByUser(ctx, u.ID)
	if out == nil && err == nil {
		out = []*model.Region{}
	}
	return out, err
}

// Devices lists the devices of an owned region.
func (s *Service) Devices(ctx context.Context, actingUserID, regionID string) ([]*model.Device, error) {
	if _, err := s.guard.Resolve(ctx, actingUserID, authz.Chain{RegionID: regionID}); err != nil {
		return nil, err
	}
	out, err := s.store.Devices().ListByRegion(ctx, regionID)
	if out == nil && err == nil {
		out = []*model.Device{}
	}
	return out, err
}

// DevicePatch holds the editable device fields; nil leaves a field as is.
type DevicePatch struct {
	Nombre     *string
	MACAddress *string
	Activo     *bool
}

// UpdateDevice edits a device of an owned region.
func (s *Service) UpdateDevice(ctx context.Context, actingUserID, regionID, deviceID string, p DevicePatch) (*model.Device, error) {
	res, err := s.guard.Resolve(ctx, actingUserID, authz.Chain{RegionID: regionID, DeviceID: deviceID})
	if err != nil {
		return nil, err
	}
	d := res.Device
	if p.Nombre != nil {
		if d.Nombre = strings.TrimSpace(*p.Nombre); d.Nombre == "" {
			return nil, fmt.Errorf("nombre cannot be empty: %w", repository.ErrInvalid)
		}
	}
	if p.MACAddress != nil {
		if d.MACAddress = strings.TrimSpace(*p.MACAddress); d.MACAddress == "" {
			return nil, fmt.Errorf("mac cannot be empty: %w", repository.ErrInvalid)
		}
	}
	if p.Activo != nil {
		d.Activo = *p.Activo
	}
	if err := s.store.Devices().Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Camera returns the camera of an owned device, or nil when it has none.
func (s *Service) Camera(ctx context.Context, actingUserID, regionID, deviceID string) (*model.Camera, error) {
	if _, err := s.guard.Resolve(ctx, actingUserID, authz.Chain{RegionID: regionID, DeviceID: deviceID}); err != nil {
		return nil, err
	}
	c, err := s.store.Cameras().GetByDevice(ctx, deviceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// CameraPatch holds the editable camera fields; nil leaves a field as is.
type CameraPatch struct {
	Nombre    *string
	StreamURL *string
	Tipo      *string
	Activo    *bool
}

// UpdateCamera edits a camera reached through an owned device.
func (s *Service) UpdateCamera(ctx context.Context, actingUserID, cameraID string, p CameraPatch) (*model.Camera, error) {
	res, err := s.guard.Resolve(ctx, actingUserID, authz.Chain{CameraID: cameraID})
	if err != nil {
		return nil, err
	}
	c := res.Camera
	if p.Nombre != nil {
		c.Nombre = strings.TrimSpace(*p.Nombre)
	}
	if p.StreamURL != nil {
		c.StreamURL = strings.TrimSpace(*p.StreamURL)
	}
	if p.Tipo != nil {
		if !slices.Contains(s.cameraTypes, *p.Tipo) {
			return nil, fmt.Errorf("tipo %q: %w", *p.Tipo, repository.ErrInvalid)
		}
		c.Tipo = *p.Tipo
	}
	if p.Activo != nil {
		c.Activo = *p.Activo
	}
	if err := s.store.Cameras().Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
