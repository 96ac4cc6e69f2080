package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/homewatch/internal/model"
)

type memData struct {
	users         map[string]*model.User
	payments      map[string]*model.Payment
	regions       map[string]*model.Region
	devices       map[string]*model.Device
	cameras       map[string]*model.Camera
	notifications map[string]*model.Notification
}

func newMemData() *memData {
	return &memData{
		users:         map[string]*model.User{},
		payments:      map[string]*model.Payment{},
		regions:       map[string]*model.Region{},
		devices:       map[string]*model.Device{},
		cameras:       map[string]*model.Camera{},
		notifications: map[string]*model.Notification{},
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.users {
		c.users[k] = v.Clone()
	}
	for k, v := range d.payments {
		p := *v
		c.payments[k] = &p
	}
	for k, v := range d.regions {
		r := *v
		c.regions[k] = &r
	}
	for k, v := range d.devices {
		c.devices[k] = cloneDevice(v)
	}
	for k, v := range d.cameras {
		cam := *v
		c.cameras[k] = &cam
	}
	for k, v := range d.notifications {
		c.notifications[k] = cloneNotification(v)
	}
	return c
}

func cloneDevice(d *model.Device) *model.Device {
	c := *d
	if d.CamaraID != nil {
		id := *d.CamaraID
		c.CamaraID = &id
	}
	return &c
}

func cloneNotification(n *model.Notification) *model.Notification {
	c := *n
	c.Dispositivos = append([]model.DeviceSnapshot(nil), n.Dispositivos...)
	return &c
}

// MemoryStore is an in-process Store used for local development
// (STORE=memory) and by the service tests.  Transactions are serialized
// and implemented as snapshot/restore of the whole data set.
type MemoryStore struct {
	mu   *sync.RWMutex
	txMu *sync.Mutex
	data **memData
	inTx bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	d := newMemData()
	return &MemoryStore{mu: &sync.RWMutex{}, txMu: &sync.Mutex{}, data: &d}
}

func (s *MemoryStore) Users() UserRepository                 { return memUsers{s} }
func (s *MemoryStore) Payments() PaymentRepository           { return memPayments{s} }
func (s *MemoryStore) Regions() RegionRepository             { return memRegions{s} }
func (s *MemoryStore) Devices() DeviceRepository             { return memDevices{s} }
func (s *MemoryStore) Cameras() CameraRepository             { return memCameras{s} }
func (s *MemoryStore) Notifications() NotificationRepository { return memNotifications{s} }

// InTx snapshots the data set, runs fn and restores the snapshot when fn
// fails.  Nested calls run inline.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := (*s.data).clone()
	s.mu.RUnlock()

	if err := fn(&MemoryStore{mu: s.mu, txMu: s.txMu, data: s.data, inTx: true}); err != nil {
		s.mu.Lock()
		*s.data = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) read(fn func(d *memData)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(*s.data)
}

func (s *MemoryStore) write(fn func(d *memData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(*s.data)
}

// users

type memUsers struct{ s *MemoryStore }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return r.s.write(func(d *memData) error {
		for _, existing := range d.users {
			if existing.Email == u.Email {
				return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
			}
		}
		c := u.Clone()
		c.Adherents, c.Payments = nil, nil
		c.PushTokens = dedupe(c.PushTokens)
		d.users[u.ID] = c
		return nil
	})
}

func (r memUsers) get(match func(*model.User) bool) (*model.User, error) {
	var out *model.User
	r.s.read(func(d *memData) {
		for _, u := range d.users {
			if match(u) {
				out = u.Clone()
				return
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	sort.Strings(out.PushTokens)
	return out, nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	return r.get(func(u *model.User) bool { return u.ID == id })
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.get(func(u *model.User) bool { return u.Email == email })
}

func (r memUsers) UpdateTier(_ context.Context, id string, tier model.Tier, premiumRef *string) error {
	return r.s.write(func(d *memData) error {
		u, ok := d.users[id]
		if !ok {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		u.Tier = tier
		u.PremiumRef = nil
		if premiumRef != nil {
			ref := *premiumRef
			u.PremiumRef = &ref
		}
		u.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r memUsers) ListAdherents(_ context.Context, premiumID string) ([]*model.User, error) {
	var out []*model.User
	r.s.read(func(d *memData) {
		for _, u := range d.users {
			if u.PremiumRef != nil && *u.PremiumRef == premiumID {
				c := u.Clone()
				c.PushTokens = nil
				out = append(out, c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r memUsers) CountAdherents(ctx context.Context, premiumID string) (int, error) {
	list, err := r.ListAdherents(ctx, premiumID)
	return len(list), err
}

func (r memUsers) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *memData) error {
		delete(d.users, id)
		return nil
	})
}

func (r memUsers) AddPushToken(_ context.Context, userID, token string) error {
	return r.s.write(func(d *memData) error {
		u, ok := d.users[userID]
		if !ok {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		u.PushTokens = dedupe(append(u.PushTokens, token))
		return nil
	})
}

func (r memUsers) RemovePushToken(_ context.Context, userID, token string) error {
	return r.s.write(func(d *memData) error {
		u, ok := d.users[userID]
		if !ok {
			return nil
		}
		kept := u.PushTokens[:0]
		for _, t := range u.PushTokens {
			if t != token {
				kept = append(kept, t)
			}
		}
		u.PushTokens = kept
		return nil
	})
}

func (r memUsers) PushTokens(_ context.Context, userID string) ([]string, error) {
	var out []string
	r.s.read(func(d *memData) {
		if u, ok := d.users[userID]; ok {
			out = append(out, u.PushTokens...)
		}
	})
	sort.Strings(out)
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// payments

type memPayments struct{ s *MemoryStore }

func (r memPayments) Create(_ context.Context, p *model.Payment) error {
	p.CreatedAt = time.Now().UTC()
	if p.Currency == "" {
		p.Currency = "ARS"
	}
	return r.s.write(func(d *memData) error {
		c := *p
		d.payments[p.ID] = &c
		return nil
	})
}

func (r memPayments) ListByUser(_ context.Context, userID string) ([]*model.Payment, error) {
	var out []*model.Payment
	r.s.read(func(d *memData) {
		for _, p := range d.payments {
			if p.UserID == userID {
				c := *p
				out = append(out, &c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	return out, nil
}

func (r memPayments) DeleteByUser(_ context.Context, userID string) error {
	return r.s.write(func(d *memData) error {
		for id, p := range d.payments {
			if p.UserID == userID {
				delete(d.payments, id)
			}
		}
		return nil
	})
}

// regions

type memRegions struct{ s *MemoryStore }

func (r memRegions) Create(_ context.Context, reg *model.Region) error {
	if reg.ModoDeteccion == "" {
		reg.ModoDeteccion = model.DefaultMode
	}
	now := time.Now().UTC()
	reg.CreatedAt, reg.UpdatedAt = now, now
	return r.s.write(func(d *memData) error {
		c := *reg
		d.regions[reg.ID] = &c
		return nil
	})
}

func (r memRegions) GetByID(_ context.Context, id string) (*model.Region, error) {
	var out *model.Region
	r.s.read(func(d *memData) {
		if reg, ok := d.regions[id]; ok {
			c := *reg
			out = &c
		}
	})
	if out == nil {
		return nil, fmt.Errorf("region %s: %w", id, ErrNotFound)
	}
	return out, nil
}

func (r memRegions) ListByUser(_ context.Context, userID string) ([]*model.Region, error) {
	var out []*model.Region
	r.s.read(func(d *memData) {
		for _, reg := range d.regions {
			if reg.UserID == userID {
				c := *reg
				out = append(out, &c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r memRegions) Update(_ context.Context, reg *model.Region) error {
	reg.UpdatedAt = time.Now().UTC()
	return r.s.write(func(d *memData) error {
		cur, ok := d.regions[reg.ID]
		if !ok {
			return fmt.Errorf("region %s: %w", reg.ID, ErrNotFound)
		}
		cur.Nombre, cur.Direccion, cur.Ciudad = reg.Nombre, reg.Direccion, reg.Ciudad
		cur.ModoDeteccion = reg.ModoDeteccion
		cur.UpdatedAt = reg.UpdatedAt
		return nil
	})
}

func (r memRegions) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *memData) error {
		delete(d.regions, id)
		return nil
	})
}

// devices

type memDevices struct{ s *MemoryStore }

func (r memDevices) Create(_ context.Context, dev *model.Device) error {
	return r.s.write(func(d *memData) error {
		d.devices[dev.ID] = cloneDevice(dev)
		return nil
	})
}

func (r memDevices) GetByID(_ context.Context, id string) (*model.Device, error) {
	var out *model.Device
	r.s.read(func(d *memData) {
		if dev, ok := d.devices[id]; ok {
			out = cloneDevice(dev)
		}
	})
	if out == nil {
		return nil, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	return out, nil
}

func (r memDevices) filter(match func(*model.Device) bool) []*model.Device {
	var out []*model.Device
	r.s.read(func(d *memData) {
		for _, dev := range d.devices {
			if match(dev) {
				out = append(out, cloneDevice(dev))
			}
		}
	})
	return out
}

func (r memDevices) ListByRegion(_ context.Context, regionID string) ([]*model.Device, error) {
	out := r.filter(func(dev *model.Device) bool { return dev.RegionID == regionID })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Nombre == out[j].Nombre {
			return out[i].ID < out[j].ID
		}
		return out[i].Nombre < out[j].Nombre
	})
	return out, nil
}

func (r memDevices) ListByMACs(_ context.Context, macs []string) ([]*model.Device, error) {
	want := make(map[string]struct{}, len(macs))
	for _, m := range macs {
		want[m] = struct{}{}
	}
	out := r.filter(func(dev *model.Device) bool {
		_, ok := want[dev.MACAddress]
		return ok
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memDevices) CountByUser(_ context.Context, userID string) (int, error) {
	n := 0
	r.s.read(func(d *memData) {
		for _, dev := range d.devices {
			if reg, ok := d.regions[dev.RegionID]; ok && reg.UserID == userID {
				n++
			}
		}
	})
	return n, nil
}

func (r memDevices) Update(_ context.Context, dev *model.Device) error {
	return r.s.write(func(d *memData) error {
		cur, ok := d.devices[dev.ID]
		if !ok {
			return fmt.Errorf("device %s: %w", dev.ID, ErrNotFound)
		}
		cur.Nombre, cur.MACAddress, cur.Activo = dev.Nombre, dev.MACAddress, dev.Activo
		return nil
	})
}

func (r memDevices) SetCamera(_ context.Context, deviceID string, cameraID *string) error {
	return r.s.write(func(d *memData) error {
		cur, ok := d.devices[deviceID]
		if !ok {
			return nil
		}
		cur.CamaraID = nil
		if cameraID != nil {
			id := *cameraID
			cur.CamaraID = &id
		}
		return nil
	})
}

func (r memDevices) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *memData) error {
		delete(d.devices, id)
		return nil
	})
}

// cameras

type memCameras struct{ s *MemoryStore }

func (r memCameras) Create(_ context.Context, c *model.Camera) error {
	return r.s.write(func(d *memData) error {
		for _, existing := range d.cameras {
			if existing.DeviceID == c.DeviceID {
				return fmt.Errorf("device %s already has a camera: %w", c.DeviceID, ErrConflict)
			}
		}
		cam := *c
		d.cameras[c.ID] = &cam
		return nil
	})
}

func (r memCameras) one(match func(*model.Camera) bool) (*model.Camera, error) {
	var out *model.Camera
	r.s.read(func(d *memData) {
		for _, c := range d.cameras {
			if match(c) {
				cam := *c
				out = &cam
				return
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("camera: %w", ErrNotFound)
	}
	return out, nil
}

func (r memCameras) GetByID(_ context.Context, id string) (*model.Camera, error) {
	return r.one(func(c *model.Camera) bool { return c.ID == id })
}

func (r memCameras) GetByDevice(_ context.Context, deviceID string) (*model.Camera, error) {
	return r.one(func(c *model.Camera) bool { return c.DeviceID == deviceID })
}

func (r memCameras) ListActiveByDevices(_ context.Context, deviceIDs []string) ([]*model.Camera, error) {
	want := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		want[id] = struct{}{}
	}
	var out []*model.Camera
	r.s.read(func(d *memData) {
		for _, c := range d.cameras {
			if _, ok := want[c.DeviceID]; ok && c.Activo {
				cam := *c
				out = append(out, &cam)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCameras) Update(_ context.Context, c *model.Camera) error {
	return r.s.write(func(d *memData) error {
		cur, ok := d.cameras[c.ID]
		if !ok {
			return fmt.Errorf("camera %s: %w", c.ID, ErrNotFound)
		}
		cur.Nombre, cur.StreamURL, cur.Tipo, cur.Activo = c.Nombre, c.StreamURL, c.Tipo, c.Activo
		return nil
	})
}

func (r memCameras) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *memData) error {
		delete(d.cameras, id)
		return nil
	})
}

func (r memCameras) DeleteByDevice(_ context.Context, deviceID string) error {
	return r.s.write(func(d *memData) error {
		for id, c := range d.cameras {
			if c.DeviceID == deviceID {
				delete(d.cameras, id)
			}
		}
		return nil
	})
}

// notifications

type memNotifications struct{ s *MemoryStore }

func (r memNotifications) Create(_ context.Context, n *model.Notification) error {
	if n.FechaHora.IsZero() {
		n.FechaHora = time.Now().UTC()
	}
	n.FechaHora = n.FechaHora.Truncate(time.Millisecond)
	if n.Dispositivos == nil {
		n.Dispositivos = []model.DeviceSnapshot{}
	}
	return r.s.write(func(d *memData) error {
		d.notifications[n.ID] = cloneNotification(n)
		return nil
	})
}

func (r memNotifications) GetByID(_ context.Context, id string) (*model.Notification, error) {
	var out *model.Notification
	r.s.read(func(d *memData) {
		if n, ok := d.notifications[id]; ok {
			out = cloneNotification(n)
		}
	})
	if out == nil {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return out, nil
}

func (r memNotifications) ListByUser(_ context.Context, userID string, limit int) ([]*model.Notification, error) {
	var out []*model.Notification
	r.s.read(func(d *memData) {
		for _, n := range d.notifications {
			if n.UserID == userID {
				out = append(out, cloneNotification(n))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].FechaHora.Equal(out[j].FechaHora) {
			return out[i].ID > out[j].ID
		}
		return out[i].FechaHora.After(out[j].FechaHora)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memNotifications) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *memData) error {
		delete(d.notifications, id)
		return nil
	})
}

func (r memNotifications) DeleteByUser(_ context.Context, userID string) error {
	return r.s.write(func(d *memData) error {
		for id, n := range d.notifications {
			if n.UserID == userID {
				delete(d.notifications, id)
			}
		}
		return nil
	})
}
