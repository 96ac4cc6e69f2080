// Package notify records alarm/care events as notifications and fans them
// out: a push message to the owner's phones, a live broadcast to connected
// clients and a notification.created event on the broker.  Delivery is
// best-effort; only persistence failures reach the caller.
package notify

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/authz"
	"github.com/iliyamo/homewatch/internal/metrics"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/repository"
)

// EventNewNotification is the live channel event name.
const EventNewNotification = "nuevaNotificacion"

// RecentLimit caps the Recent query.
const RecentLimit = 3

// Pusher delivers push messages and logs its own failures.
type Pusher interface {
	Send(ctx context.Context, tokens []string, msg model.PushMessage)
}

// Broadcaster fans an event out to every live client.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Publisher announces persisted notifications to other services.
type Publisher interface {
	PublishNotificationCreated(ctx context.Context, n *model.Notification) error
}

// Event is a device-reported occurrence.
type Event struct {
	MACs        []string       `json:"dispositivos"`
	TipoEvento  string         `json:"tipoEvento"`
	Descripcion string         `json:"descripcion"`
	Criticidad  model.Severity `json:"criticidad"`
	// Source names the ingestion path (http, amqp, mqtt) for metrics.
	Source string `json:"-"`
}

// Dispatcher records and delivers notifications.
type Dispatcher struct {
	store     repository.Store
	guard     *authz.Guard
	pusher    Pusher
	live      Broadcaster
	publisher Publisher
	log       *zap.Logger
}

// New creates a Dispatcher.  publisher may be nil.
func New(store repository.Store, guard *authz.Guard, pusher Pusher, live Broadcaster, publisher Publisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, guard: guard, pusher: pusher, live: live, publisher: publisher, log: log}
}

type group struct {
	regionID string
	devices  []*model.Device
}

// RecordAndDispatch resolves ev's devices by MAC and creates one
// notification per owning region, in order of first appearance.  Regions
// whose owner has no push token are skipped; when nothing is left the call
// fails with ErrNotFound and nothing is stored.
func (d *Dispatcher) RecordAndDispatch(ctx context.Context, ev Event) ([]*model.Notification, error) {
	ev.Criticidad = model.ParseSeverity(string(ev.Criticidad))
	ev.TipoEvento = strings.TrimSpace(ev.TipoEvento)
	if len(ev.MACs) == 0 {
		return nil, fmt.Errorf("no devices in event: %w", repository.ErrInvalid)
	}
	if ev.TipoEvento == "" || !ev.Criticidad.Valid() {
		return nil, fmt.Errorf("tipoEvento and criticidad (baja, media, alta) are required: %w", repository.ErrInvalid)
	}
	if ev.Source == "" {
		ev.Source = "http"
	}

	devices, err := d.store.Devices().ListByMACs(ctx, ev.MACs)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no device matches %v: %w", ev.MACs, repository.ErrNotFound)
	}

	var out []*model.Notification
	for _, g := range groupByRegion(ev.MACs, devices) {
		n, err := d.recordGroup(ctx, ev, g)
		if err != nil {
			return out, err
		}
		if n != nil {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no owner with registered push tokens: %w", repository.ErrNotFound)
	}
	return out, nil
}

// groupByRegion orders devices by the position of their MAC in macs and
// splits them per region.
func groupByRegion(macs []string, devices []*model.Device) []*group {
	pos := make(map[string]int, len(macs))
	for i, m := range macs {
		if _, seen := pos[m]; !seen {
			pos[m] = i
		}
	}
	slices.SortStableFunc(devices, func(a, b *model.Device) int { return pos[a.MACAddress] - pos[b.MACAddress] })

	var groups []*group
	index := map[string]*group{}
	for _, dev := range devices {
		g, ok := index[dev.RegionID]
		if !ok {
			g = &group{regionID: dev.RegionID}
			index[dev.RegionID] = g
			groups = append(groups, g)
		}
		g.devices = append(g.devices, dev)
	}
	return groups
}

func (d *Dispatcher) recordGroup(ctx context.Context, ev Event, g *group) (*model.Notification, error) {
	region, err := d.store.Regions().GetByID(ctx, g.regionID)
	if err != nil {
		if isNotFound(err) {
			d.log.Warn("event for device without region", zap.String("region_id", g.regionID))
			return nil, nil
		}
		return nil, err
	}
	tokens, err := d.store.Users().PushTokens(ctx, region.UserID)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		d.log.Warn("region owner has no push tokens",
			zap.String("region_id", region.ID),
			zap.String("user_id", region.UserID))
		return nil, nil
	}

	snapshot, err := d.snapshot(ctx, g.devices)
	if err != nil {
		return nil, err
	}
	// v7 ids sort by creation time, which breaks ties in the recent list
	n := &model.Notification{
		ID:           uuid.Must(uuid.NewV7()).String(),
		RegionID:     region.ID,
		UserID:       region.UserID,
		TipoEvento:   ev.TipoEvento,
		Descripcion:  ev.Descripcion,
		Criticidad:   ev.Criticidad,
		Dispositivos: snapshot,
	}
	if err := d.store.Notifications().Create(ctx, n); err != nil {
		return nil, err
	}
	metrics.NotificationsRecordedTotal.WithLabelValues(ev.Source).Inc()
	d.log.Info("notification recorded",
		zap.String("notification_id", n.ID),
		zap.String("region_id", region.ID),
		zap.String("tipo_evento", n.TipoEvento),
		zap.String("criticidad", string(n.Criticidad)),
		zap.Int("devices", len(snapshot)))

	d.deliver(ctx, n, region, tokens)
	return n, nil
}

func (d *Dispatcher) snapshot(ctx context.Context, devices []*model.Device) ([]model.DeviceSnapshot, error) {
	ids := make([]string, len(devices))
	for i, dev := range devices {
		ids[i] = dev.ID
	}
	cams, err := d.store.Cameras().ListActiveByDevices(ctx, ids)
	if err != nil {
		return nil, err
	}
	byDevice := make(map[string]*model.Camera, len(cams))
	for _, c := range cams {
		byDevice[c.DeviceID] = c
	}
	out := make([]model.DeviceSnapshot, len(devices))
	for i, dev := range devices {
		out[i] = model.DeviceSnapshot{Nombre: dev.Nombre}
		if c, ok := byDevice[dev.ID]; ok {
			url := c.StreamURL
			out[i].URL = &url
		}
	}
	return out, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n *model.Notification, region *model.Region, tokens []string) {
	d.pusher.Send(ctx, tokens, model.PushMessage{
		Title: fmt.Sprintf("Alerta %s: %s", strings.ToUpper(string(n.Criticidad)), n.TipoEvento),
		Body:  fmt.Sprintf("%s en %s", n.Descripcion, region.Nombre),
		Data: map[string]any{
			"regionId":     region.ID,
			"tipoEvento":   n.TipoEvento,
			"criticidad":   n.Criticidad,
			"dispositivos": n.Dispositivos,
		},
	})
	d.live.Broadcast(EventNewNotification, n)
	if d.publisher != nil {
		if err := d.publisher.PublishNotificationCreated(ctx, n); err != nil {
			d.log.Warn("publish notification.created failed", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
}

// Entry is a notification in a list, with the name of its region.
type Entry struct {
	*model.Notification
	RegionNombre string `json:"regionNombre,omitempty"`
}

// List returns the acting user's notifications newest first.
func (d *Dispatcher) List(ctx context.Context, userID string) ([]Entry, error) {
	return d.list(ctx, userID, 0)
}

// Recent returns the acting user's three newest notifications.
func (d *Dispatcher) Recent(ctx context.Context, userID string) ([]Entry, error) {
	return d.list(ctx, userID, RecentLimit)
}

func (d *Dispatcher) list(ctx context.Context, userID string, limit int) ([]Entry, error) {
	u, err := d.guard.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	ns, err := d.store.Notifications().ListByUser(ctx, u.ID, limit)
	if err != nil {
		return nil, err
	}
	names := map[string]string{}
	out := make([]Entry, 0, len(ns))
	for _, n := range ns {
		name, ok := names[n.RegionID]
		if !ok {
			if reg, err := d.store.Regions().GetByID(ctx, n.RegionID); err == nil {
				name = reg.Nombre
			} else if !isNotFound(err) {
				return nil, err
			}
			names[n.RegionID] = name
		}
		out = append(out, Entry{Notification: n, RegionNombre: name})
	}
	return out, nil
}

// Detail is one notification with its region and the region's currently
// active cameras.  Region is nil when it has been deleted since.
type Detail struct {
	Notificacion *model.Notification `json:"notificacion"`
	Region       *model.Region       `json:"region"`
	Camaras      []*model.Camera     `json:"camaras"`
}

// Detail loads a notification owned by the acting user.
func (d *Dispatcher) Detail(ctx context.Context, userID, notificationID string) (*Detail, error) {
	_, n, err := d.guard.ResolveNotification(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}
	out := &Detail{Notificacion: n, Camaras: []*model.Camera{}}
	region, err := d.store.Regions().GetByID(ctx, n.RegionID)
	if err != nil {
		if isNotFound(err) {
			return out, nil
		}
		return nil, err
	}
	out.Region = region
	devices, err := d.store.Devices().ListByRegion(ctx, region.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(devices))
	for i, dev := range devices {
		ids[i] = dev.ID
	}
	cams, err := d.store.Cameras().ListActiveByDevices(ctx, ids)
	if err != nil {
		return nil, err
	}
	if cams != nil {
		out.Camaras = cams
	}
	return out, nil
}

// Delete removes a notification owned by the acting user.
func (d *Dispatcher) Delete(ctx context.Context, userID, notificationID string) error {
	_, n, err := d.guard.ResolveNotification(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	return d.store.Notifications().Delete(ctx, n.ID)
}
