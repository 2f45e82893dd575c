package charging

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/openchargingcloud/wwcp/core/logger"
	"github.com/openchargingcloud/wwcp/core/status"
)

// settings are shared by a network and every entity below it.
type settings struct {
	log                 logger.Logger
	clock               func() time.Time
	maxStatusHistory    int
	maxAdminHistory     int
	aggregate           bool
	reservationDuration time.Duration
}

func defaultSettings() *settings {
	return &settings{
		log:                 logger.NopLogger{},
		clock:               time.Now,
		maxStatusHistory:    status.DefaultMaxHistory,
		maxAdminHistory:     status.DefaultMaxHistory,
		aggregate:           true,
		reservationDuration: DefaultReservationDuration,
	}
}

// base carries what every entity level has in common: names, status
// schedules, custom data and the change events.
type base struct {
	kind Kind
	id   string
	cfg  *settings

	mu          sync.RWMutex
	name        I18NString
	description I18NString
	customData  map[string]any

	adminStatus *status.Schedule[status.AdminStatus]
	status      *status.Schedule[status.Status]

	ChangeEvents
}

func (b *base) init(kind Kind, id string, cfg *settings, admin status.AdminStatus, st status.Status) {
	b.kind = kind
	b.id = id
	b.cfg = cfg
	now := cfg.clock()
	b.adminStatus = status.NewScheduleWith(cfg.maxAdminHistory, admin, now)
	b.status = status.NewScheduleWith(cfg.maxStatusHistory, st, now)
}

func (b *base) now() time.Time { return b.cfg.clock() }

// Kind returns the entity level.
func (b *base) Kind() Kind { return b.kind }

// Name returns a copy of the multi-language name.
func (b *base) Name() I18NString {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name.clone()
}

// SetName replaces the name and fires OnDataChanged if it differs.
func (b *base) SetName(ctx context.Context, name I18NString) bool {
	return setProp(ctx, b, &b.name, "name", name.clone())
}

// Description returns a copy of the multi-language description.
func (b *base) Description() I18NString {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.description.clone()
}

func (b *base) SetDescription(ctx context.Context, d I18NString) bool {
	return setProp(ctx, b, &b.description, "description", d.clone())
}

// CustomData returns a custom property.
func (b *base) CustomData(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.customData[key]
	return v, ok
}

// SetCustomData stores a custom property and fires OnDataChanged.
func (b *base) SetCustomData(ctx context.Context, key string, v any) bool {
	b.mu.Lock()
	old, had := b.customData[key]
	if had && reflect.DeepEqual(old, v) {
		b.mu.Unlock()
		return false
	}
	if b.customData == nil {
		b.customData = make(map[string]any)
	}
	b.customData[key] = v
	b.mu.Unlock()
	b.OnDataChanged.Fire(ctx, DataChange{Timestamp: b.now(), Kind: b.kind, EntityID: b.id, Property: "customData." + key, Old: old, New: v})
	return true
}

func (b *base) customDataCopy() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.customData) == 0 {
		return nil
	}
	out := make(map[string]any, len(b.customData))
	for k, v := range b.customData {
		out[k] = v
	}
	return out
}

// AdminStatus returns the current admin status.
func (b *base) AdminStatus() status.AdminStatus { return b.adminStatus.Value() }

// AdminStatusHistory returns the bounded admin status history, newest first.
func (b *base) AdminStatusHistory() []status.Timestamped[status.AdminStatus] {
	return b.adminStatus.History()
}

// Status returns the current status.
func (b *base) Status() status.Status { return b.status.Value() }

// StatusHistory returns the bounded status history, newest first.
func (b *base) StatusHistory() []status.Timestamped[status.Status] {
	return b.status.History()
}

// SetAdminStatus records v at ts (now if zero) and fires
// OnAdminStatusChanged when the current admin status changed.
func (b *base) SetAdminStatus(ctx context.Context, v status.AdminStatus, ts time.Time) bool {
	if ts.IsZero() {
		ts = b.now()
	}
	old, changed := b.adminStatus.Insert(v, ts)
	if changed {
		b.OnAdminStatusChanged.Fire(ctx, AdminStatusChange{Timestamp: ts, Kind: b.kind, EntityID: b.id, Old: old.Value, New: v})
	}
	return changed
}

// SetStatus records v at ts (now if zero) and fires OnStatusChanged when the
// current status changed.
func (b *base) SetStatus(ctx context.Context, v status.Status, ts time.Time) bool {
	if ts.IsZero() {
		ts = b.now()
	}
	old, changed := b.status.Insert(v, ts)
	if changed {
		b.cfg.log.Debugw("status changed", map[string]any{"kind": string(b.kind), "id": b.id, "old": old.Value.String(), "new": v.String()})
		b.OnStatusChanged.Fire(ctx, StatusChange{Timestamp: ts, Kind: b.kind, EntityID: b.id, Old: old.Value, New: v})
	}
	return changed
}

// setProp assigns v to *field under the entity lock and fires OnDataChanged
// outside of it when the value changed.
func setProp[T any](ctx context.Context, b *base, field *T, prop string, v T) bool {
	b.mu.Lock()
	old := *field
	if reflect.DeepEqual(old, v) {
		b.mu.Unlock()
		return false
	}
	*field = v
	b.mu.Unlock()
	b.OnDataChanged.Fire(ctx, DataChange{Timestamp: b.now(), Kind: b.kind, EntityID: b.id, Property: prop, Old: old, New: v})
	return true
}

func getProp[T any](b *base, field *T) T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return *field
}

// setValidated validates v before assigning it through setProp.
func setValidated[T any](ctx context.Context, b *base, field **T, prop string, v T) (bool, error) {
	if err := Validate(v); err != nil {
		return false, err
	}
	return setProp(ctx, b, field, prop, &v), nil
}

// clearProp resets an optional attribute so that it is inherited again.
func clearProp[T any](ctx context.Context, b *base, field **T, prop string) bool {
	return setProp[*T](ctx, b, field, prop, nil)
}

// location holds the descriptive attributes of pools and stations. Stations
// inherit unset values from their pool.
type location struct {
	address      *Address
	geo          *GeoCoordinate
	openingTimes *OpeningTimes
	energyMix    *EnergyMix
	brands       []Brand
	externalIDs  map[string]string
}

// inherit returns own when set and asks parent otherwise.
func inherit[T any](own *T, parent func() (T, bool)) (T, bool) {
	if own != nil {
		return *own, true
	}
	if parent == nil {
		var zero T
		return zero, false
	}
	return parent()
}
