package charging

import (
	"context"
	"time"

	"github.com/openchargingcloud/wwcp/core/status"
	"github.com/openchargingcloud/wwcp/internal/eventbus"
)

// Kind names an entity level of the hierarchy.
type Kind string

const (
	KindNetwork  Kind = "RoamingNetwork"
	KindOperator Kind = "ChargingStationOperator"
	KindPool     Kind = "ChargingPool"
	KindStation  Kind = "ChargingStation"
	KindEVSE     Kind = "EVSE"
)

// DataChange is fired when a descriptive property of an entity changed.
type DataChange struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	EntityID  string    `json:"entityId"`
	Property  string    `json:"property"`
	Old       any       `json:"old,omitempty"`
	New       any       `json:"new,omitempty"`
}

// StatusChange is fired when the current status of an entity changed.
type StatusChange struct {
	Timestamp time.Time     `json:"timestamp"`
	Kind      Kind          `json:"kind"`
	EntityID  string        `json:"entityId"`
	Old       status.Status `json:"old"`
	New       status.Status `json:"new"`
}

// AdminStatusChange is fired when the current admin status of an entity changed.
type AdminStatusChange struct {
	Timestamp time.Time          `json:"timestamp"`
	Kind      Kind               `json:"kind"`
	EntityID  string             `json:"entityId"`
	Old       status.AdminStatus `json:"old"`
	New       status.AdminStatus `json:"new"`
}

// ChangeEvents groups the three change notifications of one entity level.
type ChangeEvents struct {
	OnDataChanged        eventbus.Event[DataChange]
	OnStatusChanged      eventbus.Event[StatusChange]
	OnAdminStatusChanged eventbus.Event[AdminStatusChange]
}

// forward re-fires every event of src on dst.
func forward(src, dst *ChangeEvents) (unsubscribe func()) {
	u1 := src.OnDataChanged.Subscribe(func(ctx context.Context, ev DataChange) { dst.OnDataChanged.Fire(ctx, ev) })
	u2 := src.OnStatusChanged.Subscribe(func(ctx context.Context, ev StatusChange) { dst.OnStatusChanged.Fire(ctx, ev) })
	u3 := src.OnAdminStatusChanged.Subscribe(func(ctx context.Context, ev AdminStatusChange) { dst.OnAdminStatusChanged.Fire(ctx, ev) })
	return func() { u1(); u2(); u3() }
}

// ChangeType distinguishes the entries of the network change stream.
type ChangeType string

const (
	ChangeData        ChangeType = "data"
	ChangeStatus      ChangeType = "status"
	ChangeAdminStatus ChangeType = "adminStatus"
)

// Change is the flattened form of all change events published on the
// network's change bus for exporters.
type Change struct {
	Type      ChangeType `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Kind      Kind       `json:"kind"`
	EntityID  string     `json:"entityId"`
	Property  string     `json:"property,omitempty"`
	Old       any        `json:"old,omitempty"`
	New       any        `json:"new,omitempty"`
}

func dataChange(ev DataChange) Change {
	return Change{Type: ChangeData, Timestamp: ev.Timestamp, Kind: ev.Kind, EntityID: ev.EntityID, Property: ev.Property, Old: ev.Old, New: ev.New}
}

func statusChange(ev StatusChange) Change {
	return Change{Type: ChangeStatus, Timestamp: ev.Timestamp, Kind: ev.Kind, EntityID: ev.EntityID, Property: "status", Old: ev.Old, New: ev.New}
}

func adminStatusChange(ev AdminStatusChange) Change {
	return Change{Type: ChangeAdminStatus, Timestamp: ev.Timestamp, Kind: ev.Kind, EntityID: ev.EntityID, Property: "adminStatus", Old: ev.Old, New: ev.New}
}

// RequestLog describes a completed reservation or remote start/stop request.
type RequestLog struct {
	Operation string        `json:"operation"`
	RequestID string        `json:"requestId"`
	Location  string        `json:"location,omitempty"`
	Result    string        `json:"result"`
	Runtime   time.Duration `json:"runtime"`
	Timestamp time.Time     `json:"timestamp"`
}

// OperationEvents groups the reservation and session notifications. They are
// fired by the EVSE and bubble up to the network.
type OperationEvents struct {
	OnNewReservation      eventbus.Event[Reservation]
	OnReservationCanceled eventbus.Event[ReservationCanceled]
	OnNewChargingSession  eventbus.Event[ChargingSession]
	OnSessionEnded        eventbus.Event[ChargingSession]
}

func forwardOps(src, dst *OperationEvents) (unsubscribe func()) {
	u1 := src.OnNewReservation.Subscribe(func(ctx context.Context, r Reservation) { dst.OnNewReservation.Fire(ctx, r) })
	u2 := src.OnReservationCanceled.Subscribe(func(ctx context.Context, c ReservationCanceled) { dst.OnReservationCanceled.Fire(ctx, c) })
	u3 := src.OnNewChargingSession.Subscribe(func(ctx context.Context, s ChargingSession) { dst.OnNewChargingSession.Fire(ctx, s) })
	u4 := src.OnSessionEnded.Subscribe(func(ctx context.Context, s ChargingSession) { dst.OnSessionEnded.Fire(ctx, s) })
	return func() { u1(); u2(); u3(); u4() }
}

func combine(fns ...func()) func() {
	return func() {
		for _, f := range fns {
			f()
		}
	}
}
