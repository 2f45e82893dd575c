package charging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/logger"
	"github.com/openchargingcloud/wwcp/core/monitoring"
	"github.com/openchargingcloud/wwcp/core/status"
	"github.com/openchargingcloud/wwcp/internal/eventbus"
	"github.com/openchargingcloud/wwcp/internal/reactive"
)

// Network is a roaming network, the root of the infrastructure tree.
type Network struct {
	base
	OperationEvents

	operators *reactive.Set[ids.OperatorID, *Operator]
	links     links[ids.OperatorID]

	reservations ReservationStore
	sessions     SessionStore
	changes      *eventbus.TypedBus[Change]
	changeBuffer int

	OperatorAddition eventbus.Voting[*Operator]
	OperatorRemoval  eventbus.Voting[*Operator]

	OperatorEvents ChangeEvents
	PoolEvents     ChangeEvents
	StationEvents  ChangeEvents
	EVSEEvents     ChangeEvents

	// OnRequestCompleted is fired after every reservation or remote
	// start/stop request handled by the network.
	OnRequestCompleted eventbus.Event[RequestLog]
}

// Option configures a Network.
type Option func(*Network)

func WithLogger(l logger.Logger) Option {
	return func(n *Network) {
		if l != nil {
			n.cfg.log = l
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(n *Network) { n.cfg.clock = clock }
}

func WithMaxStatusHistory(max int) Option {
	return func(n *Network) {
		if max > 0 {
			n.cfg.maxStatusHistory = max
		}
	}
}

func WithMaxAdminStatusHistory(max int) Option {
	return func(n *Network) {
		if max > 0 {
			n.cfg.maxAdminHistory = max
		}
	}
}

// WithoutAggregation creates stations, pools and operators without a status
// aggregator. Their status is then only set explicitly.
func WithoutAggregation() Option {
	return func(n *Network) { n.cfg.aggregate = false }
}

func WithDefaultReservationDuration(d time.Duration) Option {
	return func(n *Network) {
		if d > 0 {
			n.cfg.reservationDuration = d
		}
	}
}

func WithReservationStore(s ReservationStore) Option {
	return func(n *Network) { n.reservations = s }
}

func WithSessionStore(s SessionStore) Option {
	return func(n *Network) { n.sessions = s }
}

// WithChangeBuffer sets the per-subscriber buffer of the change bus.
func WithChangeBuffer(size int) Option {
	return func(n *Network) { n.changeBuffer = size }
}

// NewNetwork creates an empty roaming network.
func NewNetwork(id string, opts ...Option) *Network {
	n := &Network{
		operators:    reactive.NewSet[ids.OperatorID, *Operator](lessString[ids.OperatorID]),
		reservations: NewMemoryReservationStore(),
		sessions:     NewMemorySessionStore(),
		changeBuffer: eventbus.DefaultBuffer,
	}
	n.cfg = defaultSettings()
	for _, o := range opts {
		o(n)
	}
	n.init(KindNetwork, id, n.cfg, status.AdminOperational, status.Available)
	n.changes = eventbus.NewTypedWithBuffer[Change](n.changeBuffer)

	n.operators.Added.Subscribe(func(_ context.Context, en reactive.Entry[ids.OperatorID, *Operator]) {
		n.links.set(en.Key, n.attach(en.Value))
	})
	n.operators.Removed.Subscribe(func(_ context.Context, en reactive.Entry[ids.OperatorID, *Operator]) {
		n.links.drop(en.Key)
		en.Value.detach()
	})

	for _, ev := range []*ChangeEvents{&n.ChangeEvents, &n.OperatorEvents, &n.PoolEvents, &n.StationEvents, &n.EVSEEvents} {
		n.publish(ev)
	}
	n.OnNewReservation.Subscribe(n.storeReservation)
	n.OnReservationCanceled.Subscribe(n.dropReservation)
	n.OnNewChargingSession.Subscribe(n.storeSession)
	n.OnSessionEnded.Subscribe(n.endSession)
	return n
}

func (n *Network) attach(o *Operator) func() {
	return combine(
		forward(&o.ChangeEvents, &n.OperatorEvents),
		forward(&o.PoolEvents, &n.PoolEvents),
		forward(&o.StationEvents, &n.StationEvents),
		forward(&o.EVSEEvents, &n.EVSEEvents),
		forwardOps(&o.OperationEvents, &n.OperationEvents),
	)
}

func (n *Network) publish(ev *ChangeEvents) {
	ev.OnDataChanged.Subscribe(func(_ context.Context, c DataChange) { n.changes.Publish(dataChange(c)) })
	ev.OnStatusChanged.Subscribe(func(_ context.Context, c StatusChange) { n.changes.Publish(statusChange(c)) })
	ev.OnAdminStatusChanged.Subscribe(func(_ context.Context, c AdminStatusChange) { n.changes.Publish(adminStatusChange(c)) })
}

func (n *Network) storeReservation(ctx context.Context, r Reservation) {
	if err := n.reservations.Add(ctx, r); err != nil {
		n.storeFailed("add reservation", r.ID, err)
	}
}

func (n *Network) dropReservation(ctx context.Context, c ReservationCanceled) {
	// an expired id may already have been reused on another EVSE
	if r, err := n.reservations.Get(ctx, c.Reservation.ID); err == nil && r.EVSE != c.Reservation.EVSE {
		return
	}
	if err := n.reservations.Remove(ctx, c.Reservation.ID); err != nil && !errors.Is(err, ErrReservationNotFound) {
		n.storeFailed("remove reservation", c.Reservation.ID, err)
	}
}

func (n *Network) storeSession(ctx context.Context, s ChargingSession) {
	if err := n.sessions.Save(ctx, s); err != nil {
		n.storeFailed("save session", s.ID, err)
	}
	if s.ReservationID == "" {
		return
	}
	if err := n.reservations.Remove(ctx, s.ReservationID); err != nil && !errors.Is(err, ErrReservationNotFound) {
		n.storeFailed("remove reservation", s.ReservationID, err)
	}
}

func (n *Network) endSession(ctx context.Context, s ChargingSession) {
	if err := n.sessions.Save(ctx, s); err != nil {
		n.storeFailed("save session", s.ID, err)
	}
}

func (n *Network) storeFailed(op, id string, err error) {
	n.cfg.log.Errorw("store operation failed", map[string]any{"op": op, "id": id, "error": err.Error()})
	monitoring.CaptureException(err, map[string]string{"op": op, "network": n.id})
}

// ID returns the network identifier.
func (n *Network) ID() string { return n.id }

// Changes is the asynchronous stream of all change events below the network.
func (n *Network) Changes() *eventbus.TypedBus[Change] { return n.changes }

// Close stops the change bus.
func (n *Network) Close() { n.changes.Close() }

// CreateOperator adds a new operator after the OperatorAddition vote passed.
func (n *Network) CreateOperator(ctx context.Context, id ids.OperatorID, opts ...OperatorOption) (*Operator, error) {
	if id.IsZero() {
		return nil, ids.ErrEmptyID
	}
	o := newOperator(id, n, n.cfg)
	for _, opt := range opts {
		opt(o)
	}
	if err := addChild(ctx, n.operators, &n.OperatorAddition, id, o); err != nil {
		return nil, err
	}
	return o, nil
}

// RemoveOperator removes an operator. Operators with pools are only removed with Force.
func (n *Network) RemoveOperator(ctx context.Context, id ids.OperatorID, opts ...RemoveOption) (*Operator, error) {
	return removeChild(ctx, n.operators, &n.OperatorRemoval, id, func(o *Operator) bool { return o.PoolCount() > 0 }, opts)
}

func (n *Network) Operator(id ids.OperatorID) (*Operator, bool) { return n.operators.Get(id) }

func (n *Network) Operators() []*Operator { return n.operators.Values() }

func (n *Network) OperatorIDs() []ids.OperatorID { return n.operators.Keys() }

func (n *Network) Pool(id ids.PoolID) (*Pool, bool) {
	o, ok := n.operators.Get(id.OperatorID())
	if !ok {
		return nil, false
	}
	return o.Pool(id)
}

func (n *Network) Station(id ids.StationID) (*Station, bool) {
	o, ok := n.operators.Get(id.OperatorID())
	if !ok {
		return nil, false
	}
	return o.Station(id)
}

func (n *Network) EVSE(id ids.EVSEID) (*EVSE, bool) {
	o, ok := n.operators.Get(id.OperatorID())
	if !ok {
		return nil, false
	}
	return o.EVSE(id)
}

func (n *Network) Pools() []*Pool {
	var out []*Pool
	for _, o := range n.operators.Values() {
		out = append(out, o.Pools()...)
	}
	return out
}

func (n *Network) Stations() []*Station {
	var out []*Station
	for _, o := range n.operators.Values() {
		out = append(out, o.Stations()...)
	}
	return out
}

func (n *Network) EVSEs() []*EVSE {
	var out []*EVSE
	for _, o := range n.operators.Values() {
		out = append(out, o.EVSEs()...)
	}
	return out
}

// EVSEStatusFilter narrows EVSEStatus. Zero fields match everything.
type EVSEStatusFilter struct {
	Operator ids.OperatorID
	Pool     ids.PoolID
	Station  ids.StationID
	Status   *status.Status
}

// EVSEStatusRecord is one row of the EVSE status snapshot.
type EVSEStatusRecord struct {
	ID          ids.EVSEID         `json:"evseId"`
	Status      status.Status      `json:"status"`
	AdminStatus status.AdminStatus `json:"adminStatus"`
	Timestamp   time.Time          `json:"timestamp"`
}

// EVSEStatus returns the current status of all EVSEs matching f, ordered by id.
func (n *Network) EVSEStatus(f EVSEStatusFilter) []EVSEStatusRecord {
	var out []EVSEStatusRecord
	for _, o := range n.operators.Values() {
		if !f.Operator.IsZero() && o.ID() != f.Operator {
			continue
		}
		for _, p := range o.Pools() {
			if !f.Pool.IsZero() && p.ID() != f.Pool {
				continue
			}
			for _, st := range p.Stations() {
				if !f.Station.IsZero() && st.ID() != f.Station {
					continue
				}
				for _, e := range st.EVSEs() {
					cur, _ := e.status.Current()
					if f.Status != nil && cur.Value != *f.Status {
						continue
					}
					out = append(out, EVSEStatusRecord{ID: e.ID(), Status: cur.Value, AdminStatus: e.AdminStatus(), Timestamp: cur.Timestamp})
				}
			}
		}
	}
	return out
}

// Reservation returns a stored reservation.
func (n *Network) Reservation(ctx context.Context, id string) (Reservation, error) {
	return n.reservations.Get(ctx, id)
}

// Reservations lists the stored reservations that have not expired yet.
func (n *Network) Reservations(ctx context.Context) ([]Reservation, error) {
	all, err := n.reservations.List(ctx)
	if err != nil {
		return nil, err
	}
	now := n.now()
	out := all[:0]
	for _, r := range all {
		if !r.Expired(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Session returns a stored charging session.
func (n *Network) Session(ctx context.Context, id string) (ChargingSession, error) {
	return n.sessions.Get(ctx, id)
}

func (n *Network) ActiveSessions(ctx context.Context) ([]ChargingSession, error) {
	return n.sessions.Active(ctx)
}

func (n *Network) logRequest(ctx context.Context, op, requestID, loc, result string, runtime time.Duration) {
	n.cfg.log.Infow(op+" completed", map[string]any{
		"request_id": requestID,
		"location":   loc,
		"result":     result,
		"runtime_ms": runtime.Milliseconds(),
	})
	n.OnRequestCompleted.Fire(ctx, RequestLog{
		Operation: op,
		RequestID: requestID,
		Location:  loc,
		Result:    result,
		Runtime:   runtime,
		Timestamp: n.now(),
	})
}

func (n *Network) logStart(op, requestID, loc string) {
	n.cfg.log.Infow(op+" requested", map[string]any{"request_id": requestID, "location": loc})
}

// Reserve delegates a reservation to the operator owning the location.
func (n *Network) Reserve(ctx context.Context, req ReserveRequest) (res ReservationResult) {
	start, reqID := n.now(), uuid.NewString()
	n.logStart("reserve", reqID, req.Location.String())
	defer func() {
		res.Runtime = n.now().Sub(start)
		n.logRequest(ctx, "reserve", reqID, req.Location.String(), string(res.Code), res.Runtime)
	}()

	if a := n.AdminStatus(); !a.AcceptsRequests() {
		return ReservationResult{Code: ReservationOutOfService, Description: "network admin status is " + a.String()}
	}
	if req.Location.IsZero() {
		return ReservationResult{Code: ReservationUnknownLocation, Description: "empty location"}
	}
	if req.ReservationID != "" {
		// an existing id may only be renewed on the same EVSE
		if r, err := n.reservations.Get(ctx, req.ReservationID); err == nil && !r.Expired(n.now()) && r.EVSE != req.Location.EVSE {
			return ReservationResult{Code: ReservationAlreadyReserved, Description: "reservation id in use on " + r.EVSE.String()}
		}
	}
	o, ok := n.operators.Get(req.Location.OperatorID())
	if !ok {
		return ReservationResult{Code: ReservationUnknownLocation, Description: req.Location.String()}
	}
	return o.Reserve(ctx, req)
}

// CancelReservation looks up the reservation and delegates to its EVSE.
func (n *Network) CancelReservation(ctx context.Context, req CancelReservationRequest) (res CancelReservationResult) {
	start, reqID := n.now(), uuid.NewString()
	n.logStart("cancel_reservation", reqID, req.ReservationID)
	defer func() {
		res.Runtime = n.now().Sub(start)
		n.logRequest(ctx, "cancel_reservation", reqID, req.EVSE.String(), string(res.Code), res.Runtime)
	}()

	r, err := n.reservations.Get(ctx, req.ReservationID)
	if errors.Is(err, ErrReservationNotFound) {
		return CancelReservationResult{Code: CancelUnknownReservation}
	}
	if err != nil {
		return CancelReservationResult{Code: CancelError, Description: err.Error()}
	}
	req.EVSE = r.EVSE
	o, ok := n.operators.Get(r.EVSE.OperatorID())
	if !ok {
		return CancelReservationResult{Code: CancelUnknownReservation, Description: "unknown operator " + r.Operator.String()}
	}
	return o.CancelReservation(ctx, req)
}

// RemoteStart delegates a remote start to the operator owning the location.
func (n *Network) RemoteStart(ctx context.Context, req RemoteStartRequest) (res RemoteStartResult) {
	start, reqID := n.now(), uuid.NewString()
	n.logStart("remote_start", reqID, req.Location.String())
	defer func() {
		res.Runtime = n.now().Sub(start)
		n.logRequest(ctx, "remote_start", reqID, req.Location.String(), string(res.Code), res.Runtime)
	}()

	if a := n.AdminStatus(); !a.AcceptsRequests() {
		return RemoteStartResult{Code: StartOutOfService, Description: "network admin status is " + a.String()}
	}
	loc := req.Location
	if req.ReservationID != "" {
		// a live reservation pins the start to its EVSE
		if r, err := n.reservations.Get(ctx, req.ReservationID); err == nil && !r.Expired(n.now()) {
			if !loc.IsZero() && !loc.Covers(r) {
				return RemoteStartResult{Code: StartUnknownLocation, Description: "reservation " + r.ID + " is held by " + r.EVSE.String()}
			}
			loc = Location{EVSE: r.EVSE}
		}
	}
	if loc.IsZero() {
		return RemoteStartResult{Code: StartUnknownLocation, Description: "empty location"}
	}
	req.Location = loc
	o, ok := n.operators.Get(loc.OperatorID())
	if !ok {
		return RemoteStartResult{Code: StartUnknownLocation, Description: loc.String()}
	}
	return o.RemoteStart(ctx, req)
}

// RemoteStop looks up the session and delegates to its EVSE.
func (n *Network) RemoteStop(ctx context.Context, req RemoteStopRequest) (res RemoteStopResult) {
	start, reqID := n.now(), uuid.NewString()
	n.logStart("remote_stop", reqID, req.SessionID)
	defer func() {
		res.Runtime = n.now().Sub(start)
		n.logRequest(ctx, "remote_stop", reqID, req.EVSE.String(), string(res.Code), res.Runtime)
	}()

	s, err := n.sessions.Get(ctx, req.SessionID)
	if errors.Is(err, ErrSessionNotFound) || (err == nil && !s.Active()) {
		return RemoteStopResult{Code: StopUnknownSession}
	}
	if err != nil {
		return RemoteStopResult{Code: StopError, Description: err.Error()}
	}
	req.EVSE = s.EVSE
	o, ok := n.operators.Get(s.EVSE.OperatorID())
	if !ok {
		return RemoteStopResult{Code: StopUnknownEVSE, Description: s.EVSE.String()}
	}
	return o.RemoteStop(ctx, req)
}

func (n *Network) String() string { return fmt.Sprintf("Network(%s)", n.id) }
