package charging

import (
	"context"
	"fmt"
	"time"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/status"
	"github.com/openchargingcloud/wwcp/internal/eventbus"
	"github.com/openchargingcloud/wwcp/internal/reactive"
)

// Station is a charging station holding one or more EVSEs.
type Station struct {
	base
	aggregator
	OperationEvents

	id   ids.StationID
	pool *Pool
	loc  location

	evses *reactive.Set[ids.EVSEID, *EVSE]
	links links[ids.EVSEID]

	EVSEAddition eventbus.Voting[*EVSE]
	EVSERemoval  eventbus.Voting[*EVSE]
	// EVSEEvents re-fires the change events of all EVSEs.
	EVSEEvents ChangeEvents
}

// StationOption configures a station before it is added to its pool.
type StationOption func(*Station)

func WithStationAdminStatus(a status.AdminStatus) StationOption {
	return func(st *Station) { st.adminStatus = status.NewScheduleWith(st.cfg.maxAdminHistory, a, st.now()) }
}

// WithStationAggregator replaces the default status aggregation.
func WithStationAggregator(fn StatusAggregator) StationOption {
	return func(st *Station) { st.SetStatusAggregator(fn) }
}

func WithStationName(name I18NString) StationOption {
	return func(st *Station) { st.name = name.clone() }
}

func newStation(id ids.StationID, p *Pool, cfg *settings) *Station {
	st := &Station{
		id:    id,
		pool:  p,
		evses: reactive.NewSet[ids.EVSEID, *EVSE](lessString[ids.EVSEID]),
	}
	st.init(KindStation, id.String(), cfg, status.AdminOperational, status.Unknown)
	if cfg.aggregate {
		st.fn = DefaultAggregator
	}
	st.evses.Added.Subscribe(func(ctx context.Context, en reactive.Entry[ids.EVSEID, *EVSE]) {
		st.links.set(en.Key, st.attach(en.Value))
		st.refreshStatus(ctx, st.now())
	})
	st.evses.Removed.Subscribe(func(ctx context.Context, en reactive.Entry[ids.EVSEID, *EVSE]) {
		st.links.drop(en.Key)
		en.Value.detach()
		st.refreshStatus(ctx, st.now())
	})
	return st
}

func (st *Station) attach(e *EVSE) func() {
	return combine(
		forward(&e.ChangeEvents, &st.EVSEEvents),
		forwardOps(&e.OperationEvents, &st.OperationEvents),
		e.OnStatusChanged.Subscribe(func(ctx context.Context, ev StatusChange) {
			st.refreshStatus(ctx, ev.Timestamp)
		}),
	)
}

// refreshStatus recomputes the station status from its EVSEs.
func (st *Station) refreshStatus(ctx context.Context, ts time.Time) {
	evses := st.evses.Values()
	sts := make([]status.Status, len(evses))
	for i, e := range evses {
		sts[i] = e.Status()
	}
	if v, ok := st.aggregate(sts); ok {
		st.SetStatus(ctx, v, ts)
	}
}

func (st *Station) ID() ids.StationID { return st.id }

// Pool returns the pool the station belongs to.
func (st *Station) Pool() *Pool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.pool
}

func (st *Station) detach() {
	st.mu.Lock()
	st.pool = nil
	st.mu.Unlock()
}

// Address returns the station's address, falling back to the pool's.
func (st *Station) Address() (Address, bool) {
	own := getProp(&st.base, &st.loc.address)
	if p := st.Pool(); p != nil {
		return inherit(own, p.Address)
	}
	return inherit(own, nil)
}

func (st *Station) SetAddress(ctx context.Context, a Address) (bool, error) {
	return setValidated(ctx, &st.base, &st.loc.address, "address", a)
}

// ClearAddress removes the station's own address so the pool's applies again.
func (st *Station) ClearAddress(ctx context.Context) bool {
	return clearProp(ctx, &st.base, &st.loc.address, "address")
}

func (st *Station) GeoLocation() (GeoCoordinate, bool) {
	own := getProp(&st.base, &st.loc.geo)
	if p := st.Pool(); p != nil {
		return inherit(own, p.GeoLocation)
	}
	return inherit(own, nil)
}

func (st *Station) SetGeoLocation(ctx context.Context, g GeoCoordinate) (bool, error) {
	return setValidated(ctx, &st.base, &st.loc.geo, "geoLocation", g)
}

func (st *Station) ClearGeoLocation(ctx context.Context) bool {
	return clearProp(ctx, &st.base, &st.loc.geo, "geoLocation")
}

func (st *Station) OpeningTimes() (OpeningTimes, bool) {
	own := getProp(&st.base, &st.loc.openingTimes)
	if p := st.Pool(); p != nil {
		return inherit(own, p.OpeningTimes)
	}
	return inherit(own, nil)
}

func (st *Station) SetOpeningTimes(ctx context.Context, o OpeningTimes) (bool, error) {
	return setValidated(ctx, &st.base, &st.loc.openingTimes, "openingTimes", o)
}

func (st *Station) ClearOpeningTimes(ctx context.Context) bool {
	return clearProp(ctx, &st.base, &st.loc.openingTimes, "openingTimes")
}

func (st *Station) EnergyMix() (EnergyMix, bool) {
	own := getProp(&st.base, &st.loc.energyMix)
	if p := st.Pool(); p != nil {
		return inherit(own, p.EnergyMix)
	}
	return inherit(own, nil)
}

func (st *Station) SetEnergyMix(ctx context.Context, m EnergyMix) (bool, error) {
	return setValidated(ctx, &st.base, &st.loc.energyMix, "energyMix", m)
}

func (st *Station) ClearEnergyMix(ctx context.Context) bool {
	return clearProp(ctx, &st.base, &st.loc.energyMix, "energyMix")
}

// Brands returns the station's brands or the pool's when it has none.
func (st *Station) Brands() []Brand {
	if own := getProp(&st.base, &st.loc.brands); len(own) > 0 {
		return append([]Brand(nil), own...)
	}
	if p := st.Pool(); p != nil {
		return p.Brands()
	}
	return nil
}

func (st *Station) SetBrands(ctx context.Context, b []Brand) (bool, error) {
	for _, br := range b {
		if err := Validate(br); err != nil {
			return false, err
		}
	}
	return setProp(ctx, &st.base, &st.loc.brands, "brands", append([]Brand(nil), b...)), nil
}

// ExternalIDs returns the identifiers of the station in other systems.
func (st *Station) ExternalIDs() map[string]string {
	return cloneMap(getProp(&st.base, &st.loc.externalIDs))
}

func (st *Station) SetExternalID(ctx context.Context, system, id string) bool {
	st.mu.RLock()
	next := cloneMap(st.loc.externalIDs)
	st.mu.RUnlock()
	if next == nil {
		next = map[string]string{}
	}
	next[system] = id
	return setProp(ctx, &st.base, &st.loc.externalIDs, "externalIds", next)
}

// CreateEVSE adds a new EVSE after the EVSEAddition vote passed.
func (st *Station) CreateEVSE(ctx context.Context, id ids.EVSEID, opts ...EVSEOption) (*EVSE, error) {
	if err := checkChildID(st.id.OperatorID(), id); err != nil {
		return nil, err
	}
	e := newEVSE(id, st, st.cfg)
	for _, o := range opts {
		o(e)
	}
	if err := addChild(ctx, st.evses, &st.EVSEAddition, id, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RemoveEVSE removes an EVSE after the EVSERemoval vote passed.
func (st *Station) RemoveEVSE(ctx context.Context, id ids.EVSEID) (*EVSE, error) {
	return removeChild(ctx, st.evses, &st.EVSERemoval, id, nil, nil)
}

func (st *Station) EVSE(id ids.EVSEID) (*EVSE, bool) { return st.evses.Get(id) }

func (st *Station) HasEVSE(id ids.EVSEID) bool { return st.evses.Has(id) }

// EVSEs returns the EVSEs ordered by id.
func (st *Station) EVSEs() []*EVSE { return st.evses.Values() }

func (st *Station) EVSEIDs() []ids.EVSEID { return st.evses.Keys() }

func (st *Station) EVSECount() int { return st.evses.Len() }

// firstAvailable returns the first EVSE in id order that can take a new request.
func (st *Station) firstAvailable() *EVSE {
	for _, e := range st.evses.Values() {
		if e.AdminStatus().AcceptsRequests() && e.Status() == status.Available {
			return e
		}
	}
	return nil
}

func (st *Station) locate(loc Location) (*EVSE, lookup) {
	switch {
	case !loc.EVSE.IsZero():
		if e, ok := st.evses.Get(loc.EVSE); ok {
			return e, found
		}
		return nil, unknownLocation
	case !loc.Station.IsZero() && loc.Station != st.id:
		return nil, unknownLocation
	}
	if e := st.firstAvailable(); e != nil {
		return e, found
	}
	return nil, noneAvailable
}

// Reserve reserves the addressed EVSE or the first available one.
func (st *Station) Reserve(ctx context.Context, req ReserveRequest) ReservationResult {
	start := st.now()
	if a := st.AdminStatus(); !a.AcceptsRequests() {
		return ReservationResult{Code: ReservationOutOfService, Description: "station admin status is " + a.String(), Runtime: st.now().Sub(start)}
	}
	e, lk := st.locate(req.Location)
	switch lk {
	case unknownLocation:
		return ReservationResult{Code: ReservationUnknownLocation, Description: req.Location.String(), Runtime: st.now().Sub(start)}
	case noneAvailable:
		return ReservationResult{Code: ReservationNoEVSEsAvailable, Runtime: st.now().Sub(start)}
	}
	res := e.Reserve(ctx, req)
	res.Runtime = st.now().Sub(start)
	return res
}

func (st *Station) CancelReservation(ctx context.Context, req CancelReservationRequest) CancelReservationResult {
	e, ok := st.evses.Get(req.EVSE)
	if !ok {
		return CancelReservationResult{Code: CancelUnknownReservation, Description: "unknown EVSE " + req.EVSE.String()}
	}
	return e.CancelReservation(ctx, req)
}

// RemoteStart starts charging on the addressed EVSE or the first available one.
func (st *Station) RemoteStart(ctx context.Context, req RemoteStartRequest) RemoteStartResult {
	start := st.now()
	if a := st.AdminStatus(); !a.AcceptsRequests() {
		return RemoteStartResult{Code: StartOutOfService, Description: "station admin status is " + a.String(), Runtime: st.now().Sub(start)}
	}
	e, lk := st.locate(req.Location)
	switch lk {
	case unknownLocation:
		return RemoteStartResult{Code: StartUnknownLocation, Description: req.Location.String(), Runtime: st.now().Sub(start)}
	case noneAvailable:
		return RemoteStartResult{Code: StartNoEVSEAvailable, Runtime: st.now().Sub(start)}
	}
	res := e.RemoteStart(ctx, req)
	res.Runtime = st.now().Sub(start)
	return res
}

func (st *Station) RemoteStop(ctx context.Context, req RemoteStopRequest) RemoteStopResult {
	e, ok := st.evses.Get(req.EVSE)
	if !ok {
		return RemoteStopResult{Code: StopUnknownEVSE, Description: req.EVSE.String()}
	}
	return e.RemoteStop(ctx, req)
}

func (st *Station) String() string { return fmt.Sprintf("Station(%s)", st.id) }

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
