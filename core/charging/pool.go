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

// Pool is a group of co-located charging stations.
type Pool struct {
	base
	aggregator
	OperationEvents

	id       ids.PoolID
	operator *Operator
	loc      location

	stations *reactive.Set[ids.StationID, *Station]
	links    links[ids.StationID]

	StationAddition eventbus.Voting[*Station]
	StationRemoval  eventbus.Voting[*Station]

	StationEvents ChangeEvents
	EVSEEvents    ChangeEvents
}

type PoolOption func(*Pool)

func WithPoolAdminStatus(a status.AdminStatus) PoolOption {
	return func(p *Pool) { p.adminStatus = status.NewScheduleWith(p.cfg.maxAdminHistory, a, p.now()) }
}

func WithPoolAggregator(fn StatusAggregator) PoolOption {
	return func(p *Pool) { p.SetStatusAggregator(fn) }
}

func WithPoolName(name I18NString) PoolOption {
	return func(p *Pool) { p.name = name.clone() }
}

func newPool(id ids.PoolID, op *Operator, cfg *settings) *Pool {
	p := &Pool{
		id:       id,
		operator: op,
		stations: reactive.NewSet[ids.StationID, *Station](lessString[ids.StationID]),
	}
	p.init(KindPool, id.String(), cfg, status.AdminOperational, status.Unknown)
	if cfg.aggregate {
		p.fn = DefaultAggregator
	}
	p.stations.Added.Subscribe(func(ctx context.Context, en reactive.Entry[ids.StationID, *Station]) {
		p.links.set(en.Key, p.attach(en.Value))
		p.refreshStatus(ctx, p.now())
	})
	p.stations.Removed.Subscribe(func(ctx context.Context, en reactive.Entry[ids.StationID, *Station]) {
		p.links.drop(en.Key)
		en.Value.detach()
		p.refreshStatus(ctx, p.now())
	})
	return p
}

func (p *Pool) attach(st *Station) func() {
	return combine(
		forward(&st.ChangeEvents, &p.StationEvents),
		forward(&st.EVSEEvents, &p.EVSEEvents),
		forwardOps(&st.OperationEvents, &p.OperationEvents),
		st.OnStatusChanged.Subscribe(func(ctx context.Context, ev StatusChange) {
			p.refreshStatus(ctx, ev.Timestamp)
		}),
	)
}

func (p *Pool) refreshStatus(ctx context.Context, ts time.Time) {
	stations := p.stations.Values()
	sts := make([]status.Status, len(stations))
	for i, st := range stations {
		sts[i] = st.Status()
	}
	if v, ok := p.aggregate(sts); ok {
		p.SetStatus(ctx, v, ts)
	}
}

func (p *Pool) ID() ids.PoolID { return p.id }

// Operator returns the operator the pool belongs to.
func (p *Pool) Operator() *Operator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.operator
}

func (p *Pool) detach() {
	p.mu.Lock()
	p.operator = nil
	p.mu.Unlock()
}

func (p *Pool) Address() (Address, bool) {
	return inherit(getProp(&p.base, &p.loc.address), nil)
}

func (p *Pool) SetAddress(ctx context.Context, a Address) (bool, error) {
	return setValidated(ctx, &p.base, &p.loc.address, "address", a)
}

func (p *Pool) GeoLocation() (GeoCoordinate, bool) {
	return inherit(getProp(&p.base, &p.loc.geo), nil)
}

func (p *Pool) SetGeoLocation(ctx context.Context, g GeoCoordinate) (bool, error) {
	return setValidated(ctx, &p.base, &p.loc.geo, "geoLocation", g)
}

func (p *Pool) OpeningTimes() (OpeningTimes, bool) {
	return inherit(getProp(&p.base, &p.loc.openingTimes), nil)
}

func (p *Pool) SetOpeningTimes(ctx context.Context, o OpeningTimes) (bool, error) {
	return setValidated(ctx, &p.base, &p.loc.openingTimes, "openingTimes", o)
}

func (p *Pool) EnergyMix() (EnergyMix, bool) {
	return inherit(getProp(&p.base, &p.loc.energyMix), nil)
}

func (p *Pool) SetEnergyMix(ctx context.Context, m EnergyMix) (bool, error) {
	return setValidated(ctx, &p.base, &p.loc.energyMix, "energyMix", m)
}

func (p *Pool) Brands() []Brand {
	return append([]Brand(nil), getProp(&p.base, &p.loc.brands)...)
}

func (p *Pool) SetBrands(ctx context.Context, b []Brand) (bool, error) {
	for _, br := range b {
		if err := Validate(br); err != nil {
			return false, err
		}
	}
	return setProp(ctx, &p.base, &p.loc.brands, "brands", append([]Brand(nil), b...)), nil
}

func (p *Pool) ExternalIDs() map[string]string {
	return cloneMap(getProp(&p.base, &p.loc.externalIDs))
}

func (p *Pool) SetExternalID(ctx context.Context, system, id string) bool {
	p.mu.RLock()
	next := cloneMap(p.loc.externalIDs)
	p.mu.RUnlock()
	if next == nil {
		next = map[string]string{}
	}
	next[system] = id
	return setProp(ctx, &p.base, &p.loc.externalIDs, "externalIds", next)
}

// CreateStation adds a new station after the StationAddition vote passed.
func (p *Pool) CreateStation(ctx context.Context, id ids.StationID, opts ...StationOption) (*Station, error) {
	if err := checkChildID(p.id.OperatorID(), id); err != nil {
		return nil, err
	}
	st := newStation(id, p, p.cfg)
	for _, o := range opts {
		o(st)
	}
	if err := addChild(ctx, p.stations, &p.StationAddition, id, st); err != nil {
		return nil, err
	}
	return st, nil
}

// RemoveStation removes a station. Stations with EVSEs are only removed with Force.
func (p *Pool) RemoveStation(ctx context.Context, id ids.StationID, opts ...RemoveOption) (*Station, error) {
	return removeChild(ctx, p.stations, &p.StationRemoval, id, func(st *Station) bool { return st.EVSECount() > 0 }, opts)
}

func (p *Pool) Station(id ids.StationID) (*Station, bool) { return p.stations.Get(id) }

func (p *Pool) HasStation(id ids.StationID) bool { return p.stations.Has(id) }

func (p *Pool) Stations() []*Station { return p.stations.Values() }

func (p *Pool) StationIDs() []ids.StationID { return p.stations.Keys() }

func (p *Pool) StationCount() int { return p.stations.Len() }

// EVSEs returns the EVSEs of all stations ordered by station and EVSE id.
func (p *Pool) EVSEs() []*EVSE {
	var out []*EVSE
	for _, st := range p.stations.Values() {
		out = append(out, st.EVSEs()...)
	}
	return out
}

// EVSE finds an EVSE in any station of the pool.
func (p *Pool) EVSE(id ids.EVSEID) (*EVSE, bool) {
	if st := p.stationOf(id); st != nil {
		return st.EVSE(id)
	}
	return nil, false
}

func (p *Pool) stationOf(id ids.EVSEID) *Station {
	var hit *Station
	p.stations.Range(func(_ ids.StationID, st *Station) bool {
		if st.HasEVSE(id) {
			hit = st
			return false
		}
		return true
	})
	return hit
}

// locate picks the station a request is delegated to. A pool-wide location
// is narrowed to the first available EVSE.
func (p *Pool) locate(loc Location) (*Station, Location, lookup) {
	switch {
	case !loc.EVSE.IsZero():
		if st := p.stationOf(loc.EVSE); st != nil {
			return st, loc, found
		}
		return nil, loc, unknownLocation
	case !loc.Station.IsZero():
		if st, ok := p.stations.Get(loc.Station); ok {
			return st, loc, found
		}
		return nil, loc, unknownLocation
	case !loc.Pool.IsZero() && loc.Pool != p.id:
		return nil, loc, unknownLocation
	}
	for _, st := range p.stations.Values() {
		if !st.AdminStatus().AcceptsRequests() {
			continue
		}
		if e := st.firstAvailable(); e != nil {
			return st, Location{EVSE: e.ID()}, found
		}
	}
	return nil, loc, noneAvailable
}

func (p *Pool) Reserve(ctx context.Context, req ReserveRequest) ReservationResult {
	start := p.now()
	if a := p.AdminStatus(); !a.AcceptsRequests() {
		return ReservationResult{Code: ReservationOutOfService, Description: "pool admin status is " + a.String(), Runtime: p.now().Sub(start)}
	}
	st, loc, lk := p.locate(req.Location)
	switch lk {
	case unknownLocation:
		return ReservationResult{Code: ReservationUnknownLocation, Description: req.Location.String(), Runtime: p.now().Sub(start)}
	case noneAvailable:
		return ReservationResult{Code: ReservationNoEVSEsAvailable, Runtime: p.now().Sub(start)}
	}
	req.Location = loc
	res := st.Reserve(ctx, req)
	res.Runtime = p.now().Sub(start)
	return res
}

func (p *Pool) CancelReservation(ctx context.Context, req CancelReservationRequest) CancelReservationResult {
	st := p.stationOf(req.EVSE)
	if st == nil {
		return CancelReservationResult{Code: CancelUnknownReservation, Description: "unknown EVSE " + req.EVSE.String()}
	}
	return st.CancelReservation(ctx, req)
}

func (p *Pool) RemoteStart(ctx context.Context, req RemoteStartRequest) RemoteStartResult {
	start := p.now()
	if a := p.AdminStatus(); !a.AcceptsRequests() {
		return RemoteStartResult{Code: StartOutOfService, Description: "pool admin status is " + a.String(), Runtime: p.now().Sub(start)}
	}
	st, loc, lk := p.locate(req.Location)
	switch lk {
	case unknownLocation:
		return RemoteStartResult{Code: StartUnknownLocation, Description: req.Location.String(), Runtime: p.now().Sub(start)}
	case noneAvailable:
		return RemoteStartResult{Code: StartNoEVSEAvailable, Runtime: p.now().Sub(start)}
	}
	req.Location = loc
	res := st.RemoteStart(ctx, req)
	res.Runtime = p.now().Sub(start)
	return res
}

func (p *Pool) RemoteStop(ctx context.Context, req RemoteStopRequest) RemoteStopResult {
	st := p.stationOf(req.EVSE)
	if st == nil {
		return RemoteStopResult{Code: StopUnknownEVSE, Description: req.EVSE.String()}
	}
	return st.RemoteStop(ctx, req)
}

func (p *Pool) String() string { return fmt.Sprintf("Pool(%s)", p.id) }
