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

// Operator is a charging station operator (CSO) within a roaming network.
type Operator struct {
	base
	aggregator
	OperationEvents

	id           ids.OperatorID
	network      *Network
	homepage     string
	hotlinePhone string

	pools *reactive.Set[ids.PoolID, *Pool]
	links links[ids.PoolID]

	PoolAddition eventbus.Voting[*Pool]
	PoolRemoval  eventbus.Voting[*Pool]

	PoolEvents    ChangeEvents
	StationEvents ChangeEvents
	EVSEEvents    ChangeEvents
}

type OperatorOption func(*Operator)

func WithOperatorAdminStatus(a status.AdminStatus) OperatorOption {
	return func(o *Operator) { o.adminStatus = status.NewScheduleWith(o.cfg.maxAdminHistory, a, o.now()) }
}

func WithOperatorAggregator(fn StatusAggregator) OperatorOption {
	return func(o *Operator) { o.SetStatusAggregator(fn) }
}

func WithOperatorName(name I18NString) OperatorOption {
	return func(o *Operator) { o.name = name.clone() }
}

func newOperator(id ids.OperatorID, n *Network, cfg *settings) *Operator {
	o := &Operator{
		id:      id,
		network: n,
		pools:   reactive.NewSet[ids.PoolID, *Pool](lessString[ids.PoolID]),
	}
	o.init(KindOperator, id.String(), cfg, status.AdminOperational, status.Unknown)
	if cfg.aggregate {
		o.fn = DefaultAggregator
	}
	o.pools.Added.Subscribe(func(ctx context.Context, en reactive.Entry[ids.PoolID, *Pool]) {
		o.links.set(en.Key, o.attach(en.Value))
		o.refreshStatus(ctx, o.now())
	})
	o.pools.Removed.Subscribe(func(ctx context.Context, en reactive.Entry[ids.PoolID, *Pool]) {
		o.links.drop(en.Key)
		en.Value.detach()
		o.refreshStatus(ctx, o.now())
	})
	return o
}

func (o *Operator) attach(p *Pool) func() {
	return combine(
		forward(&p.ChangeEvents, &o.PoolEvents),
		forward(&p.StationEvents, &o.StationEvents),
		forward(&p.EVSEEvents, &o.EVSEEvents),
		forwardOps(&p.OperationEvents, &o.OperationEvents),
		p.OnStatusChanged.Subscribe(func(ctx context.Context, ev StatusChange) {
			o.refreshStatus(ctx, ev.Timestamp)
		}),
	)
}

func (o *Operator) refreshStatus(ctx context.Context, ts time.Time) {
	pools := o.pools.Values()
	sts := make([]status.Status, len(pools))
	for i, p := range pools {
		sts[i] = p.Status()
	}
	if v, ok := o.aggregate(sts); ok {
		o.SetStatus(ctx, v, ts)
	}
}

func (o *Operator) ID() ids.OperatorID { return o.id }

func (o *Operator) Network() *Network {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.network
}

func (o *Operator) detach() {
	o.mu.Lock()
	o.network = nil
	o.mu.Unlock()
}

func (o *Operator) Homepage() string { return getProp(&o.base, &o.homepage) }

func (o *Operator) SetHomepage(ctx context.Context, url string) (bool, error) {
	if err := validate.Var(url, "omitempty,url"); err != nil {
		return false, fmt.Errorf("%w: homepage %q", ErrInvalidAttribute, url)
	}
	return setProp(ctx, &o.base, &o.homepage, "homepage", url), nil
}

func (o *Operator) HotlinePhone() string { return getProp(&o.base, &o.hotlinePhone) }

func (o *Operator) SetHotlinePhone(ctx context.Context, phone string) (bool, error) {
	if err := validate.Var(phone, "omitempty,e164"); err != nil {
		return false, fmt.Errorf("%w: hotline phone %q", ErrInvalidAttribute, phone)
	}
	return setProp(ctx, &o.base, &o.hotlinePhone, "hotlinePhone", phone), nil
}

// CreatePool adds a new pool after the PoolAddition vote passed.
func (o *Operator) CreatePool(ctx context.Context, id ids.PoolID, opts ...PoolOption) (*Pool, error) {
	if err := checkChildID(o.id, id); err != nil {
		return nil, err
	}
	p := newPool(id, o, o.cfg)
	for _, opt := range opts {
		opt(p)
	}
	if err := addChild(ctx, o.pools, &o.PoolAddition, id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RemovePool removes a pool. Pools with stations are only removed with Force.
func (o *Operator) RemovePool(ctx context.Context, id ids.PoolID, opts ...RemoveOption) (*Pool, error) {
	return removeChild(ctx, o.pools, &o.PoolRemoval, id, func(p *Pool) bool { return p.StationCount() > 0 }, opts)
}

func (o *Operator) Pool(id ids.PoolID) (*Pool, bool) { return o.pools.Get(id) }

func (o *Operator) HasPool(id ids.PoolID) bool { return o.pools.Has(id) }

func (o *Operator) Pools() []*Pool { return o.pools.Values() }

func (o *Operator) PoolIDs() []ids.PoolID { return o.pools.Keys() }

func (o *Operator) PoolCount() int { return o.pools.Len() }

// Station finds a station in any pool of the operator.
func (o *Operator) Station(id ids.StationID) (*Station, bool) {
	for _, p := range o.pools.Values() {
		if st, ok := p.Station(id); ok {
			return st, true
		}
	}
	return nil, false
}

func (o *Operator) Stations() []*Station {
	var out []*Station
	for _, p := range o.pools.Values() {
		out = append(out, p.Stations()...)
	}
	return out
}

// EVSE finds an EVSE in any pool of the operator.
func (o *Operator) EVSE(id ids.EVSEID) (*EVSE, bool) {
	if p := o.poolOf(id); p != nil {
		return p.EVSE(id)
	}
	return nil, false
}

func (o *Operator) EVSEs() []*EVSE {
	var out []*EVSE
	for _, p := range o.pools.Values() {
		out = append(out, p.EVSEs()...)
	}
	return out
}

func (o *Operator) poolOf(id ids.EVSEID) *Pool {
	for _, p := range o.pools.Values() {
		if p.stationOf(id) != nil {
			return p
		}
	}
	return nil
}

func (o *Operator) locate(loc Location) (*Pool, Location, lookup) {
	switch {
	case !loc.EVSE.IsZero():
		if p := o.poolOf(loc.EVSE); p != nil {
			return p, loc, found
		}
		return nil, loc, unknownLocation
	case !loc.Station.IsZero():
		for _, p := range o.pools.Values() {
			if p.HasStation(loc.Station) {
				return p, loc, found
			}
		}
		return nil, loc, unknownLocation
	case !loc.Pool.IsZero():
		if p, ok := o.pools.Get(loc.Pool); ok {
			return p, loc, found
		}
		return nil, loc, unknownLocation
	case !loc.Operator.IsZero() && loc.Operator != o.id:
		return nil, loc, unknownLocation
	}
	for _, p := range o.pools.Values() {
		if !p.AdminStatus().AcceptsRequests() {
			continue
		}
		if _, narrowed, lk := p.locate(Location{}); lk == found {
			return p, narrowed, found
		}
	}
	return nil, loc, noneAvailable
}

func (o *Operator) Reserve(ctx context.Context, req ReserveRequest) ReservationResult {
	start := o.now()
	if a := o.AdminStatus(); !a.AcceptsRequests() {
		return ReservationResult{Code: ReservationOutOfService, Description: "operator admin status is " + a.String(), Runtime: o.now().Sub(start)}
	}
	p, loc, lk := o.locate(req.Location)
	switch lk {
	case unknownLocation:
		return ReservationResult{Code: ReservationUnknownLocation, Description: req.Location.String(), Runtime: o.now().Sub(start)}
	case noneAvailable:
		return ReservationResult{Code: ReservationNoEVSEsAvailable, Runtime: o.now().Sub(start)}
	}
	req.Location = loc
	res := p.Reserve(ctx, req)
	res.Runtime = o.now().Sub(start)
	return res
}

func (o *Operator) CancelReservation(ctx context.Context, req CancelReservationRequest) CancelReservationResult {
	p := o.poolOf(req.EVSE)
	if p == nil {
		return CancelReservationResult{Code: CancelUnknownReservation, Description: "unknown EVSE " + req.EVSE.String()}
	}
	return p.CancelReservation(ctx, req)
}

func (o *Operator) RemoteStart(ctx context.Context, req RemoteStartRequest) RemoteStartResult {
	start := o.now()
	if a := o.AdminStatus(); !a.AcceptsRequests() {
		return RemoteStartResult{Code: StartOutOfService, Description: "operator admin status is " + a.String(), Runtime: o.now().Sub(start)}
	}
	p, loc, lk := o.locate(req.Location)
	switch lk {
	case unknownLocation:
		return RemoteStartResult{Code: StartUnknownLocation, Description: req.Location.String(), Runtime: o.now().Sub(start)}
	case noneAvailable:
		return RemoteStartResult{Code: StartNoEVSEAvailable, Runtime: o.now().Sub(start)}
	}
	req.Location = loc
	res := p.RemoteStart(ctx, req)
	res.Runtime = o.now().Sub(start)
	return res
}

func (o *Operator) RemoteStop(ctx context.Context, req RemoteStopRequest) RemoteStopResult {
	p := o.poolOf(req.EVSE)
	if p == nil {
		return RemoteStopResult{Code: StopUnknownEVSE, Description: req.EVSE.String()}
	}
	return p.RemoteStop(ctx, req)
}

func (o *Operator) String() string { return fmt.Sprintf("Operator(%s)", o.id) }
