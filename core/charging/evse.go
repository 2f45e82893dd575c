package charging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/status"
)

// EVSE is a single charge point of a charging station.
type EVSE struct {
	base
	OperationEvents

	id      ids.EVSEID
	station *Station

	maxPowerKW  float64
	maxCurrentA float64
	maxVoltageV float64
	sockets     []SocketOutlet
	modes       []ChargingMode

	remote      RemoteEVSE
	reservation *Reservation
	session     *ChargingSession

	// opMu serialises reservation and session commands on this EVSE.
	opMu sync.Mutex
}

// EVSEOption configures an EVSE before it is added to its station.
type EVSEOption func(*EVSE)

// WithEVSEStatus sets the initial status.
func WithEVSEStatus(s status.Status) EVSEOption {
	return func(e *EVSE) { e.status = status.NewScheduleWith(e.cfg.maxStatusHistory, s, e.now()) }
}

// WithEVSEAdminStatus sets the initial admin status.
func WithEVSEAdminStatus(a status.AdminStatus) EVSEOption {
	return func(e *EVSE) { e.adminStatus = status.NewScheduleWith(e.cfg.maxAdminHistory, a, e.now()) }
}

// WithRemote attaches the hardware proxy.
func WithRemote(r RemoteEVSE) EVSEOption {
	return func(e *EVSE) { e.remote = r }
}

// WithEVSEPower sets the electrical limits.
func WithEVSEPower(maxKW, maxA, maxV float64) EVSEOption {
	return func(e *EVSE) {
		e.maxPowerKW, e.maxCurrentA, e.maxVoltageV = maxKW, maxA, maxV
	}
}

// WithSockets sets the socket outlets.
func WithSockets(s ...SocketOutlet) EVSEOption {
	return func(e *EVSE) { e.sockets = append([]SocketOutlet(nil), s...) }
}

func newEVSE(id ids.EVSEID, st *Station, cfg *settings) *EVSE {
	e := &EVSE{id: id, station: st}
	e.init(KindEVSE, id.String(), cfg, status.AdminOperational, status.Available)
	return e
}

func (e *EVSE) ID() ids.EVSEID { return e.id }

// Station returns the station the EVSE belongs to.
func (e *EVSE) Station() *Station {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.station
}

func (e *EVSE) detach() {
	e.mu.Lock()
	e.station = nil
	e.mu.Unlock()
}

func (e *EVSE) MaxPowerKW() float64 { return getProp(&e.base, &e.maxPowerKW) }

func (e *EVSE) SetMaxPowerKW(ctx context.Context, kw float64) bool {
	return setProp(ctx, &e.base, &e.maxPowerKW, "maxPower", kw)
}

func (e *EVSE) MaxCurrentA() float64 { return getProp(&e.base, &e.maxCurrentA) }

func (e *EVSE) SetMaxCurrentA(ctx context.Context, a float64) bool {
	return setProp(ctx, &e.base, &e.maxCurrentA, "maxCurrent", a)
}

func (e *EVSE) MaxVoltageV() float64 { return getProp(&e.base, &e.maxVoltageV) }

func (e *EVSE) SetMaxVoltageV(ctx context.Context, v float64) bool {
	return setProp(ctx, &e.base, &e.maxVoltageV, "maxVoltage", v)
}

// Sockets returns a copy of the socket outlets.
func (e *EVSE) Sockets() []SocketOutlet {
	return append([]SocketOutlet(nil), getProp(&e.base, &e.sockets)...)
}

// SetSockets validates and replaces the socket outlets.
func (e *EVSE) SetSockets(ctx context.Context, s []SocketOutlet) (bool, error) {
	for _, so := range s {
		if err := Validate(so); err != nil {
			return false, err
		}
	}
	return setProp(ctx, &e.base, &e.sockets, "socketOutlets", append([]SocketOutlet(nil), s...)), nil
}

func (e *EVSE) ChargingModes() []ChargingMode {
	return append([]ChargingMode(nil), getProp(&e.base, &e.modes)...)
}

func (e *EVSE) SetChargingModes(ctx context.Context, m []ChargingMode) bool {
	return setProp(ctx, &e.base, &e.modes, "chargingModes", append([]ChargingMode(nil), m...))
}

// Remote returns the attached hardware proxy or nil.
func (e *EVSE) Remote() RemoteEVSE {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.remote
}

func (e *EVSE) SetRemote(r RemoteEVSE) {
	e.mu.Lock()
	e.remote = r
	e.mu.Unlock()
}

// Reservation returns the active reservation.
func (e *EVSE) Reservation() (Reservation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.reservation == nil {
		return Reservation{}, false
	}
	return *e.reservation, true
}

// Session returns the active charging session.
func (e *EVSE) Session() (ChargingSession, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return ChargingSession{}, false
	}
	return *e.session, true
}

func (e *EVSE) setReservation(r *Reservation) {
	e.mu.Lock()
	e.reservation = r
	e.mu.Unlock()
}

func (e *EVSE) setSession(s *ChargingSession) {
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
}

// expireReservation drops a reservation whose end time has passed.
// Callers hold opMu.
func (e *EVSE) expireReservation(ctx context.Context, now time.Time) {
	r, ok := e.Reservation()
	if !ok || !r.Expired(now) {
		return
	}
	e.setReservation(nil)
	if e.Status() == status.Reserved {
		e.SetStatus(ctx, status.Available, now)
	}
	e.OnReservationCanceled.Fire(ctx, ReservationCanceled{Reservation: r, Reason: "expired", Timestamp: now})
}

// Reserve reserves this EVSE.
func (e *EVSE) Reserve(ctx context.Context, req ReserveRequest) ReservationResult {
	start := e.now()
	done := func(code ReservationResultCode, r *Reservation, desc string) ReservationResult {
		return ReservationResult{Code: code, Reservation: r, Description: desc, Runtime: e.now().Sub(start)}
	}
	if a := e.AdminStatus(); !a.AcceptsRequests() {
		return done(ReservationOutOfService, nil, "EVSE admin status is "+a.String())
	}
	if ctx.Err() != nil {
		return done(ReservationTimeout, nil, ctx.Err().Error())
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	now := e.now()
	e.expireReservation(ctx, now)
	cur, reserved := e.Reservation()
	switch st := e.Status(); st {
	case status.Available:
	case status.Reserved:
		if !reserved || req.ReservationID == "" || cur.ID != req.ReservationID {
			return done(ReservationAlreadyReserved, nil, "")
		}
	case status.Charging:
		return done(ReservationAlreadyInUse, nil, "")
	default:
		return done(ReservationOutOfService, nil, "EVSE status is "+st.String())
	}

	r := newReservation(req, e, now, e.cfg.reservationDuration)
	if remote := e.Remote(); remote != nil {
		code, err := remote.Reserve(ctx, e.id, r)
		if err != nil {
			if isTimeout(err) {
				return done(ReservationTimeout, nil, err.Error())
			}
			return done(ReservationError, nil, err.Error())
		}
		if code != ReservationSuccess {
			return done(code, nil, "rejected by remote EVSE")
		}
	}

	e.setReservation(&r)
	e.SetStatus(ctx, status.Reserved, now)
	e.OnNewReservation.Fire(ctx, r)
	return done(ReservationSuccess, &r, "")
}

// CancelReservation cancels the active reservation if its id matches.
func (e *EVSE) CancelReservation(ctx context.Context, req CancelReservationRequest) CancelReservationResult {
	start := e.now()
	done := func(code CancelReservationResultCode, r *Reservation, desc string) CancelReservationResult {
		return CancelReservationResult{Code: code, Reservation: r, Description: desc, Runtime: e.now().Sub(start)}
	}
	if ctx.Err() != nil {
		return done(CancelTimeout, nil, ctx.Err().Error())
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	cur, ok := e.Reservation()
	if !ok || cur.ID != req.ReservationID {
		return done(CancelUnknownReservation, nil, "")
	}
	if remote := e.Remote(); remote != nil {
		code, err := remote.CancelReservation(ctx, e.id, cur.ID)
		if err != nil {
			if isTimeout(err) {
				return done(CancelTimeout, nil, err.Error())
			}
			return done(CancelError, nil, err.Error())
		}
		if code != CancelSuccess {
			return done(code, nil, "rejected by remote EVSE")
		}
	}

	now := e.now()
	e.setReservation(nil)
	if e.Status() == status.Reserved {
		e.SetStatus(ctx, status.Available, now)
	}
	e.OnReservationCanceled.Fire(ctx, ReservationCanceled{Reservation: cur, Reason: req.Reason, Timestamp: now})
	return done(CancelSuccess, &cur, "")
}

// RemoteStart starts a charging session. A reserved EVSE only accepts the
// holder of the reservation.
func (e *EVSE) RemoteStart(ctx context.Context, req RemoteStartRequest) RemoteStartResult {
	start := e.now()
	done := func(code RemoteStartResultCode, s *ChargingSession, desc string) RemoteStartResult {
		return RemoteStartResult{Code: code, Session: s, Description: desc, Runtime: e.now().Sub(start)}
	}
	if a := e.AdminStatus(); !a.AcceptsRequests() {
		return done(StartOutOfService, nil, "EVSE admin status is "+a.String())
	}
	if ctx.Err() != nil {
		return done(StartTimeout, nil, ctx.Err().Error())
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	now := e.now()
	e.expireReservation(ctx, now)
	cur, reserved := e.Reservation()
	switch st := e.Status(); st {
	case status.Available:
	case status.Reserved:
		if !reserved || cur.ID != req.ReservationID {
			return done(StartReserved, nil, "")
		}
	case status.Charging:
		return done(StartAlreadyInUse, nil, "")
	case status.Offline:
		return done(StartOffline, nil, "")
	default:
		return done(StartOutOfService, nil, "EVSE status is "+st.String())
	}

	s := newSession(req, e, now)
	if reserved {
		s.ReservationID = cur.ID
	}
	if remote := e.Remote(); remote != nil {
		code, err := remote.RemoteStart(ctx, e.id, s)
		if err != nil {
			if isTimeout(err) {
				return done(StartTimeout, nil, err.Error())
			}
			return done(StartError, nil, err.Error())
		}
		if code != StartSuccess {
			return done(code, nil, "rejected by remote EVSE")
		}
	}

	e.setReservation(nil)
	e.setSession(&s)
	e.SetStatus(ctx, status.Charging, now)
	e.OnNewChargingSession.Fire(ctx, s)
	return done(StartSuccess, &s, "")
}

// RemoteStop stops the active charging session if its id matches.
func (e *EVSE) RemoteStop(ctx context.Context, req RemoteStopRequest) RemoteStopResult {
	start := e.now()
	done := func(code RemoteStopResultCode, s *ChargingSession, r *Reservation, desc string) RemoteStopResult {
		return RemoteStopResult{Code: code, Session: s, Reservation: r, Description: desc, Runtime: e.now().Sub(start)}
	}
	if ctx.Err() != nil {
		return done(StopTimeout, nil, nil, ctx.Err().Error())
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	cur, ok := e.Session()
	if !ok || cur.ID != req.SessionID {
		return done(StopUnknownSession, nil, nil, "")
	}
	if remote := e.Remote(); remote != nil {
		code, err := remote.RemoteStop(ctx, e.id, cur.ID)
		if err != nil {
			if isTimeout(err) {
				return done(StopTimeout, nil, nil, err.Error())
			}
			return done(StopError, nil, nil, err.Error())
		}
		if code != StopSuccess {
			return done(code, nil, nil, "rejected by remote EVSE")
		}
	}

	now := e.now()
	cur.Stop = now
	e.setSession(nil)

	var kept *Reservation
	if h := req.ReservationHandling; h.KeepAlive && cur.ReservationID != "" {
		d := h.Duration
		if d <= 0 {
			d = e.cfg.reservationDuration
		}
		r := Reservation{
			ID:              cur.ReservationID,
			EVSE:            cur.EVSE,
			Station:         cur.Station,
			Pool:            cur.Pool,
			Operator:        cur.Operator,
			StartTime:       now,
			Duration:        d,
			ProviderID:      cur.ProviderID,
			AuthToken:       cur.AuthToken,
			ChargingProduct: cur.ChargingProduct,
			Created:         now,
		}
		kept = &r
		e.setReservation(kept)
		e.SetStatus(ctx, status.Reserved, now)
	} else {
		e.SetStatus(ctx, status.Available, now)
	}

	e.OnSessionEnded.Fire(ctx, cur)
	if kept != nil {
		e.OnNewReservation.Fire(ctx, *kept)
	}
	return done(StopSuccess, &cur, kept, "")
}

func (e *EVSE) String() string { return fmt.Sprintf("EVSE(%s)", e.id) }
