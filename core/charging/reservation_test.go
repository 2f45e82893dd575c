package charging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/status"
)

func TestReserveEVSE(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var fired []Reservation
	f.net.OnNewReservation.Subscribe(func(_ context.Context, r Reservation) { fired = append(fired, r) })

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE2}, ProviderID: "DE-GDF"})
	require.Equal(t, ReservationSuccess, res.Code, res.Description)
	require.NotNil(t, res.Reservation)
	r := *res.Reservation
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, testEVSE2, r.EVSE)
	assert.Equal(t, testStation, r.Station)
	assert.Equal(t, testPool, r.Pool)
	assert.Equal(t, testOperator, r.Operator)
	assert.Equal(t, DefaultReservationDuration, r.Duration)

	assert.Equal(t, status.Reserved, f.evse2.Status())
	assert.Equal(t, []Reservation{r}, fired)

	stored, err := f.net.Reservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, stored)

	again := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE2}})
	assert.Equal(t, ReservationAlreadyReserved, again.Code)

	renew := f.net.Reserve(ctx, ReserveRequest{ReservationID: r.ID, Location: Location{EVSE: testEVSE2}, Duration: time.Hour})
	require.Equal(t, ReservationSuccess, renew.Code)
	assert.Equal(t, time.Hour, renew.Reservation.Duration)
}

func TestReserveByPoolPicksFirstAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.evse1.SetStatus(ctx, status.Charging, f.clock.Now())
	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{Pool: testPool}})
	require.Equal(t, ReservationSuccess, res.Code)
	assert.Equal(t, testEVSE2, res.Reservation.EVSE)

	res = f.net.Reserve(ctx, ReserveRequest{Location: Location{Station: testStation}})
	assert.Equal(t, ReservationNoEVSEsAvailable, res.Code)

	res = f.net.Reserve(ctx, ReserveRequest{Location: Location{Operator: testOperator}})
	assert.Equal(t, ReservationNoEVSEsAvailable, res.Code)
}

func TestReserveLocalStates(t *testing.T) {
	cases := []struct {
		st   status.Status
		want ReservationResultCode
	}{
		{status.Charging, ReservationAlreadyInUse},
		{status.Offline, ReservationOutOfService},
		{status.Faulted, ReservationOutOfService},
		{status.OutOfService, ReservationOutOfService},
	}
	for _, c := range cases {
		t.Run(c.st.String(), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.evse1.SetStatus(ctx, c.st, f.clock.Now())
			res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
			assert.Equal(t, c.want, res.Code)
		})
	}
}

func TestAdminGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.pool.SetAdminStatus(ctx, status.AdminOutOfService, f.clock.Now())
	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	assert.Equal(t, ReservationOutOfService, res.Code)
	start := f.net.RemoteStart(ctx, RemoteStartRequest{Location: Location{EVSE: testEVSE1}})
	assert.Equal(t, StartOutOfService, start.Code)

	f.pool.SetAdminStatus(ctx, status.AdminInternalUse, f.clock.Now())
	res = f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	assert.Equal(t, ReservationSuccess, res.Code)

	f.evse2.SetAdminStatus(ctx, status.AdminPlanned, f.clock.Now())
	res = f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE2}})
	assert.Equal(t, ReservationOutOfService, res.Code)
}

func TestReserveUnknownLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: ids.MustParseEVSEID("DE*GEF*E9*9")}})
	assert.Equal(t, ReservationUnknownLocation, res.Code)
	res = f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: ids.MustParseEVSEID("DE*ABC*E1*1")}})
	assert.Equal(t, ReservationUnknownLocation, res.Code)
	res = f.net.Reserve(ctx, ReserveRequest{})
	assert.Equal(t, ReservationUnknownLocation, res.Code)
}

func TestReserveTimeout(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	assert.Equal(t, ReservationTimeout, res.Code)
	assert.Equal(t, status.Available, f.evse1.Status())
}

func TestReservationExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}, Duration: time.Minute})
	require.Equal(t, ReservationSuccess, res.Code)

	f.clock.Advance(2 * time.Minute)
	other := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	require.Equal(t, ReservationSuccess, other.Code)
	assert.NotEqual(t, res.Reservation.ID, other.Reservation.ID)

	_, err := f.net.Reservation(ctx, res.Reservation.ID)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestCancelReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var canceled []ReservationCanceled
	f.net.OnReservationCanceled.Subscribe(func(_ context.Context, c ReservationCanceled) { canceled = append(canceled, c) })

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	require.Equal(t, ReservationSuccess, res.Code)

	c := f.net.CancelReservation(ctx, CancelReservationRequest{ReservationID: res.Reservation.ID, Reason: "user"})
	require.Equal(t, CancelSuccess, c.Code)
	assert.Equal(t, status.Available, f.evse1.Status())
	require.Len(t, canceled, 1)
	assert.Equal(t, "user", canceled[0].Reason)

	c = f.net.CancelReservation(ctx, CancelReservationRequest{ReservationID: res.Reservation.ID})
	assert.Equal(t, CancelUnknownReservation, c.Code)
}

func TestRemoteStartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := f.net.RemoteStart(ctx, RemoteStartRequest{Location: Location{EVSE: testEVSE1}, ProviderID: "DE-GDF"})
	require.Equal(t, StartSuccess, start.Code, start.Description)
	s := *start.Session
	assert.Equal(t, status.Charging, f.evse1.Status())
	assert.True(t, s.Active())

	again := f.net.RemoteStart(ctx, RemoteStartRequest{Location: Location{EVSE: testEVSE1}})
	assert.Equal(t, StartAlreadyInUse, again.Code)

	active, err := f.net.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	f.clock.Advance(time.Hour)
	stop := f.net.RemoteStop(ctx, RemoteStopRequest{SessionID: s.ID})
	require.Equal(t, StopSuccess, stop.Code)
	assert.Equal(t, f.clock.Now(), stop.Session.Stop)
	assert.Equal(t, status.Available, f.evse1.Status())

	stored, err := f.net.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active())

	stop = f.net.RemoteStop(ctx, RemoteStopRequest{SessionID: s.ID})
	assert.Equal(t, StopUnknownSession, stop.Code)
}

func TestRemoteStartOnReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	require.Equal(t, ReservationSuccess, res.Code)

	other := f.net.RemoteStart(ctx, RemoteStartRequest{Location: Location{EVSE: testEVSE1}, ReservationID: "someone-else"})
	assert.Equal(t, StartReserved, other.Code)

	start := f.net.RemoteStart(ctx, RemoteStartRequest{ReservationID: res.Reservation.ID})
	require.Equal(t, StartSuccess, start.Code)
	assert.Equal(t, res.Reservation.ID, start.Session.ReservationID)
	_, ok := f.evse1.Reservation()
	assert.False(t, ok)
	_, err := f.net.Reservation(ctx, res.Reservation.ID)
	assert.ErrorIs(t, err, ErrReservationNotFound)

	stop := f.net.RemoteStop(ctx, RemoteStopRequest{
		SessionID:           start.Session.ID,
		ReservationHandling: ReservationHandling{KeepAlive: true, Duration: 5 * time.Minute},
	})
	require.Equal(t, StopSuccess, stop.Code)
	require.NotNil(t, stop.Reservation)
	assert.Equal(t, status.Reserved, f.evse1.Status())
	kept, err := f.net.Reservation(ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, kept.Duration)
}

func TestRemoteStartWithReservationFollowsReservedEVSE(t *testing.T) {
	for name, loc := range map[string]Location{
		"station":  {Station: testStation},
		"pool":     {Pool: testPool},
		"operator": {Operator: testOperator},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
			require.Equal(t, ReservationSuccess, res.Code)

			start := f.net.RemoteStart(ctx, RemoteStartRequest{ReservationID: res.Reservation.ID, Location: loc})
			require.Equal(t, StartSuccess, start.Code, start.Description)
			assert.Equal(t, testEVSE1, start.Session.EVSE)
			assert.Equal(t, res.Reservation.ID, start.Session.ReservationID)
			assert.Equal(t, status.Charging, f.evse1.Status())
			assert.Equal(t, status.Available, f.evse2.Status())
		})
	}
}

func TestRemoteStartRejectsLocationOutsideReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	require.Equal(t, ReservationSuccess, res.Code)

	start := f.net.RemoteStart(ctx, RemoteStartRequest{ReservationID: res.Reservation.ID, Location: Location{EVSE: testEVSE2}})
	assert.Equal(t, StartUnknownLocation, start.Code)
	assert.Equal(t, status.Available, f.evse2.Status())

	// the reservation is untouched and can still be canceled
	stored, err := f.net.Reservation(ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, testEVSE1, stored.EVSE)
	assert.Equal(t, status.Reserved, f.evse1.Status())
	c := f.net.CancelReservation(ctx, CancelReservationRequest{ReservationID: res.Reservation.ID})
	assert.Equal(t, CancelSuccess, c.Code)
}

func TestRemoteStartWithoutReservationRecordsNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := f.net.RemoteStart(ctx, RemoteStartRequest{ReservationID: "unknown", Location: Location{Station: testStation}})
	require.Equal(t, StartSuccess, start.Code)
	assert.Empty(t, start.Session.ReservationID)
}

func TestReservationIDNotRenewableOnOtherEVSE(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	require.Equal(t, ReservationSuccess, res.Code)

	moved := f.net.Reserve(ctx, ReserveRequest{ReservationID: res.Reservation.ID, Location: Location{EVSE: testEVSE2}})
	assert.Equal(t, ReservationAlreadyReserved, moved.Code)
	assert.Equal(t, status.Available, f.evse2.Status())
	assert.Equal(t, status.Reserved, f.evse1.Status())
}

func TestExpiredReservationReleasesID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}, Duration: time.Minute})
	require.Equal(t, ReservationSuccess, res.Code)
	f.clock.Advance(2 * time.Minute)

	list, err := f.net.Reservations(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	again := f.net.Reserve(ctx, ReserveRequest{ReservationID: res.Reservation.ID, Location: Location{EVSE: testEVSE2}})
	require.Equal(t, ReservationSuccess, again.Code, again.Description)
	assert.Equal(t, testEVSE2, again.Reservation.EVSE)

	// lazily expiring the old reservation on EVSE1 keeps the reused id
	fresh := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	require.Equal(t, ReservationSuccess, fresh.Code)
	stored, err := f.net.Reservation(ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, testEVSE2, stored.EVSE)
}

type fakeRemote struct {
	reserve ReservationResultCode
	start   RemoteStartResultCode
	err     error
	calls   []string
}

func (r *fakeRemote) Reserve(_ context.Context, evse ids.EVSEID, _ Reservation) (ReservationResultCode, error) {
	r.calls = append(r.calls, "reserve "+evse.String())
	return r.reserve, r.err
}

func (r *fakeRemote) CancelReservation(context.Context, ids.EVSEID, string) (CancelReservationResultCode, error) {
	r.calls = append(r.calls, "cancel")
	return CancelSuccess, r.err
}

func (r *fakeRemote) RemoteStart(context.Context, ids.EVSEID, ChargingSession) (RemoteStartResultCode, error) {
	r.calls = append(r.calls, "start")
	return r.start, r.err
}

func (r *fakeRemote) RemoteStop(context.Context, ids.EVSEID, string) (RemoteStopResultCode, error) {
	r.calls = append(r.calls, "stop")
	return StopSuccess, r.err
}

func TestRemoteEVSEDelegation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	remote := &fakeRemote{reserve: ReservationAlreadyInUse, start: StartSuccess}
	f.evse1.SetRemote(remote)

	res := f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	assert.Equal(t, ReservationAlreadyInUse, res.Code)
	assert.Equal(t, status.Available, f.evse1.Status())

	remote.reserve = ReservationSuccess
	res = f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	assert.Equal(t, ReservationSuccess, res.Code)
	assert.Equal(t, status.Reserved, f.evse1.Status())
	assert.Equal(t, []string{"reserve " + testEVSE1.String(), "reserve " + testEVSE1.String()}, remote.calls)

	remote.err = errors.New("broker unreachable")
	c := f.net.CancelReservation(ctx, CancelReservationRequest{ReservationID: res.Reservation.ID})
	assert.Equal(t, CancelError, c.Code)
	assert.Equal(t, status.Reserved, f.evse1.Status())

	remote.err = context.DeadlineExceeded
	start := f.net.RemoteStart(ctx, RemoteStartRequest{ReservationID: res.Reservation.ID})
	assert.Equal(t, StartTimeout, start.Code)
}

func TestRequestsAreReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var logs []RequestLog
	f.net.OnRequestCompleted.Subscribe(func(_ context.Context, l RequestLog) { logs = append(logs, l) })

	f.net.Reserve(ctx, ReserveRequest{Location: Location{EVSE: testEVSE1}})
	f.net.RemoteStop(ctx, RemoteStopRequest{SessionID: "nope"})
	require.Len(t, logs, 2)
	assert.Equal(t, "reserve", logs[0].Operation)
	assert.Equal(t, string(ReservationSuccess), logs[0].Result)
	assert.Equal(t, "remote_stop", logs[1].Operation)
	assert.Equal(t, string(StopUnknownSession), logs[1].Result)
	assert.NotEqual(t, logs[0].RequestID, logs[1].RequestID)
}
