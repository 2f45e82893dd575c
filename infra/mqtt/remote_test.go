package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/ids"
	coremqtt "github.com/openchargingcloud/wwcp/core/mqtt"
	"github.com/openchargingcloud/wwcp/core/status"
)

func remoteNetwork(t *testing.T, remote charging.RemoteEVSE) (*charging.Network, *charging.EVSE) {
	t.Helper()
	ctx := context.Background()
	n := charging.NewNetwork("test")
	t.Cleanup(n.Close)
	op, err := n.CreateOperator(ctx, ids.MustParseOperatorID("DE*GEF"))
	require.NoError(t, err)
	pool, err := op.CreatePool(ctx, ids.MustParsePoolID("DE*GEF*P1"))
	require.NoError(t, err)
	st, err := pool.CreateStation(ctx, ids.MustParseStationID("DE*GEF*S1"))
	require.NoError(t, err)
	evse, err := st.CreateEVSE(ctx, testEVSE, charging.WithRemote(remote))
	require.NoError(t, err)
	return n, evse
}

func TestRemoteEVSEStartStop(t *testing.T) {
	ctx := context.Background()
	mc := NewMockClient()
	n, evse := remoteNetwork(t, NewRemoteEVSE(mc, time.Second))

	start := n.RemoteStart(ctx, charging.RemoteStartRequest{Location: charging.Location{EVSE: testEVSE}, ProviderID: "DE*ICE"})
	require.True(t, start.Success(), start.Description)
	assert.Equal(t, status.Charging, evse.Status())

	stop := n.RemoteStop(ctx, charging.RemoteStopRequest{SessionID: start.Session.ID})
	require.True(t, stop.Success(), stop.Description)

	sent := mc.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, coremqtt.ActionRemoteStart, sent[0].Action)
	assert.Equal(t, start.Session.ID, sent[0].SessionID)
	assert.Equal(t, "DE*ICE", sent[0].ProviderID)
	assert.Equal(t, coremqtt.ActionRemoteStop, sent[1].Action)
}

func TestRemoteEVSEResultCodes(t *testing.T) {
	ctx := context.Background()
	mc := NewMockClient()
	mc.Results[coremqtt.ActionReserve] = "AlreadyInUse"
	mc.Results[coremqtt.ActionRemoteStart] = "Exploded"
	r := NewRemoteEVSE(mc, time.Second)

	code, err := r.Reserve(ctx, testEVSE, charging.Reservation{ID: "r1", Duration: 15 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, charging.ReservationAlreadyInUse, code)
	assert.Equal(t, int64(900), mc.Sent()[0].DurationSeconds)

	startCode, err := r.RemoteStart(ctx, testEVSE, charging.ChargingSession{ID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, charging.StartError, startCode)

	cancelCode, err := r.CancelReservation(ctx, testEVSE, "r1")
	require.NoError(t, err)
	assert.Equal(t, charging.CancelSuccess, cancelCode)
}

func TestRemoteEVSETimeout(t *testing.T) {
	ctx := context.Background()
	mc := NewMockClient()
	mc.Silent = true
	n, evse := remoteNetwork(t, NewRemoteEVSE(mc, 5*time.Millisecond))

	res := n.Reserve(ctx, charging.ReserveRequest{Location: charging.Location{EVSE: testEVSE}})
	assert.Equal(t, charging.ReservationTimeout, res.Code)
	assert.Equal(t, status.Available, evse.Status())
}

func TestRemoteEVSESendFailure(t *testing.T) {
	ctx := context.Background()
	mc := NewMockClient()
	mc.FailEVSEs[testEVSE.String()] = true

	code, err := NewRemoteEVSE(mc, time.Second).RemoteStop(ctx, testEVSE, "s1")
	assert.Error(t, err)
	assert.Equal(t, charging.StopError, code)
}

func TestResolver(t *testing.T) {
	r := NewRemoteEVSE(NewMockClient(), 0)
	resolve := Resolver(r)

	got, err := resolve("mqtt", testEVSE)
	require.NoError(t, err)
	assert.Same(t, r, got)

	_, err = resolve("ocpp", testEVSE)
	assert.ErrorContains(t, err, "unsupported remote")
}
