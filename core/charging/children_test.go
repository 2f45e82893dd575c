package charging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/status"
)

func TestCreateEVSERejectsBadIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.station.CreateEVSE(ctx, ids.EVSEID{})
	assert.ErrorIs(t, err, ids.ErrEmptyID)

	_, err = f.station.CreateEVSE(ctx, ids.MustParseEVSEID("DE*ABC*E1*1"))
	assert.ErrorIs(t, err, ErrOperatorMismatch)

	_, err = f.station.CreateEVSE(ctx, testEVSE1)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, 2, f.station.EVSECount())
}

func TestAdditionVeto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var notified []*EVSE
	f.station.EVSEAddition.OnVote(func(_ context.Context, e *EVSE) bool { return e.MaxPowerKW() <= 50 })
	f.station.EVSEAddition.OnNotify(func(_ context.Context, e *EVSE) { notified = append(notified, e) })

	_, err := f.station.CreateEVSE(ctx, ids.MustNewEVSEID(testStation, 3), WithEVSEPower(150, 0, 0))
	assert.ErrorIs(t, err, ErrAdditionVetoed)
	assert.False(t, f.station.HasEVSE(ids.MustNewEVSEID(testStation, 3)))
	assert.Empty(t, notified)

	e, err := f.station.CreateEVSE(ctx, ids.MustNewEVSEID(testStation, 3), WithEVSEPower(22, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []*EVSE{e}, notified)
	assert.Same(t, f.station, e.Station())
}

func TestRemoveEVSE(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.station.EVSERemoval.OnVote(func(context.Context, *EVSE) bool { return false })
	_, err := f.station.RemoveEVSE(ctx, testEVSE1)
	assert.ErrorIs(t, err, ErrRemovalVetoed)

	_, err = f.pool.RemoveStation(ctx, ids.MustParseStationID("DE*GEF*S404"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemovedEVSEIsDetached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var forwarded int
	f.station.EVSEEvents.OnStatusChanged.Subscribe(func(context.Context, StatusChange) { forwarded++ })

	e, err := f.station.RemoveEVSE(ctx, testEVSE1)
	require.NoError(t, err)
	assert.Nil(t, e.Station())

	e.SetStatus(ctx, status.Faulted, f.clock.Now())
	assert.Zero(t, forwarded)
	_, ok := f.net.EVSE(testEVSE1)
	assert.False(t, ok)
}

func TestRemoveRequiresForce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.op.RemovePool(ctx, testPool)
	assert.ErrorIs(t, err, ErrHasChildren)
	_, err = f.pool.RemoveStation(ctx, testStation)
	assert.ErrorIs(t, err, ErrHasChildren)

	p, err := f.op.RemovePool(ctx, testPool, Force())
	require.NoError(t, err)
	assert.Equal(t, testPool, p.ID())
	assert.Nil(t, p.Operator())
	assert.Zero(t, f.op.PoolCount())
}

func TestLookups(t *testing.T) {
	f := newFixture(t)

	op, ok := f.net.Operator(testOperator)
	require.True(t, ok)
	assert.Same(t, f.op, op)

	p, ok := f.net.Pool(testPool)
	require.True(t, ok)
	assert.Same(t, f.pool, p)

	st, ok := f.net.Station(testStation)
	require.True(t, ok)
	assert.Same(t, f.station, st)

	e, ok := f.net.EVSE(testEVSE2)
	require.True(t, ok)
	assert.Same(t, f.evse2, e)

	assert.Len(t, f.net.EVSEs(), 2)
	assert.Equal(t, []ids.EVSEID{testEVSE1, testEVSE2}, f.station.EVSEIDs())

	_, ok = f.net.EVSE(ids.MustParseEVSEID("DE*ABC*E1*1"))
	assert.False(t, ok)
}

func TestEVSEStatusFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.evse2.SetStatus(ctx, status.Charging, f.clock.Now())

	all := f.net.EVSEStatus(EVSEStatusFilter{})
	require.Len(t, all, 2)
	assert.Equal(t, testEVSE1, all[0].ID)

	charging := status.Charging
	rows := f.net.EVSEStatus(EVSEStatusFilter{Station: testStation, Status: &charging})
	require.Len(t, rows, 1)
	assert.Equal(t, testEVSE2, rows[0].ID)
	assert.Equal(t, status.AdminOperational, rows[0].AdminStatus)

	assert.Empty(t, f.net.EVSEStatus(EVSEStatusFilter{Operator: ids.MustParseOperatorID("DE*ABC")}))
}
