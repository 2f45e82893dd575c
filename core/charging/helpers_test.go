package charging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openchargingcloud/wwcp/core/ids"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var (
	testOperator = ids.MustParseOperatorID("DE*GEF")
	testPool     = ids.MustParsePoolID("DE*GEF*P1")
	testStation  = ids.MustParseStationID("DE*GEF*S1")
	testEVSE1    = ids.MustNewEVSEID(testStation, 1)
	testEVSE2    = ids.MustNewEVSEID(testStation, 2)
)

type fixture struct {
	clock   *testClock
	net     *Network
	op      *Operator
	pool    *Pool
	station *Station
	evse1   *EVSE
	evse2   *EVSE
}

// newFixture builds DE*GEF > P1 > S1 > {E1*1, E1*2}.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{clock: newTestClock()}
	f.net = NewNetwork("test", append([]Option{WithClock(f.clock.Now)}, opts...)...)
	t.Cleanup(f.net.Close)

	var err error
	f.op, err = f.net.CreateOperator(ctx, testOperator)
	require.NoError(t, err)
	f.pool, err = f.op.CreatePool(ctx, testPool)
	require.NoError(t, err)
	f.station, err = f.pool.CreateStation(ctx, testStation)
	require.NoError(t, err)
	f.evse1, err = f.station.CreateEVSE(ctx, testEVSE1, WithEVSEPower(22, 32, 400))
	require.NoError(t, err)
	f.evse2, err = f.station.CreateEVSE(ctx, testEVSE2, WithEVSEPower(11, 16, 400))
	require.NoError(t, err)
	return f
}
