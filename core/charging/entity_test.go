package charging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchargingcloud/wwcp/core/status"
)

func TestSetNameFiresOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var got []DataChange
	f.evse1.OnDataChanged.Subscribe(func(_ context.Context, ev DataChange) { got = append(got, ev) })

	assert.True(t, f.evse1.SetName(ctx, NewI18N("en", "left")))
	assert.False(t, f.evse1.SetName(ctx, NewI18N("en", "left")))
	require.Len(t, got, 1)
	assert.Equal(t, "name", got[0].Property)
	assert.Equal(t, KindEVSE, got[0].Kind)
	assert.Equal(t, testEVSE1.String(), got[0].EntityID)
	assert.Equal(t, "left", f.evse1.Name().Get("de"))
}

func TestDataChangeBubblesToNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var atStation, atNetwork int
	f.station.EVSEEvents.OnDataChanged.Subscribe(func(context.Context, DataChange) { atStation++ })
	f.net.EVSEEvents.OnDataChanged.Subscribe(func(context.Context, DataChange) { atNetwork++ })

	f.evse1.SetMaxPowerKW(ctx, 50)
	assert.Equal(t, 1, atStation)
	assert.Equal(t, 1, atNetwork)
	assert.Equal(t, 50.0, f.evse1.MaxPowerKW())
}

func TestSetAddressValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pool.SetAddress(ctx, Address{City: "Jena"})
	assert.ErrorIs(t, err, ErrInvalidAttribute)
	_, ok := f.pool.Address()
	assert.False(t, ok)

	_, err = f.pool.SetGeoLocation(ctx, GeoCoordinate{Latitude: 95})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "GeoCoordinate.Latitude", verrs[0].Field)
}

func TestStationInheritsPoolAttributes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	poolAddr := Address{Street: "Biberweg", HouseNumber: "18", PostalCode: "07749", City: "Jena", Country: "DE"}
	changed, err := f.pool.SetAddress(ctx, poolAddr)
	require.NoError(t, err)
	assert.True(t, changed)

	a, ok := f.station.Address()
	require.True(t, ok)
	assert.Equal(t, poolAddr, a)

	own := poolAddr
	own.HouseNumber = "20"
	_, err = f.station.SetAddress(ctx, own)
	require.NoError(t, err)
	a, _ = f.station.Address()
	assert.Equal(t, "20", a.HouseNumber)

	assert.True(t, f.station.ClearAddress(ctx))
	a, _ = f.station.Address()
	assert.Equal(t, "18", a.HouseNumber)

	_, err = f.pool.SetBrands(ctx, []Brand{{ID: "gef", Name: "GraphDefined"}})
	require.NoError(t, err)
	assert.Len(t, f.station.Brands(), 1)
}

func TestCustomData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.station.SetCustomData(ctx, "vendor", "ABB"))
	assert.False(t, f.station.SetCustomData(ctx, "vendor", "ABB"))
	v, ok := f.station.CustomData("vendor")
	require.True(t, ok)
	assert.Equal(t, "ABB", v)
}

func TestSetStatusHistory(t *testing.T) {
	f := newFixture(t, WithMaxStatusHistory(3))
	ctx := context.Background()

	var events []StatusChange
	f.evse1.OnStatusChanged.Subscribe(func(_ context.Context, ev StatusChange) { events = append(events, ev) })

	for _, s := range []status.Status{status.Charging, status.Available, status.Faulted, status.Offline} {
		f.clock.Advance(1)
		assert.True(t, f.evse1.SetStatus(ctx, s, f.clock.Now()))
	}
	assert.Len(t, events, 4)
	assert.Equal(t, status.Offline, f.evse1.Status())
	hist := f.evse1.StatusHistory()
	require.Len(t, hist, 3)
	assert.Equal(t, status.Faulted, hist[1].Value)

	// older timestamps go to the history only
	assert.False(t, f.evse1.SetStatus(ctx, status.Available, f.clock.Now().Add(-10)))
	assert.Equal(t, status.Offline, f.evse1.Status())
}

func TestSetAdminStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var got []AdminStatusChange
	f.net.PoolEvents.OnAdminStatusChanged.Subscribe(func(_ context.Context, ev AdminStatusChange) { got = append(got, ev) })

	assert.True(t, f.pool.SetAdminStatus(ctx, status.AdminOutOfService, f.clock.Now()))
	assert.False(t, f.pool.SetAdminStatus(ctx, status.AdminOutOfService, f.clock.Now()))
	require.Len(t, got, 1)
	assert.Equal(t, status.AdminOperational, got[0].Old)
	assert.Equal(t, status.AdminOutOfService, got[0].New)
}

func TestOperatorAttributes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.op.SetHomepage(ctx, "not a url")
	assert.ErrorIs(t, err, ErrInvalidAttribute)
	ok, err := f.op.SetHomepage(ctx, "https://graphdefined.com")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.op.SetHotlinePhone(ctx, "+4936412345")
	require.NoError(t, err)
	assert.Equal(t, "+4936412345", f.op.HotlinePhone())
}
