package charging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/status"
)

func testDoc() Infrastructure {
	return Infrastructure{
		Name: NewI18N("en", "Test"),
		Operators: []OperatorDoc{{
			ID:       "DE*GEF",
			Name:     NewI18N("en", "GraphDefined"),
			Homepage: "https://graphdefined.com",
			Pools: []PoolDoc{{
				Name:    NewI18N("en", "Biberweg"),
				Address: &Address{Street: "Biberweg", HouseNumber: "18", City: "Jena", Country: "DE"},
				Stations: []StationDoc{{
					ID: "DE*GEF*S1",
					EVSEs: []EVSEDoc{
						{MaxPowerKW: 22, Sockets: []SocketOutlet{{Plug: PlugType2}}},
						{MaxPowerKW: 50, Status: "Offline", Remote: "mqtt"},
					},
				}},
			}},
		}},
	}
}

func TestLoadNetwork(t *testing.T) {
	ctx := context.Background()
	var resolved []ids.EVSEID
	resolver := func(name string, id ids.EVSEID) (RemoteEVSE, error) {
		assert.Equal(t, "mqtt", name)
		resolved = append(resolved, id)
		return &fakeRemote{}, nil
	}

	n, err := LoadNetwork(ctx, "test", testDoc(), resolver)
	require.NoError(t, err)
	defer n.Close()

	assert.Equal(t, "Test", n.Name().Get("en"))
	pools := n.Pools()
	require.Len(t, pools, 1)
	want := ids.GeneratePoolID(testOperator, "Biberweg", "Biberweg 18, Jena, DE")
	assert.Equal(t, want, pools[0].ID())

	st, ok := n.Station(testStation)
	require.True(t, ok)
	a, ok := st.Address()
	require.True(t, ok)
	assert.Equal(t, "Jena", a.City)

	e2, ok := n.EVSE(testEVSE2)
	require.True(t, ok)
	assert.Equal(t, status.Offline, e2.Status())
	assert.NotNil(t, e2.Remote())
	assert.Equal(t, []ids.EVSEID{testEVSE2}, resolved)

	e1, _ := n.EVSE(testEVSE1)
	assert.Nil(t, e1.Remote())
	assert.Equal(t, []SocketOutlet{{Plug: PlugType2}}, e1.Sockets())
}

func TestLoadNetworkIsDeterministic(t *testing.T) {
	ctx := context.Background()
	doc := testDoc()
	doc.Operators[0].Pools[0].Stations[0].ID = ""
	doc.Operators[0].Pools[0].Stations[0].EVSEs[1].Remote = ""

	a, err := LoadNetwork(ctx, "a", doc, nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := LoadNetwork(ctx, "b", doc, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, a.Stations()[0].ID(), b.Stations()[0].ID())
}

func TestLoadNetworkErrors(t *testing.T) {
	ctx := context.Background()

	doc := testDoc()
	doc.Operators[0].Pools[0].Stations[0].ID = "DE*ABC*S1"
	_, err := LoadNetwork(ctx, "x", doc, func(string, ids.EVSEID) (RemoteEVSE, error) { return &fakeRemote{}, nil })
	assert.ErrorIs(t, err, ErrOperatorMismatch)
	assert.Contains(t, err.Error(), "operators[0]: pools[0]: stations[0]")

	doc = testDoc()
	_, err = LoadNetwork(ctx, "x", doc, nil)
	assert.ErrorContains(t, err, "no resolver")

	boom := errors.New("boom")
	_, err = LoadNetwork(ctx, "x", doc, func(string, ids.EVSEID) (RemoteEVSE, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	doc = testDoc()
	doc.Operators[0].Pools[0].Address.Country = ""
	_, err = LoadNetwork(ctx, "x", doc, func(string, ids.EVSEID) (RemoteEVSE, error) { return &fakeRemote{}, nil })
	assert.ErrorIs(t, err, ErrInvalidAttribute)

	doc = testDoc()
	doc.Operators[0].AdminStatus = "sleeping"
	_, err = LoadNetwork(ctx, "x", doc, nil)
	assert.Error(t, err)
}
