package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/ids"
	"github.com/openchargingcloud/wwcp/core/journal"
	"github.com/openchargingcloud/wwcp/core/status"
)

var (
	testStation = ids.MustParseStationID("DE*GEF*S1")
	testEVSE1   = ids.MustNewEVSEID(testStation, 1)
	testEVSE2   = ids.MustNewEVSEID(testStation, 2)
)

func testNetwork(t *testing.T) *charging.Network {
	t.Helper()
	doc := charging.Infrastructure{
		Name: charging.NewI18N("en", "Test"),
		Operators: []charging.OperatorDoc{{
			ID: "DE*GEF",
			Pools: []charging.PoolDoc{{
				ID: "DE*GEF*P1",
				Stations: []charging.StationDoc{{
					ID: testStation.String(),
					EVSEs: []charging.EVSEDoc{
						{ID: testEVSE1.String(), MaxPowerKW: 22},
						{ID: testEVSE2.String(), MaxPowerKW: 11},
					},
				}},
			}},
		}},
	}
	n, err := charging.LoadNetwork(context.Background(), "test", doc, nil)
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return n
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestGetNetwork(t *testing.T) {
	h := NewServer(testNetwork(t)).Handler()

	rr := do(t, h, http.MethodGet, "/api/network", "")
	require.Equal(t, http.StatusOK, rr.Code)
	tree := decode[charging.NetworkJSON](t, rr)
	assert.Equal(t, "test", tree.ID)
	require.Len(t, tree.Operators, 1)
	assert.Len(t, tree.Operators[0].Pools[0].Stations[0].EVSEs, 2)

	rr = do(t, h, http.MethodGet, "/api/network?expand=false", "")
	flat := decode[charging.NetworkJSON](t, rr)
	assert.Empty(t, flat.Operators)
	assert.Len(t, flat.OperatorIDs, 1)

	rr = do(t, h, http.MethodGet, "/api/network?expand=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetEntities(t *testing.T) {
	h := NewServer(testNetwork(t)).Handler()
	cases := []struct {
		target string
		code   int
	}{
		{"/api/operators/DE*GEF", http.StatusOK},
		{"/api/operators/DE*XXX", http.StatusNotFound},
		{"/api/operators/nope", http.StatusBadRequest},
		{"/api/pools/DE*GEF*P1", http.StatusOK},
		{"/api/stations/DE*GEF*S1", http.StatusOK},
		{"/api/stations/DE*GEF*S9", http.StatusNotFound},
		{"/api/evses/DE*GEF*E1*1", http.StatusOK},
		{"/api/evses/DE*GEF*S1", http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.target, func(t *testing.T) {
			assert.Equal(t, c.code, do(t, h, http.MethodGet, c.target, "").Code)
		})
	}

	rr := do(t, h, http.MethodGet, "/api/evses/DE*GEF*E1*1", "")
	e := decode[charging.EVSEJSON](t, rr)
	assert.Equal(t, testEVSE1, e.ID)
}

func TestPutStatusAndFilter(t *testing.T) {
	h := NewServer(testNetwork(t)).Handler()

	rr := do(t, h, http.MethodPut, "/api/evses/DE*GEF*E1*1/status", `{"status":"Charging"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rr)["changed"])

	rr = do(t, h, http.MethodPut, "/api/evses/DE*GEF*E1*1/status", `{"status":"Available","timestamp":"2000-01-01T00:00:00Z"}`)
	assert.Equal(t, false, decode[map[string]any](t, rr)["changed"], "older timestamps are ignored")

	rr = do(t, h, http.MethodGet, "/api/evses/status?status=Charging", "")
	recs := decode[[]charging.EVSEStatusRecord](t, rr)
	require.Len(t, recs, 1)
	assert.Equal(t, testEVSE1, recs[0].ID)

	rr = do(t, h, http.MethodGet, "/api/evses/status?station=DE*GEF*S1", "")
	assert.Len(t, decode[[]charging.EVSEStatusRecord](t, rr), 2)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/evses/status?status=Sleeping", "").Code)

	rr = do(t, h, http.MethodGet, "/api/evses/status?status=Charging&format=csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "DE*GEF*E1*1,Charging,"))
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/evses/status?format=xml", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/evses/DE*GEF*E1*1/status", `{"status":"Sleeping"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/api/evses/DE*GEF*E1*9/status", `{"status":"Charging"}`).Code)

	rr = do(t, h, http.MethodPut, "/api/evses/DE*GEF*E1*2/adminstatus", `{"status":"OutOfService"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "OutOfService", decode[map[string]any](t, rr)["current"])
}

func TestReservationLifecycle(t *testing.T) {
	n := testNetwork(t)
	h := NewServer(n).Handler()

	rr := do(t, h, http.MethodPost, "/api/reservations", `{"reservationId":"r1","location":{"evseId":"DE*GEF*E1*1"},"duration":"30m"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[charging.ReservationResult](t, rr)
	assert.Equal(t, charging.ReservationSuccess, res.Code)
	assert.Equal(t, 30*time.Minute, res.Reservation.Duration)

	rr = do(t, h, http.MethodPost, "/api/reservations", `{"location":{"evseId":"DE*GEF*E1*1"}}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, charging.ReservationAlreadyReserved, decode[charging.ReservationResult](t, rr).Code)

	rr = do(t, h, http.MethodGet, "/api/reservations", "")
	assert.Len(t, decode[[]charging.Reservation](t, rr), 1)

	rr = do(t, h, http.MethodDelete, "/api/reservations/r1?reason=test", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, status.Available, mustEVSE(t, n, testEVSE1).Status())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/reservations/r1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/reservations", `{"duration":"soon"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/reservations", `{"unknown":1}`).Code)
}

func TestSessionLifecycle(t *testing.T) {
	n := testNetwork(t)
	h := NewServer(n).Handler()

	rr := do(t, h, http.MethodPost, "/api/sessions", `{"sessionId":"s1","location":{"evseId":"DE*GEF*E1*2"},"providerId":"DE*8PS"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, status.Charging, mustEVSE(t, n, testEVSE2).Status())

	rr = do(t, h, http.MethodGet, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	cs := decode[charging.ChargingSession](t, rr)
	assert.True(t, cs.Active())
	assert.Equal(t, "DE*8PS", cs.ProviderID)

	rr = do(t, h, http.MethodGet, "/api/sessions", "")
	assert.Len(t, decode[[]charging.ChargingSession](t, rr), 1)

	rr = do(t, h, http.MethodPost, "/api/sessions", `{"location":{"evseId":"DE*GEF*E1*2"}}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodDelete, "/api/sessions/s1", `{"reservationHandling":{"keepAlive":false}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, status.Available, mustEVSE(t, n, testEVSE2).Status())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/sessions/s1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/sessions/missing", "").Code)
}

func TestQueryJournal(t *testing.T) {
	n := testNetwork(t)
	assert.Equal(t, http.StatusNotFound, do(t, NewServer(n).Handler(), http.MethodGet, "/api/journal", "").Code)

	store, err := journal.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{testEVSE1.String(), testEVSE2.String()} {
		e, err := journal.FromChange(charging.Change{
			Type: charging.ChangeStatus, Timestamp: ts, Kind: charging.KindEVSE, EntityID: id,
			Property: "status", Old: status.Available, New: status.Charging,
		})
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, e))
	}

	h := NewServer(n, WithJournal(store)).Handler()
	rr := do(t, h, http.MethodGet, "/api/journal?entity="+testEVSE1.String()+"&from=2024-05-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	entries := decode[[]journal.Entry](t, rr)
	require.Len(t, entries, 1)
	assert.Equal(t, testEVSE1.String(), entries[0].EntityID)

	rr = do(t, h, http.MethodGet, "/api/journal?to=2024-01-01T00:00:00Z", "")
	assert.Empty(t, decode[[]journal.Entry](t, rr))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/journal?from=yesterday", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/journal?limit=-1", "").Code)
}

func TestRecovererCapturesPanics(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "internal error"))
}

func mustEVSE(t *testing.T, n *charging.Network, id ids.EVSEID) *charging.EVSE {
	t.Helper()
	e, ok := n.EVSE(id)
	require.True(t, ok)
	return e
}
