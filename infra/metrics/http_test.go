package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/status"
)

func TestPromAddr(t *testing.T) {
	assert.Empty(t, PromAddr(""))
	assert.Equal(t, ":9100", PromAddr("9100"))
	assert.Equal(t, "127.0.0.1:9100", PromAddr("127.0.0.1:9100"))
}

func TestPromHandlerServesSinkMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, sink.RecordChange(charging.Change{
		Type: charging.ChangeStatus, Kind: charging.KindStation, EntityID: "DE*GEF*S1", New: status.Charging,
	}))

	srv := httptest.NewServer(PromHandler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wwcp_status_changes_total{kind="ChargingStation",status="Charging"} 1`)
}
