package charging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchargingcloud/wwcp/core/status"
)

func TestCapacity(t *testing.T) {
	f := newFixture(t)
	f.evse2.SetStatus(context.Background(), status.Charging, f.clock.Now())

	r, ok := f.net.CapacityReport(testPool)
	require.True(t, ok)
	assert.Equal(t, 2, r.EVSEs)
	assert.InDelta(t, 33, r.TotalKW, 1e-9)
	assert.InDelta(t, 22, r.AvailableKW, 1e-9)
	assert.InDelta(t, 16.5, r.MeanKW, 1e-9)
	assert.InDelta(t, 7.7782, r.StdDevKW, 1e-4)
	assert.Equal(t, 11.0, r.MinKW)
	assert.Equal(t, 22.0, r.MaxKW)
}

func TestCapacityEdgeCases(t *testing.T) {
	assert.Equal(t, CapacityReport{}, Capacity(nil))

	f := newFixture(t)
	r := Capacity(f.station.EVSEs()[:1])
	assert.Equal(t, 22.0, r.MeanKW)
	assert.Zero(t, r.StdDevKW)
}
