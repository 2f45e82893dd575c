package metrics

import (
	"time"

	"github.com/openchargingcloud/wwcp/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks"`
	PrometheusPort string                 `json:"prometheus_port"`
	// CapacityInterval controls how often pool capacity snapshots are
	// recorded. Zero disables them.
	CapacityInterval time.Duration `json:"capacity_interval"`
}
