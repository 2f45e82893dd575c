package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openchargingcloud/wwcp/core/charging"
	coremetrics "github.com/openchargingcloud/wwcp/core/metrics"
	"github.com/openchargingcloud/wwcp/core/status"
)

// PromSink records infrastructure changes in Prometheus metrics.
type PromSink struct {
	statusChanges *prometheus.CounterVec
	adminChanges  *prometheus.CounterVec
	dataChanges   *prometheus.CounterVec
	evseStatus    *prometheus.GaugeVec
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	sessions      prometheus.Gauge
	availableKW   *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wwcp_status_changes_total",
			Help: "Total number of status changes per entity kind and new status",
		}, []string{"kind", "status"}),
		adminChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wwcp_admin_status_changes_total",
			Help: "Total number of admin status changes per entity kind and new admin status",
		}, []string{"kind", "status"}),
		dataChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wwcp_data_changes_total",
			Help: "Total number of property changes per entity kind and property",
		}, []string{"kind", "property"}),
		evseStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wwcp_evse_status",
			Help: "Current EVSE status, 1 for the active status label",
		}, []string{"evse_id", "status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wwcp_requests_total",
			Help: "Total number of reservation and remote start/stop requests",
		}, []string{"operation", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wwcp_request_duration_seconds",
			Help:    "Runtime of reservation and remote start/stop requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wwcp_active_sessions",
			Help: "Number of active charging sessions",
		}),
		availableKW: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wwcp_pool_available_kw",
			Help: "Sum of the maximum power of available EVSEs per pool",
		}, []string{"pool_id"}),
	}
	if err := register(reg, &s.statusChanges); err != nil {
		return nil, err
	}
	if err := register(reg, &s.adminChanges); err != nil {
		return nil, err
	}
	if err := register(reg, &s.dataChanges); err != nil {
		return nil, err
	}
	if err := register(reg, &s.evseStatus); err != nil {
		return nil, err
	}
	if err := register(reg, &s.requests); err != nil {
		return nil, err
	}
	if err := register(reg, &s.latency); err != nil {
		return nil, err
	}
	if err := register(reg, &s.sessions); err != nil {
		return nil, err
	}
	if err := register(reg, &s.availableKW); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return fmt.Errorf("collector type mismatch: %w", err)
		}
		*c = existing
	}
	return nil
}

// RecordChange updates the change counters and the EVSE status gauge.
func (s *PromSink) RecordChange(ch charging.Change) error {
	switch ch.Type {
	case charging.ChangeStatus:
		s.statusChanges.WithLabelValues(string(ch.Kind), fmt.Sprint(ch.New)).Inc()
		if ch.Kind == charging.KindEVSE {
			for _, st := range status.All() {
				v := 0.0
				if fmt.Sprint(ch.New) == st.String() {
					v = 1
				}
				s.evseStatus.WithLabelValues(ch.EntityID, st.String()).Set(v)
			}
		}
	case charging.ChangeAdminStatus:
		s.adminChanges.WithLabelValues(string(ch.Kind), fmt.Sprint(ch.New)).Inc()
	case charging.ChangeData:
		s.dataChanges.WithLabelValues(string(ch.Kind), ch.Property).Inc()
	}
	return nil
}

// RecordRequest counts the request outcome and observes its runtime.
func (s *PromSink) RecordRequest(r charging.RequestLog) error {
	s.requests.WithLabelValues(r.Operation, r.Result).Inc()
	s.latency.WithLabelValues(r.Operation).Observe(r.Runtime.Seconds())
	return nil
}

// RecordSession tracks the number of active sessions.
func (s *PromSink) RecordSession(ev coremetrics.SessionEvent) error {
	if ev.Ended {
		s.sessions.Dec()
	} else {
		s.sessions.Inc()
	}
	return nil
}

func (s *PromSink) RecordCapacity(ev coremetrics.CapacityEvent) error {
	s.availableKW.WithLabelValues(ev.Pool).Set(ev.Report.AvailableKW)
	return nil
}
