package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/openchargingcloud/wwcp/core/charging"
	coremetrics "github.com/openchargingcloud/wwcp/core/metrics"
	"github.com/openchargingcloud/wwcp/infra/logger"
)

// InfluxSink writes infrastructure changes to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordChange writes one entity_change point per change.
func (s *InfluxSink) RecordChange(ch charging.Change) error {
	p := write.NewPointWithMeasurement("entity_change").
		AddTag("kind", string(ch.Kind)).
		AddTag("entity_id", ch.EntityID).
		AddTag("change_type", string(ch.Type)).
		AddTag("property", ch.Property).
		AddField("old", fieldValue(ch.Old)).
		AddField("new", fieldValue(ch.New)).
		SetTime(ch.Timestamp)
	return s.write(p)
}

// RecordRequest writes the outcome of a reservation or remote start/stop request.
func (s *InfluxSink) RecordRequest(r charging.RequestLog) error {
	p := write.NewPointWithMeasurement("request").
		AddTag("operation", r.Operation).
		AddTag("result", r.Result).
		AddField("request_id", r.RequestID).
		AddField("location", r.Location).
		AddField("runtime_ms", round3(r.Runtime.Seconds()*1000)).
		SetTime(r.Timestamp)
	return s.write(p)
}

// RecordSession writes a session start or stop.
func (s *InfluxSink) RecordSession(ev coremetrics.SessionEvent) error {
	event := "start"
	if ev.Ended {
		event = "stop"
	}
	p := write.NewPointWithMeasurement("charging_session").
		AddTag("evse_id", ev.Session.EVSE.String()).
		AddTag("operator_id", ev.Session.Operator.String()).
		AddTag("event", event).
		AddField("session_id", ev.Session.ID).
		AddField("provider_id", ev.Session.ProviderID).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordCapacity writes a pool capacity snapshot.
func (s *InfluxSink) RecordCapacity(ev coremetrics.CapacityEvent) error {
	r := ev.Report
	p := write.NewPointWithMeasurement("pool_capacity").
		AddTag("pool_id", ev.Pool).
		AddField("evses", r.EVSEs).
		AddField("total_kw", round3(r.TotalKW)).
		AddField("available_kw", round3(r.AvailableKW)).
		AddField("mean_kw", round3(r.MeanKW)).
		AddField("stddev_kw", round3(r.StdDevKW)).
		SetTime(ev.Time)
	return s.write(p)
}

// fieldValue renders change values as strings so one field keeps one type.
func fieldValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
