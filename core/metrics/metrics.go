package metrics

import (
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
)

// MetricsSink records changes of the charging infrastructure for
// observability purposes.
type MetricsSink interface {
	RecordChange(ch charging.Change) error
}

// RequestRecorder records completed reservation and remote start/stop
// requests.
type RequestRecorder interface {
	RecordRequest(r charging.RequestLog) error
}

// SessionEvent is emitted when a charging session starts or ends.
type SessionEvent struct {
	Session charging.ChargingSession
	Ended   bool
	Time    time.Time
}

// SessionRecorder records session lifecycle events.
type SessionRecorder interface {
	RecordSession(ev SessionEvent) error
}

// CapacityEvent is a periodic capacity snapshot of one pool.
type CapacityEvent struct {
	Pool   string
	Report charging.CapacityReport
	Time   time.Time
}

// CapacityRecorder records pool capacity snapshots.
type CapacityRecorder interface {
	RecordCapacity(ev CapacityEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordChange(charging.Change) error      { return nil }
func (NopSink) RecordRequest(charging.RequestLog) error { return nil }
func (NopSink) RecordSession(SessionEvent) error        { return nil }
func (NopSink) RecordCapacity(CapacityEvent) error      { return nil }

// MultiSink fans records out to multiple sinks. Optional recorders are only
// forwarded to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordChange forwards the change to all sinks, returning the first error encountered.
func (m *MultiSink) RecordChange(ch charging.Change) error {
	for _, s := range m.Sinks {
		if err := s.RecordChange(ch); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordRequest(r charging.RequestLog) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RequestRecorder); ok {
			if err := rec.RecordRequest(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordSession(ev SessionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SessionRecorder); ok {
			if err := rec.RecordSession(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordCapacity(ev CapacityEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(CapacityRecorder); ok {
			if err := rec.RecordCapacity(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
