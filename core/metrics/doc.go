// Package metrics defines the recorder interfaces used to export charging
// infrastructure activity. Sinks such as the Prometheus and InfluxDB sinks in
// infra/metrics record status changes, completed requests and session
// lifecycles, and can be combined with NewMultiSink. The factory helpers
// return a MultiSink automatically when multiple sinks are configured.
package metrics
