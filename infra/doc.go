// Package infra contains technical adapters: the MQTT remote EVSE binding
// and status publisher, metrics exporters, the Redis session cache, error
// monitoring and the status pusher. Adapters depend only on the interfaces
// and types of the core packages.
package infra
