// Package telemetry records what the media server does.
//
// A Recorder observes every dispatched UPnP event and every lifecycle
// change of the server and fans them out to:
//
//   - Prometheus collectors (always)
//   - InfluxDB points, when a PointWriter is configured
//   - a retained MQTT status message, when a Publisher is configured
//   - WebSocket clients of the admin API, when a Broadcaster is configured
//
// Observers are called on the dispatch path, so every sink must be
// non-blocking or cheap. MQTT is only used for lifecycle changes, which
// are rare.
package telemetry
