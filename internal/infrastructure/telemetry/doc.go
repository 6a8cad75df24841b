// Package telemetry records link and session measurements to InfluxDB.
//
// Recording is optional: when disabled in configuration the recorder is a
// nil-safe no-op, so callers never branch on whether telemetry is on.
// Writes are non-blocking and batched by the underlying client; async
// write failures surface through an error callback.
package telemetry
