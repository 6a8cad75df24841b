// Package devicelink owns the single serial connection to the lighting
// controller and mediates all command traffic and status telemetry
// through it.
//
// The link is an explicit state machine (disconnected, connecting,
// connected, error). Connecting requires either a caller-supplied port
// chooser or a previously persisted device identity (AutoConnect).
// Once connected, a continuous read loop surfaces inbound lines as status
// or data events, a removal watcher detects a physically unplugged device
// independently of the read loop, and intensity writes are debounced so a
// fast slider cannot saturate the serial link.
//
// The serial port is exclusively owned by one Link at a time; a duplicate
// link on the same port is refused.
package devicelink
