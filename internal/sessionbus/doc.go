// Package sessionbus keeps controller and display contexts consistent over
// a shared publish/subscribe channel.
//
// One participant per process joins the channel with a fixed role. The
// controller owns the authoritative session snapshot and pushes incremental
// domain events; displays hold a read-only mirror updated only by inbound
// messages. A HELLO from a new peer causes the controller to push a
// FULL_STATE snapshot so late joiners synchronize immediately, and a
// controller-initiated ping/pong probe detects a silently departed peer.
//
// The transport is abstracted behind the Channel interface; the production
// implementation rides an MQTT topic (see NewMQTTChannel).
package sessionbus
