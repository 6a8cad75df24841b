// Package mqtt provides MQTT client connectivity for Kryon Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with automatic restoration on reconnect
//   - Connection health monitoring
//
// # Architecture
//
// Kryon uses MQTT as the shared broadcast channel between browsing contexts:
// the controller context and any number of display contexts publish and
// subscribe on a single session topic. The broker decouples participants
// from each other; the session semantics live in internal/sessionbus.
//
//	controller context ↔ MQTT broker ↔ display contexts
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Bus)
//	if err != nil {
//	    // bus degrades to single-context operation
//	}
//	defer client.Close()
//
//	err = client.Subscribe("kryon-session-channel", 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
