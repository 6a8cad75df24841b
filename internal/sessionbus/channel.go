package sessionbus

import (
	"fmt"

	"github.com/kryonlabs/kryon-core/internal/infrastructure/mqtt"
)

// Channel is the broadcast transport the bus rides on.
//
// Implementations deliver every published message to all subscribers on the
// same logical channel name, including contexts in other processes. The bus
// treats the channel as append-only broadcast and never assumes exclusive
// access.
type Channel interface {
	// Publish broadcasts a raw message to all channel participants.
	Publish(payload []byte) error

	// Subscribe registers the single inbound handler. The bus calls this
	// exactly once during Init.
	Subscribe(handler func(payload []byte)) error

	// Close releases the channel. Further publishes fail.
	Close() error
}

// mqttChannel adapts an MQTT topic to the Channel interface.
type mqttChannel struct {
	client *mqtt.Client
	topic  string
}

// NewMQTTChannel returns a Channel backed by one MQTT topic. QoS 0 matches
// the at-most-once, no-delivery-guarantee semantics of the bus protocol.
func NewMQTTChannel(client *mqtt.Client, topic string) (Channel, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil MQTT client", ErrChannelUnavailable)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: empty channel name", ErrChannelUnavailable)
	}
	return &mqttChannel{client: client, topic: topic}, nil
}

func (c *mqttChannel) Publish(payload []byte) error {
	return c.client.Publish(c.topic, payload, 0, false)
}

func (c *mqttChannel) Subscribe(handler func(payload []byte)) error {
	return c.client.Subscribe(c.topic, 0, func(_ string, payload []byte) error {
		handler(payload)
		return nil
	})
}

func (c *mqttChannel) Close() error {
	if !c.client.IsConnected() {
		return nil
	}
	return c.client.Unsubscribe(c.topic)
}
