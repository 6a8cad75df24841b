package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/kryonlabs/kryon-core/internal/infrastructure/config"
)

func testBusConfig() config.BusConfig {
	return config.BusConfig{
		Broker: config.BusBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "kryon-test",
		},
		Channel: "kryon-session-channel",
		Role:    "controller",
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testBusConfig()
	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://localhost:1883" {
		t.Errorf("expected tcp://localhost:1883, got %s", got)
	}
	if !opts.AutoReconnect {
		t.Error("expected auto-reconnect to be enabled")
	}
	if !opts.CleanSession {
		t.Error("expected clean session to be enabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testBusConfig()
	cfg.Broker.TLS = true
	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("expected ssl scheme with TLS enabled, got %s", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected TLS config to be set")
	}
}

func TestUniqueClientID(t *testing.T) {
	id1 := uniqueClientID("kryon")
	id2 := uniqueClientID("kryon")

	if id1 == id2 {
		t.Error("expected unique client IDs, got duplicates")
	}
	if !strings.HasPrefix(id1, "kryon-") {
		t.Errorf("expected prefix kryon-, got %s", id1)
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic for empty topic, got %v", err)
	}
	if err := c.Publish("topic", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("expected ErrInvalidQoS for QoS 3, got %v", err)
	}
	if err := c.Publish("topic", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected when disconnected, got %v", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(topic string, payload []byte) error { return nil }

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic for empty topic, got %v", err)
	}
	if err := c.Subscribe("topic", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("expected ErrInvalidQoS for QoS 3, got %v", err)
	}
	if err := c.Subscribe("topic", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("expected ErrSubscribeFailed for nil handler, got %v", err)
	}
	if err := c.Subscribe("topic", 0, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected when disconnected, got %v", err)
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic for empty topic, got %v", err)
	}
	if err := c.Unsubscribe("topic"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected when disconnected, got %v", err)
	}
}

func TestCloseNilClient(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	if err := c.Close(); err != nil {
		t.Errorf("expected nil error closing unconnected client, got %v", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	c.subMu.Lock()
	c.subscriptions["a"] = subscription{topic: "a", qos: 1}
	c.subscriptions["b"] = subscription{topic: "b", qos: 0}
	c.subMu.Unlock()

	if got := c.SubscriptionCount(); got != 2 {
		t.Errorf("expected 2 subscriptions, got %d", got)
	}

	c.dropSubscription("a")
	if got := c.SubscriptionCount(); got != 1 {
		t.Errorf("expected 1 subscription after drop, got %d", got)
	}
}
