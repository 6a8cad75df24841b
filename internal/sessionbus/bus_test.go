package sessionbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// testHub is an in-process broadcast fabric standing in for the MQTT topic.
// Every publish is delivered synchronously to all subscribers, including the
// publisher's own, matching the loopback behavior of the real transport.
type testHub struct {
	mu   sync.Mutex
	subs []func([]byte)
	log  []Envelope
}

func (h *testHub) publish(data []byte) {
	var env Envelope
	_ = json.Unmarshal(data, &env)

	h.mu.Lock()
	h.log = append(h.log, env)
	subs := make([]func([]byte), len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s(data)
	}
}

func (h *testHub) attach(handler func([]byte)) {
	h.mu.Lock()
	h.subs = append(h.subs, handler)
	h.mu.Unlock()
}

// sent returns the envelopes published so far, filtered by sender role.
func (h *testHub) sent(from Role) []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Envelope
	for _, env := range h.log {
		if env.From == from {
			out = append(out, env)
		}
	}
	return out
}

type testChannel struct {
	hub *testHub
}

func (c *testChannel) Publish(payload []byte) error {
	c.hub.publish(payload)
	return nil
}

func (c *testChannel) Subscribe(handler func(payload []byte)) error {
	c.hub.attach(handler)
	return nil
}

func (c *testChannel) Close() error { return nil }

var channelSeq int

func newTestBus(t *testing.T, hub *testHub, role Role, ping, pong time.Duration) *Bus {
	t.Helper()
	channelSeq++
	b, err := New(Config{
		Role:         role,
		ChannelName:  fmt.Sprintf("%s-%d", t.Name(), channelSeq),
		Channel:      &testChannel{hub: hub},
		PingInterval: ping,
		PongTimeout:  pong,
	})
	if err != nil {
		t.Fatalf("New(%s): %v", role, err)
	}
	t.Cleanup(b.Destroy)
	return b
}

func TestHelloTriggersExactlyOneFullState(t *testing.T) {
	hub := &testHub{}

	controller := newTestBus(t, hub, RoleController, time.Hour, time.Hour)
	if err := controller.Init(); err != nil {
		t.Fatalf("controller init: %v", err)
	}
	if err := controller.StartSession("relax", "s-1", 600, true, false); err != nil {
		t.Fatalf("start session: %v", err)
	}

	display := newTestBus(t, hub, RoleDisplay, 0, 0)
	if err := display.Init(); err != nil {
		t.Fatalf("display init: %v", err)
	}

	// Controller output after the display's HELLO: FULL_STATE must come
	// first and exactly once.
	fullStates := 0
	firstReaction := ""
	for _, env := range hub.sent(RoleController) {
		if env.Type == TypeHello || env.Type == TypeSessionStart {
			continue
		}
		if firstReaction == "" {
			firstReaction = env.Type
		}
		if env.Type == TypeFullState {
			fullStates++
		}
	}
	if fullStates != 1 {
		t.Fatalf("expected exactly 1 FULL_STATE, got %d", fullStates)
	}
	if firstReaction != TypeFullState {
		t.Errorf("expected FULL_STATE before any other event, got %s first", firstReaction)
	}

	want := controller.Snapshot()
	got := display.Snapshot()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("display snapshot %+v != controller snapshot %+v", got, want)
	}
	if !controller.PeerConnected() {
		t.Error("controller should mark peer connected after HELLO")
	}
}

func TestTherapyChangeRoundTrip(t *testing.T) {
	hub := &testHub{}

	controller := newTestBus(t, hub, RoleController, time.Hour, time.Hour)
	display := newTestBus(t, hub, RoleDisplay, 0, 0)
	if err := controller.Init(); err != nil {
		t.Fatal(err)
	}
	if err := display.Init(); err != nil {
		t.Fatal(err)
	}

	p := TherapyChangePayload{
		Therapy:   "chromotherapy",
		Duration:  900,
		Index:     2,
		ColorMode: "azul",
		Playlist:  []string{"a.mp4", "b.mp4", "c.mp4"},
		PlayVideo: true,
		VideoOnly: false,
	}
	if err := controller.ChangeTherapy(p); err != nil {
		t.Fatalf("change therapy: %v", err)
	}

	want := controller.Snapshot()
	got := display.Snapshot()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("display snapshot %+v != controller snapshot %+v", got, want)
	}
	if got.TotalSec != 900 || got.PlaylistIndex != 2 || got.ElapsedSec != 0 {
		t.Errorf("unexpected mirror fields: %+v", got)
	}
}

func TestPlayPauseOrdering(t *testing.T) {
	hub := &testHub{}

	controller := newTestBus(t, hub, RoleController, time.Hour, time.Hour)
	display := newTestBus(t, hub, RoleDisplay, 0, 0)
	if err := controller.Init(); err != nil {
		t.Fatal(err)
	}
	if err := display.Init(); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var received []string
	display.On(TypePlay, func(any) {
		mu.Lock()
		received = append(received, TypePlay)
		mu.Unlock()
	})
	display.On(TypePause, func(any) {
		mu.Lock()
		received = append(received, TypePause)
		mu.Unlock()
	})

	if err := controller.Play(); err != nil {
		t.Fatal(err)
	}
	if err := controller.Pause(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	order := append([]string(nil), received...)
	mu.Unlock()
	if !reflect.DeepEqual(order, []string{TypePlay, TypePause}) {
		t.Errorf("expected [PLAY PAUSE], got %v", order)
	}
	if display.Snapshot().IsPlaying {
		t.Error("display should end with isPlaying=false")
	}
}

func TestOwnBroadcastsSuppressed(t *testing.T) {
	hub := &testHub{}

	controller := newTestBus(t, hub, RoleController, time.Hour, time.Hour)
	if err := controller.Init(); err != nil {
		t.Fatal(err)
	}

	domainEvents := 0
	controller.On(TypePlay, func(any) { domainEvents++ })

	if err := controller.Play(); err != nil {
		t.Fatal(err)
	}

	// The hub loops the PLAY envelope back to the controller; same-role
	// suppression must drop it so the mutation is not applied twice.
	if domainEvents != 0 {
		t.Errorf("controller processed its own broadcast %d times", domainEvents)
	}
	if !controller.Snapshot().IsPlaying {
		t.Error("local mutation should still apply")
	}
}

func TestPingTimeoutFiresOnce(t *testing.T) {
	hub := &testHub{}

	const (
		pingInterval = 25 * time.Millisecond
		pongTimeout  = 10 * time.Millisecond
	)

	// Fake display peer that answers pings until told to stop.
	var respondMu sync.Mutex
	responding := true
	hub.attach(func(data []byte) {
		var env Envelope
		if json.Unmarshal(data, &env) != nil || env.Type != TypePing {
			return
		}
		respondMu.Lock()
		ok := responding
		respondMu.Unlock()
		if !ok {
			return
		}
		pong, _ := NewEnvelope(TypePong, PingPayload{}, RoleDisplay)
		raw, _ := json.Marshal(pong)
		go hub.publish(raw)
	})

	controller := newTestBus(t, hub, RoleController, pingInterval, pongTimeout)
	if err := controller.Init(); err != nil {
		t.Fatal(err)
	}

	disconnects := make(chan PeerDisconnectEvent, 10)
	controller.On(EventPeerDisconnect, func(payload any) {
		if ev, ok := payload.(PeerDisconnectEvent); ok {
			disconnects <- ev
		}
	})

	// Let a few ping/pong rounds establish liveness.
	deadline := time.After(10 * pingInterval)
	for !controller.PeerConnected() {
		select {
		case <-deadline:
			t.Fatal("peer never marked connected")
		case <-time.After(pingInterval / 5):
		}
	}

	respondMu.Lock()
	responding = false
	respondMu.Unlock()

	select {
	case ev := <-disconnects:
		if ev.Reason != "timeout" {
			t.Errorf("expected reason timeout, got %q", ev.Reason)
		}
	case <-time.After(20 * pingInterval):
		t.Fatal("peerDisconnect never fired")
	}
	if controller.PeerConnected() {
		t.Error("peer should be marked disconnected")
	}

	// Exactly once per lost window: no further disconnect events while
	// the peer stays silent.
	select {
	case ev := <-disconnects:
		t.Errorf("unexpected second peerDisconnect: %+v", ev)
	case <-time.After(5 * pingInterval):
	}
}

func TestGoodbyeMarksPeerDisconnected(t *testing.T) {
	hub := &testHub{}

	controller := newTestBus(t, hub, RoleController, time.Hour, time.Hour)
	display := newTestBus(t, hub, RoleDisplay, 0, 0)
	if err := controller.Init(); err != nil {
		t.Fatal(err)
	}
	if err := display.Init(); err != nil {
		t.Fatal(err)
	}
	if !controller.PeerConnected() {
		t.Fatal("peer should be connected after HELLO")
	}

	var reason string
	controller.On(EventPeerDisconnect, func(payload any) {
		if ev, ok := payload.(PeerDisconnectEvent); ok {
			reason = ev.Reason
		}
	})

	display.Destroy()

	if controller.PeerConnected() {
		t.Error("peer should be disconnected after GOODBYE")
	}
	if reason != "goodbye" {
		t.Errorf("expected reason goodbye, got %q", reason)
	}
}

func TestDestroyIdempotent(t *testing.T) {
	hub := &testHub{}

	b := newTestBus(t, hub, RoleController, time.Hour, time.Hour)
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}

	b.Destroy()
	b.Destroy()

	goodbyes := 0
	for _, env := range hub.sent(RoleController) {
		if env.Type == TypeGoodbye {
			goodbyes++
		}
	}
	if goodbyes != 1 {
		t.Errorf("expected exactly 1 GOODBYE, got %d", goodbyes)
	}
}

func TestNilChannelDegradesGracefully(t *testing.T) {
	b, err := New(Config{Role: RoleController, ChannelName: "degraded"})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Init(); err != nil {
		t.Errorf("init without channel should succeed, got %v", err)
	}
	if err := b.Play(); err != nil {
		t.Errorf("intents should still mutate locally, got %v", err)
	}
	if !b.Snapshot().IsPlaying {
		t.Error("local snapshot should reflect intent")
	}
	b.Destroy()
}

func TestDisplayRejectsIntents(t *testing.T) {
	hub := &testHub{}

	display := newTestBus(t, hub, RoleDisplay, 0, 0)
	if err := display.Init(); err != nil {
		t.Fatal(err)
	}

	if err := display.Play(); !errors.Is(err, ErrNotController) {
		t.Errorf("expected ErrNotController, got %v", err)
	}
}

func TestDuplicateParticipantRefused(t *testing.T) {
	hub := &testHub{}

	name := "guard-test-channel"
	first, err := New(Config{Role: RoleController, ChannelName: name, Channel: &testChannel{hub: hub}})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(first.Destroy)

	second, err := New(Config{Role: RoleController, ChannelName: name, Channel: &testChannel{hub: hub}})
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Init(); err == nil {
		second.Destroy()
		t.Error("second controller on the same channel should be refused")
	}
}

func TestIntentBeforeInit(t *testing.T) {
	b, err := New(Config{Role: RoleController, ChannelName: "uninit"})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Play(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"controller", RoleController, false},
		{"display", RoleDisplay, false},
		{"", "", true},
		{"Controller", "", true},
		{"viewer", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRole) {
				t.Errorf("ParseRole(%q): expected ErrInvalidRole, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseRole(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
