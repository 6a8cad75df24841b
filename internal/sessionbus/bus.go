package sessionbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kryonlabs/kryon-core/internal/events"
)

// Local event names dispatched to subscribers registered via On. Domain
// envelope types (PLAY, THERAPY_CHANGE, ...) are also dispatched under
// their own names when received from the peer.
const (
	// EventPeerConnect fires when the peer transitions to connected.
	EventPeerConnect = "peerConnect"

	// EventPeerDisconnect fires when the peer transitions to disconnected.
	// Payload is PeerDisconnectEvent.
	EventPeerDisconnect = "peerDisconnect"

	// EventStateChange fires after any snapshot mutation, local or remote.
	// Payload is the post-mutation SessionSnapshot.
	EventStateChange = "stateChange"
)

// PeerDisconnectEvent is the payload for EventPeerDisconnect.
type PeerDisconnectEvent struct {
	// Reason is "timeout" for a liveness failure or "goodbye" for an
	// announced departure.
	Reason string `json:"reason"`
}

// Logger is the logging interface the bus reports through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const (
	defaultPingInterval = 5 * time.Second
	defaultPongTimeout  = 2 * time.Second
)

// participant guard: at most one live participant per (channel, role) in
// this process.
var (
	guardMu      sync.Mutex
	participants = make(map[string]bool)
)

// Config carries the dependencies and tuning for one bus participant.
type Config struct {
	// Role is fixed for the participant's lifetime.
	Role Role

	// ChannelName is the logical broadcast channel name, used for the
	// duplicate-participant guard.
	ChannelName string

	// Channel is the transport. A nil channel degrades the bus to
	// single-context operation: Init logs and succeeds, publishes are
	// silently dropped.
	Channel Channel

	// PingInterval and PongTimeout tune the controller liveness probe.
	// Zero values select the defaults (5s / 2s).
	PingInterval time.Duration
	PongTimeout  time.Duration

	Logger Logger
}

// Bus is one participant on the session channel.
//
// Thread Safety: all methods are safe for concurrent use. Local event
// handlers run synchronously on the goroutine that triggered them.
type Bus struct {
	role        Role
	channelName string
	channel     Channel
	logger      Logger
	emitter     *events.Emitter

	pingInterval time.Duration
	pongTimeout  time.Duration

	mu            sync.Mutex
	initialized   bool
	snapshot      SessionSnapshot
	peerConnected bool
	lastPongAt    time.Time
	pongTimer     *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates an uninitialized bus participant. Call Init to join the
// channel and Destroy to leave it.
func New(cfg Config) (*Bus, error) {
	role, err := ParseRole(string(cfg.Role))
	if err != nil {
		return nil, err
	}
	if cfg.ChannelName == "" {
		return nil, fmt.Errorf("%w: empty channel name", ErrChannelUnavailable)
	}

	b := &Bus{
		role:         role,
		channelName:  cfg.ChannelName,
		channel:      cfg.Channel,
		logger:       cfg.Logger,
		emitter:      events.NewEmitter(),
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
	}
	if b.pingInterval <= 0 {
		b.pingInterval = defaultPingInterval
	}
	if b.pongTimeout <= 0 {
		b.pongTimeout = defaultPongTimeout
	}
	if cfg.Logger != nil {
		b.emitter.SetLogger(cfg.Logger)
	}
	return b, nil
}

// Init joins the channel, announces presence, and (controller only) starts
// the liveness probe. Idempotent. A missing channel capability is not an
// error: the bus logs and degrades to single-context operation.
func (b *Bus) Init() error {
	b.mu.Lock()
	if b.initialized {
		b.mu.Unlock()
		return nil
	}

	if b.channel == nil {
		b.initialized = true
		b.mu.Unlock()
		b.logWarn("session channel unavailable, running single-context",
			"channel", b.channelName)
		return nil
	}

	if !acquireParticipant(b.guardKey()) {
		b.mu.Unlock()
		return fmt.Errorf("sessionbus: %s already active on channel %q",
			b.role, b.channelName)
	}

	b.initialized = true
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	if err := b.channel.Subscribe(b.handleMessage); err != nil {
		b.mu.Lock()
		b.initialized = false
		b.done = nil
		b.mu.Unlock()
		releaseParticipant(b.guardKey())
		return fmt.Errorf("sessionbus: subscribe: %w", err)
	}

	if err := b.publish(TypeHello, nil); err != nil {
		b.logWarn("hello announce failed", "error", err)
	}

	if b.role == RoleController {
		b.wg.Add(1)
		go b.pingLoop(done)
	}

	b.logInfo("session bus initialized",
		"role", string(b.role),
		"channel", b.channelName)
	return nil
}

// Destroy announces GOODBYE, stops the liveness timers, closes the channel,
// and resets the participant to uninitialized. Idempotent.
func (b *Bus) Destroy() {
	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return
	}
	b.initialized = false
	done := b.done
	b.done = nil
	if b.pongTimer != nil {
		b.pongTimer.Stop()
		b.pongTimer = nil
	}
	ch := b.channel
	b.peerConnected = false
	b.lastPongAt = time.Time{}
	b.mu.Unlock()

	if done != nil {
		close(done)
	}
	b.wg.Wait()

	if ch != nil {
		env, err := NewEnvelope(TypeGoodbye, nil, b.role)
		if err == nil {
			if data, merr := json.Marshal(env); merr == nil {
				if perr := ch.Publish(data); perr != nil {
					b.logDebug("goodbye publish failed", "error", perr)
				}
			}
		}
		if err := ch.Close(); err != nil {
			b.logDebug("channel close failed", "error", err)
		}
		releaseParticipant(b.guardKey())
	}

	b.logInfo("session bus destroyed", "role", string(b.role))
}

// On registers a handler for a local event name (EventPeerConnect,
// EventStateChange, an envelope type, ...) and returns a deregistration
// handle. Handler panics are isolated per listener.
func (b *Bus) On(event string, handler events.Handler) func() {
	return b.emitter.Subscribe(event, handler)
}

// Snapshot returns a copy of the current session state.
func (b *Bus) Snapshot() SessionSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot.clone()
}

// PeerConnected reports whether a peer is currently considered live.
func (b *Bus) PeerConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peerConnected
}

// Role returns the participant's fixed role.
func (b *Bus) Role() Role {
	return b.role
}

// --- controller intent API ---
//
// Each intent mutates the authoritative snapshot and broadcasts an event
// whose payload lets a display reproduce the identical mutation.

// StartSession begins a playback session.
func (b *Bus) StartSession(therapy, session string, totalSec int, playVideo, videoOnly bool) error {
	p := SessionStartPayload{
		Therapy:   therapy,
		Session:   session,
		TotalSec:  totalSec,
		PlayVideo: playVideo,
		VideoOnly: videoOnly,
	}
	return b.controllerIntent(TypeSessionStart, p, func(s *SessionSnapshot) {
		s.applySessionStart(p)
	})
}

// EndSession terminates the current session.
func (b *Bus) EndSession() error {
	return b.controllerIntent(TypeSessionEnd, nil, func(s *SessionSnapshot) {
		s.applySessionEnd()
	})
}

// ChangeTherapy switches the active therapy and resets playback position.
func (b *Bus) ChangeTherapy(p TherapyChangePayload) error {
	return b.controllerIntent(TypeTherapyChange, p, func(s *SessionSnapshot) {
		s.applyTherapyChange(p)
	})
}

// Play resumes playback.
func (b *Bus) Play() error {
	return b.controllerIntent(TypePlay, nil, func(s *SessionSnapshot) {
		s.applyPlay()
	})
}

// Pause suspends playback.
func (b *Bus) Pause() error {
	return b.controllerIntent(TypePause, nil, func(s *SessionSnapshot) {
		s.applyPause()
	})
}

// Stop halts playback and rewinds the timer.
func (b *Bus) Stop() error {
	return b.controllerIntent(TypeStop, nil, func(s *SessionSnapshot) {
		s.applyStop()
	})
}

// SyncTimer realigns elapsed/total playback time on all displays.
func (b *Bus) SyncTimer(elapsedSec, totalSec int) error {
	p := TimerSyncPayload{ElapsedSec: elapsedSec, TotalSec: totalSec}
	return b.controllerIntent(TypeTimerSync, p, func(s *SessionSnapshot) {
		s.applyTimerSync(p)
	})
}

// SetVolume changes the playback volume.
func (b *Bus) SetVolume(volume int) error {
	p := VolumeChangePayload{Volume: volume}
	return b.controllerIntent(TypeVolumeChange, p, func(s *SessionSnapshot) {
		s.applyVolumeChange(p)
	})
}

// SetColor changes the lighting color mode.
func (b *Bus) SetColor(colorMode string) error {
	p := ColorChangePayload{ColorMode: colorMode}
	return b.controllerIntent(TypeColorChange, p, func(s *SessionSnapshot) {
		s.applyColorChange(p)
	})
}

// UpdatePlaylist replaces the playlist and current position.
func (b *Bus) UpdatePlaylist(playlist []string, index int) error {
	p := PlaylistUpdatePayload{Playlist: playlist, PlaylistIndex: index}
	return b.controllerIntent(TypePlaylistUpdate, p, func(s *SessionSnapshot) {
		s.applyPlaylistUpdate(p)
	})
}

// controllerIntent applies a snapshot mutation and broadcasts the matching
// event. The mutation always lands locally; a transport failure only drops
// the broadcast (logged), matching the no-delivery-guarantee semantics of
// the channel.
func (b *Bus) controllerIntent(msgType string, payload any, mutate func(*SessionSnapshot)) error {
	if b.role != RoleController {
		return fmt.Errorf("%w: %s", ErrNotController, msgType)
	}

	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInitialized, msgType)
	}
	mutate(&b.snapshot)
	after := b.snapshot.clone()
	b.mu.Unlock()

	if err := b.publish(msgType, payload); err != nil {
		b.logWarn("event publish failed", "type", msgType, "error", err)
	}

	b.emitter.Emit(EventStateChange, after)
	return nil
}

// --- inbound handling ---

func (b *Bus) handleMessage(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logWarn("malformed envelope discarded", "error", err)
		return
	}

	// Same-role suppression also filters this participant's own
	// broadcasts echoed back by the transport.
	if env.From == b.role {
		return
	}

	switch env.Type {
	case TypeHello:
		b.markPeerConnected()
		if b.role == RoleController {
			b.pushFullState()
		}

	case TypeGoodbye:
		b.markPeerDisconnected("goodbye")

	case TypePing:
		var p PingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			b.logWarn("malformed ping discarded", "error", err)
			return
		}
		if err := b.publish(TypePong, PingPayload{Timestamp: p.Timestamp}); err != nil {
			b.logDebug("pong reply failed", "error", err)
		}

	case TypePong:
		b.handlePong()

	case TypeFullState:
		b.handleFullState(env.Payload)

	case TypeSessionStart:
		var p SessionStartPayload
		b.applyDomainEvent(env, &p, func(s *SessionSnapshot) { s.applySessionStart(p) })
	case TypeSessionEnd:
		b.applyDomainEvent(env, nil, func(s *SessionSnapshot) { s.applySessionEnd() })
	case TypeTherapyChange:
		var p TherapyChangePayload
		b.applyDomainEvent(env, &p, func(s *SessionSnapshot) { s.applyTherapyChange(p) })
	case TypePlay:
		b.applyDomainEvent(env, nil, func(s *SessionSnapshot) { s.applyPlay() })
	case TypePause:
		b.applyDomainEvent(env, nil, func(s *SessionSnapshot) { s.applyPause() })
	case TypeStop:
		b.applyDomainEvent(env, nil, func(s *SessionSnapshot) { s.applyStop() })
	case TypeTimerSync:
		var p TimerSyncPayload
		b.applyDomainEvent(env, &p, func(s *SessionSnapshot) { s.applyTimerSync(p) })
	case TypeVolumeChange:
		var p VolumeChangePayload
		b.applyDomainEvent(env, &p, func(s *SessionSnapshot) { s.applyVolumeChange(p) })
	case TypeColorChange:
		var p ColorChangePayload
		b.applyDomainEvent(env, &p, func(s *SessionSnapshot) { s.applyColorChange(p) })
	case TypePlaylistUpdate:
		var p PlaylistUpdatePayload
		b.applyDomainEvent(env, &p, func(s *SessionSnapshot) { s.applyPlaylistUpdate(p) })

	default:
		b.logDebug("unrecognized message type", "type", env.Type)
	}
}

// applyDomainEvent decodes the payload into dst (when non-nil), applies the
// mutation, and notifies local subscribers under both the envelope type and
// EventStateChange.
func (b *Bus) applyDomainEvent(env Envelope, dst any, mutate func(*SessionSnapshot)) {
	if dst != nil {
		if err := json.Unmarshal(env.Payload, dst); err != nil {
			b.logWarn("malformed payload discarded", "type", env.Type, "error", err)
			return
		}
	}

	b.mu.Lock()
	mutate(&b.snapshot)
	after := b.snapshot.clone()
	b.mu.Unlock()

	b.emitter.Emit(env.Type, after)
	b.emitter.Emit(EventStateChange, after)
}

// handleFullState replaces the display mirror wholesale. Controllers own
// the authoritative copy and never accept a replacement.
func (b *Bus) handleFullState(payload json.RawMessage) {
	if b.role != RoleDisplay {
		return
	}

	var snap SessionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		b.logWarn("malformed full state discarded", "error", err)
		return
	}

	b.mu.Lock()
	b.snapshot = snap
	after := b.snapshot.clone()
	b.mu.Unlock()

	b.emitter.Emit(TypeFullState, after)
	b.emitter.Emit(EventStateChange, after)
}

// pushFullState broadcasts the authoritative snapshot so a late joiner
// synchronizes without waiting for the next incremental event.
func (b *Bus) pushFullState() {
	b.mu.Lock()
	snap := b.snapshot.clone()
	b.mu.Unlock()

	if err := b.publish(TypeFullState, snap); err != nil {
		b.logWarn("full state push failed", "error", err)
	}
}

func (b *Bus) markPeerConnected() {
	b.mu.Lock()
	changed := !b.peerConnected
	b.peerConnected = true
	if b.lastPongAt.IsZero() {
		b.lastPongAt = time.Now()
	}
	b.mu.Unlock()

	if changed {
		b.emitter.Emit(EventPeerConnect, nil)
	}
}

func (b *Bus) markPeerDisconnected(reason string) {
	b.mu.Lock()
	changed := b.peerConnected
	b.peerConnected = false
	b.mu.Unlock()

	if changed {
		b.emitter.Emit(EventPeerDisconnect, PeerDisconnectEvent{Reason: reason})
	}
}

// --- liveness probe (controller only) ---

func (b *Bus) pingLoop(done chan struct{}) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.sendPing()
		}
	}
}

func (b *Bus) sendPing() {
	if err := b.publish(TypePing, PingPayload{Timestamp: time.Now().UnixMilli()}); err != nil {
		b.logDebug("ping publish failed", "error", err)
	}

	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return
	}
	if b.pongTimer != nil {
		b.pongTimer.Stop()
	}
	b.pongTimer = time.AfterFunc(b.pongTimeout, b.checkPongDeadline)
	b.mu.Unlock()
}

// checkPongDeadline declares the peer lost when no PONG has been observed
// for two full ping intervals. Fires exactly once per lost window: the
// peerConnected flag resets only on a fresh PONG or HELLO.
func (b *Bus) checkPongDeadline() {
	b.mu.Lock()
	lost := b.initialized && b.peerConnected &&
		time.Since(b.lastPongAt) >= 2*b.pingInterval
	if lost {
		b.peerConnected = false
	}
	b.mu.Unlock()

	if lost {
		b.emitter.Emit(EventPeerDisconnect, PeerDisconnectEvent{Reason: "timeout"})
	}
}

func (b *Bus) handlePong() {
	b.mu.Lock()
	if b.pongTimer != nil {
		b.pongTimer.Stop()
		b.pongTimer = nil
	}
	b.lastPongAt = time.Now()
	changed := !b.peerConnected
	b.peerConnected = true
	b.mu.Unlock()

	if changed {
		b.emitter.Emit(EventPeerConnect, nil)
	}
}

// --- plumbing ---

func (b *Bus) publish(msgType string, payload any) error {
	if b.channel == nil {
		return nil
	}

	env, err := NewEnvelope(msgType, payload, b.role)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("sessionbus: marshal envelope: %w", err)
	}
	return b.channel.Publish(data)
}

func (b *Bus) guardKey() string {
	return b.channelName + "/" + string(b.role)
}

func acquireParticipant(key string) bool {
	guardMu.Lock()
	defer guardMu.Unlock()
	if participants[key] {
		return false
	}
	participants[key] = true
	return true
}

func releaseParticipant(key string) {
	guardMu.Lock()
	delete(participants, key)
	guardMu.Unlock()
}

func (b *Bus) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bus) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bus) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
