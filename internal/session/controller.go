package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kryonlabs/kryon-core/internal/devicelink"
	"github.com/kryonlabs/kryon-core/internal/infrastructure/telemetry"
	"github.com/kryonlabs/kryon-core/internal/sessionbus"
	"github.com/kryonlabs/kryon-core/internal/wire"
)

// ErrNoActiveSession indicates a session-scoped intent was called with no
// session running.
var ErrNoActiveSession = errors.New("session: no active session")

// Therapy describes one runnable therapy: its lighting configuration and
// media playlist.
type Therapy struct {
	Name          string
	DurationSec   int
	ColorMode     wire.Mode
	Intensity     int
	Playlist      []string
	PlaylistIndex int
	PlayVideo     bool
	VideoOnly     bool
}

// Device is the lighting controller surface the Controller drives.
// *devicelink.Link satisfies this.
type Device interface {
	Send(cmd wire.Command) error
	SetIntensity(value int, immediate bool) error
	StartMode(mode wire.Mode, intensity int) error
	IsConnected() bool
}

// Bus is the cross-context synchronization surface the Controller drives.
// *sessionbus.Bus satisfies this.
type Bus interface {
	StartSession(therapy, session string, totalSec int, playVideo, videoOnly bool) error
	EndSession() error
	ChangeTherapy(p sessionbus.TherapyChangePayload) error
	Play() error
	Pause() error
	Stop() error
	SyncTimer(elapsedSec, totalSec int) error
	SetVolume(volume int) error
	SetColor(colorMode string) error
	UpdatePlaylist(playlist []string, index int) error
	Snapshot() sessionbus.SessionSnapshot
}

// Logger is the logging interface the controller reports through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Controller composes the device link and the session bus behind a single
// intent API. The device is best-effort: a disconnected link never blocks
// a session intent, only the lighting side is skipped.
type Controller struct {
	device   Device
	bus      Bus
	recorder *telemetry.Recorder
	logger   Logger

	mu        sync.Mutex
	sessionID string
}

// NewController wires the composition point. recorder may be nil.
func NewController(device Device, bus Bus, recorder *telemetry.Recorder, logger Logger) *Controller {
	return &Controller{
		device:   device,
		bus:      bus,
		recorder: recorder,
		logger:   logger,
	}
}

// StartSession begins a therapy session: starts the lighting mode on the
// device and broadcasts SESSION_START. Returns the generated session id.
func (c *Controller) StartSession(t Therapy) (string, error) {
	id := uuid.NewString()

	c.driveStartMode(t.ColorMode, t.Intensity)

	if err := c.bus.StartSession(t.Name, id, t.DurationSec, t.PlayVideo, t.VideoOnly); err != nil {
		return "", fmt.Errorf("session: start: %w", err)
	}
	if len(t.Playlist) > 0 {
		if err := c.bus.UpdatePlaylist(t.Playlist, t.PlaylistIndex); err != nil {
			return "", fmt.Errorf("session: playlist: %w", err)
		}
	}

	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()

	c.recorder.RecordSessionEvent(sessionbus.TypeSessionStart, string(sessionbus.RoleController))
	c.logInfo("session started", "session", id, "therapy", t.Name)
	return id, nil
}

// EndSession terminates the current session: stops the device mode and
// broadcasts SESSION_END.
func (c *Controller) EndSession() error {
	c.mu.Lock()
	id := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()
	if id == "" {
		return ErrNoActiveSession
	}

	c.driveDevice("stop", wire.Stop{})

	if err := c.bus.EndSession(); err != nil {
		return fmt.Errorf("session: end: %w", err)
	}
	c.recorder.RecordSessionEvent(sessionbus.TypeSessionEnd, string(sessionbus.RoleController))
	c.logInfo("session ended", "session", id)
	return nil
}

// Complete marks the session finished normally. The device receives the
// distinct completion command instead of a plain stop.
func (c *Controller) Complete() error {
	c.mu.Lock()
	id := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()
	if id == "" {
		return ErrNoActiveSession
	}

	c.driveDevice("complete", wire.Complete{})

	if err := c.bus.EndSession(); err != nil {
		return fmt.Errorf("session: complete: %w", err)
	}
	c.recorder.RecordSessionEvent(sessionbus.TypeSessionEnd, string(sessionbus.RoleController))
	c.logInfo("session completed", "session", id)
	return nil
}

// ChangeTherapy switches the running session to a different therapy:
// restarts the lighting mode and broadcasts THERAPY_CHANGE.
func (c *Controller) ChangeTherapy(t Therapy) error {
	c.driveStartMode(t.ColorMode, t.Intensity)

	err := c.bus.ChangeTherapy(sessionbus.TherapyChangePayload{
		Therapy:   t.Name,
		Duration:  t.DurationSec,
		Index:     t.PlaylistIndex,
		ColorMode: string(t.ColorMode),
		Playlist:  t.Playlist,
		PlayVideo: t.PlayVideo,
		VideoOnly: t.VideoOnly,
	})
	if err != nil {
		return fmt.Errorf("session: change therapy: %w", err)
	}
	c.recorder.RecordSessionEvent(sessionbus.TypeTherapyChange, string(sessionbus.RoleController))
	return nil
}

// Play resumes playback on all contexts. Media rendering is external; the
// lighting mode keeps running, so only the bus is involved.
func (c *Controller) Play() error {
	return c.bus.Play()
}

// Pause suspends playback on all contexts.
func (c *Controller) Pause() error {
	return c.bus.Pause()
}

// Stop halts playback and the lighting mode.
func (c *Controller) Stop() error {
	c.driveDevice("stop", wire.Stop{})
	return c.bus.Stop()
}

// SetIntensity adjusts the lighting brightness through the debounced
// device path. Boundary values and immediate requests bypass the window.
func (c *Controller) SetIntensity(value int, immediate bool) error {
	if c.device == nil {
		return nil
	}
	err := c.device.SetIntensity(value, immediate)
	if errors.Is(err, devicelink.ErrNotConnected) {
		return nil
	}
	if err == nil {
		c.recorder.RecordIntensity(c.bus.Snapshot().ColorMode, value)
	}
	return err
}

// SetColor switches the lighting mode and broadcasts COLOR_CHANGE.
func (c *Controller) SetColor(mode wire.Mode) error {
	c.driveStartMode(mode, wire.NoIntensity)
	return c.bus.SetColor(string(mode))
}

// SetVolume broadcasts a volume change. Audio output is rendered by the
// display contexts, not the device.
func (c *Controller) SetVolume(volume int) error {
	return c.bus.SetVolume(volume)
}

// SyncTimer realigns playback time on all contexts.
func (c *Controller) SyncTimer(elapsedSec, totalSec int) error {
	return c.bus.SyncTimer(elapsedSec, totalSec)
}

// UpdatePlaylist replaces the shared playlist.
func (c *Controller) UpdatePlaylist(playlist []string, index int) error {
	return c.bus.UpdatePlaylist(playlist, index)
}

// PeerLost performs a safety stop when the remote context disappears in
// the middle of playback, so the lighting hardware never runs unattended.
// Outside playback it is a no-op.
func (c *Controller) PeerLost() error {
	if !c.bus.Snapshot().IsPlaying {
		return nil
	}
	c.logWarn("peer lost during playback, stopping")
	return c.Stop()
}

// SelfTest runs or cancels the device's self-test sequence.
func (c *Controller) SelfTest(start bool) error {
	if c.device == nil {
		return devicelink.ErrNotConnected
	}
	if start {
		return c.device.Send(wire.SelfTestStart{})
	}
	return c.device.Send(wire.SelfTestCancel{})
}

// Snapshot returns the authoritative session state.
func (c *Controller) Snapshot() sessionbus.SessionSnapshot {
	return c.bus.Snapshot()
}

// SessionID returns the active session id, empty when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// driveDevice sends a command when hardware is attached. A missing device
// is a normal condition for bus-only deployments; other faults are logged
// and swallowed so lighting problems never abort a session intent.
func (c *Controller) driveDevice(what string, cmd wire.Command) {
	if c.device == nil || !c.device.IsConnected() {
		return
	}
	if err := c.device.Send(cmd); err != nil && !errors.Is(err, devicelink.ErrNotConnected) {
		c.logWarn("device "+what+" failed", "error", err)
	}
}

// driveStartMode starts a lighting mode through the link's StartMode path
// so the debouncer's last-sent value stays accurate.
func (c *Controller) driveStartMode(mode wire.Mode, intensity int) {
	if c.device == nil || !c.device.IsConnected() {
		return
	}
	if err := c.device.StartMode(mode, intensity); err != nil && !errors.Is(err, devicelink.ErrNotConnected) {
		c.logWarn("device start mode failed", "mode", string(mode), "error", err)
	}
}

func (c *Controller) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
