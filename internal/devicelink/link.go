package devicelink

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kryonlabs/kryon-core/internal/events"
	"github.com/kryonlabs/kryon-core/internal/identity"
	"github.com/kryonlabs/kryon-core/internal/wire"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timing for the device link.
const (
	// defaultDebounceWindow coalesces rapid intensity changes.
	defaultDebounceWindow = 50 * time.Millisecond

	// defaultReadTimeout is the serial read poll interval. Short enough
	// that disconnect cancellation is prompt.
	defaultReadTimeout = 5 * time.Second

	// defaultWatchInterval is how often the removal watcher confirms the
	// device is still present.
	defaultWatchInterval = 1 * time.Second

	// readBufferSize is the serial read chunk size.
	readBufferSize = 256
)

// Event names dispatched to subscribers registered via On.
const (
	// EventConnect fires after a successful connect. Payload is PortInfo.
	EventConnect = "connect"

	// EventDisconnect fires after any teardown. Payload is
	// DisconnectEvent.
	EventDisconnect = "disconnect"

	// EventStatus fires for each inbound status line. Payload is
	// wire.Line.
	EventStatus = "status"

	// EventData fires for each inbound non-status line. Payload is
	// wire.Line.
	EventData = "data"
)

// DisconnectEvent is the payload for EventDisconnect.
type DisconnectEvent struct {
	// Unexpected is true for a physically removed device or an I/O
	// fault, false for a caller-initiated Disconnect.
	Unexpected bool
}

// LinkStats holds operational counters.
type LinkStats struct {
	LinesTx              uint64
	LinesRx              uint64
	IntensitySuppressed  uint64 // duplicate values never scheduled
	IntensityCoalesced   uint64 // pending values superseded in-window
	ErrorsTotal          uint64
	UnexpectedDisconnects uint64
	LastActivity         time.Time
	State                ConnectionState
}

// IdentityStore persists the connected device's USB identity so
// AutoConnect can prefer it later. *identity.Store satisfies this.
type IdentityStore interface {
	Save(ctx context.Context, id identity.DeviceIdentity) error
	Load(ctx context.Context) (identity.DeviceIdentity, bool, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// port guard: at most one live Link per device node in this process.
var (
	portGuardMu sync.Mutex
	ownedPorts  = make(map[string]bool)
)

// Config carries the dependencies and tuning for a Link.
type Config struct {
	// PortName pins the link to an explicit device node, bypassing the
	// chooser. Optional.
	PortName string

	// Allowlist restricts candidate USB devices by vendor id. Nil selects
	// DefaultVendorAllowlist; an empty non-nil slice admits everything.
	Allowlist []uint16

	// DebounceWindow, ReadTimeout, and WatchInterval tune the link
	// timing. Zero values select the defaults.
	DebounceWindow time.Duration
	ReadTimeout    time.Duration
	WatchInterval  time.Duration

	// Opener and Enumerator default to the go.bug.st/serial backend.
	Opener     Opener
	Enumerator Enumerator

	// Identity persists and recalls the last device. Optional.
	Identity IdentityStore

	Logger Logger
}

// Link owns at most one open serial connection to the lighting controller.
//
// Thread Safety: all methods are safe for concurrent use. Event handlers
// run synchronously on the goroutine that triggered them.
type Link struct {
	cfg     Config
	emitter *events.Emitter

	mu       sync.Mutex
	state    ConnectionState
	port     Port
	portName string
	done     *closeOnce
	wg       *sync.WaitGroup

	writeMu sync.Mutex

	// Intensity debounce state.
	debounceMu    sync.Mutex
	debounceTimer *time.Timer
	pendingValue  int
	lastSentValue int

	// Statistics.
	linesTx               atomic.Uint64
	linesRx               atomic.Uint64
	intensitySuppressed   atomic.Uint64
	intensityCoalesced    atomic.Uint64
	errorsTotal           atomic.Uint64
	unexpectedDisconnects atomic.Uint64
	lastActivity          atomic.Int64
}

// New creates a disconnected Link.
func New(cfg Config) *Link {
	if cfg.Allowlist == nil {
		cfg.Allowlist = DefaultVendorAllowlist
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = defaultDebounceWindow
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = defaultWatchInterval
	}
	if cfg.Opener == nil {
		cfg.Opener = serialSystem{}
	}
	if cfg.Enumerator == nil {
		cfg.Enumerator = serialSystem{}
	}

	l := &Link{
		cfg:           cfg,
		emitter:       events.NewEmitter(),
		state:         StateDisconnected,
		lastSentValue: -1,
	}
	if cfg.Logger != nil {
		l.emitter.SetLogger(cfg.Logger)
	}
	return l
}

// On registers a handler for a link event and returns a deregistration
// handle. Handler panics are isolated per listener.
func (l *Link) On(event string, handler events.Handler) func() {
	return l.emitter.Subscribe(event, handler)
}

// State returns the current connection state.
func (l *Link) State() ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsConnected reports whether the port is open and the read loop running.
func (l *Link) IsConnected() bool {
	return l.State() == StateConnected
}

// Connect enumerates candidate devices, asks the chooser to pick one, and
// opens it. Returns (false, nil) when the chooser declines, which is a
// normal outcome. Returns ErrNotSupported when the host lacks serial
// capability.
//
// On success the device identity is persisted for AutoConnect and the
// state is StateConnected.
func (l *Link) Connect(ctx context.Context, chooser PortChooser) (bool, error) {
	if err := l.beginConnecting(); err != nil {
		return false, err
	}

	info, ok, err := l.selectPort(chooser)
	if err != nil {
		l.setState(StateError)
		return false, err
	}
	if !ok {
		l.setState(StateDisconnected)
		return false, nil
	}

	if err := l.openAndStart(ctx, info); err != nil {
		l.setState(StateError)
		return false, err
	}
	return true, nil
}

// AutoConnect attempts a silent reconnection using enumerable devices
// only. It prefers the device matching the persisted identity and falls
// back to the first allowlisted candidate. Returns false, never an error,
// when nothing is available or opening fails.
func (l *Link) AutoConnect(ctx context.Context) bool {
	if err := l.beginConnecting(); err != nil {
		return false
	}

	candidates, err := l.enumerate()
	if err != nil || len(candidates) == 0 {
		l.setState(StateDisconnected)
		return false
	}

	pick := candidates[0]
	if l.cfg.Identity != nil {
		if saved, found, lerr := l.cfg.Identity.Load(ctx); lerr == nil && found {
			for _, c := range candidates {
				if c.Identity == saved {
					pick = c
					break
				}
			}
		}
	}

	if err := l.openAndStart(ctx, pick); err != nil {
		l.logWarn("auto-connect open failed", "port", pick.Name, "error", err)
		l.setState(StateDisconnected)
		return false
	}
	return true
}

// Disconnect tears the link down: cancels the read loop and watcher,
// closes the port, and forces the state to disconnected. Idempotent and
// best-effort; teardown failures are swallowed. The read loop is fully
// stopped before Disconnect returns.
func (l *Link) Disconnect() {
	l.teardown(false, true)
}

// Send encodes one command and writes its line to the port. Fails fast
// with ErrNotConnected when no writer is attached. A write fault forces a
// disconnect before the error is returned so the link is never left
// half-open.
func (l *Link) Send(cmd wire.Command) error {
	line, err := cmd.Encode()
	if err != nil {
		return err
	}
	return l.writeLine(line)
}

// StartMode begins the named lighting mode. Pass wire.NoIntensity to omit
// the initial intensity.
func (l *Link) StartMode(mode wire.Mode, intensity int) error {
	if err := l.Send(wire.StartMode{Mode: mode, Intensity: intensity}); err != nil {
		return err
	}
	if intensity != wire.NoIntensity {
		l.debounceMu.Lock()
		l.lastSentValue = wire.ClampIntensity(intensity)
		l.debounceMu.Unlock()
	}
	return nil
}

// Stats returns current operational counters.
func (l *Link) Stats() LinkStats {
	return LinkStats{
		LinesTx:               l.linesTx.Load(),
		LinesRx:               l.linesRx.Load(),
		IntensitySuppressed:   l.intensitySuppressed.Load(),
		IntensityCoalesced:    l.intensityCoalesced.Load(),
		ErrorsTotal:           l.errorsTotal.Load(),
		UnexpectedDisconnects: l.unexpectedDisconnects.Load(),
		LastActivity:          time.Unix(l.lastActivity.Load(), 0),
		State:                 l.State(),
	}
}

// --- connection plumbing ---

func (l *Link) beginConnecting() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateConnecting || l.state == StateConnected {
		return ErrAlreadyConnected
	}
	l.state = StateConnecting
	return nil
}

func (l *Link) setState(s ConnectionState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// selectPort enumerates, filters, and runs the chooser. An explicit
// PortName in the config bypasses the chooser entirely.
func (l *Link) selectPort(chooser PortChooser) (PortInfo, bool, error) {
	if l.cfg.PortName != "" {
		return PortInfo{Name: l.cfg.PortName}, true, nil
	}

	candidates, err := l.enumerate()
	if err != nil {
		return PortInfo{}, false, err
	}
	if chooser == nil {
		return PortInfo{}, false, nil
	}

	info, ok := chooser(candidates)
	return info, ok, nil
}

// enumerate lists host ports filtered by the vendor allowlist. Non-USB
// ports are excluded unless the allowlist is explicitly empty.
func (l *Link) enumerate() ([]PortInfo, error) {
	ports, err := l.cfg.Enumerator.List()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSupported, err)
	}

	if len(l.cfg.Allowlist) == 0 {
		return ports, nil
	}

	allowed := make(map[uint16]struct{}, len(l.cfg.Allowlist))
	for _, vid := range l.cfg.Allowlist {
		allowed[vid] = struct{}{}
	}

	var out []PortInfo
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if _, ok := allowed[p.Identity.VendorID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// openAndStart opens the chosen port, persists its identity, and starts
// the read loop and removal watcher.
func (l *Link) openAndStart(ctx context.Context, info PortInfo) error {
	if !acquirePort(info.Name) {
		return fmt.Errorf("%w: %s", ErrPortBusy, info.Name)
	}

	port, err := l.cfg.Opener.Open(info.Name)
	if err != nil {
		releasePort(info.Name)
		l.errorsTotal.Add(1)
		return err
	}

	if err := port.SetReadTimeout(l.cfg.ReadTimeout); err != nil {
		port.Close()
		releasePort(info.Name)
		l.errorsTotal.Add(1)
		return fmt.Errorf("%w: set read timeout: %w", ErrOpenFailed, err)
	}

	if l.cfg.Identity != nil && !info.Identity.IsZero() {
		if err := l.cfg.Identity.Save(ctx, info.Identity); err != nil {
			l.logWarn("identity persist failed", "error", err)
		}
	}

	done := newCloseOnce()
	wg := &sync.WaitGroup{}

	l.mu.Lock()
	l.port = port
	l.portName = info.Name
	l.done = done
	l.wg = wg
	l.state = StateConnected
	l.mu.Unlock()

	l.debounceMu.Lock()
	l.lastSentValue = -1
	l.debounceMu.Unlock()

	l.lastActivity.Store(time.Now().Unix())

	wg.Add(2)
	go l.readLoop(port, done, wg)
	go l.removalWatcher(info.Name, done, wg)

	l.logInfo("device connected",
		"port", info.Name,
		"identity", info.Identity.String())
	l.emitter.Emit(EventConnect, info)
	return nil
}

// teardown releases the port and stops the loops. wait must be false on
// any path reachable from the read loop or watcher (fault handling,
// handler-initiated sends), since those are members of the WaitGroup
// being waited on.
func (l *Link) teardown(unexpected, wait bool) {
	l.mu.Lock()
	if l.port == nil && l.state != StateConnected {
		// Nothing to tear down; still force the state for idempotence.
		l.state = StateDisconnected
		l.mu.Unlock()
		return
	}
	port := l.port
	name := l.portName
	done := l.done
	wg := l.wg
	l.port = nil
	l.portName = ""
	l.done = nil
	l.wg = nil
	l.state = StateDisconnected
	l.mu.Unlock()

	l.debounceMu.Lock()
	if l.debounceTimer != nil {
		l.debounceTimer.Stop()
		l.debounceTimer = nil
	}
	l.debounceMu.Unlock()

	if done != nil {
		done.Close()
	}
	if port != nil {
		// Best-effort: a failing close must not block teardown.
		_ = port.Close()
	}
	if wait && wg != nil {
		wg.Wait()
	}
	if name != "" {
		releasePort(name)
	}

	if unexpected {
		l.unexpectedDisconnects.Add(1)
	}
	l.logInfo("device disconnected", "unexpected", unexpected)
	l.emitter.Emit(EventDisconnect, DisconnectEvent{Unexpected: unexpected})
}

// writeLine writes one encoded line to the port. Writes are serialized so
// concurrent senders cannot interleave partial lines.
func (l *Link) writeLine(line string) error {
	l.mu.Lock()
	port := l.port
	connected := l.state == StateConnected
	l.mu.Unlock()

	if !connected || port == nil {
		return ErrNotConnected
	}

	l.writeMu.Lock()
	_, err := port.Write([]byte(line))
	l.writeMu.Unlock()

	if err != nil {
		l.errorsTotal.Add(1)
		// Never leave the link half-open after an I/O fault. Tear down
		// without waiting: Send may be called from an event handler
		// running on the read loop, and waiting there would self-deadlock.
		l.teardown(true, false)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	l.linesTx.Add(1)
	l.lastActivity.Store(time.Now().Unix())
	return nil
}

// --- inbound ---

// readLoop reads the port until cancelled, buffering partial lines until
// a delimiter arrives and surfacing each complete line as a status or
// data event.
func (l *Link) readLoop(port Port, done *closeOnce, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, readBufferSize)
	var pending []byte

	for {
		select {
		case <-done.Done():
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			if l.isClosed(done) {
				return
			}
			l.errorsTotal.Add(1)
			l.logWarn("read failed", "error", err)
			l.teardown(true, false)
			return
		}
		if n == 0 {
			// Poll timeout, re-check cancellation.
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			raw := string(pending[:idx])
			pending = pending[idx+1:]
			l.dispatchLine(raw)
		}
	}
}

// dispatchLine classifies one complete inbound line and notifies
// subscribers.
func (l *Link) dispatchLine(raw string) {
	line := wire.DecodeLine(raw)
	if line.Text == "" {
		return
	}

	l.linesRx.Add(1)
	l.lastActivity.Store(time.Now().Unix())

	if line.Kind == wire.LineStatus {
		l.logDebug("device status", "message", line.Message)
		l.emitter.Emit(EventStatus, line)
		return
	}
	l.emitter.Emit(EventData, line)
}

// removalWatcher polls the enumerator for the device node. A vanished
// node forces an unexpected disconnect even when the read loop has not
// yet observed end-of-stream, distinguishing a physical unplug from a
// caller-initiated Disconnect.
func (l *Link) removalWatcher(name string, done *closeOnce, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(l.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done.Done():
			return
		case <-ticker.C:
			ports, err := l.cfg.Enumerator.List()
			if err != nil {
				continue
			}
			present := false
			for _, p := range ports {
				if p.Name == name {
					present = true
					break
				}
			}
			if !present {
				l.logWarn("device removed", "port", name)
				l.teardown(true, false)
				return
			}
		}
	}
}

func (l *Link) isClosed(done *closeOnce) bool {
	select {
	case <-done.Done():
		return true
	default:
		return false
	}
}

func acquirePort(name string) bool {
	portGuardMu.Lock()
	defer portGuardMu.Unlock()
	if ownedPorts[name] {
		return false
	}
	ownedPorts[name] = true
	return true
}

func releasePort(name string) {
	portGuardMu.Lock()
	delete(ownedPorts, name)
	portGuardMu.Unlock()
}

func (l *Link) logDebug(msg string, args ...any) {
	if l.cfg.Logger != nil {
		l.cfg.Logger.Debug(msg, args...)
	}
}

func (l *Link) logInfo(msg string, args ...any) {
	if l.cfg.Logger != nil {
		l.cfg.Logger.Info(msg, args...)
	}
}

func (l *Link) logWarn(msg string, args ...any) {
	if l.cfg.Logger != nil {
		l.cfg.Logger.Warn(msg, args...)
	}
}
