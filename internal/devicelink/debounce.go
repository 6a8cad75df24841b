package devicelink

import (
	"time"

	"github.com/kryonlabs/kryon-core/internal/wire"
)

// SetIntensity transmits a brightness change with debouncing.
//
// The value is clamped to [0,100]. Boundary values (0, 100) and immediate
// requests are written synchronously. Any other value starts or resets a
// single pending timer; only the most recent value submitted within the
// window is transmitted when it fires. A non-boundary value equal to the
// last transmitted one is suppressed outright and cancels any pending
// write, since it is now the latest value in the window.
func (l *Link) SetIntensity(value int, immediate bool) error {
	clamped := wire.ClampIntensity(value)

	if immediate || wire.IsBoundaryIntensity(clamped) {
		l.debounceMu.Lock()
		if l.debounceTimer != nil {
			l.debounceTimer.Stop()
			l.debounceTimer = nil
			l.intensityCoalesced.Add(1)
		}
		l.lastSentValue = clamped
		l.debounceMu.Unlock()
		return l.Send(wire.SetIntensity{Value: clamped})
	}

	l.debounceMu.Lock()
	defer l.debounceMu.Unlock()

	if clamped == l.lastSentValue {
		if l.debounceTimer != nil {
			// The duplicate supersedes the pending value too.
			l.debounceTimer.Stop()
			l.debounceTimer = nil
			l.intensityCoalesced.Add(1)
		}
		l.intensitySuppressed.Add(1)
		return nil
	}

	l.pendingValue = clamped
	if l.debounceTimer != nil {
		// Scheduling always supersedes the prior pending value.
		l.debounceTimer.Stop()
		l.intensityCoalesced.Add(1)
	}
	l.debounceTimer = time.AfterFunc(l.cfg.DebounceWindow, l.flushIntensity)
	return nil
}

// flushIntensity transmits the pending debounced value when the window
// elapses.
func (l *Link) flushIntensity() {
	l.debounceMu.Lock()
	l.debounceTimer = nil
	value := l.pendingValue
	if value == l.lastSentValue {
		l.debounceMu.Unlock()
		return
	}
	l.lastSentValue = value
	l.debounceMu.Unlock()

	if err := l.Send(wire.SetIntensity{Value: value}); err != nil {
		l.logWarn("debounced intensity write failed", "value", value, "error", err)
	}
}
