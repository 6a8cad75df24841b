// Package events provides a small observer registry keyed by event name.
//
// DeviceLink and SessionBus both surface their state transitions through an
// Emitter. Each subscription returns a deregistration handle, and listener
// panics are recovered so one faulty observer cannot break dispatch to the
// others.
package events

import (
	"fmt"
	"sync"
)

// Handler is the callback signature for emitted events.
type Handler func(payload any)

// Logger is the optional logging interface used for recovered panics.
type Logger interface {
	Error(msg string, args ...any)
}

// Emitter dispatches named events to registered listeners.
//
// Thread Safety: all methods are safe for concurrent use. Handlers are
// invoked synchronously, outside the registry lock, in registration order.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[string][]registration

	logger   Logger
	loggerMu sync.RWMutex
}

type registration struct {
	id      int
	handler Handler
}

// NewEmitter creates an empty event registry.
func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[string][]registration),
	}
}

// SetLogger sets the logger used to report recovered listener panics.
func (e *Emitter) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

// Subscribe registers a handler for the named event and returns a
// deregistration handle. Calling the handle more than once is harmless.
func (e *Emitter) Subscribe(event string, handler Handler) func() {
	if handler == nil {
		return func() {}
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], registration{id: id, handler: handler})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		regs := e.listeners[event]
		for i, reg := range regs {
			if reg.id == id {
				e.listeners[event] = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
		if len(e.listeners[event]) == 0 {
			delete(e.listeners, event)
		}
	}
}

// Emit invokes every listener registered for the named event.
// Listener panics are recovered and logged; dispatch continues.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.RLock()
	regs := make([]registration, len(e.listeners[event]))
	copy(regs, e.listeners[event])
	e.mu.RUnlock()

	for _, reg := range regs {
		e.dispatch(event, reg.handler, payload)
	}
}

// dispatch calls one handler with panic isolation.
func (e *Emitter) dispatch(event string, handler Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.loggerMu.RLock()
			logger := e.logger
			e.loggerMu.RUnlock()
			if logger != nil {
				logger.Error("event listener panic recovered",
					"event", event,
					"panic", fmt.Sprintf("%v", r),
				)
			}
		}
	}()
	handler(payload)
}

// ListenerCount returns the number of listeners registered for an event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[event])
}
