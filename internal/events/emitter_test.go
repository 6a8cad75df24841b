package events

import (
	"sync"
	"testing"
)

func TestSubscribeAndEmit(t *testing.T) {
	e := NewEmitter()

	var got []any
	e.Subscribe("connect", func(payload any) {
		got = append(got, payload)
	})

	e.Emit("connect", "port-a")
	e.Emit("connect", "port-b")

	if len(got) != 2 {
		t.Fatalf("listener called %d times, want 2", len(got))
	}
	if got[0] != "port-a" || got[1] != "port-b" {
		t.Errorf("payloads = %v, want [port-a port-b]", got)
	}
}

func TestEmit_UnknownEvent(t *testing.T) {
	e := NewEmitter()
	// Must not panic with no listeners registered.
	e.Emit("nothing", nil)
}

func TestUnsubscribe(t *testing.T) {
	e := NewEmitter()

	calls := 0
	unsubscribe := e.Subscribe("data", func(any) { calls++ })

	e.Emit("data", nil)
	unsubscribe()
	e.Emit("data", nil)

	if calls != 1 {
		t.Errorf("listener called %d times after unsubscribe, want 1", calls)
	}

	// A second call to the handle is a no-op.
	unsubscribe()
	if e.ListenerCount("data") != 0 {
		t.Errorf("ListenerCount = %d, want 0", e.ListenerCount("data"))
	}
}

func TestEmit_PanicIsolation(t *testing.T) {
	e := NewEmitter()

	e.Subscribe("status", func(any) { panic("faulty listener") })

	called := false
	e.Subscribe("status", func(any) { called = true })

	e.Emit("status", nil)

	if !called {
		t.Error("second listener not called after first panicked")
	}
}

func TestEmit_ConcurrentSafety(t *testing.T) {
	e := NewEmitter()

	var mu sync.Mutex
	count := 0
	e.Subscribe("tick", func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Emit("tick", nil)
		}()
	}
	wg.Wait()

	if count != 10 {
		t.Errorf("count = %d, want 10", count)
	}
}

func TestListenerCount(t *testing.T) {
	e := NewEmitter()

	if e.ListenerCount("x") != 0 {
		t.Fatal("expected zero listeners initially")
	}

	u1 := e.Subscribe("x", func(any) {})
	e.Subscribe("x", func(any) {})

	if e.ListenerCount("x") != 2 {
		t.Errorf("ListenerCount = %d, want 2", e.ListenerCount("x"))
	}

	u1()
	if e.ListenerCount("x") != 1 {
		t.Errorf("ListenerCount = %d, want 1", e.ListenerCount("x"))
	}
}
