package telemetry

import (
	"testing"

	"github.com/kryonlabs/kryon-core/internal/infrastructure/config"
)

func TestDisabledReturnsNilRecorder(t *testing.T) {
	r, err := Connect(config.InfluxDBConfig{Enabled: false})
	if err != nil {
		t.Fatalf("disabled telemetry should not error, got %v", err)
	}
	if r != nil {
		t.Fatal("disabled telemetry should return a nil recorder")
	}
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder

	if r.Enabled() {
		t.Error("nil recorder should report disabled")
	}

	// None of these may panic.
	r.RecordIntensity("rojo", 40)
	r.RecordLinkEvent("connect", false)
	r.RecordSessionEvent("PLAY", "controller")
	r.RecordLinkStats(1, 2, 0)
	r.SetOnError(func(error) {})
	r.Flush()
	if err := r.Close(); err != nil {
		t.Errorf("nil recorder close should be nil, got %v", err)
	}
}
