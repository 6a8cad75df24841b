package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kryonlabs/kryon-core/internal/infrastructure/config"
)

// Sentinel errors for telemetry operations.
var (
	// ErrDisabled indicates telemetry is disabled in configuration.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("telemetry: connection failed")
)

const (
	defaultConnectTimeout = 10 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	millisecondsPerSecond = 1000
)

// Recorder writes measurements to InfluxDB. A nil *Recorder is a valid
// no-op, which is how a disabled configuration is represented.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Writes are non-blocking and batched.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	connected bool
	mu        sync.RWMutex

	onError func(err error)
}

// Connect establishes a connection to the InfluxDB server. Returns
// (nil, nil) when telemetry is disabled; the nil Recorder no-ops.
func Connect(cfg config.InfluxDBConfig) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	r := &Recorder{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}

	go r.handleWriteErrors(r.writeAPI.Errors())

	return r, nil
}

// handleWriteErrors forwards async write errors to the callback.
func (r *Recorder) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		r.mu.RLock()
		callback := r.onError
		r.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError sets a callback for asynchronous write failures.
func (r *Recorder) SetOnError(callback func(err error)) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.onError = callback
	r.mu.Unlock()
}

// Enabled reports whether the recorder is live.
func (r *Recorder) Enabled() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// RecordIntensity logs an intensity value accepted for transmission to
// the device, tagged by lighting mode.
func (r *Recorder) RecordIntensity(mode string, value int) {
	if !r.Enabled() {
		return
	}

	point := write.NewPoint(
		"device_intensity",
		map[string]string{"mode": mode},
		map[string]interface{}{"value": value},
		time.Now(),
	)
	r.writeAPI.WritePoint(point)
}

// RecordLinkEvent logs a connection lifecycle transition
// (connect, disconnect, device_removed).
func (r *Recorder) RecordLinkEvent(event string, unexpected bool) {
	if !r.Enabled() {
		return
	}

	point := write.NewPoint(
		"link_events",
		map[string]string{"event": event},
		map[string]interface{}{"unexpected": unexpected},
		time.Now(),
	)
	r.writeAPI.WritePoint(point)
}

// RecordSessionEvent logs a session bus domain event by type, tagged with
// the originating role.
func (r *Recorder) RecordSessionEvent(eventType, role string) {
	if !r.Enabled() {
		return
	}

	point := write.NewPoint(
		"session_events",
		map[string]string{"type": eventType, "role": role},
		map[string]interface{}{"count": 1},
		time.Now(),
	)
	r.writeAPI.WritePoint(point)
}

// RecordLinkStats logs periodic link counters.
func (r *Recorder) RecordLinkStats(linesTx, linesRx, errorsTotal uint64) {
	if !r.Enabled() {
		return
	}

	point := write.NewPoint(
		"link_stats",
		nil,
		map[string]interface{}{
			"lines_tx":     linesTx,
			"lines_rx":     linesRx,
			"errors_total": errorsTotal,
		},
		time.Now(),
	)
	r.writeAPI.WritePoint(point)
}

// Flush forces pending writes out. Safe on a nil or closed recorder.
func (r *Recorder) Flush() {
	if !r.Enabled() {
		return
	}
	r.writeAPI.Flush()
}

// Close flushes pending writes and shuts the client down. Safe on a nil
// recorder and safe to call more than once.
func (r *Recorder) Close() error {
	if r == nil || r.client == nil {
		return nil
	}

	r.mu.Lock()
	wasConnected := r.connected
	r.connected = false
	r.mu.Unlock()

	if wasConnected {
		r.writeAPI.Flush()
		r.client.Close()
	}
	return nil
}
