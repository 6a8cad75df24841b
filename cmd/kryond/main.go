// Kryon Core - device connectivity and session synchronization daemon.
//
// kryond owns the serial link to the lighting controller and one
// participant slot on the cross-context session bus. Therapy, playlist,
// and user management live in the external HTTP backend; this process
// only speaks the device wire protocol and the bus envelope protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kryonlabs/kryon-core/internal/devicelink"
	"github.com/kryonlabs/kryon-core/internal/identity"
	"github.com/kryonlabs/kryon-core/internal/infrastructure/config"
	"github.com/kryonlabs/kryon-core/internal/infrastructure/logging"
	"github.com/kryonlabs/kryon-core/internal/infrastructure/mqtt"
	"github.com/kryonlabs/kryon-core/internal/infrastructure/telemetry"
	"github.com/kryonlabs/kryon-core/internal/session"
	"github.com/kryonlabs/kryon-core/internal/sessionbus"
	"github.com/kryonlabs/kryon-core/internal/wire"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Kryon Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Identity store (persists the last connected device for auto-connect)
	store, err := identity.Open(ctx, identity.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening identity store: %w", err)
	}
	defer func() {
		log.Info("closing identity store")
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing identity store", "error", closeErr)
		}
	}()
	log.Info("identity store opened", "path", cfg.Database.Path)

	// Telemetry (optional; nil recorder no-ops)
	recorder, err := telemetry.Connect(cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	if recorder != nil {
		defer func() {
			log.Info("closing telemetry")
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		recorder.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		log.Info("telemetry connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("telemetry disabled")
	}

	// Session channel transport. A missing broker degrades to
	// single-context operation rather than failing startup.
	var channel sessionbus.Channel
	mqttClient, err := mqtt.Connect(cfg.Bus)
	if err != nil {
		log.Warn("session channel unavailable, continuing single-context", "error", err)
	} else {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Bus.Broker.Host, cfg.Bus.Broker.Port),
			"channel", cfg.Bus.Channel,
		)

		channel, err = sessionbus.NewMQTTChannel(mqttClient, cfg.Bus.Channel)
		if err != nil {
			return fmt.Errorf("creating session channel: %w", err)
		}
	}

	// Session bus participant
	role, err := sessionbus.ParseRole(cfg.Bus.Role)
	if err != nil {
		return fmt.Errorf("bus role: %w", err)
	}
	bus, err := sessionbus.New(sessionbus.Config{
		Role:         role,
		ChannelName:  cfg.Bus.Channel,
		Channel:      channel,
		PingInterval: cfg.GetPingInterval(),
		PongTimeout:  cfg.GetPongTimeout(),
		Logger:       log.With("component", "sessionbus"),
	})
	if err != nil {
		return fmt.Errorf("creating session bus: %w", err)
	}
	if err := bus.Init(); err != nil {
		return fmt.Errorf("initialising session bus: %w", err)
	}
	defer func() {
		log.Info("destroying session bus")
		bus.Destroy()
	}()

	bus.On(sessionbus.EventPeerConnect, func(any) {
		log.Info("bus peer connected")
		recorder.RecordSessionEvent(sessionbus.EventPeerConnect, string(role))
	})
	bus.On(sessionbus.EventPeerDisconnect, func(payload any) {
		if ev, ok := payload.(sessionbus.PeerDisconnectEvent); ok {
			log.Warn("bus peer disconnected", "reason", ev.Reason)
		}
		recorder.RecordSessionEvent(sessionbus.EventPeerDisconnect, string(role))
	})

	// Device link
	allowlist, err := parseAllowlist(cfg.Device.VendorAllowlist)
	if err != nil {
		return fmt.Errorf("vendor allowlist: %w", err)
	}
	link := devicelink.New(devicelink.Config{
		PortName:       cfg.Device.Port,
		Allowlist:      allowlist,
		DebounceWindow: cfg.GetDebounceWindow(),
		ReadTimeout:    cfg.GetReadTimeout(),
		WatchInterval:  cfg.GetWatchInterval(),
		Identity:       store,
		Logger:         log.With("component", "devicelink"),
	})
	defer func() {
		log.Info("disconnecting device link")
		link.Disconnect()
	}()

	link.On(devicelink.EventConnect, func(payload any) {
		recorder.RecordLinkEvent("connect", false)
		if info, ok := payload.(devicelink.PortInfo); ok {
			log.Info("device link up", "port", info.Name, "identity", info.Identity.String())
		}
	})
	link.On(devicelink.EventDisconnect, func(payload any) {
		ev, _ := payload.(devicelink.DisconnectEvent)
		recorder.RecordLinkEvent("disconnect", ev.Unexpected)
	})
	link.On(devicelink.EventStatus, func(payload any) {
		if line, ok := payload.(wire.Line); ok {
			log.Info("device status", "message", line.Message)
		}
	})

	if cfg.Device.AutoConnect {
		if link.AutoConnect(ctx) {
			log.Info("device auto-connected")
		} else {
			log.Info("no previously authorised device available")
		}
	}

	// The controller-role daemon owns the session intents; if its peer
	// vanishes mid-session it stops the lighting rather than leaving the
	// hardware running unattended.
	if role == sessionbus.RoleController {
		controller := session.NewController(link, bus, recorder, log.With("component", "session"))
		bus.On(sessionbus.EventPeerDisconnect, func(any) {
			if err := controller.PeerLost(); err != nil {
				log.Warn("safety stop after peer loss failed", "error", err)
			}
		})
	}

	if recorder.Enabled() {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					stats := link.Stats()
					recorder.RecordLinkStats(stats.LinesTx, stats.LinesRx, stats.ErrorsTotal)
				}
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred teardown runs in reverse order:
	// 1. Device link
	// 2. Session bus (GOODBYE before the MQTT client drops)
	// 3. MQTT
	// 4. Telemetry
	// 5. Identity store

	log.Info("Kryon Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses KRYON_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KRYON_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// parseAllowlist converts configured hex vendor ids. An empty list keeps
// the built-in defaults.
func parseAllowlist(entries []string) ([]uint16, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make([]uint16, 0, len(entries))
	for _, e := range entries {
		vid, err := identity.ParseUSBID(e)
		if err != nil {
			return nil, fmt.Errorf("vendor id %q: %w", e, err)
		}
		out = append(out, vid)
	}
	return out, nil
}
