// Command anygrow-bridge connects an Anygrow grow cabinet's serial board to
// WebSocket consumers, stores its readings in SQLite and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/banshee-data/anygrow.bridge/internal/alarm"
	"github.com/banshee-data/anygrow.bridge/internal/api"
	"github.com/banshee-data/anygrow.bridge/internal/bridge"
	"github.com/banshee-data/anygrow.bridge/internal/config"
	"github.com/banshee-data/anygrow.bridge/internal/db"
	"github.com/banshee-data/anygrow.bridge/internal/hub"
	"github.com/banshee-data/anygrow.bridge/internal/ledtimer"
	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/serialmux"
	"github.com/banshee-data/anygrow.bridge/internal/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "anygrow-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "migrate":
			return runMigrate(args[1:], stdout, stderr)
		case "status":
			return runStatus(args[1:], stdout, stderr)
		case "led":
			return runLED(args[1:], stdout, stderr)
		}
	}

	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "anygrow-bridge %s\n", version.String())
		return nil
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	return serve(cfg, opts)
}

// openLink opens the board's serial link. It returns an inert link, and
// active=false, when serial is disabled or the port cannot be opened.
func openLink(cfg *config.Config, opts *options) (link serialmux.SerialMuxInterface, active bool) {
	muxOpts := []serialmux.Option{
		serialmux.WithReadTimeout(cfg.GetReadTimeout()),
		serialmux.WithIdleSleep(cfg.GetIdleSleep()),
	}
	switch {
	case opts.simulate:
		monitoring.Logf("using simulated board")
		return serialmux.NewSimulatedSerialMux(muxOpts...), true
	case opts.disableSerial:
		monitoring.Logf("serial disabled by --disable-serial")
		return serialmux.NewDisabledSerialMux("disabled by --disable-serial"), false
	}

	m, err := serialmux.NewRealSerialMux(cfg.Serial.Port, cfg.Serial.PortOptions, muxOpts...)
	if err != nil {
		monitoring.Logf("serial unavailable, continuing without it: %v", err)
		return serialmux.NewDisabledSerialMux(err.Error()), false
	}
	monitoring.Logf("opened %s at %s", cfg.Serial.Port, cfg.Serial.PortOptions)
	return m, true
}

func serve(cfg *config.Config, opts *options) error {
	logger, err := monitoring.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()
	monitoring.UseZap(logger)
	monitoring.Logf("anygrow-bridge %s starting", version.String())

	database, err := db.NewDB(cfg.DBPath, db.WithRetention(cfg.Retention()))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	link, active := openLink(cfg, opts)
	defer link.Close()

	broadcaster := hub.NewBroadcaster()
	b := bridge.New(bridge.Config{
		Link:           link,
		Store:          database,
		Publisher:      broadcaster,
		Alarms:         alarm.NewEvaluator(cfg.Alarms.Thresholds, cfg.Alarms.RearmOnRecovery),
		PollInterval:   cfg.GetPollInterval(),
		MaxMissedPolls: cfg.MaxMissedPolls,
	})

	if cfg.MQTTEnabled() {
		mc, err := hub.NewMQTTConsumer(cfg.MQTT, b.HandleConsumerMessage)
		if err != nil {
			monitoring.Logf("mqtt disabled: %v", err)
		} else {
			broadcaster.Attach(mc)
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the reader loop and poller only run against a live link
	if active {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Logf("serial link stopped: %v", err)
			}
			monitoring.Logf("bridge routine terminated")
		}()
	}

	var apiOpts []api.Option
	if profile := ledTimerProfile(cfg, database); active && profile != nil {
		runner := ledtimer.NewRunner(profile, b.Router(), nil, ledtimer.DefaultInterval)
		runner.SetLocation(cfg.Location())
		apiOpts = append(apiOpts, api.WithLEDTimer(runner))
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx)
			monitoring.Logf("led timer routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only over loopback or Tailscale)
		if err := database.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("failed to attach database admin routes: %v", err)
		}
		link.AttachAdminRoutes(mux)

		apiMux := api.NewServer(b, database, broadcaster, apiOpts...).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/ws", apiMux)

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			monitoring.Logf("listening on %s", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				monitoring.Logf("HTTP server failed: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}
		// WebSocket connections are hijacked and outlive Shutdown
		broadcaster.CloseAll()

		monitoring.Logf("HTTP server routine stopped")
	}()

	wg.Wait()
	monitoring.Logf("Graceful shutdown complete")
	return nil
}

// ledTimerProfile prefers a saved profile over the one in the config file.
func ledTimerProfile(cfg *config.Config, database *db.DB) *ledtimer.Profile {
	saved, err := database.LEDTimerProfile()
	if err != nil {
		monitoring.Logf("failed to load saved LED timer profile: %v", err)
		return cfg.LEDTimer
	}
	if saved == nil {
		return cfg.LEDTimer
	}
	if err := saved.Validate(); err != nil {
		monitoring.Logf("ignoring saved LED timer profile: %v", err)
		return cfg.LEDTimer
	}
	monitoring.Logf("using saved LED timer profile %q", saved.Name)
	return saved
}
