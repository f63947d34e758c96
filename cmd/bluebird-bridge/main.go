package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/bluebird-bridge/internal/ble"
	"github.com/chaz8081/bluebird-bridge/internal/bridge"
	"github.com/chaz8081/bluebird-bridge/internal/command"
	"github.com/chaz8081/bluebird-bridge/internal/config"
	"github.com/chaz8081/bluebird-bridge/internal/events"
	"github.com/chaz8081/bluebird-bridge/internal/robot"
	"github.com/chaz8081/bluebird-bridge/internal/scanner"
)

// shutdownTimeout bounds teardown of open connections on exit.
const shutdownTimeout = 5 * time.Second

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/bluebird-bridge/config.yaml)")
	writeConfig := flag.Bool("write-config", false, "write the default config file if none exists, then exit")
	flag.Parse()

	// stdout carries the event stream; diagnostics go to stderr.
	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "write config: %v\n", err)
			os.Exit(1)
		}
		if path == "" {
			fmt.Fprintln(os.Stderr, "Config file already exists, leaving it untouched")
		} else {
			fmt.Fprintf(os.Stderr, "Default config written to %s\n", path)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	emitter := events.NewEmitter(os.Stdout)
	setupLogging(cfg, emitter)

	adapter := openAdapter(cfg, emitter)
	manager := bridge.NewManager(adapter, emitter, bridgeOptions(cfg))
	dispatcher := command.NewDispatcher(manager, emitter)

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("[MAIN] ready", "backend", cfg.Backend)
	reason, err := dispatcher.Run(ctx, os.Stdin)
	if err != nil {
		slog.Error("[MAIN] reading commands", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		slog.Warn("[MAIN] shutdown incomplete", "error", err)
	}

	emitter.Quit(quitReason(reason))
	if err := emitter.Err(); err != nil {
		slog.Warn("[MAIN] event stream broken", "error", err)
	}
	slog.Info("[MAIN] goodbye")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

func setupLogging(cfg *config.Config, emitter *events.Emitter) {
	level := config.ParseLogLevel(cfg.LogLevel)
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if cfg.DebugEvents {
		handler = events.NewLogHandler(handler, emitter, level)
	}
	slog.SetDefault(slog.New(handler))
}

// openAdapter enables the configured backend and reports the adapter state
// to the host. A backend that cannot be enabled is replaced by one whose
// every operation fails, so commands still get answered.
func openAdapter(cfg *config.Config, emitter *events.Emitter) ble.Adapter {
	var (
		adapter ble.Adapter
		err     error
	)
	switch cfg.Backend {
	case "hci":
		adapter, err = ble.NewHCIAdapter(cfg.HCI.DeviceID)
	default:
		adapter = ble.NewTinyGoAdapter()
	}
	if err == nil {
		err = adapter.Enable()
	}
	if err != nil {
		slog.Error("[MAIN] bluetooth adapter unavailable", "backend", cfg.Backend, "error", err)
		emitter.BluetoothState(events.AdapterUnavailable)
		return ble.Unavailable(err)
	}
	emitter.BluetoothState(events.AdapterOn)
	return adapter
}

func bridgeOptions(cfg *config.Config) bridge.Options {
	return bridge.Options{
		Robot: robot.Options{
			ServiceUUID:    cfg.GATT.ServiceUUID,
			TXUUID:         cfg.GATT.TXUUID,
			RXUUID:         cfg.GATT.RXUUID,
			ConnectTimeout: cfg.Connect.Timeout,
			QueueSize:      cfg.Connect.WriteQueueSize,
		},
		Signal: scanner.SignalConfig{
			InRangeRSSI:       cfg.Scan.InRangeRSSI,
			OutOfRangeRSSI:    cfg.Scan.OutOfRangeRSSI,
			OutOfRangeTimeout: cfg.Scan.OutOfRangeTimeout,
			SamplingInterval:  cfg.Scan.SamplingInterval,
		},
	}
}

func quitReason(r command.StopReason) string {
	switch r {
	case command.StopQuit:
		return events.QuitCommand
	case command.StopCancelled:
		return events.QuitSignal
	default:
		return events.QuitInputClosed
	}
}
