// Command ragmetrics runs the metrics relay: it aggregates platform metrics,
// streams snapshots to WebSocket dashboards on /metrics/stream and serves
// the HTTP fallback, archive and Prometheus endpoints.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragmetrics/core"
	"ragmetrics/logging"
	"ragmetrics/shutdown"
)

func main() {
	if HandleServiceCommand(os.Args) {
		return
	}

	isService, err := RunAsService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "service error: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	if isService {
		return
	}

	os.Exit(run(context.Background()))
}

// run starts the relay and blocks until it stops. The returned exit code
// reflects the signal that stopped it, if any.
func run(parent context.Context) int {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return core.ExitCodeError
	}

	logger, err := logging.NewLogger(logging.Config{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}

	logger.Info("configuration loaded",
		zap.String("addr", cfg.Addr()),
		zap.Duration("broadcast_interval", cfg.BroadcastInterval),
		zap.Duration("system_interval", cfg.SystemInterval),
		zap.String("identity_header", cfg.IdentityHeader),
		zap.Int("allowed_identities", len(cfg.AllowedIdentities)),
		zap.Bool("token_required", cfg.AccessTokenHash != ""),
		zap.Bool("archive", cfg.ArchiveEnabled()),
		zap.Bool("dev_mode", cfg.DevMode),
		zap.String("version", cfg.Version),
	)

	sm := shutdown.NewManager(logger.Zap().Named("shutdown"))
	sm.Start()

	r, err := newRelay(cfg, logger, nil, sm)
	if err != nil {
		logger.Error("failed to start metrics relay", zap.Error(err))
		logger.Sync()
		return core.ExitCodeError
	}
	r.register(sm)
	logger.Debug("shutdown handlers registered", zap.Strings("order", sm.RegisteredHandlers()))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-sm.Context().Done():
			cancel()
		case <-ctx.Done():
			// Service stop: /health reports shutting_down from here on
			if parent.Err() != nil {
				sm.Trigger("stop requested")
			}
		}
	}()

	exitCode := core.ExitCodeSuccess
	if err := r.run(ctx); err != nil {
		logger.Error("metrics relay failed", zap.Error(err))
		sm.Trigger("relay failed")
		exitCode = core.ExitCodeError
	}

	if err := sm.Shutdown(); err != nil {
		exitCode = core.ExitCodeError
	}
	if code := sm.ExitCode(); code != core.ExitCodeSuccess {
		exitCode = code
	}

	logger.Info("metrics relay exiting",
		zap.Int("exit_code", exitCode),
		zap.String("reason", core.ExitCodeName(exitCode)),
		zap.Bool("signal", core.IsSignalExit(exitCode)),
	)
	logger.Sync()
	return exitCode
}
