package main

// Package main is the entry point for the drone MCP gateway.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables, and CLI flags
//   - Wire the protocol server: NLP engine, command router, executor, backend
//     client, security core and monitoring core
//   - Serve JSON-RPC 2.0 over stdio; stdout carries nothing but protocol frames
//   - Apply reloadable configuration (NLP threshold, alert rules) on SIGHUP
//   - Implement graceful shutdown with context cancellation
//
// Architecture Flow:
//   1. stdin frame → protocol server → tool dispatch
//   2. Natural language text → NLP engine → parsed intents
//   3. Parsed intents → command router → batch plan with dependencies
//   4. Batch plan → executor → drone fleet HTTP API
//   5. Every layer → audit trail + metrics
//
// Graceful Shutdown:
//   - Stops accepting new tool calls
//   - Lets in-flight commands finish
//   - Finalizes audit logs

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aerolink/drone-mcp/internal/config"
	"github.com/aerolink/drone-mcp/internal/mcp"
)

func main() {
	configPath := flag.String("config", "/etc/dronemcp/config.yaml", "path to the configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration from file and environment
	manager, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create configuration manager: %v\n", err)
		os.Exit(1)
	}
	if err := manager.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := manager.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get(ctx)

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Create server with all components wired together
	srv, err := mcp.NewServer(cfg, os.Stdin, os.Stdout, logger)
	if err != nil {
		logger.Fatal("creating server", zap.Error(err))
	}

	// File watch delivers reloadable settings (NLP threshold, alert rules)
	go func() {
		for snapshot := range manager.Watch(ctx) {
			updated := snapshot
			srv.ApplyConfig(&updated)
			logger.Info("configuration file change applied")
		}
	}()

	// SIGINT/SIGTERM stop the server; SIGHUP reloads the tunable subset
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				if err := manager.Reload(ctx); err != nil {
					logger.Error("reloading configuration", zap.Error(err))
					continue
				}
				srv.ApplyConfig(manager.Get(ctx))
				logger.Info("configuration reloaded")
				continue
			}
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			cancel()
			return
		}
	}()

	logger.Info("drone MCP gateway serving on stdio")
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("serving", zap.Error(err))
		srv.Close()
		os.Exit(1)
	}

	if err := srv.Close(); err != nil {
		logger.Error("closing server", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newLogger builds the application logger. stdout belongs to the protocol, so
// logs go to the configured file or stderr.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var ws zapcore.WriteSyncer
	if cfg.Logging.AppLogPath != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Logging.AppLogPath,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
	} else {
		ws = zapcore.AddSync(os.Stderr)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), ws, level)
	return zap.New(core), nil
}
