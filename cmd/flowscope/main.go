package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flowscope/flowscope/internal/eventlog"
	"github.com/flowscope/flowscope/internal/expressions"
	"github.com/flowscope/flowscope/internal/layout"
	"github.com/flowscope/flowscope/internal/logging"
	"github.com/flowscope/flowscope/internal/panel"
	"github.com/flowscope/flowscope/internal/scheduler"
	"github.com/flowscope/flowscope/internal/simulate"
	"github.com/flowscope/flowscope/internal/streaming"
	"github.com/flowscope/flowscope/pkg/mcp"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		printVersion()
		return
	}

	mode := "serve"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, mode, cfg, logger); err != nil {
		logger.Error("flowscope exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, mode string, cfg Config, logger *slog.Logger) error {
	registry, err := expressions.NewRegistry()
	if err != nil {
		return fmt.Errorf("create expression registry: %w", err)
	}

	var engine layout.Engine
	switch cfg.LayoutEngine {
	case "layered":
		engine = layout.NewLayeredEngine()
	default:
		engine = layout.NewGraphvizEngine()
	}

	var history *eventlog.History
	if cfg.History {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		history, err = eventlog.OpenHistory("file:" + cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer history.Close()
		if err := history.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate history: %w", err)
		}
	}

	hub := streaming.NewMemoryHub()
	simulator := simulate.NewSimulator(registry, logger)

	switch mode {
	case "serve":
		return serve(ctx, cfg, logger, registry, engine, history, hub, simulator)
	case "mcp":
		return serveMCP(ctx, logger, registry, engine, history, simulator)
	default:
		return fmt.Errorf("unknown mode %q (expected serve, mcp, or version)", mode)
	}
}

// serve runs the panel HTTP server plus the retention sweeper.
func serve(ctx context.Context, cfg Config, logger *slog.Logger, registry *expressions.Registry, engine layout.Engine, history *eventlog.History, hub *streaming.MemoryHub, simulator *simulate.Simulator) error {
	var store panel.RunStore
	if history != nil {
		store = history
	}

	sessions := panel.NewSessions(eventlog.NewRunLog(), store, hub, engine, logger)
	if cfg.OutputSelector != "" {
		sel, err := expressions.NewGoJQEngine().Selector(cfg.OutputSelector)
		if err != nil {
			return fmt.Errorf("compile output selector %q: %w", cfg.OutputSelector, err)
		}
		sessions.SetOutputSelector(sel)
		logger.Info("output selector enabled", slog.String("program", cfg.OutputSelector))
	}
	srv := panel.NewServer(panel.Deps{
		Sessions:  sessions,
		Store:     store,
		Hub:       hub,
		Registry:  registry,
		Simulator: simulator,
		Logger:    logger,
	})

	if history != nil {
		retention := time.Duration(cfg.RetentionHours) * time.Hour
		sweeper, err := scheduler.NewSweeper(history, cfg.SweepSchedule, retention, logger)
		if err != nil {
			return fmt.Errorf("create retention sweeper: %w", err)
		}
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start retention sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("panel listening", slog.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// serveMCP runs the stdio MCP transport.
func serveMCP(ctx context.Context, logger *slog.Logger, registry *expressions.Registry, engine layout.Engine, history *eventlog.History, simulator *simulate.Simulator) error {
	var runHistory mcp.RunHistory
	if history != nil {
		runHistory = history
	}

	srv := mcp.NewFlowscopeServer(mcp.FlowscopeServerDeps{
		History:   runHistory,
		Registry:  registry,
		Simulator: simulator,
		Engine:    engine,
		Logger:    logger,
	})
	logger.Info("mcp server listening on stdio")
	return srv.Serve(ctx)
}

// newLogger builds the process logger with correlation ID injection.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
