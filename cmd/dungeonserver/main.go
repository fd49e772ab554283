package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dungeonnet/internal/audit"
	"dungeonnet/internal/collab"
	"dungeonnet/internal/config"
	"dungeonnet/internal/demo"
	"dungeonnet/netcore"
)

const defaultConfigPath = "config/dungeonserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	path := defaultConfigPath
	if p := os.Getenv("DUNGEONNET_SERVER_CONFIG"); p != "" {
		path = p
	}
	cfg, err := config.LoadServer(path)
	if err != nil {
		return fmt.Errorf("loading server config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("dungeonnet server starting", "bind", cfg.BindAddress, "port", cfg.Port, "tick_hz", cfg.TickHz)

	var sink audit.Sink
	if cfg.Audit.Enabled {
		if err := audit.RunMigrations(ctx, cfg.Audit.DSN.DSN()); err != nil {
			return fmt.Errorf("running audit migrations: %w", err)
		}
		pgSink, err := audit.NewPostgresSink(ctx, cfg.Audit.DSN.DSN())
		if err != nil {
			return fmt.Errorf("connecting audit sink: %w", err)
		}
		defer pgSink.Close()
		sink = pgSink
		slog.Info("audit sink enabled")
	}

	world := demo.NewWorld()
	catalog := demo.NewCatalog(cfg.LevelName, collab.Point{X: 0, Y: 0})

	server, err := netcore.NewServer(netcore.ServerConfig{
		BindAddress:   cfg.BindAddress,
		Port:          cfg.Port,
		TickHz:        cfg.TickHz,
		SnapshotHz:    cfg.SnapshotHz,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		SendQueueSize: cfg.SendQueueSize,
		World:         world,
		Catalog:       catalog,
		Audit:         sink,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
