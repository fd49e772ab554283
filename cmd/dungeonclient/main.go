package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dungeonnet/internal/config"
	"dungeonnet/internal/lifecycle"
	"dungeonnet/internal/wire"
	"dungeonnet/netcore"
)

const defaultConfigPath = "config/dungeonclient.yaml"

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
	if p := os.Getenv("DUNGEONNET_CLIENT_CONFIG"); p != "" {
		path = p
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		return fmt.Errorf("loading client config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("dungeonnet client starting", "server", cfg.ServerHost, "port", cfg.ServerPort, "player", cfg.PlayerName)

	client, err := netcore.NewClient(netcore.ClientConfig{
		ServerHost:          cfg.ServerHost,
		ServerPort:          cfg.ServerPort,
		PlayerName:          cfg.PlayerName,
		RegisterInterval:    cfg.RegisterRetryInterval,
		RegisterMaxAttempts: cfg.RegisterMaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	client.Dispatcher().Register(wire.TagLevelChange, func(msg wire.Message) {
		lc := msg.(wire.LevelChange)
		slog.Info("level changed", "level", lc.LevelName)
	})
	client.Dispatcher().Register(wire.TagSnapshot, func(msg wire.Message) {
		snap := msg.(wire.Snapshot)
		slog.Debug("snapshot received", "tick", snap.ServerTick, "entities", len(snap.Entities))
	})
	client.Dispatcher().Register(wire.TagEntitySpawnEvt, func(msg wire.Message) {
		ev := msg.(wire.EntitySpawnEvent)
		slog.Info("entity spawn event", "entity", ev.EntityName)
	})
	client.Dispatcher().Register(wire.TagGameOver, func(msg wire.Message) {
		slog.Info("game over")
	})
	client.AddConnectionListener(func(ev lifecycle.Event) {
		slog.Info("connection lifecycle", "event", ev)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(ctx) }()

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			client.Shutdown()
			<-errCh
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("client: %w", err)
			}
			return nil
		case <-ticker.C:
			client.Poll()
		}
	}
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
