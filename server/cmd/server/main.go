package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/instrumentkit/instrumentkit/server/internal/alerts"
	"github.com/instrumentkit/instrumentkit/server/internal/api"
	"github.com/instrumentkit/instrumentkit/server/internal/auth"
	"github.com/instrumentkit/instrumentkit/server/internal/config"
	"github.com/instrumentkit/instrumentkit/server/internal/receiver"
	"github.com/instrumentkit/instrumentkit/server/internal/store"
	"github.com/instrumentkit/instrumentkit/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath, level); err != nil {
		slog.Error("instrumentkit-server stopped", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, level *slog.LevelVar) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	s := cfg.Server
	setLevel(level, s.LogLevel)

	slog.Info("instrumentkit-server starting",
		"config", configPath,
		"http_port", s.HTTPPort,
		"auth_mode", s.Auth.Mode,
		"storage", s.Storage.Path,
		"retention", s.Storage.Retention,
	)

	st, err := store.Open(s.Storage.Path, s.Storage.Retention)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	alertEngine := alerts.New(s.Alerts)
	apiHandler := api.New(st, alertEngine)
	hub := ws.New(apiHandler, s.WS.Interval)
	requireKey := auth.APIKey(s.Auth.Mode, s.Auth.EffectiveHeader(), s.Auth.Key())

	mux := http.NewServeMux()
	mux.Handle(receiver.Path, requireKey(receiver.New(st, s.MaxBodyBytes, alertEngine, hub)))
	mux.Handle("/api/", requireKey(apiHandler))
	mux.Handle("/metrics", requireKey(apiHandler))
	mux.Handle("/ws/stream", requireKey(hub))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		st.Run(ctx, s.Storage.EvictInterval)
		return nil
	})
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	if configPath != "" {
		g.Go(func() error {
			// Ports, storage and auth need a restart; rules and log level apply live.
			err := config.Watch(ctx, configPath, func(updated *config.Config) {
				alertEngine.SetConfig(updated.Server.Alerts)
				setLevel(level, updated.Server.LogLevel)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", s.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("instrumentkit-server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setLevel(v *slog.LevelVar, s string) {
	switch s {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
