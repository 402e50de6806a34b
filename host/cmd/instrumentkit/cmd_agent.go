package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/instrumentkit/instrumentkit/host/internal/adb"
	"github.com/instrumentkit/instrumentkit/host/internal/compute"
	"github.com/instrumentkit/instrumentkit/host/internal/config"
	"github.com/instrumentkit/instrumentkit/host/internal/hostside"
	"github.com/instrumentkit/instrumentkit/host/internal/shipper"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Periodically verify every attached device and ship the reports",
	Long: "Runs the collector verification suite on every attached device each\n" +
		"host.agent_interval, scores the runs and ships them to host.server_endpoint.\n" +
		"The config file is watched; log settings and the interval reload live.",
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := cfg.Host
	slog.Info("instrumentkit agent starting",
		"server_endpoint", h.ServerEndpoint,
		"interval", h.AgentInterval,
		"apk_dir", h.APKDir,
	)

	var ship *shipper.Shipper
	if h.ServerEndpoint != "" {
		ship = shipper.New(h)
	} else {
		slog.Warn("no server_endpoint configured, reports are only logged")
	}

	engine := compute.NewEngine()
	reload := make(chan *config.Config, 1)

	g, ctx := errgroup.WithContext(ctx)
	if ship != nil {
		g.Go(func() error {
			ship.Run(ctx)
			return nil
		})
	}
	if rootFlags.configPath != "" {
		g.Go(func() error {
			err := config.Watch(ctx, rootFlags.configPath, func(updated *config.Config) {
				select {
				case reload <- updated:
				default:
				}
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(h.AgentInterval)
		defer ticker.Stop()
		agentCycle(ctx, h, engine, ship)
		for {
			select {
			case <-ctx.Done():
				return nil
			case updated := <-reload:
				if err := initLogging(&updated.Host); err != nil {
					slog.Error("config reload: logging unchanged", "err", err)
				}
				if updated.Host.AgentInterval != h.AgentInterval {
					ticker.Reset(updated.Host.AgentInterval)
				}
				h = updated.Host
				slog.Info("config hot-reloaded", "interval", h.AgentInterval)
			case <-ticker.C:
				agentCycle(ctx, h, engine, ship)
			}
		}
	})

	err := g.Wait()
	slog.Info("instrumentkit agent shutting down")
	return err
}

// agentCycle verifies every attached device once. Device failures are
// logged and do not stop the cycle.
func agentCycle(ctx context.Context, h config.HostConfig, engine *compute.Engine, ship *shipper.Shipper) {
	devices, err := adb.Devices(ctx, adb.WithADBPath(h.ADBPath))
	if err != nil {
		slog.Warn("list devices failed", "err", err)
		return
	}
	if h.Serial != "" {
		devices = filterSerial(devices, h.Serial)
	}
	for _, info := range devices {
		if ctx.Err() != nil {
			return
		}
		dev := adb.New(info.Serial, adb.WithADBPath(h.ADBPath))
		suite := hostside.New(dev, h.APKDir)
		suite.TempDir = h.TempDir

		results, err := suite.RunAll(ctx)
		if err != nil {
			slog.Warn("verification set-up failed", "device", info.Serial, "err", err)
			continue
		}
		for _, r := range results {
			rep := r.Report(info.Serial)
			health := engine.Process(rep)
			slog.Debug("scored run",
				"device", info.Serial,
				"scenario", r.Scenario,
				"state", health.State,
				"score", health.Score,
			)
			if ship != nil {
				ship.Ship(rep)
			}
		}
	}
}

func filterSerial(devices []adb.Info, serial string) []adb.Info {
	for _, d := range devices {
		if d.Serial == serial {
			return []adb.Info{d}
		}
	}
	return nil
}
