package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/instrumentkit/instrumentkit/host/internal/adb"
	"github.com/instrumentkit/instrumentkit/host/internal/apphelper"
	"github.com/instrumentkit/instrumentkit/host/internal/compute"
	"github.com/instrumentkit/instrumentkit/host/internal/config"
	"github.com/instrumentkit/instrumentkit/host/internal/launcher"
	"github.com/instrumentkit/instrumentkit/host/internal/shipper"
	"github.com/instrumentkit/instrumentkit/host/internal/uiauto"
	"github.com/instrumentkit/instrumentkit/pkg/types"
)

// flushTimeout bounds how long a one-shot command waits for its reports to
// reach the server.
const flushTimeout = 30 * time.Second

// openDevice returns the configured device. Without a serial, exactly one
// device must be attached.
func openDevice(ctx context.Context, h config.HostConfig) (*adb.Device, error) {
	if h.Serial != "" {
		return adb.New(h.Serial, adb.WithADBPath(h.ADBPath)), nil
	}
	devices, err := adb.Devices(ctx, adb.WithADBPath(h.ADBPath))
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, errors.New("no device attached")
	case 1:
		return adb.New(devices[0].Serial, adb.WithADBPath(h.ADBPath)), nil
	}
	return nil, fmt.Errorf("%d devices attached, pick one with --serial", len(devices))
}

// screenCapturer is the part of adb.Device used to save failure screenshots.
type screenCapturer interface {
	Screencap(ctx context.Context) ([]byte, error)
}

// captureOnFailure saves the current screen as <dir>/<name>-<time>.png when
// err is non-nil and dir is set. It always returns err.
func captureOnFailure(ctx context.Context, dev screenCapturer, dir, name string, err error) error {
	if err == nil || dir == "" || dev == nil {
		return err
	}
	png, cerr := dev.Screencap(ctx)
	if cerr == nil {
		if cerr = os.MkdirAll(dir, 0o755); cerr == nil {
			path := filepath.Join(dir, name+"-"+time.Now().Format("20060102-150405")+".png")
			if cerr = os.WriteFile(path, png, 0o644); cerr == nil {
				slog.Info("saved failure screenshot", "path", path)
			}
		}
	}
	if cerr != nil {
		slog.Warn("failure screenshot not saved", "err", cerr)
	}
	return err
}

func uiDevice(dev *adb.Device, h config.HostConfig) *uiauto.Device {
	return uiauto.New(dev, uiauto.WithPollInterval(h.PollInterval))
}

func mapsOptions(m config.MapsConfig) *apphelper.MapsOptions {
	return &apphelper.MapsOptions{
		TryAgainTimeout: m.TryAgainTimeout,
		TermsTimeout:    m.TermsTimeout,
		WiFiTimeout:     m.WiFiTimeout,
		DialogTimeout:   m.DialogTimeout,
		IdleTimeout:     m.IdleTimeout,
		LaunchTimeout:   m.LaunchTimeout,
		TermsAttempts:   m.TermsAttempts,
	}
}

func autoOptions(a config.AutoConfig) *launcher.AutoOptions {
	return &launcher.AutoOptions{AppInitWait: a.AppInitWait, FacetAttempts: a.FacetAttempts}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// scoreReports fills in the health of every report, oldest first.
func scoreReports(engine *compute.Engine, reps []*types.RunReport) {
	for _, r := range reps {
		engine.Process(r)
	}
}

// shipReports sends reps to the configured server and waits for delivery.
// It is a no-op without a server endpoint.
func shipReports(ctx context.Context, h config.HostConfig, reps []*types.RunReport) error {
	if h.ServerEndpoint == "" || len(reps) == 0 {
		return nil
	}
	s := shipper.New(h)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.Run(runCtx)

	for _, r := range reps {
		s.Ship(r)
	}
	flushCtx, cancelFlush := context.WithTimeout(ctx, flushTimeout)
	defer cancelFlush()
	if err := s.Flush(flushCtx); err != nil {
		return err
	}
	slog.Info("shipped reports", "count", len(reps), "endpoint", h.ServerEndpoint)
	return nil
}

// writeReports stores reps as a JSON array at path. Empty path is a no-op.
func writeReports(path string, reps []*types.RunReport) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(reps, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// readReports loads a report file written by writeReports. A single report
// object is accepted as well.
func readReports(path string) ([]*types.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reps []*types.RunReport
	if err := json.Unmarshal(data, &reps); err == nil {
		return reps, nil
	}
	var one types.RunReport
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("%s: not a report or report list: %w", path, err)
	}
	return []*types.RunReport{&one}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
