package config

import (
	"context"
	"log/slog"

	"github.com/instrumentkit/instrumentkit/pkg/filewatch"
)

// Watch reloads path whenever it changes and passes the new Config to
// onChange. It runs until ctx is cancelled. A reload that fails is logged and
// the previous config stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	slog.Info("config: watching for changes", "path", path)
	return filewatch.Watch(ctx, path, func() {
		cfg, err := Load(path)
		if err != nil {
			slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
			return
		}
		slog.Info("config: reloaded", "path", path)
		onChange(cfg)
	})
}
