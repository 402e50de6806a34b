package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/instrumentkit/instrumentkit/host/internal/instrument"
	"github.com/instrumentkit/instrumentkit/host/internal/logging"
)

// Puller copies and deletes device files. *adb.Device satisfies it.
type Puller interface {
	Pull(ctx context.Context, remote, local string) error
	Remove(ctx context.Context, path string) error
}

// Processor handles one pulled file. key is the metric key that named it and
// data is the run or test MetricData it belongs to.
type Processor interface {
	ProcessFile(ctx context.Context, key, file string, data *MetricData) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, key, file string, data *MetricData) error

func (f ProcessorFunc) ProcessFile(ctx context.Context, key, file string, data *MetricData) error {
	return f(ctx, key, file, data)
}

// FilePullerConfig configures a FilePuller.
type FilePullerConfig struct {
	// PullPatternKeys are regular expressions; a metric whose key fully
	// matches one of them names a device file to pull.
	PullPatternKeys []string
	// CleanUp removes the device file after it has been pulled.
	CleanUp bool
	// TempDir is the parent of per-file host directories. Empty means
	// os.TempDir().
	TempDir string
}

// FilePuller pulls file-valued metrics at test end and run end.
type FilePuller struct {
	BaseCollector

	dev     Puller
	proc    Processor
	keys    []*regexp.Regexp
	cleanUp bool
	tempDir string
	log     *slog.Logger
}

// NewFilePuller compiles cfg.PullPatternKeys and returns a FilePuller.
func NewFilePuller(dev Puller, cfg FilePullerConfig, proc Processor) (*FilePuller, error) {
	if len(cfg.PullPatternKeys) == 0 {
		return nil, errors.New("collector: file puller needs at least one pull pattern key")
	}
	p := &FilePuller{
		dev:     dev,
		proc:    proc,
		cleanUp: cfg.CleanUp,
		tempDir: cfg.TempDir,
		log:     logging.New("collector"),
	}
	for _, k := range cfg.PullPatternKeys {
		re, err := regexp.Compile(`^(?:` + k + `)$`)
		if err != nil {
			return nil, fmt.Errorf("collector: pull pattern %q: %w", k, err)
		}
		p.keys = append(p.keys, re)
	}
	return p, nil
}

// Matches reports whether key fully matches a pull pattern.
func (p *FilePuller) Matches(key string) bool {
	for _, re := range p.keys {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

func (p *FilePuller) OnTestEnd(ctx context.Context, _ instrument.TestID, data *MetricData, metrics map[string]string) error {
	return p.pullAll(ctx, data, metrics)
}

func (p *FilePuller) OnTestRunEnd(ctx context.Context, run *MetricData, metrics map[string]string) error {
	return p.pullAll(ctx, run, metrics)
}

func (p *FilePuller) pullAll(ctx context.Context, data *MetricData, metrics map[string]string) error {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		if p.Matches(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := p.pullOne(ctx, k, metrics[k], data); err != nil {
			p.log.Warn("collector: metric file not processed", "key", k, "remote", metrics[k], "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *FilePuller) pullOne(ctx context.Context, key, remote string, data *MetricData) error {
	dir, err := os.MkdirTemp(p.tempDir, "collector-")
	if err != nil {
		return fmt.Errorf("pull %s: %w", key, err)
	}
	local := filepath.Join(dir, path.Base(remote))
	if err := p.dev.Pull(ctx, remote, local); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("pull %s (%s): %w", key, remote, err)
	}
	p.log.Debug("collector: pulled metric file", "key", key, "remote", remote, "local", local)
	// Only succeeds once the processor has deleted the file; kept files keep
	// their directory.
	defer os.Remove(dir)

	perr := p.proc.ProcessFile(ctx, key, local, data)
	if p.cleanUp {
		if err := p.dev.Remove(ctx, remote); err != nil {
			perr = errors.Join(perr, fmt.Errorf("remove %s: %w", remote, err))
		}
	}
	if perr != nil {
		return fmt.Errorf("process %s: %w", key, perr)
	}
	return nil
}
