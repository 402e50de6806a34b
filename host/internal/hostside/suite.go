package hostside

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/collector"
	"github.com/instrumentkit/instrumentkit/host/internal/instrument"
	"github.com/instrumentkit/instrumentkit/host/internal/logging"
	"github.com/instrumentkit/instrumentkit/pkg/types"
)

const (
	TestAPK     = "CollectorDeviceLibTest.apk"
	PackageName = "android.device.collectors"
	AJURRunner  = "android.support.test.runner.AndroidJUnitRunner"

	StubBaseCollector   = "android.device.collectors.StubTestMetricListener"
	ScheduledCollector  = "android.device.collectors.StubScheduledRunMetricListener"
	BatteryStatsCollect = "android.device.collectors.BatteryStatsListener"
	ScreenshotCollector = "android.device.collectors.ScreenshotListener"
)

// Device is the subset of *adb.Device the suite drives.
type Device interface {
	instrument.Streamer
	collector.Puller
	Install(ctx context.Context, apkPath string) error
	IsPackageInstalled(ctx context.Context, pkg string) (bool, error)
}

// Suite runs the collector scenarios against one device.
type Suite struct {
	// APKDir holds TestAPK.
	APKDir string
	// TempDir is where pulled files land. Empty means os.TempDir().
	TempDir string

	dev Device
	log *slog.Logger
}

// New returns a Suite for dev.
func New(dev Device, apkDir string) *Suite {
	return &Suite{APKDir: apkDir, dev: dev, log: logging.New("hostside")}
}

// SetUp installs the collector APK and checks the package is present.
func (s *Suite) SetUp(ctx context.Context) error {
	apk := filepath.Join(s.APKDir, TestAPK)
	if err := s.dev.Install(ctx, apk); err != nil {
		return fmt.Errorf("hostside: install %s: %w", TestAPK, err)
	}
	ok, err := s.dev.IsPackageInstalled(ctx, PackageName)
	if err != nil {
		return fmt.Errorf("hostside: check %s: %w", PackageName, err)
	}
	if !ok {
		return fmt.Errorf("hostside: package %s not installed after installing %s", PackageName, TestAPK)
	}
	return nil
}

// Scenario is one named verification.
type Scenario struct {
	Name string
	Run  func(s *Suite, ctx context.Context) (*collector.TestRunResult, error)
}

// Scenarios returns every scenario in a stable order.
func Scenarios() []Scenario {
	return []Scenario{
		{"base_listener", (*Suite).BaseListenerRuns},
		{"scheduled_listener", (*Suite).ScheduledListenerRuns},
		{"scheduled_listener_default", (*Suite).ScheduledListenerRunsDefault},
		{"batterystats_per_run", (*Suite).BatteryStatsPerRun},
		{"batterystats_per_test", (*Suite).BatteryStatsPerTest},
		{"screenshot", (*Suite).ScreenshotListener},
	}
}

// Result is the outcome of one scenario. Err is nil when every expectation
// held.
type Result struct {
	Scenario  string
	StartedAt time.Time
	Run       *collector.TestRunResult
	Err       error
}

// Report converts r into a run report for device. A violated expectation
// that is not already a run failure is listed as a collector error.
func (r Result) Report(device string) *types.RunReport {
	run := r.Run
	if run == nil {
		run = &collector.TestRunResult{Name: PackageName}
	}
	rep := collector.Report(run, device, r.StartedAt, nil)
	rep.Scenario = r.Scenario
	if r.Err != nil {
		if r.Run == nil {
			rep.RunFailure = r.Err.Error()
		} else if rep.RunFailure == "" {
			rep.CollectorErrors = append(rep.CollectorErrors, r.Err.Error())
		}
	}
	return rep
}

// RunAll sets the device up once and runs every scenario, continuing after
// failures. A set-up failure is returned as an error with no results.
func (s *Suite) RunAll(ctx context.Context) ([]Result, error) {
	if err := s.SetUp(ctx); err != nil {
		return nil, err
	}
	var out []Result
	for _, sc := range Scenarios() {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		start := time.Now()
		run, err := sc.Run(s, ctx)
		if err != nil {
			s.log.Warn("hostside: scenario failed", "scenario", sc.Name, "err", err)
		} else {
			s.log.Info("hostside: scenario passed", "scenario", sc.Name)
		}
		out = append(out, Result{Scenario: sc.Name, StartedAt: start, Run: run, Err: err})
	}
	return out, nil
}

// BaseListenerRuns checks the base listener adds run_start and run_end.
func (s *Suite) BaseListenerRuns(ctx context.Context) (*collector.TestRunResult, error) {
	res, err := s.run(ctx, args{{"listener", StubBaseCollector}}, "", nil)
	if err != nil {
		return res, err
	}
	return res, requireKeys(res.RunMetrics, "run_start", "run_end")
}

// ScheduledListenerRuns checks a 100ms scheduled listener fires at least
// three times.
func (s *Suite) ScheduledListenerRuns(ctx context.Context) (*collector.TestRunResult, error) {
	res, err := s.run(ctx, args{{"listener", ScheduledCollector}, {"interval", "100"}}, "", nil)
	if err != nil {
		return res, err
	}
	return res, requireKeys(res.RunMetrics, "collect0", "collect1", "collect2")
}

// ScheduledListenerRunsDefault checks an invalid interval falls back to the
// one minute default, leaving time for a single collection.
func (s *Suite) ScheduledListenerRunsDefault(ctx context.Context) (*collector.TestRunResult, error) {
	res, err := s.run(ctx, args{{"listener", ScheduledCollector}, {"interval", "-100"}}, "", nil)
	if err != nil {
		return res, err
	}
	if n := len(res.RunMetrics); n != 1 {
		return res, fmt.Errorf("hostside: expected 1 run metric, got %d: %v", n, keys(res.RunMetrics))
	}
	return res, requireKeys(res.RunMetrics, "collect0")
}

// BatteryStatsPerRun checks one battery stats file is reported for the run
// and that it decodes.
func (s *Suite) BatteryStatsPerRun(ctx context.Context) (*collector.TestRunResult, error) {
	a := args{
		{"listener", BatteryStatsCollect},
		{"batterystats-format", "file:batterystats-log"},
		{"batterystats-per-run", "true"},
	}
	res, err := s.run(ctx, a, BatteryStatsCollect, &collector.BatteryStatsProcessor{RecordPath: true})
	if err != nil {
		return res, err
	}
	if n := len(res.RunMetrics); n != 1 {
		return res, fmt.Errorf("hostside: expected 1 run metric, got %d: %v", n, keys(res.RunMetrics))
	}
	for k := range res.RunMetrics {
		if !strings.Contains(k, BatteryStatsCollect) {
			return res, fmt.Errorf("hostside: run metric %q does not name %s", k, BatteryStatsCollect)
		}
	}
	return res, nil
}

// BatteryStatsPerTest checks every per-test battery stats file decodes.
func (s *Suite) BatteryStatsPerTest(ctx context.Context) (*collector.TestRunResult, error) {
	a := args{
		{"listener", BatteryStatsCollect},
		{"batterystats-format", "file:batterystats-log"},
		{"batterystats-per-run", "false"},
	}
	return s.run(ctx, a, BatteryStatsCollect, &collector.BatteryStatsProcessor{})
}

// ScreenshotListener checks every screenshot the listener reports is a PNG.
func (s *Suite) ScreenshotListener(ctx context.Context) (*collector.TestRunResult, error) {
	a := args{
		{"listener", ScreenshotCollector},
		{"screenshot-format", "file:screenshot-log"},
	}
	return s.run(ctx, a, ScreenshotCollector, &collector.ScreenshotProcessor{})
}

type args [][2]string

// run executes one instrumentation. When proc is set, metrics whose key
// starts with pullClass are pulled and handed to it.
func (s *Suite) run(ctx context.Context, a args, pullClass string, proc collector.Processor) (*collector.TestRunResult, error) {
	r := instrument.NewRunner(s.dev, PackageName, AJURRunner)
	for _, kv := range a {
		r.AddArg(kv[0], kv[1])
	}

	collecting := collector.NewCollectingListener()
	var (
		listener instrument.Listener = collecting
		attached *collector.Attached
	)
	if proc != nil {
		puller, err := collector.NewFilePuller(s.dev, collector.FilePullerConfig{
			PullPatternKeys: []string{regexp.QuoteMeta(pullClass) + "_.*"},
			CleanUp:         true,
			TempDir:         s.TempDir,
		}, proc)
		if err != nil {
			return nil, err
		}
		attached = collector.Attach(ctx, collecting, puller)
		listener = attached
	}

	if err := r.Run(ctx, listener); err != nil {
		return nil, fmt.Errorf("hostside: %w", err)
	}

	results := collecting.RunResults()
	if len(results) != 1 {
		return nil, fmt.Errorf("hostside: expected 1 run result, got %d", len(results))
	}
	res := results[0]
	if res.Failed() {
		return res, fmt.Errorf("hostside: run failed: %s", res.RunFailure)
	}
	if attached != nil {
		if err := attached.Err(); err != nil {
			return res, fmt.Errorf("hostside: %w", err)
		}
	}
	return res, nil
}

func requireKeys(m map[string]string, want ...string) error {
	for _, k := range want {
		if _, ok := m[k]; !ok {
			return fmt.Errorf("hostside: run metric %q missing, have %v", k, keys(m))
		}
	}
	return nil
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
