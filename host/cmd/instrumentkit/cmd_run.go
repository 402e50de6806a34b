package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/instrumentkit/instrumentkit/host/internal/adb"
	"github.com/instrumentkit/instrumentkit/host/internal/collector"
	"github.com/instrumentkit/instrumentkit/host/internal/compute"
	"github.com/instrumentkit/instrumentkit/host/internal/config"
	"github.com/instrumentkit/instrumentkit/host/internal/hostside"
	"github.com/instrumentkit/instrumentkit/host/internal/instrument"
	"github.com/instrumentkit/instrumentkit/pkg/types"
)

var runFlags struct {
	pkg             string
	runner          string
	args            []string
	pullPatterns    []string
	install         string
	batteryInterval time.Duration
	noRunMetrics    bool
	reportPath      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an instrumentation package with host-side collectors",
	Example: "  instrumentkit run --package android.device.collectors \\\n" +
		"    -e listener=android.device.collectors.ScreenshotListener \\\n" +
		"    --pull-pattern 'android\\.device\\.collectors\\.ScreenshotListener_.*'",
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.pkg, "package", "", "Instrumentation package (required)")
	f.StringVar(&runFlags.runner, "runner", hostside.AJURRunner, "Instrumentation runner class")
	f.StringArrayVarP(&runFlags.args, "arg", "e", nil, "Instrumentation argument as key=value (repeatable)")
	f.StringArrayVar(&runFlags.pullPatterns, "pull-pattern", nil, "Metric key regexp naming device files to pull (default: host.collectors.pull_pattern_keys)")
	f.StringVar(&runFlags.install, "install", "", "APK to install before running")
	f.DurationVar(&runFlags.batteryInterval, "battery-interval", 0, "Sample the battery level at this interval (default: off)")
	f.BoolVar(&runFlags.noRunMetrics, "no-run-metrics", false, "Do not add host run_start/run_end metrics")
	f.StringVar(&runFlags.reportPath, "report", "", "Write the run report as JSON to this file")

	_ = runCmd.MarkFlagRequired("package")
}

// parseArgs splits key=value pairs, keeping their order.
func parseArgs(kvs []string) ([][2]string, error) {
	out := make([][2]string, 0, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("instrumentation argument %q is not key=value", kv)
		}
		out = append(out, [2]string{k, v})
	}
	return out, nil
}

// buildCollectors returns the host-side collectors for one run.
func buildCollectors(dev *adb.Device, h config.HostConfig, patterns []string, batteryInterval time.Duration, runMetrics bool) ([]collector.MetricCollector, error) {
	var cs []collector.MetricCollector
	if runMetrics {
		cs = append(cs, &collector.RunMetricsListener{})
	}
	if len(patterns) > 0 {
		puller, err := collector.NewFilePuller(dev, collector.FilePullerConfig{
			PullPatternKeys: patterns,
			CleanUp:         h.Collectors.CleanUp,
			TempDir:         h.TempDir,
		}, &collector.FileTypeProcessor{BatteryStats: collector.BatteryStatsProcessor{RecordPath: true}})
		if err != nil {
			return nil, err
		}
		cs = append(cs, puller)
	}
	if batteryInterval > 0 {
		cs = append(cs, collector.NewScheduled(batteryInterval, collector.BatteryLevelCollect(dev)))
	}
	return cs, nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	h := cfg.Host

	args, err := parseArgs(runFlags.args)
	if err != nil {
		return err
	}
	patterns := runFlags.pullPatterns
	if len(patterns) == 0 {
		patterns = h.Collectors.PullPatternKeys
	}

	dev, err := openDevice(ctx, h)
	if err != nil {
		return err
	}
	if runFlags.install != "" {
		if err := dev.Install(ctx, runFlags.install); err != nil {
			return err
		}
	}
	collectors, err := buildCollectors(dev, h, patterns, runFlags.batteryInterval, !runFlags.noRunMetrics)
	if err != nil {
		return err
	}

	rep, run, err := instrumentOnce(ctx, dev, runFlags.pkg, runFlags.runner, args, collectors)
	if err != nil {
		return err
	}
	if runFlags.install != "" {
		rep.Scenario = strings.TrimSuffix(filepath.Base(runFlags.install), ".apk")
	}
	compute.NewEngine().Process(rep)

	renderRun(cmd.OutOrStdout(), run, rep)
	if err := writeReports(runFlags.reportPath, []*types.RunReport{rep}); err != nil {
		return err
	}
	if err := shipReports(ctx, h, []*types.RunReport{rep}); err != nil {
		return err
	}
	if !rep.Succeeded() {
		return fmt.Errorf("run %s did not succeed", rep.ID)
	}
	return nil
}

// instrumentOnce runs pkg with collectors attached and summarises the run.
func instrumentOnce(ctx context.Context, dev *adb.Device, pkg, runnerName string, args [][2]string, collectors []collector.MetricCollector) (*types.RunReport, *collector.TestRunResult, error) {
	r := instrument.NewRunner(dev, pkg, runnerName)
	for _, kv := range args {
		r.AddArg(kv[0], kv[1])
	}
	collecting := collector.NewCollectingListener()
	attached := collector.Attach(ctx, collecting, collectors...)

	started := time.Now()
	if err := r.Run(ctx, attached); err != nil {
		return nil, nil, err
	}
	results := collecting.RunResults()
	if len(results) == 0 {
		return nil, nil, fmt.Errorf("instrumentation of %s reported no run", pkg)
	}
	run := results[len(results)-1]
	return collector.Report(run, dev.Serial(), started, attached.Err()), run, nil
}

func renderRun(w io.Writer, run *collector.TestRunResult, rep *types.RunReport) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Test", "Status", "Metrics"})
	for _, tr := range run.Tests {
		t.AppendRow(table.Row{tr.Test.String(), tr.Status.String(), len(tr.Metrics)})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d passed, %d failed, %d ignored", rep.Passed, rep.Failed, rep.Ignored),
		rep.Health.State,
		fmt.Sprintf("%.1f", rep.Health.Score),
	})
	t.Render()

	if rep.RunFailure != "" {
		fmt.Fprintf(w, "Run failure: %s\n", rep.RunFailure)
	}
	for _, e := range rep.CollectorErrors {
		fmt.Fprintf(w, "Collector error: %s\n", e)
	}
	if len(run.RunMetrics) > 0 {
		m := newTable(w)
		m.AppendHeader(table.Row{"Run metric", "Value"})
		for _, k := range sortedKeys(run.RunMetrics) {
			m.AppendRow(table.Row{k, run.RunMetrics[k]})
		}
		m.Render()
	}
}
