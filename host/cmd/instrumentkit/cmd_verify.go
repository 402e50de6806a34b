package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/instrumentkit/instrumentkit/host/internal/compute"
	"github.com/instrumentkit/instrumentkit/host/internal/hostside"
	"github.com/instrumentkit/instrumentkit/pkg/types"
)

var verifyFlags struct {
	apkDir     string
	reportPath string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the device collector library on a device",
	Long: "Installs " + hostside.TestAPK + " and runs every collector scenario:\n" +
		"base and scheduled listeners, battery stats per run and per test, and screenshots.",
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.StringVar(&verifyFlags.apkDir, "apk-dir", "", "Directory holding "+hostside.TestAPK+" (default: host.apk_dir)")
	f.StringVar(&verifyFlags.reportPath, "report", "", "Write run reports as JSON to this file")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	h := cfg.Host
	if verifyFlags.apkDir != "" {
		h.APKDir = verifyFlags.apkDir
	}

	dev, err := openDevice(ctx, h)
	if err != nil {
		return err
	}
	suite := hostside.New(dev, h.APKDir)
	suite.TempDir = h.TempDir

	results, err := suite.RunAll(ctx)
	if err != nil {
		return err
	}

	reps := make([]*types.RunReport, 0, len(results))
	for _, r := range results {
		reps = append(reps, r.Report(dev.Serial()))
	}
	scoreReports(compute.NewEngine(), reps)

	failed := renderScenarios(cmd.OutOrStdout(), results)
	if err := writeReports(verifyFlags.reportPath, reps); err != nil {
		return err
	}
	if err := shipReports(ctx, h, reps); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	return nil
}

func renderScenarios(w io.Writer, results []hostside.Result) int {
	t := newTable(w)
	t.AppendHeader(table.Row{"Scenario", "Tests", "Run metrics", "Result"})
	failed := 0
	for _, r := range results {
		tests, metrics := 0, 0
		if r.Run != nil {
			tests, metrics = len(r.Run.Tests), len(r.Run.RunMetrics)
		}
		result := "PASS"
		if r.Err != nil {
			result = "FAIL: " + r.Err.Error()
			failed++
		}
		t.AppendRow(table.Row{r.Scenario, tests, metrics, result})
	}
	t.AppendFooter(table.Row{"", "", "Failed", failed})
	t.Render()
	return failed
}
