package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/instrumentkit/instrumentkit/pkg/types"
)

// DiagnosticHint is one human-readable finding about a run.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional count associated with the hint.
	Value *float64 `json:"value,omitempty"`
}

var levelOrder = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from a run report, critical first.
func computeDiagnostics(rep *types.RunReport) []DiagnosticHint {
	hints := []DiagnosticHint{}

	if rep.RunFailure != "" {
		hints = append(hints, DiagnosticHint{
			Key:   "run_failed",
			Level: "critical",
			Title: "Run failed",
			Detail: fmt.Sprintf(
				"The instrumentation run reported a failure: %q. "+
					"Tests after the failure point did not execute. Check that the test APK "+
					"is installed for the right user and that the runner class exists.",
				rep.RunFailure),
		})
	} else if !rep.Complete {
		hints = append(hints, DiagnosticHint{
			Key:   "incomplete",
			Level: "critical",
			Title: "Run did not finish",
			Detail: "The instrumentation output ended before the final result code. " +
				"The process on the device probably crashed or the adb connection dropped. " +
				"Look at logcat around the run end for a fatal exception or an ANR.",
		})
	}

	if rep.Failed > 0 {
		v := float64(rep.Failed)
		hints = append(hints, DiagnosticHint{
			Key:    "tests_failed",
			Level:  "warning",
			Title:  "Test failures",
			Detail: fmt.Sprintf("%d of %d tests failed.", rep.Failed, rep.Tests),
			Value:  &v,
		})
	}

	if n := len(rep.CollectorErrors); n > 0 {
		v := float64(n)
		hints = append(hints, DiagnosticHint{
			Key:   "collector_errors",
			Level: "warning",
			Title: "Collector errors",
			Detail: fmt.Sprintf(
				"%d host-side collector error(s): %s. "+
					"Metrics or files from this run may be missing.",
				n, strings.Join(rep.CollectorErrors, "; ")),
			Value: &v,
		})
	}

	if rep.Tests == 0 && rep.Complete && rep.RunFailure == "" {
		hints = append(hints, DiagnosticHint{
			Key:   "no_tests",
			Level: "info",
			Title: "No tests ran",
			Detail: "The run completed without executing any test. " +
				"Check the class or package filter passed to the runner.",
		})
	}

	if rep.Ignored > 0 {
		v := float64(rep.Ignored)
		hints = append(hints, DiagnosticHint{
			Key:    "tests_ignored",
			Level:  "info",
			Title:  "Ignored tests",
			Detail: fmt.Sprintf("%d test(s) were ignored or skipped by an assumption.", rep.Ignored),
			Value:  &v,
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "all_passed",
			Level:  "ok",
			Title:  "All passed",
			Detail: fmt.Sprintf("All %d tests passed and every collector succeeded.", rep.Tests),
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelOrder[hints[i].Level] < levelOrder[hints[j].Level]
	})
	return hints
}
