package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/instrumentkit/instrumentkit/host/internal/adb"
	"github.com/instrumentkit/instrumentkit/host/internal/adb/adbtest"
	"github.com/instrumentkit/instrumentkit/host/internal/config"
	"github.com/instrumentkit/instrumentkit/host/internal/hostside"
	"github.com/instrumentkit/instrumentkit/pkg/types"
)

func TestParseArgs(t *testing.T) {
	got, err := parseArgs([]string{"listener=a.B", "interval=100", "empty="})
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]string{{"listener", "a.B"}, {"interval", "100"}, {"empty", ""}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseArgs (-want +got):\n%s", diff)
	}
	if _, err := parseArgs([]string{"novalue"}); err == nil {
		t.Error("parseArgs accepted an argument without '='")
	}
	if _, err := parseArgs([]string{"=x"}); err == nil {
		t.Error("parseArgs accepted an empty key")
	}
}

func TestReportsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.json")
	in := []*types.RunReport{
		{ID: "a", Device: "d1", StartedAt: time.Unix(100, 0).UTC(), Tests: 2, Passed: 2, Complete: true},
		{ID: "b", Device: "d2", StartedAt: time.Unix(200, 0).UTC(), RunFailure: "boom"},
	}
	if err := writeReports(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := readReports(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestWriteReports_NoPath(t *testing.T) {
	if err := writeReports("", []*types.RunReport{{ID: "x"}}); err != nil {
		t.Errorf("writeReports with no path: %v", err)
	}
}

func TestOpenFacet_NeedsApp(t *testing.T) {
	if err := openFacet(context.Background(), nil, "media", ""); err == nil || !strings.Contains(err.Error(), "needs an app") {
		t.Errorf("err = %v, want missing app", err)
	}
	if err := openFacet(context.Background(), nil, "radio", ""); err == nil {
		t.Error("unknown facet accepted")
	}
}

func TestFilterSerial(t *testing.T) {
	devices := []adb.Info{{Serial: "a", State: "device"}, {Serial: "b", State: "device"}}
	if got := filterSerial(devices, "b"); len(got) != 1 || got[0].Serial != "b" {
		t.Errorf("filterSerial = %v", got)
	}
	if got := filterSerial(devices, "c"); got != nil {
		t.Errorf("filterSerial(missing) = %v, want nil", got)
	}
}

func TestInstrumentOnce(t *testing.T) {
	fake := adbtest.New()
	fake.PutFile("/sdcard/log/trace.txt", []byte("trace"))
	fake.HandleStream("am instrument", func([]string) (io.Reader, error) {
		return strings.NewReader(
			"INSTRUMENTATION_STATUS: class=C\n" +
				"INSTRUMENTATION_STATUS: numtests=1\n" +
				"INSTRUMENTATION_STATUS: test=t\n" +
				"INSTRUMENTATION_STATUS_CODE: 1\n" +
				"INSTRUMENTATION_STATUS: class=C\n" +
				"INSTRUMENTATION_STATUS: test=t\n" +
				"INSTRUMENTATION_STATUS_CODE: 0\n" +
				"INSTRUMENTATION_RESULT: trace_file=/sdcard/log/trace.txt\n" +
				"INSTRUMENTATION_CODE: -1\n"), nil
	})
	dev := fake.Device()
	h := config.Default().Host
	h.TempDir = t.TempDir()

	collectors, err := buildCollectors(dev, h, []string{"trace_.*"}, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	rep, run, err := instrumentOnce(context.Background(), dev, "com.example.test", hostside.AJURRunner,
		[][2]string{{"listener", "x"}}, collectors)
	if err != nil {
		t.Fatalf("instrumentOnce: %v", err)
	}
	if !rep.Succeeded() || rep.Passed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Device != adbtest.Serial {
		t.Errorf("Device = %q, want %q", rep.Device, adbtest.Serial)
	}
	for _, k := range []string{"run_start", "run_end", "trace_file"} {
		if _, ok := run.RunMetrics[k]; !ok {
			t.Errorf("run metric %s missing: %v", k, run.RunMetrics)
		}
	}
	if got := run.RunMetrics["trace_file"]; !strings.HasPrefix(got, h.TempDir) {
		t.Errorf("trace_file = %q, want a path under %s", got, h.TempDir)
	}
	if fake.HasFile("/sdcard/log/trace.txt") {
		t.Error("device file not cleaned up")
	}
}

func TestCaptureOnFailure(t *testing.T) {
	fake := adbtest.New()
	fake.Screen = []byte("\x89PNG\r\n\x1a\n")
	dev := fake.Device()
	dir := filepath.Join(t.TempDir(), "shots")
	ctx := context.Background()

	if err := captureOnFailure(ctx, dev, dir, "maps-search", nil); err != nil {
		t.Fatalf("nil error became %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("screenshot saved for a successful step")
	}

	stepErr := errors.New("search box not found")
	if err := captureOnFailure(ctx, dev, dir, "maps-search", stepErr); !errors.Is(err, stepErr) {
		t.Fatalf("captureOnFailure returned %v, want the step error", err)
	}
	shots, err := filepath.Glob(filepath.Join(dir, "maps-search-*.png"))
	if err != nil || len(shots) != 1 {
		t.Fatalf("screenshots = %v (%v), want one", shots, err)
	}
	data, err := os.ReadFile(shots[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(fake.Screen) {
		t.Errorf("screenshot = %q, want %q", data, fake.Screen)
	}
}

func TestCaptureOnFailure_NoDir(t *testing.T) {
	fake := adbtest.New()
	stepErr := errors.New("boom")
	if err := captureOnFailure(context.Background(), fake.Device(), "", "x", stepErr); err != stepErr {
		t.Errorf("got %v, want %v", err, stepErr)
	}
	if calls := fake.CallsWithPrefix("exec-out"); len(calls) != 0 {
		t.Errorf("screencap called without a directory: %v", calls)
	}
}

func TestMapsOptions(t *testing.T) {
	got := mapsOptions(config.MapsConfig{IdleTimeout: 3 * time.Second, LaunchTimeout: 7 * time.Second, TermsAttempts: 2})
	if got.IdleTimeout != 3*time.Second || got.LaunchTimeout != 7*time.Second || got.TermsAttempts != 2 {
		t.Errorf("mapsOptions = %+v", got)
	}
}
