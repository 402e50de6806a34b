package hostside_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/instrumentkit/instrumentkit/host/internal/adb/adbtest"
	"github.com/instrumentkit/instrumentkit/host/internal/hostside"
)

const testClass = "android.device.collectors.StubTest"

// rawRun renders `am instrument -r` output for a single passing test.
func rawRun(testMetrics, runMetrics map[string]string) string {
	var b strings.Builder
	status := func(k, v string) { fmt.Fprintf(&b, "INSTRUMENTATION_STATUS: %s=%s\n", k, v) }
	status("class", testClass)
	status("current", "1")
	status("numtests", "1")
	status("test", "testOne")
	b.WriteString("INSTRUMENTATION_STATUS_CODE: 1\n")
	status("class", testClass)
	status("current", "1")
	status("numtests", "1")
	for k, v := range testMetrics {
		status(k, v)
	}
	status("test", "testOne")
	b.WriteString("INSTRUMENTATION_STATUS_CODE: 0\n")
	for k, v := range runMetrics {
		fmt.Fprintf(&b, "INSTRUMENTATION_RESULT: %s=%s\n", k, v)
	}
	b.WriteString("INSTRUMENTATION_CODE: -1\n")
	return b.String()
}

func instrArgs(a []string) map[string]string {
	out := map[string]string{}
	for i := 0; i+2 < len(a); i++ {
		if a[i] == "-e" {
			out[a[i+1]] = a[i+2]
			i += 2
		}
	}
	return out
}

func batteryStatsProto() []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 29)
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	return protowire.AppendBytes(out, inner)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeCollectors answers instrumentation the way the device listeners do.
func fakeCollectors(t *testing.T) *adbtest.Runner {
	fake := adbtest.New()
	fake.Packages[hostside.TestAPK] = hostside.PackageName
	shot := pngBytes(t)
	fake.HandleStream("am instrument", func(a []string) (io.Reader, error) {
		opts := instrArgs(a)
		switch opts["listener"] {
		case hostside.StubBaseCollector:
			return strings.NewReader(rawRun(nil, map[string]string{"run_start": "1", "run_end": "2"})), nil
		case hostside.ScheduledCollector:
			run := map[string]string{"collect0": "0"}
			if opts["interval"] == "100" {
				run["collect1"], run["collect2"] = "1", "2"
			}
			return strings.NewReader(rawRun(nil, run)), nil
		case hostside.BatteryStatsCollect:
			key := hostside.BatteryStatsCollect + "_batterystats"
			if opts["batterystats-per-run"] == "true" {
				path := "/sdcard/batterystats-log/run_batterystatsproto.pb"
				fake.PutFile(path, batteryStatsProto())
				return strings.NewReader(rawRun(nil, map[string]string{key: path})), nil
			}
			path := "/sdcard/batterystats-log/testOne_batterystatsproto.pb"
			fake.PutFile(path, batteryStatsProto())
			return strings.NewReader(rawRun(map[string]string{key: path}, nil)), nil
		case hostside.ScreenshotCollector:
			path := "/sdcard/screenshot-log/testOne.png"
			fake.PutFile(path, shot)
			key := hostside.ScreenshotCollector + "_testOne"
			return strings.NewReader(rawRun(map[string]string{key: path}, nil)), nil
		}
		return strings.NewReader(""), nil
	})
	return fake
}

func newSuite(t *testing.T, fake *adbtest.Runner) *hostside.Suite {
	s := hostside.New(fake.Device(), t.TempDir())
	s.TempDir = t.TempDir()
	if err := s.SetUp(context.Background()); err != nil {
		t.Fatalf("SetUp: %v", err)
	}
	return s
}

func TestSetUp_InstallsAPK(t *testing.T) {
	fake := fakeCollectors(t)
	newSuite(t, fake)
	if got := fake.CallsWithPrefix("install"); len(got) != 1 || !strings.HasSuffix(got[0], hostside.TestAPK) {
		t.Errorf("install calls = %v", got)
	}
}

func TestSetUp_MissingAPK(t *testing.T) {
	fake := adbtest.New()
	s := hostside.New(fake.Device(), t.TempDir())
	if err := s.SetUp(context.Background()); err == nil {
		t.Fatal("SetUp succeeded without the test APK")
	}
}

func TestScenarios_Pass(t *testing.T) {
	fake := fakeCollectors(t)
	s := newSuite(t, fake)
	for _, sc := range hostside.Scenarios() {
		t.Run(sc.Name, func(t *testing.T) {
			res, err := sc.Run(s, context.Background())
			if err != nil {
				t.Fatalf("%s: %v", sc.Name, err)
			}
			if res == nil || res.Failed() {
				t.Fatalf("%s: result = %+v", sc.Name, res)
			}
		})
	}
}

func TestBatteryStatsPerRun_RecordsHostPath(t *testing.T) {
	fake := fakeCollectors(t)
	s := newSuite(t, fake)
	res, err := s.BatteryStatsPerRun(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range res.RunMetrics {
		if strings.HasPrefix(v, "/sdcard") {
			t.Errorf("metric %s = %s, want a host path", k, v)
		}
	}
	if fake.HasFile("/sdcard/batterystats-log/run_batterystatsproto.pb") {
		t.Error("device file was not removed")
	}
}

func TestBaseListener_MissingMetric(t *testing.T) {
	fake := fakeCollectors(t)
	fake.HandleStream("am instrument", func([]string) (io.Reader, error) {
		return strings.NewReader(rawRun(nil, map[string]string{"run_start": "1"})), nil
	})
	s := newSuite(t, fake)
	_, err := s.BaseListenerRuns(context.Background())
	if err == nil || !strings.Contains(err.Error(), `"run_end"`) {
		t.Errorf("err = %v, want missing run_end", err)
	}
}

func TestScheduledDefault_TooManyMetrics(t *testing.T) {
	fake := fakeCollectors(t)
	fake.HandleStream("am instrument", func([]string) (io.Reader, error) {
		return strings.NewReader(rawRun(nil, map[string]string{"collect0": "0", "collect1": "1"})), nil
	})
	s := newSuite(t, fake)
	if _, err := s.ScheduledListenerRunsDefault(context.Background()); err == nil {
		t.Error("expected an error for two scheduled metrics")
	}
}

func TestScreenshot_NotPNG(t *testing.T) {
	fake := fakeCollectors(t)
	fake.HandleStream("am instrument", func([]string) (io.Reader, error) {
		fake.PutFile("/sdcard/screenshot-log/testOne.png", []byte("not an image"))
		key := hostside.ScreenshotCollector + "_testOne"
		return strings.NewReader(rawRun(map[string]string{key: "/sdcard/screenshot-log/testOne.png"}, nil)), nil
	})
	s := newSuite(t, fake)
	if _, err := s.ScreenshotListener(context.Background()); err == nil {
		t.Error("expected an error for a non-PNG screenshot")
	}
}

func TestRun_IncompleteFails(t *testing.T) {
	fake := fakeCollectors(t)
	fake.HandleStream("am instrument", func([]string) (io.Reader, error) {
		return strings.NewReader("INSTRUMENTATION_RESULT: run_start=1\n"), nil
	})
	s := newSuite(t, fake)
	_, err := s.BaseListenerRuns(context.Background())
	if err == nil || !strings.Contains(err.Error(), "run failed") {
		t.Errorf("err = %v, want run failure", err)
	}
}

func TestRunAll(t *testing.T) {
	fake := fakeCollectors(t)
	s := hostside.New(fake.Device(), t.TempDir())
	s.TempDir = t.TempDir()
	results, err := s.RunAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(hostside.Scenarios()) {
		t.Fatalf("results = %d, want %d", len(results), len(hostside.Scenarios()))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("%s: %v", r.Scenario, r.Err)
		}
	}
}

func TestResult_Report(t *testing.T) {
	fake := fakeCollectors(t)
	fake.HandleStream("am instrument", func([]string) (io.Reader, error) {
		return strings.NewReader(rawRun(nil, map[string]string{"run_start": "1"})), nil
	})
	s := newSuite(t, fake)
	run, err := s.BaseListenerRuns(context.Background())
	res := hostside.Result{Scenario: "base_listener", StartedAt: time.Unix(10, 0), Run: run, Err: err}

	rep := res.Report(adbtest.Serial)
	if rep.Scenario != "base_listener" || rep.Device != adbtest.Serial {
		t.Errorf("report = %+v", rep)
	}
	if rep.Tests != 1 || rep.Passed != 1 || !rep.Complete {
		t.Errorf("counts = %d/%d complete=%v", rep.Tests, rep.Passed, rep.Complete)
	}
	if len(rep.CollectorErrors) != 1 || !strings.Contains(rep.CollectorErrors[0], "run_end") {
		t.Errorf("CollectorErrors = %v", rep.CollectorErrors)
	}
}

func TestResult_ReportWithoutRun(t *testing.T) {
	res := hostside.Result{Scenario: "screenshot", StartedAt: time.Unix(10, 0), Err: errors.New("hostside: adb gone")}
	rep := res.Report("d")
	if rep.RunFailure != "hostside: adb gone" || rep.Complete {
		t.Errorf("report = %+v", rep)
	}
	if rep.Package != hostside.PackageName {
		t.Errorf("Package = %q", rep.Package)
	}
}
