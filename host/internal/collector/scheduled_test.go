package collector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/adb/adbtest"
)

func countingCollect(ctx context.Context, i int, run *MetricData) error {
	run.Add(fmt.Sprintf("collect%d", i), "1")
	return nil
}

func TestScheduled_CollectsEveryInterval(t *testing.T) {
	s := NewScheduled(5*time.Millisecond, countingCollect)
	run := NewMetricData()
	if err := s.OnTestRunStart(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for run.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := s.OnTestRunEnd(context.Background(), run, nil); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"collect0", "collect1", "collect2"} {
		if _, ok := run.Get(k); !ok {
			t.Errorf("missing %s in %v", k, run.Snapshot())
		}
	}
	// No samples after the run ended.
	n := run.Len()
	time.Sleep(20 * time.Millisecond)
	if run.Len() != n {
		t.Errorf("samples after stop: %d -> %d", n, run.Len())
	}
}

func TestScheduled_NonPositiveIntervalUsesDefault(t *testing.T) {
	s := NewScheduled(-100*time.Millisecond, countingCollect)
	if s.Interval() != DefaultInterval {
		t.Fatalf("Interval = %v, want %v", s.Interval(), DefaultInterval)
	}
	run := NewMetricData()
	if err := s.OnTestRunStart(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for run.Len() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := s.OnTestRunEnd(context.Background(), run, nil); err != nil {
		t.Fatal(err)
	}
	if run.Len() != 1 {
		t.Errorf("samples = %v, want only collect0", run.Snapshot())
	}
}

func TestScheduled_EndWithoutStart(t *testing.T) {
	s := NewScheduled(time.Second, countingCollect)
	if err := s.OnTestRunEnd(context.Background(), NewMetricData(), nil); err != nil {
		t.Errorf("OnTestRunEnd = %v, want nil", err)
	}
}

func TestBatteryLevelCollect(t *testing.T) {
	fake := adbtest.New()
	fake.HandleShell("dumpsys battery", func([]string) (string, error) {
		return "Current Battery Service state:\n  AC powered: false\n  level: 87\n  scale: 100\n", nil
	})
	run := NewMetricData()
	if err := BatteryLevelCollect(fake.Device())(context.Background(), 2, run); err != nil {
		t.Fatal(err)
	}
	if v, _ := run.Get("battery_level2"); v != "87" {
		t.Errorf("battery_level2 = %q, want 87", v)
	}
}
