package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/instrument"
)

// MetricData holds the metrics collected for one run or test. It is safe
// for concurrent use.
type MetricData struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMetricData returns an empty MetricData.
func NewMetricData() *MetricData {
	return &MetricData{m: map[string]string{}}
}

// Add records key=value, replacing an earlier value.
func (d *MetricData) Add(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[key] = value
}

// Get returns the value recorded for key.
func (d *MetricData) Get(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.m[key]
	return v, ok
}

// Len returns the number of metrics.
func (d *MetricData) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.m)
}

// Snapshot returns a copy of the metrics.
func (d *MetricData) Snapshot() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.m))
	for k, v := range d.m {
		out[k] = v
	}
	return out
}

// MergeInto copies every metric into dst, overwriting existing keys.
func (d *MetricData) MergeInto(dst map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.m {
		dst[k] = v
	}
}

// MetricCollector hooks run and test boundaries. The metrics passed to the
// end hooks are those the device reported.
type MetricCollector interface {
	OnTestRunStart(ctx context.Context, run *MetricData) error
	OnTestRunEnd(ctx context.Context, run *MetricData, metrics map[string]string) error
	OnTestStart(ctx context.Context, test instrument.TestID, data *MetricData) error
	OnTestEnd(ctx context.Context, test instrument.TestID, data *MetricData, metrics map[string]string) error
}

// BaseCollector implements MetricCollector with no-ops.
type BaseCollector struct{}

func (BaseCollector) OnTestRunStart(context.Context, *MetricData) error { return nil }
func (BaseCollector) OnTestRunEnd(context.Context, *MetricData, map[string]string) error {
	return nil
}
func (BaseCollector) OnTestStart(context.Context, instrument.TestID, *MetricData) error { return nil }
func (BaseCollector) OnTestEnd(context.Context, instrument.TestID, *MetricData, map[string]string) error {
	return nil
}

// Attached is an instrument.Listener that runs collectors around a
// downstream listener.
type Attached struct {
	ctx        context.Context
	forward    instrument.Listener
	collectors []MetricCollector

	mu    sync.Mutex
	run   *MetricData
	tests map[instrument.TestID]*MetricData
	errs  []error
}

// Attach returns a listener that feeds collectors and forwards every event
// to forward with collector metrics merged in.
func Attach(ctx context.Context, forward instrument.Listener, collectors ...MetricCollector) *Attached {
	return &Attached{
		ctx:        ctx,
		forward:    forward,
		collectors: collectors,
		tests:      map[instrument.TestID]*MetricData{},
	}
}

// Err returns every error raised by a collector hook so far.
func (a *Attached) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return errors.Join(a.errs...)
}

func (a *Attached) record(hook string, err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, fmt.Errorf("collector: %s: %w", hook, err))
}

func (a *Attached) TestRunStarted(name string, n int) {
	a.mu.Lock()
	a.run = NewMetricData()
	run := a.run
	a.mu.Unlock()
	for _, c := range a.collectors {
		a.record("run start", c.OnTestRunStart(a.ctx, run))
	}
	a.forward.TestRunStarted(name, n)
}

func (a *Attached) TestStarted(t instrument.TestID) {
	data := NewMetricData()
	a.mu.Lock()
	a.tests[t] = data
	a.mu.Unlock()
	for _, c := range a.collectors {
		a.record("test start "+t.String(), c.OnTestStart(a.ctx, t, data))
	}
	a.forward.TestStarted(t)
}

func (a *Attached) TestFailed(t instrument.TestID, trace string) { a.forward.TestFailed(t, trace) }

func (a *Attached) TestAssumptionFailure(t instrument.TestID, trace string) {
	a.forward.TestAssumptionFailure(t, trace)
}

func (a *Attached) TestIgnored(t instrument.TestID) { a.forward.TestIgnored(t) }

func (a *Attached) TestEnded(t instrument.TestID, metrics map[string]string) {
	a.mu.Lock()
	data, ok := a.tests[t]
	delete(a.tests, t)
	a.mu.Unlock()
	if !ok {
		data = NewMetricData()
	}
	for _, c := range a.collectors {
		a.record("test end "+t.String(), c.OnTestEnd(a.ctx, t, data, metrics))
	}
	a.forward.TestEnded(t, merge(metrics, data))
}

func (a *Attached) TestRunFailed(msg string) { a.forward.TestRunFailed(msg) }

func (a *Attached) TestRunEnded(elapsed time.Duration, metrics map[string]string) {
	a.mu.Lock()
	run := a.run
	a.run = nil
	a.mu.Unlock()
	if run == nil {
		run = NewMetricData()
	}
	for _, c := range a.collectors {
		a.record("run end", c.OnTestRunEnd(a.ctx, run, metrics))
	}
	a.forward.TestRunEnded(elapsed, merge(metrics, run))
}

func merge(metrics map[string]string, data *MetricData) map[string]string {
	out := make(map[string]string, len(metrics)+data.Len())
	for k, v := range metrics {
		out[k] = v
	}
	data.MergeInto(out)
	return out
}
