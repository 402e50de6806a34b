package collector

import (
	"context"
	"strconv"
	"time"
)

// RunMetricsListener stamps every run with run_start and run_end, in
// milliseconds since the Unix epoch.
type RunMetricsListener struct {
	BaseCollector
	Now func() time.Time
}

func (r *RunMetricsListener) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *RunMetricsListener) OnTestRunStart(_ context.Context, run *MetricData) error {
	run.Add("run_start", strconv.FormatInt(r.now().UnixMilli(), 10))
	return nil
}

func (r *RunMetricsListener) OnTestRunEnd(_ context.Context, run *MetricData, _ map[string]string) error {
	run.Add("run_end", strconv.FormatInt(r.now().UnixMilli(), 10))
	return nil
}
