package collector

import (
	"sync"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/instrument"
)

// Status is the outcome of one test.
type Status int

const (
	StatusIncomplete Status = iota
	StatusPassed
	StatusFailed
	StatusIgnored
	StatusAssumptionFailure
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusIgnored:
		return "ignored"
	case StatusAssumptionFailure:
		return "assumption_failure"
	}
	return "incomplete"
}

// TestResult is the recorded outcome of one test.
type TestResult struct {
	Test    instrument.TestID
	Status  Status
	Trace   string
	Metrics map[string]string
}

// TestRunResult is the recorded outcome of one run.
type TestRunResult struct {
	Name       string
	TestCount  int
	Tests      []*TestResult
	RunMetrics map[string]string
	RunFailure string
	Elapsed    time.Duration
	Complete   bool
}

// Failed reports whether the run itself failed.
func (r *TestRunResult) Failed() bool { return r.RunFailure != "" }

// NumFailed counts tests that failed.
func (r *TestRunResult) NumFailed() int {
	n := 0
	for _, t := range r.Tests {
		if t.Status == StatusFailed {
			n++
		}
	}
	return n
}

// NumPassed counts tests that passed.
func (r *TestRunResult) NumPassed() int {
	n := 0
	for _, t := range r.Tests {
		if t.Status == StatusPassed {
			n++
		}
	}
	return n
}

// CollectingListener records every event it receives.
type CollectingListener struct {
	mu   sync.Mutex
	runs []*TestRunResult
	cur  *TestRunResult
	open map[instrument.TestID]*TestResult
}

// NewCollectingListener returns an empty CollectingListener.
func NewCollectingListener() *CollectingListener {
	return &CollectingListener{open: map[instrument.TestID]*TestResult{}}
}

// RunResults returns the runs recorded so far, oldest first.
func (c *CollectingListener) RunResults() []*TestRunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*TestRunResult(nil), c.runs...)
}

func (c *CollectingListener) TestRunStarted(name string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = &TestRunResult{Name: name, TestCount: n, RunMetrics: map[string]string{}}
	c.runs = append(c.runs, c.cur)
}

func (c *CollectingListener) TestStarted(t instrument.TestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return
	}
	r := &TestResult{Test: t, Metrics: map[string]string{}}
	c.cur.Tests = append(c.cur.Tests, r)
	c.open[t] = r
}

func (c *CollectingListener) set(t instrument.TestID, s Status, trace string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.open[t]; ok {
		r.Status, r.Trace = s, trace
	}
}

func (c *CollectingListener) TestFailed(t instrument.TestID, trace string) {
	c.set(t, StatusFailed, trace)
}

func (c *CollectingListener) TestAssumptionFailure(t instrument.TestID, trace string) {
	c.set(t, StatusAssumptionFailure, trace)
}

func (c *CollectingListener) TestIgnored(t instrument.TestID) { c.set(t, StatusIgnored, "") }

func (c *CollectingListener) TestEnded(t instrument.TestID, metrics map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.open[t]
	if !ok {
		return
	}
	delete(c.open, t)
	if r.Status == StatusIncomplete {
		r.Status = StatusPassed
	}
	for k, v := range metrics {
		r.Metrics[k] = v
	}
}

func (c *CollectingListener) TestRunFailed(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		c.cur.RunFailure = msg
	}
}

func (c *CollectingListener) TestRunEnded(elapsed time.Duration, metrics map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return
	}
	c.cur.Elapsed = elapsed
	c.cur.Complete = true
	for k, v := range metrics {
		c.cur.RunMetrics[k] = v
	}
	c.cur = nil
}
