package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/logging"
)

// DefaultInterval is used when a Scheduled collector is given a
// non-positive interval.
const DefaultInterval = time.Minute

// CollectFunc takes one sample. i counts samples from zero within a run.
type CollectFunc func(ctx context.Context, i int, run *MetricData) error

// Scheduled samples at a fixed interval for the duration of a run: once when
// the run starts and again on every tick until it ends.
type Scheduled struct {
	BaseCollector

	interval time.Duration
	collect  CollectFunc
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	errs   []error
}

// NewScheduled returns a Scheduled collector. interval <= 0 selects
// DefaultInterval.
func NewScheduled(interval time.Duration, collect CollectFunc) *Scheduled {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduled{interval: interval, collect: collect, log: logging.New("collector")}
}

// Interval returns the effective sampling interval.
func (s *Scheduled) Interval() time.Duration { return s.interval }

func (s *Scheduled) OnTestRunStart(ctx context.Context, run *MetricData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduled collector already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.errs = nil
	go s.loop(ctx, run, s.done)
	return nil
}

func (s *Scheduled) loop(ctx context.Context, run *MetricData, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		if err := s.collect(ctx, i, run); err != nil && ctx.Err() == nil {
			s.log.Warn("collector: scheduled sample failed", "sample", i, "error", err)
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// OnTestRunEnd stops sampling and waits for an in-flight sample to finish.
func (s *Scheduled) OnTestRunEnd(context.Context, *MetricData, map[string]string) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}
