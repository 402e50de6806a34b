package collector

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/instrumentkit/instrumentkit/pkg/types"
)

// Report summarises run for shipping. collectorErr is what Attached.Err
// returned for the run, and may be nil.
func Report(run *TestRunResult, device string, startedAt time.Time, collectorErr error) *types.RunReport {
	rep := &types.RunReport{
		ID:         uuid.NewString(),
		Device:     device,
		Package:    run.Name,
		StartedAt:  startedAt,
		ElapsedMs:  run.Elapsed.Milliseconds(),
		Tests:      len(run.Tests),
		Passed:     run.NumPassed(),
		Failed:     run.NumFailed(),
		Complete:   run.Complete,
		RunFailure: run.RunFailure,
		RunMetrics: run.RunMetrics,
	}
	for _, t := range run.Tests {
		if t.Status == StatusIgnored {
			rep.Ignored++
		}
	}
	rep.CollectorErrors = errorList(collectorErr)
	return rep
}

func errorList(err error) []string {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, errorList(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
