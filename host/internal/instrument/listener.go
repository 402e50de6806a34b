package instrument

import (
	"time"
)

// TestID identifies one test method.
type TestID struct {
	Class  string
	Method string
}

func (t TestID) String() string { return t.Class + "#" + t.Method }

// Listener receives run and test events in stream order. Every run reports
// TestRunStarted first and TestRunEnded last, also when it fails.
type Listener interface {
	TestRunStarted(runName string, testCount int)
	TestStarted(test TestID)
	TestFailed(test TestID, trace string)
	TestAssumptionFailure(test TestID, trace string)
	TestIgnored(test TestID)
	TestEnded(test TestID, metrics map[string]string)
	TestRunFailed(msg string)
	TestRunEnded(elapsed time.Duration, metrics map[string]string)
}

// NopListener implements Listener with no-ops. Embed it to handle a subset
// of events.
type NopListener struct{}

func (NopListener) TestRunStarted(string, int)                    {}
func (NopListener) TestStarted(TestID)                            {}
func (NopListener) TestFailed(TestID, string)                     {}
func (NopListener) TestAssumptionFailure(TestID, string)          {}
func (NopListener) TestIgnored(TestID)                            {}
func (NopListener) TestEnded(TestID, map[string]string)           {}
func (NopListener) TestRunFailed(string)                          {}
func (NopListener) TestRunEnded(time.Duration, map[string]string) {}
