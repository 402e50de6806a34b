// Package instrument runs on-device instrumentation with `am instrument -r -w`
// and turns its raw status stream into Listener callbacks.
//
// The raw format is a sequence of key/value bundles. Each test produces a
// status bundle closed by INSTRUMENTATION_STATUS_CODE: 1 when it starts and
// one of 0 (passed), -1 (error), -2 (failure), -3 (ignored) or -4
// (assumption failure) when it ends. The run closes with an
// INSTRUMENTATION_RESULT bundle and INSTRUMENTATION_CODE. Values may span
// several lines.
//
// Status keys other than the framework's own (class, current, id, numtests,
// stack, stream, test) are metrics reported with TestEnded; result keys
// other than stream, shortMsg and longMsg are run metrics reported with
// TestRunEnded.
package instrument
