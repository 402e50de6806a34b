package instrument

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	prefixStatus     = "INSTRUMENTATION_STATUS: "
	prefixStatusCode = "INSTRUMENTATION_STATUS_CODE: "
	prefixResult     = "INSTRUMENTATION_RESULT: "
	prefixCode       = "INSTRUMENTATION_CODE: "
	prefixFailed     = "INSTRUMENTATION_FAILED: "
	prefixAborted    = "INSTRUMENTATION_ABORTED: "
)

// Status codes closing a status bundle.
const (
	StatusStart             = 1
	StatusInProgress        = 2
	StatusOK                = 0
	StatusError             = -1
	StatusFailure           = -2
	StatusIgnored           = -3
	StatusAssumptionFailure = -4
)

var (
	reservedStatusKeys = map[string]bool{
		"class": true, "current": true, "id": true, "numtests": true,
		"stack": true, "stream": true, "test": true,
	}
	reservedResultKeys = map[string]bool{
		"stream": true, "shortMsg": true, "longMsg": true,
	}
)

// Parser consumes raw `am instrument -r` output line by line.
type Parser struct {
	runName   string
	listeners []Listener
	now       func() time.Time
	start     time.Time

	status map[string]string
	result map[string]string
	bundle map[string]string
	key    string

	runStarted bool
	completed  bool
	failMsg    string
	numTests   int
	done       int
	current    *TestID
}

// NewParser returns a Parser reporting to listeners under runName.
func NewParser(runName string, listeners ...Listener) *Parser {
	p := &Parser{
		runName:   runName,
		listeners: listeners,
		now:       time.Now,
		status:    map[string]string{},
		result:    map[string]string{},
	}
	p.start = p.now()
	return p
}

// Parse feeds every line of r to the parser and finishes the run.
func (p *Parser) Parse(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		p.ProcessLine(sc.Text())
	}
	err := sc.Err()
	if err != nil && p.failMsg == "" {
		p.failMsg = fmt.Sprintf("reading instrumentation output: %v", err)
	}
	p.Done()
	if err != nil {
		return fmt.Errorf("instrument: read output: %w", err)
	}
	return nil
}

// ProcessLine handles one output line.
func (p *Parser) ProcessLine(line string) {
	line = strings.TrimRight(line, "\r")
	switch {
	case strings.HasPrefix(line, prefixStatusCode):
		p.key = ""
		code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, prefixStatusCode)))
		if err != nil {
			return
		}
		p.handleStatus(code)
	case strings.HasPrefix(line, prefixStatus):
		p.startValue(p.status, strings.TrimPrefix(line, prefixStatus))
	case strings.HasPrefix(line, prefixResult):
		p.startValue(p.result, strings.TrimPrefix(line, prefixResult))
	case strings.HasPrefix(line, prefixCode):
		p.key = ""
		p.completed = true
		if msg, ok := p.result["shortMsg"]; ok && p.failMsg == "" {
			p.failMsg = msg
		}
	case strings.HasPrefix(line, prefixFailed):
		p.key = ""
		p.failMsg = strings.TrimSpace(strings.TrimPrefix(line, prefixFailed))
	case strings.HasPrefix(line, prefixAborted):
		p.key = ""
		p.failMsg = strings.TrimSpace(strings.TrimPrefix(line, prefixAborted))
	default:
		if p.key != "" {
			p.bundle[p.key] += "\n" + line
		}
	}
}

func (p *Parser) startValue(bundle map[string]string, kv string) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok {
		p.key = ""
		return
	}
	bundle[k] = v
	p.bundle = bundle
	p.key = k
}

func (p *Parser) handleStatus(code int) {
	b := p.status
	p.status = map[string]string{}
	if n, err := strconv.Atoi(b["numtests"]); err == nil {
		p.numTests = n
	}
	test := TestID{Class: b["class"], Method: b["test"]}

	switch code {
	case StatusStart:
		p.ensureRunStarted()
		p.current = &test
		for _, l := range p.listeners {
			l.TestStarted(test)
		}
	case StatusOK, StatusError, StatusFailure, StatusIgnored, StatusAssumptionFailure:
		p.ensureRunStarted()
		if p.current == nil || *p.current != test {
			for _, l := range p.listeners {
				l.TestStarted(test)
			}
		}
		for _, l := range p.listeners {
			switch code {
			case StatusError, StatusFailure:
				l.TestFailed(test, b["stack"])
			case StatusIgnored:
				l.TestIgnored(test)
			case StatusAssumptionFailure:
				l.TestAssumptionFailure(test, b["stack"])
			}
		}
		metrics := filter(b, reservedStatusKeys)
		for _, l := range p.listeners {
			l.TestEnded(test, metrics)
		}
		p.current = nil
		p.done++
	}
}

func (p *Parser) ensureRunStarted() {
	if p.runStarted {
		return
	}
	p.runStarted = true
	for _, l := range p.listeners {
		l.TestRunStarted(p.runName, p.numTests)
	}
}

// Done finishes the run. A stream that ended without INSTRUMENTATION_CODE is
// reported as a run failure, and a test left open is failed first.
func (p *Parser) Done() {
	p.ensureRunStarted()
	msg := p.failMsg
	if !p.completed {
		if msg == "" {
			msg = "instrumentation run did not complete"
		}
		if p.current != nil {
			test := *p.current
			for _, l := range p.listeners {
				l.TestFailed(test, "test did not complete: "+msg)
				l.TestEnded(test, map[string]string{})
			}
			p.current = nil
			p.done++
		}
		if p.numTests > p.done {
			msg = fmt.Sprintf("%s: expected %d tests, received %d", msg, p.numTests, p.done)
		}
	}
	if msg != "" {
		for _, l := range p.listeners {
			l.TestRunFailed(msg)
		}
	}
	elapsed := p.now().Sub(p.start)
	metrics := filter(p.result, reservedResultKeys)
	for _, l := range p.listeners {
		l.TestRunEnded(elapsed, metrics)
	}
}

func filter(b map[string]string, reserved map[string]bool) map[string]string {
	out := make(map[string]string, len(b))
	for k, v := range b {
		if !reserved[k] {
			out[k] = v
		}
	}
	return out
}
