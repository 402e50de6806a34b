package instrument

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/instrumentkit/instrumentkit/host/internal/logging"
)

// Streamer starts a streaming shell command. *adb.Device satisfies it.
type Streamer interface {
	ShellStream(ctx context.Context, args ...string) (io.ReadCloser, func() error, error)
}

type arg struct{ key, value string }

// Runner launches one instrumentation package on a device.
type Runner struct {
	Package    string
	RunnerName string

	dev  Streamer
	args []arg
	log  *slog.Logger
}

// NewRunner returns a Runner for pkg/runnerName on dev.
func NewRunner(dev Streamer, pkg, runnerName string) *Runner {
	return &Runner{
		Package:    pkg,
		RunnerName: runnerName,
		dev:        dev,
		log:        logging.New("instrument"),
	}
}

// AddArg sets an instrumentation argument (`-e key value`). Arguments keep
// the order they were first added in; re-adding a key replaces its value.
func (r *Runner) AddArg(key, value string) {
	for i := range r.args {
		if r.args[i].key == key {
			r.args[i].value = value
			return
		}
	}
	r.args = append(r.args, arg{key, value})
}

// Arg returns the value of an instrumentation argument.
func (r *Runner) Arg(key string) (string, bool) {
	for _, a := range r.args {
		if a.key == key {
			return a.value, true
		}
	}
	return "", false
}

// Command returns the device-side command line.
func (r *Runner) Command() []string {
	cmd := []string{"am", "instrument", "-r", "-w"}
	for _, a := range r.args {
		cmd = append(cmd, "-e", a.key, a.value)
	}
	return append(cmd, r.Package+"/"+r.RunnerName)
}

// Run executes the instrumentation and reports progress to listeners. Test
// and run failures are delivered through the listeners; the returned error
// covers only failures to start or read the command.
func (r *Runner) Run(ctx context.Context, listeners ...Listener) error {
	cmd := r.Command()
	r.log.Info("instrument: starting run", "package", r.Package, "command", strings.Join(cmd, " "))
	out, wait, err := r.dev.ShellStream(ctx, cmd...)
	if err != nil {
		p := NewParser(r.Package, listeners...)
		p.failMsg = err.Error()
		p.Done()
		return fmt.Errorf("instrument: start %s: %w", r.Package, err)
	}
	defer out.Close()

	perr := NewParser(r.Package, listeners...).Parse(out)
	if perr != nil {
		// Unblock the command so wait can return.
		io.Copy(io.Discard, out)
	}
	werr := wait()
	if perr != nil {
		return perr
	}
	if werr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("instrument: %s exited: %w", r.Package, werr)
	}
	r.log.Info("instrument: run finished", "package", r.Package)
	return nil
}
