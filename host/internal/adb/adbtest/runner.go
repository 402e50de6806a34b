// Package adbtest provides a scripted adb Runner for tests that need a device.
package adbtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/instrumentkit/instrumentkit/host/internal/adb"
)

// Serial is the serial number of the fake device.
const Serial = "emulator-5554"

// ShellFunc answers one shell command. args excludes the leading "shell".
type ShellFunc func(args []string) (string, error)

// StreamFunc answers one streamed shell command.
type StreamFunc func(args []string) (io.Reader, error)

// Runner emulates the adb binary against in-memory device state.
//
// Shell and stream handlers are matched on the longest registered prefix of
// the space-joined command line. Unmatched shell commands succeed with empty
// output.
type Runner struct {
	mu sync.Mutex

	// Files holds device-side file contents served by pull and rm.
	Files map[string][]byte
	// Packages maps an APK base name to the package it installs.
	Packages map[string]string
	// Screen is returned by `exec-out screencap -p`.
	Screen []byte

	installed map[string]bool
	shell     map[string]ShellFunc
	streams   map[string]StreamFunc
	calls     []string
}

// New returns an empty Runner.
func New() *Runner {
	return &Runner{
		Files:     make(map[string][]byte),
		Packages:  make(map[string]string),
		installed: make(map[string]bool),
		shell:     make(map[string]ShellFunc),
		streams:   make(map[string]StreamFunc),
	}
}

// Device returns an adb.Device wired to r.
func (r *Runner) Device() *adb.Device {
	return adb.New(Serial, adb.WithRunner(r), adb.WithADBPath("adb"))
}

// HandleShell registers fn for shell commands starting with prefix.
func (r *Runner) HandleShell(prefix string, fn ShellFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shell[prefix] = fn
}

// HandleStream registers fn for streamed shell commands starting with prefix.
func (r *Runner) HandleStream(prefix string, fn StreamFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[prefix] = fn
}

// SetInstalled marks pkg as installed.
func (r *Runner) SetInstalled(pkg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installed[pkg] = true
}

// PutFile places a file on the fake device.
func (r *Runner) PutFile(path string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Files[path] = data
}

// HasFile reports whether path exists on the fake device.
func (r *Runner) HasFile(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.Files[path]
	return ok
}

// Calls returns every command line received, without the adb path and serial.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsWithPrefix returns the recorded command lines starting with prefix.
func (r *Runner) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range r.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func stripSerial(args []string) []string {
	if len(args) >= 2 && args[0] == "-s" {
		return args[2:]
	}
	return args
}

// Run implements adb.Runner.
func (r *Runner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	args = stripSerial(args)
	r.mu.Lock()
	r.calls = append(r.calls, strings.Join(args, " "))
	r.mu.Unlock()

	if len(args) == 0 {
		return nil, errors.New("adb: no command")
	}
	switch args[0] {
	case "devices":
		return []byte("List of devices attached\n" + Serial + "\tdevice\n"), nil
	case "install":
		return r.install(args[len(args)-1])
	case "uninstall":
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.installed[args[1]] {
			return []byte("Failure [DELETE_FAILED_INTERNAL_ERROR] Unknown package"), errors.New("exit status 1")
		}
		delete(r.installed, args[1])
		return []byte("Success\n"), nil
	case "pull":
		return r.pull(args[1], args[2])
	case "push":
		data, err := os.ReadFile(args[1])
		if err != nil {
			return []byte(err.Error()), err
		}
		r.PutFile(args[2], data)
		return []byte("1 file pushed"), nil
	case "exec-out":
		if len(args) >= 2 && args[1] == "screencap" {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.Screen, nil
		}
		return nil, nil
	case "shell":
		out, err := r.runShell(args[1:])
		return []byte(out), err
	}
	return nil, fmt.Errorf("adbtest: unsupported command %q", args[0])
}

// Start implements adb.Runner.
func (r *Runner) Start(_ context.Context, _ string, args ...string) (io.ReadCloser, func() error, error) {
	args = stripSerial(args)
	r.mu.Lock()
	r.calls = append(r.calls, strings.Join(args, " "))
	r.mu.Unlock()

	if len(args) == 0 || args[0] != "shell" {
		return nil, nil, fmt.Errorf("adbtest: only shell can be streamed, got %v", args)
	}
	fn := r.lookupStream(strings.Join(args[1:], " "))
	if fn == nil {
		return io.NopCloser(strings.NewReader("")), func() error { return nil }, nil
	}
	rd, err := fn(args[1:])
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(rd), func() error { return nil }, nil
}

func (r *Runner) install(apk string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pkg, ok := r.Packages[filepath.Base(apk)]
	if !ok {
		return []byte("adb: failed to stat " + apk + ": No such file or directory"), errors.New("exit status 1")
	}
	r.installed[pkg] = true
	return []byte("Performing Streamed Install\nSuccess\n"), nil
}

func (r *Runner) pull(remote, local string) ([]byte, error) {
	r.mu.Lock()
	data, ok := r.Files[remote]
	r.mu.Unlock()
	if !ok {
		msg := fmt.Sprintf("adb: error: failed to stat remote object '%s': No such file or directory", remote)
		return []byte(msg), errors.New("exit status 1")
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return []byte(err.Error()), err
	}
	return []byte(remote + ": 1 file pulled"), nil
}

func (r *Runner) runShell(args []string) (string, error) {
	line := strings.Join(args, " ")
	if fn := r.lookupShell(line); fn != nil {
		return fn(args)
	}
	switch {
	case len(args) >= 3 && args[0] == "pm" && args[1] == "list" && args[2] == "packages":
		return r.listPackages(args[3:]), nil
	case len(args) >= 3 && args[0] == "rm" && args[1] == "-f":
		r.mu.Lock()
		delete(r.Files, args[2])
		r.mu.Unlock()
		return "", nil
	}
	return "", nil
}

func (r *Runner) listPackages(filter []string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pkgs []string
	for p := range r.installed {
		if len(filter) == 0 || strings.Contains(p, filter[0]) {
			pkgs = append(pkgs, "package:"+p)
		}
	}
	sort.Strings(pkgs)
	return strings.Join(pkgs, "\n")
}

func (r *Runner) lookupShell(line string) ShellFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	best := ""
	var fn ShellFunc
	for p, f := range r.shell {
		if strings.HasPrefix(line, p) && len(p) >= len(best) {
			best, fn = p, f
		}
	}
	return fn
}

func (r *Runner) lookupStream(line string) StreamFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	best := ""
	var fn StreamFunc
	for p, f := range r.streams {
		if strings.HasPrefix(line, p) && len(p) >= len(best) {
			best, fn = p, f
		}
	}
	return fn
}
