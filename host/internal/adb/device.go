package adb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Key codes accepted by KeyEvent.
const (
	KeycodeBack    = "KEYCODE_BACK"
	KeycodeHome    = "KEYCODE_HOME"
	KeycodeEnter   = "KEYCODE_ENTER"
	KeycodeDel     = "KEYCODE_DEL"
	KeycodeMoveEnd = "KEYCODE_MOVE_END"
)

// ErrPackageNotFound is returned when a package query finds nothing installed.
var ErrPackageNotFound = errors.New("adb: package not found")

// Runner executes the adb binary. Run returns stdout only and carries stderr
// in the error; Start returns a stdout stream and a wait function that must be
// called once the stream is drained.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	Start(ctx context.Context, name string, args ...string) (io.ReadCloser, func() error, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		err = fmt.Errorf("%w: %s", err, bytes.TrimSpace(exitErr.Stderr))
	}
	return out, err
}

func (execRunner) Start(ctx context.Context, name string, args ...string) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start %s: %w", name, err)
	}
	return stdout, cmd.Wait, nil
}

// Device is one Android device or emulator reachable through adb.
type Device struct {
	serial  string
	adbPath string
	runner  Runner
}

// Option customises a Device.
type Option func(*Device)

// WithRunner replaces the process runner (tests).
func WithRunner(r Runner) Option {
	return func(d *Device) { d.runner = r }
}

// WithADBPath overrides the adb binary location.
func WithADBPath(path string) Option {
	return func(d *Device) {
		if path != "" {
			d.adbPath = path
		}
	}
}

// New returns a Device for serial. An empty serial targets the only attached
// device, as plain `adb` does.
func New(serial string, opts ...Option) *Device {
	d := &Device{serial: serial, adbPath: Path(), runner: execRunner{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Path returns the adb binary from $ANDROID_HOME, falling back to $PATH.
func Path() string {
	if home := os.Getenv("ANDROID_HOME"); home != "" {
		return filepath.Join(home, "platform-tools", "adb")
	}
	return "adb"
}

// Serial returns the serial number the device was created with.
func (d *Device) Serial() string { return d.serial }

func (d *Device) argv(args ...string) []string {
	if d.serial == "" {
		return args
	}
	return append([]string{"-s", d.serial}, args...)
}

func (d *Device) run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := d.runner.Run(ctx, d.adbPath, d.argv(args...)...)
	if err != nil {
		return out, fmt.Errorf("adb %s: %w\nOutput: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Shell runs a shell command on the device and returns its output.
func (d *Device) Shell(ctx context.Context, args ...string) (string, error) {
	out, err := d.run(ctx, append([]string{"shell"}, args...)...)
	return string(out), err
}

// ShellStream starts a shell command and returns its stdout as a stream.
// The returned wait function reports the command's exit status.
func (d *Device) ShellStream(ctx context.Context, args ...string) (io.ReadCloser, func() error, error) {
	r, wait, err := d.runner.Start(ctx, d.adbPath, d.argv(append([]string{"shell"}, args...)...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("adb shell %s: %w", strings.Join(args, " "), err)
	}
	return r, wait, nil
}

// Pull copies remote (device path) to local (host path).
func (d *Device) Pull(ctx context.Context, remote, local string) error {
	_, err := d.run(ctx, "pull", remote, local)
	return err
}

// Push copies local (host path) to remote (device path).
func (d *Device) Push(ctx context.Context, local, remote string) error {
	_, err := d.run(ctx, "push", local, remote)
	return err
}

// Install installs (or reinstalls) the APK at apkPath.
func (d *Device) Install(ctx context.Context, apkPath string) error {
	out, err := d.run(ctx, "install", "-r", apkPath)
	if err != nil {
		return fmt.Errorf("failed to install package: %w", err)
	}
	if !strings.Contains(string(out), "Success") {
		return fmt.Errorf("installation of %s failed: %s", apkPath, strings.TrimSpace(string(out)))
	}
	return nil
}

// Uninstall removes pkg. A package that is not installed is not an error.
func (d *Device) Uninstall(ctx context.Context, pkg string) error {
	out, err := d.run(ctx, "uninstall", pkg)
	if err != nil && strings.Contains(string(out), "Unknown package") {
		return nil
	}
	return err
}

// IsPackageInstalled reports whether pkg is installed. Only exact
// "package:<pkg>" lines count, so prefixes of other packages do not match.
func (d *Device) IsPackageInstalled(ctx context.Context, pkg string) (bool, error) {
	out, err := d.Shell(ctx, "pm", "list", "packages", pkg)
	if err != nil {
		return false, fmt.Errorf("failed to check package installation: %w", err)
	}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "package:"+pkg {
			return true, nil
		}
	}
	return false, nil
}

// PackageVersion returns the versionName of an installed package.
func (d *Device) PackageVersion(ctx context.Context, pkg string) (string, error) {
	out, err := d.Shell(ctx, "dumpsys", "package", pkg)
	if err != nil {
		return "", err
	}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, "versionName="); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPackageNotFound, pkg)
}

// Tap simulates a tap at (x, y).
func (d *Device) Tap(ctx context.Context, x, y int) error {
	_, err := d.Shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// Swipe drags from (x1, y1) to (x2, y2) over dur.
func (d *Device) Swipe(ctx context.Context, x1, y1, x2, y2 int, dur time.Duration) error {
	_, err := d.Shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(dur.Milliseconds(), 10))
	return err
}

// KeyEvent injects a single key event, e.g. KeycodeBack.
func (d *Device) KeyEvent(ctx context.Context, keycode string) error {
	_, err := d.Shell(ctx, "input", "keyevent", keycode)
	return err
}

// InputText types text into the focused view. Spaces are sent as %s, which
// `input text` decodes back to a space.
func (d *Device) InputText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	_, err := d.Shell(ctx, "input", "text", escapeInput(text))
	return err
}

func escapeInput(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ':
			b.WriteString("%s")
		case '\'', '"', '&', '<', '>', '(', ')', ';', '|', '*', '\\', '$', '`', '?', '~':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Screencap captures the screen as PNG bytes. exec-out avoids the newline
// translation that `adb shell` applies to binary output on older devices.
func (d *Device) Screencap(ctx context.Context) ([]byte, error) {
	out, err := d.run(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return out, nil
}

// Remove deletes a file on the device. Missing files are ignored.
func (d *Device) Remove(ctx context.Context, path string) error {
	_, err := d.Shell(ctx, "rm", "-f", path)
	return err
}

// Launch starts the launcher activity of pkg.
func (d *Device) Launch(ctx context.Context, pkg string) error {
	_, err := d.Shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return fmt.Errorf("failed to launch app %s: %w", pkg, err)
	}
	return nil
}

// ForceStop terminates pkg.
func (d *Device) ForceStop(ctx context.Context, pkg string) error {
	_, err := d.Shell(ctx, "am", "force-stop", pkg)
	if err != nil {
		return fmt.Errorf("failed to terminate app %s: %w", pkg, err)
	}
	return nil
}

// GetProp returns a system property value.
func (d *Device) GetProp(ctx context.Context, name string) (string, error) {
	out, err := d.Shell(ctx, "getprop", name)
	return strings.TrimSpace(out), err
}

// HomePackage resolves the package that handles the HOME intent, i.e. the
// active launcher.
func (d *Device) HomePackage(ctx context.Context) (string, error) {
	out, err := d.Shell(ctx, "cmd", "package", "resolve-activity", "--brief",
		"-a", "android.intent.action.MAIN", "-c", "android.intent.category.HOME")
	if err != nil {
		return "", err
	}
	// The last line is "<package>/<activity>".
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	pkg, _, ok := strings.Cut(last, "/")
	if !ok || pkg == "" {
		return "", fmt.Errorf("adb: cannot resolve home activity from %q", last)
	}
	return pkg, nil
}

// Info describes one line of `adb devices` output.
type Info struct {
	Serial string
	State  string
}

// Devices lists attached devices that are in the "device" state.
func Devices(ctx context.Context, opts ...Option) ([]Info, error) {
	d := New("", opts...)
	out, err := d.run(ctx, "devices")
	if err != nil {
		return nil, err
	}
	return parseDevices(string(out)), nil
}

func parseDevices(output string) []Info {
	var devices []Info
	lines := strings.Split(output, "\n")
	for i := 1; i < len(lines); i++ {
		parts := strings.Fields(strings.TrimSpace(lines[i]))
		if len(parts) == 2 && parts[1] == "device" {
			devices = append(devices, Info{Serial: parts[0], State: parts[1]})
		}
	}
	return devices
}
