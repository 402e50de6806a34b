package uiauto

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
)

// ErrNotFound is returned by FindObject when no view matches.
var ErrNotFound = errors.New("uiauto: object not found")

// DumpPath is where `uiautomator dump` writes the hierarchy on the device.
const DumpPath = "/sdcard/window_dump.xml"

const (
	defaultPollInterval = 250 * time.Millisecond
	swipeDuration       = 300 * time.Millisecond
	dumpAttempts        = 3
)

// Controller is the device surface UI automation needs. *adb.Device
// satisfies it.
type Controller interface {
	Shell(ctx context.Context, args ...string) (string, error)
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, dur time.Duration) error
	KeyEvent(ctx context.Context, keycode string) error
	InputText(ctx context.Context, text string) error
}

// Device finds and manipulates views on one device.
type Device struct {
	ctl  Controller
	poll time.Duration
}

// Option customises a Device.
type Option func(*Device)

// WithPollInterval sets how often Wait* methods re-read the hierarchy.
func WithPollInterval(d time.Duration) Option {
	return func(dev *Device) {
		if d > 0 {
			dev.poll = d
		}
	}
}

// New returns a Device driving ctl.
func New(ctl Controller, opts ...Option) *Device {
	d := &Device{ctl: ctl, poll: defaultPollInterval}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Controller returns the underlying device controller.
func (d *Device) Controller() Controller { return d.ctl }

// dump returns the raw hierarchy XML. uiautomator occasionally fails with
// "could not get idle state" while animations run, so a few attempts are made.
func (d *Device) dump(ctx context.Context) (string, error) {
	var lastErr error
	for i := 0; i < dumpAttempts; i++ {
		out, err := d.ctl.Shell(ctx, "uiautomator", "dump", DumpPath)
		if err == nil && !strings.Contains(out, "ERROR") {
			doc, err := d.ctl.Shell(ctx, "cat", DumpPath)
			if err != nil {
				return "", fmt.Errorf("uiauto: read dump: %w", err)
			}
			return doc, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New(strings.TrimSpace(out))
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("uiauto: dump hierarchy: %w", lastErr)
}

// Hierarchy returns the current window hierarchy.
func (d *Device) Hierarchy(ctx context.Context) (*Node, error) {
	raw, err := d.dump(ctx)
	if err != nil {
		return nil, err
	}
	return ParseHierarchy(raw)
}

// FindObject returns the first view matching opts, or ErrNotFound.
func (d *Device) FindObject(ctx context.Context, opts ...SelectorOption) (*Object, error) {
	sel := NewSelector(opts...)
	root, err := d.Hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	n := sel.find(root)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return &Object{d: d, sel: sel, node: n}, nil
}

// HasObject reports whether a view matching opts is on screen.
func (d *Device) HasObject(ctx context.Context, opts ...SelectorOption) (bool, error) {
	_, err := d.FindObject(ctx, opts...)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// WaitForObject polls until a view matching opts appears or timeout elapses.
// It returns a nil Object and a nil error when the view never appears.
func (d *Device) WaitForObject(ctx context.Context, timeout time.Duration, opts ...SelectorOption) (*Object, error) {
	sel := NewSelector(opts...)
	var obj *Object
	_, err := d.pollUntil(ctx, timeout, func(root *Node) bool {
		if n := sel.find(root); n != nil {
			obj = &Object{d: d, sel: sel, node: n}
			return true
		}
		return false
	})
	return obj, err
}

// WaitForExists reports whether a view matching opts appeared within timeout.
func (d *Device) WaitForExists(ctx context.Context, timeout time.Duration, opts ...SelectorOption) (bool, error) {
	sel := NewSelector(opts...)
	return d.pollUntil(ctx, timeout, func(root *Node) bool { return sel.find(root) != nil })
}

// WaitUntilGone reports whether every view matching opts disappeared within
// timeout.
func (d *Device) WaitUntilGone(ctx context.Context, timeout time.Duration, opts ...SelectorOption) (bool, error) {
	sel := NewSelector(opts...)
	return d.pollUntil(ctx, timeout, func(root *Node) bool { return sel.find(root) == nil })
}

// WaitForIdle waits until two consecutive hierarchy dumps are identical.
// Reaching timeout is not an error.
func (d *Device) WaitForIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	prev, err := d.dump(ctx)
	if err != nil {
		return err
	}
	for time.Now().Before(deadline) {
		if err := d.sleep(ctx); err != nil {
			return err
		}
		cur, err := d.dump(ctx)
		if err != nil {
			return err
		}
		if cur == prev {
			return nil
		}
		prev = cur
	}
	return nil
}

// pollUntil evaluates cond against fresh hierarchies until it holds or
// timeout elapses. cond is always evaluated at least once.
func (d *Device) pollUntil(ctx context.Context, timeout time.Duration, cond func(*Node) bool) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		root, err := d.Hierarchy(ctx)
		if err != nil {
			return false, err
		}
		if cond(root) {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		if err := d.sleep(ctx); err != nil {
			return false, err
		}
	}
}

func (d *Device) sleep(ctx context.Context) error {
	t := time.NewTimer(d.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PressBack sends KEYCODE_BACK.
func (d *Device) PressBack(ctx context.Context) error {
	return d.ctl.KeyEvent(ctx, "KEYCODE_BACK")
}

// PressEnter sends KEYCODE_ENTER.
func (d *Device) PressEnter(ctx context.Context) error {
	return d.ctl.KeyEvent(ctx, "KEYCODE_ENTER")
}

// PressHome sends KEYCODE_HOME.
func (d *Device) PressHome(ctx context.Context) error {
	return d.ctl.KeyEvent(ctx, "KEYCODE_HOME")
}

// Click taps the screen at (x, y).
func (d *Device) Click(ctx context.Context, x, y int) error {
	if err := d.ctl.Tap(ctx, x, y); err != nil {
		return fmt.Errorf("uiauto: click (%d,%d): %w", x, y, err)
	}
	return nil
}

// Swipe drags from p0 to p1.
func (d *Device) Swipe(ctx context.Context, p0, p1 image.Point) error {
	return d.ctl.Swipe(ctx, p0.X, p0.Y, p1.X, p1.Y, swipeDuration)
}
