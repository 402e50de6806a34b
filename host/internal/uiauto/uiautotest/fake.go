// Package uiautotest provides a scripted device whose screens are defined in
// Go, for testing code built on uiauto without a real device.
package uiautotest

import (
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/adb"
)

// Node is one view on a fake screen.
type Node struct {
	Text     string
	Res      string
	Desc     string
	Class    string
	Package  string
	Bounds   image.Rectangle
	Disabled bool
	// OnClick runs when a tap lands inside Bounds.
	OnClick func(d *Device)
}

// Device is a fake device. Taps, key events, typed text and launches are
// recorded; screens change through the On* hooks.
type Device struct {
	mu      sync.Mutex
	screens map[string][]*Node
	current string

	// Versions maps package names to versionName.
	Versions map[string]string
	// Home is returned by HomePackage.
	Home string

	OnKey    map[string]func(d *Device)
	OnSwipe  func(d *Device, x1, y1, x2, y2 int)
	OnLaunch func(d *Device, pkg string)

	taps     []image.Point
	keys     []string
	texts    []string
	swipes   int
	launched []string
	stopped  []string
	dumps    int
}

// New returns a fake showing an empty screen.
func New() *Device {
	return &Device{
		screens:  map[string][]*Node{"": nil},
		Versions: map[string]string{},
		OnKey:    map[string]func(*Device){},
	}
}

// AddScreen defines (or replaces) a named screen.
func (d *Device) AddScreen(name string, nodes ...*Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screens[name] = nodes
}

// Show switches to a named screen.
func (d *Device) Show(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.screens[name]; !ok {
		panic("uiautotest: unknown screen " + name)
	}
	d.current = name
}

// Current returns the name of the screen on display.
func (d *Device) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Find returns the first node on the current screen with the given resource
// id, or nil.
func (d *Device) Find(res string) *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.screens[d.current] {
		if n.Res == res {
			return n
		}
	}
	return nil
}

// Taps returns the recorded tap points.
func (d *Device) Taps() []image.Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]image.Point(nil), d.taps...)
}

// Keys returns the recorded key codes.
func (d *Device) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.keys...)
}

// Texts returns typed text.
func (d *Device) Texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

// Swipes returns the number of swipes.
func (d *Device) Swipes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.swipes
}

// Launched returns launched packages in order.
func (d *Device) Launched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.launched...)
}

// Stopped returns force-stopped packages in order.
func (d *Device) Stopped() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.stopped...)
}

// Dumps returns the number of hierarchy dumps served.
func (d *Device) Dumps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dumps
}

// Shell answers the uiautomator dump protocol.
func (d *Device) Shell(_ context.Context, args ...string) (string, error) {
	line := strings.Join(args, " ")
	switch {
	case strings.HasPrefix(line, "uiautomator dump"):
		return "UI hierchary dumped to: /sdcard/window_dump.xml\n", nil
	case strings.HasPrefix(line, "cat "):
		d.mu.Lock()
		defer d.mu.Unlock()
		d.dumps++
		return render(d.screens[d.current]), nil
	}
	return "", fmt.Errorf("uiautotest: unexpected shell %q", line)
}

// Tap runs OnClick of the topmost node containing (x, y).
func (d *Device) Tap(_ context.Context, x, y int) error {
	d.mu.Lock()
	p := image.Pt(x, y)
	d.taps = append(d.taps, p)
	var hit *Node
	for _, n := range d.screens[d.current] {
		if p.In(n.Bounds) && n.OnClick != nil && !n.Disabled {
			hit = n
		}
	}
	d.mu.Unlock()
	if hit != nil {
		hit.OnClick(d)
	}
	return nil
}

// Swipe runs OnSwipe.
func (d *Device) Swipe(_ context.Context, x1, y1, x2, y2 int, _ time.Duration) error {
	d.mu.Lock()
	d.swipes++
	fn := d.OnSwipe
	d.mu.Unlock()
	if fn != nil {
		fn(d, x1, y1, x2, y2)
	}
	return nil
}

// KeyEvent runs the OnKey hook registered for keycode.
func (d *Device) KeyEvent(_ context.Context, keycode string) error {
	d.mu.Lock()
	d.keys = append(d.keys, keycode)
	fn := d.OnKey[keycode]
	d.mu.Unlock()
	if fn != nil {
		fn(d)
	}
	return nil
}

// InputText records text.
func (d *Device) InputText(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return nil
}

// PackageVersion returns Versions[pkg] or adb.ErrPackageNotFound.
func (d *Device) PackageVersion(_ context.Context, pkg string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.Versions[pkg]
	if !ok {
		return "", fmt.Errorf("%w: %s", adb.ErrPackageNotFound, pkg)
	}
	return v, nil
}

// Launch records pkg and runs OnLaunch.
func (d *Device) Launch(_ context.Context, pkg string) error {
	d.mu.Lock()
	d.launched = append(d.launched, pkg)
	fn := d.OnLaunch
	d.mu.Unlock()
	if fn != nil {
		fn(d, pkg)
	}
	return nil
}

// ForceStop records pkg.
func (d *Device) ForceStop(_ context.Context, pkg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, pkg)
	return nil
}

// HomePackage returns Home.
func (d *Device) HomePackage(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Home, nil
}

func render(nodes []*Node) string {
	var b strings.Builder
	b.WriteString(`<?xml version='1.0' encoding='UTF-8' standalone='yes' ?><hierarchy rotation="0">`)
	b.WriteString(`<node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="" content-desc="" enabled="true" bounds="[0,0][1080,1920]">`)
	for i, n := range nodes {
		fmt.Fprintf(&b, `<node index="%d" text="%s" resource-id="%s" class="%s" package="%s" content-desc="%s" clickable="%t" enabled="%t" bounds="[%d,%d][%d,%d]" />`,
			i, esc(n.Text), esc(n.Res), esc(n.Class), esc(n.Package), esc(n.Desc),
			n.OnClick != nil, !n.Disabled,
			n.Bounds.Min.X, n.Bounds.Min.Y, n.Bounds.Max.X, n.Bounds.Max.Y)
	}
	b.WriteString(`</node></hierarchy>`)
	return b.String()
}

func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
