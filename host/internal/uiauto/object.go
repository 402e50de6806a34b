package uiauto

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Direction is a scroll direction, named for where the content moves into
// view from.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Object is a view matched by a selector.
type Object struct {
	d    *Device
	sel  *Selector
	node *Node
}

// Text returns the view text.
func (o *Object) Text() string { return o.node.Text }

// ResourceName returns the fully-qualified resource id.
func (o *Object) ResourceName() string { return o.node.ResourceID }

// ContentDesc returns the content description.
func (o *Object) ContentDesc() string { return o.node.ContentDesc }

// IsEnabled reports the enabled flag at the last resolution.
func (o *Object) IsEnabled() bool { return o.node.Enabled }

// Bounds returns the on-screen rectangle.
func (o *Object) Bounds() image.Rectangle { return o.node.Bounds }

// Node returns the matched node.
func (o *Object) Node() *Node { return o.node }

func (o *Object) String() string { return o.sel.String() }

// Refresh re-resolves the selector against the current screen.
func (o *Object) Refresh(ctx context.Context) error {
	root, err := o.d.Hierarchy(ctx)
	if err != nil {
		return err
	}
	n := o.sel.find(root)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, o.sel)
	}
	o.node = n
	return nil
}

// Click taps the centre of the view.
func (o *Object) Click(ctx context.Context) error {
	c := o.node.Center()
	if err := o.d.ctl.Tap(ctx, c.X, c.Y); err != nil {
		return fmt.Errorf("uiauto: click %s: %w", o.sel, err)
	}
	return nil
}

// SetText focuses the view, clears the current text and types text.
func (o *Object) SetText(ctx context.Context, text string) error {
	if err := o.Click(ctx); err != nil {
		return err
	}
	if o.node.Text != "" {
		if err := o.d.ctl.KeyEvent(ctx, "KEYCODE_MOVE_END"); err != nil {
			return fmt.Errorf("uiauto: set text %s: %w", o.sel, err)
		}
		for range []rune(o.node.Text) {
			if err := o.d.ctl.KeyEvent(ctx, "KEYCODE_DEL"); err != nil {
				return fmt.Errorf("uiauto: set text %s: %w", o.sel, err)
			}
		}
	}
	if text == "" {
		return nil
	}
	if err := o.d.ctl.InputText(ctx, text); err != nil {
		return fmt.Errorf("uiauto: set text %s: %w", o.sel, err)
	}
	return nil
}

// Scroll swipes inside the view so that content from dir moves into view,
// covering pct (0..1] of the view's extent. It reports whether the screen
// changed as a result, which is false once the end has been reached.
func (o *Object) Scroll(ctx context.Context, dir Direction, pct float64) (bool, error) {
	if pct <= 0 || pct > 1 {
		return false, fmt.Errorf("uiauto: scroll %s: percent %v out of range", o.sel, pct)
	}
	before, err := o.d.dump(ctx)
	if err != nil {
		return false, err
	}
	p0, p1 := swipePoints(o.node.Bounds, dir, pct)
	if err := o.d.Swipe(ctx, p0, p1); err != nil {
		return false, fmt.Errorf("uiauto: scroll %s: %w", o.sel, err)
	}
	after, err := o.d.dump(ctx)
	if err != nil {
		return false, err
	}
	if root, err := ParseHierarchy(after); err == nil {
		if n := o.sel.find(root); n != nil {
			o.node = n
		}
	}
	return strings.TrimSpace(before) != strings.TrimSpace(after), nil
}

// swipePoints returns a gesture centred in r. Revealing content below means
// dragging the finger upward.
func swipePoints(r image.Rectangle, dir Direction, pct float64) (image.Point, image.Point) {
	c := image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
	dy := int(float64(r.Dy()) * pct / 2)
	dx := int(float64(r.Dx()) * pct / 2)
	switch dir {
	case Down:
		return image.Pt(c.X, c.Y+dy), image.Pt(c.X, c.Y-dy)
	case Up:
		return image.Pt(c.X, c.Y-dy), image.Pt(c.X, c.Y+dy)
	case Right:
		return image.Pt(c.X+dx, c.Y), image.Pt(c.X-dx, c.Y)
	default:
		return image.Pt(c.X-dx, c.Y), image.Pt(c.X+dx, c.Y)
	}
}
