package uiauto

import (
	"encoding/xml"
	"fmt"
	"image"
	"strings"
)

// Node is one view in the window hierarchy.
type Node struct {
	Text        string
	ResourceID  string
	Class       string
	Package     string
	ContentDesc string
	Enabled     bool
	Clickable   bool
	Scrollable  bool
	Focused     bool
	Checked     bool
	Selected    bool
	Bounds      image.Rectangle
	Children    []*Node
}

// Center returns the midpoint of the node's bounds.
func (n *Node) Center() image.Point {
	return image.Pt((n.Bounds.Min.X+n.Bounds.Max.X)/2, (n.Bounds.Min.Y+n.Bounds.Max.Y)/2)
}

// Walk visits n and its descendants in document order until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

func (n *Node) String() string {
	var parts []string
	if n.ResourceID != "" {
		parts = append(parts, "res="+n.ResourceID)
	}
	if n.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", n.Text))
	}
	if n.ContentDesc != "" {
		parts = append(parts, fmt.Sprintf("desc=%q", n.ContentDesc))
	}
	parts = append(parts, "bounds="+formatBounds(n.Bounds))
	return "Node{" + strings.Join(parts, " ") + "}"
}

type xmlNode struct {
	Text        string    `xml:"text,attr"`
	ResourceID  string    `xml:"resource-id,attr"`
	Class       string    `xml:"class,attr"`
	Package     string    `xml:"package,attr"`
	ContentDesc string    `xml:"content-desc,attr"`
	Enabled     string    `xml:"enabled,attr"`
	Clickable   string    `xml:"clickable,attr"`
	Scrollable  string    `xml:"scrollable,attr"`
	Focused     string    `xml:"focused,attr"`
	Checked     string    `xml:"checked,attr"`
	Selected    string    `xml:"selected,attr"`
	Bounds      string    `xml:"bounds,attr"`
	Nodes       []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

// ParseHierarchy decodes a `uiautomator dump` document. The returned root is
// a synthetic node whose children are the top-level windows.
func ParseHierarchy(data string) (*Node, error) {
	var h xmlHierarchy
	if err := xml.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("uiauto: parse hierarchy: %w", err)
	}
	root := &Node{Enabled: true}
	for _, xn := range h.Nodes {
		n, err := convert(xn)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, n)
	}
	return root, nil
}

func convert(xn xmlNode) (*Node, error) {
	b, err := parseBounds(xn.Bounds)
	if err != nil {
		return nil, err
	}
	n := &Node{
		Text:        xn.Text,
		ResourceID:  xn.ResourceID,
		Class:       xn.Class,
		Package:     xn.Package,
		ContentDesc: xn.ContentDesc,
		Enabled:     xn.Enabled != "false",
		Clickable:   xn.Clickable == "true",
		Scrollable:  xn.Scrollable == "true",
		Focused:     xn.Focused == "true",
		Checked:     xn.Checked == "true",
		Selected:    xn.Selected == "true",
		Bounds:      b,
	}
	for _, c := range xn.Nodes {
		cn, err := convert(c)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, cn)
	}
	return n, nil
}

// parseBounds reads the "[left,top][right,bottom]" notation.
func parseBounds(s string) (image.Rectangle, error) {
	if s == "" {
		return image.Rectangle{}, nil
	}
	var x0, y0, x1, y1 int
	if _, err := fmt.Sscanf(s, "[%d,%d][%d,%d]", &x0, &y0, &x1, &y1); err != nil {
		return image.Rectangle{}, fmt.Errorf("uiauto: bad bounds %q: %w", s, err)
	}
	return image.Rect(x0, y0, x1, y1), nil
}

func formatBounds(r image.Rectangle) string {
	return fmt.Sprintf("[%d,%d][%d,%d]", r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}
