package uiauto

import (
	"fmt"
	"regexp"
	"strings"
)

// Selector matches nodes in the hierarchy. All criteria must hold.
type Selector struct {
	preds []func(*Node) bool
	desc  []string
}

// SelectorOption adds one criterion to a Selector.
type SelectorOption func(*Selector)

// NewSelector builds a Selector from opts.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Selector) add(desc string, p func(*Node) bool) {
	s.preds = append(s.preds, p)
	s.desc = append(s.desc, desc)
}

// Matches reports whether n satisfies every criterion.
func (s *Selector) Matches(n *Node) bool {
	for _, p := range s.preds {
		if !p(n) {
			return false
		}
	}
	return true
}

func (s *Selector) String() string {
	return "{" + strings.Join(s.desc, " ") + "}"
}

// Text matches nodes whose text equals text.
func Text(text string) SelectorOption {
	return func(s *Selector) {
		s.add(fmt.Sprintf("text=%q", text), func(n *Node) bool { return n.Text == text })
	}
}

// TextMatches matches nodes whose entire text matches re. Use (?i) for
// case-insensitive matching.
func TextMatches(re *regexp.Regexp) SelectorOption {
	full := regexp.MustCompile(`^(?:` + re.String() + `)$`)
	return func(s *Selector) {
		s.add("text~"+re.String(), func(n *Node) bool { return full.MatchString(n.Text) })
	}
}

// TextContains matches nodes whose text contains sub.
func TextContains(sub string) SelectorOption {
	return func(s *Selector) {
		s.add(fmt.Sprintf("text*=%q", sub), func(n *Node) bool { return strings.Contains(n.Text, sub) })
	}
}

// Res matches the fully-qualified resource name "<pkg>:id/<id>".
func Res(pkg, id string) SelectorOption {
	return ResourceID(pkg + ":id/" + id)
}

// ResourceID matches a fully-qualified resource name.
func ResourceID(name string) SelectorOption {
	return func(s *Selector) {
		s.add("res="+name, func(n *Node) bool { return n.ResourceID == name })
	}
}

// Desc matches nodes whose content description equals desc.
func Desc(desc string) SelectorOption {
	return func(s *Selector) {
		s.add(fmt.Sprintf("desc=%q", desc), func(n *Node) bool { return n.ContentDesc == desc })
	}
}

// DescContains matches nodes whose content description contains sub.
func DescContains(sub string) SelectorOption {
	return func(s *Selector) {
		s.add(fmt.Sprintf("desc*=%q", sub), func(n *Node) bool { return strings.Contains(n.ContentDesc, sub) })
	}
}

// ClassName matches the view class, e.g. "android.widget.Button".
func ClassName(class string) SelectorOption {
	return func(s *Selector) {
		s.add("class="+class, func(n *Node) bool { return n.Class == class })
	}
}

// Package matches the owning application package.
func Package(pkg string) SelectorOption {
	return func(s *Selector) {
		s.add("pkg="+pkg, func(n *Node) bool { return n.Package == pkg })
	}
}

// find returns the first node in document order matching s.
func (s *Selector) find(root *Node) *Node {
	var found *Node
	root.Walk(func(n *Node) bool {
		if n != root && s.Matches(n) {
			found = n
			return false
		}
		return true
	})
	return found
}
