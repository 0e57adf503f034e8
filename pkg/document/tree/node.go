package tree

import (
	"strings"

	"github.com/stateful/cellbook/internal/ulid"
)

// Node is an element of a document tree. The set of implementations is
// closed; switch on Kind or on the concrete type.
type Node interface {
	Key() string
	Kind() Kind
	Parent() Node
	Children() []Node
	TextContent() string

	base() *BaseNode
}

// BaseNode carries the identity and structure shared by all nodes.
type BaseNode struct {
	key      string
	parent   Node
	children []Node
}

func (b *BaseNode) Key() string {
	return b.key
}

func (b *BaseNode) Parent() Node {
	return b.parent
}

// Children returns a copy of the child list.
func (b *BaseNode) Children() []Node {
	if len(b.children) == 0 {
		return nil
	}
	result := make([]Node, len(b.children))
	copy(result, b.children)
	return result
}

func (b *BaseNode) ChildCount() int {
	return len(b.children)
}

func (b *BaseNode) FirstChild() Node {
	if len(b.children) == 0 {
		return nil
	}
	return b.children[0]
}

func (b *BaseNode) LastChild() Node {
	if len(b.children) == 0 {
		return nil
	}
	return b.children[len(b.children)-1]
}

func (b *BaseNode) base() *BaseNode {
	return b
}

// build assigns a fresh key to n and adopts children, which must be
// detached.
func build[T Node](n T, children []Node) T {
	b := n.base()
	b.key = ulid.GenerateID()
	for _, c := range children {
		if c == nil {
			continue
		}
		c.base().parent = n
		b.children = append(b.children, c)
	}
	return n
}

// IndexOf returns the position of n among its siblings, or -1.
func IndexOf(n Node) int {
	parent := n.Parent()
	if parent == nil {
		return -1
	}
	for i, c := range parent.base().children {
		if c == n {
			return i
		}
	}
	return -1
}

func NextSibling(n Node) Node {
	idx := IndexOf(n)
	if idx < 0 {
		return nil
	}
	siblings := n.Parent().base().children
	if idx+1 < len(siblings) {
		return siblings[idx+1]
	}
	return nil
}

func PreviousSibling(n Node) Node {
	idx := IndexOf(n)
	if idx <= 0 {
		return nil
	}
	return n.Parent().base().children[idx-1]
}

// TopLevel returns the ancestor of n (or n itself) whose parent is a
// shadow root. It returns nil for shadow roots and detached nodes.
func TopLevel(n Node) Node {
	for n != nil {
		parent := n.Parent()
		if parent == nil {
			return nil
		}
		if parent.Kind().IsShadowRoot() {
			return n
		}
		n = parent
	}
	return nil
}

// Closest returns n or its nearest ancestor with one of the given kinds.
func Closest(n Node, kinds ...Kind) Node {
	for ; n != nil; n = n.Parent() {
		for _, k := range kinds {
			if n.Kind() == k {
				return n
			}
		}
	}
	return nil
}

// IsAncestor reports whether ancestor is a strict ancestor of n.
func IsAncestor(ancestor, n Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p == ancestor {
			return true
		}
	}
	return false
}

// elementText concatenates the text of children and separates element
// children from whatever follows them with sep.
func elementText(n Node, sep string) string {
	children := n.base().children
	var sb strings.Builder
	for i, c := range children {
		sb.WriteString(c.TextContent())
		if i < len(children)-1 && c.Kind().IsElement() {
			sb.WriteString(sep)
		}
	}
	return sb.String()
}

// joinText concatenates the text of children separated by sep.
func joinText(n Node, sep string) string {
	children := n.base().children
	parts := make([]string, 0, len(children))
	for _, c := range children {
		parts = append(parts, c.TextContent())
	}
	return strings.Join(parts, sep)
}
