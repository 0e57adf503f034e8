package tree

type PointType int

const (
	// PointText addresses a character offset inside a Text node.
	PointText PointType = iota
	// PointElement addresses a child index inside an element.
	PointElement
)

type Point struct {
	Key    string
	Offset int
	Type   PointType
}

// Selection is a range between Anchor and Focus. Only collapsed
// selections are produced by this package.
type Selection struct {
	Anchor Point
	Focus  Point
}

func NewCollapsedSelection(p Point) *Selection {
	return &Selection{Anchor: p, Focus: p}
}

func (s *Selection) IsCollapsed() bool {
	return s.Anchor == s.Focus
}

func (s *Selection) clone() *Selection {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// endPoint returns the point right after the content of n.
func endPoint(n Node) Point {
	switch n := n.(type) {
	case *Text:
		return Point{Key: n.Key(), Offset: len(n.Value), Type: PointText}
	}
	if n.Kind().IsElement() {
		return Point{Key: n.Key(), Offset: len(n.base().children), Type: PointElement}
	}
	parent := n.Parent()
	if parent == nil {
		return Point{Key: n.Key(), Type: PointElement}
	}
	return Point{Key: parent.Key(), Offset: IndexOf(n) + 1, Type: PointElement}
}

// SelectEnd collapses the selection at the end of n.
func (tx *Tx) SelectEnd(n Node) {
	tx.SetSelection(NewCollapsedSelection(endPoint(n)))
}

func (tx *Tx) SetSelection(s *Selection) {
	tx.tree.selection = s.clone()
}

// Selection returns a copy of the current selection, or nil.
func (tx *Tx) Selection() *Selection {
	return tx.tree.selection.clone()
}

// SelectedNode resolves the anchor of the selection to a node. An element
// point resolves to the child at its offset, or to the last child when
// the offset is past the end.
func (tx *Tx) SelectedNode() Node {
	sel := tx.tree.selection
	if sel == nil {
		return nil
	}
	n := tx.Node(sel.Anchor.Key)
	if n == nil || sel.Anchor.Type != PointElement {
		return n
	}
	children := n.base().children
	switch {
	case len(children) == 0:
		return n
	case sel.Anchor.Offset < len(children):
		return children[max(sel.Anchor.Offset, 0)]
	default:
		return children[len(children)-1]
	}
}

// shiftSelection keeps an element point on parent pointing at the same
// child after a child was inserted (delta 1) or removed (delta -1) at idx.
func (tx *Tx) shiftSelection(parent Node, idx, delta int) {
	sel := tx.tree.selection
	if sel == nil {
		return
	}
	shift := func(p *Point) {
		if p.Type != PointElement || p.Key != parent.Key() {
			return
		}
		if idx < p.Offset {
			p.Offset += delta
		}
	}
	shift(&sel.Anchor)
	shift(&sel.Focus)
}

// collapseSelection moves points inside removed onto its position in
// parent.
func (tx *Tx) collapseSelection(removed, parent Node, idx int) {
	sel := tx.tree.selection
	if sel == nil {
		return
	}
	inside := func(p Point) bool {
		n := tx.Node(p.Key)
		return n != nil && (n == removed || IsAncestor(removed, n))
	}
	if inside(sel.Anchor) || inside(sel.Focus) {
		tx.tree.selection = NewCollapsedSelection(Point{Key: parent.Key(), Offset: idx, Type: PointElement})
	}
}
