package tree

import (
	"github.com/pkg/errors"
)

// Tx is a transaction on a Tree. It is valid only inside the function
// passed to Update or Read.
type Tx struct {
	tree     *Tree
	readOnly bool

	undo      []func()
	selection *Selection

	touched   map[string]*touch
	order     []string
	attachLog []Node
}

type touch struct {
	node Node
	// attached at the start of the transaction
	was bool
}

func newTx(t *Tree, readOnly bool) *Tx {
	return &Tx{
		tree:      t,
		readOnly:  readOnly,
		selection: t.selection.clone(),
		touched:   make(map[string]*touch),
	}
}

func (tx *Tx) Root() *Root {
	return tx.tree.root
}

// Node returns the attached node with key, or nil.
func (tx *Tx) Node(key string) Node {
	return tx.tree.index[key]
}

// Attached reports whether n is part of the document.
func (tx *Tx) Attached(n Node) bool {
	return tx.tree.attached(n)
}

// Append adds nodes as the last children of parent. Nodes that already
// have a parent are moved.
func (tx *Tx) Append(parent Node, nodes ...Node) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := tx.checkInsert(parent, n); err != nil {
			return err
		}
		tx.detach(n)
		tx.attach(parent, len(parent.base().children), n)
	}
	return nil
}

// InsertBefore inserts nodes, in order, before ref.
func (tx *Tx) InsertBefore(ref Node, nodes ...Node) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	parent := ref.Parent()
	if parent == nil {
		return errors.Errorf("cannot insert before detached node %s", ref.Key())
	}
	for _, n := range nodes {
		if n == ref {
			return errors.Errorf("cannot insert node %s before itself", n.Key())
		}
		if err := tx.checkInsert(parent, n); err != nil {
			return err
		}
		tx.detach(n)
		tx.attach(parent, IndexOf(ref), n)
	}
	return nil
}

// InsertAfter inserts nodes, in order, after ref.
func (tx *Tx) InsertAfter(ref Node, nodes ...Node) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	parent := ref.Parent()
	if parent == nil {
		return errors.Errorf("cannot insert after detached node %s", ref.Key())
	}
	prev := ref
	for _, n := range nodes {
		if n == prev {
			return errors.Errorf("cannot insert node %s after itself", n.Key())
		}
		if err := tx.checkInsert(parent, n); err != nil {
			return err
		}
		tx.detach(n)
		tx.attach(parent, IndexOf(prev)+1, n)
		prev = n
	}
	return nil
}

// Remove detaches n and its subtree from the document.
func (tx *Tx) Remove(n Node) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	if n == nil || !tx.tree.attached(n) {
		return errors.WithStack(ErrNodeNotFound)
	}
	if n == Node(tx.tree.root) {
		return errors.New("cannot remove the root")
	}
	tx.detach(n)
	return nil
}

// MarkDirty reports n as updated on commit. Call it after changing the
// fields of an attached node.
func (tx *Tx) MarkDirty(n Node) {
	if tx.readOnly || !tx.tree.attached(n) {
		return
	}
	tx.touch(n, true)
}

// InsertAtSelection inserts nodes at the selection. An element point on a
// shadow root inserts at its offset; any other point inserts after the
// top-level block containing it. Without a usable selection nodes are
// appended to the root. The selection ends up after the inserted nodes.
func (tx *Tx) InsertAtSelection(nodes ...Node) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}

	var (
		parent Node = tx.tree.root
		idx         = len(tx.tree.root.children)
	)
	if sel := tx.tree.selection; sel != nil {
		if anchor := tx.Node(sel.Anchor.Key); anchor != nil {
			if sel.Anchor.Type == PointElement && anchor.Kind().IsShadowRoot() {
				parent = anchor
				idx = min(max(sel.Anchor.Offset, 0), len(anchor.base().children))
			} else if top := TopLevel(anchor); top != nil {
				parent = top.Parent()
				idx = IndexOf(top) + 1
			}
		}
	}

	for i, n := range nodes {
		if err := tx.checkInsert(parent, n); err != nil {
			return err
		}
		tx.detach(n)
		tx.attach(parent, min(idx+i, len(parent.base().children)), n)
	}

	last := nodes[len(nodes)-1]
	tx.SetSelection(NewCollapsedSelection(Point{
		Key:    parent.Key(),
		Offset: IndexOf(last) + 1,
		Type:   PointElement,
	}))
	return nil
}

// DispatchCommand runs the handlers of cmd, most recently registered
// first, until one reports it handled the command.
func (tx *Tx) DispatchCommand(cmd Command, payload any) bool {
	if tx.readOnly {
		return false
	}
	for _, h := range tx.tree.handlers(cmd) {
		if h(tx, payload) {
			return true
		}
	}
	return false
}

// CreatedMark returns a mark for CreatedSince.
func (tx *Tx) CreatedMark() int {
	return len(tx.attachLog)
}

// CreatedSince returns the nodes, in attachment order, that were attached
// after mark and were not part of the document when the transaction
// began.
func (tx *Tx) CreatedSince(mark int) []Node {
	if mark < 0 || mark > len(tx.attachLog) {
		mark = 0
	}
	seen := make(map[string]bool)
	var result []Node
	for _, n := range tx.attachLog[mark:] {
		key := n.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if t := tx.touched[key]; t != nil && !t.was && tx.tree.attached(n) {
			result = append(result, n)
		}
	}
	return result
}

func (tx *Tx) checkWrite() error {
	if tx.readOnly {
		return errors.WithStack(ErrReadOnly)
	}
	return nil
}

func (tx *Tx) checkInsert(parent, n Node) error {
	switch {
	case n == nil:
		return errors.New("cannot insert nil node")
	case n.Kind() == KindRoot:
		return errors.New("cannot insert a root node")
	case !parent.Kind().IsElement():
		return errors.Errorf("cannot insert into %s node %s", parent.Kind(), parent.Key())
	case n == parent || IsAncestor(n, parent):
		return errors.Errorf("cannot insert node %s into its own subtree", n.Key())
	}
	return nil
}

func (tx *Tx) attach(parent Node, idx int, n Node) {
	t := tx.tree
	t.link(parent, idx, n)
	tx.undo = append(tx.undo, func() { t.unlink(n) })
	tx.shiftSelection(parent, idx, 1)

	if t.attached(parent) {
		_ = Walk(n, func(c Node, entering bool) (WalkStatus, error) {
			if entering {
				tx.touch(c, false)
				tx.attachLog = append(tx.attachLog, c)
			}
			return WalkContinue, nil
		})
	}
}

func (tx *Tx) detach(n Node) {
	t := tx.tree
	parent := n.Parent()
	if parent == nil {
		return
	}
	idx := IndexOf(n)

	if t.attached(n) {
		_ = Walk(n, func(c Node, entering bool) (WalkStatus, error) {
			if entering {
				tx.touch(c, true)
			}
			return WalkContinue, nil
		})
		tx.collapseSelection(n, parent, idx)
	}

	t.unlink(n)
	tx.undo = append(tx.undo, func() { t.link(parent, idx, n) })
	tx.shiftSelection(parent, idx, -1)
}

func (tx *Tx) touch(n Node, was bool) {
	key := n.Key()
	if _, ok := tx.touched[key]; ok {
		return
	}
	tx.touched[key] = &touch{node: n, was: was}
	tx.order = append(tx.order, key)
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.tree.selection = tx.selection
}

func (tx *Tx) commit() []Mutation {
	var result []Mutation
	for _, key := range tx.order {
		t := tx.touched[key]
		now := tx.tree.attached(t.node)

		var typ MutationType
		switch {
		case !t.was && now:
			typ = MutationCreated
		case t.was && !now:
			typ = MutationDestroyed
		case t.was && now:
			typ = MutationUpdated
		default:
			continue
		}
		result = append(result, Mutation{Key: key, Kind: t.node.Kind(), Type: typ, Node: t.node})
	}
	return result
}
