// Package tree implements an in-memory rich document: typed nodes, atomic
// update transactions, a selection, a command bus and mutation listeners.
package tree

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrReadOnly     = errors.New("read-only transaction")
)

type MutationType int

const (
	MutationCreated MutationType = iota + 1
	MutationUpdated
	MutationDestroyed
)

func (t MutationType) String() string {
	switch t {
	case MutationCreated:
		return "created"
	case MutationUpdated:
		return "updated"
	case MutationDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Mutation describes what happened to one node during a committed update.
// Node is detached for MutationDestroyed.
type Mutation struct {
	Key  string
	Kind Kind
	Type MutationType
	Node Node
}

type MutationListener func([]Mutation)

type Command string

// CommandHandler handles a dispatched command inside the dispatching
// transaction and reports whether it did.
type CommandHandler func(tx *Tx, payload any) bool

type Option func(*Tree)

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tree) {
		t.logger = logger
	}
}

// Tree is a document. All reads and writes go through Read and Update,
// which serialise access.
type Tree struct {
	mu        sync.RWMutex
	root      *Root
	index     map[string]Node
	selection *Selection

	hooksMu      sync.RWMutex
	listeners    map[int]MutationListener
	nextListener int
	commands     map[Command][]*commandEntry
	nextCommand  int

	logger *zap.Logger
}

type commandEntry struct {
	id      int
	handler CommandHandler
}

func New(opts ...Option) *Tree {
	t := &Tree{
		root:      newRoot(),
		index:     make(map[string]Node),
		listeners: make(map[int]MutationListener),
		commands:  make(map[Command][]*commandEntry),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.index[t.root.Key()] = t.root
	return t
}

// Update runs fn in a write transaction. If fn returns an error (or
// panics) every structural change it made is undone and no mutation is
// reported. Listeners run after the lock is released and before Update
// returns.
func (t *Tree) Update(fn func(tx *Tx) error) error {
	mutations, err := t.update(fn)
	if err != nil {
		return err
	}
	t.notify(mutations)
	return nil
}

func (t *Tree) update(fn func(tx *Tx) error) ([]Mutation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := newTx(t, false)
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return nil, err
	}
	return tx.commit(), nil
}

// Read runs fn in a read-only transaction.
func (t *Tree) Read(fn func(tx *Tx) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(newTx(t, true))
}

// DispatchCommand dispatches cmd in its own update transaction.
func (t *Tree) DispatchCommand(cmd Command, payload any) bool {
	var handled bool
	_ = t.Update(func(tx *Tx) error {
		handled = tx.DispatchCommand(cmd, payload)
		return nil
	})
	return handled
}

// RegisterCommand adds a handler for cmd. Handlers registered later run
// first. The returned function unregisters it.
func (t *Tree) RegisterCommand(cmd Command, handler CommandHandler) func() {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()

	t.nextCommand++
	entry := &commandEntry{id: t.nextCommand, handler: handler}
	t.commands[cmd] = append(t.commands[cmd], entry)

	return func() {
		t.hooksMu.Lock()
		defer t.hooksMu.Unlock()
		t.commands[cmd] = slices.DeleteFunc(t.commands[cmd], func(e *commandEntry) bool {
			return e.id == entry.id
		})
	}
}

func (t *Tree) handlers(cmd Command) []CommandHandler {
	t.hooksMu.RLock()
	defer t.hooksMu.RUnlock()

	entries := t.commands[cmd]
	result := make([]CommandHandler, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		result = append(result, entries[i].handler)
	}
	return result
}

// RegisterMutationListener adds l and returns a function removing it.
func (t *Tree) RegisterMutationListener(l MutationListener) func() {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()

	t.nextListener++
	id := t.nextListener
	t.listeners[id] = l

	return func() {
		t.hooksMu.Lock()
		defer t.hooksMu.Unlock()
		delete(t.listeners, id)
	}
}

func (t *Tree) notify(mutations []Mutation) {
	if len(mutations) == 0 {
		return
	}

	t.hooksMu.RLock()
	ids := make([]int, 0, len(t.listeners))
	for id := range t.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]MutationListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, t.listeners[id])
	}
	t.hooksMu.RUnlock()

	t.logger.Debug("tree updated", zap.Int("mutations", len(mutations)))

	for _, l := range listeners {
		l(mutations)
	}
}

// Selection returns a copy of the current selection, or nil.
func (t *Tree) Selection() *Selection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selection.clone()
}

func (t *Tree) attached(n Node) bool {
	return n != nil && t.index[n.Key()] == n
}

// link inserts n as the idx-th child of parent.
func (t *Tree) link(parent Node, idx int, n Node) {
	pb := parent.base()
	n.base().parent = parent
	pb.children = slices.Insert(pb.children, idx, n)
	if t.attached(parent) {
		_ = Walk(n, func(c Node, entering bool) (WalkStatus, error) {
			if entering {
				t.index[c.Key()] = c
			}
			return WalkContinue, nil
		})
	}
}

// unlink detaches n from its parent and returns where it was.
func (t *Tree) unlink(n Node) (Node, int) {
	parent := n.Parent()
	if parent == nil {
		return nil, -1
	}
	idx := IndexOf(n)
	if t.attached(n) {
		_ = Walk(n, func(c Node, entering bool) (WalkStatus, error) {
			if entering {
				delete(t.index, c.Key())
			}
			return WalkContinue, nil
		})
	}
	pb := parent.base()
	pb.children = slices.Delete(pb.children, idx, idx+1)
	n.base().parent = nil
	return parent, idx
}
