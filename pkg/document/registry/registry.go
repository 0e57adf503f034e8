// Package registry correlates the input and output nodes of executable
// cells within one document.
package registry

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/pkg/document/tree"
)

// NewUUID returns a correlation identifier for a new input or output node.
func NewUUID() string {
	return uuid.NewString()
}

// Registry holds the input/output correlation of one document. It is
// populated and pruned from the tree's mutation notifications.
type Registry struct {
	mu sync.RWMutex

	inputToOutputKey  map[string]string
	inputToCodeKey    map[string]string
	inputToOutputUUID map[string]string
	outputToInputUUID map[string]string
	outputToOutputKey map[string]string

	logger *zap.Logger
}

type Option func(*Registry)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		inputToOutputKey:  make(map[string]string),
		inputToCodeKey:    make(map[string]string),
		inputToOutputUUID: make(map[string]string),
		outputToInputUUID: make(map[string]string),
		outputToOutputKey: make(map[string]string),
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach registers the nodes already in doc and follows its mutations.
// The returned function detaches the registry.
func (r *Registry) Attach(doc *tree.Tree) func() {
	_ = doc.Read(func(tx *tree.Tx) error {
		_ = tree.Walk(tx.Root(), func(n tree.Node, entering bool) (tree.WalkStatus, error) {
			if entering {
				r.register(n)
			}
			return tree.WalkContinue, nil
		})
		return nil
	})

	return doc.RegisterMutationListener(func(mutations []tree.Mutation) {
		var orphans []string
		for _, m := range mutations {
			switch m.Type {
			case tree.MutationCreated:
				r.register(m.Node)
			case tree.MutationDestroyed:
				if key := r.unregister(m.Node); key != "" {
					orphans = append(orphans, key)
				}
			}
		}
		if len(orphans) == 0 {
			return
		}

		// An input took its output with it.
		err := doc.Update(func(tx *tree.Tx) error {
			for _, key := range orphans {
				if n := tx.Node(key); n != nil {
					if err := tx.Remove(n); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			r.logger.Warn("failed to remove orphaned outputs", zap.Error(err))
		}
	})
}

func (r *Registry) register(n tree.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch n := n.(type) {
	case *tree.JupyterInput:
		if n.UUID == "" {
			return
		}
		if key, ok := r.inputToCodeKey[n.UUID]; ok && key != n.Key() {
			r.logger.Warn("duplicate input uuid; keeping first registration",
				zap.String("uuid", n.UUID), zap.String("key", key), zap.String("duplicate", n.Key()))
			return
		}
		r.inputToCodeKey[n.UUID] = n.Key()
	case *tree.JupyterOutput:
		if n.InputUUID == "" || n.OutputUUID == "" {
			return
		}
		if key, ok := r.outputToOutputKey[n.OutputUUID]; ok && key != n.Key() {
			r.logger.Warn("duplicate output uuid; keeping first registration",
				zap.String("uuid", n.OutputUUID), zap.String("key", key), zap.String("duplicate", n.Key()))
			return
		}
		if key, ok := r.inputToOutputKey[n.InputUUID]; ok && key != n.Key() {
			r.logger.Warn("input already has an output; keeping first registration",
				zap.String("uuid", n.InputUUID), zap.String("key", key), zap.String("duplicate", n.Key()))
			return
		}
		r.inputToOutputKey[n.InputUUID] = n.Key()
		r.inputToOutputUUID[n.InputUUID] = n.OutputUUID
		r.outputToInputUUID[n.OutputUUID] = n.InputUUID
		r.outputToOutputKey[n.OutputUUID] = n.Key()
	}
}

// unregister prunes the entries of a destroyed node. For an input it
// returns the key of the output that must go with it.
func (r *Registry) unregister(n tree.Node) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch n := n.(type) {
	case *tree.JupyterInput:
		if r.inputToCodeKey[n.UUID] != n.Key() {
			return ""
		}
		delete(r.inputToCodeKey, n.UUID)

		outputKey := r.inputToOutputKey[n.UUID]
		if outputUUID, ok := r.inputToOutputUUID[n.UUID]; ok {
			delete(r.outputToInputUUID, outputUUID)
			delete(r.outputToOutputKey, outputUUID)
		}
		delete(r.inputToOutputKey, n.UUID)
		delete(r.inputToOutputUUID, n.UUID)
		return outputKey
	case *tree.JupyterOutput:
		if r.outputToOutputKey[n.OutputUUID] != n.Key() {
			return ""
		}
		delete(r.outputToOutputKey, n.OutputUUID)
		delete(r.outputToInputUUID, n.OutputUUID)
		if r.inputToOutputKey[n.InputUUID] == n.Key() {
			delete(r.inputToOutputKey, n.InputUUID)
			delete(r.inputToOutputUUID, n.InputUUID)
		}
	}
	return ""
}

// OutputKey returns the key of the output node paired with the input
// whose UUID is inputUUID.
func (r *Registry) OutputKey(inputUUID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.inputToOutputKey[inputUUID]
	return key, ok
}

// InputKey returns the key of the input node with inputUUID.
func (r *Registry) InputKey(inputUUID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.inputToCodeKey[inputUUID]
	return key, ok
}

func (r *Registry) OutputUUID(inputUUID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.inputToOutputUUID[inputUUID]
	return id, ok
}

func (r *Registry) InputUUID(outputUUID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.outputToInputUUID[outputUUID]
	return id, ok
}

// Len returns the number of correlated inputs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inputToCodeKey)
}

// PairedOutput returns the output node paired with input. It consults the
// registry first and falls back to the nearest following sibling output
// carrying the input's UUID. A nil registry only scans siblings.
func (r *Registry) PairedOutput(tx *tree.Tx, input *tree.JupyterInput) *tree.JupyterOutput {
	if r != nil {
		if key, ok := r.OutputKey(input.UUID); ok {
			if out, ok := tx.Node(key).(*tree.JupyterOutput); ok {
				return out
			}
		}
	}
	for n := tree.NextSibling(input); n != nil; n = tree.NextSibling(n) {
		if out, ok := n.(*tree.JupyterOutput); ok && out.InputUUID == input.UUID {
			return out
		}
	}
	return nil
}
