// Package document ties a tree, its registry and the block commands into
// one editable document.
package document

import (
	"sync"

	"go.uber.org/zap"

	"github.com/stateful/cellbook/pkg/document/plugins"
	"github.com/stateful/cellbook/pkg/document/registry"
	"github.com/stateful/cellbook/pkg/document/tree"
)

type Option func(*Document)

func WithLogger(logger *zap.Logger) Option {
	return func(d *Document) {
		d.logger = logger
	}
}

type Document struct {
	Tree     *tree.Tree
	Registry *registry.Registry

	logger    *zap.Logger
	closeOnce sync.Once
	teardown  []func()
}

// New returns an empty document with the block commands registered and
// the registry following its mutations.
func New(opts ...Option) *Document {
	d := &Document{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}

	d.Tree = tree.New(tree.WithLogger(d.logger))
	d.Registry = registry.New(registry.WithLogger(d.logger))
	d.teardown = []func(){
		d.Registry.Attach(d.Tree),
		plugins.Register(d.Tree, d.logger),
	}
	return d
}

// Close detaches the registry and unregisters the commands.
func (d *Document) Close() {
	d.closeOnce.Do(func() {
		for i := len(d.teardown) - 1; i >= 0; i-- {
			d.teardown[i]()
		}
	})
}
