// Package adapter exposes block-level operations over a document tree and
// drives execution of its jupyter cells.
package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/pkg/document/block"
	"github.com/stateful/cellbook/pkg/document/registry"
	"github.com/stateful/cellbook/pkg/document/tree"
	"github.com/stateful/cellbook/pkg/kernel"
	"github.com/stateful/cellbook/pkg/nbformat"
)

// Position markers accepted in place of a block id on insertion.
const (
	Top    = "TOP"
	Bottom = "BOTTOM"
)

var (
	ErrBlockNotFound      = errors.New("block not found")
	ErrInvalidCollapsible = errors.New("invalid collapsible")
	ErrUnsupportedType    = errors.New("unsupported block type")
)

type Option func(*Adapter)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithKernelManager sets where kernels are discovered for execution.
func WithKernelManager(m kernel.Manager) Option {
	return func(a *Adapter) {
		a.kernels = m
	}
}

// WithExecutionTimeout bounds each cell execution. Zero means no limit.
func WithExecutionTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

type Adapter struct {
	doc     *tree.Tree
	reg     *registry.Registry
	logger  *zap.Logger
	kernels kernel.Manager
	timeout time.Duration

	mu          sync.RWMutex
	defaultType block.Type

	connMu sync.Mutex
	conn   kernel.Connection

	// execMu keeps executions from overlapping.
	execMu sync.Mutex

	runAllMu     sync.Mutex
	runAllCancel context.CancelFunc
	runAllGen    uint64
}

func New(doc *tree.Tree, reg *registry.Registry, opts ...Option) *Adapter {
	a := &Adapter{
		doc:         doc,
		reg:         reg,
		logger:      zap.NewNop(),
		defaultType: block.TypeParagraph,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the outcome of an adapter operation. Failures are reported
// through Success and Error, never as Go errors.
type Result struct {
	Success        bool              `json:"success"`
	Error          string            `json:"error,omitempty"`
	BlockID        string            `json:"blockId,omitempty"`
	BlockIDs       []string          `json:"blockIds,omitempty"`
	ExecutionCount *int              `json:"execution_count,omitempty"`
	Outputs        []nbformat.Output `json:"outputs,omitempty"`
	ElapsedTime    float64           `json:"elapsed_time,omitempty"`
	Message        string            `json:"message,omitempty"`
	DeletedBlocks  []DeletedBlock    `json:"deletedBlocks,omitempty"`
}

type DeletedBlock struct {
	ID     string       `json:"id"`
	Type   string       `json:"type"`
	Source block.Source `json:"source"`
}

func failure(err error) Result {
	return Result{Error: err.Error()}
}

func (a *Adapter) SetDefaultBlockType(t block.Type) {
	if t == block.TypeUnknown {
		return
	}
	a.mu.Lock()
	a.defaultType = t
	a.mu.Unlock()
}

func (a *Adapter) DefaultBlockType() block.Type {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.defaultType
}

// Blocks derives the blocks of the document.
func (a *Adapter) Blocks(context.Context) []block.Block {
	var blocks []block.Block
	_ = a.doc.Read(func(tx *tree.Tx) error {
		blocks = block.FromTx(tx, a.reg)
		return nil
	})
	return blocks
}

// BriefBlocks derives the listing projection of the document's blocks.
func (a *Adapter) BriefBlocks(ctx context.Context) []block.BriefBlock {
	return block.Brief(a.Blocks(ctx))
}

// Block returns the block at index, or nil when out of range.
func (a *Adapter) Block(ctx context.Context, index int) *block.Block {
	blocks := a.Blocks(ctx)
	if index < 0 || index >= len(blocks) {
		return nil
	}
	return &blocks[index]
}

// BlockByID returns the block with id, or nil.
func (a *Adapter) BlockByID(ctx context.Context, id string) *block.Block {
	for _, b := range a.Blocks(ctx) {
		if b.ID == id {
			return &b
		}
	}
	return nil
}

func (a *Adapter) BlockCount(ctx context.Context) int {
	return len(a.Blocks(ctx))
}

// ListAvailableBlocks describes the insertable block types.
func (a *Adapter) ListAvailableBlocks(category block.Category) block.CatalogResult {
	return block.Catalog(category)
}

// opError carries a user-facing message and matches one of the
// sentinel errors.
type opError struct {
	msg  string
	kind error
}

func (e *opError) Error() string { return e.msg }

func (e *opError) Is(target error) bool { return target == e.kind }

func newOpError(kind error, format string, args ...any) error {
	return errors.WithStack(&opError{msg: fmt.Sprintf(format, args...), kind: kind})
}
