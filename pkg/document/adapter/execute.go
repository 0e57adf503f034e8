package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/pkg/document/block"
	"github.com/stateful/cellbook/pkg/document/tree"
	"github.com/stateful/cellbook/pkg/kernel"
	"github.com/stateful/cellbook/pkg/nbformat"
)

var errRunAllCancelled = errors.New("run all cancelled")

// cellTarget is a resolved executable cell.
type cellTarget struct {
	id        string
	outputKey string
	code      string
}

// RunBlock executes the jupyter cell with id on the first running kernel
// and records its outputs on the cell's output node. An empty id runs
// the cell holding the selection. The call returns once the kernel has
// replied and published all outputs.
func (a *Adapter) RunBlock(ctx context.Context, id string) Result {
	if err := ctx.Err(); err != nil {
		return failure(err)
	}
	return a.runBlock(ctx, id)
}

func (a *Adapter) runBlock(ctx context.Context, id string) Result {
	var (
		target cellTarget
		err    error
	)
	_ = a.doc.Read(func(tx *tree.Tx) error {
		target, err = a.resolveCell(tx, id)
		return nil
	})
	if err != nil {
		return failure(err)
	}

	a.execMu.Lock()
	defer a.execMu.Unlock()

	start := time.Now()
	reply, outputs, err := a.executeCell(ctx, target)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		a.logger.Info("block execution failed", zap.String("id", target.id), zap.Error(err))
		return Result{
			Error:       fmt.Sprintf("Failed to execute block: %s", err),
			BlockID:     target.id,
			Outputs:     outputs,
			ElapsedTime: elapsed,
		}
	}

	count := reply.ExecutionCount
	result := Result{
		Success:        true,
		BlockID:        target.id,
		ExecutionCount: &count,
		Outputs:        outputs,
		ElapsedTime:    elapsed,
		Message:        fmt.Sprintf("Block executed in %.2fs", elapsed),
	}
	if result.Outputs == nil {
		result.Outputs = []nbformat.Output{}
	}
	if reply.Status == kernel.StatusError {
		result.Success = false
		result.Error = fmt.Sprintf("Block raised %s: %s", reply.EName, reply.EValue)
	}
	return result
}

// resolveCell finds the input, output and code of the cell with id, or
// of the cell holding the selection when id is empty.
func (a *Adapter) resolveCell(tx *tree.Tx, id string) (cellTarget, error) {
	if id == "" {
		id = a.focusedCell(tx)
		if id == "" {
			return cellTarget{}, errors.New("No jupyter cell is currently focused")
		}
	}

	var current *block.Block
	for _, b := range block.FromTx(tx, a.reg) {
		if b.ID == id {
			current = &b
			break
		}
	}
	if current == nil {
		return cellTarget{}, newOpError(ErrBlockNotFound, "Block with ID %s not found", id)
	}
	if current.Type != block.TypeJupyterCell {
		return cellTarget{}, errors.Errorf("Block type %s is not executable", current.TypeName())
	}

	var (
		input  *tree.JupyterInput
		output *tree.JupyterOutput
	)
	switch n := tx.Node(id).(type) {
	case *tree.JupyterInput:
		input, output = n, a.reg.PairedOutput(tx, n)
	case *tree.JupyterCell:
		input, output = n.Input(), n.Output()
	}
	if output == nil {
		return cellTarget{}, errors.New("Failed to execute block: Could not find jupyter-output node for execution")
	}
	code := ""
	if input != nil {
		code = input.TextContent()
	}
	if strings.TrimSpace(code) == "" {
		return cellTarget{}, errors.New("Failed to execute block: No code to execute")
	}
	return cellTarget{id: id, outputKey: output.Key(), code: code}, nil
}

// focusedCell returns the block id of the cell holding the selection. A
// selected output resolves to its input.
func (a *Adapter) focusedCell(tx *tree.Tx) string {
	n := tx.SelectedNode()
	if n == nil {
		return ""
	}
	if cell := tree.Closest(n, tree.KindJupyterInput, tree.KindJupyterCell); cell != nil {
		return cell.Key()
	}
	if out, ok := tree.Closest(n, tree.KindJupyterOutput).(*tree.JupyterOutput); ok {
		if key, ok := a.reg.InputKey(out.InputUUID); ok {
			return key
		}
	}
	return ""
}

// executeCell clears the outputs of target and runs its code. Outputs
// are appended to the output node as they arrive. It must be called with
// execMu held.
func (a *Adapter) executeCell(ctx context.Context, target cellTarget) (*kernel.ExecuteReply, []nbformat.Output, error) {
	conn, err := a.connection(ctx)
	if err != nil {
		return nil, nil, err
	}

	a.updateOutput(target.outputKey, func(out *tree.JupyterOutput) {
		out.Outputs = []nbformat.Output{}
		out.ExecutionCount = nil
		out.Code = target.code
		out.Loading = ""
	})

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var (
		mu      sync.Mutex
		outputs []nbformat.Output
	)
	collected := func() []nbformat.Output {
		mu.Lock()
		defer mu.Unlock()
		return append([]nbformat.Output(nil), outputs...)
	}

	req := kernel.NewExecuteRequest(target.code)
	reply, err := kernel.Execute(ctx, conn, req, func(o nbformat.Output) {
		mu.Lock()
		outputs = nbformat.AppendOutput(outputs, o)
		mu.Unlock()
		a.updateOutput(target.outputKey, func(out *tree.JupyterOutput) {
			out.Outputs = nbformat.AppendOutput(out.Outputs, o)
		})
	})
	if err != nil {
		if ctx.Err() == nil {
			a.dropConnection(conn)
		}
		return nil, collected(), err
	}

	count := reply.ExecutionCount
	a.updateOutput(target.outputKey, func(out *tree.JupyterOutput) {
		out.ExecutionCount = &count
	})
	return reply, collected(), nil
}

// updateOutput applies fn to the output node with key. Outputs removed
// while their cell runs are ignored.
func (a *Adapter) updateOutput(key string, fn func(*tree.JupyterOutput)) {
	err := a.doc.Update(func(tx *tree.Tx) error {
		out, ok := tx.Node(key).(*tree.JupyterOutput)
		if !ok {
			return nil
		}
		fn(out)
		tx.MarkDirty(out)
		return nil
	})
	if err != nil {
		a.logger.Warn("failed to update output", zap.String("key", key), zap.Error(err))
	}
}

// RunAllBlocks runs every jupyter cell in document order and stops at
// the first failure. Starting a new run cancels a previous one before its
// next cell; the cell in flight is left to finish.
func (a *Adapter) RunAllBlocks(ctx context.Context) Result {
	runCtx, gen := a.startRunAll(ctx)
	defer a.finishRunAll(gen)

	var ids []string
	for _, b := range a.Blocks(ctx) {
		if b.Type == block.TypeJupyterCell {
			ids = append(ids, b.ID)
		}
	}

	last := ""
	for _, id := range ids {
		if runCtx.Err() != nil {
			a.logger.Info("run all cancelled", zap.String("next", id))
			return Result{
				Error:   fmt.Sprintf("Failed to run block %s: %s", id, errRunAllCancelled),
				BlockID: last,
			}
		}
		// The caller's context is used so that cancelling the run does
		// not interrupt the cell in flight.
		result := a.runBlock(ctx, id)
		if !result.Success {
			return Result{
				Error:   fmt.Sprintf("Failed to run block %s: %s", id, result.Error),
				BlockID: last,
			}
		}
		last = id
	}

	return Result{
		Success: true,
		BlockID: last,
		Message: fmt.Sprintf("Executed %d jupyter cells", len(ids)),
	}
}

func (a *Adapter) startRunAll(ctx context.Context) (context.Context, uint64) {
	a.runAllMu.Lock()
	defer a.runAllMu.Unlock()

	if a.runAllCancel != nil {
		a.runAllCancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.runAllCancel = cancel
	a.runAllGen++
	return runCtx, a.runAllGen
}

func (a *Adapter) finishRunAll(gen uint64) {
	a.runAllMu.Lock()
	defer a.runAllMu.Unlock()

	if a.runAllGen == gen && a.runAllCancel != nil {
		a.runAllCancel()
		a.runAllCancel = nil
	}
}

// CancelRunAll stops a run started by RunAllBlocks before its next cell.
func (a *Adapter) CancelRunAll() {
	a.runAllMu.Lock()
	defer a.runAllMu.Unlock()

	if a.runAllCancel != nil {
		a.runAllCancel()
	}
}

// ClearAllOutputs empties the outputs and execution counts of every
// output node. Nodes and sources are kept.
func (a *Adapter) ClearAllOutputs(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return failure(err)
	}

	var cleared int
	err := a.doc.Update(func(tx *tree.Tx) error {
		cleared = 0
		for _, n := range tree.FindAll(tx.Root(), func(n tree.Node) bool {
			return n.Kind() == tree.KindJupyterOutput
		}) {
			out := n.(*tree.JupyterOutput)
			out.Outputs = []nbformat.Output{}
			out.ExecutionCount = nil
			tx.MarkDirty(out)
			cleared++
		}
		return nil
	})
	if err != nil {
		return failure(err)
	}

	if cleared == 0 {
		return Result{Success: true, Message: "No jupyter cells found to clear"}
	}
	return Result{Success: true, Message: fmt.Sprintf("Cleared outputs from %d jupyter cells", cleared)}
}

// ExecuteOptions are the flags of a free execution. A nil *ExecuteOptions
// means the defaults: history stored, not silent, stop on error.
type ExecuteOptions struct {
	StoreHistory bool
	Silent       bool
	StopOnError  bool
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{StoreHistory: true, StopOnError: true}
}

// ExecuteResult is the outcome of ExecuteCode.
type ExecuteResult struct {
	Success        bool                 `json:"success"`
	Error          string               `json:"error,omitempty"`
	Outputs        []kernel.TypedOutput `json:"outputs"`
	ExecutionCount *int                 `json:"execution_count,omitempty"`
}

// ExecuteCode runs code on the first running kernel without touching the
// document and returns every output message it produced.
func (a *Adapter) ExecuteCode(ctx context.Context, code string, opts *ExecuteOptions) ExecuteResult {
	if strings.TrimSpace(code) == "" {
		return ExecuteResult{Error: "Code parameter is required and cannot be empty", Outputs: []kernel.TypedOutput{}}
	}
	o := DefaultExecuteOptions()
	if opts != nil {
		o = *opts
	}

	a.execMu.Lock()
	defer a.execMu.Unlock()

	conn, err := a.connection(ctx)
	if err != nil {
		return ExecuteResult{Error: err.Error(), Outputs: []kernel.TypedOutput{}}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req := kernel.NewExecuteRequest(code)
	req.StoreHistory = o.StoreHistory
	req.Silent = o.Silent
	req.StopOnError = o.StopOnError

	outputs, reply, err := kernel.Collect(ctx, conn, req)
	if outputs == nil {
		outputs = []kernel.TypedOutput{}
	}
	if err != nil {
		if ctx.Err() == nil {
			a.dropConnection(conn)
		}
		return ExecuteResult{Error: fmt.Sprintf("Failed to execute code: %s", err), Outputs: outputs}
	}

	count := reply.ExecutionCount
	result := ExecuteResult{Success: true, Outputs: outputs, ExecutionCount: &count}
	if reply.Status == kernel.StatusError {
		result.Success = false
		result.Error = fmt.Sprintf("%s: %s", reply.EName, reply.EValue)
	}
	return result
}

// connection returns the cached kernel connection, connecting to the
// first running kernel when there is none.
func (a *Adapter) connection(ctx context.Context) (kernel.Connection, error) {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if a.conn != nil {
		return a.conn, nil
	}
	conn, err := kernel.ConnectFirst(ctx, a.kernels)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("connected to kernel", zap.String("id", conn.ID()), zap.String("name", conn.Name()))
	a.conn = conn
	return conn, nil
}

func (a *Adapter) dropConnection(conn kernel.Connection) {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if a.conn != conn {
		return
	}
	a.conn = nil
	if err := conn.Close(); err != nil {
		a.logger.Debug("failed to close kernel connection", zap.Error(err))
	}
}

// Close releases the kernel connection.
func (a *Adapter) Close() error {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return errors.WithStack(err)
}
