package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/pkg/document/block"
	"github.com/stateful/cellbook/pkg/document/tree"
)

// DeleteBlocks removes the blocks with ids. Every id is validated before
// anything is removed. Blocks are removed last-in-document first, and a
// block already removed together with its container is skipped.
func (a *Adapter) DeleteBlocks(ctx context.Context, ids []string) Result {
	if err := ctx.Err(); err != nil {
		return failure(err)
	}
	if len(ids) == 0 {
		return failure(errors.New("at least one block id is required"))
	}

	var deleted []DeletedBlock
	err := a.doc.Update(func(tx *tree.Tx) error {
		var err error
		deleted, err = a.deleteBlocks(tx, ids)
		return err
	})
	if err != nil {
		return failure(err)
	}

	messages := make([]string, 0, len(deleted))
	for _, d := range deleted {
		messages = append(messages, fmt.Sprintf("Deleted block with ID '%s'", d.ID))
	}
	message := strings.Join(messages, "\n")
	if message == "" {
		message = fmt.Sprintf("Deleted %d block(s)", len(deleted))
	}

	a.logger.Debug("deleted blocks", zap.Strings("ids", ids))
	return Result{
		Success:       true,
		DeletedBlocks: deleted,
		Message:       message,
	}
}

func (a *Adapter) deleteBlocks(tx *tree.Tx, ids []string) ([]DeletedBlock, error) {
	blocks := block.FromTx(tx, a.reg)
	byID := make(map[string]block.Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, newOpError(ErrBlockNotFound, "Blocks not found: %s. Document has %d blocks.", strings.Join(missing, ", "), len(blocks))
	}

	position := tree.Position(tx.Root())
	ordered := dedupe(ids)
	sort.SliceStable(ordered, func(i, j int) bool {
		return position[ordered[i]] > position[ordered[j]]
	})

	deleted := make([]DeletedBlock, 0, len(ordered))
	for _, id := range ordered {
		if err := a.removeBlock(tx, id); err != nil {
			if !errors.Is(err, tree.ErrNodeNotFound) {
				return nil, err
			}
			// Removed with its container.
		}
		b := byID[id]
		deleted = append(deleted, DeletedBlock{ID: id, Type: b.TypeName(), Source: b.Source})
	}
	return deleted, nil
}

// removeBlock removes the nodes of the block with id: the wrapper of an
// equation or drawing, an input together with its output.
func (a *Adapter) removeBlock(tx *tree.Tx, id string) error {
	n := tx.Node(id)
	if n == nil {
		return errors.WithStack(tree.ErrNodeNotFound)
	}

	for _, target := range a.blockNodes(tx, n) {
		if err := tx.Remove(target); err != nil {
			return err
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result
}
