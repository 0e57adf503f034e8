package adapter

import (
	"context"
	"fmt"
	"maps"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/pkg/document/block"
	"github.com/stateful/cellbook/pkg/document/tree"
)

// Patch is a partial update of a block. Nil fields keep the current
// value and Metadata is merged into the current metadata.
type Patch struct {
	Type     *string
	Source   *string
	Metadata map[string]any
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Type == nil && p.Source == nil && p.Metadata == nil
}

// PatchBlock merges p into the block with id and updates it.
func (a *Adapter) PatchBlock(ctx context.Context, id string, p Patch) Result {
	if p.Empty() {
		return failure(errors.New("at least one of type, source, or properties must be provided"))
	}
	current := a.BlockByID(ctx, id)
	if current == nil {
		return failure(newOpError(ErrBlockNotFound, "Block %s not found", id))
	}

	updated := block.Block{
		Type:       current.Type,
		RawType:    current.RawType,
		Source:     current.Source,
		Metadata:   maps.Clone(current.Metadata),
		Formatting: current.Formatting,
	}
	if p.Type != nil {
		updated.Type = block.ParseType(*p.Type)
		updated.RawType = ""
		if updated.Type == block.TypeUnknown {
			updated.RawType = *p.Type
		}
	}
	if p.Source != nil {
		updated.Source = block.Source(*p.Source)
		// Formatting describes the old text.
		updated.Formatting = nil
	}
	for k, v := range p.Metadata {
		updated.SetMeta(k, v)
	}
	return a.UpdateBlock(ctx, id, updated)
}

// UpdateBlock replaces the content of the block with id by b. A block
// without a type keeps the current type. When the type is unchanged and
// supports it the nodes are updated in place and keep their id.
// Otherwise the block is removed and b is inserted at the same position
// in the same container; the result then carries the new id. Prose
// holding block-level markdown is replaced by the blocks it expands to,
// listed in BlockIDs.
func (a *Adapter) UpdateBlock(ctx context.Context, id string, b block.Block) Result {
	if err := ctx.Err(); err != nil {
		return failure(err)
	}

	var (
		newIDs  []string
		inPlace bool
	)
	err := a.doc.Update(func(tx *tree.Tx) error {
		blocks := block.FromTx(tx, a.reg)
		idx := -1
		for i, existing := range blocks {
			if existing.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return newOpError(ErrBlockNotFound, "Block with ID %s not found", id)
		}
		current := blocks[idx]

		if b.Type == block.TypeUnknown && b.RawType == "" {
			b.Type, b.RawType = current.Type, current.RawType
		}

		if !expandsMarkdown(b) && b.Type == current.Type && b.Type != block.TypeUnknown {
			ok, err := a.updateInPlace(tx, id, b)
			if err != nil {
				return err
			}
			if ok {
				newIDs, inPlace = []string{id}, true
				return nil
			}
		}

		// Insert after the closest preceding block of the same container.
		collapsible := current.Collapsible()
		after := Top
		for i := idx - 1; i >= 0; i-- {
			if blocks[i].Collapsible() == collapsible {
				after = blocks[i].ID
				break
			}
		}
		b.Metadata = maps.Clone(b.Metadata)
		if collapsible != "" {
			b.SetMeta("collapsible", collapsible)
		} else {
			delete(b.Metadata, "collapsible")
		}

		if _, err := a.deleteBlocks(tx, []string{id}); err != nil {
			return err
		}
		parts := splitProse(b)
		if len(parts) == 0 {
			parts = []block.Block{b}
		}
		var err error
		newIDs, err = a.insertChain(tx, parts, after)
		return err
	})
	if err != nil {
		a.logger.Debug("failed to update block", zap.String("id", id), zap.Error(err))
		return failure(err)
	}

	if inPlace {
		return Result{Success: true, BlockID: id, Message: fmt.Sprintf("Block '%s' updated successfully", id)}
	}
	newID := newIDs[len(newIDs)-1]
	if len(newIDs) > 1 {
		return Result{
			Success:  true,
			BlockID:  newID,
			BlockIDs: newIDs,
			Message:  fmt.Sprintf("Block '%s' replaced by %d blocks from markdown", id, len(newIDs)),
		}
	}
	return Result{
		Success: true,
		BlockID: newID,
		Message: fmt.Sprintf("Block '%s' replaced by block '%s' of type '%s'", id, newID, b.TypeName()),
	}
}

// updateInPlace rewrites the node of the block with id from b. It
// reports false when the node cannot be updated in place.
func (a *Adapter) updateInPlace(tx *tree.Tx, id string, b block.Block) (bool, error) {
	n := tx.Node(id)
	if n == nil {
		return false, nil
	}

	switch n := n.(type) {
	case *tree.Paragraph, *tree.Quote:
		return true, replaceChildren(tx, n, block.ToNode(b))

	case *tree.Heading:
		fresh, ok := block.ToNode(b).(*tree.Heading)
		if !ok {
			return false, nil
		}
		if err := replaceChildren(tx, n, fresh); err != nil {
			return true, err
		}
		n.Level = fresh.Level
		return true, nil

	case *tree.Code:
		fresh, ok := block.ToNode(b).(*tree.Code)
		if !ok {
			return false, nil
		}
		if err := replaceChildren(tx, n, fresh); err != nil {
			return true, err
		}
		n.Language = fresh.Language
		return true, nil

	case *tree.List:
		fresh, ok := block.ToNode(b).(*tree.List)
		if !ok {
			return false, nil
		}
		if err := replaceChildren(tx, n, fresh); err != nil {
			return true, err
		}
		n.ListType, n.Start = fresh.ListType, fresh.Start
		return true, nil

	case *tree.ListItem:
		fresh, ok := block.ToNode(b).(*tree.ListItem)
		if !ok {
			return false, nil
		}
		if err := replaceChildren(tx, n, fresh); err != nil {
			return true, err
		}
		n.Checked = fresh.Checked
		return true, nil

	case *tree.Equation:
		n.Latex = firstNonEmpty(b.MetaString("equation"), b.MetaString("latex"), string(b.Source))
		tx.MarkDirty(n)
		return true, nil

	case *tree.JupyterInput:
		return true, a.updateCell(tx, n, a.reg.PairedOutput(tx, n), b)

	case *tree.JupyterCell:
		input := n.Input()
		if input == nil {
			return false, nil
		}
		return true, a.updateCell(tx, input, n.Output(), b)
	}
	return false, nil
}

// updateCell rewrites a jupyter cell. Node fields are not covered by the
// undo log, so they are only set once nothing else can fail.
func (a *Adapter) updateCell(tx *tree.Tx, input *tree.JupyterInput, output *tree.JupyterOutput, b block.Block) error {
	code := string(b.Source)
	outputs, err := b.Outputs()
	if err != nil {
		return err
	}
	language := input.Language
	if l := b.MetaString("language"); l != "" {
		language = l
	}
	if err := replaceChildren(tx, input, tree.NewJupyterInput(language, input.UUID, tree.CodeChildren(code)...)); err != nil {
		return err
	}
	input.Language = language

	if output == nil {
		return nil
	}
	output.Code = code
	if _, ok := b.Meta("outputs"); ok {
		output.Outputs = outputs
	}
	tx.MarkDirty(output)
	return nil
}

// replaceChildren swaps the children of n for the children of fresh,
// a detached node built for the purpose.
func replaceChildren(tx *tree.Tx, n, fresh tree.Node) error {
	if fresh == nil {
		return nil
	}
	for _, c := range n.Children() {
		if err := tx.Remove(c); err != nil {
			return err
		}
	}
	if children := fresh.Children(); len(children) > 0 {
		if err := tx.Append(n, children...); err != nil {
			return err
		}
	}
	tx.MarkDirty(n)
	return nil
}
