package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/pkg/document/block"
	"github.com/stateful/cellbook/pkg/document/plugins"
	"github.com/stateful/cellbook/pkg/document/registry"
	"github.com/stateful/cellbook/pkg/document/tree"
)

const markerText = "__CELLBOOK_INSERT_MARKER__"

// InsertBlock inserts b after the block with id after, or at the
// beginning (Top) or end (Bottom, empty) of the document. Prose holding
// block-level markdown is split into several blocks, inserted in order.
// A block whose metadata.collapsible names a collapsible goes into its
// content, where after is resolved among the content's blocks.
func (a *Adapter) InsertBlock(ctx context.Context, b block.Block, after string) Result {
	if err := ctx.Err(); err != nil {
		return failure(err)
	}

	if b.Type == block.TypeUnknown && b.RawType == "" {
		b.Type = a.DefaultBlockType()
	}

	parts := splitProse(b)

	var ids []string
	err := a.doc.Update(func(tx *tree.Tx) error {
		var err error
		ids, err = a.insertChain(tx, parts, after)
		return err
	})
	if err != nil {
		a.logger.Debug("failed to insert block", zap.String("type", b.TypeName()), zap.Error(err))
		return failure(err)
	}
	if len(ids) == 0 {
		return Result{Success: true, Message: "Nothing to insert"}
	}

	result := Result{
		Success: true,
		BlockID: ids[len(ids)-1],
		Message: insertMessage(b.TypeName(), after),
	}
	if len(ids) > 1 {
		result.BlockIDs = ids
		result.Message = fmt.Sprintf("Inserted %d blocks from markdown", len(ids))
	}
	return result
}

func insertMessage(typ, after string) string {
	switch after {
	case Top:
		return fmt.Sprintf("Block of type '%s' inserted at the beginning of the document", typ)
	case Bottom, "":
		return fmt.Sprintf("Block of type '%s' inserted at the end of the document", typ)
	}
	return fmt.Sprintf("Block of type '%s' inserted after block '%s'", typ, after)
}

// splitProse returns the blocks the markdown source of a prose block
// expands to, or b alone. The parts inherit the collapsible of b.
func splitProse(b block.Block) []block.Block {
	if !expandsMarkdown(b) {
		return []block.Block{b}
	}
	parts := block.ParseMarkdownToBlocks(string(b.Source))
	if collapsible := b.Collapsible(); collapsible != "" {
		for i := range parts {
			parts[i].SetMeta("collapsible", collapsible)
		}
	}
	return parts
}

func expandsMarkdown(b block.Block) bool {
	return b.Type.IsProse() && len(b.Formatting) == 0 && block.ContainsBlockLevelMarkdown(string(b.Source))
}

// insertChain inserts parts one after the other, the first after after,
// and returns their ids in order.
func (a *Adapter) insertChain(tx *tree.Tx, parts []block.Block, after string) ([]string, error) {
	ids := make([]string, 0, len(parts))
	ref := after
	for _, part := range parts {
		id, err := a.insert(tx, part, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		ref = id
	}
	return ids, nil
}

// insert adds one block and returns its id.
func (a *Adapter) insert(tx *tree.Tx, b block.Block, after string) (string, error) {
	var content *tree.CollapsibleContent
	if target := b.Collapsible(); target != "" {
		var err error
		if content, err = collapsibleContent(tx, target); err != nil {
			return "", err
		}
	}

	// Blocks going into a collapsible are first placed at the end of the
	// document and then moved, since commands only insert at the
	// selection.
	rootAfter := after
	if content != nil {
		rootAfter = Bottom
	}

	var (
		n   tree.Node
		err error
	)
	if block.IsSimple(b.Type) {
		n = block.ToNode(b)
		if n == nil {
			return "", newOpError(ErrUnsupportedType, "unsupported block type: %s", b.TypeName())
		}
		err = place(tx, a.reg, tx.Root(), rootAfter, n)
	} else {
		n, err = a.insertViaCommand(tx, b, rootAfter)
	}
	if err != nil {
		return "", err
	}

	if content != nil {
		if err := place(tx, a.reg, content, after, a.blockNodes(tx, n)...); err != nil {
			return "", err
		}
	}
	return n.Key(), nil
}

func collapsibleContent(tx *tree.Tx, id string) (*tree.CollapsibleContent, error) {
	if id == Top || id == Bottom {
		return nil, newOpError(ErrInvalidCollapsible,
			"'%s' is a position marker, not a collapsible id; set metadata.collapsible to the block_id of a collapsible block", id)
	}
	container, ok := tx.Node(id).(*tree.CollapsibleContainer)
	if !ok {
		return nil, newOpError(ErrBlockNotFound, "Collapsible %s not found", id)
	}
	content := container.Content()
	if content == nil {
		return nil, newOpError(ErrBlockNotFound, "content node of collapsible %s not found", id)
	}
	return content, nil
}

// blockNodes returns the sibling nodes making up the block of n: the
// wrapper of an equation or drawing, an input with its output.
func (a *Adapter) blockNodes(tx *tree.Tx, n tree.Node) []tree.Node {
	switch n := n.(type) {
	case *tree.JupyterInput:
		if out := a.reg.PairedOutput(tx, n); out != nil {
			return []tree.Node{n, out}
		}
	case *tree.Equation, *tree.Excalidraw:
		if wrapper := wrapperOf(n); wrapper != nil {
			return []tree.Node{wrapper}
		}
	}
	return []tree.Node{n}
}

// wrapperOf returns the paragraph holding n as its only child.
func wrapperOf(n tree.Node) *tree.Paragraph {
	p, ok := n.Parent().(*tree.Paragraph)
	if !ok || p.ChildCount() != 1 {
		return nil
	}
	return p
}

// place inserts nodes into parent after the block with id after. Top and
// Bottom address the first and last position of parent.
func place(tx *tree.Tx, reg *registry.Registry, parent tree.Node, after string, nodes ...tree.Node) error {
	switch after {
	case Top:
		if first := firstChild(parent); first != nil {
			return tx.InsertBefore(first, nodes...)
		}
		return tx.Append(parent, nodes...)
	case Bottom, "":
		return tx.Append(parent, nodes...)
	}

	ref := findBlockChild(parent, after)
	if ref == nil {
		return newOpError(ErrBlockNotFound,
			"Block ID %s not found. Use readBlocks to get valid block IDs, or use 'TOP'/'BOTTOM' for beginning/end.", after)
	}
	// Keep an input and its output together.
	if input, ok := ref.(*tree.JupyterInput); ok {
		if out := reg.PairedOutput(tx, input); out != nil && out.Parent() == parent {
			ref = out
		}
	}
	return tx.InsertAfter(ref, nodes...)
}

func firstChild(n tree.Node) tree.Node {
	if children := n.Children(); len(children) > 0 {
		return children[0]
	}
	return nil
}

// findBlockChild returns the child of parent whose block id is id. The
// block id of a wrapped equation or drawing is the id of the wrapped node.
func findBlockChild(parent tree.Node, id string) tree.Node {
	for _, c := range parent.Children() {
		if c.Key() == id {
			return c
		}
		if p, ok := c.(*tree.Paragraph); ok && p.ChildCount() == 1 {
			switch inner := p.FirstChild().(type) {
			case *tree.Equation, *tree.Excalidraw:
				if inner.Key() == id {
					return c
				}
			}
		}
	}
	return nil
}

// insertViaCommand places a marker at the target position, moves the
// selection onto its position, removes it and dispatches the command
// that builds the block at the selection. The created node is picked
// from the nodes attached by the command.
func (a *Adapter) insertViaCommand(tx *tree.Tx, b block.Block, after string) (tree.Node, error) {
	cmd, payload, kind, err := commandFor(b)
	if err != nil {
		return nil, err
	}

	marker := tree.NewParagraph(tree.NewText(markerText, 0))
	if err := place(tx, a.reg, tx.Root(), after, marker); err != nil {
		return nil, err
	}
	tx.SelectEnd(marker)
	if err := tx.Remove(marker); err != nil {
		return nil, err
	}

	mark := tx.CreatedMark()
	if !tx.DispatchCommand(cmd, payload) {
		return nil, errors.Errorf("command %s was not handled", cmd)
	}

	created := tx.CreatedSince(mark)
	for i := len(created) - 1; i >= 0; i-- {
		if created[i].Kind() == kind {
			return created[i], nil
		}
	}
	return nil, errors.Errorf("command %s did not create a %s node", cmd, kind)
}

func commandFor(b block.Block) (tree.Command, any, tree.Kind, error) {
	source := string(b.Source)

	switch b.Type {
	case block.TypeJupyterCell:
		outputs, err := b.Outputs()
		if err != nil {
			return "", nil, 0, err
		}
		language := b.MetaString("language")
		if language == "" {
			language = "python"
		}
		return plugins.InsertJupyterCell, plugins.JupyterCellPayload{
			Code:     source,
			Language: language,
			Outputs:  outputs,
			Loading:  b.MetaString("loading"),
		}, tree.KindJupyterInput, nil

	case block.TypeEquation:
		equation := firstNonEmpty(b.MetaString("equation"), b.MetaString("latex"), source)
		// Equations are always inserted in display mode.
		return plugins.InsertEquation, plugins.EquationPayload{Equation: equation}, tree.KindEquation, nil

	case block.TypeImage:
		src := firstNonEmpty(b.MetaString("src"), strings.TrimSpace(source))
		if src == "" {
			return "", nil, 0, errors.New("image block requires metadata.src")
		}
		width, _ := b.MetaInt("width")
		height, _ := b.MetaInt("height")
		return plugins.InsertImage, plugins.ImagePayload{
			Src:     src,
			AltText: firstNonEmpty(b.MetaString("alt_text"), b.MetaString("altText")),
			Width:   width,
			Height:  height,
		}, tree.KindImage, nil

	case block.TypeYouTube:
		id := youTubeID(firstNonEmpty(b.MetaString("video_id"), b.MetaString("videoID"), source))
		if id == "" {
			return "", nil, 0, errors.New("youtube block requires a video id")
		}
		return plugins.InsertYouTube, plugins.YouTubePayload{VideoID: id}, tree.KindYouTube, nil

	case block.TypeExcalidraw:
		data := firstNonEmpty(b.MetaString("data"), source, `{"elements":[]}`)
		return plugins.InsertExcalidraw, plugins.ExcalidrawPayload{Data: data}, tree.KindExcalidraw, nil

	case block.TypeTable:
		data := tableData(b.Metadata["data"])
		rows, ok := b.MetaInt("rows")
		if !ok && len(data) == 0 {
			rows = 3
		}
		columns, ok := b.MetaInt("columns")
		if !ok && len(data) == 0 {
			columns = 3
		}
		headers, ok := b.MetaBool("headers")
		if !ok {
			headers = true
		}
		return plugins.InsertTable, plugins.TablePayload{
			Rows:    rows,
			Columns: columns,
			Headers: headers,
			Data:    data,
		}, tree.KindTable, nil

	case block.TypeCollapsible:
		open, ok := b.MetaBool("open")
		if !ok {
			open = true
		}
		return plugins.InsertCollapsible, plugins.CollapsiblePayload{Title: source, Open: open}, tree.KindCollapsibleContainer, nil
	}

	return "", nil, 0, newOpError(ErrUnsupportedType, "unsupported block type: %s", b.TypeName())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// youTubeID extracts the video id from a bare id or a YouTube URL.
func youTubeID(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://", "http://", "www.", "m."} {
		s = strings.TrimPrefix(s, prefix)
	}
	switch {
	case strings.HasPrefix(s, "youtu.be/"):
		s = strings.TrimPrefix(s, "youtu.be/")
	case strings.HasPrefix(s, "youtube.com/watch?"):
		query := strings.TrimPrefix(s, "youtube.com/watch?")
		s = ""
		for _, kv := range strings.Split(query, "&") {
			if v, ok := strings.CutPrefix(kv, "v="); ok {
				s = v
				break
			}
		}
	case strings.HasPrefix(s, "youtube.com/embed/"):
		s = strings.TrimPrefix(s, "youtube.com/embed/")
	}
	if i := strings.IndexAny(s, "?&#/"); i >= 0 {
		s = s[:i]
	}
	return s
}

// tableData reads table cells from metadata set in Go or decoded from
// JSON.
func tableData(v any) [][]string {
	switch v := v.(type) {
	case [][]string:
		return v
	case []any:
		data := make([][]string, 0, len(v))
		for _, row := range v {
			var cells []string
			switch row := row.(type) {
			case []string:
				cells = row
			case []any:
				for _, cell := range row {
					cells = append(cells, fmt.Sprint(cell))
				}
			}
			data = append(data, cells)
		}
		return data
	}
	return nil
}
