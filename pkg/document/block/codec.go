package block

import (
	"strconv"
	"strings"

	"github.com/stateful/cellbook/pkg/document/registry"
	"github.com/stateful/cellbook/pkg/document/tree"
)

// FromNode converts a node to a Block. It returns nil for nodes that are
// part of another block: outputs and the parts of a collapsible.
func FromNode(n tree.Node) *Block {
	key := n.Key()

	switch n := n.(type) {
	case *tree.Heading:
		text, formatting := textAndFormatting(n)
		return &Block{ID: key, Type: TypeHeading, Source: Source(text), Metadata: map[string]any{"level": n.Level}, Formatting: formatting}

	case *tree.Quote:
		text, formatting := textAndFormatting(n)
		return &Block{ID: key, Type: TypeQuote, Source: Source(text), Formatting: formatting}

	case *tree.Code:
		language := n.Language
		if language == "" {
			language = "plaintext"
		}
		return &Block{ID: key, Type: TypeCode, Source: Source(n.TextContent()), Metadata: map[string]any{"language": language}}

	case *tree.List:
		text, formatting := textAndFormatting(n)
		listType := n.ListType
		if listType == "" {
			listType = tree.ListBullet
		}
		metadata := map[string]any{"list_type": string(listType)}
		if listType == tree.ListNumber && n.Start > 1 {
			metadata["start"] = n.Start
		}
		return &Block{ID: key, Type: TypeList, Source: Source(text), Metadata: metadata, Formatting: formatting}

	case *tree.ListItem:
		text, formatting := textAndFormatting(n)
		b := &Block{ID: key, Type: TypeListItem, Source: Source(text), Formatting: formatting}
		if n.Checked != nil {
			b.Metadata = map[string]any{"checked": *n.Checked}
		}
		return b

	case *tree.Paragraph:
		if children := n.Children(); len(children) == 1 {
			switch child := children[0].(type) {
			case *tree.Equation:
				return equationBlock(child)
			case *tree.Excalidraw:
				return excalidrawBlock(child)
			}
		}
		text, formatting := textAndFormatting(n)
		return &Block{ID: key, Type: TypeParagraph, Source: Source(text), Formatting: formatting}

	case *tree.JupyterCell:
		input := n.Input()
		if input == nil {
			return &Block{ID: key, Type: TypeJupyterCell, Metadata: map[string]any{"language": "python"}}
		}
		return jupyterBlock(key, input, n.Output())

	case *tree.JupyterInput:
		return jupyterBlock(key, n, nil)

	case *tree.JupyterOutput, *tree.CollapsibleTitle, *tree.CollapsibleContent:
		return nil

	case *tree.Image:
		metadata := map[string]any{"src": n.Src, "alt_text": n.AltText}
		if n.Width > 0 {
			metadata["width"] = n.Width
		}
		if n.Height > 0 {
			metadata["height"] = n.Height
		}
		return &Block{ID: key, Type: TypeImage, Metadata: metadata}

	case *tree.Equation:
		return equationBlock(n)

	case *tree.Excalidraw:
		return excalidrawBlock(n)

	case *tree.YouTube:
		return &Block{ID: key, Type: TypeYouTube, Source: Source(n.VideoID), Metadata: map[string]any{"video_id": n.VideoID}}

	case *tree.HorizontalRule:
		return &Block{ID: key, Type: TypeHorizontalRule}

	case *tree.Table:
		rows, columns := n.Dimensions()
		return &Block{
			ID:     key,
			Type:   TypeTable,
			Source: Source(n.TextContent()),
			Metadata: map[string]any{
				"rows":    rows,
				"columns": columns,
				"data":    tableData(n),
			},
		}

	case *tree.CollapsibleContainer:
		title := ""
		if t := n.Title(); t != nil {
			title = t.TextContent()
		}
		return &Block{ID: key, Type: TypeCollapsible, Source: Source(title), Metadata: map[string]any{"open": n.Open}}

	case *tree.Raw:
		b := &Block{ID: key, Type: TypeUnknown, RawType: "raw", Source: Source(n.Text)}
		if n.Type != "" {
			b.Metadata = map[string]any{"format": n.Type}
		}
		return b
	}

	return &Block{ID: key, Type: TypeUnknown, RawType: n.Kind().String(), Source: Source(n.TextContent())}
}

func equationBlock(n *tree.Equation) *Block {
	return &Block{
		ID:       n.Key(),
		Type:     TypeEquation,
		Source:   Source(n.Latex),
		Metadata: map[string]any{"equation": n.Latex, "inline": n.Inline},
	}
}

func excalidrawBlock(n *tree.Excalidraw) *Block {
	metadata := map[string]any{"data": n.Data}
	if n.Width > 0 {
		metadata["width"] = n.Width
	}
	if n.Height > 0 {
		metadata["height"] = n.Height
	}
	return &Block{ID: n.Key(), Type: TypeExcalidraw, Metadata: metadata}
}

func jupyterBlock(key string, input *tree.JupyterInput, output *tree.JupyterOutput) *Block {
	language := input.Language
	if language == "" {
		language = "python"
	}
	b := &Block{
		ID:       key,
		Type:     TypeJupyterCell,
		Source:   Source(input.TextContent()),
		Metadata: map[string]any{"language": language},
	}
	if output != nil {
		if len(output.Outputs) > 0 {
			b.Metadata["outputs"] = output.Outputs
		}
		if output.ExecutionCount != nil {
			b.Metadata["execution_count"] = *output.ExecutionCount
		}
	}
	return b
}

func tableData(n *tree.Table) [][]string {
	var data [][]string
	for _, row := range n.Children() {
		var cells []string
		for _, cell := range row.Children() {
			cells = append(cells, cell.TextContent())
		}
		data = append(data, cells)
	}
	return data
}

// textAndFormatting returns the text of n and its inline segments. The
// segments are dropped when none of them carries a format.
func textAndFormatting(n tree.Node) (string, []Segment) {
	text := n.TextContent()
	segments, formatted := collectSegments(n)
	if !formatted || len(segments) == 0 {
		return text, nil
	}
	return text, segments
}

func collectSegments(n tree.Node) ([]Segment, bool) {
	children := n.Children()
	if len(children) == 0 {
		if t, ok := n.(*tree.Text); ok {
			return []Segment{{Text: t.Value, Format: t.Format}}, t.Format != 0
		}
		return []Segment{{Text: n.TextContent()}}, false
	}

	var (
		segments  []Segment
		formatted bool
	)
	for _, c := range children {
		if t, ok := c.(*tree.Text); ok {
			segments = append(segments, Segment{Text: t.Value, Format: t.Format})
			formatted = formatted || t.Format != 0
			continue
		}
		nested, nestedFormatted := collectSegments(c)
		if nestedFormatted {
			segments = append(segments, nested...)
			formatted = true
		} else {
			segments = append(segments, Segment{Text: c.TextContent()})
		}
	}
	return segments, formatted
}

// ToNode builds the node of a simple block. It returns nil for types
// that are constructed through commands.
func ToNode(b Block) tree.Node {
	text := string(b.Source)

	switch b.Type {
	case TypeParagraph:
		return tree.NewParagraph(inlineNodes(b, text)...)

	case TypeHeading:
		return tree.NewHeading(headingLevel(b), inlineNodes(b, text)...)

	case TypeQuote:
		return tree.NewQuote(inlineNodes(b, text)...)

	case TypeCode:
		language := b.MetaString("language")
		if language == "" {
			language = "plaintext"
		}
		return tree.NewCode(language, tree.CodeChildren(text)...)

	case TypeList:
		listType := tree.ListType(b.MetaString("list_type"))
		if listType == "" {
			listType = tree.ListType(b.MetaString("listType"))
		}
		switch listType {
		case tree.ListBullet, tree.ListNumber, tree.ListCheck:
		default:
			listType = tree.ListBullet
		}

		var items []tree.Node
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			items = append(items, tree.NewListItem(checkState(listType), segmentNodes(ParseMarkdownFormatting(line))...))
		}
		if len(items) == 0 {
			items = append(items, tree.NewListItem(checkState(listType)))
		}

		list := tree.NewList(listType, items...)
		if start, ok := b.MetaInt("start"); ok && start > 0 {
			list.Start = start
		}
		return list

	case TypeListItem:
		var checked *bool
		if v, ok := b.MetaBool("checked"); ok {
			checked = &v
		}
		return tree.NewListItem(checked, inlineNodes(b, text)...)

	case TypeHorizontalRule:
		return tree.NewHorizontalRule()
	}
	return nil
}

// IsSimple reports whether blocks of type t are built with ToNode.
func IsSimple(t Type) bool {
	switch t {
	case TypeParagraph, TypeHeading, TypeQuote, TypeCode, TypeList, TypeListItem, TypeHorizontalRule:
		return true
	}
	return false
}

func checkState(listType tree.ListType) *bool {
	if listType != tree.ListCheck {
		return nil
	}
	checked := false
	return &checked
}

func headingLevel(b Block) int {
	if level, ok := b.MetaInt("level"); ok && level >= 1 && level <= 6 {
		return level
	}
	if tag := b.MetaString("tag"); len(tag) == 2 && tag[0] == 'h' {
		if level, err := strconv.Atoi(tag[1:]); err == nil && level >= 1 && level <= 6 {
			return level
		}
	}
	return 1
}

// inlineNodes builds text nodes from the block's formatting, or parses
// inline markdown from text when the block has none.
func inlineNodes(b Block, text string) []tree.Node {
	if len(b.Formatting) > 0 {
		return segmentNodes(b.Formatting)
	}
	return segmentNodes(ParseMarkdownFormatting(text))
}

func segmentNodes(segments []Segment) []tree.Node {
	var result []tree.Node
	for _, s := range segments {
		if s.Text == "" && len(segments) > 1 {
			continue
		}
		result = append(result, tree.NewText(s.Text, s.Format))
	}
	return result
}

// FromTx derives the blocks of the document. Each input is merged with
// its paired output into one jupyter-cell block, outputs are never
// surfaced on their own, and blocks inside a collapsible carry its id in
// metadata.collapsible.
func FromTx(tx *tree.Tx, reg *registry.Registry) []Block {
	return collect(tx, reg, tx.Root(), "")
}

func collect(tx *tree.Tx, reg *registry.Registry, parent tree.Node, collapsible string) []Block {
	var blocks []Block
	for _, child := range parent.Children() {
		var b *Block
		switch c := child.(type) {
		case *tree.JupyterOutput:
			continue
		case *tree.JupyterInput:
			b = jupyterBlock(c.Key(), c, reg.PairedOutput(tx, c))
		default:
			b = FromNode(c)
		}
		if b == nil {
			continue
		}
		if collapsible != "" {
			b.SetMeta("collapsible", collapsible)
		}
		blocks = append(blocks, *b)

		if container, ok := child.(*tree.CollapsibleContainer); ok {
			if content := container.Content(); content != nil {
				blocks = append(blocks, collect(tx, reg, content, container.Key())...)
			}
		}
	}
	return blocks
}
