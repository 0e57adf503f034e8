package tree

import (
	"slices"

	"github.com/stateful/cellbook/pkg/nbformat"
)

// Clone returns a detached deep copy of n with fresh keys. Jupyter
// correlation UUIDs are copied as they are, so a cloned input and the
// original share their output correlation.
func Clone(n Node) Node {
	var children []Node
	for _, c := range n.base().children {
		children = append(children, Clone(c))
	}

	var c Node
	switch n := n.(type) {
	case *Root:
		c = &Root{}
	case *Paragraph:
		c = &Paragraph{}
	case *Heading:
		c = &Heading{Level: n.Level}
	case *Quote:
		c = &Quote{}
	case *Code:
		c = &Code{Language: n.Language}
	case *List:
		c = &List{ListType: n.ListType, Start: n.Start}
	case *ListItem:
		item := &ListItem{}
		if n.Checked != nil {
			checked := *n.Checked
			item.Checked = &checked
		}
		c = item
	case *Text:
		c = &Text{Value: n.Value, Format: n.Format}
	case *LineBreak:
		c = &LineBreak{}
	case *HorizontalRule:
		c = &HorizontalRule{}
	case *Image:
		c = &Image{Src: n.Src, AltText: n.AltText, Width: n.Width, Height: n.Height}
	case *Equation:
		c = &Equation{Latex: n.Latex, Inline: n.Inline}
	case *YouTube:
		c = &YouTube{VideoID: n.VideoID}
	case *Excalidraw:
		c = &Excalidraw{Data: n.Data, Width: n.Width, Height: n.Height}
	case *Table:
		c = &Table{}
	case *TableRow:
		c = &TableRow{}
	case *TableCell:
		c = &TableCell{Header: n.Header}
	case *CollapsibleContainer:
		c = &CollapsibleContainer{Open: n.Open}
	case *CollapsibleTitle:
		c = &CollapsibleTitle{}
	case *CollapsibleContent:
		c = &CollapsibleContent{}
	case *JupyterCell:
		c = &JupyterCell{}
	case *JupyterInput:
		c = &JupyterInput{Language: n.Language, UUID: n.UUID}
	case *JupyterOutput:
		out := &JupyterOutput{
			InputUUID:  n.InputUUID,
			OutputUUID: n.OutputUUID,
			Code:       n.Code,
			Outputs:    slices.Clone(n.Outputs),
			Loading:    n.Loading,
		}
		if n.ExecutionCount != nil {
			count := *n.ExecutionCount
			out.ExecutionCount = &count
		}
		if out.Outputs == nil {
			out.Outputs = []nbformat.Output{}
		}
		c = out
	case *Raw:
		c = &Raw{Type: n.Type, Text: n.Text}
	default:
		panic("tree: clone of unknown node type")
	}
	return build(c, children)
}
