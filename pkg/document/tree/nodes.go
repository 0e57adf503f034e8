package tree

import (
	"strings"

	"github.com/stateful/cellbook/pkg/nbformat"
)

// TextFormat is a bit set of inline text styles.
type TextFormat uint32

const (
	FormatBold TextFormat = 1 << iota
	FormatItalic
	FormatStrikethrough
	FormatUnderline
	FormatCode
)

func (f TextFormat) Has(other TextFormat) bool {
	return f&other == other
}

type Root struct {
	BaseNode
}

func newRoot() *Root {
	return build(&Root{}, nil)
}

func (*Root) Kind() Kind { return KindRoot }

func (n *Root) TextContent() string { return elementText(n, "\n\n") }

type Paragraph struct {
	BaseNode
}

func NewParagraph(children ...Node) *Paragraph {
	return build(&Paragraph{}, children)
}

func (*Paragraph) Kind() Kind { return KindParagraph }

func (n *Paragraph) TextContent() string { return elementText(n, "\n\n") }

type Heading struct {
	BaseNode
	Level int
}

func NewHeading(level int, children ...Node) *Heading {
	if level < 1 || level > 6 {
		level = 1
	}
	return build(&Heading{Level: level}, children)
}

func (*Heading) Kind() Kind { return KindHeading }

func (n *Heading) TextContent() string { return elementText(n, "\n\n") }

type Quote struct {
	BaseNode
}

func NewQuote(children ...Node) *Quote {
	return build(&Quote{}, children)
}

func (*Quote) Kind() Kind { return KindQuote }

func (n *Quote) TextContent() string { return elementText(n, "\n\n") }

type Code struct {
	BaseNode
	Language string
}

func NewCode(language string, children ...Node) *Code {
	return build(&Code{Language: language}, children)
}

func (*Code) Kind() Kind { return KindCode }

func (n *Code) TextContent() string { return elementText(n, "\n\n") }

type ListType string

const (
	ListBullet ListType = "bullet"
	ListNumber ListType = "number"
	ListCheck  ListType = "check"
)

type List struct {
	BaseNode
	ListType ListType
	Start    int
}

func NewList(listType ListType, items ...Node) *List {
	if listType == "" {
		listType = ListBullet
	}
	return build(&List{ListType: listType, Start: 1}, items)
}

func (*List) Kind() Kind { return KindList }

// TextContent puts one item per line.
func (n *List) TextContent() string { return joinText(n, "\n") }

type ListItem struct {
	BaseNode
	// Checked is nil for items of bullet and number lists.
	Checked *bool
}

func NewListItem(checked *bool, children ...Node) *ListItem {
	return build(&ListItem{Checked: checked}, children)
}

func (*ListItem) Kind() Kind { return KindListItem }

func (n *ListItem) TextContent() string { return elementText(n, "\n") }

type Text struct {
	BaseNode
	Value  string
	Format TextFormat
}

func NewText(value string, format TextFormat) *Text {
	return build(&Text{Value: value, Format: format}, nil)
}

func (*Text) Kind() Kind { return KindText }

func (n *Text) TextContent() string { return n.Value }

type LineBreak struct {
	BaseNode
}

func NewLineBreak() *LineBreak {
	return build(&LineBreak{}, nil)
}

func (*LineBreak) Kind() Kind { return KindLineBreak }

func (*LineBreak) TextContent() string { return "\n" }

type HorizontalRule struct {
	BaseNode
}

func NewHorizontalRule() *HorizontalRule {
	return build(&HorizontalRule{}, nil)
}

func (*HorizontalRule) Kind() Kind { return KindHorizontalRule }

func (*HorizontalRule) TextContent() string { return "" }

type Image struct {
	BaseNode
	Src     string
	AltText string
	Width   int
	Height  int
}

func NewImage(src, altText string) *Image {
	return build(&Image{Src: src, AltText: altText}, nil)
}

func (*Image) Kind() Kind { return KindImage }

func (*Image) TextContent() string { return "" }

type Equation struct {
	BaseNode
	Latex  string
	Inline bool
}

func NewEquation(latex string, inline bool) *Equation {
	return build(&Equation{Latex: latex, Inline: inline}, nil)
}

func (*Equation) Kind() Kind { return KindEquation }

func (n *Equation) TextContent() string { return n.Latex }

type YouTube struct {
	BaseNode
	VideoID string
}

func NewYouTube(videoID string) *YouTube {
	return build(&YouTube{VideoID: videoID}, nil)
}

func (*YouTube) Kind() Kind { return KindYouTube }

func (*YouTube) TextContent() string { return "" }

type Excalidraw struct {
	BaseNode
	// Data is the serialized scene JSON.
	Data   string
	Width  int
	Height int
}

func NewExcalidraw(data string) *Excalidraw {
	return build(&Excalidraw{Data: data}, nil)
}

func (*Excalidraw) Kind() Kind { return KindExcalidraw }

func (*Excalidraw) TextContent() string { return "" }

type Table struct {
	BaseNode
}

func NewTable(rows ...Node) *Table {
	return build(&Table{}, rows)
}

func (*Table) Kind() Kind { return KindTable }

func (n *Table) TextContent() string { return joinText(n, "\n") }

// Dimensions returns the number of rows and the widest row.
func (n *Table) Dimensions() (rows, columns int) {
	for _, row := range n.children {
		rows++
		if c := len(row.base().children); c > columns {
			columns = c
		}
	}
	return rows, columns
}

type TableRow struct {
	BaseNode
}

func NewTableRow(cells ...Node) *TableRow {
	return build(&TableRow{}, cells)
}

func (*TableRow) Kind() Kind { return KindTableRow }

func (n *TableRow) TextContent() string { return joinText(n, "\t") }

type TableCell struct {
	BaseNode
	Header bool
}

func NewTableCell(header bool, children ...Node) *TableCell {
	return build(&TableCell{Header: header}, children)
}

func (*TableCell) Kind() Kind { return KindTableCell }

func (n *TableCell) TextContent() string { return elementText(n, " ") }

// CollapsibleContainer holds a CollapsibleTitle followed by a
// CollapsibleContent.
type CollapsibleContainer struct {
	BaseNode
	Open bool
}

func NewCollapsible(open bool, title *CollapsibleTitle, content *CollapsibleContent) *CollapsibleContainer {
	if title == nil {
		title = NewCollapsibleTitle()
	}
	if content == nil {
		content = NewCollapsibleContent()
	}
	return build(&CollapsibleContainer{Open: open}, []Node{title, content})
}

func (*CollapsibleContainer) Kind() Kind { return KindCollapsibleContainer }

func (n *CollapsibleContainer) TextContent() string { return elementText(n, "\n\n") }

func (n *CollapsibleContainer) Title() *CollapsibleTitle {
	for _, c := range n.children {
		if t, ok := c.(*CollapsibleTitle); ok {
			return t
		}
	}
	return nil
}

func (n *CollapsibleContainer) Content() *CollapsibleContent {
	for _, c := range n.children {
		if t, ok := c.(*CollapsibleContent); ok {
			return t
		}
	}
	return nil
}

type CollapsibleTitle struct {
	BaseNode
}

func NewCollapsibleTitle(children ...Node) *CollapsibleTitle {
	return build(&CollapsibleTitle{}, children)
}

func (*CollapsibleTitle) Kind() Kind { return KindCollapsibleTitle }

func (n *CollapsibleTitle) TextContent() string { return elementText(n, "\n\n") }

type CollapsibleContent struct {
	BaseNode
}

func NewCollapsibleContent(children ...Node) *CollapsibleContent {
	return build(&CollapsibleContent{}, children)
}

func (*CollapsibleContent) Kind() Kind { return KindCollapsibleContent }

func (n *CollapsibleContent) TextContent() string { return elementText(n, "\n\n") }

// JupyterCell is the legacy container form of an executable cell: an
// input followed by its output.
type JupyterCell struct {
	BaseNode
}

func NewJupyterCell(input *JupyterInput, output *JupyterOutput) *JupyterCell {
	children := []Node{input}
	if output != nil {
		children = append(children, output)
	}
	return build(&JupyterCell{}, children)
}

func (*JupyterCell) Kind() Kind { return KindJupyterCell }

func (n *JupyterCell) TextContent() string { return elementText(n, "\n\n") }

func (n *JupyterCell) Input() *JupyterInput {
	for _, c := range n.children {
		if in, ok := c.(*JupyterInput); ok {
			return in
		}
	}
	return nil
}

func (n *JupyterCell) Output() *JupyterOutput {
	for _, c := range n.children {
		if out, ok := c.(*JupyterOutput); ok {
			return out
		}
	}
	return nil
}

// JupyterInput holds the code of an executable cell as text and line
// break children. UUID correlates it with its JupyterOutput.
type JupyterInput struct {
	BaseNode
	Language string
	UUID     string
}

func NewJupyterInput(language, uuid string, children ...Node) *JupyterInput {
	if language == "" {
		language = "python"
	}
	return build(&JupyterInput{Language: language, UUID: uuid}, children)
}

func (*JupyterInput) Kind() Kind { return KindJupyterInput }

func (n *JupyterInput) TextContent() string { return elementText(n, "\n\n") }

// JupyterOutput holds the outputs of the input whose UUID is InputUUID.
type JupyterOutput struct {
	BaseNode
	InputUUID      string
	OutputUUID     string
	Code           string
	Outputs        []nbformat.Output
	ExecutionCount *int
	Loading        string
}

func NewJupyterOutput(inputUUID, outputUUID, code string, outputs []nbformat.Output) *JupyterOutput {
	return build(&JupyterOutput{
		InputUUID:  inputUUID,
		OutputUUID: outputUUID,
		Code:       code,
		Outputs:    outputs,
	}, nil)
}

func (*JupyterOutput) Kind() Kind { return KindJupyterOutput }

func (*JupyterOutput) TextContent() string { return "" }

// Raw preserves content that has no dedicated node, such as raw
// notebook cells.
type Raw struct {
	BaseNode
	Type string
	Text string
}

func NewRaw(typ, text string) *Raw {
	return build(&Raw{Type: typ, Text: text}, nil)
}

func (*Raw) Kind() Kind { return KindRaw }

func (n *Raw) TextContent() string { return n.Text }

// CodeChildren splits code into text nodes separated by line breaks.
func CodeChildren(code string) []Node {
	var result []Node
	for i, line := range strings.Split(code, "\n") {
		if i > 0 {
			result = append(result, NewLineBreak())
		}
		if line != "" {
			result = append(result, NewText(line, 0))
		}
	}
	return result
}
