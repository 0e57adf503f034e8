package convert

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	"github.com/stateful/cellbook/pkg/document/tree"
)

// ExportMarkdown renders the subtree of n as markdown. Every text format
// gets its own marker pair so that no run ever produces ambiguous
// combined markers like "***".
func ExportMarkdown(n tree.Node) string {
	r := markdownRenderer{beginLine: true}
	_ = tree.Walk(n, r.walk)
	return strings.TrimRight(r.buf.String(), "\n")
}

type markdownRenderer struct {
	buf       bytes.Buffer
	beginLine bool
	needCR    int
	prefix    []byte
	// prefixes holds the length of prefix before each nested quote or
	// list item was entered.
	prefixes []int
	// inCell renders line breaks as spaces.
	inCell bool
}

func (r *markdownRenderer) blankline() {
	if r.needCR < 2 {
		r.needCR = 2
	}
}

func (r *markdownRenderer) cr() {
	if r.needCR < 1 {
		r.needCR = 1
	}
}

func (r *markdownRenderer) pushPrefix(p string) {
	r.prefixes = append(r.prefixes, len(r.prefix))
	r.prefix = append(r.prefix, p...)
}

func (r *markdownRenderer) popPrefix() {
	last := len(r.prefixes) - 1
	r.prefix = r.prefix[:r.prefixes[last]]
	r.prefixes = r.prefixes[:last]
}

func (r *markdownRenderer) write(s string) {
	k := r.buf.Len() - 1

	for r.needCR > 0 {
		if k < 0 || r.buf.Bytes()[k] == '\n' {
			k--
			if k >= 0 && r.beginLine && r.needCR > 1 {
				r.buf.Write(bytes.TrimFunc(r.prefix, unicode.IsSpace))
			}
		} else {
			r.buf.WriteByte('\n')
			if r.needCR > 1 {
				r.buf.Write(bytes.TrimFunc(r.prefix, unicode.IsSpace))
			}
		}
		r.beginLine = true
		r.needCR--
	}

	for i := 0; i < len(s); i++ {
		if r.beginLine {
			r.buf.Write(r.prefix)
		}
		r.buf.WriteByte(s[i])
		r.beginLine = s[i] == '\n'
	}
}

func (r *markdownRenderer) walk(n tree.Node, entering bool) (tree.WalkStatus, error) {
	switch n := n.(type) {
	case *tree.Root, *tree.CollapsibleContent:

	case *tree.Paragraph:
		if !entering {
			r.blankline()
		}

	case *tree.Heading:
		if entering {
			r.write(strings.Repeat("#", n.Level) + " ")
		} else {
			r.blankline()
		}

	case *tree.Quote:
		if entering {
			r.pushPrefix("> ")
		} else {
			r.popPrefix()
			r.blankline()
		}

	case *tree.Code:
		if entering {
			r.fence(n.Language, n.TextContent())
		}
		return tree.WalkSkipChildren, nil

	case *tree.List:
		_, nested := n.Parent().(*tree.ListItem)
		switch {
		case entering && nested:
			r.cr()
		case !entering && nested:
			r.cr()
		case !entering:
			r.blankline()
		}

	case *tree.ListItem:
		if entering {
			marker := listMarker(n)
			// An item holding only a nested list is indented like its
			// siblings but carries no marker of its own.
			if !isNestingItem(n) {
				r.write(marker)
			}
			r.pushPrefix(strings.Repeat(" ", len(marker)))
		} else {
			r.popPrefix()
			r.cr()
		}

	case *tree.Text:
		if entering {
			r.text(n)
		}

	case *tree.LineBreak:
		if entering {
			if r.inCell {
				r.write(" ")
			} else {
				r.write("\n")
			}
		}

	case *tree.HorizontalRule:
		if entering {
			r.write("***")
			r.blankline()
		}

	case *tree.Image:
		if entering {
			r.write("![" + n.AltText + "](" + n.Src + ")")
		}

	case *tree.Equation:
		if entering {
			if n.Inline {
				r.write("$" + n.Latex + "$")
			} else {
				r.write("$$" + n.Latex + "$$")
			}
		}

	case *tree.YouTube:
		if entering {
			r.write("https://www.youtube.com/watch?v=" + n.VideoID)
			r.blankline()
		}

	case *tree.Excalidraw:
		if entering {
			r.cr()
			r.fence("excalidraw", n.Data)
		}

	case *tree.Table:
		if entering {
			r.table(n)
		}
		return tree.WalkSkipChildren, nil

	case *tree.CollapsibleContainer:
		if entering {
			if n.Open {
				r.write("<details open>")
			} else {
				r.write("<details>")
			}
			r.cr()
			title := ""
			if t := n.Title(); t != nil {
				title = t.TextContent()
			}
			r.write("<summary>" + title + "</summary>")
			r.blankline()
		} else {
			r.write("</details>")
			r.blankline()
		}

	case *tree.CollapsibleTitle:
		return tree.WalkSkipChildren, nil

	case *tree.JupyterInput:
		if entering {
			r.fence(n.Language, n.TextContent())
		}
		return tree.WalkSkipChildren, nil

	case *tree.JupyterCell:
		if entering {
			if in := n.Input(); in != nil {
				r.fence(in.Language, in.TextContent())
			}
		}
		return tree.WalkSkipChildren, nil

	case *tree.JupyterOutput:

	case *tree.Raw:
		if entering {
			r.write(n.Text)
			r.blankline()
		}

	case *tree.TableRow, *tree.TableCell:
	}

	return tree.WalkContinue, nil
}

func (r *markdownRenderer) fence(language, code string) {
	fence := "```"
	if l := longestBacktickSeq(code); l >= len(fence) {
		fence = strings.Repeat("`", l+1)
	}
	r.write(fence + language)
	r.cr()
	if code != "" {
		r.write(code)
		r.cr()
	}
	r.write(fence)
	r.blankline()
}

var formatMarkers = []struct {
	format tree.TextFormat
	marker string
}{
	{tree.FormatBold, "**"},
	{tree.FormatItalic, "_"},
	{tree.FormatStrikethrough, "~~"},
	{tree.FormatCode, "`"},
}

// text writes a text run with its surrounding whitespace outside of the
// format markers, which emphasis requires.
func (r *markdownRenderer) text(n *tree.Text) {
	value := n.Value
	if r.inCell {
		value = strings.ReplaceAll(value, "|", `\|`)
	}
	if n.Format == 0 || strings.TrimSpace(value) == "" {
		r.write(value)
		return
	}

	trimmed := strings.TrimLeftFunc(value, unicode.IsSpace)
	leading := value[:len(value)-len(trimmed)]
	inner := strings.TrimRightFunc(trimmed, unicode.IsSpace)
	trailing := trimmed[len(inner):]

	var open, closing strings.Builder
	for _, m := range formatMarkers {
		if n.Format.Has(m.format) {
			open.WriteString(m.marker)
		}
	}
	for i := len(formatMarkers) - 1; i >= 0; i-- {
		if n.Format.Has(formatMarkers[i].format) {
			closing.WriteString(formatMarkers[i].marker)
		}
	}
	r.write(leading + open.String() + inner + closing.String() + trailing)
}

func (r *markdownRenderer) table(n *tree.Table) {
	_, columns := n.Dimensions()
	if columns == 0 {
		return
	}

	for i, row := range n.Children() {
		cells := make([]string, columns)
		for j, cell := range row.Children() {
			cells[j] = renderCell(cell)
		}
		r.write("| " + strings.Join(cells, " | ") + " |")
		r.cr()
		if i == 0 {
			sep := make([]string, columns)
			for j := range sep {
				sep[j] = "---"
			}
			r.write("| " + strings.Join(sep, " | ") + " |")
			r.cr()
		}
	}
	r.blankline()
}

func renderCell(cell tree.Node) string {
	r := markdownRenderer{beginLine: true, inCell: true}
	for _, c := range cell.Children() {
		_ = tree.Walk(c, r.walk)
		r.write(" ")
	}
	return strings.Join(strings.Fields(r.buf.String()), " ")
}

func listMarker(item *tree.ListItem) string {
	list, ok := item.Parent().(*tree.List)
	if !ok {
		return "- "
	}
	switch list.ListType {
	case tree.ListNumber:
		return strconv.Itoa(list.Start+tree.IndexOf(item)) + ". "
	case tree.ListCheck:
		if item.Checked != nil && *item.Checked {
			return "- [x] "
		}
		return "- [ ] "
	default:
		return "- "
	}
}

func isNestingItem(item *tree.ListItem) bool {
	children := item.Children()
	if len(children) != 1 {
		return false
	}
	_, ok := children[0].(*tree.List)
	return ok
}

func longestBacktickSeq(s string) int {
	longest, current := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == '`' {
			current++
			longest = max(longest, current)
		} else {
			current = 0
		}
	}
	return longest
}
