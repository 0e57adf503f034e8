package convert

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/stateful/cellbook/pkg/document/tree"
)

var markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// ParseMarkdown parses source into detached top-level nodes.
func ParseMarkdown(source string) []tree.Node {
	src := []byte(source)
	doc := markdownParser.Parse(text.NewReader(src))

	p := markdownParserState{source: src}
	var result []tree.Node
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		result = append(result, p.block(c)...)
	}
	return result
}

type markdownParserState struct {
	source []byte
}

func (p *markdownParserState) block(n ast.Node) []tree.Node {
	switch n := n.(type) {
	case *ast.Heading:
		return []tree.Node{tree.NewHeading(n.Level, p.inlines(n, 0)...)}

	case *ast.Paragraph, *ast.TextBlock:
		if latex, ok := displayMath(p.lines(n)); ok {
			return []tree.Node{tree.NewParagraph(tree.NewEquation(latex, false))}
		}
		if img, ok := n.FirstChild().(*ast.Image); ok && n.ChildCount() == 1 {
			return []tree.Node{tree.NewImage(string(img.Destination), p.plainText(img))}
		}
		return []tree.Node{tree.NewParagraph(p.inlines(n, 0)...)}

	case *ast.Blockquote:
		var children []tree.Node
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if len(children) > 0 {
				children = append(children, tree.NewLineBreak())
			}
			children = append(children, p.inlines(c, 0)...)
		}
		return []tree.Node{tree.NewQuote(children...)}

	case *ast.FencedCodeBlock:
		language := string(n.Language(p.source))
		code := strings.TrimSuffix(p.lines(n), "\n")
		if language == "excalidraw" {
			return []tree.Node{tree.NewParagraph(tree.NewExcalidraw(code))}
		}
		return []tree.Node{tree.NewCode(language, tree.CodeChildren(code)...)}

	case *ast.CodeBlock:
		return []tree.Node{tree.NewCode("", tree.CodeChildren(strings.TrimSuffix(p.lines(n), "\n"))...)}

	case *ast.List:
		return []tree.Node{p.list(n)}

	case *ast.ThematicBreak:
		return []tree.Node{tree.NewHorizontalRule()}

	case *ast.HTMLBlock:
		html := p.lines(n)
		if n.HasClosure() {
			html += string(n.ClosureLine.Value(p.source))
		}
		return []tree.Node{tree.NewRaw("html", strings.TrimSuffix(html, "\n"))}

	case *extast.Table:
		var rows []tree.Node
		for r := n.FirstChild(); r != nil; r = r.NextSibling() {
			_, header := r.(*extast.TableHeader)
			var cells []tree.Node
			for c := r.FirstChild(); c != nil; c = c.NextSibling() {
				cells = append(cells, tree.NewTableCell(header, tree.NewParagraph(p.inlines(c, 0)...)))
			}
			rows = append(rows, tree.NewTableRow(cells...))
		}
		return []tree.Node{tree.NewTable(rows...)}
	}

	// Anything else keeps its text.
	if t := strings.TrimSpace(p.lines(n)); t != "" {
		return []tree.Node{tree.NewParagraph(tree.NewText(t, 0))}
	}
	return nil
}

func (p *markdownParserState) list(n *ast.List) *tree.List {
	listType := tree.ListBullet
	if n.IsOrdered() {
		listType = tree.ListNumber
	}

	var items []tree.Node
	for it := n.FirstChild(); it != nil; it = it.NextSibling() {
		var (
			checked  *bool
			children []tree.Node
			nested   []tree.Node
		)
		for c := it.FirstChild(); c != nil; c = c.NextSibling() {
			if l, ok := c.(*ast.List); ok {
				nested = append(nested, p.list(l))
				continue
			}
			inlines := p.inlines(c, 0)
			if box, ok := c.FirstChild().(*extast.TaskCheckBox); ok {
				v := box.IsChecked
				checked = &v
				listType = tree.ListCheck
				if len(inlines) > 0 {
					if t, ok := inlines[0].(*tree.Text); ok {
						t.Value = strings.TrimLeft(t.Value, " ")
					}
				}
			}
			if len(children) > 0 {
				children = append(children, tree.NewLineBreak())
			}
			children = append(children, inlines...)
		}
		items = append(items, tree.NewListItem(checked, children...))
		// Nested lists live in an item of their own.
		for _, l := range nested {
			items = append(items, tree.NewListItem(nil, l))
		}
	}

	list := tree.NewList(listType, items...)
	if n.IsOrdered() {
		list.Start = n.Start
	}
	if listType == tree.ListCheck {
		f := false
		for _, it := range items {
			if item := it.(*tree.ListItem); item.Checked == nil && !isNestingItem(item) {
				item.Checked = &f
			}
		}
	}
	return list
}

// inlines converts the inline children of n, adding format to every run
// of text.
func (p *markdownParserState) inlines(n ast.Node, format tree.TextFormat) []tree.Node {
	var result []tree.Node
	appendText := func(value string, format tree.TextFormat) {
		if value == "" {
			return
		}
		if last, ok := lastText(result); ok && last.Format == format {
			last.Value += value
			return
		}
		result = append(result, tree.NewText(value, format))
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			appendText(string(c.Segment.Value(p.source)), format)
			if c.SoftLineBreak() || c.HardLineBreak() {
				result = append(result, tree.NewLineBreak())
			}
		case *ast.String:
			appendText(string(c.Value), format)
		case *ast.Emphasis:
			f := tree.FormatItalic
			if c.Level >= 2 {
				f = tree.FormatBold
			}
			result = appendAll(result, p.inlines(c, format|f))
		case *extast.Strikethrough:
			result = appendAll(result, p.inlines(c, format|tree.FormatStrikethrough))
		case *ast.CodeSpan:
			appendText(p.plainText(c), format|tree.FormatCode)
		case *ast.Link:
			appendText("[", format)
			result = appendAll(result, p.inlines(c, format))
			appendText("]("+string(c.Destination)+")", format)
		case *ast.AutoLink:
			appendText(string(c.URL(p.source)), format)
		case *ast.Image:
			result = append(result, tree.NewImage(string(c.Destination), p.plainText(c)))
		case *ast.RawHTML:
			for i := 0; i < c.Segments.Len(); i++ {
				seg := c.Segments.At(i)
				appendText(string(seg.Value(p.source)), format)
			}
		case *extast.TaskCheckBox:
		default:
			result = appendAll(result, p.inlines(c, format))
		}
	}
	return result
}

// appendAll appends nodes to result, merging a leading text run into a
// trailing one of the same format.
func appendAll(result, nodes []tree.Node) []tree.Node {
	if len(nodes) == 0 {
		return result
	}
	if last, ok := lastText(result); ok {
		if first, ok := nodes[0].(*tree.Text); ok && first.Format == last.Format {
			last.Value += first.Value
			nodes = nodes[1:]
		}
	}
	return append(result, nodes...)
}

func lastText(nodes []tree.Node) (*tree.Text, bool) {
	if len(nodes) == 0 {
		return nil, false
	}
	t, ok := nodes[len(nodes)-1].(*tree.Text)
	return t, ok
}

func (p *markdownParserState) plainText(n ast.Node) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := c.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(p.source))
		case *ast.String:
			buf.Write(c.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func (p *markdownParserState) lines(n ast.Node) string {
	if n.Type() != ast.TypeBlock {
		return ""
	}
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(p.source))
	}
	return buf.String()
}

// displayMath reports whether a paragraph consists of one $$ delimited
// equation.
func displayMath(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 4 || !strings.HasPrefix(s, "$$") || !strings.HasSuffix(s, "$$") {
		return "", false
	}
	latex := strings.TrimSpace(s[2 : len(s)-2])
	if latex == "" || strings.Contains(latex, "$$") {
		return "", false
	}
	return latex, true
}
