package convert

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/stateful/cellbook/pkg/nbformat"
)

// MarkdownToNotebook splits a markdown file into cells. Fenced code blocks
// with a language become code cells, the text between them becomes
// markdown cells verbatim.
func MarkdownToNotebook(source []byte) *nbformat.Notebook {
	nb := nbformat.New()
	doc := markdownParser.Parse(text.NewReader(source))

	pos := 0
	appendMarkup := func(end int) {
		if markup := strings.TrimSpace(string(source[pos:end])); markup != "" {
			nb.Cells = append(nb.Cells, nbformat.NewMarkdownCell(markup))
		}
	}

	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		code, ok := c.(*ast.FencedCodeBlock)
		if !ok || code.Info == nil {
			continue
		}
		language := string(code.Language(source))
		if language == "" || language == "excalidraw" {
			continue
		}

		start, end := fencedCodeRange(code, source)
		appendMarkup(start)

		var content bytes.Buffer
		lines := code.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			content.Write(seg.Value(source))
		}
		cell := nbformat.NewCodeCell(strings.TrimSuffix(content.String(), "\n"))
		cell.Metadata[metadataLanguage] = language
		nb.Cells = append(nb.Cells, cell)

		pos = end
	}
	appendMarkup(len(source))

	return nb
}

// fencedCodeRange returns the byte range of a fenced code block including
// both fence lines.
func fencedCodeRange(code *ast.FencedCodeBlock, source []byte) (start, end int) {
	start = lineStart(source, code.Info.Segment.Start)
	end = lineEnd(source, code.Info.Segment.Stop)
	if lines := code.Lines(); lines.Len() > 0 {
		end = lines.At(lines.Len() - 1).Stop
	}
	// Closing fence, if the block was closed at all.
	if end < len(source) {
		end = lineEnd(source, end)
	}
	return start, end
}

func lineStart(source []byte, pos int) int {
	return bytes.LastIndexByte(source[:pos], '\n') + 1
}

func lineEnd(source []byte, pos int) int {
	if i := bytes.IndexByte(source[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(source)
}

// NotebookToMarkdown writes markdown cells verbatim and code cells as
// fenced code blocks.
func NotebookToMarkdown(nb *nbformat.Notebook) []byte {
	language := notebookLanguage(nb)

	var buf bytes.Buffer
	for _, cell := range nb.Cells {
		out := strings.TrimRight(cell.Source.String(), "\n")
		if cell.CellType == nbformat.CellTypeCode {
			lang := language
			if l, ok := cell.Metadata[metadataLanguage].(string); ok && l != "" {
				lang = l
			}
			r := markdownRenderer{beginLine: true}
			r.fence(lang, out)
			out = strings.TrimRight(r.buf.String(), "\n")
		}
		if out == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(out)
		buf.WriteString("\n")
	}
	return buf.Bytes()
}
