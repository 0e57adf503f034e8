// Package convert translates documents to and from Jupyter notebooks.
package convert

import (
	"context"
	"fmt"
	"regexp"

	"github.com/pkg/errors"

	"github.com/stateful/cellbook/pkg/document/plugins"
	"github.com/stateful/cellbook/pkg/document/registry"
	"github.com/stateful/cellbook/pkg/document/tree"
	"github.com/stateful/cellbook/pkg/nbformat"
)

// LoadingInitial marks output nodes created by an import.
const LoadingInitial = "initial"

// metadataLanguage holds the language of a code cell that differs from
// the notebook's.
const metadataLanguage = "language"

const youTubeSnippet = "from IPython.display import YouTubeVideo\nYouTubeVideo('%s')"

var youTubeSnippetRe = regexp.MustCompile(`^\s*from IPython\.display import YouTubeVideo\s*\n\s*YouTubeVideo\(\s*['"]([\w-]+)['"]\s*\)\s*$`)

type ExportOptions struct {
	// IncludeOutputs copies outputs and execution counts of code cells
	// from their output nodes.
	IncludeOutputs bool
}

// Export converts the top-level nodes of doc into notebook cells. reg
// resolves the output of each input; without it outputs are looked up
// among the following siblings.
func Export(doc *tree.Tree, reg *registry.Registry, opts ExportOptions) (*nbformat.Notebook, error) {
	nb := nbformat.New()

	err := doc.Read(func(tx *tree.Tx) error {
		for _, n := range tx.Root().Children() {
			if cell := exportNode(tx, reg, n, opts); cell != nil {
				nb.Cells = append(nb.Cells, cell)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nb, nil
}

func exportNode(tx *tree.Tx, reg *registry.Registry, n tree.Node, opts ExportOptions) *nbformat.Cell {
	switch n := n.(type) {
	case *tree.JupyterInput:
		var output *tree.JupyterOutput
		if opts.IncludeOutputs {
			output = reg.PairedOutput(tx, n)
		}
		return codeCell(n, output)

	case *tree.JupyterCell:
		input := n.Input()
		if input == nil {
			return nil
		}
		var output *tree.JupyterOutput
		if opts.IncludeOutputs {
			output = n.Output()
		}
		return codeCell(input, output)

	case *tree.JupyterOutput:
		return nil

	case *tree.YouTube:
		return nbformat.NewCodeCell(fmt.Sprintf(youTubeSnippet, n.VideoID))

	case *tree.Raw:
		if n.Type == "html" {
			return nbformat.NewMarkdownCell(n.Text)
		}
		return nbformat.NewRawCell(n.Text)

	case *tree.Paragraph:
		children := n.Children()
		if len(children) == 0 {
			return nil
		}
		if eq, ok := children[0].(*tree.Equation); ok && len(children) == 1 {
			return nbformat.NewMarkdownCell("$$\n" + eq.Latex + "\n$$")
		}
	}

	md := ExportMarkdown(n)
	if md == "" {
		return nil
	}
	return nbformat.NewMarkdownCell(md)
}

func codeCell(input *tree.JupyterInput, output *tree.JupyterOutput) *nbformat.Cell {
	cell := nbformat.NewCodeCell(input.TextContent())
	if input.Language != "" && input.Language != "python" {
		cell.Metadata[metadataLanguage] = input.Language
	}
	if output == nil {
		return cell
	}
	if len(output.Outputs) > 0 {
		cell.Outputs = append([]nbformat.Output(nil), output.Outputs...)
	}
	if output.ExecutionCount != nil {
		count := *output.ExecutionCount
		cell.ExecutionCount = &count
	}
	return cell
}

// Import appends the cells of nb to doc in one update. Markdown cells are
// parsed into blocks, code cells are inserted with the jupyter cell
// command and every cell is followed by an empty paragraph. doc must
// have the block commands registered.
func Import(ctx context.Context, doc *tree.Tree, nb *nbformat.Notebook) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return doc.Update(func(tx *tree.Tx) error {
		return importCells(ctx, tx, nb)
	})
}

// Replace swaps the content of doc for the cells of nb in one update.
func Replace(ctx context.Context, doc *tree.Tree, nb *nbformat.Notebook) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return doc.Update(func(tx *tree.Tx) error {
		for _, n := range tx.Root().Children() {
			if err := tx.Remove(n); err != nil {
				return err
			}
		}
		tx.SetSelection(nil)
		return importCells(ctx, tx, nb)
	})
}

func importCells(ctx context.Context, tx *tree.Tx, nb *nbformat.Notebook) error {
	language := notebookLanguage(nb)
	for i, cell := range nb.Cells {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := importCell(tx, cell, language); err != nil {
			return errors.WithMessagef(err, "failed to import cell %d", i)
		}
		if err := tx.Append(tx.Root(), tree.NewParagraph()); err != nil {
			return err
		}
	}
	return nil
}

func importCell(tx *tree.Tx, cell *nbformat.Cell, language string) error {
	source := cell.Source.String()

	switch cell.CellType {
	case nbformat.CellTypeMarkdown:
		nodes := ParseMarkdown(source)
		if len(nodes) == 0 {
			return nil
		}
		return tx.Append(tx.Root(), nodes...)

	case nbformat.CellTypeRaw:
		return tx.Append(tx.Root(), tree.NewRaw("raw", source))

	case nbformat.CellTypeCode:
		if m := youTubeSnippetRe.FindStringSubmatch(source); m != nil {
			return tx.Append(tx.Root(), tree.NewYouTube(m[1]))
		}

		if lang, ok := cell.Metadata[metadataLanguage].(string); ok && lang != "" {
			language = lang
		}

		tx.SelectEnd(tx.Root())
		mark := tx.CreatedMark()
		ok := tx.DispatchCommand(plugins.InsertJupyterCell, plugins.JupyterCellPayload{
			Code:     source,
			Language: language,
			Outputs:  cell.Outputs,
			Loading:  LoadingInitial,
		})
		if !ok {
			return errors.New("jupyter cell command was not handled")
		}
		if cell.ExecutionCount != nil && *cell.ExecutionCount > 0 {
			for _, n := range tx.CreatedSince(mark) {
				if out, ok := n.(*tree.JupyterOutput); ok {
					count := *cell.ExecutionCount
					out.ExecutionCount = &count
				}
			}
		}
		return nil
	}

	return errors.Errorf("unsupported cell type %q", cell.CellType)
}

func notebookLanguage(nb *nbformat.Notebook) string {
	if info, ok := nb.Metadata["language_info"].(map[string]any); ok {
		if name, ok := info["name"].(string); ok && name != "" {
			return name
		}
	}
	if spec, ok := nb.Metadata["kernelspec"].(map[string]any); ok {
		if lang, ok := spec["language"].(string); ok && lang != "" {
			return lang
		}
	}
	return "python"
}
