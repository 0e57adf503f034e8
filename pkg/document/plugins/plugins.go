// Package plugins registers the commands that construct complex blocks at
// the current selection.
package plugins

import (
	"go.uber.org/zap"

	"github.com/stateful/cellbook/pkg/document/registry"
	"github.com/stateful/cellbook/pkg/document/tree"
	"github.com/stateful/cellbook/pkg/nbformat"
)

const (
	InsertJupyterCell    tree.Command = "INSERT_JUPYTER_INPUT_OUTPUT_COMMAND"
	InsertEquation       tree.Command = "INSERT_EQUATION_COMMAND"
	InsertImage          tree.Command = "INSERT_IMAGE_COMMAND"
	InsertYouTube        tree.Command = "INSERT_YOUTUBE_COMMAND"
	InsertExcalidraw     tree.Command = "INSERT_EXCALIDRAW_COMMAND"
	InsertTable          tree.Command = "INSERT_TABLE_COMMAND"
	InsertCollapsible    tree.Command = "INSERT_COLLAPSIBLE_COMMAND"
	InsertHorizontalRule tree.Command = "INSERT_HORIZONTAL_RULE_COMMAND"
)

type JupyterCellPayload struct {
	Code     string
	Language string
	Outputs  []nbformat.Output
	// Loading is set for cells created by an import; such cells do not
	// take the selection.
	Loading string
}

type EquationPayload struct {
	Equation string
	Inline   bool
}

type ImagePayload struct {
	Src     string
	AltText string
	Width   int
	Height  int
}

type YouTubePayload struct {
	VideoID string
}

type ExcalidrawPayload struct {
	Data string
}

type TablePayload struct {
	Rows    int
	Columns int
	// Headers makes the first row a header row.
	Headers bool
	// Data optionally fills cells row by row.
	Data [][]string
}

type CollapsiblePayload struct {
	Title string
	Open  bool
}

// Register installs every block command on doc and returns a function
// that removes them.
func Register(doc *tree.Tree, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}

	unregister := []func(){
		doc.RegisterCommand(InsertJupyterCell, jupyterCellHandler(logger)),
		doc.RegisterCommand(InsertEquation, equationHandler),
		doc.RegisterCommand(InsertImage, imageHandler),
		doc.RegisterCommand(InsertYouTube, youTubeHandler),
		doc.RegisterCommand(InsertExcalidraw, excalidrawHandler),
		doc.RegisterCommand(InsertTable, tableHandler),
		doc.RegisterCommand(InsertCollapsible, collapsibleHandler),
		doc.RegisterCommand(InsertHorizontalRule, horizontalRuleHandler),
	}

	return func() {
		for _, fn := range unregister {
			fn()
		}
	}
}

func jupyterCellHandler(logger *zap.Logger) tree.CommandHandler {
	return func(tx *tree.Tx, payload any) bool {
		p, ok := payload.(JupyterCellPayload)
		if !ok {
			return false
		}

		inputUUID := registry.NewUUID()
		input := tree.NewJupyterInput(p.Language, inputUUID, tree.CodeChildren(p.Code)...)

		outputs := p.Outputs
		if outputs == nil {
			outputs = []nbformat.Output{}
		}
		output := tree.NewJupyterOutput(inputUUID, registry.NewUUID(), p.Code, outputs)
		output.Loading = p.Loading

		if err := tx.InsertAtSelection(input, output); err != nil {
			logger.Warn("failed to insert jupyter cell", zap.Error(err))
			return false
		}
		if p.Loading == "" {
			tx.SelectEnd(input)
		}
		return true
	}
}

// Equations and drawings are inline nodes and are wrapped in a paragraph
// when inserted at block level.
func equationHandler(tx *tree.Tx, payload any) bool {
	p, ok := payload.(EquationPayload)
	if !ok {
		return false
	}
	return tx.InsertAtSelection(tree.NewParagraph(tree.NewEquation(p.Equation, p.Inline))) == nil
}

func excalidrawHandler(tx *tree.Tx, payload any) bool {
	p, ok := payload.(ExcalidrawPayload)
	if !ok {
		return false
	}
	return tx.InsertAtSelection(tree.NewParagraph(tree.NewExcalidraw(p.Data))) == nil
}

func imageHandler(tx *tree.Tx, payload any) bool {
	p, ok := payload.(ImagePayload)
	if !ok {
		return false
	}
	img := tree.NewImage(p.Src, p.AltText)
	img.Width, img.Height = p.Width, p.Height
	return tx.InsertAtSelection(img) == nil
}

func youTubeHandler(tx *tree.Tx, payload any) bool {
	p, ok := payload.(YouTubePayload)
	if !ok {
		return false
	}
	return tx.InsertAtSelection(tree.NewYouTube(p.VideoID)) == nil
}

func tableHandler(tx *tree.Tx, payload any) bool {
	p, ok := payload.(TablePayload)
	if !ok {
		return false
	}

	rows, columns := p.Rows, p.Columns
	if rows < len(p.Data) {
		rows = len(p.Data)
	}
	for _, row := range p.Data {
		columns = max(columns, len(row))
	}
	if rows < 1 || columns < 1 {
		return false
	}

	var rowNodes []tree.Node
	for r := 0; r < rows; r++ {
		var cells []tree.Node
		for c := 0; c < columns; c++ {
			text := ""
			if r < len(p.Data) && c < len(p.Data[r]) {
				text = p.Data[r][c]
			}
			cells = append(cells, tree.NewTableCell(p.Headers && r == 0, tree.NewParagraph(tree.NewText(text, 0))))
		}
		rowNodes = append(rowNodes, tree.NewTableRow(cells...))
	}
	return tx.InsertAtSelection(tree.NewTable(rowNodes...)) == nil
}

func collapsibleHandler(tx *tree.Tx, payload any) bool {
	p, ok := payload.(CollapsiblePayload)
	if !ok {
		return false
	}
	title := tree.NewCollapsibleTitle(tree.NewText(p.Title, 0))
	content := tree.NewCollapsibleContent(tree.NewParagraph())
	return tx.InsertAtSelection(tree.NewCollapsible(p.Open, title, content)) == nil
}

func horizontalRuleHandler(tx *tree.Tx, _ any) bool {
	return tx.InsertAtSelection(tree.NewHorizontalRule()) == nil
}
