package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stateful/cellbook/pkg/document/tree"
	"github.com/stateful/cellbook/pkg/nbformat"
)

func TestJupyterCellCommand(t *testing.T) {
	doc := tree.New()
	Register(doc, zaptest.NewLogger(t))

	var input *tree.JupyterInput
	var output *tree.JupyterOutput
	require.NoError(t, doc.Update(func(tx *tree.Tx) error {
		mark := tx.CreatedMark()
		require.True(t, tx.DispatchCommand(InsertJupyterCell, JupyterCellPayload{
			Code:    "a = 1\nprint(a)",
			Outputs: []nbformat.Output{nbformat.NewStream("stdout", "1\n")},
		}))
		for _, n := range tx.CreatedSince(mark) {
			switch n := n.(type) {
			case *tree.JupyterInput:
				input = n
			case *tree.JupyterOutput:
				output = n
			}
		}
		return nil
	}))

	require.NotNil(t, input)
	require.NotNil(t, output)
	assert.Equal(t, "python", input.Language)
	assert.Equal(t, "a = 1\nprint(a)", input.TextContent())
	assert.Equal(t, input.UUID, output.InputUUID)
	assert.NotEmpty(t, output.OutputUUID)
	assert.Len(t, output.Outputs, 1)
	assert.Same(t, tree.Node(output), tree.NextSibling(input))

	sel := doc.Selection()
	require.NotNil(t, sel)
	assert.Equal(t, input.Key(), sel.Anchor.Key)
}

func TestJupyterCellCommandLoading(t *testing.T) {
	doc := tree.New()
	Register(doc, nil)

	require.True(t, doc.DispatchCommand(InsertJupyterCell, JupyterCellPayload{Code: "x", Loading: "initial"}))

	sel := doc.Selection()
	require.NotNil(t, sel)
	require.NoError(t, doc.Read(func(tx *tree.Tx) error {
		assert.Equal(t, tx.Root().Key(), sel.Anchor.Key)
		assert.Equal(t, 2, sel.Anchor.Offset)
		out, ok := tx.Root().LastChild().(*tree.JupyterOutput)
		require.True(t, ok)
		assert.Equal(t, "initial", out.Loading)
		return nil
	}))
}

func TestWrappedInlineCommands(t *testing.T) {
	doc := tree.New()
	Register(doc, nil)

	require.True(t, doc.DispatchCommand(InsertEquation, EquationPayload{Equation: "E=mc^2"}))
	require.True(t, doc.DispatchCommand(InsertExcalidraw, ExcalidrawPayload{Data: `{"elements":[]}`}))

	require.NoError(t, doc.Read(func(tx *tree.Tx) error {
		children := tx.Root().Children()
		require.Len(t, children, 2)
		for _, c := range children {
			assert.Equal(t, tree.KindParagraph, c.Kind())
		}
		eq, ok := children[0].(*tree.Paragraph).FirstChild().(*tree.Equation)
		require.True(t, ok)
		assert.Equal(t, "E=mc^2", eq.Latex)
		assert.Equal(t, tree.KindExcalidraw, children[1].(*tree.Paragraph).FirstChild().Kind())
		return nil
	}))
}

func TestTableCommand(t *testing.T) {
	doc := tree.New()
	Register(doc, nil)

	assert.False(t, doc.DispatchCommand(InsertTable, TablePayload{}))
	require.True(t, doc.DispatchCommand(InsertTable, TablePayload{
		Rows:    1,
		Columns: 2,
		Headers: true,
		Data:    [][]string{{"a", "b"}, {"1", "2", "3"}},
	}))

	require.NoError(t, doc.Read(func(tx *tree.Tx) error {
		table, ok := tx.Root().FirstChild().(*tree.Table)
		require.True(t, ok)
		rows, columns := table.Dimensions()
		assert.Equal(t, 2, rows)
		assert.Equal(t, 3, columns)
		assert.Equal(t, "a\tb\t\n1\t2\t3", table.TextContent())
		assert.True(t, table.FirstChild().(*tree.TableRow).FirstChild().(*tree.TableCell).Header)
		return nil
	}))
}

func TestCollapsibleCommand(t *testing.T) {
	doc := tree.New()
	Register(doc, nil)

	require.True(t, doc.DispatchCommand(InsertCollapsible, CollapsiblePayload{Title: "Details", Open: true}))
	require.True(t, doc.DispatchCommand(InsertYouTube, YouTubePayload{VideoID: "abc"}))
	require.True(t, doc.DispatchCommand(InsertImage, ImagePayload{Src: "a.png", AltText: "A"}))
	require.True(t, doc.DispatchCommand(InsertHorizontalRule, nil))

	require.NoError(t, doc.Read(func(tx *tree.Tx) error {
		children := tx.Root().Children()
		require.Len(t, children, 4)
		c, ok := children[0].(*tree.CollapsibleContainer)
		require.True(t, ok)
		assert.True(t, c.Open)
		assert.Equal(t, "Details", c.Title().TextContent())
		assert.Equal(t, 1, c.Content().ChildCount())
		assert.Equal(t, tree.KindYouTube, children[1].Kind())
		assert.Equal(t, tree.KindImage, children[2].Kind())
		assert.Equal(t, tree.KindHorizontalRule, children[3].Kind())
		return nil
	}))
}

func TestUnregister(t *testing.T) {
	doc := tree.New()
	unregister := Register(doc, nil)
	unregister()
	assert.False(t, doc.DispatchCommand(InsertEquation, EquationPayload{Equation: "x"}))
}
