package block

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateful/cellbook/pkg/document/registry"
	"github.com/stateful/cellbook/pkg/document/tree"
	"github.com/stateful/cellbook/pkg/nbformat"
)

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeParagraph, ParseType("paragraph"))
	assert.Equal(t, TypeParagraph, ParseType("text"))
	assert.Equal(t, TypeJupyterCell, ParseType("jupyter-cell"))
	assert.Equal(t, TypeCollapsible, ParseType("collapsible-container"))
	assert.Equal(t, TypeUnknown, ParseType("sparkline"))
	assert.Equal(t, TypeUnknown, ParseType("unknown"))
}

func TestBlockJSON(t *testing.T) {
	var b Block
	err := json.Unmarshal([]byte(`{"block_type":"jupyter-cell","source":["import os","os.getcwd()"],"metadata":{"language":"python"}}`), &b)
	require.NoError(t, err)
	assert.Equal(t, TypeJupyterCell, b.Type)
	assert.Equal(t, Source("import os\nos.getcwd()"), b.Source)
	assert.Equal(t, "python", b.MetaString("language"))

	err = json.Unmarshal([]byte(`{"block_type":"sparkline","source":"1 2 3"}`), &b)
	require.NoError(t, err)
	assert.Equal(t, TypeUnknown, b.Type)
	assert.Equal(t, "sparkline", b.TypeName())

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"block_type":"sparkline","source":"1 2 3"}`, string(data))
}

func TestMetaInt(t *testing.T) {
	b := Block{Metadata: map[string]any{"a": 2, "b": float64(3), "c": "4", "d": 1.5}}

	v, ok := b.MetaInt("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = b.MetaInt("b")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = b.MetaInt("c")
	assert.True(t, ok)
	assert.Equal(t, 4, v)

	_, ok = b.MetaInt("d")
	assert.False(t, ok)

	_, ok = b.MetaInt("missing")
	assert.False(t, ok)
}

func TestOutputsFromJSONMetadata(t *testing.T) {
	var b Block
	err := json.Unmarshal([]byte(`{"block_type":"jupyter-cell","source":"print(1)","metadata":{"outputs":[{"output_type":"stream","name":"stdout","text":"1\n"}]}}`), &b)
	require.NoError(t, err)

	outputs, err := b.Outputs()
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, nbformat.OutputTypeStream, outputs[0].OutputType)
	assert.Equal(t, "1\n", string(outputs[0].Text))
}

func TestSimpleRoundTrip(t *testing.T) {
	blocks := []Block{
		{Type: TypeParagraph, Source: "plain text without markup"},
		{Type: TypeHeading, Source: "Title", Metadata: map[string]any{"level": 2}},
		{Type: TypeQuote, Source: "quoted words"},
		{Type: TypeCode, Source: "SELECT 1;\nSELECT 2;", Metadata: map[string]any{"language": "sql"}},
		{Type: TypeList, Source: "a\nb\nc", Metadata: map[string]any{"list_type": "bullet"}},
		{Type: TypeListItem, Source: "item"},
		{Type: TypeHorizontalRule},
	}

	for _, b := range blocks {
		t.Run(b.Type.String(), func(t *testing.T) {
			require.True(t, IsSimple(b.Type))
			n := ToNode(b)
			require.NotNil(t, n)

			got := FromNode(n)
			require.NotNil(t, got)
			assert.Equal(t, b.Type, got.Type)
			assert.Equal(t, b.Source, got.Source)
			assert.Equal(t, n.Key(), got.ID)
		})
	}
}

func TestToNodeCommandTypes(t *testing.T) {
	for _, typ := range []Type{TypeEquation, TypeJupyterCell, TypeImage, TypeYouTube, TypeExcalidraw, TypeTable, TypeCollapsible} {
		assert.False(t, IsSimple(typ), typ.String())
		assert.Nil(t, ToNode(Block{Type: typ, Source: "x"}), typ.String())
	}
}

func TestToNodeFormatting(t *testing.T) {
	n := ToNode(Block{Type: TypeParagraph, Source: "a **b** c"})
	require.NotNil(t, n)
	assert.Equal(t, "a b c", n.TextContent())

	b := FromNode(n)
	require.NotNil(t, b)
	expected := []Segment{{Text: "a "}, {Text: "b", Format: FormatBold}, {Text: " c"}}
	if diff := cmp.Diff(expected, b.Formatting); diff != "" {
		t.Fatalf("unexpected formatting (-want +got):\n%s", diff)
	}
}

func TestHeadingTag(t *testing.T) {
	n := ToNode(Block{Type: TypeHeading, Source: "Section", Metadata: map[string]any{"tag": "h3"}})
	heading, ok := n.(*tree.Heading)
	require.True(t, ok)
	assert.Equal(t, 3, heading.Level)
}

func TestFromNodeWrapperIsTransparent(t *testing.T) {
	equation := tree.NewEquation("E = mc^2", false)
	wrapper := tree.NewParagraph(equation)

	b := FromNode(wrapper)
	require.NotNil(t, b)
	assert.Equal(t, TypeEquation, b.Type)
	assert.Equal(t, equation.Key(), b.ID)
	assert.Equal(t, Source("E = mc^2"), b.Source)
}

func TestFromNodeAbsorbed(t *testing.T) {
	assert.Nil(t, FromNode(tree.NewJupyterOutput("u", "o", "", nil)))
	assert.Nil(t, FromNode(tree.NewCollapsibleTitle(tree.NewText("t", 0))))
	assert.Nil(t, FromNode(tree.NewCollapsibleContent()))
}

func newCell(uuid, code string, outputs []nbformat.Output) (*tree.JupyterInput, *tree.JupyterOutput) {
	input := tree.NewJupyterInput("python", uuid, tree.CodeChildren(code)...)
	output := tree.NewJupyterOutput(uuid, uuid+"-out", code, outputs)
	return input, output
}

func TestFromTxMergesJupyterCells(t *testing.T) {
	doc := tree.New()
	reg := registry.New()
	defer reg.Attach(doc)()

	first, firstOut := newCell("u1", "print(1)", []nbformat.Output{nbformat.NewStream("stdout", "1\n")})
	second, secondOut := newCell("u2", "x = 2", nil)
	para := tree.NewParagraph(tree.NewText("between", 0))

	require.NoError(t, doc.Update(func(tx *tree.Tx) error {
		return tx.Append(tx.Root(), first, firstOut, para, second, secondOut)
	}))

	var blocks []Block
	require.NoError(t, doc.Read(func(tx *tree.Tx) error {
		blocks = FromTx(tx, reg)
		return nil
	}))

	require.Len(t, blocks, 3)
	assert.Equal(t, first.Key(), blocks[0].ID)
	assert.Equal(t, TypeJupyterCell, blocks[0].Type)
	assert.Equal(t, Source("print(1)"), blocks[0].Source)
	outputs, err := blocks[0].Outputs()
	require.NoError(t, err)
	assert.Len(t, outputs, 1)

	assert.Equal(t, TypeParagraph, blocks[1].Type)
	assert.Equal(t, second.Key(), blocks[2].ID)

	for _, b := range blocks {
		assert.NotEqual(t, firstOut.Key(), b.ID)
		assert.NotEqual(t, secondOut.Key(), b.ID)
	}
}

func TestFromTxWithoutRegistry(t *testing.T) {
	doc := tree.New()
	input, output := newCell("u1", "ls", []nbformat.Output{nbformat.NewStream("stdout", "a\n")})

	require.NoError(t, doc.Update(func(tx *tree.Tx) error {
		return tx.Append(tx.Root(), input, output)
	}))

	var blocks []Block
	require.NoError(t, doc.Read(func(tx *tree.Tx) error {
		blocks = FromTx(tx, nil)
		return nil
	}))

	require.Len(t, blocks, 1)
	_, ok := blocks[0].Meta("outputs")
	assert.True(t, ok)
}

func TestFromTxCollapsible(t *testing.T) {
	doc := tree.New()
	container := tree.NewCollapsible(true,
		tree.NewCollapsibleTitle(tree.NewText("Details", 0)),
		tree.NewCollapsibleContent(
			tree.NewParagraph(tree.NewText("inside", 0)),
			tree.NewHeading(2, tree.NewText("nested", 0)),
		),
	)
	after := tree.NewParagraph(tree.NewText("after", 0))

	require.NoError(t, doc.Update(func(tx *tree.Tx) error {
		return tx.Append(tx.Root(), container, after)
	}))

	var blocks []Block
	require.NoError(t, doc.Read(func(tx *tree.Tx) error {
		blocks = FromTx(tx, nil)
		return nil
	}))

	require.Len(t, blocks, 4)
	assert.Equal(t, TypeCollapsible, blocks[0].Type)
	assert.Equal(t, Source("Details"), blocks[0].Source)
	assert.Empty(t, blocks[0].Collapsible())
	assert.Equal(t, container.Key(), blocks[1].Collapsible())
	assert.Equal(t, container.Key(), blocks[2].Collapsible())
	assert.Empty(t, blocks[3].Collapsible())

	brief := Brief(blocks)
	require.Len(t, brief, 4)
	assert.Equal(t, "collapsible", brief[0].Type)
	assert.Equal(t, "Details", brief[0].Preview)
	assert.Equal(t, container.Key(), brief[1].Collapsible)
}
