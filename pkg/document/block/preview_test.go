package block

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestGeneratePreview(t *testing.T) {
	long := strings.Repeat("abcdefghij", 5)

	testCases := []struct {
		name     string
		block    Block
		expected string
	}{
		{"Paragraph", Block{Type: TypeParagraph, Source: Source(long)}, long[:37] + "..."},
		{"Short", Block{Type: TypeParagraph, Source: "hi"}, "hi"},
		{"HorizontalRule", Block{Type: TypeHorizontalRule, Source: "ignored"}, ""},
		{"YouTube", Block{Type: TypeYouTube, Metadata: map[string]any{"video_id": "abc123"}}, "youtu.be/abc123"},
		{"Table", Block{Type: TypeTable, Metadata: map[string]any{"rows": 2, "columns": 3}}, "2×3 table"},
		{"DisplayEquation", Block{Type: TypeEquation, Source: "E = mc^2"}, "$$E = mc^2$$"},
		{"InlineEquation", Block{Type: TypeEquation, Source: "x", Metadata: map[string]any{"inline": true}}, "$x$"},
		{"LongEquation", Block{Type: TypeEquation, Source: Source(long)}, "$$" + long[:17] + "...$$"},
		{"ImageAlt", Block{Type: TypeImage, Metadata: map[string]any{"alt_text": "Chart", "src": "https://x/y.png"}}, "Chart"},
		{"ImageFile", Block{Type: TypeImage, Metadata: map[string]any{"src": "https://x/y.png"}}, "y.png"},
		{"List", Block{Type: TypeList, Source: "a\nb\nc"}, "a, b, c"},
		{"Code", Block{Type: TypeCode, Source: "first\nsecond"}, "first"},
		{"JupyterCell", Block{Type: TypeJupyterCell, Source: "import os\nprint(os.getcwd())"}, "import os"},
		{"Collapsible", Block{Type: TypeCollapsible, Source: "Details"}, "Details"},
		{
			"Excalidraw",
			Block{Type: TypeExcalidraw, Metadata: map[string]any{"data": `{"elements":[{"type":"rectangle"},{"type":"text","text":"Hello"},{"type":"rectangle"},{"type":"ellipse","isDeleted":true}]}`}},
			"2 rectangle, 1 text: Hello",
		},
		{"EmptyExcalidraw", Block{Type: TypeExcalidraw, Metadata: map[string]any{"data": `{}`}}, "empty drawing"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, GeneratePreview(tc.block))
		})
	}
}

func TestGeneratePreviewLength(t *testing.T) {
	preview := GeneratePreview(Block{Type: TypeParagraph, Source: Source(strings.Repeat("é", 60))})
	assert.Equal(t, 40, utf8.RuneCountInString(preview))
	assert.True(t, strings.HasSuffix(preview, "..."))
}

func TestCatalog(t *testing.T) {
	all := Catalog("")
	assert.Equal(t, len(all.Types), all.Count)
	assert.Contains(t, all.Categories, CategoryJupyter)

	jupyter := Catalog(CategoryJupyter)
	assert.Equal(t, 1, jupyter.Count)
	assert.Equal(t, "jupyter-cell", jupyter.Types[0].Type)
	assert.True(t, jupyter.Types[0].IsExecutable)
	assert.Equal(t, []Category{CategoryJupyter}, jupyter.Categories)

	none := Catalog("nope")
	assert.Equal(t, 0, none.Count)
	assert.NotNil(t, none.Types)
}
