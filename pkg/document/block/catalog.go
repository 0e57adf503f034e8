package block

type Category string

const (
	CategoryText    Category = "text"
	CategoryHeading Category = "heading"
	CategoryList    Category = "list"
	CategoryJupyter Category = "jupyter"
	CategoryCode    Category = "code"
	CategoryMedia   Category = "media"
)

type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

type Example struct {
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	Properties map[string]any `json:"properties,omitempty"`
}

// TypeSchema describes an insertable block type.
type TypeSchema struct {
	Type               string                    `json:"type"`
	DisplayName        string                    `json:"displayName"`
	Category           Category                  `json:"category"`
	Description        string                    `json:"description"`
	RequiredProperties []string                  `json:"requiredProperties,omitempty"`
	OptionalProperties map[string]PropertySchema `json:"optionalProperties,omitempty"`
	Example            *Example                  `json:"example,omitempty"`
	CanContainChildren bool                      `json:"canContainChildren"`
	IsExecutable       bool                      `json:"isExecutable"`
}

var catalog = []TypeSchema{
	{
		Type:               TypeParagraph.String(),
		DisplayName:        "Paragraph",
		Category:           CategoryText,
		Description:        "A paragraph of text. Inline markdown (**bold**, *italic*, ~~strike~~, `code`) is converted to formatting; headings, lists and blank lines split the source into several blocks.",
		CanContainChildren: true,
		Example:            &Example{Type: "paragraph", Source: "This is a regular paragraph with text."},
	},
	{
		Type:               TypeHeading.String(),
		DisplayName:        "Heading",
		Category:           CategoryHeading,
		Description:        "A heading. Put plain text in source, without leading # characters, and set the level with the tag property.",
		RequiredProperties: []string{"tag"},
		OptionalProperties: map[string]PropertySchema{
			"tag": {
				Type:        "string",
				Description: "Heading level from h1 (largest) to h6 (smallest).",
				Enum:        []string{"h1", "h2", "h3", "h4", "h5", "h6"},
				Default:     "h2",
			},
		},
		CanContainChildren: true,
		Example:            &Example{Type: "heading", Source: "Introduction", Properties: map[string]any{"tag": "h1"}},
	},
	{
		Type:               TypeQuote.String(),
		DisplayName:        "Blockquote",
		Category:           CategoryText,
		Description:        "A blockquote for highlighting quoted text.",
		CanContainChildren: true,
		Example:            &Example{Type: "quote", Source: "To be or not to be, that is the question."},
	},
	{
		Type:        TypeList.String(),
		DisplayName: "List",
		Category:    CategoryList,
		Description: "A bullet, numbered or check list. Each line of source becomes one list item.",
		OptionalProperties: map[string]PropertySchema{
			"listType": {
				Type:        "string",
				Description: "Type of list.",
				Enum:        []string{"bullet", "number", "check"},
				Default:     "bullet",
			},
			"start": {
				Type:        "number",
				Description: "Starting number for numbered lists.",
				Default:     1,
			},
		},
		CanContainChildren: true,
		Example:            &Example{Type: "list", Source: "Apple\nBanana\nTangerine", Properties: map[string]any{"listType": "number", "start": 1}},
	},
	{
		Type:        TypeHorizontalRule.String(),
		DisplayName: "Horizontal Rule",
		Category:    CategoryText,
		Description: "A divider line between sections. Source is ignored.",
		Example:     &Example{Type: "horizontalrule"},
	},
	{
		Type:        TypeJupyterCell.String(),
		DisplayName: "Jupyter Code Cell",
		Category:    CategoryJupyter,
		Description: "An executable code cell with an output area. Prefer it over static code blocks for code that should run.",
		OptionalProperties: map[string]PropertySchema{
			"language": {
				Type:        "string",
				Description: "Programming language of the cell.",
				Enum:        []string{"python", "javascript", "bash"},
				Default:     "python",
			},
			"kernelName": {
				Type:        "string",
				Description: "Name of the kernel to use.",
			},
		},
		IsExecutable: true,
		Example:      &Example{Type: "jupyter-cell", Source: "import pandas as pd\ndf = pd.DataFrame({'A': [1, 2, 3]})\ndf.head()", Properties: map[string]any{"language": "python"}},
	},
	{
		Type:        TypeCode.String(),
		DisplayName: "Code Block",
		Category:    CategoryCode,
		Description: "A static code block that is displayed but never executed, such as SQL or configuration.",
		OptionalProperties: map[string]PropertySchema{
			"language": {
				Type:        "string",
				Description: "Language used for syntax highlighting, for example sql, json or yaml.",
				Default:     "plaintext",
			},
		},
		Example: &Example{Type: "code", Source: "SELECT * FROM users WHERE active = true;", Properties: map[string]any{"language": "sql"}},
	},
	{
		Type:        TypeEquation.String(),
		DisplayName: "Equation",
		Category:    CategoryMedia,
		Description: "A display LaTeX equation. Put the LaTeX in source.",
		OptionalProperties: map[string]PropertySchema{
			"equation": {
				Type:        "string",
				Description: "LaTeX equation, used when source is empty.",
			},
		},
		Example: &Example{Type: "equation", Source: "E = mc^2"},
	},
	{
		Type:               TypeImage.String(),
		DisplayName:        "Image",
		Category:           CategoryMedia,
		Description:        "An image referenced by URL.",
		RequiredProperties: []string{"src"},
		OptionalProperties: map[string]PropertySchema{
			"src":      {Type: "string", Description: "Image URL."},
			"alt_text": {Type: "string", Description: "Alternative text."},
		},
		Example: &Example{Type: "image", Properties: map[string]any{"src": "https://example.com/chart.png", "alt_text": "Chart"}},
	},
	{
		Type:        TypeYouTube.String(),
		DisplayName: "YouTube Video",
		Category:    CategoryMedia,
		Description: "An embedded YouTube video. Put the video id in source.",
		Example:     &Example{Type: "youtube", Source: "dQw4w9WgXcQ"},
	},
	{
		Type:        TypeTable.String(),
		DisplayName: "Table",
		Category:    CategoryText,
		Description: "A table. Rows and columns give its size; data fills the cells row by row.",
		OptionalProperties: map[string]PropertySchema{
			"rows":    {Type: "number", Description: "Number of rows.", Default: 3},
			"columns": {Type: "number", Description: "Number of columns.", Default: 3},
			"headers": {Type: "boolean", Description: "Whether the first row is a header row.", Default: true},
			"data":    {Type: "array", Description: "Cell text as an array of rows."},
		},
		CanContainChildren: true,
		Example:            &Example{Type: "table", Properties: map[string]any{"rows": 2, "columns": 2, "data": [][]string{{"Name", "Age"}, {"Ada", "36"}}}},
	},
	{
		Type:        TypeCollapsible.String(),
		DisplayName: "Collapsible Section",
		Category:    CategoryText,
		Description: "A collapsible section. Source is the title; insert blocks into it with metadata.collapsible set to its block_id.",
		OptionalProperties: map[string]PropertySchema{
			"open": {Type: "boolean", Description: "Whether the section starts expanded.", Default: true},
		},
		CanContainChildren: true,
		Example:            &Example{Type: "collapsible", Source: "Details"},
	},
	{
		Type:        TypeExcalidraw.String(),
		DisplayName: "Excalidraw Drawing",
		Category:    CategoryMedia,
		Description: "A drawing stored as Excalidraw scene JSON in source.",
		Example:     &Example{Type: "excalidraw", Source: `{"elements":[]}`},
	},
}

// CatalogResult is the listing of insertable block types.
type CatalogResult struct {
	Types      []TypeSchema `json:"types"`
	Count      int          `json:"count"`
	Categories []Category   `json:"categories"`
}

// Catalog lists the insertable block types, restricted to category when
// it is not empty. It does not depend on any document.
func Catalog(category Category) CatalogResult {
	result := CatalogResult{Types: []TypeSchema{}, Categories: []Category{}}
	seen := make(map[Category]bool)
	for _, schema := range catalog {
		if category != "" && schema.Category != category {
			continue
		}
		result.Types = append(result.Types, schema)
		if !seen[schema.Category] {
			seen[schema.Category] = true
			result.Categories = append(result.Categories, schema.Category)
		}
	}
	result.Count = len(result.Types)
	return result
}
