package tree

import "fmt"

// Kind identifies the concrete type of a Node.
type Kind int

const (
	KindRoot Kind = iota
	KindParagraph
	KindHeading
	KindQuote
	KindCode
	KindList
	KindListItem
	KindText
	KindLineBreak
	KindHorizontalRule
	KindImage
	KindEquation
	KindYouTube
	KindExcalidraw
	KindTable
	KindTableRow
	KindTableCell
	KindCollapsibleContainer
	KindCollapsibleTitle
	KindCollapsibleContent
	KindJupyterCell
	KindJupyterInput
	KindJupyterOutput
	KindRaw
)

var kindNames = [...]string{
	KindRoot:                 "root",
	KindParagraph:            "paragraph",
	KindHeading:              "heading",
	KindQuote:                "quote",
	KindCode:                 "code",
	KindList:                 "list",
	KindListItem:             "listitem",
	KindText:                 "text",
	KindLineBreak:            "linebreak",
	KindHorizontalRule:       "horizontalrule",
	KindImage:                "image",
	KindEquation:             "equation",
	KindYouTube:              "youtube",
	KindExcalidraw:           "excalidraw",
	KindTable:                "table",
	KindTableRow:             "tablerow",
	KindTableCell:            "tablecell",
	KindCollapsibleContainer: "collapsible-container",
	KindCollapsibleTitle:     "collapsible-title",
	KindCollapsibleContent:   "collapsible-content",
	KindJupyterCell:          "jupyter-cell",
	KindJupyterInput:         "jupyter-input",
	KindJupyterOutput:        "jupyter-output",
	KindRaw:                  "raw",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsElement reports whether nodes of kind k can hold children.
func (k Kind) IsElement() bool {
	switch k {
	case KindText,
		KindLineBreak,
		KindHorizontalRule,
		KindImage,
		KindEquation,
		KindYouTube,
		KindExcalidraw,
		KindJupyterOutput,
		KindRaw:
		return false
	}
	return true
}

// IsShadowRoot reports whether children of kind k are top-level blocks
// of their own scope.
func (k Kind) IsShadowRoot() bool {
	return k == KindRoot || k == KindCollapsibleContent || k == KindTableCell
}
