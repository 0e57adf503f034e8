// Package block converts between document trees and Blocks, the flat view
// of a document exposed to tools.
package block

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/stateful/cellbook/pkg/document/tree"
	"github.com/stateful/cellbook/pkg/nbformat"
)

type Type int

const (
	TypeUnknown Type = iota
	TypeParagraph
	TypeHeading
	TypeQuote
	TypeCode
	TypeList
	TypeListItem
	TypeHorizontalRule
	TypeImage
	TypeEquation
	TypeYouTube
	TypeExcalidraw
	TypeTable
	TypeCollapsible
	TypeJupyterCell
)

var typeNames = map[Type]string{
	TypeUnknown:        "unknown",
	TypeParagraph:      "paragraph",
	TypeHeading:        "heading",
	TypeQuote:          "quote",
	TypeCode:           "code",
	TypeList:           "list",
	TypeListItem:       "listitem",
	TypeHorizontalRule: "horizontalrule",
	TypeImage:          "image",
	TypeEquation:       "equation",
	TypeYouTube:        "youtube",
	TypeExcalidraw:     "excalidraw",
	TypeTable:          "table",
	TypeCollapsible:    "collapsible",
	TypeJupyterCell:    "jupyter-cell",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return typeNames[TypeUnknown]
}

// ParseType maps a block_type tag to a Type. "text" is an alias of
// paragraph; unrecognised tags map to TypeUnknown.
func ParseType(s string) Type {
	switch s {
	case "text":
		return TypeParagraph
	case "collapsible-container":
		return TypeCollapsible
	}
	for t, name := range typeNames {
		if name == s && t != TypeUnknown {
			return t
		}
	}
	return TypeUnknown
}

// IsProse reports whether sources of type t may be decomposed from
// markdown into several blocks.
func (t Type) IsProse() bool {
	return t == TypeParagraph
}

type Format = tree.TextFormat

const (
	FormatBold          = tree.FormatBold
	FormatItalic        = tree.FormatItalic
	FormatStrikethrough = tree.FormatStrikethrough
	FormatCode          = tree.FormatCode
)

type Segment struct {
	Text   string `json:"text"`
	Format Format `json:"format,omitempty"`
}

// Source is block content. It decodes from a string or an array of lines
// joined with newlines.
type Source string

func (s *Source) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var lines []string
		if err := json.Unmarshal(data, &lines); err != nil {
			return errors.WithStack(err)
		}
		*s = Source(strings.Join(lines, "\n"))
		return nil
	}
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.WithStack(err)
	}
	*s = Source(str)
	return nil
}

func (s Source) String() string {
	return string(s)
}

// Block is one logical unit of a document. Blocks are derived from the
// tree on every read and never stored.
type Block struct {
	ID   string
	Type Type
	// RawType keeps the tag of TypeUnknown blocks.
	RawType    string
	Source     Source
	Metadata   map[string]any
	Formatting []Segment
}

type blockJSON struct {
	ID         string         `json:"block_id,omitempty"`
	Type       string         `json:"block_type"`
	Source     Source         `json:"source"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Formatting []Segment      `json:"formatting,omitempty"`
}

func (b Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockJSON{
		ID:         b.ID,
		Type:       b.TypeName(),
		Source:     b.Source,
		Metadata:   b.Metadata,
		Formatting: b.Formatting,
	})
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var raw blockJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}
	*b = Block{
		ID:         raw.ID,
		Type:       ParseType(raw.Type),
		Source:     raw.Source,
		Metadata:   raw.Metadata,
		Formatting: raw.Formatting,
	}
	if b.Type == TypeUnknown {
		b.RawType = raw.Type
	}
	return nil
}

// TypeName returns the block_type tag of b.
func (b Block) TypeName() string {
	if b.Type == TypeUnknown && b.RawType != "" {
		return b.RawType
	}
	return b.Type.String()
}

func (b Block) Meta(key string) (any, bool) {
	if b.Metadata == nil {
		return nil, false
	}
	v, ok := b.Metadata[key]
	return v, ok && v != nil
}

func (b Block) MetaString(key string) string {
	v, _ := b.Meta(key)
	s, _ := v.(string)
	return s
}

// MetaInt reads a numeric metadata value, whether it was set from Go or
// decoded from JSON.
func (b Block) MetaInt(key string) (int, bool) {
	v, ok := b.Meta(key)
	if !ok {
		return 0, false
	}
	switch v := v.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	}
	return 0, false
}

func (b Block) MetaBool(key string) (value, ok bool) {
	v, found := b.Meta(key)
	if !found {
		return false, false
	}
	value, ok = v.(bool)
	return value, ok
}

// Outputs decodes metadata.outputs into notebook outputs.
func (b Block) Outputs() ([]nbformat.Output, error) {
	v, ok := b.Meta("outputs")
	if !ok {
		return nil, nil
	}
	if outputs, ok := v.([]nbformat.Output); ok {
		return outputs, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var outputs []nbformat.Output
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, errors.Wrap(err, "invalid outputs metadata")
	}
	return outputs, nil
}

func (b *Block) SetMeta(key string, value any) {
	if b.Metadata == nil {
		b.Metadata = make(map[string]any)
	}
	b.Metadata[key] = value
}

// Collapsible returns the id of the collapsible container b belongs to.
func (b Block) Collapsible() string {
	return b.MetaString("collapsible")
}

// BriefBlock is the listing projection of a Block.
type BriefBlock struct {
	ID          string `json:"block_id"`
	Type        string `json:"block_type"`
	Preview     string `json:"preview"`
	Collapsible string `json:"collapsible,omitempty"`
}

func Brief(blocks []Block) []BriefBlock {
	result := make([]BriefBlock, 0, len(blocks))
	for _, b := range blocks {
		result = append(result, BriefBlock{
			ID:          b.ID,
			Type:        b.TypeName(),
			Preview:     GeneratePreview(b),
			Collapsible: b.Collapsible(),
		})
	}
	return result
}
