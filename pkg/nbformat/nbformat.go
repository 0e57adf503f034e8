// Package nbformat implements the Jupyter notebook interchange format,
// version 4.5.
package nbformat

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	Version      = 4
	VersionMinor = 5
)

type CellType string

const (
	CellTypeCode     CellType = "code"
	CellTypeMarkdown CellType = "markdown"
	CellTypeRaw      CellType = "raw"
)

// Notebook resembles INotebookContent from @jupyterlab/nbformat.
type Notebook struct {
	Cells         []*Cell        `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// New returns an empty notebook stamped with python3 kernel metadata.
func New() *Notebook {
	return &Notebook{
		Cells:         []*Cell{},
		Metadata:      DefaultMetadata(),
		NBFormat:      Version,
		NBFormatMinor: VersionMinor,
	}
}

func DefaultMetadata() map[string]any {
	return map[string]any{
		"kernelspec": map[string]any{
			"display_name": "Python 3",
			"language":     "python",
			"name":         "python3",
		},
		"language_info": map[string]any{
			"name": "python",
		},
	}
}

type Cell struct {
	ID             string          `json:"id,omitempty"`
	CellType       CellType        `json:"cell_type"`
	Source         MultilineString `json:"source"`
	Metadata       map[string]any  `json:"metadata"`
	Outputs        []Output        `json:"outputs,omitempty"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
	Attachments    map[string]any  `json:"attachments,omitempty"`
}

func NewCodeCell(source string) *Cell {
	count := 0
	return &Cell{
		ID:             NewCellID(),
		CellType:       CellTypeCode,
		Source:         MultilineString(source),
		Metadata:       map[string]any{},
		Outputs:        []Output{},
		ExecutionCount: &count,
	}
}

func NewMarkdownCell(source string) *Cell {
	return &Cell{
		ID:       NewCellID(),
		CellType: CellTypeMarkdown,
		Source:   MultilineString(source),
		Metadata: map[string]any{},
	}
}

func NewRawCell(source string) *Cell {
	return &Cell{
		ID:       NewCellID(),
		CellType: CellTypeRaw,
		Source:   MultilineString(source),
		Metadata: map[string]any{},
	}
}

// NewCellID returns an identifier matching ^[a-zA-Z0-9-_]+$ as
// required since nbformat 4.5.
func NewCellID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// MarshalJSON writes only the fields defined for the cell type; code
// cells always carry outputs and a (possibly null) execution_count.
func (c *Cell) MarshalJSON() ([]byte, error) {
	type common struct {
		ID       string          `json:"id,omitempty"`
		CellType CellType        `json:"cell_type"`
		Metadata map[string]any  `json:"metadata"`
		Source   MultilineString `json:"source"`
	}

	base := common{
		ID:       c.ID,
		CellType: c.CellType,
		Metadata: c.Metadata,
		Source:   c.Source,
	}
	if base.Metadata == nil {
		base.Metadata = map[string]any{}
	}

	switch c.CellType {
	case CellTypeCode:
		outputs := c.Outputs
		if outputs == nil {
			outputs = []Output{}
		}
		return json.Marshal(struct {
			common
			ExecutionCount *int     `json:"execution_count"`
			Outputs        []Output `json:"outputs"`
		}{base, c.ExecutionCount, outputs})
	default:
		return json.Marshal(struct {
			common
			Attachments map[string]any `json:"attachments,omitempty"`
		}{base, c.Attachments})
	}
}

// Read decodes a notebook. Cells written before nbformat 4.5 get
// fresh ids.
func Read(r io.Reader) (*Notebook, error) {
	var nb Notebook
	if err := json.NewDecoder(r).Decode(&nb); err != nil {
		return nil, errors.Wrap(err, "failed to decode notebook")
	}
	if nb.NBFormat != 0 && nb.NBFormat != Version {
		return nil, errors.Errorf("unsupported nbformat version %d", nb.NBFormat)
	}

	nb.NBFormat = Version
	if nb.NBFormatMinor < VersionMinor {
		nb.NBFormatMinor = VersionMinor
	}
	if nb.Metadata == nil {
		nb.Metadata = map[string]any{}
	}
	for _, cell := range nb.Cells {
		if cell.ID == "" {
			cell.ID = NewCellID()
		}
	}
	return &nb, nil
}

func Unmarshal(data []byte) (*Notebook, error) {
	return Read(bytes.NewReader(data))
}

// Write encodes nb the way Jupyter does on disk: one-space indent and a
// trailing newline.
func Write(w io.Writer, nb *Notebook) error {
	data, err := Marshal(nb)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return errors.WithStack(err)
}

func Marshal(nb *Notebook) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", " ")
	enc.SetEscapeHTML(false)

	out := *nb
	if out.Cells == nil {
		out.Cells = []*Cell{}
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if err := enc.Encode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to encode notebook")
	}
	return buf.Bytes(), nil
}

// MultilineString is a string that is stored either as a JSON string or
// as an array of lines.
type MultilineString string

func (s *MultilineString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var lines []string
		if err := json.Unmarshal(data, &lines); err != nil {
			return errors.WithStack(err)
		}
		*s = MultilineString(strings.Join(lines, ""))
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.WithStack(err)
	}
	*s = MultilineString(str)
	return nil
}

func (s MultilineString) MarshalJSON() ([]byte, error) {
	return json.Marshal(SplitLines(string(s)))
}

func (s MultilineString) String() string {
	return string(s)
}

// SplitLines splits s after every newline, keeping the newlines.
func SplitLines(s string) []string {
	lines := []string{}
	for len(s) > 0 {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:idx+1])
		s = s[idx+1:]
	}
	return lines
}
