package nbformat

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type OutputType string

const (
	OutputTypeStream        OutputType = "stream"
	OutputTypeDisplayData   OutputType = "display_data"
	OutputTypeExecuteResult OutputType = "execute_result"
	OutputTypeError         OutputType = "error"
)

func (t OutputType) Valid() bool {
	switch t {
	case OutputTypeStream, OutputTypeDisplayData, OutputTypeExecuteResult, OutputTypeError:
		return true
	}
	return false
}

// Output is one entry of a code cell's outputs. Which fields are
// meaningful depends on OutputType.
type Output struct {
	OutputType OutputType `json:"output_type"`

	// stream
	Name string          `json:"name,omitempty"`
	Text MultilineString `json:"text,omitempty"`

	// display_data, execute_result
	Data           MimeBundle     `json:"data,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ExecutionCount *int           `json:"execution_count,omitempty"`

	// error
	EName     string   `json:"ename,omitempty"`
	EValue    string   `json:"evalue,omitempty"`
	Traceback []string `json:"traceback,omitempty"`
}

func NewStream(name, text string) Output {
	return Output{OutputType: OutputTypeStream, Name: name, Text: MultilineString(text)}
}

func NewError(ename, evalue string, traceback []string) Output {
	if traceback == nil {
		traceback = []string{}
	}
	return Output{OutputType: OutputTypeError, EName: ename, EValue: evalue, Traceback: traceback}
}

func (o Output) MarshalJSON() ([]byte, error) {
	metadata := o.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	data := o.Data
	if data == nil {
		data = MimeBundle{}
	}

	switch o.OutputType {
	case OutputTypeStream:
		return json.Marshal(struct {
			OutputType OutputType      `json:"output_type"`
			Name       string          `json:"name"`
			Text       MultilineString `json:"text"`
		}{o.OutputType, o.Name, o.Text})
	case OutputTypeDisplayData:
		return json.Marshal(struct {
			OutputType OutputType     `json:"output_type"`
			Data       MimeBundle     `json:"data"`
			Metadata   map[string]any `json:"metadata"`
		}{o.OutputType, data, metadata})
	case OutputTypeExecuteResult:
		return json.Marshal(struct {
			OutputType     OutputType     `json:"output_type"`
			Data           MimeBundle     `json:"data"`
			Metadata       map[string]any `json:"metadata"`
			ExecutionCount *int           `json:"execution_count"`
		}{o.OutputType, data, metadata, o.ExecutionCount})
	case OutputTypeError:
		traceback := o.Traceback
		if traceback == nil {
			traceback = []string{}
		}
		return json.Marshal(struct {
			OutputType OutputType `json:"output_type"`
			EName      string     `json:"ename"`
			EValue     string     `json:"evalue"`
			Traceback  []string   `json:"traceback"`
		}{o.OutputType, o.EName, o.EValue, traceback})
	}
	return nil, errors.Errorf("unknown output type %q", o.OutputType)
}

// MimeBundle maps mime types to values. Text values may be stored as a
// string or as an array of lines.
type MimeBundle map[string]any

// Text returns the textual value stored under mime.
func (b MimeBundle) Text(mime string) (string, bool) {
	v, ok := b[mime]
	if !ok {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return v, true
	case []string:
		return strings.Join(v, ""), true
	case []any:
		var sb strings.Builder
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return "", false
			}
			sb.WriteString(s)
		}
		return sb.String(), true
	}
	return "", false
}

func (b MimeBundle) MimeTypes() []string {
	result := make([]string, 0, len(b))
	for k := range b {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// AppendOutput appends o to outputs. Consecutive stream outputs with the
// same name are merged the way a notebook output area does.
func AppendOutput(outputs []Output, o Output) []Output {
	if o.OutputType == OutputTypeStream && len(outputs) > 0 {
		last := &outputs[len(outputs)-1]
		if last.OutputType == OutputTypeStream && last.Name == o.Name {
			last.Text += o.Text
			return outputs
		}
	}
	return append(outputs, o)
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\].*?\x1b\\`)

func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// PlainText renders o for a terminal. Rich html is sanitised and
// converted to markdown; binary payloads are summarised.
func (o Output) PlainText() string {
	switch o.OutputType {
	case OutputTypeStream:
		return StripANSI(string(o.Text))
	case OutputTypeError:
		if len(o.Traceback) > 0 {
			return StripANSI(strings.Join(o.Traceback, "\n"))
		}
		return fmt.Sprintf("%s: %s", o.EName, o.EValue)
	case OutputTypeDisplayData, OutputTypeExecuteResult:
		if text, ok := o.Data.Text("text/markdown"); ok {
			return text
		}
		if html, ok := o.Data.Text("text/html"); ok {
			if text, err := HTMLToText(html); err == nil {
				return text
			}
		}
		if text, ok := o.Data.Text("text/plain"); ok {
			return text
		}
		var parts []string
		for _, mime := range o.Data.MimeTypes() {
			parts = append(parts, "["+mime+"]")
		}
		return strings.Join(parts, " ")
	}
	return ""
}
