package nbformat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOutput(t *testing.T) {
	var outputs []Output
	outputs = AppendOutput(outputs, NewStream("stdout", "a\n"))
	outputs = AppendOutput(outputs, NewStream("stdout", "b\n"))
	outputs = AppendOutput(outputs, NewStream("stderr", "oops\n"))
	outputs = AppendOutput(outputs, NewStream("stdout", "c\n"))

	require.Len(t, outputs, 3)
	assert.Equal(t, "a\nb\n", outputs[0].Text.String())
	assert.Equal(t, "stderr", outputs[1].Name)
	assert.Equal(t, "c\n", outputs[2].Text.String())
}

func TestOutputMarshalJSON(t *testing.T) {
	count := 2
	tests := []struct {
		name   string
		output Output
		want   string
	}{
		{
			name:   "stream",
			output: NewStream("stdout", "hi\n"),
			want:   `{"output_type":"stream","name":"stdout","text":["hi\n"]}`,
		},
		{
			name: "execute_result",
			output: Output{
				OutputType:     OutputTypeExecuteResult,
				Data:           MimeBundle{"text/plain": "2"},
				ExecutionCount: &count,
			},
			want: `{"output_type":"execute_result","data":{"text/plain":"2"},"metadata":{},"execution_count":2}`,
		},
		{
			name:   "display_data",
			output: Output{OutputType: OutputTypeDisplayData},
			want:   `{"output_type":"display_data","data":{},"metadata":{}}`,
		},
		{
			name:   "error",
			output: NewError("ZeroDivisionError", "division by zero", nil),
			want:   `{"output_type":"error","ename":"ZeroDivisionError","evalue":"division by zero","traceback":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.output)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}

	_, err := json.Marshal(Output{OutputType: "bogus"})
	require.Error(t, err)
}

func TestOutputPlainText(t *testing.T) {
	t.Run("stream strips ansi", func(t *testing.T) {
		assert.Equal(t, "red\n", NewStream("stdout", "\x1b[31mred\x1b[0m\n").PlainText())
	})

	t.Run("error without traceback", func(t *testing.T) {
		assert.Equal(t, "ExitStatus: 1", NewError("ExitStatus", "1", nil).PlainText())
	})

	t.Run("html is sanitised", func(t *testing.T) {
		o := Output{
			OutputType: OutputTypeDisplayData,
			Data: MimeBundle{
				"text/html":  []any{"<p>Hello <b>world</b></p>", "<script>alert(1)</script>"},
				"text/plain": "<IPython.core.display.HTML object>",
			},
		}
		assert.Equal(t, "Hello **world**", o.PlainText())
	})

	t.Run("plain text fallback", func(t *testing.T) {
		o := Output{OutputType: OutputTypeExecuteResult, Data: MimeBundle{"text/plain": "42"}}
		assert.Equal(t, "42", o.PlainText())
	})

	t.Run("binary summary", func(t *testing.T) {
		o := Output{OutputType: OutputTypeDisplayData, Data: MimeBundle{"image/png": "iVBOR"}}
		assert.Equal(t, "[image/png]", o.PlainText())
	})
}
