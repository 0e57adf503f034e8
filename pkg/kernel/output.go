package kernel

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/stateful/cellbook/pkg/nbformat"
)

// TypedOutput is an IOPub message classified by type, as returned from
// free execution.
type TypedOutput struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Output converts o into a notebook output like Message.Output.
func (o TypedOutput) Output() (nbformat.Output, bool, error) {
	return Message{Header: Header{MsgType: o.Type}, Content: o.Content}.Output()
}

// IsOutput reports whether msgType carries cell output.
func IsOutput(msgType string) bool {
	switch msgType {
	case MsgStream, MsgExecuteResult, MsgDisplayData, MsgError:
		return true
	}
	return false
}

type streamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type dataContent struct {
	Data           nbformat.MimeBundle `json:"data"`
	Metadata       map[string]any      `json:"metadata"`
	ExecutionCount *int                `json:"execution_count,omitempty"`
}

type errorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type statusContent struct {
	ExecutionState string `json:"execution_state"`
}

// Output converts an output message into a notebook output. The second
// result is false for messages that do not carry output.
func (m Message) Output() (nbformat.Output, bool, error) {
	switch m.Header.MsgType {
	case MsgStream:
		var c streamContent
		if err := json.Unmarshal(m.Content, &c); err != nil {
			return nbformat.Output{}, false, errors.Wrap(err, "invalid stream message")
		}
		return nbformat.NewStream(c.Name, c.Text), true, nil

	case MsgExecuteResult, MsgDisplayData:
		var c dataContent
		if err := json.Unmarshal(m.Content, &c); err != nil {
			return nbformat.Output{}, false, errors.Wrapf(err, "invalid %s message", m.Header.MsgType)
		}
		o := nbformat.Output{
			OutputType: nbformat.OutputType(m.Header.MsgType),
			Data:       c.Data,
			Metadata:   c.Metadata,
		}
		if m.Header.MsgType == MsgExecuteResult {
			o.ExecutionCount = c.ExecutionCount
		}
		return o, true, nil

	case MsgError:
		var c errorContent
		if err := json.Unmarshal(m.Content, &c); err != nil {
			return nbformat.Output{}, false, errors.Wrap(err, "invalid error message")
		}
		return nbformat.NewError(c.EName, c.EValue, c.Traceback), true, nil
	}
	return nbformat.Output{}, false, nil
}

// ExecutionState returns the state announced by a status message.
func (m Message) ExecutionState() string {
	if m.Header.MsgType != MsgStatus {
		return ""
	}
	var c statusContent
	_ = json.Unmarshal(m.Content, &c)
	return c.ExecutionState
}

// Execute runs req on conn and passes every output to sink as it
// arrives. It returns once the kernel has completed the request.
func Execute(ctx context.Context, conn Connection, req ExecuteRequest, sink func(nbformat.Output)) (*ExecuteReply, error) {
	var (
		mu        sync.Mutex
		decodeErr error
	)
	future, err := conn.RequestExecute(ctx, req, func(msg Message) {
		o, ok, err := msg.Output()
		if err != nil {
			mu.Lock()
			if decodeErr == nil {
				decodeErr = err
			}
			mu.Unlock()
			return
		}
		if ok && sink != nil {
			sink(o)
		}
	})
	if err != nil {
		return nil, err
	}
	reply, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return reply, decodeErr
}

// Collect runs req on conn and buffers every output message.
func Collect(ctx context.Context, conn Connection, req ExecuteRequest) ([]TypedOutput, *ExecuteReply, error) {
	var (
		mu      sync.Mutex
		outputs []TypedOutput
	)
	future, err := conn.RequestExecute(ctx, req, func(msg Message) {
		if IsOutput(msg.Header.MsgType) {
			mu.Lock()
			outputs = append(outputs, TypedOutput{Type: msg.Header.MsgType, Content: msg.Content})
			mu.Unlock()
		}
	})
	if err != nil {
		return nil, nil, err
	}
	reply, err := future.Wait(ctx)

	mu.Lock()
	defer mu.Unlock()
	collected := append([]TypedOutput(nil), outputs...)
	if err != nil {
		return collected, nil, err
	}
	return collected, reply, nil
}
