// Package kernel defines the execution channel to a compute kernel and
// the discovery of running kernels.
package kernel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// ErrNoKernel is returned when no running kernel can be found.
var ErrNoKernel = errors.New("No active kernel found. Please start a kernel first.")

const (
	MsgStream        = "stream"
	MsgExecuteResult = "execute_result"
	MsgDisplayData   = "display_data"
	MsgError         = "error"
	MsgStatus        = "status"
	MsgExecuteInput  = "execute_input"
	MsgExecuteReply  = "execute_reply"
	MsgExecuteReq    = "execute_request"
)

const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusAborted = "aborted"
)

type Header struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date,omitempty"`
	Version  string `json:"version"`
}

// Message is a kernel protocol message. Content is kept raw and decoded
// according to Header.MsgType.
type Message struct {
	Header       Header          `json:"header"`
	ParentHeader Header          `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata"`
	Content      json.RawMessage `json:"content"`
	Channel      string          `json:"channel,omitempty"`
}

// NewMessage builds a message of msgType with content encoded as JSON.
func NewMessage(msgType string, parent Header, content any) (Message, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return Message{}, errors.WithStack(err)
	}
	return Message{
		Header: Header{
			MsgType: msgType,
			Date:    time.Now().UTC().Format(time.RFC3339Nano),
			Version: "5.3",
		},
		ParentHeader: parent,
		Metadata:     map[string]any{},
		Content:      data,
	}, nil
}

type ExecuteRequest struct {
	Code            string            `json:"code"`
	Silent          bool              `json:"silent"`
	StoreHistory    bool              `json:"store_history"`
	UserExpressions map[string]string `json:"user_expressions"`
	AllowStdin      bool              `json:"allow_stdin"`
	StopOnError     bool              `json:"stop_on_error"`
}

// NewExecuteRequest returns a request for code with history stored and
// execution stopped on error.
func NewExecuteRequest(code string) ExecuteRequest {
	return ExecuteRequest{
		Code:            code,
		StoreHistory:    true,
		StopOnError:     true,
		UserExpressions: map[string]string{},
	}
}

type ExecuteReply struct {
	Status         string   `json:"status"`
	ExecutionCount int      `json:"execution_count"`
	EName          string   `json:"ename,omitempty"`
	EValue         string   `json:"evalue,omitempty"`
	Traceback      []string `json:"traceback,omitempty"`
}

// IOPubHandler receives the IOPub messages of one request in order.
type IOPubHandler func(Message)

// Future completes when the kernel has replied to a request and has
// published all of its output.
//
//go:generate mockgen --build_flags=--mod=mod -destination=./kernel_mock_gen.go -package=kernel . Future,Connection,Manager
type Future interface {
	MsgID() string
	Wait(ctx context.Context) (*ExecuteReply, error)
}

// Connection is a channel to one running kernel.
type Connection interface {
	ID() string
	Name() string
	RequestExecute(ctx context.Context, req ExecuteRequest, onIOPub IOPubHandler) (Future, error)
	Close() error
}

// Model describes a running kernel.
type Model struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	LastActivity   time.Time `json:"last_activity"`
	ExecutionState string    `json:"execution_state"`
	Connections    int       `json:"connections"`
}

// Manager discovers running kernels and connects to them.
type Manager interface {
	RefreshRunning(ctx context.Context) error
	Running() []Model
	ConnectTo(ctx context.Context, model Model) (Connection, error)
}

// ConnectFirst connects to the first running kernel of m.
func ConnectFirst(ctx context.Context, m Manager) (Connection, error) {
	if m == nil {
		return nil, ErrNoKernel
	}
	if err := m.RefreshRunning(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to list running kernels")
	}
	running := m.Running()
	if len(running) == 0 {
		return nil, ErrNoKernel
	}
	conn, err := m.ConnectTo(ctx, running[0])
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to connect to kernel")
	}
	return conn, nil
}
