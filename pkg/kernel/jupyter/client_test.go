package jupyter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/websocket"

	"github.com/stateful/cellbook/internal/version"
	"github.com/stateful/cellbook/pkg/kernel"
	"github.com/stateful/cellbook/pkg/nbformat"
)

const testToken = "secret"

type fakeServer struct {
	t       *testing.T
	kernels []kernel.Model
	// replyFirst sends execute_reply before the idle status.
	replyFirst bool
}

func (s *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/kernels", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token "+testToken {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		assert.Equal(s.t, version.UserAgent(), r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(s.kernels)
	})

	mux.HandleFunc("POST /api/kernels", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		model := kernel.Model{ID: "k-new", Name: body.Name, ExecutionState: "starting"}
		s.kernels = append(s.kernels, model)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model)
	})

	mux.Handle("GET /api/kernels/{id}/channels", websocket.Handler(s.channels))

	return mux
}

func (s *fakeServer) send(ws *websocket.Conn, channel, msgType string, parent kernel.Header, content any) {
	msg, err := kernel.NewMessage(msgType, parent, content)
	require.NoError(s.t, err)
	msg.Header.MsgID = msgType + "-" + parent.MsgID
	msg.Channel = channel
	require.NoError(s.t, websocket.JSON.Send(ws, msg))
}

func (s *fakeServer) channels(ws *websocket.Conn) {
	if ws.Request().Header.Get("Authorization") != "token "+testToken {
		return
	}

	count := 0
	for {
		var msg kernel.Message
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			return
		}
		if msg.Header.MsgType != kernel.MsgExecuteReq {
			continue
		}

		var req kernel.ExecuteRequest
		require.NoError(s.t, json.Unmarshal(msg.Content, &req))
		count++
		parent := msg.Header

		// Noise for another request must be ignored.
		s.send(ws, "iopub", kernel.MsgStream, kernel.Header{MsgID: "other"}, map[string]any{"name": "stdout", "text": "noise"})

		s.send(ws, "iopub", kernel.MsgStatus, parent, map[string]any{"execution_state": "busy"})
		s.send(ws, "iopub", kernel.MsgStream, parent, map[string]any{"name": "stdout", "text": "ran: " + req.Code})
		s.send(ws, "iopub", kernel.MsgExecuteResult, parent, map[string]any{
			"data":            map[string]any{"text/plain": "42"},
			"metadata":        map[string]any{},
			"execution_count": count,
		})

		reply := map[string]any{"status": "ok", "execution_count": count}
		if s.replyFirst {
			s.send(ws, "shell", kernel.MsgExecuteReply, parent, reply)
			s.send(ws, "iopub", kernel.MsgStatus, parent, map[string]any{"execution_state": "idle"})
		} else {
			s.send(ws, "iopub", kernel.MsgStatus, parent, map[string]any{"execution_state": "idle"})
			s.send(ws, "shell", kernel.MsgExecuteReply, parent, reply)
		}
	}
}

func newTestClient(t *testing.T, s *fakeServer) *Client {
	t.Helper()

	srv := httptest.NewServer(s.handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, testToken, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return c
}

func TestNewClientInvalidURL(t *testing.T) {
	_, err := NewClient("ftp://example.com", "")
	require.Error(t, err)
}

func TestRefreshRunning(t *testing.T) {
	s := &fakeServer{t: t, kernels: []kernel.Model{{ID: "k1", Name: "python3", ExecutionState: "idle"}}}
	c := newTestClient(t, s)

	require.NoError(t, c.RefreshRunning(context.Background()))
	require.Len(t, c.Running(), 1)
	assert.Equal(t, "k1", c.Running()[0].ID)
}

func TestRefreshRunningUnauthorized(t *testing.T) {
	s := &fakeServer{t: t}
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	c, err := NewClient(srv.URL, "wrong")
	require.NoError(t, err)

	err = c.RefreshRunning(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestStart(t *testing.T) {
	s := &fakeServer{t: t}
	c := newTestClient(t, s)

	model, err := c.Start(context.Background(), "python3")
	require.NoError(t, err)
	assert.Equal(t, "k-new", model.ID)
	assert.Equal(t, "python3", model.Name)
}

func TestExecute(t *testing.T) {
	for _, replyFirst := range []bool{false, true} {
		name := "IdleFirst"
		if replyFirst {
			name = "ReplyFirst"
		}
		t.Run(name, func(t *testing.T) {
			s := &fakeServer{t: t, kernels: []kernel.Model{{ID: "k1", Name: "python3"}}, replyFirst: replyFirst}
			c := newTestClient(t, s)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			conn, err := kernel.ConnectFirst(ctx, c)
			require.NoError(t, err)
			defer func() { _ = conn.Close() }()

			var outputs []nbformat.Output
			reply, err := kernel.Execute(ctx, conn, kernel.NewExecuteRequest("1+1"), func(o nbformat.Output) {
				outputs = append(outputs, o)
			})
			require.NoError(t, err)
			assert.Equal(t, kernel.StatusOK, reply.Status)
			assert.Equal(t, 1, reply.ExecutionCount)

			require.Len(t, outputs, 2)
			assert.Equal(t, "ran: 1+1", string(outputs[0].Text))
			assert.Equal(t, nbformat.OutputTypeExecuteResult, outputs[1].OutputType)

			typed, reply, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest("2+2"))
			require.NoError(t, err)
			assert.Equal(t, 2, reply.ExecutionCount)
			assert.Len(t, typed, 2)
		})
	}
}

func TestConnectionClosed(t *testing.T) {
	s := &fakeServer{t: t, kernels: []kernel.Model{{ID: "k1"}}}
	c := newTestClient(t, s)
	ctx := context.Background()

	conn, err := c.ConnectTo(ctx, s.kernels[0])
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = conn.RequestExecute(ctx, kernel.NewExecuteRequest("x"), nil)
	require.Error(t, err)
}
