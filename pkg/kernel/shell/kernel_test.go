package shell

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stateful/cellbook/pkg/kernel"
)

func startKernel(t *testing.T, opts ...Option) (*Manager, kernel.Connection) {
	t.Helper()

	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	m := NewManager(opts...)
	ctx := context.Background()

	_, err := m.Start(ctx)
	require.NoError(t, err)

	conn, err := kernel.ConnectFirst(ctx, m)
	require.NoError(t, err)
	return m, conn
}

func stdout(t *testing.T, outputs []kernel.TypedOutput) string {
	t.Helper()

	var sb strings.Builder
	for _, o := range outputs {
		if o.Type != kernel.MsgStream {
			continue
		}
		var content struct {
			Name string `json:"name"`
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal(o.Content, &content))
		if content.Name == "stdout" {
			sb.WriteString(content.Text)
		}
	}
	return sb.String()
}

func TestKernelKeepsState(t *testing.T) {
	_, conn := startKernel(t)
	ctx := context.Background()

	_, reply, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest("greeting=hello\nshout() { echo \"$1!\"; }"))
	require.NoError(t, err)
	assert.Equal(t, kernel.StatusOK, reply.Status)

	outputs, reply, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest("shout $greeting"))
	require.NoError(t, err)
	assert.Equal(t, kernel.StatusOK, reply.Status)
	assert.Equal(t, "hello!\n", stdout(t, outputs))
}

func TestKernelKeepsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, conn := startKernel(t)
	ctx := context.Background()

	_, _, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest("cd "+dir))
	require.NoError(t, err)

	outputs, _, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest("pwd"))
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", stdout(t, outputs))
}

func TestKernelExitStatus(t *testing.T) {
	_, conn := startKernel(t)

	outputs, reply, err := kernel.Collect(context.Background(), conn, kernel.NewExecuteRequest("echo before\nfalse"))
	require.NoError(t, err)
	assert.Equal(t, kernel.StatusError, reply.Status)
	assert.Equal(t, "ExitStatus", reply.EName)
	assert.Equal(t, "exit status 1", reply.EValue)

	require.Len(t, outputs, 2)
	assert.Equal(t, "before\n", stdout(t, outputs))
	assert.Equal(t, kernel.MsgError, outputs[1].Type)
}

func TestKernelExitResets(t *testing.T) {
	_, conn := startKernel(t)
	ctx := context.Background()

	_, reply, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest("x=1\nexit 3"))
	require.NoError(t, err)
	assert.Equal(t, "exit status 3", reply.EValue)

	outputs, reply, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest("echo \"[$x]\""))
	require.NoError(t, err)
	assert.Equal(t, kernel.StatusOK, reply.Status)
	assert.Equal(t, "[]\n", stdout(t, outputs))
}

func TestKernelStatusOfLastStatement(t *testing.T) {
	_, conn := startKernel(t)
	ctx := context.Background()

	outputs, reply, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest("false\nx=after\necho \"$x\""))
	require.NoError(t, err)
	assert.Equal(t, kernel.StatusOK, reply.Status)
	assert.Equal(t, "after\n", stdout(t, outputs))

	outputs, _, err = kernel.Collect(ctx, conn, kernel.NewExecuteRequest("echo \"$x\""))
	require.NoError(t, err)
	assert.Equal(t, "after\n", stdout(t, outputs))
}

func TestKernelStreamLines(t *testing.T) {
	_, conn := startKernel(t)
	ctx := context.Background()

	streams := func(code string) []string {
		outputs, _, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest(code))
		require.NoError(t, err)
		var texts []string
		for _, o := range outputs {
			if o.Type == kernel.MsgStream {
				texts = append(texts, stdout(t, []kernel.TypedOutput{o}))
			}
		}
		return texts
	}

	assert.Equal(t, []string{"hi\n"}, streams("echo hi"))
	assert.Equal(t, []string{"ab\n"}, streams("printf a; printf 'b\\n'"))
	assert.Equal(t, []string{"one\n", "two"}, streams("echo one; printf two"))
}

func TestKernelSyntaxError(t *testing.T) {
	_, conn := startKernel(t)

	_, reply, err := kernel.Collect(context.Background(), conn, kernel.NewExecuteRequest("if then fi ("))
	require.NoError(t, err)
	assert.Equal(t, kernel.StatusError, reply.Status)
	assert.Equal(t, "SyntaxError", reply.EName)
}

func TestKernelExecutionCount(t *testing.T) {
	_, conn := startKernel(t)
	ctx := context.Background()

	_, reply, err := kernel.Collect(ctx, conn, kernel.NewExecuteRequest("true"))
	require.NoError(t, err)
	assert.Equal(t, 1, reply.ExecutionCount)

	req := kernel.NewExecuteRequest("true")
	req.StoreHistory = false
	_, reply, err = kernel.Collect(ctx, conn, req)
	require.NoError(t, err)
	assert.Equal(t, 1, reply.ExecutionCount)

	_, reply, err = kernel.Collect(ctx, conn, kernel.NewExecuteRequest("true"))
	require.NoError(t, err)
	assert.Equal(t, 2, reply.ExecutionCount)
}

func TestKernelSilent(t *testing.T) {
	_, conn := startKernel(t)

	var types []string
	req := kernel.NewExecuteRequest("echo hidden")
	req.Silent = true
	future, err := conn.RequestExecute(context.Background(), req, func(msg kernel.Message) {
		types = append(types, msg.Header.MsgType)
	})
	require.NoError(t, err)
	_, err = future.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{kernel.MsgStatus, kernel.MsgStatus}, types)
}

func TestKernelMessagesCarryParent(t *testing.T) {
	_, conn := startKernel(t)

	var messages []kernel.Message
	future, err := conn.RequestExecute(context.Background(), kernel.NewExecuteRequest("echo hi"), func(msg kernel.Message) {
		messages = append(messages, msg)
	})
	require.NoError(t, err)
	_, err = future.Wait(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, messages)
	for _, msg := range messages {
		assert.Equal(t, future.MsgID(), msg.ParentHeader.MsgID)
	}
	assert.Equal(t, "busy", messages[0].ExecutionState())
	assert.Equal(t, "idle", messages[len(messages)-1].ExecutionState())
}

func TestManager(t *testing.T) {
	m := NewManager(WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	require.NoError(t, m.RefreshRunning(ctx))
	assert.Empty(t, m.Running())

	model, err := m.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, Name, model.Name)
	assert.Equal(t, "idle", model.ExecutionState)

	assert.Empty(t, m.Running(), "running is a snapshot taken by RefreshRunning")
	require.NoError(t, m.RefreshRunning(ctx))
	require.Len(t, m.Running(), 1)

	conn, err := m.ConnectTo(ctx, model)
	require.NoError(t, err)
	assert.Equal(t, model.ID, conn.ID())

	require.NoError(t, m.Shutdown(model.ID))
	require.Error(t, m.Shutdown(model.ID))

	_, err = conn.RequestExecute(ctx, kernel.NewExecuteRequest("true"), nil)
	require.Error(t, err)

	_, err = m.ConnectTo(ctx, model)
	require.Error(t, err)
}
