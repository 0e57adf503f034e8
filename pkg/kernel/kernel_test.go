package kernel

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateful/cellbook/pkg/nbformat"
)

func mustMessage(t *testing.T, msgType string, content any) Message {
	t.Helper()
	msg, err := NewMessage(msgType, Header{MsgID: "req"}, content)
	require.NoError(t, err)
	return msg
}

func TestConnectFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	t.Run("NoKernel", func(t *testing.T) {
		m := NewMockManager(ctrl)
		m.EXPECT().RefreshRunning(gomock.Any()).Return(nil)
		m.EXPECT().Running().Return(nil)

		_, err := ConnectFirst(ctx, m)
		require.ErrorIs(t, err, ErrNoKernel)
		assert.Equal(t, "No active kernel found. Please start a kernel first.", err.Error())
	})

	t.Run("NilManager", func(t *testing.T) {
		_, err := ConnectFirst(ctx, nil)
		require.ErrorIs(t, err, ErrNoKernel)
	})

	t.Run("First", func(t *testing.T) {
		m := NewMockManager(ctrl)
		conn := NewMockConnection(ctrl)
		models := []Model{{ID: "k1", Name: "bash"}, {ID: "k2", Name: "bash"}}
		m.EXPECT().RefreshRunning(gomock.Any()).Return(nil)
		m.EXPECT().Running().Return(models)
		m.EXPECT().ConnectTo(gomock.Any(), models[0]).Return(conn, nil)

		got, err := ConnectFirst(ctx, m)
		require.NoError(t, err)
		assert.Same(t, conn, got)
	})

	t.Run("ConnectError", func(t *testing.T) {
		m := NewMockManager(ctrl)
		m.EXPECT().RefreshRunning(gomock.Any()).Return(nil)
		m.EXPECT().Running().Return([]Model{{ID: "k1"}})
		m.EXPECT().ConnectTo(gomock.Any(), gomock.Any()).Return(nil, errors.New("refused"))

		_, err := ConnectFirst(ctx, m)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Failed to connect to kernel")
		assert.Contains(t, err.Error(), "refused")
	})
}

func TestMessageOutput(t *testing.T) {
	count := 3

	o, ok, err := mustMessage(t, MsgStream, map[string]any{"name": "stdout", "text": "hi\n"}).Output()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, nbformat.NewStream("stdout", "hi\n"), o)

	o, ok, err = mustMessage(t, MsgExecuteResult, map[string]any{
		"data":            map[string]any{"text/plain": "42"},
		"metadata":        map[string]any{},
		"execution_count": count,
	}).Output()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, nbformat.OutputTypeExecuteResult, o.OutputType)
	require.NotNil(t, o.ExecutionCount)
	assert.Equal(t, count, *o.ExecutionCount)
	text, _ := o.Data.Text("text/plain")
	assert.Equal(t, "42", text)

	o, ok, err = mustMessage(t, MsgError, map[string]any{"ename": "NameError", "evalue": "x", "traceback": []string{"tb"}}).Output()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "NameError", o.EName)

	status := mustMessage(t, MsgStatus, map[string]any{"execution_state": "idle"})
	_, ok, err = status.Output()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "idle", status.ExecutionState())
}

func TestCollect(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := NewMockConnection(ctrl)
	future := NewMockFuture(ctrl)

	messages := []Message{
		mustMessage(t, MsgStatus, map[string]any{"execution_state": "busy"}),
		mustMessage(t, MsgStream, map[string]any{"name": "stdout", "text": "a"}),
		mustMessage(t, MsgDisplayData, map[string]any{"data": map[string]any{"text/plain": "b"}}),
		mustMessage(t, MsgStatus, map[string]any{"execution_state": "idle"}),
	}

	req := NewExecuteRequest("print('a')")
	conn.EXPECT().RequestExecute(gomock.Any(), req, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ ExecuteRequest, onIOPub IOPubHandler) (Future, error) {
			for _, msg := range messages {
				onIOPub(msg)
			}
			return future, nil
		},
	)
	future.EXPECT().Wait(gomock.Any()).Return(&ExecuteReply{Status: StatusOK, ExecutionCount: 7}, nil)

	outputs, reply, err := Collect(context.Background(), conn, req)
	require.NoError(t, err)
	assert.Equal(t, 7, reply.ExecutionCount)
	require.Len(t, outputs, 2)
	assert.Equal(t, MsgStream, outputs[0].Type)
	assert.Equal(t, MsgDisplayData, outputs[1].Type)
}

func TestExecute(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := NewMockConnection(ctrl)
	future := NewMockFuture(ctrl)

	conn.EXPECT().RequestExecute(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ ExecuteRequest, onIOPub IOPubHandler) (Future, error) {
			onIOPub(mustMessage(t, MsgStream, map[string]any{"name": "stderr", "text": "oops"}))
			onIOPub(mustMessage(t, MsgError, map[string]any{"ename": "ExitStatus", "evalue": "exit status 1"}))
			return future, nil
		},
	)
	future.EXPECT().Wait(gomock.Any()).Return(&ExecuteReply{Status: StatusError, ExecutionCount: 1}, nil)

	var got []nbformat.Output
	reply, err := Execute(context.Background(), conn, NewExecuteRequest("false"), func(o nbformat.Output) {
		got = append(got, o)
	})
	require.NoError(t, err)
	assert.Equal(t, StatusError, reply.Status)
	require.Len(t, got, 2)
	assert.Equal(t, nbformat.OutputTypeStream, got[0].OutputType)
	assert.Equal(t, nbformat.OutputTypeError, got[1].OutputType)
}

func TestTypedOutput(t *testing.T) {
	msg := mustMessage(t, MsgStream, map[string]string{"name": "stderr", "text": "oops"})
	o, ok, err := TypedOutput{Type: msg.Header.MsgType, Content: msg.Content}.Output()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, nbformat.NewStream("stderr", "oops"), o)

	_, ok, err = TypedOutput{Type: MsgStatus, Content: []byte(`{"execution_state":"idle"}`)}.Output()
	require.NoError(t, err)
	assert.False(t, ok)
}
