package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stateful/cellbook/internal/notebookfile"
	"github.com/stateful/cellbook/pkg/document/adapter"
	"github.com/stateful/cellbook/pkg/kernel/shell"
	"github.com/stateful/cellbook/pkg/nbformat"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	m := shell.NewManager(shell.WithDir(t.TempDir()))
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "test.ipynb")
	file, err := notebookfile.Open(
		context.Background(),
		path,
		notebookfile.WithLogger(logger),
		notebookfile.WithAdapterOptions(adapter.WithKernelManager(m)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	return New(file, WithLogger(logger)), path
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "read_all_blocks":
		result, err = srv.readAllBlocks(ctx, req)
	case "read_block":
		result, err = srv.readBlock(ctx, req)
	case "insert_block":
		result, err = srv.insertBlock(ctx, req)
	case "delete_blocks":
		result, err = srv.deleteBlocks(ctx, req)
	case "update_block":
		result, err = srv.updateBlock(ctx, req)
	case "run_block":
		result, err = srv.runBlock(ctx, req)
	case "run_all_blocks":
		result, err = srv.runAllBlocks(ctx, req)
	case "clear_all_outputs":
		result, err = srv.clearAllOutputs(ctx, req)
	case "list_available_blocks":
		result, err = srv.listAvailableBlocks(ctx, req)
	case "execute_code":
		result, err = srv.executeCode(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decode(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, r.IsError, resultText(r))
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &v))
	return v
}

func readSaved(t *testing.T, path string) *nbformat.Notebook {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	nb, err := nbformat.Unmarshal(data)
	require.NoError(t, err)
	return nb
}

func TestInsertReadAndSave(t *testing.T) {
	srv, path := testServer(t)

	inserted := decode(t, callTool(t, srv, "insert_block", map[string]any{
		"type":       "heading",
		"source":     "Intro",
		"properties": map[string]any{"level": 2},
	}))
	assert.Equal(t, true, inserted["success"])
	id, _ := inserted["blockId"].(string)
	require.NotEmpty(t, id)

	block := decode(t, callTool(t, srv, "read_block", map[string]any{"id": id}))
	assert.Equal(t, "heading", block["block_type"])
	assert.Equal(t, "Intro", block["source"])

	all := decode(t, callTool(t, srv, "read_all_blocks", map[string]any{}))
	assert.Equal(t, float64(1), all["blockCount"])
	blocks, _ := all["blocks"].([]any)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0], "preview")

	nb := readSaved(t, path)
	require.Len(t, nb.Cells, 1)
	assert.Equal(t, "## Intro", nb.Cells[0].Source.String())
}

func TestReadAllBlocksDetailed(t *testing.T) {
	srv, _ := testServer(t)
	decode(t, callTool(t, srv, "insert_block", map[string]any{"type": "paragraph", "source": "Some **bold**"}))

	all := decode(t, callTool(t, srv, "read_all_blocks", map[string]any{"format": "detailed"}))
	blocks, _ := all["blocks"].([]any)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0], "formatting")

	r := callTool(t, srv, "read_all_blocks", map[string]any{"format": "xml"})
	assert.True(t, r.IsError)
}

func TestReadBlockMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_block", map[string]any{"id": "nope"})
	assert.True(t, r.IsError)
	assert.Equal(t, "Block nope not found", resultText(r))
}

func TestInsertUnsupportedType(t *testing.T) {
	srv, path := testServer(t)
	r := callTool(t, srv, "insert_block", map[string]any{"type": "widget", "source": "x"})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "unsupported block type")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "failed insert must not save")
}

func TestUpdateAndDelete(t *testing.T) {
	srv, path := testServer(t)

	inserted := decode(t, callTool(t, srv, "insert_block", map[string]any{"type": "paragraph", "source": "old"}))
	id := inserted["blockId"].(string)

	r := callTool(t, srv, "update_block", map[string]any{"id": id})
	assert.True(t, r.IsError)

	updated := decode(t, callTool(t, srv, "update_block", map[string]any{"id": id, "source": "new"}))
	assert.Equal(t, id, updated["blockId"])
	assert.Equal(t, "new", readSaved(t, path).Cells[0].Source.String())

	r = callTool(t, srv, "delete_blocks", map[string]any{"ids": []any{id, "missing"}})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "missing")

	deleted := decode(t, callTool(t, srv, "delete_blocks", map[string]any{"ids": []any{id}}))
	assert.Len(t, deleted["deletedBlocks"], 1)
	assert.Empty(t, readSaved(t, path).Cells)

	r = callTool(t, srv, "delete_blocks", map[string]any{"ids": "not-a-list"})
	assert.True(t, r.IsError)
}

func TestRunAndClear(t *testing.T) {
	srv, path := testServer(t)

	inserted := decode(t, callTool(t, srv, "insert_block", map[string]any{
		"type":       "jupyter-cell",
		"source":     "echo hi",
		"properties": map[string]any{"language": "sh"},
	}))
	id := inserted["blockId"].(string)

	run := decode(t, callTool(t, srv, "run_block", map[string]any{"id": id}))
	assert.Equal(t, float64(1), run["execution_count"])

	nb := readSaved(t, path)
	require.Len(t, nb.Cells, 1)
	assert.Equal(t, []nbformat.Output{nbformat.NewStream("stdout", "hi\n")}, nb.Cells[0].Outputs)

	decode(t, callTool(t, srv, "run_all_blocks", map[string]any{}))
	nb = readSaved(t, path)
	require.NotNil(t, nb.Cells[0].ExecutionCount)
	assert.Equal(t, 2, *nb.Cells[0].ExecutionCount)

	decode(t, callTool(t, srv, "clear_all_outputs", map[string]any{}))
	assert.Empty(t, readSaved(t, path).Cells[0].Outputs)
}

func TestListAvailableBlocks(t *testing.T) {
	srv, _ := testServer(t)

	all := decode(t, callTool(t, srv, "list_available_blocks", map[string]any{}))
	count, _ := all["count"].(float64)
	assert.Greater(t, count, float64(1))

	media := decode(t, callTool(t, srv, "list_available_blocks", map[string]any{"category": "media"}))
	assert.Equal(t, []any{"media"}, media["categories"])
}

func TestExecuteCode(t *testing.T) {
	srv, path := testServer(t)

	result := decode(t, callTool(t, srv, "execute_code", map[string]any{"code": "echo free"}))
	assert.Equal(t, true, result["success"])
	assert.NotEmpty(t, result["outputs"])

	r := callTool(t, srv, "execute_code", map[string]any{"code": "  "})
	assert.True(t, r.IsError)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "execute_code must not save")
}
