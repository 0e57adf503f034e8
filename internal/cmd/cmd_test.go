package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateful/cellbook/pkg/document/block"
)

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	root := Root()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, nil, args...)
	require.NoError(t, err)
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestInsertShowUpdateDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")

	assert.Equal(t, "0\n", mustExecute(t, "insert", path, "--type", "paragraph", "--source", "Hello"))
	assert.Equal(t, "Hello\n", readFile(t, path))

	assert.Equal(t, "0\n", mustExecute(t, "insert", path, "--type", "heading", "--source", "Title", "--meta", "level=2", "--after", "TOP"))
	assert.Equal(t, "## Title\n\nHello\n", readFile(t, path))

	assert.Equal(t, "Hello\n", mustExecute(t, "show", path, "1"))

	assert.Equal(t, "1\n", mustExecute(t, "update", path, "1", "--source", "Bye"))
	assert.Equal(t, "## Title\n\nBye\n", readFile(t, path))

	_, err := execute(t, nil, "update", path, "1")
	require.EqualError(t, err, "at least one of type, source, or properties must be provided")

	mustExecute(t, "delete", path, "0", "1")
	assert.Empty(t, strings.TrimSpace(readFile(t, path)))

	_, err = execute(t, nil, "show", path, "0")
	require.EqualError(t, err, "block index 0 out of range, document has 0 blocks")
}

func TestInsertFromStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")

	_, err := execute(t, strings.NewReader("From stdin\n"), "insert", path, "--type", "quote", "--source", "-")
	require.NoError(t, err)
	assert.Equal(t, "> From stdin\n", readFile(t, path))
}

func TestInsertFailureDoesNotSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.ipynb")

	_, err := execute(t, nil, "insert", path, "--type", "hologram", "--source", "x")
	require.EqualError(t, err, "unsupported block type: hologram")
	assert.NoFileExists(t, path)

	_, err = execute(t, nil, "insert", path, "--type", "paragraph", "--source", "x", "--after", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Block ID nope not found")
	assert.NoFileExists(t, path)
}

func TestBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nBody text.\n"), 0o644))

	var brief []block.BriefBlock
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, "blocks", path, "--json")), &brief))
	require.Len(t, brief, 2)
	assert.Equal(t, "heading", brief[0].Type)
	assert.Equal(t, "Body text.", brief[1].Preview)

	var detailed []block.Block
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, "blocks", path, "--format", "detailed", "--json")), &detailed))
	require.Len(t, detailed, 2)
	assert.Equal(t, block.Source("Title"), detailed[0].Source)
	level, ok := detailed[0].MetaInt("level")
	assert.True(t, ok)
	assert.Equal(t, 1, level)

	table := mustExecute(t, "blocks", path)
	assert.Contains(t, table, "PREVIEW")
	assert.Contains(t, table, "Body text.")

	assert.Equal(t, "[0] heading\nTitle\n\n[1] paragraph\nBody text.\n", mustExecute(t, "blocks", path, "--format", "detailed"))

	_, err := execute(t, nil, "blocks", path, "--format", "xml")
	require.EqualError(t, err, `unknown format "xml", expected brief or detailed`)
}

func TestCatalog(t *testing.T) {
	var result block.CatalogResult
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, "catalog", "--category", "media", "--json")), &result))
	require.NotEmpty(t, result.Types)
	for _, s := range result.Types {
		assert.Equal(t, block.CategoryMedia, s.Category, s.Type)
	}

	assert.Contains(t, mustExecute(t, "catalog"), "jupyter-cell")
}

func TestRunAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nb.ipynb")

	assert.Equal(t, "0\n", mustExecute(t, "insert", path, "--type", "jupyter-cell", "--source", "echo hi", "--meta", "language=sh"))

	assert.Equal(t, "hi\n", mustExecute(t, "run", path, "0"))
	assert.Contains(t, readFile(t, path), `"output_type": "stream"`)

	assert.Equal(t, "hi\n", mustExecute(t, "run", path))

	assert.Equal(t, "Cleared outputs from 1 jupyter cells\n", mustExecute(t, "clear", path))
	assert.NotContains(t, readFile(t, path), `"output_type"`)
}

func TestExec(t *testing.T) {
	assert.Equal(t, "hi\n", mustExecute(t, "exec", "echo hi"))

	out, err := execute(t, strings.NewReader("echo piped\n"), "exec", "-")
	require.NoError(t, err)
	assert.Equal(t, "piped\n", out)

	out, err = execute(t, nil, "exec", "echo partial; exit 3")
	require.EqualError(t, err, "ExitStatus: exit status 3")
	assert.Equal(t, "partial\n", out)

	_, err = execute(t, nil, "exec", " ")
	require.EqualError(t, err, "Code parameter is required and cannot be empty")

	_, err = execute(t, nil, "exec", "--kernel", "docker", "echo hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernel.type")
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.md")
	dst := filepath.Join(dir, "doc.ipynb")
	back := filepath.Join(dir, "back.md")

	content := "# Doc\n\n```sh\necho hi\n```\n"
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	mustExecute(t, "convert", src, "-o", dst)
	assert.Contains(t, readFile(t, dst), `"cell_type": "code"`)

	mustExecute(t, "convert", dst, "--output", back)
	assert.Equal(t, content, readFile(t, back))
}

func TestParseMeta(t *testing.T) {
	meta, err := parseMeta([]string{"level=2", "hidden=true", "language=sh", "note=", "start=1.5"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"level":    2,
		"hidden":   true,
		"language": "sh",
		"note":     "",
		"start":    1.5,
	}, meta)

	meta, err = parseMeta(nil)
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = parseMeta([]string{"novalue"})
	require.EqualError(t, err, `invalid property "novalue", expected key=value`)
}

func TestReadSource(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("line 1\nline 2\n"))

	s, err := readSource(cmd, "inline")
	require.NoError(t, err)
	assert.Equal(t, "inline", s)

	s, err = readSource(cmd, "-")
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2", s)
}
