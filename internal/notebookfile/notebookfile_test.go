package notebookfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stateful/cellbook/pkg/document/adapter"
	"github.com/stateful/cellbook/pkg/document/block"
	"github.com/stateful/cellbook/pkg/nbformat"
)

func openFile(t *testing.T, path string) *File {
	t.Helper()
	f, err := Open(context.Background(), path, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func nonEmptySources(f *File) []string {
	var result []string
	for _, b := range f.Adapter.Blocks(context.Background()) {
		if s := string(b.Source); s != "" {
			result = append(result, s)
		}
	}
	return result
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatNotebook, FormatOf("a.ipynb"))
	assert.Equal(t, FormatMarkdown, FormatOf("README.MD"))
	assert.Equal(t, FormatMarkdown, FormatOf("notes.markdown"))
	assert.Equal(t, FormatNotebook, FormatOf("noext"))
}

func TestOpenMissingAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.ipynb")

	f := openFile(t, path)
	assert.Equal(t, 0, f.Adapter.BlockCount(context.Background()))

	result := f.Adapter.InsertBlock(context.Background(), block.Block{Type: block.TypeHeading, Source: "Hello"}, adapter.Bottom)
	require.True(t, result.Success, result.Error)
	require.NoError(t, f.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	nb, err := nbformat.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, nb.Cells, 1)
	assert.Equal(t, nbformat.CellTypeMarkdown, nb.Cells[0].CellType)
	assert.Equal(t, "# Hello", nb.Cells[0].Source.String())

	reopened := openFile(t, path)
	assert.Equal(t, []string{"Hello"}, nonEmptySources(reopened))
}

func TestOpenInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.ipynb")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := Open(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.ipynb")
}

func TestSaveKeepsMetadataAndMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.ipynb")

	nb := nbformat.New()
	nb.Metadata = map[string]any{"kernelspec": map[string]any{"name": "bash", "language": "bash"}}
	nb.Cells = []*nbformat.Cell{nbformat.NewCodeCell("echo hi")}
	data, err := nbformat.Marshal(nb)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f := openFile(t, path)
	require.NoError(t, f.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	saved, err := nbformat.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, nb.Metadata, saved.Metadata)
	require.Len(t, saved.Cells, 1)
	assert.Equal(t, "echo hi", saved.Cells[0].Source.String())
}

func TestMarkdownFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	source := "# Notes\n\n```sh\necho hi\n```\n"
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))

	f := openFile(t, path)
	blocks := f.Adapter.Blocks(context.Background())
	var cells []block.Block
	for _, b := range blocks {
		if b.Type == block.TypeJupyterCell {
			cells = append(cells, b)
		}
	}
	require.Len(t, cells, 1)
	assert.Equal(t, block.Source("echo hi"), cells[0].Source)
	assert.Equal(t, "sh", cells[0].MetaString("language"))

	require.NoError(t, f.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, source, string(data))
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reload.md")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	f := openFile(t, path)

	changed, err := f.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte("second\n"), 0o644))
	changed, err = f.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"second"}, nonEmptySources(f))

	// Saving records the written content.
	require.NoError(t, f.Save())
	changed, err = f.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.md")
	require.NoError(t, os.WriteFile(path, []byte("before\n"), 0o644))

	f := openFile(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- f.Watch(ctx, func() {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("after\n"), 0o644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("file change was not picked up")
	}
	assert.Equal(t, []string{"after"}, nonEmptySources(f))

	cancel()
	require.NoError(t, <-done)
}

func TestSaveAs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.md")
	require.NoError(t, os.WriteFile(src, []byte("# Doc\n\n```sh\necho hi\n```\n"), 0o644))

	f := openFile(t, src)
	dst := filepath.Join(dir, "out", "dst.ipynb")
	require.NoError(t, f.SaveAs(dst))
	assert.Equal(t, src, f.Path)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	nb, err := nbformat.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, nb.Cells, 2)
	assert.Equal(t, nbformat.CellTypeMarkdown, nb.Cells[0].CellType)
	assert.Equal(t, nbformat.CellTypeCode, nb.Cells[1].CellType)
	assert.Equal(t, "sh", nb.Cells[1].Metadata["language"])
}
