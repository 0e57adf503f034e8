package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stateful/cellbook/pkg/document/plugins"
	"github.com/stateful/cellbook/pkg/document/tree"
)

func TestNew(t *testing.T) {
	d := New(WithLogger(zaptest.NewLogger(t)))
	defer d.Close()

	require.True(t, d.Tree.DispatchCommand(plugins.InsertJupyterCell, plugins.JupyterCellPayload{Code: "echo hi"}))
	assert.Equal(t, 1, d.Registry.Len())

	require.NoError(t, d.Tree.Update(func(tx *tree.Tx) error {
		return tx.Remove(tx.Root().FirstChild())
	}))
	assert.Equal(t, 0, d.Registry.Len())

	require.NoError(t, d.Tree.Read(func(tx *tree.Tx) error {
		assert.Equal(t, 0, tx.Root().ChildCount())
		return nil
	}))
}

func TestClose(t *testing.T) {
	d := New()
	d.Close()
	d.Close()

	assert.False(t, d.Tree.DispatchCommand(plugins.InsertJupyterCell, plugins.JupyterCellPayload{Code: "x"}))
}
