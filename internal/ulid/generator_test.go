package ulid

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	assert.True(t, IsULID(id))
	assert.Len(t, id, 26)

	assert.False(t, IsULID(""))
	assert.False(t, IsULID("node-1"))
	assert.False(t, IsULID("01B4E6BXY0PRJ5G420D25MWQY!"))
}

func TestGenerateIDOrdered(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = GenerateID()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestGenerateIDConcurrent(t *testing.T) {
	const n = 5000

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{}, n)
	)
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			id := GenerateID()
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, ids, n)
}

func TestMockSequence(t *testing.T) {
	MockSequence("node")
	t.Cleanup(ResetGenerator)

	assert.Equal(t, "node-1", GenerateID())
	assert.Equal(t, "node-2", GenerateID())

	ResetGenerator()
	assert.True(t, IsULID(GenerateID()))
}
