package ulid

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     io.Reader
	entropyOnce sync.Once

	mu        sync.RWMutex
	generator = newULID
)

func monotonicEntropy() io.Reader {
	entropyOnce.Do(func() {
		entropy = &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		}
	})
	return entropy
}

func newULID() string {
	return ulid.MustNew(ulid.Now(), monotonicEntropy()).String()
}

// GenerateID returns a new identifier. Node keys and kernel ids are both
// produced here, and sort by creation time within a process.
func GenerateID() string {
	mu.RLock()
	gen := generator
	mu.RUnlock()
	return gen()
}

// IsULID reports whether id was produced by the default generator.
func IsULID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// MockSequence makes GenerateID return prefix-1, prefix-2, ... until
// ResetGenerator is called.
func MockSequence(prefix string) {
	var n atomic.Uint64
	setGenerator(func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	})
}

func ResetGenerator() {
	setGenerator(newULID)
}

func setGenerator(gen func() string) {
	mu.Lock()
	generator = gen
	mu.Unlock()
}
