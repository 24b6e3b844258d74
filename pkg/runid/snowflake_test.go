package runid

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UniqueAndIncreasing(t *testing.T) {
	require.NoError(t, Init(7))

	seen := make(map[string]struct{})
	var last int64
	for i := 0; i < 10_000; i++ {
		id := New()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}

		v, err := strconv.ParseInt(id, 10, 64)
		require.NoError(t, err)
		assert.Greater(t, v, last)
		last = v
	}
}

func TestNew_Concurrent(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]struct{})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := New()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 8000)
}
