package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencerMonotonic(t *testing.T) {
	s := New(10)
	assert.Equal(t, uint64(10), s.Current())
	assert.Equal(t, uint64(11), s.Next())
	assert.Equal(t, uint64(12), s.Next())

	s.Reset(100)
	assert.Equal(t, uint64(101), s.Next())
}

func TestSequencerConcurrentUnique(t *testing.T) {
	s := New(0)

	const workers, per = 8, 1000
	ids := make(chan uint64, workers*per)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				ids <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]struct{}, workers*per)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
	assert.Equal(t, uint64(workers*per), s.Current())
}

func TestSequencerAdvanceNeverLowers(t *testing.T) {
	s := New(5)

	s.Advance(3)
	assert.Equal(t, uint64(5), s.Current())

	s.Advance(9)
	assert.Equal(t, uint64(9), s.Current())
	assert.Equal(t, uint64(10), s.Next())
}
