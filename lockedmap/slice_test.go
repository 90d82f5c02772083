package lockedmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopFrontIsFIFO(t *testing.T) {
	s := NewSlice[int]()
	s.PushBack(1)
	s.PushBack(2)

	v, ok := s.PopFront()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = s.PopFront()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = s.PopFront()
	assert.False(t, ok)
}

func TestPopFrontConcurrentConsumersNeverDuplicateOrDrop(t *testing.T) {
	const n = 1000
	s := NewSlice[int]()
	for i := 0; i < n; i++ {
		s.PushBack(i)
	}

	var mu sync.Mutex
	seen := make(map[int]int)
	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := s.PopFront()
				if !ok {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for v, count := range seen {
		assert.Equal(t, 1, count, "element %d popped %d times", v, count)
	}
}

func TestDrainEmptiesAtomically(t *testing.T) {
	s := NewSlice[string]()
	s.PushBack("a")
	s.PushBack("b")

	assert.Equal(t, []string{"a", "b"}, s.Drain())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Drain())
}

func TestRemoveFuncRemovesFirstMatchOnly(t *testing.T) {
	s := NewSlice[int]()
	s.PushBack(1)
	s.PushBack(2)
	s.PushBack(2)

	assert.True(t, s.RemoveFunc(func(v int) bool { return v == 2 }))
	assert.Equal(t, []int{1, 2}, s.Snapshot())
	assert.False(t, s.RemoveFunc(func(v int) bool { return v == 9 }))
}
