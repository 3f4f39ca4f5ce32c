package keyed

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateOnce(t *testing.T) {
	m := New[*int]()
	calls := 0
	create := func() *int {
		calls++
		v := 7
		return &v
	}

	a := m.GetOrCreate("colony-1", create)
	b := m.GetOrCreate("colony-1", create)
	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)
}

func TestSetGetDelete(t *testing.T) {
	m := NewWithShards[string](0)
	m.Set("a", "x")
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestConcurrentDistinctKeys(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(fmt.Sprintf("k%d", i), i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 64, m.Len())

	seen := 0
	m.Range(func(_ string, _ int) bool {
		seen++
		return true
	})
	assert.Equal(t, 64, seen)
}

func TestRangeStops(t *testing.T) {
	m := New[int]()
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}
	seen := 0
	m.Range(func(_ string, _ int) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}
