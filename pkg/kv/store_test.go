package kv

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_GetSet(t *testing.T) {
	s := New[string, int]()

	s.Set("foo", 42)
	val, ok := s.Get("foo")
	assert.True(t, ok)
	assert.Equal(t, 42, val)

	_, ok = s.Get("bar")
	assert.False(t, ok)
}

func TestStore_SetIfAbsent(t *testing.T) {
	s := New[string, int]()

	assert.True(t, s.SetIfAbsent("a", 1))
	assert.False(t, s.SetIfAbsent("a", 2))

	val, _ := s.Get("a")
	assert.Equal(t, 1, val)
}

func TestStore_Take(t *testing.T) {
	s := New[string, string]()
	s.Set("key", "value")

	val, ok := s.Take("key")
	assert.True(t, ok)
	assert.Equal(t, "value", val)

	_, ok = s.Take("key")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Delete(t *testing.T) {
	s := New[string, string]()
	s.Set("key", "value")

	s.Delete("key")

	_, ok := s.Get("key")
	assert.False(t, ok)
}

func TestStore_ConcurrentTakeIsExclusive(t *testing.T) {
	s := New[int, int]()
	for i := 0; i < 100; i++ {
		s.Set(i, i)
	}

	var taken atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, ok := s.Take(i); ok {
					taken.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), taken.Load())
	assert.Equal(t, 0, s.Len())
}
