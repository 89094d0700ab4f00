// Copyright (c) 2025 BVK Chaitanya

package syncmap

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	var m Map[string, *int]

	one, two := 1, 2
	_, ok := m.Load("a")
	assert.False(t, ok)

	actual, loaded := m.LoadOrStore("a", &one)
	assert.False(t, loaded)
	assert.Equal(t, &one, actual)

	actual, loaded = m.LoadOrStore("a", &two)
	assert.True(t, loaded)
	assert.Equal(t, &one, actual)

	m.Store("b", &two)
	keys := m.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b"}, keys)

	assert.False(t, m.CompareAndDelete("a", &two))
	assert.True(t, m.CompareAndDelete("a", &one))

	v, loaded := m.LoadAndDelete("b")
	require.True(t, loaded)
	assert.Equal(t, 2, *v)

	_, loaded = m.LoadAndDelete("b")
	assert.False(t, loaded)
	assert.Empty(t, m.Keys())
}

func TestMapRange(t *testing.T) {
	var m Map[int, int]

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Store(i, i*i)
		}()
	}
	wg.Wait()

	sum := 0
	for k, v := range m.Range {
		assert.Equal(t, k*k, v)
		sum += k
	}
	assert.Equal(t, 49*50/2, sum)

	visited := 0
	for range m.Range {
		visited++
		if visited == 3 {
			break
		}
	}
	assert.Equal(t, 3, visited)

	m.Delete(0)
	_, ok := m.Load(0)
	assert.False(t, ok)
}
