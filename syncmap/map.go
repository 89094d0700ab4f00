// Copyright (c) 2023 BVK Chaitanya

// Package syncmap implements a type-safe wrapper over sync.Map.
package syncmap

import "sync"

// Map is a generic sync.Map. Zero value is ready to use.
type Map[K comparable, V any] struct {
	m sync.Map
}

func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	if v, ok := m.m.Load(key); ok {
		return v.(V), true
	}
	return value, false
}

func (m *Map[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

func (m *Map[K, V]) Delete(key K) {
	m.m.Delete(key)
}

func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	a, loaded := m.m.LoadOrStore(key, value)
	return a.(V), loaded
}

func (m *Map[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	if v, loaded := m.m.LoadAndDelete(key); loaded {
		return v.(V), true
	}
	return value, false
}

// CompareAndDelete removes the entry only if it still holds the old value.
// Values must be comparable.
func (m *Map[K, V]) CompareAndDelete(key K, old V) (deleted bool) {
	return m.m.CompareAndDelete(key, old)
}

// Range visits every entry until yield returns false. It has the iterator
// signature so it can be used in for-range loops.
func (m *Map[K, V]) Range(yield func(key K, value V) bool) {
	m.m.Range(func(key, value any) bool {
		return yield(key.(K), value.(V))
	})
}

// Keys returns a snapshot of all keys in the map in no particular order.
func (m *Map[K, V]) Keys() []K {
	var keys []K
	for k := range m.Range {
		keys = append(keys, k)
	}
	return keys
}
