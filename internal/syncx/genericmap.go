// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package syncx provides concurrency-safe containers.
package syncx

import (
	"iter"
	"slices"
	"sync"
)

// Map is a type-safe concurrent map which remembers insertion order.
// Storing an existing key keeps its position. The zero Map is ready to use.
type Map[K comparable, V any] struct {
	mu   sync.RWMutex
	m    map[K]V
	keys []K
}

// Clear deletes all the entries, resulting in an empty Map.
func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m = nil
	m.keys = nil
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// LoadAndDelete deletes the value for a key, returning the previous value if any.
// The loaded result reports whether the key was present.
func (m *Map[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, loaded = m.m[key]
	if !loaded {
		return value, false
	}
	delete(m.m, key)
	m.keys = slices.DeleteFunc(m.keys, func(k K) bool { return k == key })
	return value, true
}

// Store sets the value for a key.
func (m *Map[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.m == nil {
		m.m = make(map[K]V)
	}
	if _, ok := m.m[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.m[key] = value
}

// Update replaces the value for a present key with f applied to it, under the
// write lock. It reports whether the key was present.
func (m *Map[K, V]) Update(key K, f func(V) V) (updated V, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	if !ok {
		return v, false
	}
	updated = f(v)
	m.m[key] = updated
	return updated, true
}

// Backward returns an iterator over key-value pairs, starting from the most
// recently inserted entry. It ranges over a snapshot, so the loop body may
// modify the map.
func (m *Map[K, V]) Backward() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.mu.RLock()
		keys := slices.Clone(m.keys)
		values := make([]V, len(keys))
		for i, k := range keys {
			values[i] = m.m[k]
		}
		m.mu.RUnlock()
		for i := len(keys) - 1; i >= 0; i-- {
			if !yield(keys[i], values[i]) {
				return
			}
		}
	}
}
