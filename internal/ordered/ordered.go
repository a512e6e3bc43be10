// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package ordered provides an insertion-ordered map.
package ordered

import "iter"

// Map is a map that remembers the order in which keys were first set.
// Setting an existing key replaces its value and keeps its position.
// A Map is not safe for concurrent mutation.
type Map[K comparable, V any] struct {
	index  map[K]int
	keys   []K
	values []V
}

// New creates an empty ordered map.
func New[K comparable, V any]() *Map[K, V] {
	return WithCapacity[K, V](0)
}

// WithCapacity creates an empty ordered map sized for n keys.
func WithCapacity[K comparable, V any](n int) *Map[K, V] {
	return &Map[K, V]{
		index:  make(map[K]int, n),
		keys:   make([]K, 0, n),
		values: make([]V, 0, n),
	}
}

// Set stores value under key.
func (m *Map[K, V]) Set(key K, value V) {
	if i, ok := m.index[key]; ok {
		m.values[i] = value
		return
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	i, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return m.values[i], true
}

// Keys returns a copy of the keys in order.
func (m *Map[K, V]) Keys() []K {
	return append([]K(nil), m.keys...)
}

// Values returns a copy of the values in key order.
func (m *Map[K, V]) Values() []V {
	return append([]V(nil), m.values...)
}

func (m *Map[K, V]) Len() int {
	return len(m.keys)
}

// All yields the entries in order.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i, k := range m.keys {
			if !yield(k, m.values[i]) {
				return
			}
		}
	}
}
