/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import (
	"fmt"

	"github.com/meshircd/meshd/shared/concurrentmap"
)

// ConnMap is a concurrency-safe map[string]*Conn, indexed by remote
// address. It is a thin typed wrapper over shared/concurrentmap so the
// connection registry shares its locking discipline with ChanMap and
// UserMap rather than hand-rolling its own.
type ConnMap struct {
	data concurrentmap.ConcurrentMap[string, *Conn]
}

// NewConnMap initializes and returns a pointer to a new ConnMap instance.
func NewConnMap() *ConnMap {
	return &ConnMap{data: concurrentmap.New[string, *Conn]()}
}

// ForEach will call the provided function for each entry in the ConnMap.
func (m *ConnMap) ForEach(do func(*Conn)) {
	m.data.ForEach(func(_ string, v *Conn) error {
		do(v)
		return nil
	})
}

// Length returns the length of the underlying map.
func (m *ConnMap) Length() int {
	return m.data.Length()
}

// Add is used to add a key/value to the map.
// Returns an error if the key already exists.
func (m *ConnMap) Add(key string, value *Conn) error {
	if m.data.Exists(key) {
		return fmt.Errorf("ConnMap: cannot add map entry, key already exists: %q", key)
	}
	m.data.Set(key, value)
	return nil
}

// Del is used to remove a key/value from the map.
// Returns an error if the key does not exist.
func (m *ConnMap) Del(key string) error {
	if !m.data.Delete(key) {
		return fmt.Errorf("ConnMap: cannot delete map entry, key does not exist: %q", key)
	}
	return nil
}

// Get is used to get a key/value from the map.
// Returns an error if the key does not exist.
func (m *ConnMap) Get(key string) (*Conn, error) {
	v, exists := m.data.Get(key)
	if !exists {
		return nil, fmt.Errorf("ConnMap: cannot get map value, key does not exist: %q", key)
	}
	return v, nil
}

// Set is used to change an existing key/value in the map.
// Returns an error if the key does not exist.
func (m *ConnMap) Set(key string, value *Conn) error {
	if !m.data.Exists(key) {
		return fmt.Errorf("ConnMap: cannot set map value, key does not exist: %q", key)
	}
	m.data.Set(key, value)
	return nil
}

// Exists is used by external callers to check if a value
// exists in the map and returns a boolean with the result.
func (m *ConnMap) Exists(key string) bool {
	return m.data.Exists(key)
}
