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

// ChanMap is a concurrency-safe map[string]*Channel, indexed by folded
// channel name. Thin typed wrapper over shared/concurrentmap.
type ChanMap struct {
	data concurrentmap.ConcurrentMap[string, *Channel]
}

// NewChanMap initializes and returns a pointer to a new ChanMap instance.
func NewChanMap() *ChanMap {
	return &ChanMap{data: concurrentmap.New[string, *Channel]()}
}

// ForEach will call the provided function for each entry in the ChanMap.
func (m *ChanMap) ForEach(do func(*Channel)) {
	m.data.ForEach(func(_ string, v *Channel) error {
		do(v)
		return nil
	})
}

// Length returns the length of the underlying map.
func (m *ChanMap) Length() int {
	return m.data.Length()
}

// Add is used to add a key/value to the map.
// Returns an error if the key already exists.
func (m *ChanMap) Add(key string, value *Channel) error {
	if m.data.Exists(key) {
		return fmt.Errorf("ChanMap: cannot add map entry, key already exists: %q", key)
	}
	m.data.Set(key, value)
	return nil
}

// Del is used to remove a key/value from the map.
// Returns an error if the key does not exist.
func (m *ChanMap) Del(key string) error {
	if !m.data.Delete(key) {
		return fmt.Errorf("ChanMap: cannot delete map entry, key does not exist: %q", key)
	}
	return nil
}

// Get is used to get a key/value from the map.
// Returns an error if the key does not exist.
func (m *ChanMap) Get(key string) (*Channel, error) {
	v, exists := m.data.Get(key)
	if !exists {
		return nil, fmt.Errorf("ChanMap: cannot get map value, key does not exist: %q", key)
	}
	return v, nil
}

// Set is used to change an existing key/value in the map.
// Returns an error if the key does not exist.
func (m *ChanMap) Set(key string, value *Channel) error {
	if !m.data.Exists(key) {
		return fmt.Errorf("ChanMap: cannot set map value, key does not exist: %q", key)
	}
	m.data.Set(key, value)
	return nil
}

// Exists is used by external callers to check if a value
// exists in the map and returns a boolean with the result.
func (m *ChanMap) Exists(key string) bool {
	return m.data.Exists(key)
}
