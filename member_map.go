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

// MemberMap is a concurrency-safe map[string]*Member, indexed by
// client id. One lives on each Channel as its member set.
type MemberMap struct {
	data concurrentmap.ConcurrentMap[string, *Member]
}

// NewMemberMap initializes and returns a pointer to a new MemberMap instance.
func NewMemberMap() *MemberMap {
	return &MemberMap{data: concurrentmap.New[string, *Member]()}
}

// ForEach will call the provided function for each entry in the MemberMap.
func (m *MemberMap) ForEach(do func(*Member)) {
	m.data.ForEach(func(_ string, v *Member) error {
		do(v)
		return nil
	})
}

// Length returns the length of the underlying map.
func (m *MemberMap) Length() int {
	return m.data.Length()
}

// Add is used to add a key/value to the map.
// Returns an error if the key already exists.
func (m *MemberMap) Add(key string, value *Member) error {
	if m.data.Exists(key) {
		return fmt.Errorf("MemberMap: cannot add map entry, key already exists: %q", key)
	}
	m.data.Set(key, value)
	return nil
}

// Del is used to remove a key/value from the map.
// Returns an error if the key does not exist.
func (m *MemberMap) Del(key string) error {
	if !m.data.Delete(key) {
		return fmt.Errorf("MemberMap: cannot delete map entry, key does not exist: %q", key)
	}
	return nil
}

// Get is used to get a key/value from the map.
// Returns an error if the key does not exist.
func (m *MemberMap) Get(key string) (*Member, error) {
	v, exists := m.data.Get(key)
	if !exists {
		return nil, fmt.Errorf("MemberMap: cannot get map value, key does not exist: %q", key)
	}
	return v, nil
}

// Exists is used by external callers to check if a value
// exists in the map and returns a boolean with the result.
func (m *MemberMap) Exists(key string) bool {
	return m.data.Exists(key)
}
