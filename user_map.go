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

// UserMap is a concurrency-safe map[string]*User. The server keeps one
// keyed by folded nick and one keyed by id; channel member sets use
// MemberMap instead.
// Thin typed wrapper over shared/concurrentmap.
type UserMap struct {
	data concurrentmap.ConcurrentMap[string, *User]
}

// NewUserMap initializes and returns a pointer to a new UserMap instance.
func NewUserMap() *UserMap {
	return &UserMap{data: concurrentmap.New[string, *User]()}
}

// ForEach will call the provided function for each entry in the UserMap.
func (m *UserMap) ForEach(do func(*User)) {
	m.data.ForEach(func(_ string, v *User) error {
		do(v)
		return nil
	})
}

// Length returns the length of the underlying map.
func (m *UserMap) Length() int {
	return m.data.Length()
}

// Add is used to add a key/value to the map.
// Returns an error if the key already exists.
func (m *UserMap) Add(key string, value *User) error {
	if m.data.Exists(key) {
		return fmt.Errorf("UserMap: cannot add map entry, key already exists: %q", key)
	}
	m.data.Set(key, value)
	return nil
}

// Del is used to remove a key/value from the map.
// Returns an error if the key does not exist.
func (m *UserMap) Del(key string) error {
	if !m.data.Delete(key) {
		return fmt.Errorf("UserMap: cannot delete map entry, key does not exist: %q", key)
	}
	return nil
}

// Get is used to get a key/value from the map.
// Returns an error if the key does not exist.
func (m *UserMap) Get(key string) (*User, error) {
	v, exists := m.data.Get(key)
	if !exists {
		return nil, fmt.Errorf("UserMap: cannot get map value, key does not exist: %q", key)
	}
	return v, nil
}

// Set is used to change an existing key/value in the map.
// Returns an error if the key does not exist.
func (m *UserMap) Set(key string, value *User) error {
	if !m.data.Exists(key) {
		return fmt.Errorf("UserMap: cannot set map value, key does not exist: %q", key)
	}
	m.data.Set(key, value)
	return nil
}

// Exists is used by external callers to check if a value
// exists in the map and returns a boolean with the result.
func (m *UserMap) Exists(key string) bool {
	return m.data.Exists(key)
}

// Rename moves the value stored under old to new in a single locked
// step, used when a client's folded nick changes (NICK) so no reader
// observes the map with neither key present.
func (m *UserMap) Rename(old, new string) bool {
	return m.data.ChangeKey(old, new)
}
