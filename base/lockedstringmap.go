// Copyright (c) 2020 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package base

import (
	"sync"
)

// LockedStringMap : a map protected by RWMutex
type LockedStringMap struct {
	sync.RWMutex
	locked map[string]interface{}
}

// NewLockedStringMap : creates a new LockedStringMap
func NewLockedStringMap() *LockedStringMap {
	return &LockedStringMap{
		locked: make(map[string]interface{}),
	}
}

// Load : get value for a key; ok is false if not present
func (s *LockedStringMap) Load(key string) (value interface{}, ok bool) {
	s.RLock()
	defer s.RUnlock()
	value, ok = s.locked[key]
	return value, ok
}

// Store : set value for a key
func (s *LockedStringMap) Store(key string, value interface{}) {
	s.Lock()
	defer s.Unlock()
	s.locked[key] = value
}

// Delete : remove a key
func (s *LockedStringMap) Delete(key string) {
	s.Lock()
	defer s.Unlock()
	delete(s.locked, key)
}

// Range : iterate over the map; the callback returns false to stop
// the iteration. The map is locked for the duration.
func (s *LockedStringMap) Range(f func(key string, val interface{}) bool) {
	s.RLock()
	defer s.RUnlock()
	for key, val := range s.locked {
		if !f(key, val) {
			break
		}
	}
}
