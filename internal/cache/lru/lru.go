// Copyright 2025 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lru provides a size-bounded least-recently-used cache. The sum
// of entry sizes never exceeds the configured budget; Insert evicts the
// least recently used entries until the new one fits.
package lru

import (
	"container/list"
	"errors"
	"strings"
	"sync"
)

const (
	InvalidEntryErrorMsg           = "nil values are not supported"
	InvalidEntrySizeErrorMsg       = "size of the entry is more than the cache's maxSize"
	EntryNotExistErrMsg            = "entry with given key does not exist"
	InvalidUpdateEntrySizeErrorMsg = "size of entry to be updated is not same as existing entry"
)

// ValueType is implemented by anything the cache can hold. Size must stay
// constant for the lifetime of the entry.
type ValueType interface {
	Size() uint64
}

type entry struct {
	key   string
	value ValueType
}

// Cache is a threadsafe LRU cache bounded by the total Size() of its
// entries.
type Cache struct {
	mu sync.Mutex

	// maxSize is the budget; currentSize the sum of entry sizes.
	maxSize     uint64
	currentSize uint64

	// order holds *entry values, most recently used in front.
	order *list.List

	// index maps keys to their element in order.
	index map[string]*list.Element
}

// NewCache creates a cache that will hold at most maxSize bytes.
func NewCache(maxSize uint64) *Cache {
	return &Cache{
		maxSize: maxSize,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

// Insert adds value under key, evicting least-recently-used entries until
// it fits, and returns the evicted values. Re-insert of an existing key
// rebalances the current size by removing the prior entry first.
func (c *Cache) Insert(key string, value ValueType) ([]ValueType, error) {
	if value == nil {
		return nil, errors.New(InvalidEntryErrorMsg)
	}
	size := value.Size()
	if size > c.maxSize {
		return nil, errors.New(InvalidEntrySizeErrorMsg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.currentSize -= el.Value.(*entry).Size()
		c.order.Remove(el)
		delete(c.index, key)
	}

	var evicted []ValueType
	for c.currentSize+size > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		e := oldest.Value.(*entry)
		c.currentSize -= e.Size()
		c.order.Remove(oldest)
		delete(c.index, e.key)
		evicted = append(evicted, e.value)
	}

	el := c.order.PushFront(&entry{key: key, value: value})
	c.index[key] = el
	c.currentSize += size
	return evicted, nil
}

// LookUp returns the value for key, promoting it to most recently used.
// Returns nil when absent.
func (c *Cache) LookUp(key string) ValueType {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value
}

// LookUpWithoutChangingOrder returns the value for key without touching
// the LRU order.
func (c *Cache) LookUpWithoutChangingOrder(key string) ValueType {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil
	}
	return el.Value.(*entry).value
}

// UpdateWithoutChangingOrder replaces the value under key in place. The
// new value must carry the same size.
func (c *Cache) UpdateWithoutChangingOrder(key string, value ValueType) error {
	if value == nil {
		return errors.New(InvalidEntryErrorMsg)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return errors.New(EntryNotExistErrMsg)
	}
	e := el.Value.(*entry)
	if e.Size() != value.Size() {
		return errors.New(InvalidUpdateEntrySizeErrorMsg)
	}
	e.value = value
	return nil
}

// Erase removes key and returns the removed value, or nil.
func (c *Cache) Erase(key string) ValueType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eraseLocked(key)
}

func (c *Cache) eraseLocked(key string) ValueType {
	el, ok := c.index[key]
	if !ok {
		return nil
	}
	e := el.Value.(*entry)
	c.currentSize -= e.Size()
	c.order.Remove(el)
	delete(c.index, key)
	return e.value
}

// EraseEntriesWithGivenPrefix removes every entry whose key starts with
// prefix and returns the removed values.
func (c *Cache) EraseEntriesWithGivenPrefix(prefix string) []ValueType {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	for k := range c.index {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	var removed []ValueType
	for _, k := range keys {
		removed = append(removed, c.eraseLocked(k))
	}
	return removed
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element)
	c.currentSize = 0
}

// Size returns the sum of entry sizes currently held.
func (c *Cache) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// EntryCount returns the number of entries currently held.
func (c *Cache) EntryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (e *entry) Size() uint64 {
	return e.value.Size()
}
