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

// Package ram implements the in-memory chunk cache: an LRU bounded by a
// byte budget, with per-chunk and per-inode invalidation.
package ram

import (
	"fmt"

	"github.com/wormholefs/wormhole/internal/cache/lru"
	"github.com/wormholefs/wormhole/internal/core"
)

type chunkEntry struct {
	data []byte
}

func (e chunkEntry) Size() uint64 {
	return uint64(len(e.data))
}

// Cache is the L1 chunk cache.
type Cache struct {
	entries *lru.Cache
}

// NewCache creates a RAM cache holding at most maxBytes of chunk data.
func NewCache(maxBytes uint64) *Cache {
	return &Cache{entries: lru.NewCache(maxBytes)}
}

func chunkKey(id core.ChunkID) string {
	return id.String()
}

func inodePrefix(inode core.Inode) string {
	return fmt.Sprintf("%d:", inode)
}

// Get returns the chunk's bytes and promotes it. The returned slice is
// shared with the cache; callers must not mutate it.
func (c *Cache) Get(id core.ChunkID) ([]byte, bool) {
	v := c.entries.LookUp(chunkKey(id))
	if v == nil {
		return nil, false
	}
	return v.(chunkEntry).data, true
}

// Peek returns the chunk's bytes without promoting it.
func (c *Cache) Peek(id core.ChunkID) ([]byte, bool) {
	v := c.entries.LookUpWithoutChangingOrder(chunkKey(id))
	if v == nil {
		return nil, false
	}
	return v.(chunkEntry).data, true
}

// Contains reports presence without promoting.
func (c *Cache) Contains(id core.ChunkID) bool {
	return c.entries.LookUpWithoutChangingOrder(chunkKey(id)) != nil
}

// Insert stores a chunk, evicting least-recently-used entries until it
// fits. Chunks larger than the whole budget are silently not cached.
func (c *Cache) Insert(id core.ChunkID, data []byte) {
	_, _ = c.entries.Insert(chunkKey(id), chunkEntry{data: data})
}

// Invalidate drops one chunk.
func (c *Cache) Invalidate(id core.ChunkID) {
	c.entries.Erase(chunkKey(id))
}

// InvalidateInode drops every cached chunk of an inode.
func (c *Cache) InvalidateInode(inode core.Inode) {
	c.entries.EraseEntriesWithGivenPrefix(inodePrefix(inode))
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.entries.Clear()
}

// CurrentBytes returns the byte counter, which always equals the sum of
// entry lengths.
func (c *Cache) CurrentBytes() uint64 {
	return c.entries.Size()
}

// EntryCount returns the number of cached chunks.
func (c *Cache) EntryCount() int {
	return c.entries.EntryCount()
}
