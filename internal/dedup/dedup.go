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

// Package dedup maps content hashes to known chunk locations so bulk
// transfer can skip bytes the other side already has.
package dedup

import (
	"sync/atomic"

	"github.com/wormholefs/wormhole/internal/cache/lru"
	"github.com/wormholefs/wormhole/internal/core"
)

// DefaultMaxEntries bounds the index.
const DefaultMaxEntries = 100_000

// ChunkLocation says where a chunk with a given content hash lives.
type ChunkLocation struct {
	Path   string
	Offset uint64
	Size   uint64
}

type locEntry struct {
	loc ChunkLocation
}

func (locEntry) Size() uint64 { return 1 }

// Stats is a snapshot of index counters.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Insertions uint64
	Evictions  uint64
	BytesSaved uint64
}

// HitRate returns the hit percentage over all lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Index is the LRU-bounded content-hash index.
type Index struct {
	entries *lru.Cache

	hits       atomic.Uint64
	misses     atomic.Uint64
	insertions atomic.Uint64
	evictions  atomic.Uint64
	bytesSaved atomic.Uint64
}

// New creates an index bounded to maxEntries.
func New(maxEntries int) *Index {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Index{entries: lru.NewCache(uint64(maxEntries))}
}

// Lookup returns the location for hash, updating LRU order and counters.
func (x *Index) Lookup(hash core.ContentHash) (ChunkLocation, bool) {
	v := x.entries.LookUp(hash.String())
	if v == nil {
		x.misses.Add(1)
		return ChunkLocation{}, false
	}
	x.hits.Add(1)
	return v.(locEntry).loc, true
}

// Contains reports presence without touching LRU order or counters.
func (x *Index) Contains(hash core.ContentHash) bool {
	return x.entries.LookUpWithoutChangingOrder(hash.String()) != nil
}

// Insert records the location of hash, evicting the least recently used
// entry when full.
func (x *Index) Insert(hash core.ContentHash, loc ChunkLocation) {
	evicted, err := x.entries.Insert(hash.String(), locEntry{loc: loc})
	if err != nil {
		return
	}
	x.insertions.Add(1)
	x.evictions.Add(uint64(len(evicted)))
}

// FindMissing returns the subset of hashes not present in the index: the
// chunks that actually need transferring. Does not touch LRU order.
func (x *Index) FindMissing(hashes []core.ContentHash) []core.ContentHash {
	missing := make([]core.ContentHash, 0, len(hashes))
	for _, h := range hashes {
		if !x.Contains(h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// RecordBytesSaved adds to the dedup savings counter.
func (x *Index) RecordBytesSaved(n uint64) {
	x.bytesSaved.Add(n)
}

// Len returns the number of indexed hashes.
func (x *Index) Len() int {
	return x.entries.EntryCount()
}

// Clear empties the index. Counters survive.
func (x *Index) Clear() {
	x.entries.Clear()
}

// Stats returns a counter snapshot.
func (x *Index) Stats() Stats {
	return Stats{
		Hits:       x.hits.Load(),
		Misses:     x.misses.Load(),
		Insertions: x.insertions.Load(),
		Evictions:  x.evictions.Load(),
		BytesSaved: x.bytesSaved.Load(),
	}
}
