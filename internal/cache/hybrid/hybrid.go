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

// Package hybrid composes the RAM (L1) and disk (L2) chunk caches. Reads
// check L1 then L2, promoting disk hits without a second copy. Inserts
// land in L1 immediately; the disk write happens on a bounded set of
// background writers and is dropped when they are saturated.
package hybrid

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/wormholefs/wormhole/internal/cache/disk"
	"github.com/wormholefs/wormhole/internal/cache/ram"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/monitor"
)

// DefaultWritebackWorkers bounds concurrent disk writebacks.
const DefaultWritebackWorkers = 4

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	RamHits    uint64
	DiskHits   uint64
	Misses     uint64
	DiskWrites uint64
	Drops      uint64
}

// Cache is the two-tier chunk cache.
type Cache struct {
	l1          *ram.Cache
	l2          *disk.Cache
	writers     *semaphore.Weighted
	writerCount int64

	ramHits    atomic.Uint64
	diskHits   atomic.Uint64
	misses     atomic.Uint64
	diskWrites atomic.Uint64
	drops      atomic.Uint64
}

// New composes l1 and l2 with the given writeback concurrency.
func New(l1 *ram.Cache, l2 *disk.Cache, writebackWorkers int) *Cache {
	if writebackWorkers < 1 {
		writebackWorkers = DefaultWritebackWorkers
	}
	return &Cache{
		l1:          l1,
		l2:          l2,
		writers:     semaphore.NewWeighted(int64(writebackWorkers)),
		writerCount: int64(writebackWorkers),
	}
}

// Get returns the chunk from L1, else L2 (promoting the same buffer into
// L1), else reports a miss.
func (c *Cache) Get(id core.ChunkID) ([]byte, bool) {
	if data, ok := c.l1.Get(id); ok {
		c.ramHits.Add(1)
		monitor.ChunkCacheLookups.WithLabelValues("ram_hit").Inc()
		return data, true
	}
	if data, ok := c.l2.Get(id); ok {
		c.diskHits.Add(1)
		monitor.ChunkCacheLookups.WithLabelValues("disk_hit").Inc()
		// Promote the buffer we already read; no second copy.
		c.l1.Insert(id, data)
		return data, true
	}
	c.misses.Add(1)
	monitor.ChunkCacheLookups.WithLabelValues("miss").Inc()
	return nil, false
}

// Contains reports presence in either tier without promoting.
func (c *Cache) Contains(id core.ChunkID) bool {
	return c.l1.Contains(id) || c.l2.Contains(id)
}

// Insert stores the chunk in L1 and schedules an asynchronous disk write.
// When every writer is busy the disk write is dropped; RAM still holds
// the data.
func (c *Cache) Insert(id core.ChunkID, data []byte) {
	c.l1.Insert(id, data)

	if !c.writers.TryAcquire(1) {
		c.drops.Add(1)
		monitor.ChunkCacheWritebacks.WithLabelValues("dropped").Inc()
		return
	}
	go func() {
		defer c.writers.Release(1)
		if err := c.l2.Put(id, data); err != nil {
			logger.Warnf("hybrid cache: writeback of %v failed: %v", id, err)
			return
		}
		c.diskWrites.Add(1)
		monitor.ChunkCacheWritebacks.WithLabelValues("written").Inc()
	}()
}

// Invalidate drops the chunk from both tiers.
func (c *Cache) Invalidate(id core.ChunkID) {
	c.l1.Invalidate(id)
	c.l2.Remove(id)
}

// InvalidateInode drops every cached chunk of the inode from L1. L2
// entries age out via the garbage collector.
func (c *Cache) InvalidateInode(inode core.Inode) {
	c.l1.InvalidateInode(inode)
}

// WaitWriters blocks until every scheduled disk write has finished.
// Intended for shutdown and tests.
func (c *Cache) WaitWriters(ctx context.Context) error {
	if err := c.writers.Acquire(ctx, c.writerCount); err != nil {
		return err
	}
	c.writers.Release(c.writerCount)
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		RamHits:    c.ramHits.Load(),
		DiskHits:   c.diskHits.Load(),
		Misses:     c.misses.Load(),
		DiskWrites: c.diskWrites.Load(),
		Drops:      c.drops.Load(),
	}
}
