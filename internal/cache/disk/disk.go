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

// Package disk implements the persistent chunk store. Chunks live under
// a two-level hashed directory tree; writes go to a temp file, are
// fsynced, and renamed into place.
package disk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/logger"
)

const tmpSuffix = ".tmp"

type entry struct {
	path         string
	size         int64
	lastAccessed time.Time
}

// Cache is the L2 chunk store.
//
// The in-memory index is authoritative for reads. After a restart, files
// found on disk contribute to the byte total but are not re-indexed;
// such orphans are dropped by RemoveOrphans on a later GC pass.
type Cache struct {
	root     string
	maxBytes int64
	clock    clock.Clock

	mu         sync.Mutex
	index      map[core.ChunkID]*entry
	totalBytes int64
}

// New opens (or creates) a disk cache rooted at dir.
func New(dir string, maxBytes int64, clk clock.Clock) (*Cache, error) {
	root := filepath.Join(dir, "chunks")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	c := &Cache{
		root:     root,
		maxBytes: maxBytes,
		clock:    clk,
		index:    make(map[core.ChunkID]*entry),
	}
	if err := c.scan(); err != nil {
		return nil, err
	}
	return c, nil
}

// scan sizes pre-existing files and clears stale temp files.
func (c *Cache) scan() error {
	return filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, tmpSuffix) {
			return os.Remove(path)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		c.totalBytes += info.Size()
		return nil
	})
}

// chunkPath derives the on-disk location: H[0:2]/H[2:4]/H[4:] where H is
// the hex digest of (inode ‖ chunk index).
func (c *Cache) chunkPath(id core.ChunkID) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d-%d", id.Inode, id.Index)))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(c.root, h[0:2], h[2:4], h[4:])
}

// Put stores chunk bytes atomically.
func (c *Cache) Put(id core.ChunkID, data []byte) error {
	path := c.chunkPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating chunk dir: %w", err)
	}

	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp chunk: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing chunk: %w", err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing chunk: %w", err)
	}
	if err = f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing chunk: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming chunk into place: %w", err)
	}

	c.mu.Lock()
	if prev, ok := c.index[id]; ok {
		c.totalBytes -= prev.size
	}
	c.index[id] = &entry{path: path, size: int64(len(data)), lastAccessed: c.clock.Now()}
	c.totalBytes += int64(len(data))
	c.mu.Unlock()
	return nil
}

// Get returns the chunk's bytes and refreshes its access time.
func (c *Cache) Get(id core.ChunkID) ([]byte, bool) {
	c.mu.Lock()
	e, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	path := e.path
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		// The file vanished under us; forget the entry.
		logger.Warnf("disk cache: reading %s: %v", path, err)
		c.mu.Lock()
		if cur, ok := c.index[id]; ok && cur == e {
			c.totalBytes -= e.size
			delete(c.index, id)
		}
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	if cur, ok := c.index[id]; ok && cur == e {
		e.lastAccessed = c.clock.Now()
	}
	c.mu.Unlock()
	return data, true
}

// Contains reports whether the chunk is indexed.
func (c *Cache) Contains(id core.ChunkID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

// Remove drops the chunk from index and disk.
func (c *Cache) Remove(id core.ChunkID) {
	c.mu.Lock()
	e, ok := c.index[id]
	if ok {
		c.totalBytes -= e.size
		delete(c.index, id)
	}
	c.mu.Unlock()
	if ok {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("disk cache: removing %s: %v", e.path, err)
		}
	}
}

// Clear drops every entry and file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.index = make(map[core.ChunkID]*entry)
	c.totalBytes = 0
	c.mu.Unlock()

	if err := os.RemoveAll(c.root); err != nil {
		return err
	}
	return os.MkdirAll(c.root, 0o755)
}

// EvictOldest removes indexed entries oldest-access-first until the byte
// total is at or below targetBytes. Returns the bytes freed.
func (c *Cache) EvictOldest(targetBytes int64) int64 {
	c.mu.Lock()
	type aged struct {
		id core.ChunkID
		e  *entry
	}
	victims := make([]aged, 0, len(c.index))
	for id, e := range c.index {
		victims = append(victims, aged{id, e})
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].e.lastAccessed.Before(victims[j].e.lastAccessed)
	})

	var freed int64
	var paths []string
	for _, v := range victims {
		if c.totalBytes <= targetBytes {
			break
		}
		c.totalBytes -= v.e.size
		freed += v.e.size
		delete(c.index, v.id)
		paths = append(paths, v.e.path)
	}
	c.mu.Unlock()

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warnf("disk cache: evicting %s: %v", p, err)
		}
	}
	return freed
}

// RemoveOrphans deletes files on disk that no index entry points at and
// subtracts their size from the byte total. Called from the GC.
func (c *Cache) RemoveOrphans() {
	c.mu.Lock()
	known := make(map[string]struct{}, len(c.index))
	for _, e := range c.index {
		known[e.path] = struct{}{}
	}
	c.mu.Unlock()

	var orphanBytes int64
	_ = filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if _, ok := known[path]; ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if err := os.Remove(path); err == nil {
			orphanBytes += info.Size()
		}
		return nil
	})

	if orphanBytes > 0 {
		c.mu.Lock()
		c.totalBytes -= orphanBytes
		if c.totalBytes < 0 {
			c.totalBytes = 0
		}
		c.mu.Unlock()
	}
}

// TotalBytes returns the current byte total, including unindexed files
// found at startup.
func (c *Cache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// MaxBytes returns the configured budget.
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// EntryCount returns the number of indexed chunks.
func (c *Cache) EntryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}
