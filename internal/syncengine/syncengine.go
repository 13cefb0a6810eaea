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

// Package syncengine tracks dirty chunks on the client and writes them
// back to the host under the exclusive lock.
package syncengine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/lock"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/monitor"
)

const (
	// DefaultInterval between sync passes.
	DefaultInterval = time.Second

	// DefaultBatchSize bounds chunks uploaded per pass.
	DefaultBatchSize = 10

	// DefaultForceSyncThreshold is the dirty count that should trigger an
	// immediate sync.
	DefaultForceSyncThreshold = 1000
)

// DirtyChunk is one pending write. The engine owns the byte buffer until
// the chunk is synced.
type DirtyChunk struct {
	Data       []byte
	ModifiedAt time.Time
	Attempts   uint32
	LastError  string
}

// FileLock is the client-side view of a held lock.
type FileLock struct {
	Token      lock.Token
	Exclusive  bool
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// UploadFunc sends one chunk to the host. A zero token means no lock is
// held for the chunk's inode.
type UploadFunc func(ctx context.Context, id core.ChunkID, data []byte, token lock.Token) error

// Engine owns the dirty set and the client's lock book-keeping.
type Engine struct {
	mu          sync.Mutex
	clock       clock.Clock
	dirty       map[core.ChunkID]*DirtyChunk
	dirtyInodes map[core.Inode]int
	locks       map[core.Inode]FileLock

	interval       time.Duration
	batchSize      int
	forceThreshold int
}

// New creates a sync engine with the given cadence. Zero values pick the
// defaults.
func New(clk clock.Clock, interval time.Duration, batchSize, forceThreshold int) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if forceThreshold <= 0 {
		forceThreshold = DefaultForceSyncThreshold
	}
	return &Engine{
		clock:          clk,
		dirty:          make(map[core.ChunkID]*DirtyChunk),
		dirtyInodes:    make(map[core.Inode]int),
		locks:          make(map[core.Inode]FileLock),
		interval:       interval,
		batchSize:      batchSize,
		forceThreshold: forceThreshold,
	}
}

// MarkDirty records chunk bytes awaiting upload, replacing any prior
// dirty bytes for the chunk.
func (e *Engine) MarkDirty(id core.ChunkID, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.dirty[id]; !ok {
		e.dirtyInodes[id.Inode]++
	}
	e.dirty[id] = &DirtyChunk{Data: data, ModifiedAt: e.clock.Now()}
	monitor.DirtyChunks.Set(float64(len(e.dirty)))
}

// MarkSynced removes the chunk from the dirty set.
func (e *Engine) MarkSynced(id core.ChunkID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markSyncedLocked(id)
}

func (e *Engine) markSyncedLocked(id core.ChunkID) {
	if _, ok := e.dirty[id]; !ok {
		return
	}
	delete(e.dirty, id)
	if n := e.dirtyInodes[id.Inode] - 1; n > 0 {
		e.dirtyInodes[id.Inode] = n
	} else {
		delete(e.dirtyInodes, id.Inode)
	}
	monitor.DirtyChunks.Set(float64(len(e.dirty)))
}

// GetDirtyChunk returns the pending bytes for a chunk, if any.
func (e *Engine) GetDirtyChunk(id core.ChunkID) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.dirty[id]
	if !ok {
		return nil, false
	}
	return d.Data, true
}

// DirtyCount returns the number of dirty chunks.
func (e *Engine) DirtyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirty)
}

// IsInodeDirty reports whether any chunk of inode awaits upload.
func (e *Engine) IsInodeDirty(inode core.Inode) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirtyInodes[inode] > 0
}

// ShouldForceSync reports whether the dirty backlog crossed the
// threshold and the caller should sync immediately.
func (e *Engine) ShouldForceSync() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirty) >= e.forceThreshold
}

// StoreLock records a lock held for an inode.
func (e *Engine) StoreLock(inode core.Inode, l FileLock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locks[inode] = l
}

// GetLock returns the live lock held for inode, if any. Expired locks
// are ignored.
func (e *Engine) GetLock(inode core.Inode) (FileLock, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[inode]
	if !ok || e.clock.Now().After(l.ExpiresAt) {
		return FileLock{}, false
	}
	return l, true
}

// RemoveLock forgets the lock held for inode.
func (e *Engine) RemoveLock(inode core.Inode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.locks, inode)
}

// HasLock reports whether a live lock of at least the required strength
// is held for inode.
func (e *Engine) HasLock(inode core.Inode, exclusive bool) bool {
	l, ok := e.GetLock(inode)
	if !ok {
		return false
	}
	if exclusive {
		return l.Exclusive
	}
	return true
}

// CleanupExpiredLocks drops expired lock records.
func (e *Engine) CleanupExpiredLocks() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	for inode, l := range e.locks {
		if now.After(l.ExpiresAt) {
			delete(e.locks, inode)
		}
	}
}

// BatchEntry is one dirty chunk selected for upload.
type BatchEntry struct {
	ID    core.ChunkID
	Chunk DirtyChunk
}

// TakeBatch returns up to batchSize dirty chunks, oldest first. The
// chunks stay in the dirty set until MarkSynced.
func (e *Engine) TakeBatch() []BatchEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := make([]BatchEntry, 0, len(e.dirty))
	for id, d := range e.dirty {
		entries = append(entries, BatchEntry{ID: id, Chunk: *d})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Chunk.ModifiedAt.Before(entries[j].Chunk.ModifiedAt)
	})
	if len(entries) > e.batchSize {
		entries = entries[:e.batchSize]
	}
	return entries
}

// DirtyChunksForInode returns the dirty chunks of one inode, oldest
// first. Used by flush to write a single file back synchronously.
func (e *Engine) DirtyChunksForInode(inode core.Inode) []BatchEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	var entries []BatchEntry
	for id, d := range e.dirty {
		if id.Inode == inode {
			entries = append(entries, BatchEntry{ID: id, Chunk: *d})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Chunk.ModifiedAt.Before(entries[j].Chunk.ModifiedAt)
	})
	return entries
}

// RecordFailure increments the attempt counter for a chunk that failed
// to upload; the chunk stays dirty.
func (e *Engine) RecordFailure(id core.ChunkID, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.dirty[id]; ok {
		d.Attempts++
		d.LastError = err.Error()
	}
}

// Run is the background sync loop: wake on the interval, clean expired
// locks, upload the oldest batch under each inode's lock token, mark
// synced on success.
func (e *Engine) Run(ctx context.Context, upload UploadFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(e.interval):
		}
		e.SyncPass(ctx, upload)
	}
}

// SyncPass performs one writeback pass.
func (e *Engine) SyncPass(ctx context.Context, upload UploadFunc) {
	e.CleanupExpiredLocks()

	for _, entry := range e.TakeBatch() {
		var token lock.Token
		if l, ok := e.GetLock(entry.ID.Inode); ok {
			token = l.Token
		}
		if err := upload(ctx, entry.ID, entry.Chunk.Data, token); err != nil {
			e.RecordFailure(entry.ID, err)
			logger.Warnf("sync: upload of %v failed (attempt %d): %v", entry.ID, entry.Chunk.Attempts+1, err)
			continue
		}
		e.MarkSynced(entry.ID)
	}
}
