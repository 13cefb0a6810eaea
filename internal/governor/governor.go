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

// Package governor watches per-file chunk access patterns and decides
// which chunks to prefetch.
package governor

import (
	"fmt"
	"sync"

	"github.com/wormholefs/wormhole/internal/cache/lru"
	"github.com/wormholefs/wormhole/internal/core"
)

const (
	// DefaultPrefetchWindow is how many chunks ahead to prefetch.
	DefaultPrefetchWindow = 5

	// DefaultSequentialThreshold is the streak length that triggers
	// prefetch.
	DefaultSequentialThreshold = 3

	// MaxFileStates bounds the per-file state table.
	MaxFileStates = 10_000

	// MaxConcurrentPrefetch bounds in-flight prefetch fetches globally.
	MaxConcurrentPrefetch = 4
)

// Direction of a detected access pattern.
type Direction int

const (
	DirectionRandom Direction = iota
	DirectionForward
	DirectionBackward
)

type fileState struct {
	lastIndex uint64
	direction Direction
	streak    uint32
	// accesses counts records since the last direction change.
	accesses uint32
}

func (s *fileState) Size() uint64 { return 1 }

// Governor tracks access patterns for up to MaxFileStates files.
type Governor struct {
	mu        sync.Mutex
	states    *lru.Cache
	window    uint64
	threshold uint32
}

// New creates a governor with the default window and threshold.
func New() *Governor {
	return NewWithConfig(DefaultPrefetchWindow, DefaultSequentialThreshold)
}

// NewWithConfig creates a governor with an explicit prefetch window and
// sequential threshold.
func NewWithConfig(window uint64, threshold uint32) *Governor {
	if window == 0 {
		window = DefaultPrefetchWindow
	}
	if threshold == 0 {
		threshold = DefaultSequentialThreshold
	}
	return &Governor{
		states:    lru.NewCache(MaxFileStates),
		window:    window,
		threshold: threshold,
	}
}

func stateKey(inode core.Inode) string {
	return fmt.Sprintf("%d", inode)
}

// Record notes an access to chunk and returns the chunk ids to prefetch,
// skipping those for which isCached returns true. The returned slice is
// empty until a sequential streak reaches the threshold.
func (g *Governor) Record(chunk core.ChunkID, isCached func(core.ChunkID) bool) []core.ChunkID {
	g.mu.Lock()

	var st *fileState
	if v := g.states.LookUp(stateKey(chunk.Inode)); v != nil {
		st = v.(*fileState)
	} else {
		st = &fileState{lastIndex: chunk.Index, direction: DirectionRandom}
		_, _ = g.states.Insert(stateKey(chunk.Inode), st)
		g.mu.Unlock()
		return nil
	}

	delta := int64(chunk.Index) - int64(st.lastIndex)
	st.lastIndex = chunk.Index
	st.accesses++

	switch {
	case delta == 0:
		// Re-read of the same chunk; no change.
	case delta == 1 && st.direction == DirectionForward:
		st.streak++
	case delta == -1 && st.direction == DirectionBackward:
		st.streak++
	case delta == 1:
		st.direction = DirectionForward
		st.streak = 1
		st.accesses = 1
	case delta == -1:
		st.direction = DirectionBackward
		st.streak = 1
		st.accesses = 1
	default:
		st.direction = DirectionRandom
		st.streak = 0
		st.accesses = 0
	}

	if st.streak < g.threshold || st.direction == DirectionRandom {
		g.mu.Unlock()
		return nil
	}
	dir := st.direction
	index := st.lastIndex
	window := g.window
	g.mu.Unlock()

	targets := make([]core.ChunkID, 0, window)
	for i := uint64(1); i <= window; i++ {
		var next uint64
		if dir == DirectionForward {
			next = index + i
		} else {
			// Backward prefetch never underflows index 0.
			if index < i {
				break
			}
			next = index - i
		}
		id := core.NewChunkID(chunk.Inode, next)
		if isCached != nil && isCached(id) {
			continue
		}
		targets = append(targets, id)
	}
	return targets
}

// State returns the tracked direction and streak for an inode, for
// introspection and tests.
func (g *Governor) State(inode core.Inode) (Direction, uint32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.states.LookUpWithoutChangingOrder(stateKey(inode))
	if v == nil {
		return DirectionRandom, 0, false
	}
	st := v.(*fileState)
	return st.direction, st.streak, true
}

// Forget clears the state for an inode, called when the file is released.
func (g *Governor) Forget(inode core.Inode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states.Erase(stateKey(inode))
}

// TrackedFiles returns how many files currently have state.
func (g *Governor) TrackedFiles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states.EntryCount()
}
