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

package ram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wormholefs/wormhole/internal/core"
)

func TestInsertAndGet(t *testing.T) {
	c := NewCache(1024)
	id := core.NewChunkID(10, 0)
	data := []byte("hello chunk")

	c.Insert(id, data)

	got, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, data, got)
}

func TestGetMissing(t *testing.T) {
	c := NewCache(1024)

	_, ok := c.Get(core.NewChunkID(1, 2))
	assert.False(t, ok)
}

func TestByteCounterMatchesEntries(t *testing.T) {
	c := NewCache(1024)

	c.Insert(core.NewChunkID(1, 0), make([]byte, 100))
	c.Insert(core.NewChunkID(1, 1), make([]byte, 200))
	c.Insert(core.NewChunkID(2, 0), make([]byte, 300))

	assert.Equal(t, uint64(600), c.CurrentBytes())
	assert.Equal(t, 3, c.EntryCount())
}

func TestReinsertRebalancesBytes(t *testing.T) {
	c := NewCache(1024)
	id := core.NewChunkID(1, 0)

	c.Insert(id, make([]byte, 100))
	c.Insert(id, make([]byte, 50))

	assert.Equal(t, uint64(50), c.CurrentBytes())
	assert.Equal(t, 1, c.EntryCount())
}

func TestEvictsLRUWhenOverBudget(t *testing.T) {
	c := NewCache(300)
	a := core.NewChunkID(1, 0)
	b := core.NewChunkID(1, 1)
	d := core.NewChunkID(1, 2)

	c.Insert(a, make([]byte, 100))
	c.Insert(b, make([]byte, 100))
	c.Insert(d, make([]byte, 100))

	// Touch a so b is least recent.
	_, ok := c.Get(a)
	require.True(t, ok)

	c.Insert(core.NewChunkID(2, 0), make([]byte, 150))

	assert.False(t, c.Contains(b))
	assert.False(t, c.Contains(d))
	assert.True(t, c.Contains(a))
	assert.LessOrEqual(t, c.CurrentBytes(), uint64(300))
}

func TestPeekAndContainsDoNotPromote(t *testing.T) {
	c := NewCache(200)
	a := core.NewChunkID(1, 0)
	b := core.NewChunkID(1, 1)

	c.Insert(a, make([]byte, 100))
	c.Insert(b, make([]byte, 100))

	// Peek at a; it must stay least recent.
	_, ok := c.Peek(a)
	require.True(t, ok)
	assert.True(t, c.Contains(a))

	c.Insert(core.NewChunkID(2, 0), make([]byte, 100))

	assert.False(t, c.Contains(a))
	assert.True(t, c.Contains(b))
}

func TestInvalidateChunk(t *testing.T) {
	c := NewCache(1024)
	id := core.NewChunkID(10, 3)
	c.Insert(id, make([]byte, 10))

	c.Invalidate(id)

	assert.False(t, c.Contains(id))
	assert.Zero(t, c.CurrentBytes())
}

func TestInvalidateInode(t *testing.T) {
	c := NewCache(1024)
	c.Insert(core.NewChunkID(10, 0), make([]byte, 10))
	c.Insert(core.NewChunkID(10, 1), make([]byte, 10))
	c.Insert(core.NewChunkID(101, 0), make([]byte, 10))
	c.Insert(core.NewChunkID(11, 0), make([]byte, 10))

	c.InvalidateInode(10)

	assert.False(t, c.Contains(core.NewChunkID(10, 0)))
	assert.False(t, c.Contains(core.NewChunkID(10, 1)))
	assert.True(t, c.Contains(core.NewChunkID(101, 0)), "inode 101 must not match inode 10's prefix")
	assert.True(t, c.Contains(core.NewChunkID(11, 0)))
	assert.Equal(t, uint64(20), c.CurrentBytes())
}

func TestClear(t *testing.T) {
	c := NewCache(1024)
	c.Insert(core.NewChunkID(1, 0), make([]byte, 10))
	c.Insert(core.NewChunkID(2, 0), make([]byte, 10))

	c.Clear()

	assert.Zero(t, c.CurrentBytes())
	assert.Zero(t, c.EntryCount())
}
