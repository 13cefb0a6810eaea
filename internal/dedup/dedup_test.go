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

package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wormholefs/wormhole/internal/core"
)

func hashOf(s string) core.ContentHash {
	return core.HashBytes([]byte(s))
}

func TestInsertAndLookup(t *testing.T) {
	x := New(10)
	h := hashOf("chunk-a")
	loc := ChunkLocation{Path: "/data/a", Offset: 128, Size: 64}

	x.Insert(h, loc)

	got, ok := x.Lookup(h)
	require.True(t, ok)
	assert.Equal(t, loc, got)

	s := x.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Insertions)
}

func TestLookupMiss(t *testing.T) {
	x := New(10)

	_, ok := x.Lookup(hashOf("absent"))

	assert.False(t, ok)
	assert.Equal(t, uint64(1), x.Stats().Misses)
}

func TestContainsDoesNotCountOrPromote(t *testing.T) {
	x := New(2)
	a := hashOf("a")
	b := hashOf("b")
	x.Insert(a, ChunkLocation{Path: "a"})
	x.Insert(b, ChunkLocation{Path: "b"})

	// Contains must not promote a...
	assert.True(t, x.Contains(a))
	assert.Zero(t, x.Stats().Hits)

	// ...so the next insert evicts it.
	x.Insert(hashOf("c"), ChunkLocation{Path: "c"})
	assert.False(t, x.Contains(a))
	assert.True(t, x.Contains(b))
}

func TestLookupPromotes(t *testing.T) {
	x := New(2)
	a := hashOf("a")
	b := hashOf("b")
	x.Insert(a, ChunkLocation{Path: "a"})
	x.Insert(b, ChunkLocation{Path: "b"})

	_, ok := x.Lookup(a)
	require.True(t, ok)

	x.Insert(hashOf("c"), ChunkLocation{Path: "c"})

	assert.True(t, x.Contains(a))
	assert.False(t, x.Contains(b))
	assert.Equal(t, uint64(1), x.Stats().Evictions)
}

func TestFindMissing(t *testing.T) {
	x := New(10)
	known := hashOf("present")
	x.Insert(known, ChunkLocation{Path: "p"})

	missing := x.FindMissing([]core.ContentHash{known, hashOf("m1"), hashOf("m2")})

	assert.Equal(t, []core.ContentHash{hashOf("m1"), hashOf("m2")}, missing)
}

func TestFindMissingAllPresent(t *testing.T) {
	x := New(10)
	a := hashOf("a")
	b := hashOf("b")
	x.Insert(a, ChunkLocation{})
	x.Insert(b, ChunkLocation{})

	assert.Empty(t, x.FindMissing([]core.ContentHash{a, b}))
}

func TestBytesSaved(t *testing.T) {
	x := New(10)
	x.RecordBytesSaved(1024)
	x.RecordBytesSaved(512)

	assert.Equal(t, uint64(1536), x.Stats().BytesSaved)
}

func TestBoundedByMaxEntries(t *testing.T) {
	x := New(100)
	for i := 0; i < 250; i++ {
		x.Insert(hashOf(fmt.Sprintf("chunk-%d", i)), ChunkLocation{})
	}

	assert.Equal(t, 100, x.Len())
	assert.Equal(t, uint64(150), x.Stats().Evictions)
}

func TestHitRate(t *testing.T) {
	assert.Zero(t, Stats{}.HitRate())
	assert.InDelta(t, 75.0, Stats{Hits: 3, Misses: 1}.HitRate(), 0.001)
}

func TestClearKeepsCounters(t *testing.T) {
	x := New(10)
	x.Insert(hashOf("a"), ChunkLocation{})
	_, _ = x.Lookup(hashOf("a"))

	x.Clear()

	assert.Zero(t, x.Len())
	assert.Equal(t, uint64(1), x.Stats().Hits)
}
