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

package disk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/core"
)

func newTestCache(t *testing.T, clk clock.Clock) *Cache {
	t.Helper()
	if clk == nil {
		clk = clock.RealClock{}
	}
	c, err := New(t.TempDir(), 1<<20, clk)
	require.NoError(t, err)
	return c
}

func TestPutAndGet(t *testing.T) {
	c := newTestCache(t, nil)
	id := core.NewChunkID(10, 2)
	data := []byte("persisted chunk bytes")

	require.NoError(t, c.Put(id, data))

	got, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), c.TotalBytes())
	assert.Equal(t, 1, c.EntryCount())
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t, nil)

	_, ok := c.Get(core.NewChunkID(1, 1))
	assert.False(t, ok)
}

func TestChunkPathLayout(t *testing.T) {
	c := newTestCache(t, nil)
	id := core.NewChunkID(42, 7)
	require.NoError(t, c.Put(id, []byte("x")))

	path := c.chunkPath(id)
	rel, err := filepath.Rel(c.root, path)
	require.NoError(t, err)

	parts := strings.Split(rel, string(filepath.Separator))
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 2)
	assert.Len(t, parts[1], 2)
	assert.Len(t, parts[2], 60)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestPutOverwriteRebalances(t *testing.T) {
	c := newTestCache(t, nil)
	id := core.NewChunkID(1, 0)

	require.NoError(t, c.Put(id, make([]byte, 100)))
	require.NoError(t, c.Put(id, make([]byte, 40)))

	assert.Equal(t, int64(40), c.TotalBytes())
	assert.Equal(t, 1, c.EntryCount())
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	c := newTestCache(t, nil)
	require.NoError(t, c.Put(core.NewChunkID(1, 0), []byte("abc")))

	var tmps []string
	err := filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err == nil && strings.HasSuffix(path, tmpSuffix) {
			tmps = append(tmps, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, tmps)
}

func TestRemove(t *testing.T) {
	c := newTestCache(t, nil)
	id := core.NewChunkID(1, 0)
	require.NoError(t, c.Put(id, []byte("abc")))

	c.Remove(id)

	assert.False(t, c.Contains(id))
	assert.Zero(t, c.TotalBytes())
	_, err := os.Stat(c.chunkPath(id))
	assert.True(t, os.IsNotExist(err))
}

func TestClear(t *testing.T) {
	c := newTestCache(t, nil)
	require.NoError(t, c.Put(core.NewChunkID(1, 0), []byte("abc")))
	require.NoError(t, c.Put(core.NewChunkID(2, 0), []byte("def")))

	require.NoError(t, c.Clear())

	assert.Zero(t, c.TotalBytes())
	assert.Zero(t, c.EntryCount())
}

func TestEvictOldestByAccessTime(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	c := newTestCache(t, clk)

	old := core.NewChunkID(1, 0)
	mid := core.NewChunkID(1, 1)
	fresh := core.NewChunkID(1, 2)

	require.NoError(t, c.Put(old, make([]byte, 100)))
	clk.AdvanceTime(time.Minute)
	require.NoError(t, c.Put(mid, make([]byte, 100)))
	clk.AdvanceTime(time.Minute)
	require.NoError(t, c.Put(fresh, make([]byte, 100)))

	freed := c.EvictOldest(150)

	assert.Equal(t, int64(200), freed)
	assert.False(t, c.Contains(old))
	assert.False(t, c.Contains(mid))
	assert.True(t, c.Contains(fresh))
	assert.Equal(t, int64(100), c.TotalBytes())
}

func TestGetRefreshesAccessTime(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	c := newTestCache(t, clk)

	a := core.NewChunkID(1, 0)
	b := core.NewChunkID(1, 1)
	require.NoError(t, c.Put(a, make([]byte, 100)))
	clk.AdvanceTime(time.Minute)
	require.NoError(t, c.Put(b, make([]byte, 100)))
	clk.AdvanceTime(time.Minute)

	// Touch a; b becomes the eviction victim.
	_, ok := c.Get(a)
	require.True(t, ok)

	c.EvictOldest(100)

	assert.True(t, c.Contains(a))
	assert.False(t, c.Contains(b))
}

func TestStartupScanCountsBytesButDoesNotIndex(t *testing.T) {
	dir := t.TempDir()
	c1, err := New(dir, 1<<20, clock.RealClock{})
	require.NoError(t, err)
	id := core.NewChunkID(9, 9)
	require.NoError(t, c1.Put(id, make([]byte, 123)))

	c2, err := New(dir, 1<<20, clock.RealClock{})
	require.NoError(t, err)

	assert.Equal(t, int64(123), c2.TotalBytes())
	assert.Zero(t, c2.EntryCount())
	_, ok := c2.Get(id)
	assert.False(t, ok)
}

func TestRemoveOrphans(t *testing.T) {
	dir := t.TempDir()
	c1, err := New(dir, 1<<20, clock.RealClock{})
	require.NoError(t, err)
	require.NoError(t, c1.Put(core.NewChunkID(9, 9), make([]byte, 123)))

	// Re-open: the file survives as an orphan.
	c2, err := New(dir, 1<<20, clock.RealClock{})
	require.NoError(t, err)
	require.NoError(t, c2.Put(core.NewChunkID(3, 3), make([]byte, 50)))

	c2.RemoveOrphans()

	assert.Equal(t, int64(50), c2.TotalBytes())
	assert.True(t, c2.Contains(core.NewChunkID(3, 3)))
}
