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

package bulk

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/core"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestBuildManifestTilesFile(t *testing.T) {
	const chunkSize = 1024
	data := bytes.Repeat([]byte("wormhole"), 500) // 4000 bytes: 3 full + 1 short chunk
	path := writeTempFile(t, data)

	m, err := BuildManifest(path, 10, chunkSize)
	require.NoError(t, err)

	assert.Equal(t, core.Inode(10), m.Inode)
	assert.Equal(t, uint64(4000), m.TotalSize)
	require.Len(t, m.Chunks, 4)
	assert.Equal(t, uint64(928), m.Chunks[3].Size)
	require.NoError(t, m.Validate())

	// Chunk hashes match the actual bytes.
	assert.Equal(t, core.HashBytes(data[:chunkSize]), m.Chunks[0].Hash)
	assert.Equal(t, core.HashBytes(data[3*chunkSize:]), m.Chunks[3].Hash)
}

func TestBuildManifestIdenticalChunksShareHash(t *testing.T) {
	const chunkSize = 256
	data := bytes.Repeat([]byte{0xaa}, 3*chunkSize)
	path := writeTempFile(t, data)

	m, err := BuildManifest(path, 1, chunkSize)
	require.NoError(t, err)

	require.Len(t, m.Chunks, 3)
	assert.Equal(t, m.Chunks[0].Hash, m.Chunks[1].Hash)
	assert.Equal(t, m.Chunks[1].Hash, m.Chunks[2].Hash)
}

func TestBuildManifestEmptyFile(t *testing.T) {
	path := writeTempFile(t, nil)

	m, err := BuildManifest(path, 1, 1024)
	require.NoError(t, err)

	assert.Zero(t, m.TotalSize)
	assert.Empty(t, m.Chunks)
	require.NoError(t, m.Validate())
}

func TestBuildManifestMissingFile(t *testing.T) {
	_, err := BuildManifest(filepath.Join(t.TempDir(), "absent"), 1, 1024)
	assert.Error(t, err)
}

func TestManifestHashes(t *testing.T) {
	path := writeTempFile(t, bytes.Repeat([]byte{1}, 2048))
	m, err := BuildManifest(path, 1, 1024)
	require.NoError(t, err)

	hashes := ManifestHashes(m)
	require.Len(t, hashes, 2)
	assert.Equal(t, m.Chunks[0].Hash, hashes[0])
}

func TestProgressAccounting(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	p := NewProgress(clk, 1000, 4)

	p.RecordChunk(250, 100) // compressed to 100
	p.RecordChunk(250, 250) // sent raw
	p.RecordDedup(250)      // skipped
	p.RecordError()

	s := p.Snapshot()
	assert.Equal(t, uint64(750), s.BytesDone)
	assert.Equal(t, uint64(3), s.ChunksDone)
	assert.Equal(t, uint64(250), s.DedupSaved)
	assert.Equal(t, uint64(150), s.CompressSaved)
	assert.Equal(t, uint64(1), s.NonFatalErrors)
	assert.InDelta(t, 75.0, p.Percent(), 0.01)
}

func TestProgressSpeedAndETA(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	p := NewProgress(clk, 1000, 4)

	clk.AdvanceTime(2 * time.Second)
	p.RecordChunk(500, 500)

	assert.InDelta(t, 250.0, p.Speed(), 0.01)
	assert.Equal(t, 2*time.Second, p.ETA())
}

func TestProgressEmptyTransfer(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	p := NewProgress(clk, 0, 0)

	assert.Equal(t, 100.0, p.Percent())
	assert.Zero(t, p.ETA())
}
