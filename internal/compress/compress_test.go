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

package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompressor(t *testing.T) *Compressor {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	return c
}

func compressible(n int) []byte {
	return bytes.Repeat([]byte("wormhole "), n/9+1)[:n]
}

func random(n int) []byte {
	r := rand.New(rand.NewSource(42))
	data := make([]byte, n)
	r.Read(data)
	return data
}

func TestShouldCompress_SizeFloor(t *testing.T) {
	c := newCompressor(t)

	assert.False(t, c.ShouldCompress("small.txt", compressible(MinSize-1)))
	assert.True(t, c.ShouldCompress("big.txt", compressible(MinSize)))
}

func TestShouldCompress_SkippedExtensions(t *testing.T) {
	c := newCompressor(t)
	data := compressible(8 * 1024)

	for _, name := range []string{"movie.mp4", "archive.ZIP", "photo.jpeg", "track.flac", "doc.pdf", "image.iso"} {
		assert.False(t, c.ShouldCompress(name, data), name)
	}
	for _, name := range []string{"notes.txt", "data.csv", "core.go", "noextension"} {
		assert.True(t, c.ShouldCompress(name, data), name)
	}
}

func TestShouldCompress_HighEntropySkipped(t *testing.T) {
	c := newCompressor(t)

	assert.False(t, c.ShouldCompress("blob.bin", random(8*1024)))
}

func TestShannonEntropy(t *testing.T) {
	assert.Zero(t, ShannonEntropy(nil))
	assert.Zero(t, ShannonEntropy(bytes.Repeat([]byte{7}, 1000)))

	// A uniform two-symbol alphabet carries one bit per byte.
	half := append(bytes.Repeat([]byte{0}, 500), bytes.Repeat([]byte{1}, 500)...)
	assert.InDelta(t, 1.0, ShannonEntropy(half), 0.001)

	assert.Greater(t, ShannonEntropy(random(4096)), 7.5)
}

func TestCompressRoundTrip(t *testing.T) {
	c := newCompressor(t)
	data := compressible(64 * 1024)

	packed, err := c.Compress(data)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(data))

	unpacked, err := c.Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, data, unpacked)
}

func TestCompressNotWorthIt(t *testing.T) {
	c := newCompressor(t)

	_, err := c.Compress(random(4096))
	assert.ErrorIs(t, err, ErrNotWorthIt)
}

func TestDecompressGarbageFails(t *testing.T) {
	c := newCompressor(t)

	_, err := c.Decompress([]byte("definitely not zstd"))
	assert.Error(t, err)
}
