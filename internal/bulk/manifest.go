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

// Package bulk moves whole files efficiently: manifest the source in
// large chunks, skip what the dedup index already knows, compress what
// is worth compressing, and push the rest across the stream pool.
package bulk

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/wormholefs/wormhole/internal/core"
)

// BuildManifest streams the file at path and hashes it in chunkSize
// pieces. The resulting chunk list tiles the file contiguously.
func BuildManifest(path string, inode core.Inode, chunkSize int) (*core.FileManifest, error) {
	if chunkSize <= 0 {
		chunkSize = core.BulkChunkSize
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	m := &core.FileManifest{Inode: inode}
	whole := sha256.New()
	buf := make([]byte, chunkSize)
	var offset uint64

	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			m.Chunks = append(m.Chunks, core.ContentChunk{
				Hash:   core.HashBytes(buf[:n]),
				Offset: offset,
				Size:   uint64(n),
			})
			whole.Write(buf[:n])
			offset += uint64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	m.TotalSize = offset
	var fileHash core.ContentHash
	copy(fileHash[:], whole.Sum(nil))
	m.FileHash = &fileHash
	return m, nil
}

// ManifestHashes extracts the ordered chunk hashes.
func ManifestHashes(m *core.FileManifest) []core.ContentHash {
	hashes := make([]core.ContentHash, len(m.Chunks))
	for i, c := range m.Chunks {
		hashes[i] = c.Hash
	}
	return hashes
}
