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

package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ContentHash is the 256-bit digest of a chunk's bytes. It keys the dedup
// index.
type ContentHash [sha256.Size]byte

// HashBytes computes the content hash of data.
func HashBytes(data []byte) ContentHash {
	return sha256.Sum256(data)
}

func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

// ContentChunk locates one hashed slice of a file.
type ContentChunk struct {
	Hash   ContentHash `cbor:"1,keyasint"`
	Offset uint64      `cbor:"2,keyasint"`
	Size   uint64      `cbor:"3,keyasint"`
}

// FileManifest is the ordered chunk list describing a file's contents.
// Chunks are contiguous and tile [0, TotalSize).
type FileManifest struct {
	Inode     Inode          `cbor:"1,keyasint"`
	TotalSize uint64         `cbor:"2,keyasint"`
	Chunks    []ContentChunk `cbor:"3,keyasint"`
	FileHash  *ContentHash   `cbor:"4,keyasint,omitempty"`
}

// Validate checks the tiling invariant: chunks cover [0, TotalSize)
// contiguously without overlap.
func (m *FileManifest) Validate() error {
	var next uint64
	for i, c := range m.Chunks {
		if c.Offset != next {
			return fmt.Errorf("manifest chunk %d starts at %d, want %d", i, c.Offset, next)
		}
		if c.Size == 0 {
			return fmt.Errorf("manifest chunk %d is empty", i)
		}
		next = c.Offset + c.Size
	}
	if next != m.TotalSize {
		return fmt.Errorf("manifest covers %d bytes, total size is %d", next, m.TotalSize)
	}
	return nil
}
