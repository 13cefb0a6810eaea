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

// Package core holds the data model shared by the client and host sides:
// inodes, chunks, file attributes, manifests, and path safety.
package core

import (
	"fmt"
	"time"
)

// Inode is an opaque file or directory handle. Inode 1 is the root of a
// share; values below UserInodeStart are reserved.
type Inode uint64

const (
	// RootInode is the root directory of every share, and the virtual root
	// of a multi-share mount.
	RootInode Inode = 1

	// UserInodeStart is the first inode handed out to regular entries.
	UserInodeStart Inode = 1 << 16

	// MaxLocalInode is the largest inode a share may allocate. The upper 16
	// bits of a packed inode carry the share index.
	MaxLocalInode Inode = 1<<48 - 1
)

// ChunkSize is the transfer and caching unit on the interactive path.
const ChunkSize = 128 * 1024

// BulkChunkSize is the chunk size used by bulk transfer.
const BulkChunkSize = 4 * 1024 * 1024

// ChunkID identifies one fixed-size slice of a file.
type ChunkID struct {
	Inode Inode
	Index uint64
}

func NewChunkID(inode Inode, index uint64) ChunkID {
	return ChunkID{Inode: inode, Index: index}
}

func (c ChunkID) String() string {
	return fmt.Sprintf("%d:%d", c.Inode, c.Index)
}

// ChunkIndex returns the index of the chunk containing offset.
func ChunkIndex(offset uint64, chunkSize uint64) uint64 {
	return offset / chunkSize
}

// OffsetInChunk returns the position of offset inside its chunk.
func OffsetInChunk(offset uint64, chunkSize uint64) uint64 {
	return offset % chunkSize
}

// Kind distinguishes the entry types Wormhole serves.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Timestamp is a monotone-epoch wall time. Negative source times clamp to
// zero; nanoseconds are clamped to [0, 1e9).
type Timestamp struct {
	Seconds uint64 `cbor:"1,keyasint"`
	Nanos   uint32 `cbor:"2,keyasint"`
}

// TimestampFromTime converts t, clamping out-of-range components.
func TimestampFromTime(t time.Time) Timestamp {
	sec := t.Unix()
	if sec < 0 {
		return Timestamp{}
	}
	ns := t.Nanosecond()
	if ns < 0 {
		ns = 0
	} else if ns >= 1e9 {
		ns = 1e9 - 1
	}
	return Timestamp{Seconds: uint64(sec), Nanos: uint32(ns)}
}

// Time converts back to a time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts.Seconds), int64(ts.Nanos))
}

// FileAttr describes one inode.
type FileAttr struct {
	Inode Inode     `cbor:"1,keyasint"`
	Kind  Kind      `cbor:"2,keyasint"`
	Size  uint64    `cbor:"3,keyasint"`
	Mode  uint32    `cbor:"4,keyasint"`
	Nlink uint32    `cbor:"5,keyasint"`
	Uid   uint32    `cbor:"6,keyasint"`
	Gid   uint32    `cbor:"7,keyasint"`
	Atime Timestamp `cbor:"8,keyasint"`
	Mtime Timestamp `cbor:"9,keyasint"`
	Ctime Timestamp `cbor:"10,keyasint"`
}

// DirEntry is one name inside a directory listing.
type DirEntry struct {
	Name  string `cbor:"1,keyasint"`
	Inode Inode  `cbor:"2,keyasint"`
	Kind  Kind   `cbor:"3,keyasint"`
}

// ShareID identifies one published share.
type ShareID [16]byte

var ZeroShareID ShareID

func (s ShareID) String() string {
	return fmt.Sprintf("%x", s[:])
}

// Share is one published root directory with its own inode space.
type Share struct {
	ID       ShareID
	Name     string
	Root     string
	Writable bool
}
