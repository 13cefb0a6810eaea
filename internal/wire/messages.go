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

// Package wire defines the framed message protocol spoken between client
// and host: a 4-byte little-endian length, a one-byte message kind, and a
// CBOR body.
package wire

import "github.com/wormholefs/wormhole/internal/core"

// ProtocolVersion is bumped on any incompatible wire change. A version
// mismatch in the handshake closes the connection.
const ProtocolVersion uint32 = 1

// Kind tags a message on the wire.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindHello
	KindHelloAck
	KindError
	KindPing
	KindPong
	KindListShares
	KindListSharesResponse
	KindLookup
	KindLookupResponse
	KindGetAttr
	KindGetAttrResponse
	KindSetAttr
	KindSetAttrResponse
	KindListDir
	KindListDirResponse
	KindReadChunk
	KindReadChunkResponse
	KindWriteChunk
	KindWriteChunkResponse
	KindCreateFile
	KindCreateFileResponse
	KindCreateDir
	KindCreateDirResponse
	KindRemove
	KindRemoveResponse
	KindRename
	KindRenameResponse
	KindAcquireLock
	KindAcquireLockResponse
	KindReleaseLock
	KindReleaseLockResponse
	KindRenewLock
	KindRenewLockResponse
)

// ErrorCode classifies a wire Error.
type ErrorCode uint8

const (
	CodeUnknown ErrorCode = iota
	CodeFileNotFound
	CodeNotADirectory
	CodePathTraversal
	CodePermissionDenied
	CodeIoError
	CodeLockRequired
	CodeLockConflict
	CodeChecksumMismatch
	CodeNotImplemented
	CodeProtocolError
	CodeReadOnly
	CodeSessionExpired
)

func (c ErrorCode) String() string {
	switch c {
	case CodeFileNotFound:
		return "FileNotFound"
	case CodeNotADirectory:
		return "NotADirectory"
	case CodePathTraversal:
		return "PathTraversal"
	case CodePermissionDenied:
		return "PermissionDenied"
	case CodeIoError:
		return "IoError"
	case CodeLockRequired:
		return "LockRequired"
	case CodeLockConflict:
		return "LockConflict"
	case CodeChecksumMismatch:
		return "ChecksumMismatch"
	case CodeNotImplemented:
		return "NotImplemented"
	case CodeProtocolError:
		return "ProtocolError"
	case CodeReadOnly:
		return "ReadOnly"
	case CodeSessionExpired:
		return "SessionExpired"
	default:
		return "Unknown"
	}
}

// Message is any value that travels inside a frame.
type Message interface {
	Kind() Kind
}

// Capability strings advertised in the handshake.
const (
	CapRead       = "read"
	CapWrite      = "write"
	CapLock       = "lock"
	CapMultiShare = "multi-share"
)

type Hello struct {
	ProtocolVersion uint32   `cbor:"1,keyasint"`
	ClientID        [16]byte `cbor:"2,keyasint"`
	Capabilities    []string `cbor:"3,keyasint"`
}

type HelloAck struct {
	ProtocolVersion uint32     `cbor:"1,keyasint"`
	SessionID       [16]byte   `cbor:"2,keyasint"`
	RootInode       core.Inode `cbor:"3,keyasint"`
	HostName        string     `cbor:"4,keyasint"`
	Capabilities    []string   `cbor:"5,keyasint"`
}

type Error struct {
	Code    ErrorCode  `cbor:"1,keyasint"`
	Message string     `cbor:"2,keyasint"`
	Inode   core.Inode `cbor:"3,keyasint,omitempty"`
}

type Ping struct {
	Payload []byte `cbor:"1,keyasint"`
}

type Pong struct {
	Payload []byte `cbor:"1,keyasint"`
}

type ShareInfo struct {
	ID       core.ShareID `cbor:"1,keyasint"`
	Name     string       `cbor:"2,keyasint"`
	Writable bool         `cbor:"3,keyasint"`
}

type ListShares struct{}

type ListSharesResponse struct {
	Shares []ShareInfo `cbor:"1,keyasint"`
}

type Lookup struct {
	Share  core.ShareID `cbor:"1,keyasint"`
	Parent core.Inode   `cbor:"2,keyasint"`
	Name   string       `cbor:"3,keyasint"`
}

type LookupResponse struct {
	Attr core.FileAttr `cbor:"1,keyasint"`
}

type GetAttr struct {
	Share core.ShareID `cbor:"1,keyasint"`
	Inode core.Inode   `cbor:"2,keyasint"`
}

type GetAttrResponse struct {
	Attr core.FileAttr `cbor:"1,keyasint"`
}

// SetAttr forwards only the whitelisted attributes; nil fields are left
// untouched.
type SetAttr struct {
	Share core.ShareID    `cbor:"1,keyasint"`
	Inode core.Inode      `cbor:"2,keyasint"`
	Size  *uint64         `cbor:"3,keyasint,omitempty"`
	Mode  *uint32         `cbor:"4,keyasint,omitempty"`
	Atime *core.Timestamp `cbor:"5,keyasint,omitempty"`
	Mtime *core.Timestamp `cbor:"6,keyasint,omitempty"`
}

type SetAttrResponse struct {
	Attr core.FileAttr `cbor:"1,keyasint"`
}

type ListDir struct {
	Share  core.ShareID `cbor:"1,keyasint"`
	Inode  core.Inode   `cbor:"2,keyasint"`
	Offset uint32       `cbor:"3,keyasint"`
	Limit  uint32       `cbor:"4,keyasint"`
}

type ListDirResponse struct {
	Entries    []core.DirEntry `cbor:"1,keyasint"`
	NextOffset uint32          `cbor:"2,keyasint"`
	HasMore    bool            `cbor:"3,keyasint"`
}

type ReadChunk struct {
	Share      core.ShareID `cbor:"1,keyasint"`
	Inode      core.Inode   `cbor:"2,keyasint"`
	ChunkIndex uint64       `cbor:"3,keyasint"`
}

type ReadChunkResponse struct {
	Data     []byte `cbor:"1,keyasint"`
	Checksum uint32 `cbor:"2,keyasint"`
}

// WriteChunk stores Data at ChunkIndex times the fixed interactive
// chunk size. Bulk transfer sends larger payloads but always derives
// ChunkIndex from that same unit. The checksum covers Data as
// transmitted; with Compressed set, the host decompresses after
// verifying it.
type WriteChunk struct {
	Share      core.ShareID `cbor:"1,keyasint"`
	Inode      core.Inode   `cbor:"2,keyasint"`
	ChunkIndex uint64       `cbor:"3,keyasint"`
	Data       []byte       `cbor:"4,keyasint"`
	Checksum   uint32       `cbor:"5,keyasint"`
	LockToken  [16]byte     `cbor:"6,keyasint"`
	Compressed bool         `cbor:"7,keyasint,omitempty"`
}

type WriteChunkResponse struct {
	BytesWritten uint32 `cbor:"1,keyasint"`
}

type CreateFile struct {
	Share  core.ShareID `cbor:"1,keyasint"`
	Parent core.Inode   `cbor:"2,keyasint"`
	Name   string       `cbor:"3,keyasint"`
	Mode   uint32       `cbor:"4,keyasint"`
}

type CreateFileResponse struct {
	Attr core.FileAttr `cbor:"1,keyasint"`
}

type CreateDir struct {
	Share  core.ShareID `cbor:"1,keyasint"`
	Parent core.Inode   `cbor:"2,keyasint"`
	Name   string       `cbor:"3,keyasint"`
	Mode   uint32       `cbor:"4,keyasint"`
}

type CreateDirResponse struct {
	Attr core.FileAttr `cbor:"1,keyasint"`
}

// Remove unlinks a file or removes an empty directory.
type Remove struct {
	Share  core.ShareID `cbor:"1,keyasint"`
	Parent core.Inode   `cbor:"2,keyasint"`
	Name   string       `cbor:"3,keyasint"`
	Dir    bool         `cbor:"4,keyasint"`
}

type RemoveResponse struct{}

type Rename struct {
	Share     core.ShareID `cbor:"1,keyasint"`
	OldParent core.Inode   `cbor:"2,keyasint"`
	OldName   string       `cbor:"3,keyasint"`
	NewParent core.Inode   `cbor:"4,keyasint"`
	NewName   string       `cbor:"5,keyasint"`
}

type RenameResponse struct{}

type AcquireLock struct {
	Share     core.ShareID `cbor:"1,keyasint"`
	Inode     core.Inode   `cbor:"2,keyasint"`
	Exclusive bool         `cbor:"3,keyasint"`
	TTLMillis uint64       `cbor:"4,keyasint"`
}

type AcquireLockResponse struct {
	Granted          bool     `cbor:"1,keyasint"`
	Token            [16]byte `cbor:"2,keyasint"`
	ExpiresAtMillis  uint64   `cbor:"3,keyasint"`
	RetryAfterMillis uint64   `cbor:"4,keyasint"`
	HolderExclusive  bool     `cbor:"5,keyasint"`
}

type ReleaseLock struct {
	Token [16]byte `cbor:"1,keyasint"`
}

type ReleaseLockResponse struct{}

type RenewLock struct {
	Token     [16]byte `cbor:"1,keyasint"`
	TTLMillis uint64   `cbor:"2,keyasint"`
}

type RenewLockResponse struct {
	ExpiresAtMillis uint64 `cbor:"1,keyasint"`
}

func (*Hello) Kind() Kind               { return KindHello }
func (*HelloAck) Kind() Kind            { return KindHelloAck }
func (*Error) Kind() Kind               { return KindError }
func (*Ping) Kind() Kind                { return KindPing }
func (*Pong) Kind() Kind                { return KindPong }
func (*ListShares) Kind() Kind          { return KindListShares }
func (*ListSharesResponse) Kind() Kind  { return KindListSharesResponse }
func (*Lookup) Kind() Kind              { return KindLookup }
func (*LookupResponse) Kind() Kind      { return KindLookupResponse }
func (*GetAttr) Kind() Kind             { return KindGetAttr }
func (*GetAttrResponse) Kind() Kind     { return KindGetAttrResponse }
func (*SetAttr) Kind() Kind             { return KindSetAttr }
func (*SetAttrResponse) Kind() Kind     { return KindSetAttrResponse }
func (*ListDir) Kind() Kind             { return KindListDir }
func (*ListDirResponse) Kind() Kind     { return KindListDirResponse }
func (*ReadChunk) Kind() Kind           { return KindReadChunk }
func (*ReadChunkResponse) Kind() Kind   { return KindReadChunkResponse }
func (*WriteChunk) Kind() Kind          { return KindWriteChunk }
func (*WriteChunkResponse) Kind() Kind  { return KindWriteChunkResponse }
func (*CreateFile) Kind() Kind          { return KindCreateFile }
func (*CreateFileResponse) Kind() Kind  { return KindCreateFileResponse }
func (*CreateDir) Kind() Kind           { return KindCreateDir }
func (*CreateDirResponse) Kind() Kind   { return KindCreateDirResponse }
func (*Remove) Kind() Kind              { return KindRemove }
func (*RemoveResponse) Kind() Kind      { return KindRemoveResponse }
func (*Rename) Kind() Kind              { return KindRename }
func (*RenameResponse) Kind() Kind      { return KindRenameResponse }
func (*AcquireLock) Kind() Kind         { return KindAcquireLock }
func (*AcquireLockResponse) Kind() Kind { return KindAcquireLockResponse }
func (*ReleaseLock) Kind() Kind         { return KindReleaseLock }
func (*ReleaseLockResponse) Kind() Kind { return KindReleaseLockResponse }
func (*RenewLock) Kind() Kind           { return KindRenewLock }
func (*RenewLockResponse) Kind() Kind   { return KindRenewLockResponse }

// newMessage allocates the struct for a wire kind.
func newMessage(k Kind) Message {
	switch k {
	case KindHello:
		return &Hello{}
	case KindHelloAck:
		return &HelloAck{}
	case KindError:
		return &Error{}
	case KindPing:
		return &Ping{}
	case KindPong:
		return &Pong{}
	case KindListShares:
		return &ListShares{}
	case KindListSharesResponse:
		return &ListSharesResponse{}
	case KindLookup:
		return &Lookup{}
	case KindLookupResponse:
		return &LookupResponse{}
	case KindGetAttr:
		return &GetAttr{}
	case KindGetAttrResponse:
		return &GetAttrResponse{}
	case KindSetAttr:
		return &SetAttr{}
	case KindSetAttrResponse:
		return &SetAttrResponse{}
	case KindListDir:
		return &ListDir{}
	case KindListDirResponse:
		return &ListDirResponse{}
	case KindReadChunk:
		return &ReadChunk{}
	case KindReadChunkResponse:
		return &ReadChunkResponse{}
	case KindWriteChunk:
		return &WriteChunk{}
	case KindWriteChunkResponse:
		return &WriteChunkResponse{}
	case KindCreateFile:
		return &CreateFile{}
	case KindCreateFileResponse:
		return &CreateFileResponse{}
	case KindCreateDir:
		return &CreateDir{}
	case KindCreateDirResponse:
		return &CreateDirResponse{}
	case KindRemove:
		return &Remove{}
	case KindRemoveResponse:
		return &RemoveResponse{}
	case KindRename:
		return &Rename{}
	case KindRenameResponse:
		return &RenameResponse{}
	case KindAcquireLock:
		return &AcquireLock{}
	case KindAcquireLockResponse:
		return &AcquireLockResponse{}
	case KindReleaseLock:
		return &ReleaseLock{}
	case KindReleaseLockResponse:
		return &ReleaseLockResponse{}
	case KindRenewLock:
		return &RenewLock{}
	case KindRenewLockResponse:
		return &RenewLockResponse{}
	default:
		return nil
	}
}
