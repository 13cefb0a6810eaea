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

package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wormholefs/wormhole/internal/core"
)

func TestMessageRoundTrip(t *testing.T) {
	var share core.ShareID
	share[0] = 0xab

	tests := []struct {
		name string
		msg  Message
	}{
		{"hello", &Hello{ProtocolVersion: 1, ClientID: [16]byte{1, 2}, Capabilities: []string{CapRead, CapLock}}},
		{"hello_ack", &HelloAck{ProtocolVersion: 1, SessionID: [16]byte{9}, RootInode: core.RootInode, HostName: "peer", Capabilities: []string{CapRead, CapWrite}}},
		{"error", &Error{Code: CodePathTraversal, Message: "escape", Inode: 7}},
		{"lookup", &Lookup{Share: share, Parent: 1, Name: "file.txt"}},
		{"read_chunk", &ReadChunk{Share: share, Inode: 10, ChunkIndex: 3}},
		{"read_chunk_response", &ReadChunkResponse{Data: []byte{1, 2, 3}, Checksum: Checksum([]byte{1, 2, 3})}},
		{"write_chunk", &WriteChunk{Share: share, Inode: 12, ChunkIndex: 1, Data: []byte("abc"), Checksum: Checksum([]byte("abc")), LockToken: [16]byte{4}}},
		{"list_dir_response", &ListDirResponse{Entries: []core.DirEntry{{Name: "a", Inode: 70000, Kind: core.KindFile}}, NextOffset: 1, HasMore: true}},
		{"acquire_lock_response", &AcquireLockResponse{Granted: false, RetryAfterMillis: 30000, HolderExclusive: true}},
		{"ping", &Ping{Payload: []byte("echo")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteMessage(&buf, tc.msg))

			got, err := ReadMessage(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.msg, got)
		})
	}
}

func TestReadMessage_OversizeRejected(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], MaxMessageSize+1)
	buf.Write(lenBuf[:])
	buf.WriteByte(byte(KindPing))

	_, err := ReadMessage(&buf)
	assert.ErrorIs(t, err, ErrOversizeFrame)
}

func TestEncodeMessage_OversizeRejected(t *testing.T) {
	_, err := EncodeMessage(&ReadChunkResponse{Data: make([]byte, MaxMessageSize)})
	assert.ErrorIs(t, err, ErrOversizeFrame)
}

func TestReadMessage_EmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})

	_, err := ReadMessage(&buf)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestDecodeMessage_UnknownKind(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, 0xa0})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFrameLayout(t *testing.T) {
	frame, err := EncodeMessage(&Ping{Payload: []byte("x")})
	require.NoError(t, err)

	payloadLen := binary.LittleEndian.Uint32(frame[:4])
	assert.Equal(t, int(payloadLen), len(frame)-4)
	assert.Equal(t, byte(KindPing), frame[4])
}

func TestChecksumMatchesData(t *testing.T) {
	data := []byte("wormhole chunk bytes")
	sum := Checksum(data)
	assert.Equal(t, sum, Checksum(data))
	assert.NotEqual(t, sum, Checksum(data[:len(data)-1]))
}
