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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		share uint16
		local Inode
	}{
		{"share_root", 1, RootInode},
		{"first_user_inode", 1, UserInodeStart},
		{"max_share_index", 1<<16 - 1, 42},
		{"max_local_inode", 7, MaxLocalInode},
		{"zero_local", 3, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := PackInode(tc.share, tc.local)
			share, local := UnpackInode(g)

			assert.Equal(t, tc.share, share)
			assert.Equal(t, tc.local, local)
			assert.Equal(t, g, PackInode(share, local))
		})
	}
}

func TestPackInode_OverflowPanics(t *testing.T) {
	assert.Panics(t, func() { PackInode(1, MaxLocalInode+1) })
}

func TestIsVirtualRoot(t *testing.T) {
	assert.True(t, IsVirtualRoot(RootInode))
	assert.False(t, IsVirtualRoot(PackInode(1, RootInode)))
}

func TestChunkMath(t *testing.T) {
	assert.Equal(t, uint64(0), ChunkIndex(0, ChunkSize))
	assert.Equal(t, uint64(0), ChunkIndex(ChunkSize-1, ChunkSize))
	assert.Equal(t, uint64(1), ChunkIndex(ChunkSize, ChunkSize))
	assert.Equal(t, uint64(2), ChunkIndex(2*ChunkSize+5, ChunkSize))
	assert.Equal(t, uint64(5), OffsetInChunk(2*ChunkSize+5, ChunkSize))
	assert.Equal(t, uint64(0), OffsetInChunk(ChunkSize, ChunkSize))
}

func TestTimestampClamping(t *testing.T) {
	ts := TimestampFromTime(time.Unix(-5, 100))
	assert.Equal(t, Timestamp{}, ts)

	ts = TimestampFromTime(time.Unix(1700000000, 999999999))
	assert.Equal(t, uint64(1700000000), ts.Seconds)
	assert.Equal(t, uint32(999999999), ts.Nanos)

	back := ts.Time()
	assert.Equal(t, int64(1700000000), back.Unix())
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"plain", "file.txt", nil},
		{"at_limit", string(make([]byte, MaxNameLen)), ErrIllegalName}, // NUL bytes
		{"empty", "", ErrEmptyName},
		{"dot", ".", ErrPathTraversal},
		{"dotdot", "..", ErrPathTraversal},
		{"slash", "a/b", ErrIllegalName},
		{"backslash", "a\\b", ErrIllegalName},
		{"nul", "a\x00b", ErrIllegalName},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName(tc.input)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestValidateName_LengthBoundary(t *testing.T) {
	atLimit := make([]byte, MaxNameLen)
	for i := range atLimit {
		atLimit[i] = 'a'
	}
	assert.NoError(t, ValidateName(string(atLimit)))
	assert.ErrorIs(t, ValidateName(string(atLimit)+"a"), ErrNameTooLong)
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	p, err := SafeJoin(root, root, "child")
	require.NoError(t, err)
	assert.Equal(t, root+"/child", p)

	_, err = SafeJoin(root, root, "../etc/passwd")
	assert.ErrorIs(t, err, ErrIllegalName)

	_, err = SafeJoin(root, root, "..")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestManifestValidate(t *testing.T) {
	h := HashBytes([]byte("x"))
	m := &FileManifest{
		Inode:     10,
		TotalSize: 300,
		Chunks: []ContentChunk{
			{Hash: h, Offset: 0, Size: 128},
			{Hash: h, Offset: 128, Size: 128},
			{Hash: h, Offset: 256, Size: 44},
		},
	}
	assert.NoError(t, m.Validate())

	m.Chunks[1].Offset = 129
	assert.Error(t, m.Validate())

	m.Chunks[1].Offset = 128
	m.TotalSize = 301
	assert.Error(t, m.Validate())
}

func TestNormalizeJoinCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"lowercase", "abc-123", "ABC-123", false},
		{"trimmed", "  abcdef ", "ABCDEF", false},
		{"too_short", "abc", "", true},
		{"bad_char", "abc_def", "", true},
		{"empty", "", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeJoinCode(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidJoinCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
