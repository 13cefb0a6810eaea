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

package host

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/lock"
	"github.com/wormholefs/wormhole/internal/wire"
)

// handleRequest routes one request to its handler and never panics on
// malformed input.
func (s *Server) handleRequest(sess *session, msg wire.Message) wire.Message {
	switch m := msg.(type) {
	case *wire.Ping:
		return &wire.Pong{Payload: m.Payload}
	case *wire.ListShares:
		return s.handleListShares()
	case *wire.Lookup:
		return s.handleLookup(m)
	case *wire.GetAttr:
		return s.handleGetAttr(m)
	case *wire.SetAttr:
		return s.handleSetAttr(m)
	case *wire.ListDir:
		return s.handleListDir(m)
	case *wire.ReadChunk:
		return s.handleReadChunk(m)
	case *wire.WriteChunk:
		return s.handleWriteChunk(m)
	case *wire.CreateFile:
		return s.handleCreate(m.Share, m.Parent, m.Name, m.Mode, false)
	case *wire.CreateDir:
		return s.handleCreate(m.Share, m.Parent, m.Name, m.Mode, true)
	case *wire.Remove:
		return s.handleRemove(m)
	case *wire.Rename:
		return s.handleRename(m)
	case *wire.AcquireLock:
		return s.handleAcquireLock(sess, m)
	case *wire.ReleaseLock:
		return s.handleReleaseLock(m)
	case *wire.RenewLock:
		return s.handleRenewLock(m)
	default:
		return &wire.Error{Code: wire.CodeNotImplemented, Message: "unimplemented request"}
	}
}

func errorFor(err error, inode core.Inode) *wire.Error {
	switch {
	case errors.Is(err, core.ErrPathTraversal),
		errors.Is(err, core.ErrIllegalName),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong):
		return &wire.Error{Code: wire.CodePathTraversal, Message: err.Error(), Inode: inode}
	case os.IsNotExist(err):
		return &wire.Error{Code: wire.CodeFileNotFound, Message: err.Error(), Inode: inode}
	case os.IsPermission(err):
		return &wire.Error{Code: wire.CodePermissionDenied, Message: err.Error(), Inode: inode}
	default:
		return &wire.Error{Code: wire.CodeIoError, Message: err.Error(), Inode: inode}
	}
}

func (s *Server) handleListShares() wire.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := &wire.ListSharesResponse{}
	for _, id := range s.order {
		st := s.shares[id]
		resp.Shares = append(resp.Shares, wire.ShareInfo{
			ID:       st.share.ID,
			Name:     st.share.Name,
			Writable: st.share.Writable && s.cfg.Writable,
		})
	}
	return resp
}

// childPath validates name, joins it under the parent inode's path, and
// confirms lexical containment. It does not require existence.
func childPath(st *shareState, parent core.Inode, name string) (string, *wire.Error) {
	dir, ok := st.inodes.GetPath(parent)
	if !ok {
		return "", &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown parent inode", Inode: parent}
	}
	path, err := core.SafeJoin(st.inodes.Root(), dir, name)
	if err != nil {
		return "", errorFor(err, parent)
	}
	return path, nil
}

func (s *Server) handleLookup(m *wire.Lookup) wire.Message {
	st, ok := s.resolveShare(m.Share)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown share"}
	}
	path, werr := childPath(st, m.Parent, m.Name)
	if werr != nil {
		return werr
	}

	info, err := os.Lstat(path)
	if err != nil {
		return errorFor(err, m.Parent)
	}
	// The entry exists; now block symlink escape on the fully canonical
	// path.
	if err := core.VerifyCanonical(st.inodes.Root(), path); err != nil {
		return errorFor(err, m.Parent)
	}

	ino, err := st.inodes.GetOrCreate(path)
	if err != nil {
		return errorFor(err, m.Parent)
	}
	return &wire.LookupResponse{Attr: attrFromInfo(ino, info)}
}

func (s *Server) handleGetAttr(m *wire.GetAttr) wire.Message {
	st, ok := s.resolveShare(m.Share)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown share"}
	}
	path, ok := st.inodes.GetPath(m.Inode)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown inode", Inode: m.Inode}
	}
	info, err := os.Lstat(path)
	if err != nil {
		return errorFor(err, m.Inode)
	}
	return &wire.GetAttrResponse{Attr: attrFromInfo(m.Inode, info)}
}

func (s *Server) handleSetAttr(m *wire.SetAttr) wire.Message {
	st, ok := s.resolveShare(m.Share)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown share"}
	}
	if !s.writableShare(st) {
		return &wire.Error{Code: wire.CodeReadOnly, Message: "share is read-only", Inode: m.Inode}
	}
	path, ok := st.inodes.GetPath(m.Inode)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown inode", Inode: m.Inode}
	}
	if err := core.VerifyCanonical(st.inodes.Root(), path); err != nil {
		return errorFor(err, m.Inode)
	}

	if m.Size != nil {
		if err := os.Truncate(path, int64(*m.Size)); err != nil {
			return errorFor(err, m.Inode)
		}
	}
	if m.Mode != nil {
		if err := os.Chmod(path, os.FileMode(*m.Mode)&os.ModePerm); err != nil {
			return errorFor(err, m.Inode)
		}
	}
	if m.Atime != nil || m.Mtime != nil {
		info, err := os.Lstat(path)
		if err != nil {
			return errorFor(err, m.Inode)
		}
		atime := info.ModTime()
		mtime := info.ModTime()
		if m.Atime != nil {
			atime = m.Atime.Time()
		}
		if m.Mtime != nil {
			mtime = m.Mtime.Time()
		}
		if err := os.Chtimes(path, atime, mtime); err != nil {
			return errorFor(err, m.Inode)
		}
	}

	info, err := os.Lstat(path)
	if err != nil {
		return errorFor(err, m.Inode)
	}
	return &wire.SetAttrResponse{Attr: attrFromInfo(m.Inode, info)}
}

func (s *Server) handleListDir(m *wire.ListDir) wire.Message {
	st, ok := s.resolveShare(m.Share)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown share"}
	}
	path, ok := st.inodes.GetPath(m.Inode)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown inode", Inode: m.Inode}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, syscall.ENOTDIR) {
			return &wire.Error{Code: wire.CodeNotADirectory, Message: "not a directory", Inode: m.Inode}
		}
		return errorFor(err, m.Inode)
	}

	limit := m.Limit
	if limit == 0 || limit > DefaultListDirLimit {
		limit = DefaultListDirLimit
	}
	start := int(m.Offset)
	if start > len(entries) {
		start = len(entries)
	}
	end := start + int(limit)
	if end > len(entries) {
		end = len(entries)
	}

	resp := &wire.ListDirResponse{NextOffset: uint32(end), HasMore: end < len(entries)}
	for _, de := range entries[start:end] {
		name := de.Name()
		if core.ValidateName(name) != nil {
			continue
		}
		child, err := core.SafeJoin(st.inodes.Root(), path, name)
		if err != nil {
			continue
		}
		ino, err := st.inodes.GetOrCreate(child)
		if err != nil {
			return errorFor(err, m.Inode)
		}
		resp.Entries = append(resp.Entries, core.DirEntry{
			Name:  name,
			Inode: ino,
			Kind:  kindFromDirEntry(de),
		})
	}
	return resp
}

func (s *Server) handleReadChunk(m *wire.ReadChunk) wire.Message {
	st, ok := s.resolveShare(m.Share)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown share"}
	}
	path, ok := st.inodes.GetPath(m.Inode)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown inode", Inode: m.Inode}
	}
	if err := core.VerifyCanonical(st.inodes.Root(), path); err != nil {
		return errorFor(err, m.Inode)
	}

	f, err := os.Open(path)
	if err != nil {
		return errorFor(err, m.Inode)
	}
	defer f.Close()

	buf := make([]byte, core.ChunkSize)
	n, err := f.ReadAt(buf, int64(m.ChunkIndex)*core.ChunkSize)
	if err != nil && err != io.EOF {
		return errorFor(err, m.Inode)
	}
	data := buf[:n]
	return &wire.ReadChunkResponse{Data: data, Checksum: wire.Checksum(data)}
}

func (s *Server) handleWriteChunk(m *wire.WriteChunk) wire.Message {
	st, ok := s.resolveShare(m.Share)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown share"}
	}
	if !s.writableShare(st) {
		return &wire.Error{Code: wire.CodeReadOnly, Message: "share is read-only", Inode: m.Inode}
	}
	if wire.Checksum(m.Data) != m.Checksum {
		return &wire.Error{Code: wire.CodeChecksumMismatch, Message: "chunk checksum mismatch", Inode: m.Inode}
	}
	data := m.Data
	if m.Compressed {
		if s.compressor == nil {
			return &wire.Error{Code: wire.CodeNotImplemented, Message: "compressed writes unsupported", Inode: m.Inode}
		}
		var err error
		data, err = s.compressor.Decompress(m.Data)
		if err != nil {
			return &wire.Error{Code: wire.CodeChecksumMismatch, Message: "decompressing chunk: " + err.Error(), Inode: m.Inode}
		}
	}
	if s.cfg.AllowLocks {
		if m.LockToken == ([16]byte{}) {
			return &wire.Error{Code: wire.CodeLockRequired, Message: "write requires a lock token", Inode: m.Inode}
		}
		if !s.locks.Validate(m.Inode, lock.Token(m.LockToken), lock.Exclusive) {
			return &wire.Error{Code: wire.CodeLockRequired, Message: "lock token invalid or expired", Inode: m.Inode}
		}
	}

	path, ok := st.inodes.GetPath(m.Inode)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown inode", Inode: m.Inode}
	}
	if err := core.VerifyCanonical(st.inodes.Root(), path); err != nil {
		return errorFor(err, m.Inode)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errorFor(err, m.Inode)
	}
	defer f.Close()

	offset := int64(m.ChunkIndex) * core.ChunkSize
	if _, err := f.WriteAt(data, offset); err != nil {
		return errorFor(err, m.Inode)
	}
	if err := f.Sync(); err != nil {
		return errorFor(err, m.Inode)
	}
	return &wire.WriteChunkResponse{BytesWritten: uint32(len(data))}
}

func (s *Server) handleCreate(share core.ShareID, parent core.Inode, name string, mode uint32, dir bool) wire.Message {
	st, ok := s.resolveShare(share)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown share"}
	}
	if !s.writableShare(st) {
		return &wire.Error{Code: wire.CodeReadOnly, Message: "share is read-only", Inode: parent}
	}
	path, werr := childPath(st, parent, name)
	if werr != nil {
		return werr
	}
	// The parent must itself resolve inside the root before we create
	// anything under it.
	parentPath, _ := st.inodes.GetPath(parent)
	if err := core.VerifyCanonical(st.inodes.Root(), parentPath); err != nil {
		return errorFor(err, parent)
	}

	perm := os.FileMode(mode) & os.ModePerm
	if dir {
		if perm == 0 {
			perm = 0o755
		}
		if err := os.Mkdir(path, perm); err != nil {
			return errorFor(err, parent)
		}
	} else {
		if perm == 0 {
			perm = 0o644
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
		if err != nil {
			return errorFor(err, parent)
		}
		f.Close()
	}

	info, err := os.Lstat(path)
	if err != nil {
		return errorFor(err, parent)
	}
	ino, err := st.inodes.GetOrCreate(path)
	if err != nil {
		return errorFor(err, parent)
	}
	if dir {
		return &wire.CreateDirResponse{Attr: attrFromInfo(ino, info)}
	}
	return &wire.CreateFileResponse{Attr: attrFromInfo(ino, info)}
}

func (s *Server) handleRemove(m *wire.Remove) wire.Message {
	st, ok := s.resolveShare(m.Share)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown share"}
	}
	if !s.writableShare(st) {
		return &wire.Error{Code: wire.CodeReadOnly, Message: "share is read-only", Inode: m.Parent}
	}
	path, werr := childPath(st, m.Parent, m.Name)
	if werr != nil {
		return werr
	}
	if _, err := os.Lstat(path); err != nil {
		return errorFor(err, m.Parent)
	}
	if err := core.VerifyCanonical(st.inodes.Root(), path); err != nil {
		// A symlink pointing outside may still be unlinked; only traversal
		// through it is forbidden. Removing the link itself is safe.
		if !errors.Is(err, core.ErrPathTraversal) {
			return errorFor(err, m.Parent)
		}
	}

	if err := os.Remove(path); err != nil {
		return errorFor(err, m.Parent)
	}
	st.inodes.RemovePath(path)
	return &wire.RemoveResponse{}
}

func (s *Server) handleRename(m *wire.Rename) wire.Message {
	st, ok := s.resolveShare(m.Share)
	if !ok {
		return &wire.Error{Code: wire.CodeFileNotFound, Message: "unknown share"}
	}
	if !s.writableShare(st) {
		return &wire.Error{Code: wire.CodeReadOnly, Message: "share is read-only", Inode: m.OldParent}
	}
	oldPath, werr := childPath(st, m.OldParent, m.OldName)
	if werr != nil {
		return werr
	}
	newPath, werr := childPath(st, m.NewParent, m.NewName)
	if werr != nil {
		return werr
	}
	if _, err := os.Lstat(oldPath); err != nil {
		return errorFor(err, m.OldParent)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return errorFor(err, m.OldParent)
	}
	st.inodes.RenamePath(oldPath, newPath)
	return &wire.RenameResponse{}
}

func (s *Server) handleAcquireLock(sess *session, m *wire.AcquireLock) wire.Message {
	if !s.cfg.AllowLocks {
		return &wire.Error{Code: wire.CodeNotImplemented, Message: "locks disabled", Inode: m.Inode}
	}
	kind := lock.Shared
	if m.Exclusive {
		kind = lock.Exclusive
	}
	ttl := time.Duration(m.TTLMillis) * time.Millisecond

	h, err := s.locks.Acquire(m.Inode, kind, sess.id, ttl)
	if err != nil {
		var conflict *lock.ConflictError
		if errors.As(err, &conflict) {
			return &wire.AcquireLockResponse{
				Granted:          false,
				RetryAfterMillis: uint64(conflict.RetryAfter / time.Millisecond),
				HolderExclusive:  conflict.Exclusive,
			}
		}
		return errorFor(err, m.Inode)
	}
	return &wire.AcquireLockResponse{
		Granted:         true,
		Token:           [16]byte(h.Token),
		ExpiresAtMillis: uint64(h.ExpiresAt.UnixMilli()),
	}
}

func (s *Server) handleReleaseLock(m *wire.ReleaseLock) wire.Message {
	if err := s.locks.Release(lock.Token(m.Token)); err != nil {
		return &wire.Error{Code: wire.CodeLockRequired, Message: err.Error()}
	}
	return &wire.ReleaseLockResponse{}
}

func (s *Server) handleRenewLock(m *wire.RenewLock) wire.Message {
	deadline, err := s.locks.Renew(lock.Token(m.Token), time.Duration(m.TTLMillis)*time.Millisecond)
	if err != nil {
		return &wire.Error{Code: wire.CodeLockRequired, Message: err.Error()}
	}
	return &wire.RenewLockResponse{ExpiresAtMillis: uint64(deadline.UnixMilli())}
}

func (s *Server) writableShare(st *shareState) bool {
	return s.cfg.Writable && st.share.Writable
}

func attrFromInfo(inode core.Inode, info fs.FileInfo) core.FileAttr {
	attr := core.FileAttr{
		Inode: inode,
		Size:  uint64(info.Size()),
		Mode:  uint32(info.Mode() & os.ModePerm),
		Nlink: 1,
		Mtime: core.TimestampFromTime(info.ModTime()),
		Ctime: core.TimestampFromTime(info.ModTime()),
		Atime: core.TimestampFromTime(info.ModTime()),
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		attr.Kind = core.KindSymlink
	case info.IsDir():
		attr.Kind = core.KindDirectory
	default:
		attr.Kind = core.KindFile
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		attr.Uid = st.Uid
		attr.Gid = st.Gid
		attr.Nlink = uint32(st.Nlink)
		attr.Atime = core.TimestampFromTime(time.Unix(st.Atim.Sec, st.Atim.Nsec))
		attr.Ctime = core.TimestampFromTime(time.Unix(st.Ctim.Sec, st.Ctim.Nsec))
	}
	return attr
}

func kindFromDirEntry(de os.DirEntry) core.Kind {
	switch {
	case de.Type()&os.ModeSymlink != 0:
		return core.KindSymlink
	case de.IsDir():
		return core.KindDirectory
	default:
		return core.KindFile
	}
}
