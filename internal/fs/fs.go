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

// Package fs is the kernel-interface adapter: it translates FUSE
// callbacks into bridge requests and cache lookups, stitches chunk
// buffers into arbitrary byte ranges, and tracks writes in the sync
// engine.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/sync/semaphore"

	"github.com/wormholefs/wormhole/internal/bridge"
	"github.com/wormholefs/wormhole/internal/cache/hybrid"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/governor"
	"github.com/wormholefs/wormhole/internal/lock"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/syncengine"
	"github.com/wormholefs/wormhole/internal/ttlcache"
)

const (
	// DefaultAttrTTL and DefaultDirTTL bound how stale repeat traversals
	// may go.
	DefaultAttrTTL = 2 * time.Second
	DefaultDirTTL  = 2 * time.Second

	// lockTTL is the exclusive lock requested before the first write to
	// an inode.
	lockTTL = 30 * time.Second

	// readDirPageSize pages host listings.
	readDirPageSize = 1024
)

// ServerConfig wires the adapter's collaborators.
type ServerConfig struct {
	Bridge   *bridge.Bridge
	Cache    *hybrid.Cache
	Governor *governor.Governor
	Sync     *syncengine.Engine
	Router   Router

	ReadOnly  bool
	AttrTTL   time.Duration
	DirTTL    time.Duration
	ChunkSize uint64

	// The UID and GID that own all inodes in the file system.
	Uid uint32
	Gid uint32
}

// NewServer creates the FUSE server for a mount.
func NewServer(cfg ServerConfig) (fuse.Server, error) {
	wfs, err := newWormholeFS(cfg)
	if err != nil {
		return nil, err
	}
	return fuseutil.NewFileSystemServer(wfs), nil
}

func newWormholeFS(cfg ServerConfig) (*wormholeFS, error) {
	if cfg.Bridge == nil || cfg.Cache == nil || cfg.Governor == nil || cfg.Sync == nil || cfg.Router == nil {
		return nil, fmt.Errorf("fs: missing collaborator in ServerConfig")
	}
	if cfg.AttrTTL <= 0 {
		cfg.AttrTTL = DefaultAttrTTL
	}
	if cfg.DirTTL <= 0 {
		cfg.DirTTL = DefaultDirTTL
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = core.ChunkSize
	}
	return &wormholeFS{
		cfg:         cfg,
		attrCache:   ttlcache.New[core.Inode, core.FileAttr](cfg.AttrTTL, cfg.AttrTTL),
		dirCache:    ttlcache.New[core.Inode, []core.DirEntry](cfg.DirTTL, cfg.DirTTL),
		handles:     make(map[fuseops.HandleID]core.Inode),
		prefetchSem: semaphore.NewWeighted(governor.MaxConcurrentPrefetch),
	}, nil
}

type wormholeFS struct {
	fuseutil.NotImplementedFileSystem

	cfg ServerConfig

	// attrCache and dirCache key on the kernel-visible inode.
	attrCache *ttlcache.Cache[core.Inode, core.FileAttr]
	dirCache  *ttlcache.Cache[core.Inode, []core.DirEntry]

	mu         sync.Mutex
	handles    map[fuseops.HandleID]core.Inode
	nextHandle fuseops.HandleID

	prefetchSem *semaphore.Weighted
}

func errno(err error) error {
	if err == nil {
		return nil
	}
	if be, ok := err.(*bridge.Error); ok {
		return be.Errno()
	}
	return syscall.EIO
}

////////////////////////////////////////////////////////////////////////
// Attributes & lookup
////////////////////////////////////////////////////////////////////////

func (wfs *wormholeFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = uint32(wfs.cfg.ChunkSize)
	op.IoSize = uint32(wfs.cfg.ChunkSize)
	op.Blocks = 1 << 30
	op.BlocksFree = 1 << 29
	op.BlocksAvailable = 1 << 29
	op.Inodes = 1 << 40
	op.InodesFree = 1 << 39
	return nil
}

// fuseAttr converts a remote attr whose inode is already packed.
func (wfs *wormholeFS) fuseAttr(attr core.FileAttr) fuseops.InodeAttributes {
	mode := os.FileMode(attr.Mode)
	switch attr.Kind {
	case core.KindDirectory:
		mode |= os.ModeDir
	case core.KindSymlink:
		mode |= os.ModeSymlink
	}
	nlink := attr.Nlink
	if nlink == 0 {
		nlink = 1
	}
	return fuseops.InodeAttributes{
		Size:  attr.Size,
		Nlink: nlink,
		Mode:  mode,
		Atime: attr.Atime.Time(),
		Mtime: attr.Mtime.Time(),
		Ctime: attr.Ctime.Time(),
		Uid:   wfs.cfg.Uid,
		Gid:   wfs.cfg.Gid,
	}
}

func (wfs *wormholeFS) virtualRootAttr() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  os.ModeDir | 0o755,
		Uid:   wfs.cfg.Uid,
		Gid:   wfs.cfg.Gid,
	}
}

// packAttr rewrites the host-local inode inside attr to the kernel form
// and caches the result.
func (wfs *wormholeFS) packAttr(share core.ShareID, attr core.FileAttr) core.FileAttr {
	attr.Inode = wfs.cfg.Router.Pack(share, attr.Inode)
	wfs.attrCache.Set(attr.Inode, attr)
	return attr
}

func (wfs *wormholeFS) hasVirtualRoot() bool {
	_, ok := wfs.cfg.Router.VirtualRootEntries()
	return ok
}

func (wfs *wormholeFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	if wfs.hasVirtualRoot() && core.IsVirtualRoot(core.Inode(op.Parent)) {
		child, ok := wfs.cfg.Router.LookupVirtual(op.Name)
		if !ok {
			return syscall.ENOENT
		}
		op.Entry = fuseops.ChildInodeEntry{
			Child:                fuseops.InodeID(child),
			Attributes:           wfs.virtualRootAttr(),
			AttributesExpiration: time.Now().Add(wfs.cfg.AttrTTL),
			EntryExpiration:      time.Now().Add(wfs.cfg.AttrTTL),
		}
		return nil
	}

	share, parent, err := wfs.cfg.Router.Resolve(core.Inode(op.Parent))
	if err != nil {
		return errno(err)
	}
	attr, err := wfs.cfg.Bridge.Lookup(share, parent, op.Name)
	if err != nil {
		return errno(err)
	}
	packed := wfs.packAttr(share, attr)
	op.Entry = fuseops.ChildInodeEntry{
		Child:                fuseops.InodeID(packed.Inode),
		Attributes:           wfs.fuseAttr(packed),
		AttributesExpiration: time.Now().Add(wfs.cfg.AttrTTL),
		EntryExpiration:      time.Now().Add(wfs.cfg.AttrTTL),
	}
	return nil
}

func (wfs *wormholeFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	global := core.Inode(op.Inode)
	if wfs.hasVirtualRoot() && core.IsVirtualRoot(global) {
		op.Attributes = wfs.virtualRootAttr()
		op.AttributesExpiration = time.Now().Add(wfs.cfg.AttrTTL)
		return nil
	}

	if attr, ok := wfs.attrCache.Get(global); ok {
		op.Attributes = wfs.fuseAttr(attr)
		op.AttributesExpiration = time.Now().Add(wfs.cfg.AttrTTL)
		return nil
	}

	share, local, err := wfs.cfg.Router.Resolve(global)
	if err != nil {
		return errno(err)
	}
	attr, err := wfs.cfg.Bridge.GetAttr(share, local)
	if err != nil {
		return errno(err)
	}
	op.Attributes = wfs.fuseAttr(wfs.packAttr(share, attr))
	op.AttributesExpiration = time.Now().Add(wfs.cfg.AttrTTL)
	return nil
}

func (wfs *wormholeFS) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	if wfs.cfg.ReadOnly {
		return syscall.EROFS
	}
	global := core.Inode(op.Inode)
	share, local, err := wfs.cfg.Router.Resolve(global)
	if err != nil {
		return errno(err)
	}

	// Only whitelisted fields travel: size, mode, atime, mtime.
	var mode *uint32
	if op.Mode != nil {
		m := uint32(*op.Mode & os.ModePerm)
		mode = &m
	}
	attr, err := wfs.cfg.Bridge.SetAttr(share, local, op.Size, mode, op.Atime, op.Mtime)
	if err != nil {
		return errno(err)
	}
	if op.Size != nil {
		// Cached chunks past the new size are stale.
		wfs.cfg.Cache.InvalidateInode(global)
	}
	wfs.attrCache.Delete(global)
	op.Attributes = wfs.fuseAttr(wfs.packAttr(share, attr))
	op.AttributesExpiration = time.Now().Add(wfs.cfg.AttrTTL)
	return nil
}

func (wfs *wormholeFS) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	wfs.attrCache.Delete(core.Inode(op.Inode))
	return nil
}

func (wfs *wormholeFS) BatchForget(ctx context.Context, op *fuseops.BatchForgetOp) error {
	for _, e := range op.Entries {
		wfs.attrCache.Delete(core.Inode(e.Inode))
	}
	return nil
}

////////////////////////////////////////////////////////////////////////
// Directories
////////////////////////////////////////////////////////////////////////

func (wfs *wormholeFS) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	if wfs.cfg.ReadOnly {
		return syscall.EROFS
	}
	share, parent, err := wfs.cfg.Router.Resolve(core.Inode(op.Parent))
	if err != nil {
		return errno(err)
	}
	attr, err := wfs.cfg.Bridge.MkDir(share, parent, op.Name, uint32(op.Mode&os.ModePerm))
	if err != nil {
		return errno(err)
	}
	wfs.dirCache.Delete(core.Inode(op.Parent))
	packed := wfs.packAttr(share, attr)
	op.Entry = fuseops.ChildInodeEntry{
		Child:                fuseops.InodeID(packed.Inode),
		Attributes:           wfs.fuseAttr(packed),
		AttributesExpiration: time.Now().Add(wfs.cfg.AttrTTL),
		EntryExpiration:      time.Now().Add(wfs.cfg.AttrTTL),
	}
	return nil
}

func (wfs *wormholeFS) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	if wfs.cfg.ReadOnly {
		return syscall.EROFS
	}
	share, parent, err := wfs.cfg.Router.Resolve(core.Inode(op.Parent))
	if err != nil {
		return errno(err)
	}
	attr, err := wfs.cfg.Bridge.CreateFile(share, parent, op.Name, uint32(op.Mode&os.ModePerm))
	if err != nil {
		return errno(err)
	}
	wfs.dirCache.Delete(core.Inode(op.Parent))
	packed := wfs.packAttr(share, attr)
	op.Entry = fuseops.ChildInodeEntry{
		Child:                fuseops.InodeID(packed.Inode),
		Attributes:           wfs.fuseAttr(packed),
		AttributesExpiration: time.Now().Add(wfs.cfg.AttrTTL),
		EntryExpiration:      time.Now().Add(wfs.cfg.AttrTTL),
	}
	op.Handle = wfs.allocHandle(packed.Inode)
	return nil
}

func (wfs *wormholeFS) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	if wfs.cfg.ReadOnly {
		return syscall.EROFS
	}
	share, oldParent, err := wfs.cfg.Router.Resolve(core.Inode(op.OldParent))
	if err != nil {
		return errno(err)
	}
	_, newParent, err := wfs.cfg.Router.Resolve(core.Inode(op.NewParent))
	if err != nil {
		return errno(err)
	}
	if err := wfs.cfg.Bridge.Rename(share, oldParent, op.OldName, newParent, op.NewName); err != nil {
		return errno(err)
	}
	wfs.dirCache.Delete(core.Inode(op.OldParent))
	wfs.dirCache.Delete(core.Inode(op.NewParent))
	return nil
}

func (wfs *wormholeFS) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	if wfs.cfg.ReadOnly {
		return syscall.EROFS
	}
	share, parent, err := wfs.cfg.Router.Resolve(core.Inode(op.Parent))
	if err != nil {
		return errno(err)
	}
	if err := wfs.cfg.Bridge.RmDir(share, parent, op.Name); err != nil {
		return errno(err)
	}
	wfs.dirCache.Delete(core.Inode(op.Parent))
	return nil
}

func (wfs *wormholeFS) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	if wfs.cfg.ReadOnly {
		return syscall.EROFS
	}
	share, parent, err := wfs.cfg.Router.Resolve(core.Inode(op.Parent))
	if err != nil {
		return errno(err)
	}
	if err := wfs.cfg.Bridge.Unlink(share, parent, op.Name); err != nil {
		return errno(err)
	}
	wfs.dirCache.Delete(core.Inode(op.Parent))
	return nil
}

func (wfs *wormholeFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	op.Handle = wfs.allocHandle(core.Inode(op.Inode))
	return nil
}

// listDir returns the full listing for a kernel inode, from cache or by
// paging the host, with entry inodes already packed.
func (wfs *wormholeFS) listDir(global core.Inode) ([]core.DirEntry, error) {
	if entries, hasVirtual := wfs.cfg.Router.VirtualRootEntries(); hasVirtual && core.IsVirtualRoot(global) {
		return entries, nil
	}
	if entries, ok := wfs.dirCache.Get(global); ok {
		return entries, nil
	}

	share, local, err := wfs.cfg.Router.Resolve(global)
	if err != nil {
		return nil, err
	}

	var all []core.DirEntry
	var offset uint32
	for {
		entries, next, hasMore, err := wfs.cfg.Bridge.ReadDir(share, local, offset, readDirPageSize)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			e.Inode = wfs.cfg.Router.Pack(share, e.Inode)
			all = append(all, e)
		}
		if !hasMore {
			break
		}
		offset = next
	}
	// Readers see a consistent snapshot for the TTL.
	wfs.dirCache.Set(global, all)
	return all, nil
}

func (wfs *wormholeFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	entries, err := wfs.listDir(core.Inode(op.Inode))
	if err != nil {
		return errno(err)
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return nil
	}
	for i, e := range entries[op.Offset:] {
		dt := fuseutil.DT_File
		switch e.Kind {
		case core.KindDirectory:
			dt = fuseutil.DT_Directory
		case core.KindSymlink:
			dt = fuseutil.DT_Link
		}
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  fuseops.InodeID(e.Inode),
			Name:   e.Name,
			Type:   dt,
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (wfs *wormholeFS) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	wfs.dropHandle(op.Handle)
	return nil
}

////////////////////////////////////////////////////////////////////////
// Files
////////////////////////////////////////////////////////////////////////

func (wfs *wormholeFS) allocHandle(inode core.Inode) fuseops.HandleID {
	wfs.mu.Lock()
	defer wfs.mu.Unlock()
	wfs.nextHandle++
	h := wfs.nextHandle
	wfs.handles[h] = inode
	return h
}

func (wfs *wormholeFS) dropHandle(h fuseops.HandleID) (core.Inode, bool) {
	wfs.mu.Lock()
	defer wfs.mu.Unlock()
	inode, ok := wfs.handles[h]
	delete(wfs.handles, h)
	return inode, ok
}

func (wfs *wormholeFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	op.Handle = wfs.allocHandle(core.Inode(op.Inode))
	op.KeepPageCache = false
	return nil
}

// getChunk fetches one chunk for a kernel inode: dirty bytes first, then
// the hybrid cache, then the network (admitting the result).
func (wfs *wormholeFS) getChunk(global core.Inode, share core.ShareID, local core.Inode, index uint64) ([]byte, error) {
	globalChunk := core.NewChunkID(global, index)
	if data, ok := wfs.cfg.Sync.GetDirtyChunk(globalChunk); ok {
		return data, nil
	}
	if data, ok := wfs.cfg.Cache.Get(globalChunk); ok {
		return data, nil
	}
	data, err := wfs.cfg.Bridge.Read(share, core.NewChunkID(local, index))
	if err != nil {
		return nil, err
	}
	wfs.cfg.Cache.Insert(globalChunk, data)
	return data, nil
}

// prefetch fetches governor targets in the background. A global
// in-flight counter bounds concurrency; every fetch goroutine releases
// its slot on all paths.
func (wfs *wormholeFS) prefetch(global core.Inode, share core.ShareID, local core.Inode, targets []core.ChunkID) {
	for _, target := range targets {
		go func(idx uint64) {
			if err := wfs.prefetchSem.Acquire(context.Background(), 1); err != nil {
				return
			}
			defer wfs.prefetchSem.Release(1)
			globalChunk := core.NewChunkID(global, idx)
			if wfs.cfg.Cache.Contains(globalChunk) {
				return
			}
			data, err := wfs.cfg.Bridge.Read(share, core.NewChunkID(local, idx))
			if err != nil {
				logger.Debugf("prefetch of %v failed: %v", globalChunk, err)
				return
			}
			wfs.cfg.Cache.Insert(globalChunk, data)
		}(target.Index)
	}
}

func (wfs *wormholeFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	global := core.Inode(op.Inode)
	share, local, err := wfs.cfg.Router.Resolve(global)
	if err != nil {
		return errno(err)
	}

	chunkSize := wfs.cfg.ChunkSize
	offset := uint64(op.Offset)
	want := len(op.Dst)

	for op.BytesRead < want {
		pos := offset + uint64(op.BytesRead)
		index := core.ChunkIndex(pos, chunkSize)
		inChunk := core.OffsetInChunk(pos, chunkSize)

		// Feed the governor on each chunk touched and kick off prefetch.
		targets := wfs.cfg.Governor.Record(core.NewChunkID(global, index), func(id core.ChunkID) bool {
			return wfs.cfg.Cache.Contains(id)
		})
		if len(targets) > 0 {
			wfs.prefetch(global, share, local, targets)
		}

		data, err := wfs.getChunk(global, share, local, index)
		if err != nil {
			if op.BytesRead > 0 {
				// Partial reads are permitted; return what we have.
				return nil
			}
			return errno(err)
		}
		if inChunk >= uint64(len(data)) {
			break // past EOF
		}
		n := copy(op.Dst[op.BytesRead:], data[inChunk:])
		op.BytesRead += n
		if uint64(len(data)) < chunkSize {
			break // short trailing chunk
		}
	}
	return nil
}

// ensureExclusiveLock takes the write lock for an inode once and stores
// it in the sync engine for the background writeback.
func (wfs *wormholeFS) ensureExclusiveLock(share core.ShareID, global, local core.Inode) error {
	if wfs.cfg.Sync.HasLock(global, true) {
		return nil
	}
	grant, err := wfs.cfg.Bridge.AcquireLock(share, local, true, lockTTL)
	if err != nil {
		return err
	}
	wfs.cfg.Sync.StoreLock(global, syncengine.FileLock{
		Token:      lock.Token(grant.Token),
		Exclusive:  true,
		AcquiredAt: time.Now(),
		ExpiresAt:  grant.ExpiresAt,
	})
	return nil
}

func (wfs *wormholeFS) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	if wfs.cfg.ReadOnly {
		return syscall.EROFS
	}
	global := core.Inode(op.Inode)
	share, local, err := wfs.cfg.Router.Resolve(global)
	if err != nil {
		return errno(err)
	}
	if err := wfs.ensureExclusiveLock(share, global, local); err != nil {
		return errno(err)
	}

	chunkSize := wfs.cfg.ChunkSize
	data := op.Data
	offset := uint64(op.Offset)

	for len(data) > 0 {
		index := core.ChunkIndex(offset, chunkSize)
		inChunk := core.OffsetInChunk(offset, chunkSize)
		n := chunkSize - inChunk
		if uint64(len(data)) < n {
			n = uint64(len(data))
		}

		// Load the chunk's current bytes: dirty, cache, network, or empty
		// for a brand-new tail.
		base, err := wfs.getChunk(global, share, local, index)
		if err != nil {
			if be, ok := err.(*bridge.Error); !ok || be.Kind != bridge.KindNotFound {
				if !isShortReadError(err) {
					return errno(err)
				}
			}
			base = nil
		}

		// Overlay the write, extending the chunk if it was short.
		chunk := make([]byte, maxU64(uint64(len(base)), inChunk+n))
		copy(chunk, base)
		copy(chunk[inChunk:], data[:n])

		globalChunk := core.NewChunkID(global, index)
		wfs.cfg.Sync.MarkDirty(globalChunk, chunk)
		wfs.cfg.Cache.Insert(globalChunk, chunk)

		data = data[n:]
		offset += n
	}

	// Size and times changed.
	wfs.attrCache.Delete(global)
	return nil
}

func isShortReadError(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// flushInode uploads every dirty chunk of the inode under its lock.
func (wfs *wormholeFS) flushInode(global core.Inode) error {
	share, local, err := wfs.cfg.Router.Resolve(global)
	if err != nil {
		return err
	}
	var token [16]byte
	if l, ok := wfs.cfg.Sync.GetLock(global); ok {
		token = [16]byte(l.Token)
	}
	for _, entry := range wfs.cfg.Sync.DirtyChunksForInode(global) {
		remote := core.NewChunkID(local, entry.ID.Index)
		if err := wfs.cfg.Bridge.Write(share, remote, entry.Chunk.Data, token); err != nil {
			return err
		}
		wfs.cfg.Sync.MarkSynced(entry.ID)
	}
	return nil
}

func (wfs *wormholeFS) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	if wfs.cfg.ReadOnly {
		return nil
	}
	if err := wfs.flushInode(core.Inode(op.Inode)); err != nil {
		return errno(err)
	}
	return nil
}

func (wfs *wormholeFS) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	if wfs.cfg.ReadOnly {
		return nil
	}
	if err := wfs.flushInode(core.Inode(op.Inode)); err != nil {
		return errno(err)
	}
	return nil
}

func (wfs *wormholeFS) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	if inode, ok := wfs.dropHandle(op.Handle); ok {
		// Per-file access pattern state is dropped on every handle
		// release, even while other handles on the inode stay open.
		wfs.cfg.Governor.Forget(inode)
	}
	return nil
}

func (wfs *wormholeFS) Destroy() {
	wfs.attrCache.Stop()
	wfs.dirCache.Stop()
}
