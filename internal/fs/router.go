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

package fs

import (
	"github.com/wormholefs/wormhole/internal/bridge"
	"github.com/wormholefs/wormhole/internal/client"
	"github.com/wormholefs/wormhole/internal/core"
)

// Router resolves kernel-visible inodes to (share, local inode) and
// packs replies back. The single-share and multi-share mounts differ
// only here; the rest of the adapter is shared.
type Router interface {
	// Resolve maps a kernel inode to the share serving it and the
	// host-local inode.
	Resolve(global core.Inode) (core.ShareID, core.Inode, error)

	// Pack rewrites a host-local inode into the kernel-visible form.
	Pack(share core.ShareID, local core.Inode) core.Inode

	// VirtualRootEntries lists the virtual root, or ok=false when this
	// mount has no virtual root.
	VirtualRootEntries() (entries []core.DirEntry, ok bool)

	// LookupVirtual resolves a virtual root child by name.
	LookupVirtual(name string) (core.Inode, bool)
}

// SingleShareRouter serves one share; kernel inodes equal local inodes.
type SingleShareRouter struct {
	Share core.ShareID
}

func (r SingleShareRouter) Resolve(global core.Inode) (core.ShareID, core.Inode, error) {
	return r.Share, global, nil
}

func (r SingleShareRouter) Pack(_ core.ShareID, local core.Inode) core.Inode {
	return local
}

func (r SingleShareRouter) VirtualRootEntries() ([]core.DirEntry, bool) {
	return nil, false
}

func (r SingleShareRouter) LookupVirtual(string) (core.Inode, bool) {
	return 0, false
}

// MultiShareRouter packs a 16-bit share index into the inode's upper
// bits; inode 1 is the virtual root listing shares as directories.
type MultiShareRouter struct {
	Manager *client.Manager
}

func (r MultiShareRouter) Resolve(global core.Inode) (core.ShareID, core.Inode, error) {
	if core.IsVirtualRoot(global) {
		return core.ShareID{}, 0, bridge.NewError(bridge.KindNotFound, "virtual root has no backing share")
	}
	idx, local := core.UnpackInode(global)
	shareID, ok := r.Manager.ShareByIndex(idx)
	if !ok {
		return core.ShareID{}, 0, bridge.NewError(bridge.KindNotFound, "share index %d not connected", idx)
	}
	return shareID, local, nil
}

func (r MultiShareRouter) Pack(share core.ShareID, local core.Inode) core.Inode {
	idx, ok := r.Manager.IndexByShareID(share)
	if !ok {
		// The share vanished mid-flight; the zero index at least keeps the
		// inode out of the live ranges.
		return core.PackInode(0, local)
	}
	return core.PackInode(idx, local)
}

func (r MultiShareRouter) VirtualRootEntries() ([]core.DirEntry, bool) {
	virtual := r.Manager.VirtualRootEntries()
	entries := make([]core.DirEntry, 0, len(virtual))
	for _, v := range virtual {
		entries = append(entries, core.DirEntry{
			Name:  v.Name,
			Inode: core.PackInode(v.Index, core.RootInode),
			Kind:  core.KindDirectory,
		})
	}
	return entries, true
}

func (r MultiShareRouter) LookupVirtual(name string) (core.Inode, bool) {
	idx, ok := r.Manager.IndexForMountName(name)
	if !ok {
		return 0, false
	}
	return core.PackInode(idx, core.RootInode), true
}
