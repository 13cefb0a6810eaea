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
	"strings"
	"sync"

	"github.com/wormholefs/wormhole/internal/core"
)

// ErrInodeSpaceExhausted means the share allocated all 48-bit inodes.
var ErrInodeSpaceExhausted = errors.New("inode space exhausted")

// InodeTable owns one share's Path↔Inode bijection. The share root is
// inode 1; fresh inodes are allocated monotonically from the user range.
type InodeTable struct {
	mu      sync.RWMutex
	root    string
	byPath  map[string]core.Inode
	byInode map[core.Inode]string
	next    core.Inode
}

// NewInodeTable creates the table for a share rooted at root.
func NewInodeTable(root string) *InodeTable {
	t := &InodeTable{
		root:    root,
		byPath:  make(map[string]core.Inode),
		byInode: make(map[core.Inode]string),
		next:    core.UserInodeStart,
	}
	t.byPath[root] = core.RootInode
	t.byInode[core.RootInode] = root
	return t
}

// Root returns the share root path.
func (t *InodeTable) Root() string {
	return t.root
}

// GetOrCreate returns the inode for path, allocating one for a path not
// seen before. Refuses once the 48-bit local space is exhausted.
func (t *InodeTable) GetOrCreate(path string) (core.Inode, error) {
	t.mu.RLock()
	if ino, ok := t.byPath[path]; ok {
		t.mu.RUnlock()
		return ino, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if ino, ok := t.byPath[path]; ok {
		return ino, nil
	}
	// MaxLocalInode itself is never handed out; it marks exhaustion.
	if t.next >= core.MaxLocalInode {
		return 0, ErrInodeSpaceExhausted
	}
	ino := t.next
	t.next++
	t.byPath[path] = ino
	t.byInode[ino] = path
	return ino, nil
}

// GetPath returns the canonical path for inode.
func (t *InodeTable) GetPath(inode core.Inode) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byInode[inode]
	return p, ok
}

// GetInode returns the inode for a previously seen path.
func (t *InodeTable) GetInode(path string) (core.Inode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ino, ok := t.byPath[path]
	return ino, ok
}

// RemovePath forgets a path and its inode. The inode value is never
// reused.
func (t *InodeTable) RemovePath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ino, ok := t.byPath[path]; ok {
		delete(t.byPath, path)
		delete(t.byInode, ino)
	}
}

// RenamePath rewrites a path, keeping its inode, and rewrites every
// entry under it when a directory moves.
func (t *InodeTable) RenamePath(oldPath, newPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := oldPath + "/"
	type repl struct {
		old, new string
		ino      core.Inode
	}
	var moves []repl
	for p, ino := range t.byPath {
		if p == oldPath {
			moves = append(moves, repl{p, newPath, ino})
		} else if strings.HasPrefix(p, prefix) {
			moves = append(moves, repl{p, newPath + "/" + p[len(prefix):], ino})
		}
	}
	for _, m := range moves {
		delete(t.byPath, m.old)
		t.byPath[m.new] = m.ino
		t.byInode[m.ino] = m.new
	}
}

// Count returns the number of live entries.
func (t *InodeTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byPath)
}

// setNext is a test hook for exercising exhaustion.
func (t *InodeTable) setNext(n core.Inode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = n
}
