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

// Package bridge connects the blocking kernel-facing filesystem thread
// to the asynchronous networking side. Requests enter a bounded queue
// with backpressure; each carries a single-shot reply channel the caller
// blocks on. The calling thread never runs async code.
package bridge

import (
	"context"
	"time"

	"github.com/wormholefs/wormhole/internal/core"
)

const (
	// DefaultQueueSize bounds queued requests.
	DefaultQueueSize = 256

	// DefaultSubmitTimeout bounds how long a full queue may block a caller.
	DefaultSubmitTimeout = 30 * time.Second

	// serveTick is how often the consumer re-checks for shutdown.
	serveTick = 100 * time.Millisecond
)

// Op identifies a request type.
type Op int

const (
	OpLookup Op = iota
	OpGetAttr
	OpSetAttr
	OpReadDir
	OpRead
	OpWrite
	OpCreateFile
	OpMkDir
	OpUnlink
	OpRmDir
	OpRename
	OpAcquireLock
	OpReleaseLock
	OpRenewLock
	OpFlush
)

// AcquiredLock is a successful lock grant.
type AcquiredLock struct {
	Token     [16]byte
	ExpiresAt time.Time
}

// Request is one queued filesystem operation. Exactly one Result is
// delivered on Reply.
type Request struct {
	Op    Op
	Share core.ShareID

	Parent    core.Inode
	Inode     core.Inode
	Name      string
	NewParent core.Inode
	NewName   string
	Mode      uint32

	Chunk core.ChunkID
	Data  []byte

	Exclusive bool
	TTL       time.Duration
	Token     [16]byte

	Offset uint32
	Limit  uint32

	SetSize  *uint64
	SetMode  *uint32
	SetAtime *time.Time
	SetMtime *time.Time

	Reply chan Result
}

// Result carries a request's outcome. Err is nil on success.
type Result struct {
	Attr       core.FileAttr
	Entries    []core.DirEntry
	NextOffset uint32
	HasMore    bool
	Data       []byte
	Lock       AcquiredLock
	ExpiresAt  time.Time
	Err        *Error
}

// Handler executes requests on the async side.
type Handler interface {
	Handle(ctx context.Context, req *Request) Result
}

// Bridge is the bounded queue between the two execution domains.
type Bridge struct {
	queue         chan *Request
	done          chan struct{}
	submitTimeout time.Duration
}

// New creates a bridge. Zero arguments pick the defaults.
func New(queueSize int, submitTimeout time.Duration) *Bridge {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if submitTimeout <= 0 {
		submitTimeout = DefaultSubmitTimeout
	}
	return &Bridge{
		queue:         make(chan *Request, queueSize),
		done:          make(chan struct{}),
		submitTimeout: submitTimeout,
	}
}

// Shutdown stops the bridge. Queued and future requests fail with
// KindShutdown.
func (b *Bridge) Shutdown() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// submit enqueues req and blocks for its result. Non-blocking submission
// is tried first; a full queue applies backpressure up to the submit
// timeout.
func (b *Bridge) submit(req *Request) Result {
	req.Reply = make(chan Result, 1)

	select {
	case <-b.done:
		return Result{Err: &Error{Kind: KindShutdown}}
	default:
	}

	select {
	case b.queue <- req:
	default:
		timer := time.NewTimer(b.submitTimeout)
		defer timer.Stop()
		select {
		case b.queue <- req:
		case <-b.done:
			return Result{Err: &Error{Kind: KindShutdown}}
		case <-timer.C:
			return Result{Err: &Error{Kind: KindTimeout, Msg: "request queue full"}}
		}
	}

	select {
	case res := <-req.Reply:
		return res
	case <-b.done:
		// Give an in-flight handler one tick to deliver, then give up.
		timer := time.NewTimer(serveTick)
		defer timer.Stop()
		select {
		case res := <-req.Reply:
			return res
		case <-timer.C:
			return Result{Err: &Error{Kind: KindShutdown}}
		}
	}
}

// Serve consumes requests until ctx is done or the bridge shuts down.
// Each request runs on its own goroutine; the handler serializes
// internally where it must. The receive loop wakes at least every 100 ms
// so shutdown is observed promptly.
func (b *Bridge) Serve(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			b.Shutdown()
			b.drain()
			return
		case <-b.done:
			b.drain()
			return
		case req := <-b.queue:
			go b.dispatch(ctx, h, req)
		case <-time.After(serveTick):
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, h Handler, req *Request) {
	defer func() {
		if r := recover(); r != nil {
			req.Reply <- Result{Err: NewError(KindInternal, "handler panic: %v", r)}
		}
	}()
	req.Reply <- h.Handle(ctx, req)
}

// drain fails every queued request with Shutdown.
func (b *Bridge) drain() {
	for {
		select {
		case req := <-b.queue:
			req.Reply <- Result{Err: &Error{Kind: KindShutdown}}
		default:
			return
		}
	}
}

////////////////////////////////////////////////////////////////////////
// Blocking request methods
////////////////////////////////////////////////////////////////////////

// Lookup resolves name under parent.
func (b *Bridge) Lookup(share core.ShareID, parent core.Inode, name string) (core.FileAttr, error) {
	res := b.submit(&Request{Op: OpLookup, Share: share, Parent: parent, Name: name})
	return res.Attr, errOrNil(res.Err)
}

// GetAttr stats an inode.
func (b *Bridge) GetAttr(share core.ShareID, inode core.Inode) (core.FileAttr, error) {
	res := b.submit(&Request{Op: OpGetAttr, Share: share, Inode: inode})
	return res.Attr, errOrNil(res.Err)
}

// SetAttr updates whitelisted attributes; nil fields are untouched.
func (b *Bridge) SetAttr(share core.ShareID, inode core.Inode, size *uint64, mode *uint32, atime, mtime *time.Time) (core.FileAttr, error) {
	res := b.submit(&Request{
		Op: OpSetAttr, Share: share, Inode: inode,
		SetSize: size, SetMode: mode, SetAtime: atime, SetMtime: mtime,
	})
	return res.Attr, errOrNil(res.Err)
}

// ReadDir lists a directory page.
func (b *Bridge) ReadDir(share core.ShareID, inode core.Inode, offset, limit uint32) ([]core.DirEntry, uint32, bool, error) {
	res := b.submit(&Request{Op: OpReadDir, Share: share, Inode: inode, Offset: offset, Limit: limit})
	return res.Entries, res.NextOffset, res.HasMore, errOrNil(res.Err)
}

// Read fetches one whole chunk.
func (b *Bridge) Read(share core.ShareID, chunk core.ChunkID) ([]byte, error) {
	res := b.submit(&Request{Op: OpRead, Share: share, Chunk: chunk})
	return res.Data, errOrNil(res.Err)
}

// Write stores one chunk under the given lock token.
func (b *Bridge) Write(share core.ShareID, chunk core.ChunkID, data []byte, token [16]byte) error {
	res := b.submit(&Request{Op: OpWrite, Share: share, Chunk: chunk, Data: data, Token: token})
	return errOrNil(res.Err)
}

// CreateFile creates a regular file under parent.
func (b *Bridge) CreateFile(share core.ShareID, parent core.Inode, name string, mode uint32) (core.FileAttr, error) {
	res := b.submit(&Request{Op: OpCreateFile, Share: share, Parent: parent, Name: name, Mode: mode})
	return res.Attr, errOrNil(res.Err)
}

// MkDir creates a directory under parent.
func (b *Bridge) MkDir(share core.ShareID, parent core.Inode, name string, mode uint32) (core.FileAttr, error) {
	res := b.submit(&Request{Op: OpMkDir, Share: share, Parent: parent, Name: name, Mode: mode})
	return res.Attr, errOrNil(res.Err)
}

// Unlink removes a file.
func (b *Bridge) Unlink(share core.ShareID, parent core.Inode, name string) error {
	res := b.submit(&Request{Op: OpUnlink, Share: share, Parent: parent, Name: name})
	return errOrNil(res.Err)
}

// RmDir removes an empty directory.
func (b *Bridge) RmDir(share core.ShareID, parent core.Inode, name string) error {
	res := b.submit(&Request{Op: OpRmDir, Share: share, Parent: parent, Name: name})
	return errOrNil(res.Err)
}

// Rename moves oldName under oldParent to newName under newParent.
func (b *Bridge) Rename(share core.ShareID, oldParent core.Inode, oldName string, newParent core.Inode, newName string) error {
	res := b.submit(&Request{Op: OpRename, Share: share, Parent: oldParent, Name: oldName, NewParent: newParent, NewName: newName})
	return errOrNil(res.Err)
}

// AcquireLock takes a lock on inode.
func (b *Bridge) AcquireLock(share core.ShareID, inode core.Inode, exclusive bool, ttl time.Duration) (AcquiredLock, error) {
	res := b.submit(&Request{Op: OpAcquireLock, Share: share, Inode: inode, Exclusive: exclusive, TTL: ttl})
	return res.Lock, errOrNil(res.Err)
}

// ReleaseLock releases the hold carrying token.
func (b *Bridge) ReleaseLock(share core.ShareID, token [16]byte) error {
	res := b.submit(&Request{Op: OpReleaseLock, Share: share, Token: token})
	return errOrNil(res.Err)
}

// RenewLock extends the hold carrying token and returns its new expiry.
func (b *Bridge) RenewLock(share core.ShareID, token [16]byte, ttl time.Duration) (time.Time, error) {
	res := b.submit(&Request{Op: OpRenewLock, Share: share, Token: token, TTL: ttl})
	return res.ExpiresAt, errOrNil(res.Err)
}

// Flush submits a flush request for an inode. The client handler sends
// it to the host as a GetAttr; the host syncs nothing in response.
func (b *Bridge) Flush(share core.ShareID, inode core.Inode) error {
	res := b.submit(&Request{Op: OpFlush, Share: share, Inode: inode})
	return errOrNil(res.Err)
}

func errOrNil(e *Error) error {
	if e == nil {
		return nil
	}
	return e
}
