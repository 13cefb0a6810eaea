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

package client

import (
	"context"
	"errors"
	"time"

	"github.com/wormholefs/wormhole/internal/bridge"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/wire"
)

// Resolver maps a request's share to the connection serving it.
type Resolver func(share core.ShareID) (*Connection, error)

// Handler executes bridge requests against host connections. It is the
// async side of the sync/async bridge.
type Handler struct {
	resolve Resolver
}

// NewHandler creates a handler over a resolver.
func NewHandler(r Resolver) *Handler {
	return &Handler{resolve: r}
}

// NewSingleHostHandler routes every request to one connection.
func NewSingleHostHandler(c *Connection) *Handler {
	return NewHandler(func(core.ShareID) (*Connection, error) { return c, nil })
}

// Handle implements bridge.Handler.
func (h *Handler) Handle(ctx context.Context, req *bridge.Request) bridge.Result {
	conn, err := h.resolve(req.Share)
	if err != nil {
		return bridge.Result{Err: asBridgeError(err)}
	}

	msg, err := buildWireRequest(req)
	if err != nil {
		return bridge.Result{Err: asBridgeError(err)}
	}

	reply, err := conn.Request(ctx, msg)
	if err != nil {
		return bridge.Result{Err: asBridgeError(err)}
	}
	return resultFromReply(req, reply)
}

func asBridgeError(err error) *bridge.Error {
	var be *bridge.Error
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &bridge.Error{Kind: bridge.KindTimeout, Msg: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return &bridge.Error{Kind: bridge.KindShutdown, Msg: err.Error()}
	}
	return &bridge.Error{Kind: bridge.KindIoError, Msg: err.Error()}
}

func buildWireRequest(req *bridge.Request) (wire.Message, error) {
	switch req.Op {
	case bridge.OpLookup:
		return &wire.Lookup{Share: req.Share, Parent: req.Parent, Name: req.Name}, nil
	case bridge.OpGetAttr:
		return &wire.GetAttr{Share: req.Share, Inode: req.Inode}, nil
	case bridge.OpSetAttr:
		m := &wire.SetAttr{Share: req.Share, Inode: req.Inode, Size: req.SetSize, Mode: req.SetMode}
		if req.SetAtime != nil {
			ts := core.TimestampFromTime(*req.SetAtime)
			m.Atime = &ts
		}
		if req.SetMtime != nil {
			ts := core.TimestampFromTime(*req.SetMtime)
			m.Mtime = &ts
		}
		return m, nil
	case bridge.OpReadDir:
		return &wire.ListDir{Share: req.Share, Inode: req.Inode, Offset: req.Offset, Limit: req.Limit}, nil
	case bridge.OpRead:
		return &wire.ReadChunk{Share: req.Share, Inode: req.Chunk.Inode, ChunkIndex: req.Chunk.Index}, nil
	case bridge.OpWrite:
		return &wire.WriteChunk{
			Share: req.Share, Inode: req.Chunk.Inode, ChunkIndex: req.Chunk.Index,
			Data: req.Data, Checksum: wire.Checksum(req.Data), LockToken: req.Token,
		}, nil
	case bridge.OpCreateFile:
		return &wire.CreateFile{Share: req.Share, Parent: req.Parent, Name: req.Name, Mode: req.Mode}, nil
	case bridge.OpMkDir:
		return &wire.CreateDir{Share: req.Share, Parent: req.Parent, Name: req.Name, Mode: req.Mode}, nil
	case bridge.OpUnlink:
		return &wire.Remove{Share: req.Share, Parent: req.Parent, Name: req.Name, Dir: false}, nil
	case bridge.OpRmDir:
		return &wire.Remove{Share: req.Share, Parent: req.Parent, Name: req.Name, Dir: true}, nil
	case bridge.OpRename:
		return &wire.Rename{
			Share: req.Share, OldParent: req.Parent, OldName: req.Name,
			NewParent: req.NewParent, NewName: req.NewName,
		}, nil
	case bridge.OpAcquireLock:
		return &wire.AcquireLock{
			Share: req.Share, Inode: req.Inode, Exclusive: req.Exclusive,
			TTLMillis: uint64(req.TTL / time.Millisecond),
		}, nil
	case bridge.OpReleaseLock:
		return &wire.ReleaseLock{Token: req.Token}, nil
	case bridge.OpRenewLock:
		return &wire.RenewLock{Token: req.Token, TTLMillis: uint64(req.TTL / time.Millisecond)}, nil
	case bridge.OpFlush:
		// Flush has no dedicated wire message; a GetAttr checks that the
		// inode is still reachable. It is not ordered after writes in
		// flight on other streams.
		return &wire.GetAttr{Share: req.Share, Inode: req.Inode}, nil
	default:
		return nil, bridge.NewError(bridge.KindInternal, "unknown op %d", req.Op)
	}
}

func resultFromReply(req *bridge.Request, reply wire.Message) bridge.Result {
	if werr, ok := reply.(*wire.Error); ok {
		return bridge.Result{Err: WireError(werr)}
	}

	switch m := reply.(type) {
	case *wire.LookupResponse:
		return bridge.Result{Attr: m.Attr}
	case *wire.GetAttrResponse:
		return bridge.Result{Attr: m.Attr}
	case *wire.SetAttrResponse:
		return bridge.Result{Attr: m.Attr}
	case *wire.ListDirResponse:
		return bridge.Result{Entries: m.Entries, NextOffset: m.NextOffset, HasMore: m.HasMore}
	case *wire.ReadChunkResponse:
		if wire.Checksum(m.Data) != m.Checksum {
			return bridge.Result{Err: bridge.NewError(bridge.KindIoError, "chunk %v failed checksum verification", req.Chunk)}
		}
		return bridge.Result{Data: m.Data}
	case *wire.WriteChunkResponse:
		return bridge.Result{}
	case *wire.CreateFileResponse:
		return bridge.Result{Attr: m.Attr}
	case *wire.CreateDirResponse:
		return bridge.Result{Attr: m.Attr}
	case *wire.RemoveResponse, *wire.RenameResponse, *wire.ReleaseLockResponse:
		return bridge.Result{}
	case *wire.AcquireLockResponse:
		if !m.Granted {
			return bridge.Result{Err: bridge.NewError(bridge.KindLockConflict,
				"lock held (exclusive=%v), retry in %dms", m.HolderExclusive, m.RetryAfterMillis)}
		}
		return bridge.Result{Lock: bridge.AcquiredLock{
			Token:     m.Token,
			ExpiresAt: time.UnixMilli(int64(m.ExpiresAtMillis)),
		}}
	case *wire.RenewLockResponse:
		return bridge.Result{ExpiresAt: time.UnixMilli(int64(m.ExpiresAtMillis))}
	default:
		return bridge.Result{Err: bridge.NewError(bridge.KindInternal, "unexpected %v reply", reply.Kind())}
	}
}
