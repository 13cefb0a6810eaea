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

// Package client connects to hosts, runs the handshake, and routes
// filesystem requests; its multi-host manager packs share indices into
// the inodes the kernel sees.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/streampool"
	"github.com/wormholefs/wormhole/internal/transport"
	"github.com/wormholefs/wormhole/internal/wire"
)

// Connection is an authenticated session with one host.
type Connection struct {
	conn *transport.Conn
	pool *streampool.Pool

	sessionID [16]byte
	rootInode core.Inode
	hostName  string
	caps      map[string]bool

	// control carries pings; one at a time.
	controlMu sync.Mutex
	control   *transport.Stream

	closeOnce sync.Once
}

// Connect dials addr, verifies the pinned certificate, and runs the
// Hello handshake.
func Connect(ctx context.Context, addr string, pin transport.Fingerprint, devInsecure bool, tcfg transport.Config, clientID [16]byte) (*Connection, error) {
	conn, err := transport.Dial(ctx, addr, pin, devInsecure, tcfg)
	if err != nil {
		return nil, err
	}

	control, err := conn.OpenStream(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening control stream: %w", err)
	}

	err = control.Send(&wire.Hello{
		ProtocolVersion: wire.ProtocolVersion,
		ClientID:        clientID,
		Capabilities:    []string{wire.CapRead, wire.CapWrite, wire.CapLock, wire.CapMultiShare},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	reply, err := control.Recv()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading hello ack: %w", err)
	}

	switch m := reply.(type) {
	case *wire.HelloAck:
		if m.ProtocolVersion != wire.ProtocolVersion {
			conn.Close()
			return nil, fmt.Errorf("host speaks protocol %d, want %d", m.ProtocolVersion, wire.ProtocolVersion)
		}
		caps := make(map[string]bool, len(m.Capabilities))
		for _, c := range m.Capabilities {
			caps[c] = true
		}
		c := &Connection{
			conn:      conn,
			pool:      streampool.New(conn, streampool.MinTargetStreams, core.ChunkSize),
			sessionID: m.SessionID,
			rootInode: m.RootInode,
			hostName:  m.HostName,
			caps:      caps,
			control:   control,
		}
		logger.Infof("client: connected to %s (%s)", m.HostName, addr)
		return c, nil
	case *wire.Error:
		conn.Close()
		return nil, fmt.Errorf("host rejected handshake: %s: %s", m.Code, m.Message)
	default:
		conn.Close()
		return nil, fmt.Errorf("expected HelloAck, got %v", reply.Kind())
	}
}

// Request sends one request on a pooled stream and returns the typed
// response. A transport failure poisons the stream, never the pool.
func (c *Connection) Request(ctx context.Context, req wire.Message) (wire.Message, error) {
	handle, err := c.pool.AcquireOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	stream := handle.Stream()
	if err := stream.Send(req); err != nil {
		handle.MarkDead()
		return nil, err
	}
	reply, err := stream.Recv()
	if err != nil {
		handle.MarkDead()
		return nil, err
	}
	return reply, nil
}

// ReadChunkVerified fetches one whole chunk and verifies its checksum.
// Callers extract the sub-range they need.
func (c *Connection) ReadChunkVerified(ctx context.Context, share core.ShareID, id core.ChunkID) ([]byte, error) {
	reply, err := c.Request(ctx, &wire.ReadChunk{Share: share, Inode: id.Inode, ChunkIndex: id.Index})
	if err != nil {
		return nil, err
	}
	switch m := reply.(type) {
	case *wire.ReadChunkResponse:
		if wire.Checksum(m.Data) != m.Checksum {
			return nil, fmt.Errorf("chunk %v failed checksum verification", id)
		}
		return m.Data, nil
	case *wire.Error:
		return nil, WireError(m)
	default:
		return nil, fmt.Errorf("unexpected %v reply to ReadChunk", reply.Kind())
	}
}

// Ping measures round-trip time on the control stream.
func (c *Connection) Ping(ctx context.Context) (time.Duration, error) {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	start := time.Now()
	if err := c.control.Send(&wire.Ping{Payload: []byte("hc")}); err != nil {
		return 0, err
	}
	reply, err := c.control.Recv()
	if err != nil {
		return 0, err
	}
	if _, ok := reply.(*wire.Pong); !ok {
		return 0, fmt.Errorf("expected Pong, got %v", reply.Kind())
	}
	return time.Since(start), nil
}

// ListShares asks the host what it publishes.
func (c *Connection) ListShares(ctx context.Context) ([]wire.ShareInfo, error) {
	reply, err := c.Request(ctx, &wire.ListShares{})
	if err != nil {
		return nil, err
	}
	switch m := reply.(type) {
	case *wire.ListSharesResponse:
		return m.Shares, nil
	case *wire.Error:
		return nil, WireError(m)
	default:
		return nil, fmt.Errorf("unexpected %v reply to ListShares", reply.Kind())
	}
}

// HostName returns the host's advertised name.
func (c *Connection) HostName() string {
	return c.hostName
}

// RootInode returns the share root advertised in the handshake.
func (c *Connection) RootInode() core.Inode {
	return c.rootInode
}

// HasCapability reports a handshake capability.
func (c *Connection) HasCapability(cap string) bool {
	return c.caps[cap]
}

// Pool exposes the stream pool for auto-tuning.
func (c *Connection) Pool() *streampool.Pool {
	return c.pool
}

// Close tears the connection down.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.pool.Close()
		_ = c.conn.Close()
	})
}

// Done is closed when the underlying connection dies.
func (c *Connection) Done() <-chan struct{} {
	return c.conn.Context().Done()
}
