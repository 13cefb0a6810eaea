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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/transport"
	"github.com/wormholefs/wormhole/internal/wire"
)

// startServer serves a writable share over loopback QUIC and returns the
// dial address and pinned fingerprint.
func startServer(t *testing.T) (*Server, string, transport.Fingerprint) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world"), 0o644))

	s := NewServer(Config{HostName: "host-under-test", Writable: true, AllowLocks: true}, clock.RealClock{})
	var id core.ShareID
	id[0] = 9
	require.NoError(t, s.AddShare(core.Share{ID: id, Name: "share", Root: root, Writable: true}))

	cert, fp, err := transport.GenerateCert()
	require.NoError(t, err)
	l, err := transport.Listen("127.0.0.1:0", cert, transport.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { l.Close() })
	go func() { _ = s.Serve(ctx, l) }()

	return s, l.Addr().String(), fp
}

func dialAndHello(t *testing.T, addr string, fp transport.Fingerprint) (*transport.Conn, *transport.Stream, *wire.HelloAck) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, err := transport.Dial(ctx, addr, fp, false, transport.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	control, err := conn.OpenStream(ctx)
	require.NoError(t, err)
	require.NoError(t, control.Send(&wire.Hello{
		ProtocolVersion: wire.ProtocolVersion,
		ClientID:        [16]byte{1},
		Capabilities:    []string{wire.CapRead, wire.CapWrite, wire.CapLock},
	}))

	reply, err := control.Recv()
	require.NoError(t, err)
	ack, ok := reply.(*wire.HelloAck)
	require.True(t, ok, "expected HelloAck, got %#v", reply)
	return conn, control, ack
}

func TestHandshakeOverQUIC(t *testing.T) {
	_, addr, fp := startServer(t)

	_, _, ack := dialAndHello(t, addr, fp)

	assert.Equal(t, wire.ProtocolVersion, ack.ProtocolVersion)
	assert.Equal(t, core.RootInode, ack.RootInode)
	assert.Equal(t, "host-under-test", ack.HostName)
	assert.Contains(t, ack.Capabilities, wire.CapRead)
	assert.Contains(t, ack.Capabilities, wire.CapWrite)
	assert.Contains(t, ack.Capabilities, wire.CapLock)
	assert.NotEqual(t, [16]byte{}, ack.SessionID)
}

func TestRequestsOverDedicatedStream(t *testing.T) {
	_, addr, fp := startServer(t)
	conn, _, _ := dialAndHello(t, addr, fp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := conn.OpenStream(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(&wire.Lookup{Parent: core.RootInode, Name: "hello.txt"}))
	reply, err := stream.Recv()
	require.NoError(t, err)
	resp, ok := reply.(*wire.LookupResponse)
	require.True(t, ok, "got %#v", reply)
	assert.Equal(t, uint64(11), resp.Attr.Size)

	// Read the file's first chunk on the same stream.
	require.NoError(t, stream.Send(&wire.ReadChunk{Inode: resp.Attr.Inode, ChunkIndex: 0}))
	reply, err = stream.Recv()
	require.NoError(t, err)
	chunk, ok := reply.(*wire.ReadChunkResponse)
	require.True(t, ok)
	assert.Equal(t, []byte("hello world"), chunk.Data)
	assert.Equal(t, wire.Checksum(chunk.Data), chunk.Checksum)
}

func TestVersionMismatchRejected(t *testing.T) {
	_, addr, fp := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, addr, fp, false, transport.Config{})
	require.NoError(t, err)
	defer conn.Close()

	control, err := conn.OpenStream(ctx)
	require.NoError(t, err)
	require.NoError(t, control.Send(&wire.Hello{ProtocolVersion: 99}))

	reply, err := control.Recv()
	require.NoError(t, err)
	werr, ok := reply.(*wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.CodeProtocolError, werr.Code)
}

func TestPingOnControlStream(t *testing.T) {
	_, addr, fp := startServer(t)
	_, control, _ := dialAndHello(t, addr, fp)

	require.NoError(t, control.Send(&wire.Ping{Payload: []byte("rtt-probe")}))
	reply, err := control.Recv()
	require.NoError(t, err)

	pong, ok := reply.(*wire.Pong)
	require.True(t, ok)
	assert.Equal(t, []byte("rtt-probe"), pong.Payload)
}

func TestDisconnectReleasesLocks(t *testing.T) {
	s, addr, fp := startServer(t)
	conn, _, _ := dialAndHello(t, addr, fp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := conn.OpenStream(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(&wire.Lookup{Parent: core.RootInode, Name: "hello.txt"}))
	reply, err := stream.Recv()
	require.NoError(t, err)
	attr := reply.(*wire.LookupResponse).Attr

	require.NoError(t, stream.Send(&wire.AcquireLock{Inode: attr.Inode, Exclusive: true, TTLMillis: 60_000}))
	reply, err = stream.Recv()
	require.NoError(t, err)
	require.True(t, reply.(*wire.AcquireLockResponse).Granted)
	require.True(t, s.Locks().Status(attr.Inode).Locked)

	conn.Close()

	// The server notices the disconnect and releases the session's locks.
	require.Eventually(t, func() bool {
		return !s.Locks().Status(attr.Inode).Locked
	}, 5*time.Second, 50*time.Millisecond)
}

func TestBlockedIPDroppedBeforeHandshake(t *testing.T) {
	s, addr, fp := startServer(t)

	// Five failed handshakes within the window block the sixth attempt.
	for i := 0; i < 5; i++ {
		s.Limiter().RecordFailure("127.0.0.1")
	}
	require.False(t, s.Limiter().Check("127.0.0.1"))
	assert.Positive(t, s.Limiter().BlockRemaining("127.0.0.1"))
	assert.LessOrEqual(t, s.Limiter().BlockRemaining("127.0.0.1"), 60*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, addr, fp, false, transport.Config{})
	require.NoError(t, err)
	defer conn.Close()

	// The server drops the connection before answering the handshake.
	control, err := conn.OpenStream(ctx)
	require.NoError(t, err)
	_ = control.Send(&wire.Hello{ProtocolVersion: wire.ProtocolVersion})
	_, err = control.Recv()
	assert.Error(t, err)
}
