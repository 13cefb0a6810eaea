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

package streampool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/transport"
)

// dialLoopback stands up a QUIC listener and returns a connected client
// connection.
func dialLoopback(t *testing.T) *transport.Conn {
	t.Helper()
	cert, fp, err := transport.GenerateCert()
	require.NoError(t, err)
	l, err := transport.Listen("127.0.0.1:0", cert, transport.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	go func() {
		server, err := l.Accept(ctx)
		if err != nil {
			return
		}
		// Keep the connection alive for the duration of the test.
		<-ctx.Done()
		server.Close()
	}()

	conn, err := transport.Dial(ctx, l.Addr().String(), fp, false, transport.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTryAcquireEmptyPool(t *testing.T) {
	p := New(dialLoopback(t), 4, core.ChunkSize)

	assert.Nil(t, p.TryAcquire())
}

func TestAcquireCreateReleaseRecycle(t *testing.T) {
	p := New(dialLoopback(t), 4, core.ChunkSize)
	ctx := context.Background()

	h, err := p.AcquireOrCreate(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 1, p.ActiveStreams())

	h.Release()
	assert.Equal(t, 1, p.IdleStreams())

	// The same handle comes back.
	h2 := p.TryAcquire()
	assert.Same(t, h, h2)
	h2.Release()
}

func TestAcquireBlocksAtTarget(t *testing.T) {
	p := New(dialLoopback(t), 4, core.ChunkSize)
	ctx := context.Background()

	handles := make([]*Handle, 0, 4)
	for i := 0; i < 4; i++ {
		h, err := p.AcquireOrCreate(ctx)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	assert.Equal(t, 4, p.ActiveStreams())

	// The fifth acquire must block until a release.
	got := make(chan *Handle, 1)
	go func() {
		h, err := p.AcquireOrCreate(ctx)
		assert.NoError(t, err)
		got <- h
	}()

	select {
	case <-got:
		t.Fatal("acquire returned past the target stream count")
	case <-time.After(30 * time.Millisecond):
	}

	handles[0].Release()

	select {
	case h := <-got:
		h.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not observe the release")
	}

	for _, h := range handles[1:] {
		h.Release()
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	p := New(dialLoopback(t), 4, core.ChunkSize)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := p.AcquireOrCreate(ctx)
		require.NoError(t, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := p.AcquireOrCreate(timeoutCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBytesAccounting(t *testing.T) {
	p := New(dialLoopback(t), 4, core.ChunkSize)

	h, err := p.AcquireOrCreate(context.Background())
	require.NoError(t, err)
	h.AddBytes(1000)
	h.AddBytes(24)
	h.Release()

	assert.Equal(t, uint64(1024), p.TotalBytes())
}

func TestMarkDeadDiscardsStream(t *testing.T) {
	p := New(dialLoopback(t), 4, core.ChunkSize)

	h, err := p.AcquireOrCreate(context.Background())
	require.NoError(t, err)
	h.MarkDead()
	h.Release()

	assert.Zero(t, p.IdleStreams())
	assert.Zero(t, p.ActiveStreams())
}

func TestUpdateMeasurementBDP(t *testing.T) {
	p := New(dialLoopback(t), 4, core.ChunkSize)

	tests := []struct {
		name        string
		bandwidth   float64 // bits/s
		rttMs       float64
		wantTarget  int
	}{
		// 100 Mbit/s * 50 ms / (8 * 128 KiB * 1000) + 2 = ceil(4.77) + 2 = 7
		{"home_fiber", 100e6, 50, 7},
		// Slow link clamps to the minimum of 4.
		{"slow_link", 1e6, 10, 4},
		// Fat pipe clamps to 256.
		{"fat_pipe", 100e9, 500, 256},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p.UpdateMeasurement(tc.bandwidth, tc.rttMs)
			assert.Equal(t, tc.wantTarget, p.TargetStreams())
		})
	}
}

func TestUpdateMeasurementNeverBelowMinimum(t *testing.T) {
	p := New(dialLoopback(t), 8, core.ChunkSize)

	p.UpdateMeasurement(1e6, 1)

	assert.Equal(t, 8, p.TargetStreams())
}

func TestUpdateMeasurementIgnoresGarbage(t *testing.T) {
	p := New(dialLoopback(t), 4, core.ChunkSize)
	p.UpdateMeasurement(100e6, 50)
	target := p.TargetStreams()

	p.UpdateMeasurement(0, 50)
	p.UpdateMeasurement(100e6, -1)

	assert.Equal(t, target, p.TargetStreams())
}

func TestCloseRejectsAcquire(t *testing.T) {
	p := New(dialLoopback(t), 4, core.ChunkSize)
	h, err := p.AcquireOrCreate(context.Background())
	require.NoError(t, err)
	h.Release()

	p.Close()

	_, err = p.AcquireOrCreate(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Zero(t, p.ActiveStreams())
}
