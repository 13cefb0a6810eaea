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

// Package bufferpool provides fixed-capacity pools of reusable byte
// buffers of a single size. A full pool applies backpressure instead of
// allocating.
package bufferpool

import (
	"context"
	"sync/atomic"

	"github.com/wormholefs/wormhole/internal/core"
)

const (
	// DefaultMaxBulkBuffers is the capacity of the bulk transfer pool.
	DefaultMaxBulkBuffers = 64

	// DefaultMaxRandomBuffers is the capacity of the random access pool.
	DefaultMaxRandomBuffers = 512
)

// Pool hands out same-sized byte buffers up to a fixed capacity.
type Pool struct {
	bufferSize int
	capacity   int

	free chan []byte

	allocated    atomic.Int64
	acquisitions atomic.Uint64
	reuses       atomic.Uint64
}

// New creates a pool of capacity buffers of bufferSize bytes each.
// Buffers are allocated lazily.
func New(capacity, bufferSize int) *Pool {
	return &Pool{
		bufferSize: bufferSize,
		capacity:   capacity,
		free:       make(chan []byte, capacity),
	}
}

// NewBulkPool creates the standard pool for bulk transfer chunks.
func NewBulkPool() *Pool {
	return New(DefaultMaxBulkBuffers, core.BulkChunkSize)
}

// NewRandomAccessPool creates the standard pool for interactive chunks.
func NewRandomAccessPool() *Pool {
	return New(DefaultMaxRandomBuffers, core.ChunkSize)
}

// Lease is a borrowed buffer. Release returns it to the pool.
type Lease struct {
	pool     *Pool
	buf      []byte
	released atomic.Bool
}

// Bytes exposes the leased buffer.
func (l *Lease) Bytes() []byte {
	return l.buf
}

// Release zeroes the buffer and returns it to the pool. Safe to call
// more than once.
func (l *Lease) Release() {
	if l.released.Swap(true) {
		return
	}
	clear(l.buf)
	l.pool.free <- l.buf
}

// TryAcquire returns a lease, or nil when the pool is exhausted.
func (p *Pool) TryAcquire() *Lease {
	select {
	case buf := <-p.free:
		p.acquisitions.Add(1)
		p.reuses.Add(1)
		return &Lease{pool: p, buf: buf}
	default:
	}

	for {
		n := p.allocated.Load()
		if int(n) >= p.capacity {
			return nil
		}
		if p.allocated.CompareAndSwap(n, n+1) {
			p.acquisitions.Add(1)
			return &Lease{pool: p, buf: make([]byte, p.bufferSize)}
		}
	}
}

// Acquire blocks until a buffer is available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if l := p.TryAcquire(); l != nil {
		return l, nil
	}
	select {
	case buf := <-p.free:
		p.acquisitions.Add(1)
		p.reuses.Add(1)
		return &Lease{pool: p, buf: buf}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BufferSize returns the size of each buffer.
func (p *Pool) BufferSize() int {
	return p.bufferSize
}

// Metrics is a snapshot of pool counters.
type Metrics struct {
	Acquisitions uint64
	CacheHits    uint64
	Allocated    int64
	Available    int
	InUse        int64
}

// Metrics returns a snapshot of the pool's counters.
func (p *Pool) Metrics() Metrics {
	allocated := p.allocated.Load()
	available := len(p.free)
	return Metrics{
		Acquisitions: p.acquisitions.Load(),
		CacheHits:    p.reuses.Load(),
		Allocated:    allocated,
		Available:    available,
		InUse:        allocated - int64(available),
	}
}
