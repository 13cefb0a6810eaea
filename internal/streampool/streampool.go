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

// Package streampool lends transport streams to parallel transfers. The
// target stream count follows the connection's bandwidth-delay product.
package streampool

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/monitor"
	"github.com/wormholefs/wormhole/internal/transport"
)

const (
	// MinTargetStreams and MaxTargetStreams clamp auto-tuning.
	MinTargetStreams = 4
	MaxTargetStreams = 256
)

// ErrPoolClosed is returned after Close.
var ErrPoolClosed = errors.New("stream pool closed")

// Handle is a pooled stream lent to exactly one caller at a time.
type Handle struct {
	stream *transport.Stream
	pool   *Pool
	bytes  uint64
	dead   bool
}

// Stream exposes the underlying transport stream.
func (h *Handle) Stream() *transport.Stream {
	return h.stream
}

// AddBytes accounts transferred bytes against the handle.
func (h *Handle) AddBytes(n uint64) {
	h.bytes += n
}

// MarkDead tells the pool the stream is unusable; Release will discard
// it instead of recycling.
func (h *Handle) MarkDead() {
	h.dead = true
}

// Release returns the handle to the pool.
func (h *Handle) Release() {
	h.pool.release(h)
}

// Pool owns a connection's transfer streams.
type Pool struct {
	conn *transport.Conn

	mu     sync.Mutex
	idle   []*Handle
	total  int
	closed bool

	// freed is signalled when a handle returns to the idle list.
	freed chan struct{}

	target     atomic.Int64
	minStreams int
	chunkSize  int

	bytesTotal atomic.Uint64
}

// New creates a pool over conn. minStreams floors the auto-tuned target;
// chunkSize feeds the BDP formula.
func New(conn *transport.Conn, minStreams, chunkSize int) *Pool {
	if minStreams < MinTargetStreams {
		minStreams = MinTargetStreams
	}
	if chunkSize <= 0 {
		chunkSize = core.ChunkSize
	}
	p := &Pool{
		conn:       conn,
		freed:      make(chan struct{}, 1),
		minStreams: minStreams,
		chunkSize:  chunkSize,
	}
	p.target.Store(int64(minStreams))
	return p
}

// TryAcquire returns an idle handle, or nil as backpressure.
func (p *Pool) TryAcquire() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.idle)
	if n == 0 {
		return nil
	}
	h := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return h
}

// AcquireOrCreate returns an idle handle, opens a new stream while under
// the target count, or blocks until a handle is released.
func (p *Pool) AcquireOrCreate(ctx context.Context) (*Handle, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if n := len(p.idle); n > 0 {
			h := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return h, nil
		}
		if p.total < int(p.target.Load()) {
			p.total++
			p.mu.Unlock()

			s, err := p.conn.OpenStream(ctx)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, err
			}
			monitor.StreamPoolStreams.Inc()
			return &Handle{stream: s, pool: p}, nil
		}
		p.mu.Unlock()

		select {
		case <-p.freed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) release(h *Handle) {
	p.bytesTotal.Add(h.bytes)
	monitor.StreamPoolBytes.Add(float64(h.bytes))
	h.bytes = 0

	p.mu.Lock()
	if h.dead || p.closed {
		p.total--
		p.mu.Unlock()
		monitor.StreamPoolStreams.Dec()
		h.stream.Cancel()
		return
	}
	p.idle = append(p.idle, h)
	p.mu.Unlock()

	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// UpdateMeasurement retunes the target stream count from measured
// bandwidth (bits/s) and round-trip time (ms):
//
//	target = ceil(B*R / (8 * chunkSize * 1000)) + 2, clamped to [4, 256]
//
// and never below the configured minimum.
func (p *Pool) UpdateMeasurement(bandwidthBps float64, rttMillis float64) {
	if bandwidthBps <= 0 || rttMillis <= 0 {
		return
	}
	target := int(math.Ceil(bandwidthBps*rttMillis/(8*float64(p.chunkSize)*1000))) + 2
	if target < MinTargetStreams {
		target = MinTargetStreams
	}
	if target > MaxTargetStreams {
		target = MaxTargetStreams
	}
	if target < p.minStreams {
		target = p.minStreams
	}
	p.target.Store(int64(target))
}

// TargetStreams returns the current auto-tuned target.
func (p *Pool) TargetStreams() int {
	return int(p.target.Load())
}

// TotalBytes returns bytes accounted across released handles.
func (p *Pool) TotalBytes() uint64 {
	return p.bytesTotal.Load()
}

// ActiveStreams returns how many streams the pool currently owns.
func (p *Pool) ActiveStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// IdleStreams returns how many handles sit idle.
func (p *Pool) IdleStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close cancels idle streams; lent handles are discarded on release.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.total -= len(idle)
	p.mu.Unlock()

	for _, h := range idle {
		monitor.StreamPoolStreams.Dec()
		h.stream.Cancel()
	}
}
