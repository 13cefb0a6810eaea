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

package bulk

import (
	"sync/atomic"
	"time"

	"github.com/wormholefs/wormhole/internal/clock"
)

// Progress accumulates transfer accounting. All methods are safe for
// concurrent use by the transfer workers.
type Progress struct {
	clock   clock.Clock
	started time.Time

	totalBytes  uint64
	totalChunks uint64

	bytesDone      atomic.Uint64
	chunksDone     atomic.Uint64
	dedupSaved     atomic.Uint64
	compressSaved  atomic.Uint64
	nonFatalErrors atomic.Uint64
}

// NewProgress starts tracking a transfer of the given size.
func NewProgress(clk clock.Clock, totalBytes, totalChunks uint64) *Progress {
	return &Progress{
		clock:       clk,
		started:     clk.Now(),
		totalBytes:  totalBytes,
		totalChunks: totalChunks,
	}
}

// RecordChunk notes one chunk finished, transferring transferred bytes
// of an original logical size.
func (p *Progress) RecordChunk(logicalBytes, transferredBytes uint64) {
	p.bytesDone.Add(logicalBytes)
	p.chunksDone.Add(1)
	if transferredBytes < logicalBytes {
		p.compressSaved.Add(logicalBytes - transferredBytes)
	}
}

// RecordDedup notes a chunk skipped entirely because the other side
// already has it.
func (p *Progress) RecordDedup(logicalBytes uint64) {
	p.bytesDone.Add(logicalBytes)
	p.chunksDone.Add(1)
	p.dedupSaved.Add(logicalBytes)
}

// RecordError notes a non-fatal per-chunk error; the transfer continues.
func (p *Progress) RecordError() {
	p.nonFatalErrors.Add(1)
}

// Percent returns completion in [0, 100].
func (p *Progress) Percent() float64 {
	if p.totalBytes == 0 {
		return 100
	}
	pct := 100 * float64(p.bytesDone.Load()) / float64(p.totalBytes)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Speed returns logical bytes per second since the start.
func (p *Progress) Speed() float64 {
	elapsed := p.clock.Now().Sub(p.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.bytesDone.Load()) / elapsed
}

// ETA estimates time remaining at the current speed.
func (p *Progress) ETA() time.Duration {
	speed := p.Speed()
	if speed <= 0 {
		return 0
	}
	remaining := float64(p.totalBytes) - float64(p.bytesDone.Load())
	if remaining <= 0 {
		return 0
	}
	return time.Duration(remaining / speed * float64(time.Second))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalBytes     uint64
	TotalChunks    uint64
	BytesDone      uint64
	ChunksDone     uint64
	DedupSaved     uint64
	CompressSaved  uint64
	NonFatalErrors uint64
}

// Snapshot returns the counters.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		TotalBytes:     p.totalBytes,
		TotalChunks:    p.totalChunks,
		BytesDone:      p.bytesDone.Load(),
		ChunksDone:     p.chunksDone.Load(),
		DedupSaved:     p.dedupSaved.Load(),
		CompressSaved:  p.compressSaved.Load(),
		NonFatalErrors: p.nonFatalErrors.Load(),
	}
}
