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
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/wormholefs/wormhole/internal/bufferpool"
	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/compress"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/dedup"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/ratelimit"
	"github.com/wormholefs/wormhole/internal/streampool"
	"github.com/wormholefs/wormhole/internal/wire"
)

// Coordinator orchestrates one file's bulk upload: manifest, dedup
// discovery, then acquire-stream → compress? → send → record → release
// per missing chunk, with the stream pool providing parallelism.
type Coordinator struct {
	Pool       *streampool.Pool
	Dedup      *dedup.Index
	Compressor *compress.Compressor
	Buffers    *bufferpool.Pool
	Clock      clock.Clock

	// Throttle optionally caps upload bandwidth.
	Throttle ratelimit.Throttle

	Share     core.ShareID
	ChunkSize int
	LockToken [16]byte
}

// Transfer pushes the file at path to the host as inode. Per-chunk
// failures are non-fatal and counted in the returned progress; an empty
// missing set sends nothing.
func (c *Coordinator) Transfer(ctx context.Context, path string, inode core.Inode) (*core.FileManifest, *Progress, error) {
	chunkSize := c.ChunkSize
	if chunkSize <= 0 {
		chunkSize = core.BulkChunkSize
	}
	// Wire offsets are expressed in fixed interactive-chunk units, so the
	// transfer tiling must align with them.
	if chunkSize%core.ChunkSize != 0 {
		return nil, nil, fmt.Errorf("bulk chunk size %d is not a multiple of %d", chunkSize, core.ChunkSize)
	}

	manifest, err := BuildManifest(path, inode, chunkSize)
	if err != nil {
		return nil, nil, err
	}

	progress := NewProgress(c.Clock, manifest.TotalSize, uint64(len(manifest.Chunks)))

	missingSet := make(map[core.ContentHash]struct{})
	for _, h := range c.Dedup.FindMissing(ManifestHashes(manifest)) {
		missingSet[h] = struct{}{}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Pool.TargetStreams())

	for _, chunk := range manifest.Chunks {
		if _, missing := missingSet[chunk.Hash]; !missing {
			progress.RecordDedup(chunk.Size)
			c.Dedup.RecordBytesSaved(chunk.Size)
			continue
		}

		g.Go(func() error {
			if err := c.sendChunk(ctx, f, path, inode, chunk, progress); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				// Non-fatal: record and continue with the other chunks.
				logger.Warnf("bulk: chunk at %d of %s failed: %v", chunk.Offset, path, err)
				progress.RecordError()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return manifest, progress, err
	}
	return manifest, progress, nil
}

func (c *Coordinator) sendChunk(ctx context.Context, f *os.File, path string, inode core.Inode, chunk core.ContentChunk, progress *Progress) error {
	lease, err := c.Buffers.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	buf := lease.Bytes()[:chunk.Size]
	if _, err := f.ReadAt(buf, int64(chunk.Offset)); err != nil {
		return fmt.Errorf("reading chunk at %d: %w", chunk.Offset, err)
	}

	payload := buf
	compressed := false
	if c.Compressor != nil && c.Compressor.ShouldCompress(path, buf) {
		packed, err := c.Compressor.Compress(buf)
		switch {
		case err == nil:
			payload = packed
			compressed = true
		case errors.Is(err, compress.ErrNotWorthIt):
			// Send the original bytes.
		default:
			return err
		}
	}

	if c.Throttle != nil {
		if err := c.Throttle.Wait(ctx, uint64(len(payload))); err != nil {
			return err
		}
	}

	handle, err := c.Pool.AcquireOrCreate(ctx)
	if err != nil {
		return err
	}
	defer handle.Release()

	stream := handle.Stream()
	req := &wire.WriteChunk{
		Share: c.Share,
		Inode: inode,
		// The wire offset unit is the fixed interactive chunk size, not
		// this transfer's tiling size.
		ChunkIndex: chunk.Offset / core.ChunkSize,
		Data:       payload,
		Checksum:   wire.Checksum(payload),
		LockToken:  c.LockToken,
		Compressed: compressed,
	}
	if err := stream.Send(req); err != nil {
		handle.MarkDead()
		return err
	}
	reply, err := stream.Recv()
	if err != nil {
		handle.MarkDead()
		return err
	}
	switch m := reply.(type) {
	case *wire.WriteChunkResponse:
	case *wire.Error:
		return fmt.Errorf("host rejected chunk: %s: %s", m.Code, m.Message)
	default:
		handle.MarkDead()
		return fmt.Errorf("unexpected %v reply to WriteChunk", reply.Kind())
	}

	handle.AddBytes(uint64(len(payload)))
	progress.RecordChunk(chunk.Size, uint64(len(payload)))
	c.Dedup.Insert(chunk.Hash, dedup.ChunkLocation{
		Path:   path,
		Offset: chunk.Offset,
		Size:   chunk.Size,
	})
	return nil
}
