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

// Package monitor exposes the daemon's Prometheus collectors.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChunkCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wormhole_chunk_cache_lookups_total",
		Help: "Chunk cache lookups by outcome (ram_hit, disk_hit, miss).",
	}, []string{"outcome"})

	ChunkCacheWritebacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wormhole_chunk_cache_writebacks_total",
		Help: "Disk writebacks by outcome (written, dropped).",
	}, []string{"outcome"})

	RateLimiterBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wormhole_rate_limiter_blocks_total",
		Help: "IP blocks imposed by the connection rate limiter.",
	})

	StreamPoolStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wormhole_stream_pool_streams",
		Help: "Transport streams currently owned by the stream pool.",
	})

	StreamPoolBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wormhole_stream_pool_bytes_total",
		Help: "Bytes transferred across pooled streams.",
	})

	DirtyChunks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wormhole_sync_dirty_chunks",
		Help: "Dirty chunks waiting for writeback.",
	})
)
