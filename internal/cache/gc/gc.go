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

// Package gc evicts disk cache entries when usage crosses a high
// watermark, oldest access first, until usage falls below the low
// watermark.
package gc

import (
	"context"
	"time"

	"github.com/wormholefs/wormhole/internal/cache/disk"
	"github.com/wormholefs/wormhole/internal/logger"
)

const (
	DefaultInterval      = 60 * time.Second
	DefaultHighWatermark = 0.90
	DefaultLowWatermark  = 0.70
)

// Collector drives disk cache eviction.
type Collector struct {
	cache    *disk.Cache
	interval time.Duration
	high     float64
	low      float64
}

// New creates a collector. Zero arguments pick the defaults.
func New(cache *disk.Cache, interval time.Duration, high, low float64) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if high <= 0 || high > 1 {
		high = DefaultHighWatermark
	}
	if low <= 0 || low >= high {
		low = DefaultLowWatermark
	}
	return &Collector{cache: cache, interval: interval, high: high, low: low}
}

// Run ticks until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// collect evicts when usage exceeds the high watermark, and sweeps
// orphan files left by earlier runs.
func (c *Collector) collect() {
	c.cache.RemoveOrphans()
	max := c.cache.MaxBytes()
	if max <= 0 {
		return
	}
	total := c.cache.TotalBytes()
	if float64(total) < c.high*float64(max) {
		return
	}
	target := int64(c.low * float64(max))
	freed := c.cache.EvictOldest(target)
	logger.Infof("cache gc: freed %d bytes (usage %d/%d)", freed, c.cache.TotalBytes(), max)
}

// ForceGC evicts down to the low watermark unconditionally.
func (c *Collector) ForceGC() int64 {
	target := int64(c.low * float64(c.cache.MaxBytes()))
	return c.cache.EvictOldest(target)
}

// Stats describes current disk cache occupancy.
type Stats struct {
	CurrentBytes int64
	MaxBytes     int64
	EntryCount   int
	UsagePercent float64
}

// Stats returns the current occupancy snapshot.
func (c *Collector) Stats() Stats {
	total := c.cache.TotalBytes()
	max := c.cache.MaxBytes()
	var pct float64
	if max > 0 {
		pct = 100 * float64(total) / float64(max)
	}
	return Stats{
		CurrentBytes: total,
		MaxBytes:     max,
		EntryCount:   c.cache.EntryCount(),
		UsagePercent: pct,
	}
}
