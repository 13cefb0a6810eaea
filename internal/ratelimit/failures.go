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

package ratelimit

import (
	"sync"
	"time"

	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/monitor"
)

const (
	// DefaultMaxFailures before an IP is blocked.
	DefaultMaxFailures = 5

	// DefaultWindow over which failures are counted.
	DefaultWindow = 60 * time.Second

	// DefaultBlockDuration is the first block's length.
	DefaultBlockDuration = 60 * time.Second

	// MaxBlockDuration caps exponential backoff.
	MaxBlockDuration = time.Hour

	// maxBackoffShift caps the doubling exponent.
	maxBackoffShift = 6
)

// FailureLimiterConfig tunes the limiter.
type FailureLimiterConfig struct {
	MaxFailures   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultFailureLimiterConfig returns the production defaults.
func DefaultFailureLimiterConfig() FailureLimiterConfig {
	return FailureLimiterConfig{
		MaxFailures:   DefaultMaxFailures,
		Window:        DefaultWindow,
		BlockDuration: DefaultBlockDuration,
	}
}

type ipEntry struct {
	failures     []time.Time
	blockedUntil time.Time
	blockCount   uint32
}

// FailureLimiter blocks IPs that fail the handshake repeatedly, with
// exponential backoff for repeat offenders. Blocked connections are
// dropped before the protocol handshake.
type FailureLimiter struct {
	mu      sync.Mutex
	cfg     FailureLimiterConfig
	clock   clock.Clock
	entries map[string]*ipEntry
}

// NewFailureLimiter creates a limiter.
func NewFailureLimiter(cfg FailureLimiterConfig, clk clock.Clock) *FailureLimiter {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = DefaultBlockDuration
	}
	return &FailureLimiter{
		cfg:     cfg,
		clock:   clk,
		entries: make(map[string]*ipEntry),
	}
}

// Check reports whether a connection from ip may proceed.
func (l *FailureLimiter) Check(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok {
		return true
	}
	return !l.clock.Now().Before(e.blockedUntil)
}

// RecordFailure notes a failed handshake. Reaching the failure threshold
// inside the window blocks the IP and clears the window; each block
// doubles, capped at MaxBlockDuration.
func (l *FailureLimiter) RecordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{}
		l.entries[ip] = e
	}

	e.failures = append(l.pruneWindow(e.failures, now), now)
	if len(e.failures) < l.cfg.MaxFailures {
		return
	}

	d := l.cfg.BlockDuration << min(e.blockCount, maxBackoffShift)
	if d > MaxBlockDuration {
		d = MaxBlockDuration
	}
	e.blockedUntil = now.Add(d)
	e.blockCount++
	e.failures = nil
	monitor.RateLimiterBlocks.Inc()
}

// RecordSuccess clears the failure window but preserves block history,
// so a later block still doubles.
func (l *FailureLimiter) RecordSuccess(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[ip]; ok {
		e.failures = nil
	}
}

// BlockRemaining returns how long ip stays blocked, zero if it is not.
func (l *FailureLimiter) BlockRemaining(ip string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok {
		return 0
	}
	d := e.blockedUntil.Sub(l.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// CleanupExpired drops IPs whose block has passed and whose window is
// empty. Safe to call from a timer.
func (l *FailureLimiter) CleanupExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for ip, e := range l.entries {
		e.failures = l.pruneWindow(e.failures, now)
		if len(e.failures) == 0 && now.After(e.blockedUntil) {
			delete(l.entries, ip)
		}
	}
}

// TrackedIPs returns how many addresses are currently tracked.
func (l *FailureLimiter) TrackedIPs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *FailureLimiter) pruneWindow(failures []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.cfg.Window)
	kept := failures[:0]
	for _, ts := range failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
