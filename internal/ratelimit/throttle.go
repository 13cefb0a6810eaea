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
	"context"
	"io"
	"sync"
	"time"
)

// Throttle admits units of work at a bounded rate.
type Throttle interface {
	// Capacity is the largest request Wait accepts.
	Capacity() uint64

	// Wait blocks until tokens may proceed or ctx is done.
	Wait(ctx context.Context, tokens uint64) error
}

type systemTimeThrottle struct {
	mu     sync.Mutex
	bucket *TokenBucket
	start  time.Time
}

// NewThrottle creates a Throttle over the system clock admitting rateHz
// tokens per second with the given burst capacity.
func NewThrottle(rateHz float64, capacity uint64) Throttle {
	return &systemTimeThrottle{
		bucket: NewTokenBucket(rateHz, capacity),
		start:  time.Now(),
	}
}

func (t *systemTimeThrottle) Capacity() uint64 {
	return t.bucket.Capacity()
}

func (t *systemTimeThrottle) Wait(ctx context.Context, tokens uint64) error {
	t.mu.Lock()
	now := time.Since(t.start)
	sleepUntil := t.bucket.Remove(now, tokens)
	t.mu.Unlock()

	d := sleepUntil - now
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type throttledReader struct {
	ctx      context.Context
	wrapped  io.Reader
	throttle Throttle
}

// ThrottledReader wraps r so reads proceed at the throttle's rate. Reads
// larger than the throttle capacity are truncated.
func ThrottledReader(ctx context.Context, r io.Reader, throttle Throttle) io.Reader {
	return &throttledReader{ctx: ctx, wrapped: r, throttle: throttle}
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	if uint64(len(p)) > tr.throttle.Capacity() {
		p = p[:tr.throttle.Capacity()]
	}
	if err := tr.throttle.Wait(tr.ctx, uint64(len(p))); err != nil {
		return 0, err
	}
	return tr.wrapped.Read(p)
}
