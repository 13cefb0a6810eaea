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

// Package lock implements the host-side file lock manager: shared and
// exclusive locks with TTLs, opaque tokens, and expiry cleanup. An inode
// is never both shared- and exclusive-locked.
package lock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/core"
)

// DefaultTTL applies when a request does not carry one.
const DefaultTTL = 30 * time.Second

// Kind of lock.
type Kind int

const (
	Shared Kind = iota
	Exclusive
)

func (k Kind) String() string {
	if k == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Token proves possession of a hold. Tokens are unique across time.
type Token [16]byte

// NewToken mints a cryptographically random token.
func NewToken() Token {
	return Token(uuid.New())
}

func (t Token) String() string {
	return fmt.Sprintf("%x", t[:4])
}

// Hold is one entry in a lock's holder set.
type Hold struct {
	Token      Token
	HolderID   string
	Kind       Kind
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// ConflictError reports who is in the way and when to retry.
type ConflictError struct {
	HolderID   string
	Exclusive  bool
	RetryAfter time.Duration
}

func (e *ConflictError) Error() string {
	kind := "shared"
	if e.Exclusive {
		kind = "exclusive"
	}
	return fmt.Sprintf("inode is %s-locked by %s, retry in %v", kind, e.HolderID, e.RetryAfter)
}

// ErrTokenNotFound means the token matches no live hold.
var ErrTokenNotFound = errors.New("lock token not found")

// Manager owns all lock state for a host.
type Manager struct {
	mu      sync.Mutex
	clock   clock.Clock
	byInode map[core.Inode][]*Hold
	byToken map[Token]core.Inode
}

// NewManager creates an empty lock manager.
func NewManager(clk clock.Clock) *Manager {
	return &Manager{
		clock:   clk,
		byInode: make(map[core.Inode][]*Hold),
		byToken: make(map[Token]core.Inode),
	}
}

// Acquire takes a lock of the requested kind. Expired holders on the
// inode are cleaned first. On conflict the returned error is a
// *ConflictError carrying the blocking holder and a retry hint.
func (m *Manager) Acquire(inode core.Inode, kind Kind, holder string, ttl time.Duration) (*Hold, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.dropExpiredLocked(inode, now)

	holds := m.byInode[inode]
	if len(holds) > 0 {
		if holds[0].Kind == Exclusive {
			return nil, &ConflictError{
				HolderID:   holds[0].HolderID,
				Exclusive:  true,
				RetryAfter: holds[0].ExpiresAt.Sub(now),
			}
		}
		if kind == Exclusive {
			// Any shared holder blocks; report the soonest to expire.
			soonest := holds[0]
			for _, h := range holds[1:] {
				if h.ExpiresAt.Before(soonest.ExpiresAt) {
					soonest = h
				}
			}
			return nil, &ConflictError{
				HolderID:   soonest.HolderID,
				Exclusive:  false,
				RetryAfter: soonest.ExpiresAt.Sub(now),
			}
		}
	}

	h := &Hold{
		Token:      NewToken(),
		HolderID:   holder,
		Kind:       kind,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	m.byInode[inode] = append(holds, h)
	m.byToken[h.Token] = inode
	return h, nil
}

// Release drops the hold carrying token.
func (m *Manager) Release(token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inode, ok := m.byToken[token]
	if !ok {
		return ErrTokenNotFound
	}
	m.removeHoldLocked(inode, token)
	return nil
}

// Renew extends the hold's expiry to now + ttl and returns the new
// deadline.
func (m *Manager) Renew(token Token, ttl time.Duration) (time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	inode, ok := m.byToken[token]
	if !ok {
		return time.Time{}, ErrTokenNotFound
	}
	for _, h := range m.byInode[inode] {
		if h.Token == token {
			h.ExpiresAt = m.clock.Now().Add(ttl)
			return h.ExpiresAt, nil
		}
	}
	// byToken said the hold exists; state is inconsistent.
	delete(m.byToken, token)
	return time.Time{}, ErrTokenNotFound
}

// Validate reports whether token authorizes the required kind on inode.
// An exclusive hold satisfies a shared requirement; a shared hold does
// not satisfy an exclusive one. Expired holds never validate.
func (m *Manager) Validate(inode core.Inode, token Token, required Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range m.byInode[inode] {
		if h.Token != token {
			continue
		}
		if m.clock.Now().After(h.ExpiresAt) {
			return false
		}
		if required == Exclusive {
			return h.Kind == Exclusive
		}
		return true
	}
	return false
}

// Status describes an inode's lock state.
type Status struct {
	Locked    bool
	Exclusive bool
	Holders   []Hold
}

// Status returns a snapshot of an inode's live holds.
func (m *Manager) Status(inode core.Inode) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropExpiredLocked(inode, m.clock.Now())
	holds := m.byInode[inode]
	if len(holds) == 0 {
		return Status{}
	}
	s := Status{Locked: true, Exclusive: holds[0].Kind == Exclusive}
	for _, h := range holds {
		s.Holders = append(s.Holders, *h)
	}
	return s
}

// CleanupExpired drops every expired hold. Idempotent; safe on a timer.
func (m *Manager) CleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for inode := range m.byInode {
		m.dropExpiredLocked(inode, now)
	}
}

// ReleaseAllByHolder drops every lock carrying the holder id, used when
// a client disconnects.
func (m *Manager) ReleaseAllByHolder(holder string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for inode, holds := range m.byInode {
		var tokens []Token
		for _, h := range holds {
			if h.HolderID == holder {
				tokens = append(tokens, h.Token)
			}
		}
		for _, tok := range tokens {
			m.removeHoldLocked(inode, tok)
		}
	}
}

func (m *Manager) dropExpiredLocked(inode core.Inode, now time.Time) {
	holds := m.byInode[inode]
	if len(holds) == 0 {
		return
	}
	kept := holds[:0]
	for _, h := range holds {
		if now.After(h.ExpiresAt) {
			delete(m.byToken, h.Token)
			continue
		}
		kept = append(kept, h)
	}
	if len(kept) == 0 {
		delete(m.byInode, inode)
		return
	}
	m.byInode[inode] = kept
}

func (m *Manager) removeHoldLocked(inode core.Inode, token Token) {
	holds := m.byInode[inode]
	kept := holds[:0]
	for _, h := range holds {
		if h.Token == token {
			delete(m.byToken, token)
			continue
		}
		kept = append(kept, h)
	}
	if len(kept) == 0 {
		delete(m.byInode, inode)
		return
	}
	m.byInode[inode] = kept
}
