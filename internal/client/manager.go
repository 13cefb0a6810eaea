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

package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/transport"
)

// HostStatus tracks a managed host's connection state.
type HostStatus int

const (
	HostConnected HostStatus = iota
	HostReconnecting
	HostDisconnected
)

func (s HostStatus) String() string {
	switch s {
	case HostConnected:
		return "connected"
	case HostReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Reconnect backoff bounds.
const (
	reconnectInitialBackoff = time.Second
	reconnectMaxBackoff     = 60 * time.Second
)

// ErrShareIndexExhausted means the 16-bit share index space is used up.
var ErrShareIndexExhausted = errors.New("share index space exhausted")

// ErrUnknownShare means no connected host serves the share.
var ErrUnknownShare = errors.New("unknown share")

// ManagedHost is one host the manager owns.
type ManagedHost struct {
	ID   string
	Addr string
	Pin  transport.Fingerprint

	mu     sync.Mutex
	status HostStatus
	conn   *Connection
	rtt    time.Duration
}

// Status returns the host's connection state.
func (h *ManagedHost) Status() HostStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// RTT returns the last health check round-trip.
func (h *ManagedHost) RTT() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rtt
}

type shareRef struct {
	hostID  string
	shareID core.ShareID
	name    string
	// mountName is the deduplicated name shown in the virtual root.
	mountName string
	writable  bool
}

// Manager owns every host connection of a multi-share mount and the
// 16-bit share index space that global inodes pack.
type Manager struct {
	clientID    [16]byte
	tcfg        transport.Config
	devInsecure bool

	hostsMu sync.Mutex
	hosts   map[string]*ManagedHost

	// nextIndexMu orders index allocation; shareMu guards the mappings.
	// The fixed acquisition order nextIndexMu → shareMu prevents
	// deadlock; the price is one leaked index slot when a registration
	// loses the race with host removal.
	nextIndexMu sync.Mutex
	nextIndex   uint16

	shareMu      sync.Mutex
	byIndex      map[uint16]*shareRef
	indexByShare map[core.ShareID]uint16
}

// NewManager creates an empty connection manager.
func NewManager(tcfg transport.Config, devInsecure bool) *Manager {
	return &Manager{
		clientID:     [16]byte(uuid.New()),
		tcfg:         tcfg,
		devInsecure:  devInsecure,
		hosts:        make(map[string]*ManagedHost),
		nextIndex:    1, // 0 is reserved for the virtual root
		byIndex:      make(map[uint16]*shareRef),
		indexByShare: make(map[core.ShareID]uint16),
	}
}

// AddHost connects to a host and registers each of its shares under a
// fresh share index.
func (m *Manager) AddHost(ctx context.Context, hostID, addr string, pin transport.Fingerprint) error {
	m.hostsMu.Lock()
	if _, ok := m.hosts[hostID]; ok {
		m.hostsMu.Unlock()
		return fmt.Errorf("host %q already added", hostID)
	}
	h := &ManagedHost{ID: hostID, Addr: addr, Pin: pin, status: HostReconnecting}
	m.hosts[hostID] = h
	m.hostsMu.Unlock()

	conn, err := Connect(ctx, addr, pin, m.devInsecure, m.tcfg, m.clientID)
	if err != nil {
		m.RemoveHost(hostID)
		return err
	}

	shares, err := conn.ListShares(ctx)
	if err != nil {
		conn.Close()
		m.RemoveHost(hostID)
		return err
	}

	h.mu.Lock()
	h.conn = conn
	h.status = HostConnected
	h.mu.Unlock()

	for _, sh := range shares {
		if _, err := m.registerShare(hostID, sh.ID, sh.Name, sh.Writable); err != nil {
			logger.Warnf("client: registering share %q of %s: %v", sh.Name, hostID, err)
		}
	}
	return nil
}

// registerShare assigns the next share index and commits the mapping
// atomically with respect to host removal. If the host vanished between
// allocation and commit, the mapping is rolled back; the allocated
// index slot is deliberately leaked (16-bit space, rare race).
func (m *Manager) registerShare(hostID string, shareID core.ShareID, name string, writable bool) (uint16, error) {
	m.nextIndexMu.Lock()
	if m.nextIndex == math.MaxUint16 {
		m.nextIndexMu.Unlock()
		return 0, ErrShareIndexExhausted
	}
	idx := m.nextIndex
	m.nextIndex++
	m.nextIndexMu.Unlock()

	m.shareMu.Lock()
	defer m.shareMu.Unlock()

	m.hostsMu.Lock()
	_, hostAlive := m.hosts[hostID]
	m.hostsMu.Unlock()
	if !hostAlive {
		return 0, fmt.Errorf("host %q removed during share registration", hostID)
	}

	ref := &shareRef{
		hostID:    hostID,
		shareID:   shareID,
		name:      name,
		mountName: m.dedupeMountNameLocked(name),
		writable:  writable,
	}
	m.byIndex[idx] = ref
	m.indexByShare[ref.shareID] = idx
	return idx, nil
}

// dedupeMountNameLocked appends a numeric suffix when the display name
// collides with an already-mounted share.
func (m *Manager) dedupeMountNameLocked(name string) string {
	if name == "" {
		name = "share"
	}
	taken := make(map[string]bool, len(m.byIndex))
	for _, ref := range m.byIndex {
		taken[ref.mountName] = true
	}
	if !taken[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// RemoveHost disconnects a host and unregisters its shares. Index slots
// are not reused.
func (m *Manager) RemoveHost(hostID string) {
	m.hostsMu.Lock()
	h, ok := m.hosts[hostID]
	delete(m.hosts, hostID)
	m.hostsMu.Unlock()

	if ok {
		h.mu.Lock()
		if h.conn != nil {
			h.conn.Close()
			h.conn = nil
		}
		h.status = HostDisconnected
		h.mu.Unlock()
	}

	m.shareMu.Lock()
	for idx, ref := range m.byIndex {
		if ref.hostID == hostID {
			delete(m.byIndex, idx)
			delete(m.indexByShare, ref.shareID)
		}
	}
	m.shareMu.Unlock()
}

// Host returns a managed host by id.
func (m *Manager) Host(hostID string) (*ManagedHost, bool) {
	m.hostsMu.Lock()
	defer m.hostsMu.Unlock()
	h, ok := m.hosts[hostID]
	return h, ok
}

// ConnectionForShare routes a wire share id to its host connection.
func (m *Manager) ConnectionForShare(shareID core.ShareID) (*Connection, error) {
	m.shareMu.Lock()
	idx, ok := m.indexByShare[shareID]
	if !ok {
		m.shareMu.Unlock()
		return nil, ErrUnknownShare
	}
	ref := m.byIndex[idx]
	m.shareMu.Unlock()

	m.hostsMu.Lock()
	h, ok := m.hosts[ref.hostID]
	m.hostsMu.Unlock()
	if !ok {
		return nil, ErrUnknownShare
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return nil, fmt.Errorf("host %q is %v", ref.hostID, h.status)
	}
	return h.conn, nil
}

// ShareByIndex resolves a packed share index.
func (m *Manager) ShareByIndex(idx uint16) (core.ShareID, bool) {
	m.shareMu.Lock()
	defer m.shareMu.Unlock()
	ref, ok := m.byIndex[idx]
	if !ok {
		return core.ShareID{}, false
	}
	return ref.shareID, true
}

// IndexByShareID reverses ShareByIndex.
func (m *Manager) IndexByShareID(id core.ShareID) (uint16, bool) {
	m.shareMu.Lock()
	defer m.shareMu.Unlock()
	idx, ok := m.indexByShare[id]
	return idx, ok
}

// IndexForMountName resolves a virtual root entry name.
func (m *Manager) IndexForMountName(name string) (uint16, bool) {
	m.shareMu.Lock()
	defer m.shareMu.Unlock()
	for idx, ref := range m.byIndex {
		if ref.mountName == name {
			return idx, true
		}
	}
	return 0, false
}

// VirtualRootEntry is one share listed under the virtual root.
type VirtualRootEntry struct {
	Name  string
	Index uint16
}

// VirtualRootEntries lists connected shares as the virtual root's
// directory entries, sorted by mount name.
func (m *Manager) VirtualRootEntries() []VirtualRootEntry {
	m.shareMu.Lock()
	defer m.shareMu.Unlock()

	entries := make([]VirtualRootEntry, 0, len(m.byIndex))
	for idx, ref := range m.byIndex {
		entries = append(entries, VirtualRootEntry{Name: ref.mountName, Index: idx})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Close disconnects every host.
func (m *Manager) Close() {
	m.hostsMu.Lock()
	ids := make([]string, 0, len(m.hosts))
	for id := range m.hosts {
		ids = append(ids, id)
	}
	m.hostsMu.Unlock()
	for _, id := range ids {
		m.RemoveHost(id)
	}
}
