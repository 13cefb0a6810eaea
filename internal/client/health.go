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
	"time"

	"github.com/wormholefs/wormhole/internal/logger"
)

// RunHealthChecks pings every connected host on the interval. A failed
// ping drops the connection and starts a reconnection loop with
// exponential backoff (1 s doubling to 60 s, unlimited attempts).
func (m *Manager) RunHealthChecks(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.hostsMu.Lock()
		hosts := make([]*ManagedHost, 0, len(m.hosts))
		for _, h := range m.hosts {
			hosts = append(hosts, h)
		}
		m.hostsMu.Unlock()

		for _, h := range hosts {
			h.mu.Lock()
			conn := h.conn
			status := h.status
			h.mu.Unlock()
			if status != HostConnected || conn == nil {
				continue
			}

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			rtt, err := conn.Ping(pingCtx)
			cancel()
			if err == nil {
				h.mu.Lock()
				h.rtt = rtt
				h.mu.Unlock()
				continue
			}

			logger.Warnf("client: health check for %s failed: %v", h.ID, err)
			h.mu.Lock()
			h.status = HostReconnecting
			h.conn = nil
			h.mu.Unlock()
			conn.Close()

			go m.reconnectLoop(ctx, h)
		}
	}
}

// reconnectLoop retries until connected or the host is removed.
func (m *Manager) reconnectLoop(ctx context.Context, h *ManagedHost) {
	backoff := reconnectInitialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		// Stop if the host was removed meanwhile.
		if _, alive := m.Host(h.ID); !alive {
			return
		}

		conn, err := Connect(ctx, h.Addr, h.Pin, m.devInsecure, m.tcfg, m.clientID)
		if err == nil {
			h.mu.Lock()
			h.conn = conn
			h.status = HostConnected
			h.mu.Unlock()
			logger.Infof("client: reconnected to %s", h.ID)
			return
		}

		logger.Debugf("client: reconnect to %s failed, next attempt in %v: %v", h.ID, backoff, err)
		backoff *= 2
		if backoff > reconnectMaxBackoff {
			backoff = reconnectMaxBackoff
		}
	}
}
