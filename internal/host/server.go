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

// Package host serves published shares: it accepts connections, runs the
// handshake, dispatches request streams, and enforces path safety, lock
// validation, and session lifetime on every operation.
package host

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wormholefs/wormhole/internal/clock"
	"github.com/wormholefs/wormhole/internal/compress"
	"github.com/wormholefs/wormhole/internal/core"
	"github.com/wormholefs/wormhole/internal/lock"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/ratelimit"
	"github.com/wormholefs/wormhole/internal/transport"
	"github.com/wormholefs/wormhole/internal/wire"
)

// DefaultSessionMax forces re-authentication after this long.
const DefaultSessionMax = 24 * time.Hour

// DefaultListDirLimit pages directory listings that do not set a limit.
const DefaultListDirLimit = 1024

// Config tunes a host server.
type Config struct {
	HostName   string
	Writable   bool
	AllowLocks bool
	SessionMax time.Duration
}

type shareState struct {
	share  core.Share
	inodes *InodeTable
}

// Server owns all serving state for one host process.
type Server struct {
	cfg        Config
	clock      clock.Clock
	locks      *lock.Manager
	limiter    *ratelimit.FailureLimiter
	compressor *compress.Compressor

	mu     sync.RWMutex
	shares map[core.ShareID]*shareState
	order  []core.ShareID
}

// NewServer creates a server with no shares.
func NewServer(cfg Config, clk clock.Clock) *Server {
	if cfg.SessionMax <= 0 {
		cfg.SessionMax = DefaultSessionMax
	}
	compressor, err := compress.New()
	if err != nil {
		// Without a codec, compressed writes are rejected rather than
		// corrupted.
		logger.Errorf("host: initializing codec: %v", err)
		compressor = nil
	}
	return &Server{
		cfg:        cfg,
		clock:      clk,
		locks:      lock.NewManager(clk),
		limiter:    ratelimit.NewFailureLimiter(ratelimit.DefaultFailureLimiterConfig(), clk),
		compressor: compressor,
		shares:     make(map[core.ShareID]*shareState),
	}
}

// AddShare publishes a share.
func (s *Server) AddShare(share core.Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shares[share.ID]; ok {
		return fmt.Errorf("share %v already published", share.ID)
	}
	s.shares[share.ID] = &shareState{share: share, inodes: NewInodeTable(share.Root)}
	s.order = append(s.order, share.ID)
	return nil
}

// Locks exposes the lock manager, for tests and shutdown hooks.
func (s *Server) Locks() *lock.Manager {
	return s.locks
}

// Limiter exposes the failure limiter.
func (s *Server) Limiter() *ratelimit.FailureLimiter {
	return s.limiter
}

// resolveShare maps a wire ShareID to serving state. The zero id selects
// the first published share.
func (s *Server) resolveShare(id core.ShareID) (*shareState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == core.ZeroShareID {
		if len(s.order) == 0 {
			return nil, false
		}
		return s.shares[s.order[0]], true
	}
	st, ok := s.shares[id]
	return st, ok
}

// Serve accepts connections until ctx is done. Blocked IPs are dropped
// before the handshake. A cleanup timer expires stale locks and limiter
// entries.
func (s *Server) Serve(ctx context.Context, l *transport.Listener) error {
	go s.cleanupLoop(ctx)

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		ip := remoteIP(conn.RemoteAddr())
		if !s.limiter.Check(ip) {
			logger.Warnf("host: dropping connection from blocked IP %s", ip)
			_ = conn.CloseWithError(uint64(wire.CodeProtocolError), "rate limited")
			continue
		}
		go s.handleConn(ctx, conn, ip)
	}
}

func (s *Server) cleanupLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(time.Minute):
			s.locks.CleanupExpired()
			s.limiter.CleanupExpired()
		}
	}
}

type session struct {
	id      string
	started time.Time
}

// handleConn runs the handshake, then serves request streams until the
// connection dies or the session expires. All locks held by the session
// are released on the way out.
func (s *Server) handleConn(ctx context.Context, conn *transport.Conn, ip string) {
	// The session wall-clock cap closes the connection regardless of
	// activity; expiry forces the client to reconnect and re-authenticate.
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SessionMax)
	defer cancel()
	defer conn.Close()

	control, err := conn.AcceptStream(ctx)
	if err != nil {
		s.limiter.RecordFailure(ip)
		return
	}

	sess, err := s.handshake(control)
	if err != nil {
		logger.Warnf("host: handshake with %s failed: %v", ip, err)
		s.limiter.RecordFailure(ip)
		// Closing the connection discards unsent stream data, so give the
		// peer a moment to read any Error reply first.
		_ = control.Close()
		select {
		case <-conn.Context().Done():
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		_ = conn.CloseWithError(uint64(wire.CodeProtocolError), err.Error())
		return
	}
	s.limiter.RecordSuccess(ip)
	defer s.locks.ReleaseAllByHolder(sess.id)

	logger.Infof("host: session %s established from %s", sess.id[:8], ip)

	// The control stream keeps answering pings and other requests.
	go s.serveStream(sess, control)

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				logger.Infof("host: session %s expired", sess.id[:8])
				_ = conn.CloseWithError(uint64(wire.CodeSessionExpired), "session expired")
			}
			return
		}
		go s.serveStream(sess, stream)
	}
}

func (s *Server) handshake(control *transport.Stream) (*session, error) {
	msg, err := control.Recv()
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	hello, ok := msg.(*wire.Hello)
	if !ok {
		return nil, fmt.Errorf("expected Hello, got %v", msg.Kind())
	}
	if hello.ProtocolVersion != wire.ProtocolVersion {
		_ = control.Send(&wire.Error{
			Code:    wire.CodeProtocolError,
			Message: fmt.Sprintf("protocol version %d not supported", hello.ProtocolVersion),
		})
		return nil, fmt.Errorf("protocol version mismatch: %d", hello.ProtocolVersion)
	}

	sess := &session{id: uuid.New().String(), started: s.clock.Now()}

	caps := []string{wire.CapRead, wire.CapMultiShare}
	if s.cfg.Writable {
		caps = append(caps, wire.CapWrite)
	}
	if s.cfg.AllowLocks {
		caps = append(caps, wire.CapLock)
	}

	var sid [16]byte
	u := uuid.MustParse(sess.id)
	copy(sid[:], u[:])
	err = control.Send(&wire.HelloAck{
		ProtocolVersion: wire.ProtocolVersion,
		SessionID:       sid,
		RootInode:       core.RootInode,
		HostName:        s.cfg.HostName,
		Capabilities:    caps,
	})
	if err != nil {
		return nil, fmt.Errorf("sending hello ack: %w", err)
	}
	return sess, nil
}

// serveStream answers request/response pairs sequentially until the
// stream closes. Streams are independent; concurrency comes from the
// client opening several.
func (s *Server) serveStream(sess *session, stream *transport.Stream) {
	defer stream.Close()
	for {
		msg, err := stream.Recv()
		if err != nil {
			return
		}
		reply := s.handleRequest(sess, msg)
		if err := stream.Send(reply); err != nil {
			return
		}
	}
}

func remoteIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
