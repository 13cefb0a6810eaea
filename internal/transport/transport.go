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

// Package transport carries wire messages over QUIC: reliable, in-order,
// multiplexed bidirectional streams with certificate pinning and
// NAT-friendly keepalives.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/wormholefs/wormhole/internal/logger"
	"github.com/wormholefs/wormhole/internal/wire"
)

const (
	// ALPN protocol id.
	alpn = "wormhole/1"

	// DefaultKeepalive keeps NAT bindings warm.
	DefaultKeepalive = 25 * time.Second

	// DefaultIdleTimeout closes dead connections.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultMaxStreams bounds concurrent streams per direction.
	DefaultMaxStreams = 128

	// initialPacketSize stays conservative for hostile middleboxes.
	initialPacketSize = 1350
)

// ErrFingerprintMismatch means the host presented a certificate other
// than the pinned one.
var ErrFingerprintMismatch = errors.New("host certificate does not match pinned fingerprint")

// Config tunes a connection. Zero values pick the defaults.
type Config struct {
	Keepalive   time.Duration
	IdleTimeout time.Duration
	MaxStreams  int64
}

func (c Config) withDefaults() Config {
	if c.Keepalive <= 0 {
		c.Keepalive = DefaultKeepalive
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxStreams <= 0 {
		c.MaxStreams = DefaultMaxStreams
	}
	return c
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:    c.Keepalive,
		MaxIdleTimeout:     c.IdleTimeout,
		MaxIncomingStreams: c.MaxStreams,
		InitialPacketSize:  initialPacketSize,
	}
}

// Conn is one peer connection.
type Conn struct {
	qc quic.Connection
}

// Stream carries framed wire messages.
type Stream struct {
	qs quic.Stream
}

// Dial connects to a host and verifies its certificate against the
// pinned fingerprint. With devInsecure set, any certificate is accepted;
// that mode is for development only and is logged loudly.
func Dial(ctx context.Context, addr string, pin Fingerprint, devInsecure bool, cfg Config) (*Conn, error) {
	tlsConf := &tls.Config{
		// Self-signed per-run certificates cannot chain to a CA; identity
		// comes from the fingerprint pin below.
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
	}
	if devInsecure {
		logger.Warnf("transport: certificate pinning DISABLED; do not use outside development")
	} else {
		tlsConf.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return ErrFingerprintMismatch
			}
			if CertFingerprint(rawCerts[0]) != pin {
				return ErrFingerprintMismatch
			}
			return nil
		}
	}

	qc, err := quic.DialAddr(ctx, addr, tlsConf, cfg.withDefaults().quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Conn{qc: qc}, nil
}

// Listener accepts peer connections.
type Listener struct {
	ql *quic.Listener
}

// Listen starts a QUIC listener with the host's certificate.
func Listen(addr string, cert tls.Certificate, cfg Config) (*Listener, error) {
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
	}
	ql, err := quic.ListenAddr(addr, tlsConf, cfg.withDefaults().quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &Listener{ql: ql}, nil
}

// Accept returns the next peer connection.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	qc, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{qc: qc}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ql.Addr()
}

// Close stops accepting.
func (l *Listener) Close() error {
	return l.ql.Close()
}

// OpenStream opens a new bidirectional stream.
func (c *Conn) OpenStream(ctx context.Context) (*Stream, error) {
	qs, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &Stream{qs: qs}, nil
}

// AcceptStream waits for the peer to open a stream.
func (c *Conn) AcceptStream(ctx context.Context) (*Stream, error) {
	qs, err := c.qc.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &Stream{qs: qs}, nil
}

// RemoteAddr returns the peer's address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.qc.RemoteAddr()
}

// Close terminates the connection with an application close.
func (c *Conn) Close() error {
	return c.qc.CloseWithError(0, "closing")
}

// CloseWithError terminates with a reason visible to the peer.
func (c *Conn) CloseWithError(code uint64, msg string) error {
	return c.qc.CloseWithError(quic.ApplicationErrorCode(code), msg)
}

// Context is done when the connection dies.
func (c *Conn) Context() context.Context {
	return c.qc.Context()
}

// Send writes one framed message.
func (s *Stream) Send(m wire.Message) error {
	return wire.WriteMessage(s.qs, m)
}

// Recv reads one framed message.
func (s *Stream) Recv() (wire.Message, error) {
	return wire.ReadMessage(s.qs)
}

// Close flushes and closes the write side.
func (s *Stream) Close() error {
	return s.qs.Close()
}

// Cancel abandons the stream in both directions.
func (s *Stream) Cancel() {
	s.qs.CancelRead(0)
	s.qs.CancelWrite(0)
}
