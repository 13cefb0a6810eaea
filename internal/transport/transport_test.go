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

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wormholefs/wormhole/internal/wire"
)

func TestGenerateCertAndFingerprint(t *testing.T) {
	cert, fp, err := GenerateCert()
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)

	assert.Equal(t, CertFingerprint(cert.Certificate[0]), fp)
	assert.Len(t, fp.String(), 64)
}

func TestParseFingerprint(t *testing.T) {
	_, fp, err := GenerateCert()
	require.NoError(t, err)

	parsed, err := ParseFingerprint(fp.String())
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)

	_, err = ParseFingerprint("zz")
	assert.Error(t, err)
	_, err = ParseFingerprint("abcd")
	assert.Error(t, err)
}

func TestDialWithPinnedCert(t *testing.T) {
	cert, fp, err := GenerateCert()
	require.NoError(t, err)

	l, err := Listen("127.0.0.1:0", cert, Config{})
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := l.Accept(ctx)
		if err == nil {
			accepted <- c
		}
	}()

	client, err := Dial(ctx, l.Addr().String(), fp, false, Config{})
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	// Exchange a message over a stream.
	go func() {
		s, err := server.AcceptStream(ctx)
		if err != nil {
			return
		}
		m, err := s.Recv()
		if err != nil {
			return
		}
		ping := m.(*wire.Ping)
		_ = s.Send(&wire.Pong{Payload: ping.Payload})
	}()

	s, err := client.OpenStream(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Send(&wire.Ping{Payload: []byte("hello")}))

	reply, err := s.Recv()
	require.NoError(t, err)
	pong, ok := reply.(*wire.Pong)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), pong.Payload)
}

func TestDialRejectsWrongFingerprint(t *testing.T) {
	cert, _, err := GenerateCert()
	require.NoError(t, err)

	l, err := Listen("127.0.0.1:0", cert, Config{})
	require.NoError(t, err)
	defer l.Close()

	go func() {
		ctx := context.Background()
		for {
			if _, err := l.Accept(ctx); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wrong Fingerprint
	wrong[0] = 0xff
	_, err = Dial(ctx, l.Addr().String(), wrong, false, Config{})
	assert.Error(t, err)
}

func TestDevInsecureAcceptsAnyCert(t *testing.T) {
	cert, _, err := GenerateCert()
	require.NoError(t, err)

	l, err := Listen("127.0.0.1:0", cert, Config{})
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _, _ = l.Accept(ctx) }()

	var noPin Fingerprint
	client, err := Dial(ctx, l.Addr().String(), noPin, true, Config{})
	require.NoError(t, err)
	client.Close()
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()

	assert.Equal(t, DefaultKeepalive, c.Keepalive)
	assert.Equal(t, DefaultIdleTimeout, c.IdleTimeout)
	assert.Equal(t, int64(DefaultMaxStreams), c.MaxStreams)
}
