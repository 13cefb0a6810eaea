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

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxMessageSize caps one frame's payload (kind byte + body). Bulk chunks
// of 4 MiB fit with headroom; anything larger is a protocol error.
const MaxMessageSize = 8 * 1024 * 1024

var (
	ErrOversizeFrame = errors.New("frame exceeds maximum message size")
	ErrUnknownKind   = errors.New("unknown message kind")
	ErrEmptyFrame    = errors.New("empty frame")
	errNilMessage    = errors.New("nil message")
)

var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
}

// Checksum is the CRC-32 (IEEE) used for chunk payload integrity checks.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// EncodeMessage serializes m into a frame: 4-byte little-endian length,
// one kind byte, CBOR body.
func EncodeMessage(m Message) ([]byte, error) {
	if m == nil {
		return nil, errNilMessage
	}
	body, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %v message: %w", m.Kind(), err)
	}
	payloadLen := 1 + len(body)
	if payloadLen > MaxMessageSize {
		return nil, ErrOversizeFrame
	}
	frame := make([]byte, 4+payloadLen)
	binary.LittleEndian.PutUint32(frame[:4], uint32(payloadLen))
	frame[4] = byte(m.Kind())
	copy(frame[5:], body)
	return frame, nil
}

// DecodeMessage parses one payload (kind byte + CBOR body) into its typed
// message.
func DecodeMessage(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyFrame
	}
	m := newMessage(Kind(payload[0]))
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, payload[0])
	}
	if err := cbor.Unmarshal(payload[1:], m); err != nil {
		return nil, fmt.Errorf("decoding %v message: %w", Kind(payload[0]), err)
	}
	return m, nil
}

// WriteMessage frames m onto w.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one frame from r. Oversize frames are rejected before
// any payload byte is read.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	payloadLen := binary.LittleEndian.Uint32(lenBuf[:])
	if payloadLen == 0 {
		return nil, ErrEmptyFrame
	}
	if payloadLen > MaxMessageSize {
		return nil, ErrOversizeFrame
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return DecodeMessage(payload)
}
