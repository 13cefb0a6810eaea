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

// Package compress decides whether chunk data is worth compressing and
// provides the zstd codec used on the wire. Already-compressed formats
// are recognized by extension; everything else is gated on the Shannon
// entropy of a leading sample.
package compress

import (
	"errors"
	"math"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	// MinSize below which compression is never attempted.
	MinSize = 1024

	// EntropyThreshold in bits per byte above which data is treated as
	// already compressed. True random data approaches 8.0.
	EntropyThreshold = 7.5

	// SampleSize bounds the entropy sample.
	SampleSize = 4096
)

// ErrNotWorthIt means the compressed output was not smaller than the
// input; callers should send the original bytes.
var ErrNotWorthIt = errors.New("compression did not shrink the data")

// skippedExtensions lists formats that are already compressed.
var skippedExtensions = map[string]struct{}{
	// Video
	"mp4": {}, "mkv": {}, "avi": {}, "mov": {}, "webm": {}, "m4v": {}, "wmv": {}, "flv": {},
	// Archives
	"zip": {}, "gz": {}, "xz": {}, "zst": {}, "7z": {}, "rar": {}, "bz2": {}, "lz4": {}, "lzma": {}, "tgz": {},
	// Images
	"jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "gif": {}, "heic": {}, "heif": {}, "avif": {},
	// Audio
	"mp3": {}, "aac": {}, "flac": {}, "ogg": {}, "m4a": {}, "opus": {}, "wma": {},
	// Other compressed formats
	"pdf": {}, "docx": {}, "xlsx": {}, "pptx": {}, "epub": {}, "dmg": {}, "iso": {},
}

// Compressor is the smart compression gate plus codec.
type Compressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New creates a compressor. The zstd encoder and decoder are shared and
// concurrency-safe via EncodeAll/DecodeAll.
func New() (*Compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Compressor{enc: enc, dec: dec}, nil
}

// ShouldCompress applies the gate: size floor, extension list, entropy
// sample.
func (c *Compressor) ShouldCompress(filename string, data []byte) bool {
	if len(data) < MinSize {
		return false
	}
	if hasSkippedExtension(filename) {
		return false
	}
	sample := data
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}
	return ShannonEntropy(sample) < EntropyThreshold
}

func hasSkippedExtension(filename string) bool {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return false
	}
	ext := strings.ToLower(filename[i+1:])
	_, ok := skippedExtensions[ext]
	return ok
}

// ShannonEntropy returns the entropy of data in bits per byte (0 to 8).
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]uint64
	for _, b := range data {
		counts[b]++
	}
	total := float64(len(data))
	var entropy float64
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// Compress returns the zstd frame for data, or ErrNotWorthIt when the
// output is not smaller than the input.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	out := c.enc.EncodeAll(data, make([]byte, 0, len(data)))
	if len(out) >= len(data) {
		return nil, ErrNotWorthIt
	}
	return out, nil
}

// Decompress inverts Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	return c.dec.DecodeAll(data, nil)
}
