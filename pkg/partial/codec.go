// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package partial

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecS2
	CodecSnappy
	CodecLz4
	codecCount
)

var codecNames = []string{
	CodecNone:   "none",
	CodecZstd:   "zstd",
	CodecS2:     "s2",
	CodecSnappy: "snappy",
	CodecLz4:    "lz4",
}

func (c Codec) String() string {
	if c < codecCount {
		return codecNames[c]
	}
	return "unknown"
}

func ParseCodec(name string) (Codec, error) {
	for i, n := range codecNames {
		if strings.EqualFold(n, name) {
			return Codec(i), nil
		}
	}
	return CodecNone, errors.Newf("partial: unknown codec %q", name)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (r zstdReadCloser) Close() error {
	r.Decoder.Close()
	return nil
}

// compressor wraps w. Closing it flushes the compressed body but does
// not close w.
func (c Codec) compressor(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecNone:
		return nopWriteCloser{w}, nil
	case CodecZstd:
		return zstd.NewWriter(w)
	case CodecS2:
		return s2.NewWriter(w), nil
	case CodecSnappy:
		return snappy.NewBufferedWriter(w), nil
	case CodecLz4:
		return lz4.NewWriter(w), nil
	default:
		return nil, errors.Newf("partial: unknown codec %d", c)
	}
}

func (c Codec) decompressor(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecNone:
		return io.NopCloser(r), nil
	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	case CodecS2:
		return io.NopCloser(s2.NewReader(r)), nil
	case CodecSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case CodecLz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, errors.Newf("partial: unknown codec %d", c)
	}
}
