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

package util

import (
	"io"
	"os"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// MaxReadChunk bounds the memory allocated ahead of a read whose
// length prefix cannot be checked against the source size.
const MaxReadChunk = 1 << 16

// Serialize is the sink of binary encodings.
// Fixed size values are written in the host byte order.
type Serialize interface {
	WriteData(buffer []byte, len int) error
	Close() error
}

// Deserialize is the source of binary encodings.
// ReadData fills exactly len bytes or fails.
type Deserialize interface {
	ReadData(buffer []byte, len int) error
	Close() error
}

func Write[T any](value T, serial Serialize) error {
	cnt := int(unsafe.Sizeof(value))
	buf := PointerToSlice[byte](unsafe.Pointer(&value), cnt)
	return serial.WriteData(buf, cnt)
}

func Read[T any](value *T, deserial Deserialize) error {
	cnt := int(unsafe.Sizeof(*value))
	buf := PointerToSlice[byte](unsafe.Pointer(value), cnt)
	return deserial.ReadData(buf, cnt)
}

func WriteString(s string, serial Serialize) error {
	err := Write[uint32](uint32(len(s)), serial)
	if err != nil {
		return err
	}
	if len(s) > 0 {
		return serial.WriteData(UnsafeStringToBytes(s), len(s))
	}
	return nil
}

func ReadString(deserial Deserialize) (string, error) {
	data, err := ReadBytes(deserial)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func WriteBytes(data []byte, serial Serialize) error {
	err := Write[uint32](uint32(len(data)), serial)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		return serial.WriteData(data, len(data))
	}
	return nil
}

func ReadBytes(deserial Deserialize) ([]byte, error) {
	var l uint32
	err := Read[uint32](&l, deserial)
	if err != nil {
		return nil, err
	}
	err = CheckLength(deserial, l, 1)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, min(int(l), MaxReadChunk))
	for rest := int(l); rest > 0; {
		n := min(rest, MaxReadChunk)
		off := len(buf)
		buf = append(buf, make([]byte, n)...)
		err = deserial.ReadData(buf[off:], n)
		if err != nil {
			return nil, err
		}
		rest -= n
	}
	return buf, nil
}

// Sized is implemented by sources that know how many bytes are left.
type Sized interface {
	Remaining() int
}

// CheckLength fails when cnt items of sz bytes are more than the
// remaining data of deserial. Sources that are not Sized always pass.
func CheckLength(deserial Deserialize, cnt uint32, sz int) error {
	sized, ok := deserial.(Sized)
	if !ok {
		return nil
	}
	rest := sized.Remaining()
	if uint64(cnt)*uint64(sz) > uint64(rest) {
		return errors.Wrapf(io.ErrUnexpectedEOF,
			"length %d of %d byte items exceeds %d remaining bytes", cnt, sz, rest)
	}
	return nil
}

var _ Serialize = new(BufferSerialize)

// BufferSerialize collects the encoding in memory.
type BufferSerialize struct {
	buf []byte
}

func NewBufferSerialize() *BufferSerialize {
	return &BufferSerialize{}
}

func (serial *BufferSerialize) WriteData(buffer []byte, len int) error {
	serial.buf = append(serial.buf, buffer[:len]...)
	return nil
}

func (serial *BufferSerialize) Close() error {
	return nil
}

func (serial *BufferSerialize) Bytes() []byte {
	return serial.buf
}

func (serial *BufferSerialize) Reset() {
	serial.buf = serial.buf[:0]
}

var _ Deserialize = new(BufferDeserialize)

type BufferDeserialize struct {
	buf []byte
	off int
}

func NewBufferDeserialize(data []byte) *BufferDeserialize {
	return &BufferDeserialize{buf: data}
}

func (deserial *BufferDeserialize) ReadData(buffer []byte, len int) error {
	if len == 0 {
		return nil
	}
	if deserial.off >= deserial.size() {
		return io.EOF
	}
	if deserial.off+len > deserial.size() {
		deserial.off = deserial.size()
		return io.ErrUnexpectedEOF
	}
	copy(buffer[:len], deserial.buf[deserial.off:deserial.off+len])
	deserial.off += len
	return nil
}

func (deserial *BufferDeserialize) size() int {
	return len(deserial.buf)
}

// Remaining returns the count of unread bytes.
func (deserial *BufferDeserialize) Remaining() int {
	return deserial.size() - deserial.off
}

func (deserial *BufferDeserialize) Close() error {
	return nil
}

var _ Serialize = new(WriterSerialize)

type WriterSerialize struct {
	w io.Writer
}

func NewWriterSerialize(w io.Writer) *WriterSerialize {
	return &WriterSerialize{w: w}
}

func (serial *WriterSerialize) WriteData(buffer []byte, len int) error {
	_, err := serial.w.Write(buffer[:len])
	return err
}

func (serial *WriterSerialize) Close() error {
	if c, ok := serial.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ Deserialize = new(ReaderDeserialize)

type ReaderDeserialize struct {
	r io.Reader
}

func NewReaderDeserialize(r io.Reader) *ReaderDeserialize {
	return &ReaderDeserialize{r: r}
}

func (deserial *ReaderDeserialize) ReadData(buffer []byte, len int) error {
	_, err := io.ReadFull(deserial.r, buffer[:len])
	return err
}

func (deserial *ReaderDeserialize) Close() error {
	if c, ok := deserial.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ Serialize = new(FileSerialize)

type FileSerialize struct {
	file *os.File
}

func (serial *FileSerialize) Close() error {
	_ = serial.file.Sync()
	_ = serial.file.Close()
	return nil
}

func NewFileSerialize(name string) (*FileSerialize, error) {
	var err error
	ret := &FileSerialize{}
	ret.file, err = os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_SYNC, 0775)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (serial *FileSerialize) WriteData(buffer []byte, len int) error {
	var wlen int
	var n int
	var err error
	for wlen < len {
		n, err = serial.file.Write(buffer[wlen:len])
		if err != nil {
			return err
		}
		wlen += n
	}
	return nil
}

var _ Deserialize = new(FileDeserialize)

type FileDeserialize struct {
	file *os.File
}

func NewFileDeserialize(name string) (*FileDeserialize, error) {
	var err error
	ret := &FileDeserialize{}
	ret.file, err = os.OpenFile(name, os.O_RDONLY, 0775)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (deserial *FileDeserialize) ReadData(buffer []byte, len int) error {
	_, err := io.ReadFull(deserial.file, buffer[:len])
	return err
}

func (deserial *FileDeserialize) Close() error {
	_ = deserial.file.Close()
	return nil
}
