package util

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_bufferSerialize(t *testing.T) {
	serial := NewBufferSerialize()
	require.NoError(t, Write[uint64](42, serial))
	require.NoError(t, Write[bool](true, serial))
	require.NoError(t, WriteString("abc", serial))
	require.NoError(t, WriteBytes(nil, serial))

	deserial := NewBufferDeserialize(serial.Bytes())
	var u uint64
	var b bool
	require.NoError(t, Read[uint64](&u, deserial))
	require.NoError(t, Read[bool](&b, deserial))
	s, err := ReadString(deserial)
	require.NoError(t, err)
	empty, err := ReadBytes(deserial)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), u)
	assert.True(t, b)
	assert.Equal(t, "abc", s)
	assert.Empty(t, empty)
	assert.Equal(t, 0, deserial.Remaining())

	err = Read[uint64](&u, deserial)
	assert.ErrorIs(t, err, io.EOF)
}

func Test_bufferDeserializeShort(t *testing.T) {
	deserial := NewBufferDeserialize([]byte{1, 2, 3})
	var u uint64
	err := Read[uint64](&u, deserial)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func Test_readerSerialize(t *testing.T) {
	buf := &bytes.Buffer{}
	serial := NewWriterSerialize(buf)
	require.NoError(t, Write[int32](-7, serial))
	require.NoError(t, WriteString("xyz", serial))

	deserial := NewReaderDeserialize(bytes.NewReader(buf.Bytes()))
	var v int32
	require.NoError(t, Read[int32](&v, deserial))
	s, err := ReadString(deserial)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), v)
	assert.Equal(t, "xyz", s)
}

func Test_fileSerialize(t *testing.T) {
	name := filepath.Join(t.TempDir(), "state.bin")
	serial, err := NewFileSerialize(name)
	require.NoError(t, err)
	require.NoError(t, Write[float64](1.5, serial))
	require.NoError(t, serial.Close())

	deserial, err := NewFileDeserialize(name)
	require.NoError(t, err)
	defer deserial.Close()
	var f float64
	require.NoError(t, Read[float64](&f, deserial))
	assert.Equal(t, 1.5, f)
	assert.Error(t, Read[float64](&f, deserial))
}

func Test_readHugeLength(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff, 'a', 'b'}
	_, err := ReadBytes(NewBufferDeserialize(data))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "exceeds 2 remaining bytes")

	_, err = ReadString(NewReaderDeserialize(bytes.NewReader(data)))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	deserial := NewBufferDeserialize(data[4:])
	assert.NoError(t, CheckLength(deserial, 2, 1))
	assert.Error(t, CheckLength(deserial, 1, 8))

	//longer than one read chunk
	big := bytes.Repeat([]byte{7}, MaxReadChunk+3)
	serial := NewBufferSerialize()
	require.NoError(t, WriteBytes(big, serial))
	got, err := ReadBytes(NewReaderDeserialize(bytes.NewReader(serial.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, big, got)
}
