package util

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_cmemset(t *testing.T) {
	buf := make([]byte, 1024)
	CMemset(unsafe.Pointer(&buf[0]), 1, 1024)
	for i := 0; i < 1024; i++ {
		assert.Equal(t, byte(1), buf[i])
	}
	ptr := CMalloc(1024)
	defer CFree(ptr)
	CMemset(ptr, 1, 1024)
	for i := 0; i < 1024; i++ {
		assert.Equal(t,
			byte(1),
			*(*byte)(PointerAdd(ptr, i)))
	}
}

func Test_cgrow(t *testing.T) {
	ptr := CGrow(nil, 0, 16)
	require.NotNil(t, ptr)
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(0), Load2[byte](ptr, i))
	}
	CMemset(ptr, 7, 16)
	ptr = CGrow(ptr, 16, 64)
	defer CFree(ptr)
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(7), Load2[byte](ptr, i))
	}
	for i := 16; i < 64; i++ {
		assert.Equal(t, byte(0), Load2[byte](ptr, i))
	}
}
