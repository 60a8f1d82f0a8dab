package util

import (
	"fmt"
	"unsafe"

	"github.com/petermattis/goid"
	"go.uber.org/zap"
)

const (
	maxArenaChunkSize = 16 * 1024 * 1024
)

type arenaChunk struct {
	ptr  unsafe.Pointer
	size int
	used int
}

// Arena is a bump allocator over C memory.
// Memory is released only by Close. It is not safe for concurrent use;
// with checkOwner set, every allocation asserts it runs on the goroutine
// that made the first allocation.
type Arena struct {
	_chunkSize  int
	_nextSize   int
	_chunks     []arenaChunk
	_allocated  int
	_owner      int64
	_checkOwner bool
}

func NewArena(chunkSize int, checkOwner bool) *Arena {
	if chunkSize <= 0 {
		chunkSize = DefaultArenaChunkSize
	}
	return &Arena{
		_chunkSize:  chunkSize,
		_nextSize:   chunkSize,
		_checkOwner: checkOwner,
	}
}

// Alloc carves sz bytes right after the previous allocation.
func (arena *Arena) Alloc(sz int) unsafe.Pointer {
	return arena.AllocAligned(sz, 1)
}

// AllocAligned carves sz bytes starting at a multiple of align.
func (arena *Arena) AllocAligned(sz int, align int) unsafe.Pointer {
	AssertFunc(sz >= 0)
	if align <= 0 {
		align = 1
	}
	AssertFunc(IsPowerOfTwo(uint64(align)))
	arena.checkOwner()

	if len(arena._chunks) != 0 {
		last := &arena._chunks[len(arena._chunks)-1]
		if ptr := last.carve(sz, align); ptr != nil {
			arena._allocated += sz
			return ptr
		}
	}
	arena.grow(sz + align)
	last := &arena._chunks[len(arena._chunks)-1]
	ptr := last.carve(sz, align)
	AssertFunc(ptr != nil)
	arena._allocated += sz
	return ptr
}

func (chunk *arenaChunk) carve(sz int, align int) unsafe.Pointer {
	start := uintptr(PointerAdd(chunk.ptr, chunk.used))
	pad := int(AlignValue(uint64(start), uint64(align)) - uint64(start))
	if chunk.used+pad+sz > chunk.size {
		return nil
	}
	ret := PointerAdd(chunk.ptr, chunk.used+pad)
	chunk.used += pad + sz
	return ret
}

func (arena *Arena) grow(need int) {
	sz := arena._nextSize
	for sz < need {
		sz *= 2
	}
	ptr := CMalloc(sz)
	if ptr == nil {
		panic(fmt.Sprintf("arena: malloc %d bytes failed", sz))
	}
	arena._chunks = append(arena._chunks, arenaChunk{ptr: ptr, size: sz})
	if arena._nextSize < maxArenaChunkSize {
		arena._nextSize *= 2
	}
	Debug("arena grow",
		zap.Int("chunk", sz),
		zap.Int("chunks", len(arena._chunks)))
}

func (arena *Arena) checkOwner() {
	if !arena._checkOwner {
		return
	}
	gid := goid.Get()
	if arena._owner == 0 {
		arena._owner = gid
		return
	}
	if arena._owner != gid {
		panic(fmt.Sprintf("arena owned by goroutine %d used by %d", arena._owner, gid))
	}
}

// Handoff releases the owner so that another goroutine can allocate.
func (arena *Arena) Handoff() {
	arena._owner = 0
}

// Allocated returns the bytes handed out, padding excluded.
func (arena *Arena) Allocated() int {
	return arena._allocated
}

// Reserved returns the bytes obtained from malloc.
func (arena *Arena) Reserved() int {
	total := 0
	for _, chunk := range arena._chunks {
		total += chunk.size
	}
	return total
}

func (arena *Arena) Close() {
	for _, chunk := range arena._chunks {
		CFree(chunk.ptr)
	}
	arena._chunks = nil
	arena._allocated = 0
	arena._nextSize = arena._chunkSize
	arena._owner = 0
}
