package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func Test_arenaPacked(t *testing.T) {
	arena := NewArena(64, false)
	defer arena.Close()
	p1 := arena.Alloc(3)
	p2 := arena.Alloc(5)
	assert.Equal(t, int64(3), PointerSub(p2, p1))
	assert.Equal(t, 8, arena.Allocated())
}

func Test_arenaAligned(t *testing.T) {
	arena := NewArena(64, false)
	defer arena.Close()
	arena.Alloc(3)
	p := arena.AllocAligned(8, 8)
	assert.True(t, PointerAligned(p, 8))
	p = arena.AllocAligned(16, 16)
	assert.True(t, PointerAligned(p, 16))
}

func Test_arenaGrow(t *testing.T) {
	arena := NewArena(32, false)
	defer arena.Close()
	for i := 0; i < 100; i++ {
		p := arena.AllocAligned(24, 8)
		require.NotNil(t, p)
		CMemset(p, byte(i), 24)
	}
	big := arena.Alloc(1000)
	require.NotNil(t, big)
	CMemset(big, 1, 1000)
	assert.GreaterOrEqual(t, arena.Reserved(), 100*24+1000)
	arena.Close()
	assert.Equal(t, 0, arena.Allocated())
	assert.Equal(t, 0, arena.Reserved())
}

func Test_arenaOwner(t *testing.T) {
	arena := NewArena(64, true)
	defer arena.Close()
	arena.Alloc(8)

	wg := errgroup.Group{}
	wg.Go(func() error {
		assert.Panics(t, func() {
			arena.Alloc(8)
		})
		return nil
	})
	require.NoError(t, wg.Wait())

	arena.Handoff()
	wg.Go(func() error {
		assert.NotPanics(t, func() {
			arena.Alloc(8)
		})
		return nil
	})
	require.NoError(t, wg.Wait())
}
