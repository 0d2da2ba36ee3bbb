package tagpool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-go/tagpool"
)

func TestAllocFreeNoAlias(t *testing.T) {
	p := tagpool.New()
	seen := make(map[uint32]bool)
	var allocated []uint32
	for i := 0; i < 2000; i++ {
		tag, err := p.AllocRegular()
		require.NoError(t, err)
		require.False(t, seen[tag], "tag %d aliased", tag)
		require.NotZero(t, tag, "matchtag 0 is reserved")
		seen[tag] = true
		allocated = append(allocated, tag)
	}
	for _, tag := range allocated[:1000] {
		p.FreeRegular(tag)
		delete(seen, tag)
	}
	for i := 0; i < 1000; i++ {
		tag, err := p.AllocRegular()
		require.NoError(t, err)
		require.False(t, seen[tag], "reused tag %d aliased", tag)
		seen[tag] = true
	}
}

func TestGroupTagShiftedAndMarked(t *testing.T) {
	p := tagpool.New()
	tag, err := p.AllocGroup()
	require.NoError(t, err)
	require.True(t, tagpool.IsGroup(tag))
	require.NotZero(t, tag)

	regular, err := p.AllocRegular()
	require.NoError(t, err)
	require.False(t, tagpool.IsGroup(regular))
}

func TestGrowCallbackFiresOncePerDoubling(t *testing.T) {
	p := tagpool.New()
	var fires int
	p.SetGrowCB(func(oldSize, newSize uint32, group bool) {
		fires++
		require.Equal(t, oldSize*2, newSize)
	})
	initial := p.Getattr(tagpool.AttrRegularSize)
	for i := uint32(0); i < initial; i++ {
		_, err := p.AllocRegular()
		require.NoError(t, err)
	}
	// bit 0 is reserved, so the last alloc in the loop above already forced
	// one growth; one more alloc must not grow again
	_, err := p.AllocRegular()
	require.NoError(t, err)
	require.Equal(t, 1, fires)
}

func TestAttrs(t *testing.T) {
	p := tagpool.New()
	require.Equal(t, uint32(1024), p.Getattr(tagpool.AttrRegularSize))
	require.Equal(t, uint32(1023), p.Getattr(tagpool.AttrRegularAvail)) // bit 0 reserved
}
