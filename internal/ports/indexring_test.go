package ports

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
)

func TestIndexRingFIFO(t *testing.T) {
	mem := atomicmem.NewNative(256)
	q, err := InitIndexRing(mem, 0, 8)
	require.NoError(t, err)

	for i := uint32(0); i < 5; i++ {
		ok, err := q.TryPush(i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := uint32(0); i < 5; i++ {
		v, ok, err := q.TryPop()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok, err := q.TryPop()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIndexRingFullThenPopThenPush(t *testing.T) {
	mem := atomicmem.NewNative(256)
	q, err := InitIndexRing(mem, 0, 4)
	require.NoError(t, err)

	for i := uint32(0); i < 4; i++ {
		ok, err := q.TryPush(i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := q.TryPush(99)
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := q.TryPop()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0), v)

	ok, err = q.TryPush(100)
	require.NoError(t, err)
	require.True(t, ok)
}
