package ports

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
)

// TestMailboxCoalescing is scenario S4: two ticks written back-to-back
// without an intervening take; the worker's single poll observes only
// the latest.
func TestMailboxCoalescing(t *testing.T) {
	mem := atomicmem.NewNative(128)
	mb, err := InitMailbox(mem, 0, 32)
	require.NoError(t, err)

	out1, err := mb.Write(0x01, 1, 0, []byte{0, 0, 0, 0}) // first params
	require.NoError(t, err)
	require.Equal(t, WriteAccepted, out1)

	out2, err := mb.Write(0x01, 1, 0, []byte{1, 1, 1, 1}) // latest params
	require.NoError(t, err)
	require.Equal(t, WriteCoalesced, out2)

	rec, ok, err := mb.Take()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{1, 1, 1, 1}, rec.Payload)

	_, ok, err = mb.Take()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMailboxSeqMonotonic(t *testing.T) {
	mem := atomicmem.NewNative(128)
	mb, err := InitMailbox(mem, 0, 8)
	require.NoError(t, err)

	var lastSeq uint32
	for i := 0; i < 5; i++ {
		_, err := mb.Write(0x01, 1, 0, []byte{byte(i)})
		require.NoError(t, err)
		seq, err := mem.Load32(0)
		require.NoError(t, err)
		require.Greater(t, seq, lastSeq)
		lastSeq = seq
	}
}

func TestMailboxWriteAfterTakeIsAccepted(t *testing.T) {
	mem := atomicmem.NewNative(128)
	mb, err := InitMailbox(mem, 0, 8)
	require.NoError(t, err)

	_, err = mb.Write(0x01, 1, 0, []byte{1})
	require.NoError(t, err)
	_, ok, err := mb.Take()
	require.NoError(t, err)
	require.True(t, ok)

	out, err := mb.Write(0x01, 1, 0, []byte{2})
	require.NoError(t, err)
	require.Equal(t, WriteAccepted, out)
}
