package ports

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
)

func newTestMsgRing(t *testing.T, capacity uint32) (*MsgRing, atomicmem.Mem) {
	t.Helper()
	mem := atomicmem.NewNative(1024)
	r, err := InitMsgRing(mem, 0, capacity)
	require.NoError(t, err)
	return r, mem
}

func TestMsgRingRoundTrip(t *testing.T) {
	r, _ := newTestMsgRing(t, 256)
	payload := []byte("hello fabric")

	g, ok, err := r.TryReserve(0x01, 1, 0, uint32(len(payload)))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, g.writeTestPayload(r, payload))
	require.NoError(t, r.Commit(g, uint32(len(payload))))

	rec, state, ok, err := r.Peek()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byte(0x01), rec.Tag)
	require.Equal(t, byte(1), rec.Ver)
	require.Equal(t, payload, rec.Payload)
	require.NoError(t, r.PopAdvance(state))

	_, _, ok, err = r.Peek()
	require.NoError(t, err)
	require.False(t, ok)
}

// writeTestPayload is test-only sugar over the Mem.CopyFrom the real
// adapter would call between TryReserve and Commit.
func (g *Grant) writeTestPayload(r *MsgRing, payload []byte) error {
	return r.mem.CopyFrom(g.PayloadOffset, payload)
}

func TestMsgRingInterleavingNoLossNoDup(t *testing.T) {
	r, _ := newTestMsgRing(t, 512)
	var produced [][]byte
	var consumed [][]byte

	for i := 0; i < 40; i++ {
		payload := []byte{byte(i), byte(i + 1), byte(i + 2)}
		g, ok, err := r.TryReserve(0x01, 1, 0, uint32(len(payload)))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			// Drain one before retrying, matching real producer/consumer
			// interleaving under backpressure.
			rec, state, ok, err := r.Peek()
			require.NoError(t, err)
			require.True(t, ok)
			consumed = append(consumed, rec.Payload)
			require.NoError(t, r.PopAdvance(state))
			g, ok, err = r.TryReserve(0x01, 1, 0, uint32(len(payload)))
			require.NoError(t, err)
			require.True(t, ok)
		}
		require.NoError(t, g.writeTestPayload(r, payload))
		require.NoError(t, r.Commit(g, uint32(len(payload))))
		produced = append(produced, payload)

		if i%3 == 0 {
			rec, state, ok, err := r.Peek()
			require.NoError(t, err)
			if ok {
				consumed = append(consumed, rec.Payload)
				require.NoError(t, r.PopAdvance(state))
			}
		}
	}
	for {
		rec, state, ok, err := r.Peek()
		require.NoError(t, err)
		if !ok {
			break
		}
		consumed = append(consumed, rec.Payload)
		require.NoError(t, r.PopAdvance(state))
	}

	require.Equal(t, len(produced), len(consumed))
	for i := range produced {
		require.Equal(t, produced[i], consumed[i])
	}
}

func TestMsgRingFullReturnsFalse(t *testing.T) {
	r, _ := newTestMsgRing(t, 64)
	var n int
	for {
		g, ok, err := r.TryReserve(0x01, 1, 0, 8)
		require.NoError(t, err)
		if !ok {
			break
		}
		require.NoError(t, g.writeTestPayload(r, make([]byte, 8)))
		require.NoError(t, r.Commit(g, 8))
		n++
		require.Less(t, n, 100)
	}
	require.Greater(t, n, 0)
}

func TestMsgRingDoubleGrantRejected(t *testing.T) {
	r, _ := newTestMsgRing(t, 256)
	_, ok, err := r.TryReserve(0x01, 1, 0, 4)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = r.TryReserve(0x01, 1, 0, 4)
	require.ErrorIs(t, err, ErrDoubleGrant)
}

// TestMsgRingWrapSentinel exercises the scenario from the boundary
// spec: a record that doesn't fit contiguously before the end of the
// buffer is preceded by a wrap sentinel and placed at offset 0. The
// head/tail pair uses tail=40, not 0: TryReserve always keeps at
// least one record-aligned byte of slack between the wrapped head and
// tail, so a wrap landing on (or past) tail is rejected as full rather
// than aliasing an empty ring. With tail=0 there is only 8 bytes of
// real slack in a capacity-64 ring, which cannot hold a 24-byte record
// without that aliasing. See DESIGN.md for the full/empty aliasing
// invariant this encodes.
func TestMsgRingWrapSentinel(t *testing.T) {
	mem := atomicmem.NewNative(1024)
	r, err := InitMsgRing(mem, 0, 64)
	require.NoError(t, err)
	require.NoError(t, mem.Store32(0+hdrHead, 56))
	require.NoError(t, mem.Store32(0+hdrTail, 40))

	g, ok, err := r.TryReserve(0x01, 1, 0, 24)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, g.wroteSentinel)
	require.Equal(t, uint32(56), g.sentinelOffset)

	require.NoError(t, g.writeTestPayload(r, make([]byte, 24)))
	require.NoError(t, r.Commit(g, 24))

	head, err := mem.Load32(0 + hdrHead)
	require.NoError(t, err)
	require.Equal(t, uint32(32), head)
}
