package endpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/gbxfabric/internal/fabric"
	"github.com/nmxmxh/gbxfabric/internal/world"
)

func demoFabric(t *testing.T) *fabric.Fabric {
	t.Helper()
	specs := []fabric.ServiceSpec{
		{Name: "kernel", Spec: fabric.PortSpec{
			LosslessCapacity:   256,
			CoalesceCapacity:   64,
			BestEffortCapacity: 256,
			RepsCapacity:       256,
			FrameSlotSize:      4096,
			FrameSlotCount:     4,
		}},
		{Name: "gpu", Spec: fabric.PortSpec{LosslessCapacity: 256, RepsCapacity: 256}},
	}
	f, err := fabric.BuildNative(specs)
	require.NoError(t, err)
	return f
}

func TestTrySubmitLosslessAccepted(t *testing.T) {
	f := demoFabric(t)
	ep, err := NewMainEndpoint(f, "kernel", false)
	require.NoError(t, err)

	out, err := ep.TrySubmit(world.KernelLoadRom{Group: 0, RomSpan: world.Span{SlotIdx: 0, ByteLength: 32768}}, 0)
	require.NoError(t, err)
	require.Equal(t, Accepted, out)
}

func TestTrySubmitCoalesces(t *testing.T) {
	f := demoFabric(t)
	ep, err := NewMainEndpoint(f, "kernel", false)
	require.NoError(t, err)

	tick := world.KernelTick{Group: 0, Budget: 70224, Purpose: world.PurposeDisplay}
	out1, err := ep.TrySubmit(tick, 0)
	require.NoError(t, err)
	require.Equal(t, Accepted, out1)

	out2, err := ep.TrySubmit(tick, 0)
	require.NoError(t, err)
	require.Equal(t, Coalesced, out2)
}

func TestTrySubmitLosslessWouldBlockDoesNotClose(t *testing.T) {
	f := demoFabric(t)
	ep, err := NewMainEndpoint(f, "kernel", false)
	require.NoError(t, err)

	cmd := world.KernelSetInputs{Group: 0, Mask: 1, Joymask: 1}
	filled := 0
	for {
		out, err := ep.TrySubmit(cmd, 0)
		require.NoError(t, err)
		if out == WouldBlock {
			break
		}
		require.Equal(t, Accepted, out)
		filled++
		require.Less(t, filled, 10000)
	}

	for i := 0; i < 2; i++ {
		out, err := ep.TrySubmit(cmd, 0)
		require.NoError(t, err)
		require.Equal(t, WouldBlock, out)
	}

	// Ring-full backpressure never counts against the breaker, however
	// many WouldBlocks in a row.
	out, err := ep.TrySubmit(cmd, 0)
	require.NoError(t, err)
	require.Equal(t, WouldBlock, out)
	require.False(t, ep.IsClosed())
}

func TestDrainRoundTripsReports(t *testing.T) {
	f := demoFabric(t)
	ep, err := NewMainEndpoint(f, "kernel", false)
	require.NoError(t, err)

	tag, ver, flags, payload, err := ArchiveReport(world.KernelTickDone{Group: 0, FrameID: 7})
	require.NoError(t, err)
	g, ok, err := ep.Reps.TryReserve(tag, ver, flags, uint32(len(payload)))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.Mem.CopyFrom(g.PayloadOffset, payload))
	require.NoError(t, ep.Reps.Commit(g, uint32(len(payload))))

	reports, err := ep.Drain(10)
	require.NoError(t, err)
	require.Equal(t, []world.Report{world.KernelTickDone{Group: 0, FrameID: 7}}, reports)
}

func TestUnknownEndpointErrors(t *testing.T) {
	f := demoFabric(t)
	_, err := NewMainEndpoint(f, "nope", false)
	require.Error(t, err)
}
