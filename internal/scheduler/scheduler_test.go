package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/gbxfabric/internal/endpoint"
	"github.com/nmxmxh/gbxfabric/internal/fabric"
	"github.com/nmxmxh/gbxfabric/internal/world"
)

func demoSchedulerFabric(t *testing.T) *fabric.Fabric {
	t.Helper()
	specs := []fabric.ServiceSpec{
		{Name: "kernel", Spec: fabric.PortSpec{
			LosslessCapacity: 64, CoalesceCapacity: 64, BestEffortCapacity: 64, RepsCapacity: 2048,
			FrameSlotSize: 92160, FrameSlotCount: 2,
		}},
		{Name: "gpu", Spec: fabric.PortSpec{LosslessCapacity: 64, RepsCapacity: 256}},
		{Name: "audio", Spec: fabric.PortSpec{LosslessCapacity: 32, RepsCapacity: 256}},
		{Name: "fs", Spec: fabric.PortSpec{LosslessCapacity: 32, CoalesceCapacity: 32, RepsCapacity: 256}},
	}
	f, err := fabric.BuildNative(specs)
	require.NoError(t, err)
	return f
}

func newDemoScheduler(t *testing.T) (*Scheduler, map[string]*endpoint.Endpoint) {
	t.Helper()
	f := demoSchedulerFabric(t)
	eps := map[string]*endpoint.Endpoint{}
	for _, name := range []string{"kernel", "gpu", "audio", "fs"} {
		ep, err := endpoint.NewMainEndpoint(f, name, false)
		require.NoError(t, err)
		eps[name] = ep
	}
	w := world.DefaultWorld()
	w.RomLoaded = true
	return New(w, NewHub(eps)), eps
}

func TestTickEnqueuesCoalescedDisplayTick(t *testing.T) {
	s, eps := newDemoScheduler(t)
	require.True(t, s.Tick())

	rec, ok, err := eps["kernel"].Coalesce.Take()
	require.NoError(t, err)
	require.True(t, ok)
	cmd, err := endpoint.DearchiveWorkCmd(rec.Tag, rec.Ver, rec.Flags, rec.Payload)
	require.NoError(t, err)
	tick, ok := cmd.(world.KernelTick)
	require.True(t, ok)
	require.Equal(t, uint32(70224), tick.Budget)
	require.Equal(t, world.PurposeDisplay, tick.Purpose)
}

func TestLosslessRequeueOnWouldBlock(t *testing.T) {
	s, eps := newDemoScheduler(t)

	// Fill the kernel lossless ring directly so the next Lossless
	// submission the scheduler attempts is guaranteed to WouldBlock.
	for {
		out, err := eps["kernel"].TrySubmit(world.KernelSetInputs{Group: 0, Mask: 1, Joymask: 1}, 0)
		require.NoError(t, err)
		if out == endpoint.WouldBlock {
			break
		}
		require.Equal(t, endpoint.Accepted, out)
	}
	require.False(t, eps["kernel"].IsClosed())

	s.EnqueueIntent(world.P0, world.IntentLoadRom{RomSpan: world.Span{SlotIdx: 0, ByteLength: 32768}})
	require.True(t, s.Tick())

	require.True(t, s.Health.ServicePressure)
	require.Len(t, s.queues[world.P0], 1)
	_, ok := s.queues[world.P0][0].Intent.(world.IntentLoadRom)
	require.True(t, ok, "the LoadRom intent must be requeued at P0 front, not dropped")
}

func TestGpuStallSetsBlockedThenClears(t *testing.T) {
	s, eps := newDemoScheduler(t)

	// Saturate the gpu lossless ring directly so the scheduler's own
	// display upload submission is guaranteed to WouldBlock.
	for {
		g, ok, err := eps["gpu"].Lossless.TryReserve(0x99, 1, 0, 0)
		require.NoError(t, err)
		if !ok {
			break
		}
		require.NoError(t, eps["gpu"].Lossless.Commit(g, 0))
	}

	pushReport(t, eps["kernel"], world.KernelLaneFrame{
		Lane: 0, Span: world.Span{SlotIdx: 0, Generation: 0, ByteLength: 92160}, FrameID: 1,
	})
	require.True(t, s.Tick())
	require.True(t, s.Health.GpuBlocked)
	require.EqualValues(t, gpuStallWindow, s.Health.StallReliefFrames)

	// Drain the ring so the next display submission succeeds: the
	// 24-byte upload record then wraps to offset 0, ahead of tail.
	drained := 0
	for {
		_, state, ok, err := eps["gpu"].Lossless.Peek()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.NoError(t, eps["gpu"].Lossless.PopAdvance(state))
		drained++
	}
	require.Greater(t, drained, 0)

	pushReport(t, eps["kernel"], world.KernelLaneFrame{
		Lane: 0, Span: world.Span{SlotIdx: 1, Generation: 0, ByteLength: 92160}, FrameID: 2,
	})
	require.True(t, s.Tick())
	require.False(t, s.Health.GpuBlocked)
	require.EqualValues(t, gpuStallWindow-1, s.Health.StallReliefFrames)
}
