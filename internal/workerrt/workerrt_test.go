package workerrt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
	"github.com/nmxmxh/gbxfabric/internal/endpoint"
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
			RepsCapacity:       4096,
			FrameSlotSize:      92160,
			FrameSlotCount:     4,
		}},
	}
	f, err := fabric.BuildNative(specs)
	require.NoError(t, err)
	return f
}

func TestKernelEnginePollOnceHandlesTick(t *testing.T) {
	f := demoFabric(t)
	main, err := endpoint.NewMainEndpoint(f, "kernel", false)
	require.NoError(t, err)

	out, err := main.TrySubmit(world.KernelTick{Group: 0, Budget: 70224, Purpose: world.PurposeDisplay}, 0)
	require.NoError(t, err)
	require.Equal(t, endpoint.Accepted, out)

	worker, err := endpoint.OpenWorkerEndpoint(f, "kernel")
	require.NoError(t, err)

	k := NewKernelEngine(worker, f.Mem, 0)
	n, err := k.PollOnce()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	reports, err := main.Drain(10)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	lf, ok := reports[0].(world.KernelLaneFrame)
	require.True(t, ok)
	require.Equal(t, uint32(92160), lf.Span.ByteLength)
}

func TestWorkerRuntimeExitsOnContextCancel(t *testing.T) {
	f := demoFabric(t)
	main, err := endpoint.NewMainEndpoint(f, "kernel", false)
	require.NoError(t, err)
	worker, err := endpoint.OpenWorkerEndpoint(f, "kernel")
	require.NoError(t, err)

	waitable, ok := f.Mem.(atomicmem.Waitable)
	require.True(t, ok)

	k := NewKernelEngine(worker, f.Mem, 0)
	rt := NewWorkerRuntime(waitable, f.GlobalDoorbellOffset, f.ShutdownOffset, []ServiceEngine{k})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	require.NoError(t, f.Mem.Store32(f.GlobalDoorbellOffset, 1))
	_, err = main.TrySubmit(world.KernelTick{Group: 0, Budget: 70224, Purpose: world.PurposeDisplay}, 0)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("worker runtime did not exit after context cancellation")
	}
}
