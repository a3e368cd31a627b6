package world

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTogglePauseIsInvolution(t *testing.T) {
	w := DefaultWorld()
	start := w.Paused
	ReduceIntent(w, IntentTogglePause{})
	ReduceIntent(w, IntentTogglePause{})
	require.Equal(t, start, w.Paused)
}

func TestSetSpeedClamps(t *testing.T) {
	w := DefaultWorld()
	ReduceIntent(w, IntentSetSpeed{X: 50})
	ReduceIntent(w, IntentSetSpeed{X: 3.5})
	require.Equal(t, 3.5, w.Speed)

	ReduceIntent(w, IntentSetSpeed{X: -1})
	require.Equal(t, 0.1, w.Speed)

	ReduceIntent(w, IntentSetSpeed{X: 999})
	require.Equal(t, 10.0, w.Speed)
}

// TestReducerPurity is §8 property 4: replaying the same intent
// sequence from the same initial world twice yields structurally
// equal worlds.
func TestReducerPurity(t *testing.T) {
	sequence := []Intent{
		IntentPumpFrame{},
		IntentSetSpeed{X: 2.0},
		IntentTogglePause{},
		IntentSetInputs{Mask: 0xFF, Joymask: 0x0F},
		IntentLoadRom{RomSpan: Span{SlotIdx: 1, Generation: 0, ByteLength: 32768}},
	}

	run := func() *World {
		w := DefaultWorld()
		for _, it := range sequence {
			ReduceIntent(w, it)
		}
		return w
	}

	a := run()
	b := run()
	require.Equal(t, a, b)
}

// TestPumpFrameEmitsDisplayTick is scenario S1's intent-reduction step.
func TestPumpFrameEmitsDisplayTick(t *testing.T) {
	w := DefaultWorld()
	w.RomLoaded = true
	cmds := ReduceIntent(w, IntentPumpFrame{})
	require.Len(t, cmds, 1)
	tick, ok := cmds[0].(KernelTick)
	require.True(t, ok)
	require.Equal(t, uint32(0), tick.Group)
	require.Equal(t, uint32(70224), tick.Budget)
	require.Equal(t, PurposeDisplay, tick.Purpose)
	require.Equal(t, PolicyCoalesce, DefaultPolicy(tick, w.DisplayLane))
}

func TestAutoPumpDefersNextFrame(t *testing.T) {
	w := DefaultWorld()
	_, deferred := ReduceReport(w, KernelTickDone{Group: 0, FrameID: 1})
	require.Equal(t, uint64(1), w.FrameID)
	require.Len(t, deferred, 1)
	require.Equal(t, P1, deferred[0].Priority)
	_, ok := deferred[0].Intent.(IntentPumpFrame)
	require.True(t, ok)
}

func TestLaneFrameEmitsUploadCommand(t *testing.T) {
	w := DefaultWorld()
	span := Span{SlotIdx: 0, Generation: 0, ByteLength: 160 * 144 * 4}
	immediate, _ := ReduceReport(w, KernelLaneFrame{Lane: 0, Span: span, FrameID: 1})
	require.Len(t, immediate, 1)
	upload, ok := immediate[0].(GpuUploadFrame)
	require.True(t, ok)
	require.Equal(t, span, upload.Span)
	require.Equal(t, PolicyMust, DefaultPolicy(upload, w.DisplayLane))
}
