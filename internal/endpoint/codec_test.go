package endpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/gbxfabric/internal/ports"
	"github.com/nmxmxh/gbxfabric/internal/world"
)

func TestArchiveWorkCmdRoundTrip(t *testing.T) {
	span := world.Span{SlotIdx: 3, Generation: 2, ByteLength: 92160}
	cmds := []world.WorkCmd{
		world.KernelTick{Group: 1, Budget: 70224, Purpose: world.PurposeDisplay},
		world.KernelLoadRom{Group: 0, RomSpan: span},
		world.KernelSetInputs{Group: 0, Mask: 0xFF, Joymask: 0x0F},
		world.KernelTerminate{Group: 2},
		world.FsPersist{Path: "save/slot1.sav", Manual: true, Span: span},
	}
	for _, cmd := range cmds {
		tag, ver, flags, payload, err := ArchiveWorkCmd(cmd)
		require.NoError(t, err)
		got, err := DearchiveWorkCmd(tag, ver, flags, payload)
		require.NoError(t, err)
		require.Equal(t, cmd, got)
	}
}

func TestArchiveAvCmdRoundTrip(t *testing.T) {
	span := world.Span{SlotIdx: 1, Generation: 0, ByteLength: 92160}
	cmds := []world.AvCmd{
		world.GpuUploadFrame{Lane: 0, Span: span},
		world.AudioSubmit{Span: span},
	}
	for _, cmd := range cmds {
		tag, ver, flags, payload, err := ArchiveAvCmd(cmd)
		require.NoError(t, err)
		got, err := DearchiveAvCmd(tag, ver, flags, payload)
		require.NoError(t, err)
		require.Equal(t, cmd, got)
	}
}

func TestArchiveReportRoundTrip(t *testing.T) {
	span := world.Span{SlotIdx: 0, Generation: 0, ByteLength: 92160}
	reps := []world.Report{
		world.KernelTickDone{Group: 0, FrameID: 1},
		world.KernelLaneFrame{Lane: 0, Span: span, FrameID: 1},
		world.KernelAudioReady{Span: span},
		world.KernelDroppedThumb{Lane: 1},
		world.GpuFrameShown{Lane: 0},
		world.AudioUnderrun{},
		world.FsSaved{Path: "save/slot1.sav", Ok: true},
	}
	for _, rep := range reps {
		tag, ver, flags, payload, err := ArchiveReport(rep)
		require.NoError(t, err)
		got, err := DearchiveReport(tag, ver, flags, payload)
		require.NoError(t, err)
		require.Equal(t, rep, got)
	}
}

func TestDearchiveSchemaSkew(t *testing.T) {
	_, err := DearchiveWorkCmd(TagKernelCmd, 99, subKernelTick, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0})
	require.ErrorIs(t, err, ports.ErrSchemaSkew)
}
