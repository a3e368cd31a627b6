// Package endpoint bundles a service's ports into the typed handle
// described in spec.md §4.6: command ports (one per policy class), a
// reply port, optional slot pools, and the adapter that routes a typed
// command to the right one and maps port results to a SubmitOutcome.
package endpoint

import (
	"encoding/binary"
	"fmt"

	"github.com/nmxmxh/gbxfabric/internal/ports"
	"github.com/nmxmxh/gbxfabric/internal/world"
)

// Tag assignments from spec.md §6. ver starts at 1 per tag; a schema
// change bumps ver and requires new golden fixtures.
const (
	TagKernelCmd byte = 0x01
	TagFsCmd     byte = 0x02
	TagGpuCmd    byte = 0x03
	TagAudioCmd  byte = 0x04
	TagKernelRep byte = 0x11
	TagFsRep     byte = 0x12
	TagGpuRep    byte = 0x13
	TagAudioRep  byte = 0x14
)

const CurrentVer byte = 1

// Subtype occupies the low byte of the record's flags field, since the
// spec's tag vocabulary is coarser (one tag per service-direction) than
// the number of command/report variants a service emits.
const (
	subKernelTick = iota + 1
	subKernelLoadRom
	subKernelSetInputs
	subKernelTerminate
)

const subFsPersist = 1
const subGpuUploadFrame = 1
const subAudioSubmit = 1

const (
	subKernelTickDone = iota + 1
	subKernelLaneFrame
	subKernelAudioReady
	subKernelDroppedThumb
)

const subGpuFrameShown = 1
const subAudioUnderrun = 1
const subFsSaved = 1

func putSpan(buf []byte, s world.Span) {
	binary.LittleEndian.PutUint32(buf[0:4], s.SlotIdx)
	binary.LittleEndian.PutUint32(buf[4:8], s.Generation)
	binary.LittleEndian.PutUint32(buf[8:12], s.ByteLength)
}

func getSpan(buf []byte) world.Span {
	return world.Span{
		SlotIdx:    binary.LittleEndian.Uint32(buf[0:4]),
		Generation: binary.LittleEndian.Uint32(buf[4:8]),
		ByteLength: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

// ArchiveWorkCmd serializes a WorkCmd into (tag, ver, flags, payload).
func ArchiveWorkCmd(cmd world.WorkCmd) (tag byte, ver byte, flags uint16, payload []byte, err error) {
	switch c := cmd.(type) {
	case world.KernelTick:
		payload = make([]byte, 9)
		binary.LittleEndian.PutUint32(payload[0:4], c.Group)
		binary.LittleEndian.PutUint32(payload[4:8], c.Budget)
		payload[8] = byte(c.Purpose)
		return TagKernelCmd, CurrentVer, subKernelTick, payload, nil

	case world.KernelLoadRom:
		payload = make([]byte, 16)
		binary.LittleEndian.PutUint32(payload[0:4], c.Group)
		putSpan(payload[4:16], c.RomSpan)
		return TagKernelCmd, CurrentVer, subKernelLoadRom, payload, nil

	case world.KernelSetInputs:
		payload = make([]byte, 12)
		binary.LittleEndian.PutUint32(payload[0:4], c.Group)
		binary.LittleEndian.PutUint32(payload[4:8], c.Mask)
		binary.LittleEndian.PutUint32(payload[8:12], c.Joymask)
		return TagKernelCmd, CurrentVer, subKernelSetInputs, payload, nil

	case world.KernelTerminate:
		payload = make([]byte, 4)
		binary.LittleEndian.PutUint32(payload[0:4], c.Group)
		return TagKernelCmd, CurrentVer, subKernelTerminate, payload, nil

	case world.FsPersist:
		pathBytes := []byte(c.Path)
		payload = make([]byte, 1+12+2+len(pathBytes))
		if c.Manual {
			payload[0] = 1
		}
		putSpan(payload[1:13], c.Span)
		binary.LittleEndian.PutUint16(payload[13:15], uint16(len(pathBytes)))
		copy(payload[15:], pathBytes)
		return TagFsCmd, CurrentVer, subFsPersist, payload, nil

	default:
		return 0, 0, 0, nil, fmt.Errorf("endpoint: unknown WorkCmd %T", cmd)
	}
}

// DearchiveWorkCmd reverses ArchiveWorkCmd. An unrecognized ver returns
// ports.ErrSchemaSkew so the caller can drop-and-count rather than
// panic, per spec.md §7.
func DearchiveWorkCmd(tag, ver byte, flags uint16, payload []byte) (world.WorkCmd, error) {
	if ver != CurrentVer {
		return nil, ports.ErrSchemaSkew
	}
	switch tag {
	case TagKernelCmd:
		switch flags {
		case subKernelTick:
			return world.KernelTick{
				Group:   binary.LittleEndian.Uint32(payload[0:4]),
				Budget:  binary.LittleEndian.Uint32(payload[4:8]),
				Purpose: world.Purpose(payload[8]),
			}, nil
		case subKernelLoadRom:
			return world.KernelLoadRom{
				Group:   binary.LittleEndian.Uint32(payload[0:4]),
				RomSpan: getSpan(payload[4:16]),
			}, nil
		case subKernelSetInputs:
			return world.KernelSetInputs{
				Group:   binary.LittleEndian.Uint32(payload[0:4]),
				Mask:    binary.LittleEndian.Uint32(payload[4:8]),
				Joymask: binary.LittleEndian.Uint32(payload[8:12]),
			}, nil
		case subKernelTerminate:
			return world.KernelTerminate{Group: binary.LittleEndian.Uint32(payload[0:4])}, nil
		}
	case TagFsCmd:
		if flags == subFsPersist {
			manual := payload[0] != 0
			span := getSpan(payload[1:13])
			pathLen := binary.LittleEndian.Uint16(payload[13:15])
			path := string(payload[15 : 15+pathLen])
			return world.FsPersist{Path: path, Manual: manual, Span: span}, nil
		}
	}
	return nil, fmt.Errorf("endpoint: unknown command tag=%d flags=%d", tag, flags)
}

// ArchiveAvCmd serializes an AvCmd into (tag, ver, flags, payload).
func ArchiveAvCmd(cmd world.AvCmd) (tag byte, ver byte, flags uint16, payload []byte, err error) {
	switch c := cmd.(type) {
	case world.GpuUploadFrame:
		payload = make([]byte, 16)
		binary.LittleEndian.PutUint32(payload[0:4], c.Lane)
		putSpan(payload[4:16], c.Span)
		return TagGpuCmd, CurrentVer, subGpuUploadFrame, payload, nil
	case world.AudioSubmit:
		payload = make([]byte, 12)
		putSpan(payload[0:12], c.Span)
		return TagAudioCmd, CurrentVer, subAudioSubmit, payload, nil
	default:
		return 0, 0, 0, nil, fmt.Errorf("endpoint: unknown AvCmd %T", cmd)
	}
}

func DearchiveAvCmd(tag, ver byte, flags uint16, payload []byte) (world.AvCmd, error) {
	if ver != CurrentVer {
		return nil, ports.ErrSchemaSkew
	}
	switch tag {
	case TagGpuCmd:
		if flags == subGpuUploadFrame {
			return world.GpuUploadFrame{
				Lane: binary.LittleEndian.Uint32(payload[0:4]),
				Span: getSpan(payload[4:16]),
			}, nil
		}
	case TagAudioCmd:
		if flags == subAudioSubmit {
			return world.AudioSubmit{Span: getSpan(payload[0:12])}, nil
		}
	}
	return nil, fmt.Errorf("endpoint: unknown av command tag=%d flags=%d", tag, flags)
}

// ArchiveReport serializes a Report into (tag, ver, flags, payload).
func ArchiveReport(rep world.Report) (tag byte, ver byte, flags uint16, payload []byte, err error) {
	switch r := rep.(type) {
	case world.KernelTickDone:
		payload = make([]byte, 12)
		binary.LittleEndian.PutUint32(payload[0:4], r.Group)
		binary.LittleEndian.PutUint64(payload[4:12], r.FrameID)
		return TagKernelRep, CurrentVer, subKernelTickDone, payload, nil
	case world.KernelLaneFrame:
		payload = make([]byte, 24)
		binary.LittleEndian.PutUint32(payload[0:4], r.Lane)
		putSpan(payload[4:16], r.Span)
		binary.LittleEndian.PutUint64(payload[16:24], r.FrameID)
		return TagKernelRep, CurrentVer, subKernelLaneFrame, payload, nil
	case world.KernelAudioReady:
		payload = make([]byte, 12)
		putSpan(payload[0:12], r.Span)
		return TagKernelRep, CurrentVer, subKernelAudioReady, payload, nil
	case world.KernelDroppedThumb:
		payload = make([]byte, 4)
		binary.LittleEndian.PutUint32(payload[0:4], r.Lane)
		return TagKernelRep, CurrentVer, subKernelDroppedThumb, payload, nil
	case world.GpuFrameShown:
		payload = make([]byte, 4)
		binary.LittleEndian.PutUint32(payload[0:4], r.Lane)
		return TagGpuRep, CurrentVer, subGpuFrameShown, payload, nil
	case world.AudioUnderrun:
		return TagAudioRep, CurrentVer, subAudioUnderrun, nil, nil
	case world.FsSaved:
		pathBytes := []byte(r.Path)
		payload = make([]byte, 1+2+len(pathBytes))
		if r.Ok {
			payload[0] = 1
		}
		binary.LittleEndian.PutUint16(payload[1:3], uint16(len(pathBytes)))
		copy(payload[3:], pathBytes)
		return TagFsRep, CurrentVer, subFsSaved, payload, nil
	default:
		return 0, 0, 0, nil, fmt.Errorf("endpoint: unknown Report %T", rep)
	}
}

func DearchiveReport(tag, ver byte, flags uint16, payload []byte) (world.Report, error) {
	if ver != CurrentVer {
		return nil, ports.ErrSchemaSkew
	}
	switch tag {
	case TagKernelRep:
		switch flags {
		case subKernelTickDone:
			return world.KernelTickDone{
				Group:   binary.LittleEndian.Uint32(payload[0:4]),
				FrameID: binary.LittleEndian.Uint64(payload[4:12]),
			}, nil
		case subKernelLaneFrame:
			return world.KernelLaneFrame{
				Lane:    binary.LittleEndian.Uint32(payload[0:4]),
				Span:    getSpan(payload[4:16]),
				FrameID: binary.LittleEndian.Uint64(payload[16:24]),
			}, nil
		case subKernelAudioReady:
			return world.KernelAudioReady{Span: getSpan(payload[0:12])}, nil
		case subKernelDroppedThumb:
			return world.KernelDroppedThumb{Lane: binary.LittleEndian.Uint32(payload[0:4])}, nil
		}
	case TagGpuRep:
		if flags == subGpuFrameShown {
			return world.GpuFrameShown{Lane: binary.LittleEndian.Uint32(payload[0:4])}, nil
		}
	case TagAudioRep:
		if flags == subAudioUnderrun {
			return world.AudioUnderrun{}, nil
		}
	case TagFsRep:
		if flags == subFsSaved {
			ok := payload[0] != 0
			pathLen := binary.LittleEndian.Uint16(payload[1:3])
			path := string(payload[3 : 3+pathLen])
			return world.FsSaved{Path: path, Ok: ok}, nil
		}
	}
	return nil, fmt.Errorf("endpoint: unknown report tag=%d flags=%d", tag, flags)
}
