package fabric

import (
	"errors"
	"hash/crc32"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
)

// ErrVersionMismatch is returned by OpenFabric when the header's magic
// or abi_version doesn't match this build. Per spec.md §4.10, the
// caller must treat this as a sticky Closed outcome, not retry.
var ErrVersionMismatch = errors.New("fabric: magic or abi_version mismatch")

const ringHeaderAlign = 8

// PortSpec enumerates the ports one service needs and their sizes. A
// zero capacity means the port is not provisioned for that service.
type PortSpec struct {
	LosslessCapacity   uint32 // MsgRing data bytes, power of two
	CoalesceCapacity   uint32 // Mailbox payload bytes
	BestEffortCapacity uint32 // MsgRing data bytes, power of two
	RepsCapacity       uint32 // MsgRing data bytes, power of two

	FrameSlotSize  uint32
	FrameSlotCount uint32

	AudioSlotSize  uint32
	AudioSlotCount uint32
}

// ServiceSpec names one endpoint and the ports it needs.
type ServiceSpec struct {
	Name string
	Spec PortSpec
}

// RegionRef is a resolved region: where it lives, how big it is, and
// its 1-based id in the region directory.
type RegionRef struct {
	ID     uint16
	Kind   RegionKind
	Offset uint32
	Length uint32
	Align  uint32
}

// EndpointLayout is the resolved set of region references for one
// service, handed to both the main-side endpoint constructor and the
// worker-side one, they open the very same offsets.
type EndpointLayout struct {
	Name     string
	NameHash uint32

	Lossless   *RegionRef
	Coalesce   *RegionRef
	BestEffort *RegionRef
	Reps       *RegionRef

	FrameSlots, FrameFree, FrameReady *RegionRef
	AudioSlots, AudioFree, AudioReady *RegionRef

	Doorbells *RegionRef
	Metrics   *RegionRef

	// FrameSlotSize/FrameSlotCount and AudioSlotSize/AudioSlotCount let
	// the endpoint constructor recover each slot array's per-slot size
	// and the offset of its trailing generation-counter table (packed
	// right after the slot data, inside the same SlotArray region)
	// without re-deriving it from raw region length.
	FrameSlotSize, FrameSlotCount uint32
	AudioSlotSize, AudioSlotCount uint32
}

// FrameGenBase is the offset of the frame slot array's generation
// counter table, or 0 if this endpoint has no frame slots.
func (l *EndpointLayout) FrameGenBase() uint32 {
	if l.FrameSlots == nil {
		return 0
	}
	return l.FrameSlots.Offset + l.FrameSlotSize*l.FrameSlotCount
}

// AudioGenBase is the offset of the audio slot array's generation
// counter table, or 0 if this endpoint has no audio slots.
func (l *EndpointLayout) AudioGenBase() uint32 {
	if l.AudioSlots == nil {
		return 0
	}
	return l.AudioSlots.Offset + l.AudioSlotSize*l.AudioSlotCount
}

// Fabric is a built or re-opened fabric image: the backing memory plus
// the resolved directory.
type Fabric struct {
	Mem    atomicmem.Mem
	Header Header

	GlobalDoorbellOffset uint32 // worker runtime's shared park/notify word
	ShutdownOffset       uint32 // main-context-only shutdown flag

	endpoints map[string]*EndpointLayout
}

func (f *Fabric) Endpoint(name string) (*EndpointLayout, bool) {
	e, ok := f.endpoints[name]
	return e, ok
}

func (f *Fabric) EndpointNames() []string {
	names := make([]string, 0, len(f.endpoints))
	for n := range f.endpoints {
		names = append(names, n)
	}
	return names
}

func alignUp(n, align uint32) uint32 {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

func nextPow2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

func ringRegionLen(dataCapacity uint32) uint32 { return 32 + dataCapacity } // header + data
func indexRingLen(capacity uint32) uint32      { return 32 + capacity*4 }

// region is one allocated region, fully resolved: offset, length,
// which endpoint (if any) and which named slot in that endpoint it
// fills.
type region struct {
	endpointIdx int // -1 for the global control region
	slot        int // one of the Port* constants, or -1 for global
	ref         RegionRef
}

// buildLayout walks specs once, computing every region's offset, kind,
// length and alignment deterministically so native and worker sides
// agree without exchanging anything but specs + the header. It is pure
// (no memory access) so both Build and OpenFabric can share it.
func buildLayout(specs []ServiceSpec) (totalSize uint32, regionDirOffset, endpointTableOffset uint32, regions []region, layouts []*EndpointLayout) {
	plannedCount := 1 // global control
	for _, s := range specs {
		plannedCount += 2 // doorbells, metrics
		if s.Spec.LosslessCapacity > 0 {
			plannedCount++
		}
		if s.Spec.CoalesceCapacity > 0 {
			plannedCount++
		}
		if s.Spec.BestEffortCapacity > 0 {
			plannedCount++
		}
		if s.Spec.RepsCapacity > 0 {
			plannedCount++
		}
		if s.Spec.FrameSlotCount > 0 {
			plannedCount += 3
		}
		if s.Spec.AudioSlotCount > 0 {
			plannedCount += 3
		}
	}

	offset := uint32(HeaderSize)
	regionDirOffset = offset
	offset += uint32(plannedCount) * RegionDirEntrySize
	endpointTableOffset = offset
	offset += uint32(len(specs)) * EndpointTableEntrySize

	place := func(endpointIdx, slot int, kind RegionKind, length, align uint32) RegionRef {
		offset = alignUp(offset, align)
		ref := RegionRef{ID: uint16(len(regions) + 1), Kind: kind, Offset: offset, Length: length, Align: align}
		regions = append(regions, region{endpointIdx: endpointIdx, slot: slot, ref: ref})
		offset += length
		return ref
	}

	place(-1, -1, RegionDoorbells, 8, ringHeaderAlign) // global doorbell + shutdown flag

	layouts = make([]*EndpointLayout, len(specs))
	for i, s := range specs {
		l := &EndpointLayout{Name: s.Name, NameHash: crc32.ChecksumIEEE([]byte(s.Name))}
		layouts[i] = l
		spec := s.Spec

		if spec.LosslessCapacity > 0 {
			cap := nextPow2(spec.LosslessCapacity)
			ref := place(i, PortLosslessCmds, RegionMsgRing, ringRegionLen(cap), ringHeaderAlign)
			l.Lossless = &ref
		}
		if spec.CoalesceCapacity > 0 {
			ref := place(i, PortCoalesceCmd, RegionMailbox, 16+spec.CoalesceCapacity, ringHeaderAlign)
			l.Coalesce = &ref
		}
		if spec.BestEffortCapacity > 0 {
			cap := nextPow2(spec.BestEffortCapacity)
			ref := place(i, PortBestEffortCmds, RegionMsgRing, ringRegionLen(cap), ringHeaderAlign)
			l.BestEffort = &ref
		}
		if spec.RepsCapacity > 0 {
			cap := nextPow2(spec.RepsCapacity)
			ref := place(i, PortReps, RegionMsgRing, ringRegionLen(cap), ringHeaderAlign)
			l.Reps = &ref
		}
		if spec.FrameSlotCount > 0 {
			ringCap := nextPow2(spec.FrameSlotCount)
			dataLen := spec.FrameSlotSize * spec.FrameSlotCount
			ref := place(i, PortFrameSlots, RegionSlotArray, dataLen+spec.FrameSlotCount*4, SlotArrayAlign)
			l.FrameSlots = &ref
			l.FrameSlotSize = spec.FrameSlotSize
			l.FrameSlotCount = spec.FrameSlotCount
			freeRef := place(i, PortFrameFreeRing, RegionIndexRing, indexRingLen(ringCap), ringHeaderAlign)
			l.FrameFree = &freeRef
			readyRef := place(i, PortFrameReadyRing, RegionIndexRing, indexRingLen(ringCap), ringHeaderAlign)
			l.FrameReady = &readyRef
		}
		if spec.AudioSlotCount > 0 {
			ringCap := nextPow2(spec.AudioSlotCount)
			dataLen := spec.AudioSlotSize * spec.AudioSlotCount
			ref := place(i, PortAudioSlots, RegionSlotArray, dataLen+spec.AudioSlotCount*4, SlotArrayAlign)
			l.AudioSlots = &ref
			l.AudioSlotSize = spec.AudioSlotSize
			l.AudioSlotCount = spec.AudioSlotCount
			freeRef := place(i, PortAudioFreeRing, RegionIndexRing, indexRingLen(ringCap), ringHeaderAlign)
			l.AudioFree = &freeRef
			readyRef := place(i, PortAudioReadyRing, RegionIndexRing, indexRingLen(ringCap), ringHeaderAlign)
			l.AudioReady = &readyRef
		}

		doorbellsRef := place(i, PortDoorbells, RegionDoorbells, 8, ringHeaderAlign)
		l.Doorbells = &doorbellsRef
		metricsRef := place(i, PortMetrics, RegionMetrics, 5*4, ringHeaderAlign)
		l.Metrics = &metricsRef
	}

	return offset, regionDirOffset, endpointTableOffset, regions, layouts
}

// Build lays out and writes a fresh fabric image into mem, which must
// be at least as large as ComputeSize(specs) reports.
func Build(mem atomicmem.Mem, specs []ServiceSpec) (*Fabric, error) {
	totalSize, regionDirOffset, endpointTableOffset, regions, layouts := buildLayout(specs)
	if mem.Size() < totalSize {
		return nil, atomicmem.ErrOutOfBounds
	}

	hdr := Header{
		Magic:                 Magic,
		ABIVersion:            ABIVersion,
		TotalSize:             totalSize,
		EndpointCount:         uint32(len(specs)),
		RegionCount:           uint32(len(regions)),
		EndpointTableOffset:   endpointTableOffset,
		RegionDirectoryOffset: regionDirOffset,
	}
	hdrBuf := make([]byte, HeaderSize)
	hdr.Encode(hdrBuf)
	if err := mem.CopyFrom(0, hdrBuf); err != nil {
		return nil, err
	}

	for i, r := range regions {
		entry := RegionDirEntry{Kind: r.ref.Kind, Offset: r.ref.Offset, Length: r.ref.Length, Align: r.ref.Align}
		buf := make([]byte, RegionDirEntrySize)
		entry.Encode(buf)
		if err := mem.CopyFrom(regionDirOffset+uint32(i)*RegionDirEntrySize, buf); err != nil {
			return nil, err
		}
		if err := mem.CopyFrom(r.ref.Offset, make([]byte, r.ref.Length)); err != nil {
			return nil, err
		}
	}

	for i, l := range layouts {
		te := EndpointTableEntry{NameHash: l.NameHash}
		fillPortRegionIDs(&te, l)
		buf := make([]byte, EndpointTableEntrySize)
		te.Encode(buf)
		if err := mem.CopyFrom(endpointTableOffset+uint32(i)*EndpointTableEntrySize, buf); err != nil {
			return nil, err
		}
	}

	f := &Fabric{Mem: mem, Header: hdr, endpoints: map[string]*EndpointLayout{}}
	f.GlobalDoorbellOffset = regions[0].ref.Offset
	f.ShutdownOffset = regions[0].ref.Offset + 4
	for _, l := range layouts {
		f.endpoints[l.Name] = l
	}
	return f, nil
}

func fillPortRegionIDs(te *EndpointTableEntry, l *EndpointLayout) {
	set := func(slot int, ref *RegionRef) {
		if ref != nil {
			te.PortRegionIDs[slot] = ref.ID
		}
	}
	set(PortLosslessCmds, l.Lossless)
	set(PortCoalesceCmd, l.Coalesce)
	set(PortBestEffortCmds, l.BestEffort)
	set(PortReps, l.Reps)
	set(PortFrameSlots, l.FrameSlots)
	set(PortFrameFreeRing, l.FrameFree)
	set(PortFrameReadyRing, l.FrameReady)
	set(PortAudioSlots, l.AudioSlots)
	set(PortAudioFreeRing, l.AudioFree)
	set(PortAudioReadyRing, l.AudioReady)
	set(PortDoorbells, l.Doorbells)
	set(PortMetrics, l.Metrics)
}

// ComputeSize reports the total byte size a fabric built from specs
// will require.
func ComputeSize(specs []ServiceSpec) uint32 {
	size, _, _, _, _ := buildLayout(specs)
	return size
}

// BuildNative allocates a Native AtomicMem of the right size and
// builds a fabric over it, for single-process goroutine workers.
func BuildNative(specs []ServiceSpec) (*Fabric, error) {
	size := ComputeSize(specs)
	mem := atomicmem.NewNative(size)
	return Build(mem, specs)
}

// OpenFabric re-derives a Fabric's directory from an already-built
// image, checking the magic/abi_version handshake first. specs must
// be the same specs the fabric was originally built with, a worker is
// always spawned knowing its own service's port shape, so this never
// needs to parse the wire directory to reconstruct typed offsets.
func OpenFabric(mem atomicmem.Mem, specs []ServiceSpec) (*Fabric, error) {
	hdrBuf := make([]byte, HeaderSize)
	if err := mem.CopyTo(0, hdrBuf); err != nil {
		return nil, err
	}
	hdr := DecodeHeader(hdrBuf)
	if hdr.Magic != Magic || hdr.ABIVersion != ABIVersion {
		return nil, ErrVersionMismatch
	}

	totalSize, _, _, regions, layouts := buildLayout(specs)
	if hdr.TotalSize != totalSize {
		return nil, ErrVersionMismatch
	}

	f := &Fabric{Mem: mem, Header: hdr, endpoints: map[string]*EndpointLayout{}}
	f.GlobalDoorbellOffset = regions[0].ref.Offset
	f.ShutdownOffset = regions[0].ref.Offset + 4
	for _, l := range layouts {
		f.endpoints[l.Name] = l
	}
	return f, nil
}
