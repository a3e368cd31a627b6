package fabric

import "encoding/binary"

// RegionDirEntrySize is the on-wire size of one region directory entry:
// kind:u8, flags:u8, _pad:u16, offset:u32, length:u32, align:u32.
const RegionDirEntrySize = 16

// RegionDirEntry describes one allocated region of the fabric.
type RegionDirEntry struct {
	Kind   RegionKind
	Flags  byte
	Offset uint32
	Length uint32
	Align  uint32
}

func (e RegionDirEntry) Encode(buf []byte) {
	buf[0] = byte(e.Kind)
	buf[1] = e.Flags
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	binary.LittleEndian.PutUint32(buf[4:8], e.Offset)
	binary.LittleEndian.PutUint32(buf[8:12], e.Length)
	binary.LittleEndian.PutUint32(buf[12:16], e.Align)
}

func DecodeRegionDirEntry(buf []byte) RegionDirEntry {
	return RegionDirEntry{
		Kind:   RegionKind(buf[0]),
		Flags:  buf[1],
		Offset: binary.LittleEndian.Uint32(buf[4:8]),
		Length: binary.LittleEndian.Uint32(buf[8:12]),
		Align:  binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// MaxPortRegionIDs bounds how many region ids one endpoint table entry
// can reference: lossless/coalesce/besteffort/reps, frame slots+free+
// ready, audio slots+free+ready, doorbells, metrics; all 12 are named
// below, none is spare.
const MaxPortRegionIDs = 12

// EndpointTableEntrySize is name_hash:u32, kind:u8, reserved:u8,
// port_region_ids[12]:u16.
const EndpointTableEntrySize = 4 + 1 + 1 + 2*MaxPortRegionIDs

// Named slots within EndpointTableEntry.PortRegionIDs. A zero value
// means "not present" (region id 0 is the header/directory itself and
// is never a valid port region).
const (
	PortLosslessCmds = iota
	PortCoalesceCmd
	PortBestEffortCmds
	PortReps
	PortFrameSlots
	PortFrameFreeRing
	PortFrameReadyRing
	PortAudioSlots
	PortAudioFreeRing
	PortAudioReadyRing
	PortDoorbells
	PortMetrics
)

// EndpointTableEntry is one service's region-id cross-reference.
type EndpointTableEntry struct {
	NameHash      uint32
	Kind          byte
	Reserved      byte
	PortRegionIDs [MaxPortRegionIDs]uint16
}

func (e EndpointTableEntry) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], e.NameHash)
	buf[4] = e.Kind
	buf[5] = e.Reserved
	for i, id := range e.PortRegionIDs {
		off := 6 + i*2
		binary.LittleEndian.PutUint16(buf[off:off+2], id)
	}
}

func DecodeEndpointTableEntry(buf []byte) EndpointTableEntry {
	var e EndpointTableEntry
	e.NameHash = binary.LittleEndian.Uint32(buf[0:4])
	e.Kind = buf[4]
	e.Reserved = buf[5]
	for i := range e.PortRegionIDs {
		off := 6 + i*2
		e.PortRegionIDs[i] = binary.LittleEndian.Uint16(buf[off : off+2])
	}
	return e
}
