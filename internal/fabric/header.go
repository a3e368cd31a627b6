// Package fabric builds and parses the self-describing byte image
// described in spec §3/§6/§4.10: a fixed header, a region directory,
// and an endpoint table, all living at the front of one shared
// AtomicMem buffer. It follows the same "compute offsets, write a
// directory, validate on open" shape as kernel/threads/sab/layout.go
// and init.go, generalized from a fixed SAB region set to an
// arbitrary per-service directory.
package fabric

import "encoding/binary"

// Magic is the fixed fabric header magic, whose hex digits read
// "GBXFABRI" most significant byte first; stored little-endian, the
// image's first eight bytes are "IRBAFXBG".
const Magic uint64 = 0x4742584641425249

// ABIVersion is bumped whenever the header, directory, or any record
// envelope layout changes incompatibly.
const ABIVersion uint32 = 1

// HeaderSize is the fixed-prefix size, padded to one 64-byte cache line.
const HeaderSize = 64

// Header is the fabric's fixed prefix at offset 0.
type Header struct {
	Magic                 uint64
	ABIVersion            uint32
	TotalSize             uint32
	EndpointCount         uint32
	RegionCount           uint32
	EndpointTableOffset   uint32
	RegionDirectoryOffset uint32
}

// Encode writes h into buf[0:HeaderSize]. buf must be at least
// HeaderSize bytes.
func (h Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], h.ABIVersion)
	binary.LittleEndian.PutUint32(buf[12:16], h.TotalSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.EndpointCount)
	binary.LittleEndian.PutUint32(buf[20:24], h.RegionCount)
	binary.LittleEndian.PutUint32(buf[24:28], h.EndpointTableOffset)
	binary.LittleEndian.PutUint32(buf[28:32], h.RegionDirectoryOffset)
	for i := 32; i < HeaderSize; i++ {
		buf[i] = 0
	}
}

// DecodeHeader reads a Header from buf[0:HeaderSize].
func DecodeHeader(buf []byte) Header {
	return Header{
		Magic:                 binary.LittleEndian.Uint64(buf[0:8]),
		ABIVersion:            binary.LittleEndian.Uint32(buf[8:12]),
		TotalSize:             binary.LittleEndian.Uint32(buf[12:16]),
		EndpointCount:         binary.LittleEndian.Uint32(buf[16:20]),
		RegionCount:           binary.LittleEndian.Uint32(buf[20:24]),
		EndpointTableOffset:   binary.LittleEndian.Uint32(buf[24:28]),
		RegionDirectoryOffset: binary.LittleEndian.Uint32(buf[28:32]),
	}
}

// RegionKind enumerates the kinds a region directory entry may carry.
type RegionKind byte

const (
	RegionMsgRing RegionKind = iota + 1
	RegionMailbox
	RegionIndexRing
	RegionSlotArray
	RegionDoorbells
	RegionMetrics
)

func (k RegionKind) String() string {
	switch k {
	case RegionMsgRing:
		return "MsgRing"
	case RegionMailbox:
		return "Mailbox"
	case RegionIndexRing:
		return "IndexRing"
	case RegionSlotArray:
		return "SlotArray"
	case RegionDoorbells:
		return "Doorbells"
	case RegionMetrics:
		return "Metrics"
	default:
		return "Unknown"
	}
}
