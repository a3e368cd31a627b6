// Package ports implements the four typed port kinds described in
// spec.md §4.2-§4.5: MsgRing, IndexRing, SlotPool, and Mailbox, all
// generic over an atomicmem.Mem backend and working purely in byte
// offsets relative to a region base. The ring math is adapted from the
// teacher's kernel/threads/foundation/message_queue.go
// EnqueueZeroCopy/DequeueZeroCopy: the same Acquire/Release head/tail
// pair, the same binary.LittleEndian header codec, generalized from a
// fixed power-of-two slot count to an explicit byte-capacity ring with
// a wrap sentinel so variable-length records can be packed tightly.
package ports

import (
	"encoding/binary"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
)

// MsgRingHeaderSize is the fixed 32-byte ring header: capacity, head,
// tail, flags (all u32), magic and reserved (u64 each).
const MsgRingHeaderSize = 32

// EnvelopeSize is the fixed record envelope before payload bytes:
// total_len:u32, tag:u8, ver:u8, flags:u16.
const EnvelopeSize = 8

// RecordAlign is the alignment every record (and the wrap sentinel's
// resting point) must start at.
const RecordAlign = 8

// WrapSentinel marks a record header whose total_len field means "skip
// to offset 0, the real next record lives there".
const WrapSentinel uint32 = 0xFFFFFFFF

const msgRingMagic uint64 = 0x4D53475231 // "MSGR1"

const (
	hdrCapacity = 0
	hdrHead     = 4
	hdrTail     = 8
	hdrFlags    = 12
	hdrMagic    = 16
	hdrReserved = 24
)

// MsgRing is a lossless or best-effort byte-oriented SPSC ring: the
// policy distinction lives in the adapter, not here. Exactly one
// producer may call TryReserve/Commit; exactly one consumer may call
// Peek/PopAdvance.
type MsgRing struct {
	mem      atomicmem.Mem
	base     uint32
	capacity uint32

	// grantOutstanding enforces "at most one outstanding Grant" (§4.2)
	// on the producer side of this process.
	grantOutstanding bool
	grantOffset      uint32
	grantReserved    uint32
}

// Grant is a writable region returned by TryReserve. The caller fills
// in exactly actualPayloadLen bytes of payload via Mem.CopyFrom at
// PayloadOffset, then calls Commit.
type Grant struct {
	PayloadOffset  uint32
	ReservedLen    uint32
	Tag            byte
	Ver            byte
	Flags          uint16
	recordOffset   uint32
	wroteSentinel  bool
	sentinelOffset uint32
}

// Record is a borrowed, read-only view of one consumed record.
type Record struct {
	Tag     byte
	Ver     byte
	Flags   uint16
	Payload []byte
}

// InitMsgRing formats a fresh ring header over [base, base+headerSize)
// and zeroes the capacityBytes data region that follows. capacityBytes
// must be a power of two.
func InitMsgRing(mem atomicmem.Mem, base uint32, capacityBytes uint32) (*MsgRing, error) {
	if capacityBytes == 0 || capacityBytes&(capacityBytes-1) != 0 {
		return nil, ErrTooLarge
	}
	hdr := make([]byte, MsgRingHeaderSize)
	binary.LittleEndian.PutUint32(hdr[hdrCapacity:], capacityBytes)
	binary.LittleEndian.PutUint32(hdr[hdrHead:], 0)
	binary.LittleEndian.PutUint32(hdr[hdrTail:], 0)
	binary.LittleEndian.PutUint32(hdr[hdrFlags:], 0)
	binary.LittleEndian.PutUint64(hdr[hdrMagic:], msgRingMagic)
	binary.LittleEndian.PutUint64(hdr[hdrReserved:], 0)
	if err := mem.CopyFrom(base, hdr); err != nil {
		return nil, err
	}
	if err := mem.CopyFrom(base+MsgRingHeaderSize, make([]byte, capacityBytes)); err != nil {
		return nil, err
	}
	return OpenMsgRing(mem, base)
}

// OpenMsgRing attaches to an already-initialized ring region, reading
// its capacity back out of the header.
func OpenMsgRing(mem atomicmem.Mem, base uint32) (*MsgRing, error) {
	capacity, err := mem.Load32(base + hdrCapacity)
	if err != nil {
		return nil, err
	}
	return &MsgRing{mem: mem, base: base, capacity: capacity}, nil
}

func (r *MsgRing) dataBase() uint32 { return r.base + MsgRingHeaderSize }

func align8(n uint32) uint32 { return (n + 7) &^ 7 }

// usedBytes is the number of bytes currently occupied by unread
// records, measured forward from tail to head.
func usedBytes(head, tail, capacity uint32) uint32 {
	if head >= tail {
		return head - tail
	}
	return capacity - tail + head
}

// TryReserve reserves space for a record of the given payload length,
// tagged (tag, ver, flags). It never blocks. Only one Grant may be
// outstanding at a time.
func (r *MsgRing) TryReserve(tag byte, ver byte, flags uint16, payloadLen uint32) (*Grant, bool, error) {
	if r.grantOutstanding {
		return nil, false, ErrDoubleGrant
	}
	recordSize := align8(EnvelopeSize + payloadLen)
	if recordSize > r.capacity {
		return nil, false, ErrTooLarge
	}

	head, err := r.mem.Load32(r.base + hdrHead)
	if err != nil {
		return nil, false, err
	}
	tail, err := r.mem.Load32(r.base + hdrTail) // Acquire
	if err != nil {
		return nil, false, err
	}

	contiguousToEnd := r.capacity - head
	used := usedBytes(head, tail, r.capacity)
	free := r.capacity - used

	// free is reported strictly: a record that would consume every
	// remaining byte makes the new head alias the tail, which Peek
	// reads back as empty. Always leave at least one record-aligned
	// gap open, mirroring the teacher's one-slot-gap rule in
	// kernel/threads/foundation/message_queue.go.
	if recordSize <= contiguousToEnd && recordSize < free {
		g := &Grant{
			PayloadOffset: r.dataBase() + head + EnvelopeSize,
			ReservedLen:   payloadLen,
			Tag:           tag,
			Ver:           ver,
			Flags:         flags,
			recordOffset:  head,
		}
		r.grantOutstanding = true
		r.grantOffset = head
		r.grantReserved = recordSize
		return g, true, nil
	}

	// Contiguous run to the end won't fit; try wrapping to offset 0.
	// Space after wrap is bounded both by how much is free overall and
	// by not running up to (or past) tail: landing exactly on tail
	// would alias the wrapped-and-full ring with an empty one.
	if recordSize < tail && recordSize < free {
		g := &Grant{
			PayloadOffset:  EnvelopeSize,
			ReservedLen:    payloadLen,
			Tag:            tag,
			Ver:            ver,
			Flags:          flags,
			recordOffset:   0,
			wroteSentinel:  true,
			sentinelOffset: head,
		}
		g.PayloadOffset = r.dataBase() + EnvelopeSize
		r.grantOutstanding = true
		r.grantOffset = 0
		r.grantReserved = recordSize
		return g, true, nil
	}

	return nil, false, nil
}

// Commit writes the envelope and advances head (Release). actualLen
// must be <= the reserved length.
func (r *MsgRing) Commit(g *Grant, actualLen uint32) error {
	if !r.grantOutstanding {
		return ErrNoGrant
	}
	if actualLen > g.ReservedLen {
		return ErrTooLarge
	}

	if g.wroteSentinel {
		sentinel := make([]byte, EnvelopeSize)
		binary.LittleEndian.PutUint32(sentinel[0:4], WrapSentinel)
		if err := r.mem.CopyFrom(r.dataBase()+g.sentinelOffset, sentinel[:4]); err != nil {
			return err
		}
	}

	env := make([]byte, EnvelopeSize)
	binary.LittleEndian.PutUint32(env[0:4], EnvelopeSize+actualLen)
	env[4] = g.Tag
	env[5] = g.Ver
	binary.LittleEndian.PutUint16(env[6:8], g.Flags)
	if err := r.mem.CopyFrom(r.dataBase()+g.recordOffset, env); err != nil {
		return err
	}

	newHead := g.recordOffset + align8(EnvelopeSize+actualLen)
	if newHead >= r.capacity {
		newHead = 0
	}
	if err := r.mem.Store32(r.base+hdrHead, newHead); err != nil { // Release
		return err
	}

	r.grantOutstanding = false
	return nil
}

// peekState is cached between Peek and PopAdvance so PopAdvance knows
// how far to advance tail without re-deriving it.
type peekState struct {
	recordOffset uint32
	advanceBy    uint32
	wasSentinel  bool
}

// Peek returns a borrowed view of the next unread record, or ok=false
// if the ring is empty. It transparently skips (but does not advance
// past) a wrap sentinel, retrying at offset 0.
func (r *MsgRing) Peek() (Record, *peekState, bool, error) {
	head, err := r.mem.Load32(r.base + hdrHead) // Acquire
	if err != nil {
		return Record{}, nil, false, err
	}
	tail, err := r.mem.Load32(r.base + hdrTail)
	if err != nil {
		return Record{}, nil, false, err
	}
	if head == tail {
		return Record{}, nil, false, nil
	}

	pos := tail
	envBuf := make([]byte, EnvelopeSize)
	if err := r.mem.CopyTo(r.dataBase()+pos, envBuf); err != nil {
		return Record{}, nil, false, err
	}
	totalLen := binary.LittleEndian.Uint32(envBuf[0:4])
	if totalLen == WrapSentinel {
		pos = 0
		if err := r.mem.CopyTo(r.dataBase()+pos, envBuf); err != nil {
			return Record{}, nil, false, err
		}
		totalLen = binary.LittleEndian.Uint32(envBuf[0:4])
	}

	tag := envBuf[4]
	ver := envBuf[5]
	flags := binary.LittleEndian.Uint16(envBuf[6:8])
	payloadLen := totalLen - EnvelopeSize
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if err := r.mem.CopyTo(r.dataBase()+pos+EnvelopeSize, payload); err != nil {
			return Record{}, nil, false, err
		}
	}

	state := &peekState{
		recordOffset: pos,
		advanceBy:    align8(totalLen),
	}
	return Record{Tag: tag, Ver: ver, Flags: flags, Payload: payload}, state, true, nil
}

// PopAdvance advances tail (Release) past the record returned by the
// immediately preceding Peek.
func (r *MsgRing) PopAdvance(state *peekState) error {
	newTail := state.recordOffset + state.advanceBy
	if newTail >= r.capacity {
		newTail = 0
	}
	return r.mem.Store32(r.base+hdrTail, newTail)
}

func (r *MsgRing) Capacity() uint32 { return r.capacity }
