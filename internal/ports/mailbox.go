package ports

import (
	"encoding/binary"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
)

// MailboxHeaderSize: seq:u32 (producer-owned), taken_seq:u32
// (consumer-owned), tag:u8 ver:u8 flags:u16, payload_len:u32.
const MailboxHeaderSize = 16

// Mailbox is a single-cell coalescing port (§4.5): a write replaces
// whatever is there and bumps a monotonic seq; a consumer that doesn't
// keep up simply sees the latest value, never a torn mix of two
// writes, because the whole cell is rewritten before seq advances.
type Mailbox struct {
	mem      atomicmem.Mem
	base     uint32
	capacity uint32 // max payload bytes

	lastTaken uint32 // consumer-local: last seq this process has taken
}

// WriteOutcome mirrors the two ways a mailbox write can resolve.
type WriteOutcome int

const (
	WriteAccepted WriteOutcome = iota
	WriteCoalesced
)

func InitMailbox(mem atomicmem.Mem, base uint32, payloadCapacity uint32) (*Mailbox, error) {
	hdr := make([]byte, MailboxHeaderSize+payloadCapacity)
	if err := mem.CopyFrom(base, hdr); err != nil {
		return nil, err
	}
	return &Mailbox{mem: mem, base: base, capacity: payloadCapacity}, nil
}

func OpenMailbox(mem atomicmem.Mem, base uint32, payloadCapacity uint32) *Mailbox {
	return &Mailbox{mem: mem, base: base, capacity: payloadCapacity}
}

func (b *Mailbox) payloadBase() uint32 { return b.base + MailboxHeaderSize }

// Write replaces the cell's contents and bumps seq. Must only be
// called by the single producer.
func (b *Mailbox) Write(tag byte, ver byte, flags uint16, payload []byte) (WriteOutcome, error) {
	if uint32(len(payload)) > b.capacity {
		return 0, ErrTooLarge
	}
	takenSeq, err := b.mem.Load32(b.base + 4) // Acquire
	if err != nil {
		return 0, err
	}
	seq, err := b.mem.Load32(b.base)
	if err != nil {
		return 0, err
	}

	meta := make([]byte, 8)
	meta[0] = tag
	meta[1] = ver
	binary.LittleEndian.PutUint16(meta[2:4], flags)
	binary.LittleEndian.PutUint32(meta[4:8], uint32(len(payload)))
	if err := b.mem.CopyFrom(b.base+8, meta); err != nil {
		return 0, err
	}
	if len(payload) > 0 {
		if err := b.mem.CopyFrom(b.payloadBase(), payload); err != nil {
			return 0, err
		}
	}

	if err := b.mem.Store32(b.base, seq+1); err != nil { // Release
		return 0, err
	}

	if takenSeq == seq {
		return WriteAccepted, nil
	}
	return WriteCoalesced, nil
}

// Take returns the current cell if it is newer than the last value
// this consumer took, recording the new seq as taken.
func (b *Mailbox) Take() (Record, bool, error) {
	seq, err := b.mem.Load32(b.base) // Acquire
	if err != nil {
		return Record{}, false, err
	}
	if seq == b.lastTaken {
		return Record{}, false, nil
	}

	meta := make([]byte, 8)
	if err := b.mem.CopyTo(b.base+8, meta); err != nil {
		return Record{}, false, err
	}
	tag := meta[0]
	ver := meta[1]
	flags := binary.LittleEndian.Uint16(meta[2:4])
	payloadLen := binary.LittleEndian.Uint32(meta[4:8])
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if err := b.mem.CopyTo(b.payloadBase(), payload); err != nil {
			return Record{}, false, err
		}
	}

	b.lastTaken = seq
	if err := b.mem.Store32(b.base+4, seq); err != nil { // Release
		return Record{}, false, err
	}
	return Record{Tag: tag, Ver: ver, Flags: flags, Payload: payload}, true, nil
}
