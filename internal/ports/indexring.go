package ports

import (
	"encoding/binary"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
)

// IndexRingHeaderSize mirrors MsgRing's 32-byte header shape:
// capacity, head, tail, pad (u32 each), magic, reserved (u64 each).
const IndexRingHeaderSize = 32

const indexRingMagic uint64 = 0x4944584731 // "IDXG1"

// IndexRing is a fixed-capacity FIFO of u32 slot indices, used as the
// free/ready queues of a SlotPool (§4.3). Capacity must be a power of
// two; full is defined as (head-tail) >= capacity using unsigned
// wraparound, so head/tail here are ever-increasing counters rather
// than MsgRing's bounded byte positions.
type IndexRing struct {
	mem      atomicmem.Mem
	base     uint32
	capacity uint32
}

func InitIndexRing(mem atomicmem.Mem, base uint32, capacity uint32) (*IndexRing, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, ErrTooLarge
	}
	hdr := make([]byte, IndexRingHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], capacity)
	binary.LittleEndian.PutUint32(hdr[4:8], 0)
	binary.LittleEndian.PutUint32(hdr[8:12], 0)
	binary.LittleEndian.PutUint64(hdr[16:24], indexRingMagic)
	if err := mem.CopyFrom(base, hdr); err != nil {
		return nil, err
	}
	slots := make([]byte, capacity*4)
	if err := mem.CopyFrom(base+IndexRingHeaderSize, slots); err != nil {
		return nil, err
	}
	return OpenIndexRing(mem, base)
}

func OpenIndexRing(mem atomicmem.Mem, base uint32) (*IndexRing, error) {
	capacity, err := mem.Load32(base)
	if err != nil {
		return nil, err
	}
	return &IndexRing{mem: mem, base: base, capacity: capacity}, nil
}

func (q *IndexRing) slotOffset(counter uint32) uint32 {
	return q.base + IndexRingHeaderSize + (counter%q.capacity)*4
}

// TryPush appends idx to the tail of the queue. Returns false if full.
func (q *IndexRing) TryPush(idx uint32) (bool, error) {
	head, err := q.mem.Load32(q.base + 4)
	if err != nil {
		return false, err
	}
	tail, err := q.mem.Load32(q.base + 8)
	if err != nil {
		return false, err
	}
	if head-tail >= q.capacity {
		return false, nil
	}
	if err := q.mem.Store32(q.slotOffset(head), idx); err != nil {
		return false, err
	}
	if err := q.mem.Store32(q.base+4, head+1); err != nil { // Release
		return false, err
	}
	return true, nil
}

// TryPop removes and returns the index at the head of the queue.
func (q *IndexRing) TryPop() (uint32, bool, error) {
	head, err := q.mem.Load32(q.base + 4)
	if err != nil {
		return 0, false, err
	}
	tail, err := q.mem.Load32(q.base + 8)
	if err != nil {
		return 0, false, err
	}
	if head == tail {
		return 0, false, nil
	}
	idx, err := q.mem.Load32(q.slotOffset(tail))
	if err != nil {
		return 0, false, err
	}
	if err := q.mem.Store32(q.base+8, tail+1); err != nil { // Release
		return 0, false, err
	}
	return idx, true, nil
}

func (q *IndexRing) Capacity() uint32 { return q.capacity }

// Len reports the number of indices currently queued.
func (q *IndexRing) Len() (uint32, error) {
	head, err := q.mem.Load32(q.base + 4)
	if err != nil {
		return 0, err
	}
	tail, err := q.mem.Load32(q.base + 8)
	if err != nil {
		return 0, err
	}
	return head - tail, nil
}
