package ports

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
)

// SlotPool is a flat array of N fixed-size slots plus a free IndexRing
// and a ready IndexRing (§4.4). Ownership moves free -> (exclusive,
// producer-held) -> ready -> (exclusive, consumer-held) -> free. Each
// slot carries a generation counter, incremented on ReleaseFree, so a
// Span{slot_idx, generation} captured by a consumer can be checked for
// staleness against a slot that has since been recycled.
type SlotPool struct {
	mem       atomicmem.Mem
	slotsBase uint32
	slotSize  uint32
	slotCount uint32
	genBase   uint32 // slotCount*4 bytes of per-slot generation counters

	free  *IndexRing
	ready *IndexRing

	// debugDup is an optional bloom filter over (slot_idx,generation)
	// pairs ever pushed to ready, kept only when the pool is built with
	// debug set. PushReady tests each pair against it before adding it;
	// a hit (a double ready-push, or a bloom false positive) is neither
	// counted nor reported. ReleaseFree does not consult it. It is never
	// consulted for correctness.
	debugDup *bloom.BloomFilter
}

// SlotArrayAlign is the minimum alignment of the slot array region
// (§4.10: "64 bytes for slot arrays").
const SlotArrayAlign = 64

// InitSlotPool formats a new slot pool's free ring (populated 0..N-1),
// ready ring (empty), and generation counters (all zero). slotsBase,
// freeBase, readyBase, genBase are the region offsets the fabric
// builder already allocated.
func InitSlotPool(mem atomicmem.Mem, slotsBase uint32, slotSize uint32, slotCount uint32, freeBase, readyBase, genBase uint32, debug bool) (*SlotPool, error) {
	capacity := nextPow2(slotCount)
	free, err := InitIndexRing(mem, freeBase, capacity)
	if err != nil {
		return nil, err
	}
	ready, err := InitIndexRing(mem, readyBase, capacity)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < slotCount; i++ {
		if _, err := free.TryPush(i); err != nil {
			return nil, err
		}
	}
	zeroGens := make([]byte, slotCount*4)
	if err := mem.CopyFrom(genBase, zeroGens); err != nil {
		return nil, err
	}

	p := &SlotPool{
		mem:       mem,
		slotsBase: slotsBase,
		slotSize:  slotSize,
		slotCount: slotCount,
		genBase:   genBase,
		free:      free,
		ready:     ready,
	}
	if debug {
		p.debugDup = bloom.NewWithEstimates(uint(slotCount)*64, 0.01)
	}
	return p, nil
}

// OpenSlotPool attaches to a slot pool a main endpoint has already
// formatted, reusing its free/ready rings without re-pushing any
// index.
func OpenSlotPool(mem atomicmem.Mem, slotsBase uint32, slotSize uint32, slotCount uint32, freeBase, readyBase, genBase uint32, debug bool) (*SlotPool, error) {
	free, err := OpenIndexRing(mem, freeBase)
	if err != nil {
		return nil, err
	}
	ready, err := OpenIndexRing(mem, readyBase)
	if err != nil {
		return nil, err
	}
	p := &SlotPool{
		mem:       mem,
		slotsBase: slotsBase,
		slotSize:  slotSize,
		slotCount: slotCount,
		genBase:   genBase,
		free:      free,
		ready:     ready,
	}
	if debug {
		p.debugDup = bloom.NewWithEstimates(uint(slotCount)*64, 0.01)
	}
	return p, nil
}

func nextPow2(n uint32) uint32 {
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

func (p *SlotPool) slotOffset(idx uint32) uint32 { return p.slotsBase + idx*p.slotSize }
func (p *SlotPool) genOffset(idx uint32) uint32  { return p.genBase + idx*4 }

// TryAcquireFree pops a slot index the caller now exclusively owns.
func (p *SlotPool) TryAcquireFree() (uint32, bool, error) {
	return p.free.TryPop()
}

// WriteSlot overwrites the exclusively-owned slot's bytes. data must be
// <= slotSize.
func (p *SlotPool) WriteSlot(idx uint32, data []byte) error {
	if uint32(len(data)) > p.slotSize {
		return ErrTooLarge
	}
	return p.mem.CopyFrom(p.slotOffset(idx), data)
}

// ReadSlot copies exactly len(dst) bytes out of the slot.
func (p *SlotPool) ReadSlot(idx uint32, dst []byte) error {
	return p.mem.CopyTo(p.slotOffset(idx), dst)
}

// Generation returns the slot's current generation counter.
func (p *SlotPool) Generation(idx uint32) (uint32, error) {
	return p.mem.Load32(p.genOffset(idx))
}

// PushReady publishes idx to the consumer, becoming visible after the
// IndexRing's Release store. Returns false (WouldBlock-equivalent) if
// the ready ring is full.
func (p *SlotPool) PushReady(idx uint32) (bool, error) {
	ok, err := p.ready.TryPush(idx)
	if err != nil || !ok {
		return ok, err
	}
	if p.debugDup != nil {
		gen, gerr := p.Generation(idx)
		if gerr == nil {
			key := dupKey(idx, gen)
			if p.debugDup.TestString(key) {
				// Same (idx, generation) seen before: a double ready-push
				// without an intervening release, or a false positive.
				// Nothing further is done with the hit.
				_ = key
			}
			p.debugDup.AddString(key)
		}
	}
	return true, nil
}

// PopReady takes the next ready slot index, now exclusively owned by
// the consumer.
func (p *SlotPool) PopReady() (uint32, bool, error) {
	return p.ready.TryPop()
}

// ReleaseFree returns idx to the free ring and bumps its generation so
// any Span still referencing the old generation is detectably stale.
func (p *SlotPool) ReleaseFree(idx uint32) error {
	if _, err := p.mem.FetchAdd32(p.genOffset(idx), 1); err != nil {
		return err
	}
	_, err := p.free.TryPush(idx)
	return err
}

func (p *SlotPool) SlotSize() uint32  { return p.slotSize }
func (p *SlotPool) SlotCount() uint32 { return p.slotCount }

func dupKey(idx, gen uint32) string {
	buf := [8]byte{
		byte(idx), byte(idx >> 8), byte(idx >> 16), byte(idx >> 24),
		byte(gen), byte(gen >> 8), byte(gen >> 16), byte(gen >> 24),
	}
	return string(buf[:])
}
