package atomicmem

import (
	"sync/atomic"
	"unsafe"
)

// Native is a shared-buffer AtomicMem backend for goroutine/OS-thread
// workers within one process. It is the direct descendant of the
// teacher's sab.InMemoryProvider (kernel/threads/sab/hal_memory.go):
// same ptrAt-then-sync/atomic shape, generalized with a polling Wait32/
// Notify32 pair for the worker runtime's doorbell.
//
// A single Native instance is shared by every Endpoint and every worker
// goroutine backed by it; the byte slice itself is the "shared memory
// region" spec.md describes, and it is never reallocated after Build.
type Native struct {
	data []byte
}

// NewNative allocates a zeroed buffer of the given size.
func NewNative(size uint32) *Native {
	return &Native{data: make([]byte, size)}
}

func (m *Native) Size() uint32 { return uint32(len(m.data)) }

func (m *Native) ptr32(off uint32) (unsafe.Pointer, error) {
	if off+4 > uint32(len(m.data)) {
		return nil, ErrOutOfBounds
	}
	if err := checkAligned4(off); err != nil {
		return nil, err
	}
	return unsafe.Pointer(&m.data[off]), nil
}

func (m *Native) Load32(off uint32) (uint32, error) {
	p, err := m.ptr32(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32((*uint32)(p)), nil
}

func (m *Native) Store32(off uint32, val uint32) error {
	p, err := m.ptr32(off)
	if err != nil {
		return err
	}
	atomic.StoreUint32((*uint32)(p), val)
	return nil
}

func (m *Native) FetchAdd32(off uint32, delta uint32) (uint32, error) {
	p, err := m.ptr32(off)
	if err != nil {
		return 0, err
	}
	return atomic.AddUint32((*uint32)(p), delta) - delta, nil
}

func (m *Native) CopyFrom(dst uint32, src []byte) error {
	if uint64(dst)+uint64(len(src)) > uint64(len(m.data)) {
		return ErrOutOfBounds
	}
	copy(m.data[dst:], src)
	return nil
}

func (m *Native) CopyTo(src uint32, dst []byte) error {
	if uint64(src)+uint64(len(dst)) > uint64(len(m.data)) {
		return ErrOutOfBounds
	}
	copy(dst, m.data[src:src+uint32(len(dst))])
	return nil
}

// Wait32 parks until the word at off differs from expected, or until
// timeoutNanos elapses (0 = forever). Native has no true futex, so it
// polls at pollInterval, acceptable for a goroutine worker runtime,
// where the doorbell word changes on the order of once per frame, not
// once per microsecond.
func (m *Native) Wait32(off uint32, expected uint32, timeoutNanos int64) (WaitResult, error) {
	return waitPoll(m, off, expected, timeoutNanos)
}

// Notify32 is a no-op on Native: Wait32 always re-polls on its own
// cadence, so there is nothing to wake. It still checks the offset's
// 4-byte alignment, as the wasm backend does; unlike the wasm backend it
// does not check bounds.
func (m *Native) Notify32(off uint32, count int32) (int, error) {
	if err := checkAligned4(off); err != nil {
		return 0, err
	}
	return 0, nil
}

var _ Waitable = (*Native)(nil)
