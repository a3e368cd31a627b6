//go:build !js || !wasm

package atomicmem

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// SharedFile is an AtomicMem backend over a memory-mapped file, for
// fabrics split across separate OS processes rather than goroutines in
// one process. It follows kernel/threads/sab/hal_native.go's
// SharedMemoryProvider: same mmap/munmap lifecycle and ptrAt
// bounds/alignment check, generalized with the same polling
// Wait32/Notify32 pair as Native so both backends satisfy
// atomicmem.Waitable identically.
type SharedFile struct {
	file *os.File
	data []byte
}

// OpenSharedFile creates (if requested) and memory-maps a shared file of
// the given size at path.
func OpenSharedFile(path string, size uint32, create bool) (*SharedFile, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("atomicmem: open shared file: %w", err)
	}
	if create {
		if err := f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("atomicmem: truncate shared file: %w", err)
		}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("atomicmem: stat shared file: %w", err)
	}
	if info.Size() == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("atomicmem: shared file has zero size")
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(info.Size()), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("atomicmem: mmap shared file: %w", err)
	}
	return &SharedFile{file: f, data: data}, nil
}

func (s *SharedFile) Size() uint32 { return uint32(len(s.data)) }

func (s *SharedFile) ptr32(off uint32) (unsafe.Pointer, error) {
	if off+4 > uint32(len(s.data)) {
		return nil, ErrOutOfBounds
	}
	if err := checkAligned4(off); err != nil {
		return nil, err
	}
	return unsafe.Pointer(&s.data[off]), nil
}

func (s *SharedFile) Load32(off uint32) (uint32, error) {
	p, err := s.ptr32(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32((*uint32)(p)), nil
}

func (s *SharedFile) Store32(off uint32, val uint32) error {
	p, err := s.ptr32(off)
	if err != nil {
		return err
	}
	atomic.StoreUint32((*uint32)(p), val)
	return nil
}

func (s *SharedFile) FetchAdd32(off uint32, delta uint32) (uint32, error) {
	p, err := s.ptr32(off)
	if err != nil {
		return 0, err
	}
	return atomic.AddUint32((*uint32)(p), delta) - delta, nil
}

func (s *SharedFile) CopyFrom(dst uint32, src []byte) error {
	if uint64(dst)+uint64(len(src)) > uint64(len(s.data)) {
		return ErrOutOfBounds
	}
	copy(s.data[dst:], src)
	return nil
}

func (s *SharedFile) CopyTo(src uint32, dst []byte) error {
	if uint64(src)+uint64(len(dst)) > uint64(len(s.data)) {
		return ErrOutOfBounds
	}
	copy(dst, s.data[src:src+uint32(len(dst))])
	return nil
}

func (s *SharedFile) Wait32(off uint32, expected uint32, timeoutNanos int64) (WaitResult, error) {
	return waitPoll(s, off, expected, timeoutNanos)
}

func (s *SharedFile) Notify32(off uint32, count int32) (int, error) {
	if err := checkAligned4(off); err != nil {
		return 0, err
	}
	return 0, nil
}

// Close unmaps and closes the backing file.
func (s *SharedFile) Close() error {
	var err error
	if s.data != nil {
		if e := syscall.Munmap(s.data); e != nil {
			err = e
		}
		s.data = nil
	}
	if s.file != nil {
		if e := s.file.Close(); e != nil && err == nil {
			err = e
		}
		s.file = nil
	}
	return err
}

var _ Waitable = (*SharedFile)(nil)
