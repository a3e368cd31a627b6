//go:build js && wasm

package atomicmem

import (
	"syscall/js"
)

// Wasm is the browser-worker AtomicMem backend. It wraps a JS
// SharedArrayBuffer with an Int32Array view and drives the real
// Atomics.{load,store,add,wait,notify} globals, following
// kernel/threads/supervisor/sab_bridge.go's SABBridge: same
// js.Global().Get("Atomics") handle and the same "ok"/"not-equal"/
// "timed-out" string-result decoding for Atomics.wait. SABBridge also
// gates blocking Atomics.wait with detectWorkerContext (it is not legal
// on the main/UI thread); Wasm has no such runtime gate and relies on
// Waitable's type split instead, see Wait32.
type Wasm struct {
	buf      js.Value // the SharedArrayBuffer
	int32arr js.Value // Int32Array view over buf
	uint8arr js.Value // Uint8Array view over buf, for CopyFrom/CopyTo
	atomics  js.Value
	size     uint32
}

// NewWasm wraps an existing SharedArrayBuffer. The caller (fabric
// builder) owns the buffer's lifetime; Wasm only views it.
func NewWasm(sab js.Value) (*Wasm, error) {
	byteLength := sab.Get("byteLength").Int()
	if byteLength <= 0 {
		return nil, ErrOutOfBounds
	}
	global := js.Global()
	return &Wasm{
		buf:      sab,
		int32arr: global.Get("Int32Array").New(sab),
		uint8arr: global.Get("Uint8Array").New(sab),
		atomics:  global.Get("Atomics"),
		size:     uint32(byteLength),
	}, nil
}

func (w *Wasm) Size() uint32 { return w.size }

func (w *Wasm) index32(off uint32) (int, error) {
	if off+4 > w.size {
		return 0, ErrOutOfBounds
	}
	if err := checkAligned4(off); err != nil {
		return 0, err
	}
	return int(off / 4), nil
}

func (w *Wasm) Load32(off uint32) (uint32, error) {
	idx, err := w.index32(off)
	if err != nil {
		return 0, err
	}
	v := w.atomics.Call("load", w.int32arr, idx)
	return uint32(v.Int()), nil
}

func (w *Wasm) Store32(off uint32, val uint32) error {
	idx, err := w.index32(off)
	if err != nil {
		return err
	}
	w.atomics.Call("store", w.int32arr, idx, int(int32(val)))
	return nil
}

func (w *Wasm) FetchAdd32(off uint32, delta uint32) (uint32, error) {
	idx, err := w.index32(off)
	if err != nil {
		return 0, err
	}
	v := w.atomics.Call("add", w.int32arr, idx, int(int32(delta)))
	return uint32(v.Int()), nil
}

func (w *Wasm) CopyFrom(dst uint32, src []byte) error {
	if uint64(dst)+uint64(len(src)) > uint64(w.size) {
		return ErrOutOfBounds
	}
	dstView := w.uint8arr.Call("subarray", int(dst), int(dst)+len(src))
	js.CopyBytesToJS(dstView, src)
	return nil
}

func (w *Wasm) CopyTo(src uint32, dst []byte) error {
	if uint64(src)+uint64(len(dst)) > uint64(w.size) {
		return ErrOutOfBounds
	}
	srcView := w.uint8arr.Call("subarray", int(src), int(src)+len(dst))
	js.CopyBytesToGo(dst, srcView)
	return nil
}

// Wait32 calls the real Atomics.wait. Per spec.md §4.1/§5 this must
// only ever be invoked from a worker thread's own WaitForWork loop,
// never from the context driving the main scheduler; SABBridge
// enforces the same rule with detectWorkerContext before issuing a
// blocking wait, falling back to pollForEpochChange everywhere else.
// We assume the caller (workerrt.WorkerRuntime) only constructs a
// Wasm handle inside an actual worker, so no runtime gate is
// duplicated here.
func (w *Wasm) Wait32(off uint32, expected uint32, timeoutNanos int64) (WaitResult, error) {
	idx, err := w.index32(off)
	if err != nil {
		return 0, err
	}
	timeoutMs := js.Undefined()
	if timeoutNanos > 0 {
		timeoutMs = js.ValueOf(float64(timeoutNanos) / 1e6)
	}
	result := w.atomics.Call("wait", w.int32arr, idx, int(int32(expected)), timeoutMs)
	switch result.String() {
	case "ok":
		return WaitOK, nil
	case "not-equal":
		return WaitNotEqual, nil
	case "timed-out":
		return WaitTimedOut, nil
	default:
		return WaitTimedOut, nil
	}
}

// Notify32 calls the real Atomics.notify, waking up to count waiters
// parked on off.
func (w *Wasm) Notify32(off uint32, count int32) (int, error) {
	idx, err := w.index32(off)
	if err != nil {
		return 0, err
	}
	woken := w.atomics.Call("notify", w.int32arr, idx, int(count))
	return woken.Int(), nil
}

var _ Waitable = (*Wasm)(nil)
