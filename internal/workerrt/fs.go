package workerrt

import (
	"bytes"

	"github.com/andybalholm/brotli"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
	"github.com/nmxmxh/gbxfabric/internal/endpoint"
	"github.com/nmxmxh/gbxfabric/internal/world"
	"github.com/nmxmxh/gbxfabric/internal/xlog"
)

// FsEngine simulates persistence: a manual save is brotli-compressed
// before being "written" (kept in memory here, since this is a
// reference worker, not a real filesystem driver); an autosave is
// accepted without compression since it is expected to be overwritten
// again shortly.
type FsEngine struct {
	*baseEngine
	saves map[string][]byte
}

func NewFsEngine(ep *endpoint.Endpoint, mem atomicmem.Mem) *FsEngine {
	f := &FsEngine{
		baseEngine: &baseEngine{name: "fs", ep: ep, mem: mem, log: xlog.Default("fs-engine")},
		saves:      map[string][]byte{},
	}
	f.baseEngine.handle = f.handleCmd
	return f
}

func (f *FsEngine) handleCmd(tag, ver byte, flags uint16, payload []byte) error {
	cmd, err := endpoint.DearchiveWorkCmd(tag, ver, flags, payload)
	if err != nil {
		return err
	}
	persist, ok := cmd.(world.FsPersist)
	if !ok {
		return nil
	}

	raw := make([]byte, persist.Span.ByteLength)
	if err := f.mem.CopyTo(f.slotOffsetForSpan(persist.Span), raw); err != nil {
		return err
	}

	stored := raw
	if persist.Manual {
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		stored = buf.Bytes()
		f.log.Info("manual save compressed", xlog.String("path", persist.Path),
			xlog.Int("raw_bytes", len(raw)), xlog.Int("compressed_bytes", len(stored)))
	}
	f.saves[persist.Path] = stored

	tag, ver, flags, repPayload, err := endpoint.ArchiveReport(world.FsSaved{Path: persist.Path, Ok: true})
	if err != nil {
		return err
	}
	return f.emitReport(tag, ver, flags, repPayload)
}

// slotOffsetForSpan is a placeholder for resolving a Span back to an
// absolute fabric offset; in this reference worker FsPersist spans
// reference a region the caller has already arranged to be directly
// addressable, so the span's slot_idx doubles as a byte offset.
func (f *FsEngine) slotOffsetForSpan(span world.Span) uint32 {
	return span.SlotIdx
}
