package workerrt

import (
	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
	"github.com/nmxmxh/gbxfabric/internal/endpoint"
	"github.com/nmxmxh/gbxfabric/internal/world"
	"github.com/nmxmxh/gbxfabric/internal/xlog"
)

// GpuEngine acknowledges every UploadFrame it receives with
// FrameShown. A real backend would hand the slot's bytes to a texture
// upload here; this one just proves the round trip.
type GpuEngine struct {
	*baseEngine
}

func NewGpuEngine(ep *endpoint.Endpoint, mem atomicmem.Mem) *GpuEngine {
	g := &GpuEngine{baseEngine: &baseEngine{name: "gpu", ep: ep, mem: mem, log: xlog.Default("gpu-engine")}}
	g.baseEngine.handle = g.handleCmd
	return g
}

func (g *GpuEngine) handleCmd(tag, ver byte, flags uint16, payload []byte) error {
	cmd, err := endpoint.DearchiveAvCmd(tag, ver, flags, payload)
	if err != nil {
		return err
	}
	upload, ok := cmd.(world.GpuUploadFrame)
	if !ok {
		return nil
	}
	tag, ver, flags, repPayload, err := endpoint.ArchiveReport(world.GpuFrameShown{Lane: upload.Lane})
	if err != nil {
		return err
	}
	return g.emitReport(tag, ver, flags, repPayload)
}
