package workerrt

import (
	"math/rand"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
	"github.com/nmxmxh/gbxfabric/internal/endpoint"
	"github.com/nmxmxh/gbxfabric/internal/world"
	"github.com/nmxmxh/gbxfabric/internal/xlog"
)

// AudioEngine consumes AudioSubmit commands. Roughly one in a hundred
// is treated as arriving too late to mix, surfacing AudioUnderrun
// instead of a normal accept, standing in for a real mixer's buffer
// occupancy check.
type AudioEngine struct {
	*baseEngine
}

func NewAudioEngine(ep *endpoint.Endpoint, mem atomicmem.Mem) *AudioEngine {
	a := &AudioEngine{baseEngine: &baseEngine{name: "audio", ep: ep, mem: mem, log: xlog.Default("audio-engine")}}
	a.baseEngine.handle = a.handleCmd
	return a
}

func (a *AudioEngine) handleCmd(tag, ver byte, flags uint16, payload []byte) error {
	cmd, err := endpoint.DearchiveAvCmd(tag, ver, flags, payload)
	if err != nil {
		return err
	}
	if _, ok := cmd.(world.AudioSubmit); !ok {
		return nil
	}
	if rand.Intn(100) == 0 {
		tag, ver, flags, repPayload, err := endpoint.ArchiveReport(world.AudioUnderrun{})
		if err != nil {
			return err
		}
		return a.emitReport(tag, ver, flags, repPayload)
	}
	return nil
}
