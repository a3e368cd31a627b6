package workerrt

import (
	"math/rand"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
	"github.com/nmxmxh/gbxfabric/internal/endpoint"
	"github.com/nmxmxh/gbxfabric/internal/world"
	"github.com/nmxmxh/gbxfabric/internal/xlog"
)

// frameWidth/frameHeight/frameBytes are the Game Boy's native display
// dimensions, RGBA8: 160*144*4 = 92160 bytes, matching the byte_length
// carried in every LaneFrame span.
const (
	frameWidth  = 160
	frameHeight = 144
	frameBytes  = frameWidth * frameHeight * 4
)

// KernelEngine stands in for the emulation core: on a Tick it
// acquires a frame slot, writes a synthetic RGBA8 pattern, publishes
// it ready, and replies LaneFrame. A LoadRom/SetInputs/Terminate just
// acknowledges.
type KernelEngine struct {
	*baseEngine
	lane    uint32
	frameID uint64
}

// NewKernelEngine wires ep's lossless/coalesce/best-effort/reps ports
// plus its frame slot pool into a poll_once handler per §4.7.
func NewKernelEngine(ep *endpoint.Endpoint, mem atomicmem.Mem, lane uint32) *KernelEngine {
	k := &KernelEngine{
		baseEngine: &baseEngine{name: "kernel", ep: ep, mem: mem, log: xlog.Default("kernel-engine")},
		lane:       lane,
	}
	k.baseEngine.handle = k.handleCmd
	return k
}

func (k *KernelEngine) handleCmd(tag, ver byte, flags uint16, payload []byte) error {
	cmd, err := endpoint.DearchiveWorkCmd(tag, ver, flags, payload)
	if err != nil {
		return err
	}
	switch c := cmd.(type) {
	case world.KernelTick:
		return k.tick(c)
	case world.KernelLoadRom:
		k.log.Info("rom loaded", xlog.Uint32("group", c.Group))
		return nil
	case world.KernelSetInputs:
		return nil
	case world.KernelTerminate:
		k.log.Info("terminate", xlog.Uint32("group", c.Group))
		return nil
	default:
		return nil
	}
}

func (k *KernelEngine) tick(c world.KernelTick) error {
	idx, ok, err := k.ep.FrameSlots.TryAcquireFree()
	if err != nil {
		return err
	}
	if !ok {
		// No free frame slots: drop this tick's frame, the display
		// will simply see the previous one again next report sweep.
		k.ep.Metrics.Dropped++
		return nil
	}

	buf := make([]byte, frameBytes)
	fill := byte(k.frameID % 255)
	for i := range buf {
		buf[i] = fill
	}
	if err := k.ep.FrameSlots.WriteSlot(idx, buf); err != nil {
		return err
	}
	if ok, err := k.ep.FrameSlots.PushReady(idx); err != nil {
		return err
	} else if !ok {
		if err := k.ep.FrameSlots.ReleaseFree(idx); err != nil {
			return err
		}
		k.ep.Metrics.Dropped++
		return nil
	}

	gen, err := k.ep.FrameSlots.Generation(idx)
	if err != nil {
		return err
	}
	k.frameID++

	tag, ver, flags, payload, err := endpoint.ArchiveReport(world.KernelLaneFrame{
		Lane:    k.lane,
		Span:    world.Span{SlotIdx: idx, Generation: gen, ByteLength: frameBytes},
		FrameID: k.frameID,
	})
	if err != nil {
		return err
	}
	if err := k.emitReport(tag, ver, flags, payload); err != nil {
		return err
	}

	tag, ver, flags, payload, err = endpoint.ArchiveReport(world.KernelTickDone{Group: c.Group, FrameID: k.frameID})
	if err != nil {
		return err
	}
	if err := k.emitReport(tag, ver, flags, payload); err != nil {
		return err
	}
	return k.occasionalDroppedThumb()
}

// occasionalDroppedThumb lets the worker runtime exercise the
// DroppedThumb report path without a real thumbnail pipeline: roughly
// one tick in fifty simulates a thumbnail generator falling behind.
func (k *KernelEngine) occasionalDroppedThumb() error {
	if rand.Intn(50) != 0 {
		return nil
	}
	tag, ver, flags, payload, err := endpoint.ArchiveReport(world.KernelDroppedThumb{Lane: k.lane})
	if err != nil {
		return err
	}
	return k.emitReport(tag, ver, flags, payload)
}
