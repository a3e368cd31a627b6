// Command fabricdemo wires one fabric image end to end: a main-thread
// scheduler driving kernel, gpu, audio, and fs endpoints, each served
// by a worker runtime running on its own goroutine, talking only
// through the shared-memory fabric built by internal/fabric.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
	"github.com/nmxmxh/gbxfabric/internal/endpoint"
	"github.com/nmxmxh/gbxfabric/internal/fabric"
	"github.com/nmxmxh/gbxfabric/internal/scheduler"
	"github.com/nmxmxh/gbxfabric/internal/workerrt"
	"github.com/nmxmxh/gbxfabric/internal/world"
	"github.com/nmxmxh/gbxfabric/internal/xlog"
)

const demoFrames = 180

func specs() []fabric.ServiceSpec {
	return []fabric.ServiceSpec{
		{Name: "kernel", Spec: fabric.PortSpec{
			LosslessCapacity:   256,
			CoalesceCapacity:   64,
			BestEffortCapacity: 256,
			RepsCapacity:       4096,
			FrameSlotSize:      160 * 144 * 4,
			FrameSlotCount:     4,
		}},
		{Name: "gpu", Spec: fabric.PortSpec{
			LosslessCapacity: 64,
			RepsCapacity:     1024,
		}},
		{Name: "audio", Spec: fabric.PortSpec{
			LosslessCapacity: 64,
			RepsCapacity:     1024,
		}},
		{Name: "fs", Spec: fabric.PortSpec{
			LosslessCapacity: 32,
			CoalesceCapacity: 32,
			RepsCapacity:     256,
		}},
	}
}

func main() {
	log := xlog.Default("fabricdemo")
	log.Info("fabricdemo starting")

	svcSpecs := specs()
	f, err := fabric.BuildNative(svcSpecs)
	if err != nil {
		log.Error("build fabric", xlog.Err(err))
		os.Exit(1)
	}

	mainEps := map[string]*endpoint.Endpoint{}
	for _, s := range svcSpecs {
		ep, err := endpoint.NewMainEndpoint(f, s.Name, false)
		if err != nil {
			log.Error("new main endpoint", xlog.String("service", s.Name), xlog.Err(err))
			os.Exit(1)
		}
		mainEps[s.Name] = ep
	}

	waitable, ok := f.Mem.(atomicmem.Waitable)
	if !ok {
		log.Error("native fabric memory does not support parking")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, name := range []string{"kernel", "gpu", "audio", "fs"} {
		runWorker(ctx, log, f, waitable, name)
	}

	w := world.DefaultWorld()
	sched := scheduler.New(w, scheduler.NewHub(mainEps))

	sched.EnqueueIntent(world.P0, world.IntentLoadRom{RomSpan: world.Span{SlotIdx: 0, ByteLength: 32768}})

	for frame := 0; frame < demoFrames; frame++ {
		if !sched.Tick() {
			log.Warn("scheduler health fatal, attempting recovery", xlog.Int("frame", frame))
			if !sched.TryRecover() {
				log.Error("recovery rate-limited, stopping")
				break
			}
			continue
		}
		if frame%30 == 0 {
			log.Info("frame",
				xlog.Int("frame", frame),
				xlog.Uint64("frame_id", w.FrameID),
				xlog.Bool("gpu_blocked", sched.Health.GpuBlocked),
				xlog.Bool("service_pressure", sched.Health.ServicePressure),
			)
		}
		time.Sleep(time.Millisecond)
	}

	if err := f.Mem.Store32(f.ShutdownOffset, 1); err != nil {
		log.Error("store shutdown flag", xlog.Err(err))
	}
	if _, err := waitable.Notify32(f.GlobalDoorbellOffset, int32(len(mainEps))); err != nil {
		log.Error("wake workers for shutdown", xlog.Err(err))
	}

	cancel()
	time.Sleep(20 * time.Millisecond)
	log.Info("fabricdemo stopped", xlog.Uint64("last_frame_id", w.FrameID))
	fmt.Println("fabricdemo: done")
}

// runWorker opens the named endpoint's worker side, wires its concrete
// engine, and spawns a WorkerRuntime goroutine over it.
func runWorker(ctx context.Context, log *xlog.Logger, f *fabric.Fabric, waitable atomicmem.Waitable, name string) {
	ep, err := endpoint.OpenWorkerEndpoint(f, name)
	if err != nil {
		log.Error("open worker endpoint", xlog.String("service", name), xlog.Err(err))
		os.Exit(1)
	}

	var engine workerrt.ServiceEngine
	switch name {
	case "kernel":
		engine = workerrt.NewKernelEngine(ep, f.Mem, 0)
	case "gpu":
		engine = workerrt.NewGpuEngine(ep, f.Mem)
	case "audio":
		engine = workerrt.NewAudioEngine(ep, f.Mem)
	case "fs":
		engine = workerrt.NewFsEngine(ep, f.Mem)
	default:
		log.Error("no engine for service", xlog.String("service", name))
		os.Exit(1)
	}

	rt := workerrt.NewWorkerRuntime(waitable, f.GlobalDoorbellOffset, f.ShutdownOffset, []workerrt.ServiceEngine{engine})
	go func() {
		if err := rt.Run(ctx); err != nil {
			log.Error("worker runtime exited", xlog.String("service", name), xlog.Err(err))
		}
	}()
}
