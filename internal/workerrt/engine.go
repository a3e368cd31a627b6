// Package workerrt is the worker side of the fabric: one ServiceEngine
// per endpoint, round-robined by a WorkerRuntime that parks on a
// shared doorbell once every engine reports an idle sweep. The poll
// loop shape follows kernel/threads/supervisor.go's child-supervisor
// sweep, generalized from goroutine-per-child restart supervision to
// a single-threaded cooperative poll per engine, since every engine
// here already owns its own OS thread or worker and must never block
// on another engine's work.
package workerrt

import (
	"context"
	"time"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
	"github.com/nmxmxh/gbxfabric/internal/endpoint"
	"github.com/nmxmxh/gbxfabric/internal/xlog"
)

// ServiceEngine owns the worker side of one endpoint (§4.7). PollOnce
// must never block: it drains at most one lossless command, else one
// coalesced command, else one best-effort command, and returns how
// many commands it actually handled (0 or 1).
type ServiceEngine interface {
	Name() string
	PollOnce() (workDone int, err error)
}

// baseEngine implements the §4.7 priority order (lossless, then
// coalesced, then best-effort) over an *endpoint.Endpoint, delegating
// the actual command handling to a handle func supplied by each
// concrete engine.
type baseEngine struct {
	name string
	ep   *endpoint.Endpoint
	mem  atomicmem.Mem
	log  *xlog.Logger

	handle func(tag, ver byte, flags uint16, payload []byte) error
}

func (e *baseEngine) Name() string { return e.name }

func (e *baseEngine) PollOnce() (int, error) {
	if e.ep.Lossless != nil {
		rec, state, ok, err := e.ep.Lossless.Peek()
		if err != nil {
			return 0, err
		}
		if ok {
			herr := e.handle(rec.Tag, rec.Ver, rec.Flags, rec.Payload)
			if err := e.ep.Lossless.PopAdvance(state); err != nil {
				return 0, err
			}
			return 1, herr
		}
	}
	if e.ep.Coalesce != nil {
		rec, ok, err := e.ep.Coalesce.Take()
		if err != nil {
			return 0, err
		}
		if ok {
			return 1, e.handle(rec.Tag, rec.Ver, rec.Flags, rec.Payload)
		}
	}
	if e.ep.BestEffort != nil {
		rec, state, ok, err := e.ep.BestEffort.Peek()
		if err != nil {
			return 0, err
		}
		if ok {
			herr := e.handle(rec.Tag, rec.Ver, rec.Flags, rec.Payload)
			if err := e.ep.BestEffort.PopAdvance(state); err != nil {
				return 0, err
			}
			return 1, herr
		}
	}
	return 0, nil
}

func (e *baseEngine) emitReport(tag, ver byte, flags uint16, payload []byte) error {
	g, ok, err := e.ep.Reps.TryReserve(tag, ver, flags, uint32(len(payload)))
	if err != nil {
		return err
	}
	if !ok {
		// Reply ring pressure: drop and count, never block the engine.
		e.ep.Metrics.Dropped++
		if e.log != nil {
			e.log.Warn("reply ring full, dropping report", xlog.String("engine", e.name))
		}
		return nil
	}
	if len(payload) > 0 {
		if err := e.mem.CopyFrom(g.PayloadOffset, payload); err != nil {
			return err
		}
	}
	return e.ep.Reps.Commit(g, uint32(len(payload)))
}

// WorkerRuntime round-robins a fixed set of engines, tracking a
// global "did work" counter per sweep and parking on the fabric's
// global doorbell once a full sweep does no work.
type WorkerRuntime struct {
	engines  []ServiceEngine
	mem      atomicmem.Waitable
	doorbell uint32
	shutdown uint32
	log      *xlog.Logger

	idleBackoff time.Duration
}

// NewWorkerRuntime builds a runtime over mem's doorbell/shutdown
// words, polling engines in the order given.
func NewWorkerRuntime(mem atomicmem.Waitable, doorbellOffset, shutdownOffset uint32, engines []ServiceEngine) *WorkerRuntime {
	return &WorkerRuntime{
		engines:     engines,
		mem:         mem,
		doorbell:    doorbellOffset,
		shutdown:    shutdownOffset,
		log:         xlog.Default("workerrt"),
		idleBackoff: time.Millisecond,
	}
}

// Run sweeps engines round-robin until ctx is cancelled or the fabric
// header's shutdown flag is set. Each full idle sweep clears the
// doorbell then parks on it, per §4.7/§5: the only suspension point in
// the whole runtime.
func (r *WorkerRuntime) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		flag, err := r.mem.Load32(r.shutdown)
		if err != nil {
			return err
		}
		if flag != 0 {
			return nil
		}

		didWork := 0
		for _, e := range r.engines {
			n, err := e.PollOnce()
			if err != nil {
				r.log.Error("engine poll failed", xlog.String("engine", e.Name()), xlog.Err(err))
				continue
			}
			didWork += n
		}

		if didWork > 0 {
			continue
		}

		if err := r.mem.Store32(r.doorbell, 0); err != nil {
			return err
		}
		res, err := r.mem.Wait32(r.doorbell, 0, int64(50*time.Millisecond))
		if err != nil {
			return err
		}
		if res == atomicmem.WaitTimedOut {
			time.Sleep(r.idleBackoff)
		}
	}
}
