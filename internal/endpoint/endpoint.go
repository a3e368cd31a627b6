package endpoint

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/nmxmxh/gbxfabric/internal/atomicmem"
	"github.com/nmxmxh/gbxfabric/internal/fabric"
	"github.com/nmxmxh/gbxfabric/internal/ports"
	"github.com/nmxmxh/gbxfabric/internal/world"
)

// SubmitOutcome is the public enumeration a try_submit call resolves
// to (§6).
type SubmitOutcome int

const (
	Accepted SubmitOutcome = iota
	Coalesced
	Dropped
	WouldBlock
	Closed
)

func (o SubmitOutcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case Coalesced:
		return "Coalesced"
	case Dropped:
		return "Dropped"
	case WouldBlock:
		return "WouldBlock"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Metrics are the observability counters §7 requires for every
// non-fatal error kind: recorded, never raised.
type Metrics struct {
	Coalesced       uint64
	Dropped         uint64
	WouldBlocks     uint64
	SchemaSkewDrops uint64
	CorruptionDrops uint64
}

// Endpoint bundles one service's ports (§4.6). Exactly one of main or
// worker ever calls the producer-side methods of any given port; the
// other calls the consumer-side methods. The same Endpoint value is
// usable from either side because MsgRing/Mailbox/SlotPool already
// enforce that split internally.
type Endpoint struct {
	Name string

	Lossless   *ports.MsgRing
	Coalesce   *ports.Mailbox
	BestEffort *ports.MsgRing
	Reps       *ports.MsgRing
	FrameSlots *ports.SlotPool
	AudioSlots *ports.SlotPool

	Metrics Metrics

	// breaker trips open (Closed) after three consecutive port-level
	// submit errors against a service that has stopped responding, per
	// §7's "Service closed" error kind, and turns half-open again after
	// its Timeout.
	breaker *gobreaker.CircuitBreaker

	doorbellOffset uint32
	mem            atomicmem.Mem
}

// NewMainEndpoint formats every port region for name (ring/mailbox/
// index-ring headers, slot pool free rings) and returns the handle the
// main-side hub uses. Call exactly once, before any worker opens the
// same fabric.
func NewMainEndpoint(f *fabric.Fabric, name string, debugSlotPools bool) (*Endpoint, error) {
	layout, ok := f.Endpoint(name)
	if !ok {
		return nil, ErrUnknownEndpoint(name)
	}
	e := &Endpoint{Name: name, mem: f.Mem, doorbellOffset: layout.Doorbells.Offset}
	e.breaker = newBreaker(name)

	var err error
	if layout.Lossless != nil {
		if e.Lossless, err = ports.InitMsgRing(f.Mem, layout.Lossless.Offset, layout.Lossless.Length-ports.MsgRingHeaderSize); err != nil {
			return nil, err
		}
	}
	if layout.Coalesce != nil {
		if e.Coalesce, err = ports.InitMailbox(f.Mem, layout.Coalesce.Offset, layout.Coalesce.Length-ports.MailboxHeaderSize); err != nil {
			return nil, err
		}
	}
	if layout.BestEffort != nil {
		if e.BestEffort, err = ports.InitMsgRing(f.Mem, layout.BestEffort.Offset, layout.BestEffort.Length-ports.MsgRingHeaderSize); err != nil {
			return nil, err
		}
	}
	if layout.Reps != nil {
		if e.Reps, err = ports.InitMsgRing(f.Mem, layout.Reps.Offset, layout.Reps.Length-ports.MsgRingHeaderSize); err != nil {
			return nil, err
		}
	}
	if layout.FrameSlots != nil {
		if e.FrameSlots, err = ports.InitSlotPool(f.Mem, layout.FrameSlots.Offset, layout.FrameSlotSize, layout.FrameSlotCount, layout.FrameFree.Offset, layout.FrameReady.Offset, layout.FrameGenBase(), debugSlotPools); err != nil {
			return nil, err
		}
	}
	if layout.AudioSlots != nil {
		if e.AudioSlots, err = ports.InitSlotPool(f.Mem, layout.AudioSlots.Offset, layout.AudioSlotSize, layout.AudioSlotCount, layout.AudioFree.Offset, layout.AudioReady.Offset, layout.AudioGenBase(), debugSlotPools); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// OpenWorkerEndpoint attaches to ports a main endpoint has already
// initialized, without re-formatting any header.
func OpenWorkerEndpoint(f *fabric.Fabric, name string) (*Endpoint, error) {
	layout, ok := f.Endpoint(name)
	if !ok {
		return nil, ErrUnknownEndpoint(name)
	}
	e := &Endpoint{Name: name, mem: f.Mem, doorbellOffset: layout.Doorbells.Offset}
	e.breaker = newBreaker(name)

	var err error
	if layout.Lossless != nil {
		if e.Lossless, err = ports.OpenMsgRing(f.Mem, layout.Lossless.Offset); err != nil {
			return nil, err
		}
	}
	if layout.Coalesce != nil {
		e.Coalesce = ports.OpenMailbox(f.Mem, layout.Coalesce.Offset, layout.Coalesce.Length-ports.MailboxHeaderSize)
	}
	if layout.BestEffort != nil {
		if e.BestEffort, err = ports.OpenMsgRing(f.Mem, layout.BestEffort.Offset); err != nil {
			return nil, err
		}
	}
	if layout.Reps != nil {
		if e.Reps, err = ports.OpenMsgRing(f.Mem, layout.Reps.Offset); err != nil {
			return nil, err
		}
	}
	if layout.FrameSlots != nil {
		if e.FrameSlots, err = ports.OpenSlotPool(f.Mem, layout.FrameSlots.Offset, layout.FrameSlotSize, layout.FrameSlotCount, layout.FrameFree.Offset, layout.FrameReady.Offset, layout.FrameGenBase(), false); err != nil {
			return nil, err
		}
	}
	if layout.AudioSlots != nil {
		if e.AudioSlots, err = ports.OpenSlotPool(f.Mem, layout.AudioSlots.Offset, layout.AudioSlotSize, layout.AudioSlotCount, layout.AudioFree.Offset, layout.AudioReady.Offset, layout.AudioGenBase(), false); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0, // never auto-clear counts; only Timeout reopens to half-open
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// IsClosed reports whether this endpoint's breaker is currently open
// (i.e. the service is being treated as closed/unresponsive).
func (e *Endpoint) IsClosed() bool {
	return e.breaker.State() == gobreaker.StateOpen
}

// recordFailure feeds the breaker a failure without actually invoking
// it through Execute, since the ports layer is non-blocking and has
// already produced its outcome synchronously.
func (e *Endpoint) recordFailure() {
	_, _ = e.breaker.Execute(func() (interface{}, error) { return nil, errClosedSignal })
}

func (e *Endpoint) recordSuccess() {
	_, _ = e.breaker.Execute(func() (interface{}, error) { return nil, nil })
}

// TrySubmit routes cmd to the correct port per world.DefaultPolicy and
// maps the port result to a SubmitOutcome. Never blocks.
func (e *Endpoint) TrySubmit(cmd world.WorkCmd, displayLane uint32) (SubmitOutcome, error) {
	tag, ver, flags, payload, err := ArchiveWorkCmd(cmd)
	if err != nil {
		return 0, err
	}
	return e.submitByPolicy(world.DefaultPolicy(cmd, displayLane), tag, ver, flags, payload)
}

// TrySubmitAv routes an av command (gpu/audio) the same way, for the
// immediate commands world.ReduceReport emits.
func (e *Endpoint) TrySubmitAv(cmd world.AvCmd, displayLane uint32) (SubmitOutcome, error) {
	tag, ver, flags, payload, err := ArchiveAvCmd(cmd)
	if err != nil {
		return 0, err
	}
	return e.submitByPolicy(world.DefaultPolicy(cmd, displayLane), tag, ver, flags, payload)
}

func (e *Endpoint) submitByPolicy(policy world.SubmitPolicy, tag, ver byte, flags uint16, payload []byte) (SubmitOutcome, error) {
	if e.IsClosed() {
		return Closed, nil
	}

	switch policy {
	case world.PolicyLossless, world.PolicyMust:
		outcome, err := e.submitToRing(e.Lossless, tag, ver, flags, payload)
		// WouldBlock is ordinary backpressure (§7: "non-fatal"), not a
		// service failure, so it must never feed the breaker: a run of
		// full-ring frames would otherwise trip Closed and turn a
		// recoverable stall into a fatal one. Only a genuine port/
		// transport error counts against the breaker.
		if err != nil {
			e.recordFailure()
		} else if outcome != WouldBlock {
			e.recordSuccess()
		}
		return outcome, err

	case world.PolicyCoalesce:
		out, err := e.Coalesce.Write(tag, ver, flags, payload)
		if err != nil {
			return 0, err
		}
		if out == ports.WriteCoalesced {
			e.Metrics.Coalesced++
			return Coalesced, nil
		}
		return Accepted, nil

	case world.PolicyBestEffort:
		if e.BestEffort == nil {
			e.Metrics.Dropped++
			return Dropped, nil
		}
		outcome, err := e.submitToRing(e.BestEffort, tag, ver, flags, payload)
		if outcome == WouldBlock {
			e.Metrics.Dropped++
			return Dropped, err
		}
		return outcome, err

	default:
		return Dropped, nil
	}
}

func (e *Endpoint) submitToRing(ring *ports.MsgRing, tag, ver byte, flags uint16, payload []byte) (SubmitOutcome, error) {
	g, ok, err := ring.TryReserve(tag, ver, flags, uint32(len(payload)))
	if err != nil {
		return 0, err
	}
	if !ok {
		e.Metrics.WouldBlocks++
		return WouldBlock, nil
	}
	if len(payload) > 0 {
		if err := e.mem.CopyFrom(g.PayloadOffset, payload); err != nil {
			return 0, err
		}
	}
	if err := ring.Commit(g, uint32(len(payload))); err != nil {
		return 0, err
	}
	return Accepted, nil
}

// Drain pulls up to max reports from the reply ring.
func (e *Endpoint) Drain(max int) ([]world.Report, error) {
	var out []world.Report
	for len(out) < max {
		rec, state, ok, err := e.Reps.Peek()
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		rep, derr := DearchiveReport(rec.Tag, rec.Ver, rec.Flags, rec.Payload)
		if derr != nil {
			e.Metrics.SchemaSkewDrops++
		} else {
			out = append(out, rep)
		}
		if err := e.Reps.PopAdvance(state); err != nil {
			return out, err
		}
	}
	return out, nil
}
