// Package scheduler implements the main-context cooperative loop
// described in spec.md §4.8/§4.9: a Hub that fans try_submit/drain out
// across every service endpoint, and a Scheduler that runs one
// frame's worth of intent pulls and report drains against world.World.
package scheduler

import (
	"sort"

	"github.com/nmxmxh/gbxfabric/internal/endpoint"
	"github.com/nmxmxh/gbxfabric/internal/world"
)

// Hub fans the adapter's two operations out across every endpoint by
// service name, and implements the round-robin reply drain of §4.9.
type Hub struct {
	endpoints map[string]*endpoint.Endpoint
	order     []string
	rrStart   int
}

// NewHub indexes endpoints by name in a fixed, sorted iteration order
// so DrainAllRR's fairness is deterministic across runs.
func NewHub(endpoints map[string]*endpoint.Endpoint) *Hub {
	order := make([]string, 0, len(endpoints))
	for name := range endpoints {
		order = append(order, name)
	}
	sort.Strings(order)
	return &Hub{endpoints: endpoints, order: order}
}

// TrySubmitWork routes cmd to the named service's endpoint.
func (h *Hub) TrySubmitWork(service string, cmd world.WorkCmd, displayLane uint32) (endpoint.SubmitOutcome, error) {
	ep, ok := h.endpoints[service]
	if !ok {
		return endpoint.Dropped, nil
	}
	return ep.TrySubmit(cmd, displayLane)
}

// TrySubmitAv routes an immediate A/V command to the named service.
func (h *Hub) TrySubmitAv(service string, cmd world.AvCmd, displayLane uint32) (endpoint.SubmitOutcome, error) {
	ep, ok := h.endpoints[service]
	if !ok {
		return endpoint.Dropped, nil
	}
	return ep.TrySubmitAv(cmd, displayLane)
}

// DrainAllRR pulls up to maxTotal replies total, round-robining one
// reply per service per pass (§4.9). A pass that yields zero replies
// across every service stops the drain early even if maxTotal has not
// been reached. The starting service rotates between calls so no
// single service is perpetually favored when a pass runs out of
// budget before completing.
func (h *Hub) DrainAllRR(maxTotal int) []world.Report {
	if len(h.order) == 0 || maxTotal <= 0 {
		return nil
	}
	out := make([]world.Report, 0, maxTotal)
	for len(out) < maxTotal {
		gotAny := false
		for i := 0; i < len(h.order) && len(out) < maxTotal; i++ {
			name := h.order[(h.rrStart+i)%len(h.order)]
			reps, err := h.endpoints[name].Drain(1)
			if err != nil || len(reps) == 0 {
				continue
			}
			out = append(out, reps[0])
			gotAny = true
		}
		if !gotAny {
			break
		}
	}
	h.rrStart = (h.rrStart + 1) % len(h.order)
	return out
}
