package scheduler

import (
	"time"

	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/nmxmxh/gbxfabric/internal/endpoint"
	"github.com/nmxmxh/gbxfabric/internal/world"
	"github.com/nmxmxh/gbxfabric/internal/xlog"
)

// Priority levels index directly into Scheduler.queues.
const (
	priorityCount = 3
)

// HealthFlags tracks the cross-frame backpressure state §4.8 requires.
type HealthFlags struct {
	GpuBlocked        bool
	ServicePressure   bool
	Fatal             bool
	StallReliefFrames uint8
}

// gpuStallWindow is the stall_relief_frames value set when the display
// GPU ring first reports WouldBlock (§8 scenario S3).
const gpuStallWindow = 10

// Scheduler runs the per-frame loop of §4.8 against one world.World and
// one Hub. Intents arrive via EnqueueIntent; Tick drains them and the
// services' reports in budgeted phases.
type Scheduler struct {
	World *world.World
	hub   *Hub
	log   *xlog.Logger

	queues [priorityCount][]world.PriorityIntent

	IntentPullBudget int
	ReportBudget     int
	Health           HealthFlags

	// recoveryLimiter bounds how often the scheduler will attempt to
	// clear a Fatal flag and resume submitting to a service whose
	// breaker tripped Closed, so a genuinely dead service doesn't have
	// every frame spend a submit attempt on it.
	recoveryLimiter *limiter.TokenBucket
}

// New builds a Scheduler with the default budgets from §4.8's example
// (intent_pull_budget=3, report_budget=32).
func New(w *world.World, hub *Hub) *Scheduler {
	limiterStore := store.NewMemoryStore(time.Minute)
	tb, _ := limiter.NewTokenBucket(limiter.Config{
		Rate:     1,
		Duration: time.Second,
		Burst:    1,
	}, limiterStore)

	return &Scheduler{
		World:            w,
		hub:              hub,
		log:              xlog.Default("scheduler"),
		IntentPullBudget: 3,
		ReportBudget:     32,
		recoveryLimiter:  tb,
	}
}

// EnqueueIntent appends intent to the back of priority p's queue.
func (s *Scheduler) EnqueueIntent(p world.Priority, intent world.Intent) {
	s.queues[p] = append(s.queues[p], world.PriorityIntent{Priority: p, Intent: intent})
}

func (s *Scheduler) requeueFront(p world.Priority, intent world.Intent) {
	s.queues[p] = append([]world.PriorityIntent{{Priority: p, Intent: intent}}, s.queues[p]...)
}

// popIntent drains P0 first, then P1, then P2, per §4.8 step 2.
func (s *Scheduler) popIntent() (world.PriorityIntent, bool) {
	for p := 0; p < priorityCount; p++ {
		if len(s.queues[p]) > 0 {
			pi := s.queues[p][0]
			s.queues[p] = s.queues[p][1:]
			return pi, true
		}
	}
	return world.PriorityIntent{}, false
}

// Tick runs one frame: it enqueues the driving PumpFrame intent, then
// Phase A (intents) and Phase B (reports), per §4.8. It returns false
// once Health.Fatal becomes set, signaling the caller to stop driving
// further frames.
func (s *Scheduler) Tick() bool {
	s.EnqueueIntent(world.P1, world.IntentPumpFrame{})

	s.phaseA()
	if s.Health.Fatal {
		return false
	}
	s.phaseB()
	if s.Health.Fatal {
		return false
	}

	if s.Health.StallReliefFrames > 0 && !s.Health.GpuBlocked {
		s.Health.StallReliefFrames--
	}
	return true
}

func (s *Scheduler) phaseA() {
	for i := 0; i < s.IntentPullBudget; i++ {
		pi, ok := s.popIntent()
		if !ok {
			break
		}
		cmds := world.ReduceIntent(s.World, pi.Intent)
		for _, cmd := range cmds {
			service := serviceForWorkCmd(cmd)
			policy := world.DefaultPolicy(cmd, s.World.DisplayLane)
			outcome, err := s.hub.TrySubmitWork(service, cmd, s.World.DisplayLane)
			if err != nil {
				s.log.Error("submit work failed", xlog.String("service", service), xlog.Err(err))
				continue
			}

			if outcome == endpoint.Closed {
				s.Health.Fatal = true
				return
			}
			if policy == world.PolicyLossless && (outcome == endpoint.WouldBlock || outcome == endpoint.Closed) {
				s.Health.ServicePressure = true
				s.requeueFront(pi.Priority, pi.Intent)
				break
			}
		}
	}
}

func (s *Scheduler) phaseB() {
	reports := s.hub.DrainAllRR(s.ReportBudget)
	for _, rep := range reports {
		immediate, deferred := world.ReduceReport(s.World, rep)

		for _, cmd := range immediate {
			service := serviceForAvCmd(cmd)
			policy := world.DefaultPolicy(cmd, s.World.DisplayLane)

			if s.Health.GpuBlocked && policy == world.PolicyBestEffort && service == "gpu" {
				continue
			}

			outcome, err := s.hub.TrySubmitAv(service, cmd, s.World.DisplayLane)
			if err != nil {
				s.log.Error("submit av failed", xlog.String("service", service), xlog.Err(err))
				continue
			}

			if outcome == endpoint.Closed {
				s.Health.Fatal = true
				return
			}

			isDisplayGpu := service == "gpu" && isDisplayUpload(cmd, s.World.DisplayLane)
			if policy == world.PolicyMust && isDisplayGpu {
				switch outcome {
				case endpoint.WouldBlock:
					s.Health.GpuBlocked = true
					if s.Health.StallReliefFrames < gpuStallWindow {
						s.Health.StallReliefFrames = gpuStallWindow
					}
				case endpoint.Accepted, endpoint.Coalesced:
					// Clearing gpu_blocked here lets this same frame's
					// end-of-tick "not blocked" check (step 4) perform
					// the actual decrement, so recovery decrements the
					// window exactly once per frame rather than twice.
					s.Health.GpuBlocked = false
				}
			}
		}

		for _, d := range deferred {
			s.EnqueueIntent(d.Priority, d.Intent)
		}
	}
}

func isDisplayUpload(cmd world.AvCmd, displayLane uint32) bool {
	up, ok := cmd.(world.GpuUploadFrame)
	return ok && up.Lane == displayLane
}

func serviceForWorkCmd(cmd world.WorkCmd) string {
	switch cmd.(type) {
	case world.KernelTick, world.KernelLoadRom, world.KernelSetInputs, world.KernelTerminate:
		return "kernel"
	case world.FsPersist:
		return "fs"
	default:
		return ""
	}
}

func serviceForAvCmd(cmd world.AvCmd) string {
	switch cmd.(type) {
	case world.GpuUploadFrame:
		return "gpu"
	case world.AudioSubmit:
		return "audio"
	default:
		return ""
	}
}

// TryRecover attempts to resume scheduling after Health.Fatal, rate
// limited so a service that trips Closed repeatedly doesn't get an
// attempt every single frame. Returns whether recovery was attempted.
func (s *Scheduler) TryRecover() bool {
	if !s.recoveryLimiter.Allow("fatal-recovery") {
		return false
	}
	s.Health.Fatal = false
	s.Health.ServicePressure = false
	return true
}
