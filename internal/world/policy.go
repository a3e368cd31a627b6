package world

// SubmitPolicy is the four-way outcome-handling class a command is
// routed through (§3, §4.6).
type SubmitPolicy int

const (
	PolicyLossless SubmitPolicy = iota
	PolicyCoalesce
	PolicyBestEffort
	PolicyMust
)

func (p SubmitPolicy) String() string {
	switch p {
	case PolicyLossless:
		return "Lossless"
	case PolicyCoalesce:
		return "Coalesce"
	case PolicyBestEffort:
		return "BestEffort"
	case PolicyMust:
		return "Must"
	default:
		return "Unknown"
	}
}

// DefaultPolicy is the pure function of a command and the current
// display lane that decides which port class carries it, per the
// table in §3:
//
//	Tick(Display)        -> Coalesce
//	Tick(Exploration)     -> BestEffort
//	other KernelCmd       -> Lossless
//	Fs::Persist autosave   -> Coalesce
//	Fs::Persist manual     -> Lossless
//	Gpu::UploadFrame(lane==display_lane) -> Must, else BestEffort
//	Audio::Submit         -> Must
func DefaultPolicy(cmd interface{}, displayLane uint32) SubmitPolicy {
	switch c := cmd.(type) {
	case KernelTick:
		if c.Purpose == PurposeDisplay {
			return PolicyCoalesce
		}
		return PolicyBestEffort
	case KernelLoadRom, KernelSetInputs, KernelTerminate:
		return PolicyLossless
	case FsPersist:
		if c.Manual {
			return PolicyLossless
		}
		return PolicyCoalesce
	case GpuUploadFrame:
		if c.Lane == displayLane {
			return PolicyMust
		}
		return PolicyBestEffort
	case AudioSubmit:
		return PolicyMust
	default:
		return PolicyBestEffort
	}
}
