// Package world holds the scheduler's authoritative mutable state and
// the two pure reducer functions that are the only code allowed to
// change it (spec.md §3/§4.8). Commands, reports, and intents are
// modeled as small closed sets of Go structs behind marker-method
// interfaces, the "tagged variants over trait objects" design note,
// since both sets are fixed at compile time and never extended at
// runtime.
package world

// Priority orders the scheduler's intent queues, P0 highest.
type Priority int

const (
	P0 Priority = iota
	P1
	P2
)

// Purpose distinguishes a display tick (coalesced, latest-wins) from an
// exploration tick (best-effort, may be dropped under load).
type Purpose int

const (
	PurposeDisplay Purpose = iota
	PurposeExploration
)

// Span identifies a slot-pool chunk by index and generation so a late
// consumer can detect the slot has since been recycled.
type Span struct {
	SlotIdx    uint32
	Generation uint32
	ByteLength uint32
}

// WorkCmd is the sum type Kernel(KernelCmd) | Fs(FsCmd).
type WorkCmd interface{ isWorkCmd() }

type KernelTick struct {
	Group   uint32
	Budget  uint32
	Purpose Purpose
}

type KernelLoadRom struct {
	Group   uint32
	RomSpan Span
}

type KernelSetInputs struct {
	Group   uint32
	Mask    uint32
	Joymask uint32
}

type KernelTerminate struct {
	Group uint32
}

// FsPersist carries the manual/autosave distinction as a flag, per the
// boolean-flag resolution of spec.md §9's open question (see
// DESIGN.md).
type FsPersist struct {
	Path   string
	Manual bool
	Span   Span
}

func (KernelTick) isWorkCmd()      {}
func (KernelLoadRom) isWorkCmd()   {}
func (KernelSetInputs) isWorkCmd() {}
func (KernelTerminate) isWorkCmd() {}
func (FsPersist) isWorkCmd()       {}

// AvCmd is the sum type Gpu(GpuCmd) | Audio(AudioCmd).
type AvCmd interface{ isAvCmd() }

type GpuUploadFrame struct {
	Lane uint32
	Span Span
}

type AudioSubmit struct {
	Span Span
}

func (GpuUploadFrame) isAvCmd() {}
func (AudioSubmit) isAvCmd()    {}

// Report is the sum type Kernel(...) | Gpu(...) | Audio(...) | Fs(...).
type Report interface{ isReport() }

type KernelTickDone struct {
	Group   uint32
	FrameID uint64
}

type KernelLaneFrame struct {
	Lane    uint32
	Span    Span
	FrameID uint64
}

type KernelAudioReady struct {
	Span Span
}

type KernelDroppedThumb struct {
	Lane uint32
}

type GpuFrameShown struct {
	Lane uint32
}

type AudioUnderrun struct{}

type FsSaved struct {
	Path string
	Ok   bool
}

func (KernelTickDone) isReport()     {}
func (KernelLaneFrame) isReport()    {}
func (KernelAudioReady) isReport()   {}
func (KernelDroppedThumb) isReport() {}
func (GpuFrameShown) isReport()      {}
func (AudioUnderrun) isReport()      {}
func (FsSaved) isReport()            {}

// Intent is the UI-facing sum type the scheduler queues by priority.
type Intent interface{ isIntent() }

type IntentPumpFrame struct{}
type IntentLoadRom struct{ RomSpan Span }
type IntentSetInputs struct{ Mask, Joymask uint32 }
type IntentTogglePause struct{}
type IntentSetSpeed struct{ X float64 }
type IntentPersist struct {
	Path   string
	Manual bool
	Span   Span
}

func (IntentPumpFrame) isIntent()   {}
func (IntentLoadRom) isIntent()     {}
func (IntentSetInputs) isIntent()   {}
func (IntentTogglePause) isIntent() {}
func (IntentSetSpeed) isIntent()    {}
func (IntentPersist) isIntent()     {}

// PriorityIntent pairs a deferred intent with the priority it should
// be enqueued at for the next frame.
type PriorityIntent struct {
	Priority Priority
	Intent   Intent
}
