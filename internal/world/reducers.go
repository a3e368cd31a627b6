package world

// ReduceIntent is the only code path allowed to turn a UI intent into
// typed work commands. It may also mutate w directly (TogglePause,
// SetSpeed); those mutations have no corresponding WorkCmd.
func ReduceIntent(w *World, intent Intent) []WorkCmd {
	switch it := intent.(type) {
	case IntentPumpFrame:
		return []WorkCmd{KernelTick{Group: w.DisplayLane, Budget: 70224, Purpose: PurposeDisplay}}

	case IntentLoadRom:
		w.RomLoaded = true
		return []WorkCmd{KernelLoadRom{Group: w.DisplayLane, RomSpan: it.RomSpan}}

	case IntentSetInputs:
		return []WorkCmd{KernelSetInputs{Group: w.DisplayLane, Mask: it.Mask, Joymask: it.Joymask}}

	case IntentTogglePause:
		w.Paused = !w.Paused
		return nil

	case IntentSetSpeed:
		w.Speed = clampSpeed(it.X)
		return nil

	case IntentPersist:
		return []WorkCmd{FsPersist{Path: it.Path, Manual: it.Manual, Span: it.Span}}

	default:
		return nil
	}
}

// ReduceReport is the only code path allowed to react to a service
// report. It returns immediate A/V commands to submit this frame and
// intents to defer at a declared priority for the next frame.
func ReduceReport(w *World, report Report) (immediate []AvCmd, deferred []PriorityIntent) {
	switch r := report.(type) {
	case KernelTickDone:
		w.FrameID = r.FrameID
		if w.AutoPump {
			deferred = append(deferred, PriorityIntent{Priority: P1, Intent: IntentPumpFrame{}})
		}

	case KernelLaneFrame:
		w.FrameID = r.FrameID
		immediate = append(immediate, GpuUploadFrame{Lane: r.Lane, Span: r.Span})

	case KernelAudioReady:
		immediate = append(immediate, AudioSubmit{Span: r.Span})

	case KernelDroppedThumb:
		// Observability only; no state change, no follow-up command.

	case GpuFrameShown:
		// Acknowledgement only.

	case AudioUnderrun:
		// Acknowledgement only; no state change, nothing is counted.

	case FsSaved:
		// Acknowledgement only; no state change, nothing is counted.
	}
	return immediate, deferred
}
