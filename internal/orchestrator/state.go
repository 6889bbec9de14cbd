package orchestrator

// State is a node of the per-job state machine.
type State string

const (
	StatePending            State = "pending"
	StateExtracting         State = "extracting"
	StateTranscribing       State = "transcribing"
	StateGeneratingGuide    State = "generating_guide"
	StateVerifyingAlignment State = "verifying_alignment"
	StateRegeneratingGuide  State = "regenerating_guide"
	StateExporting          State = "exporting"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Percent is the progress reported on entering s.
func (s State) Percent() int {
	switch s {
	case StateExtracting:
		return 5
	case StateTranscribing:
		return 10
	case StateGeneratingGuide:
		return 30
	case StateVerifyingAlignment:
		return 60
	case StateRegeneratingGuide:
		return 65
	case StateExporting:
		return 70
	case StateCompleted:
		return 100
	default:
		return 0
	}
}

const percentTimelineWritten = 90

// Extras keys passed to the progress sink.
const (
	ExtraGuidePath      = "guide_path"
	ExtraTimelinePath   = "timeline_path"
	ExtraEDLPath        = "edl_path"
	ExtraTranscriptPath = "transcript_path"
	ExtraStage          = "stage"
	ExtraOffsetSeconds  = "offset_seconds"
	ExtraDecision       = "decision"
)

// StageAt maps a reported percentage back to the stage that reports it.
func StageAt(percent int) State {
	switch {
	case percent >= 100:
		return StateCompleted
	case percent >= StateExporting.Percent():
		return StateExporting
	case percent >= StateRegeneratingGuide.Percent():
		return StateRegeneratingGuide
	case percent >= StateVerifyingAlignment.Percent():
		return StateVerifyingAlignment
	case percent >= StateGeneratingGuide.Percent():
		return StateGeneratingGuide
	case percent >= StateTranscribing.Percent():
		return StateTranscribing
	case percent >= StateExtracting.Percent():
		return StateExtracting
	default:
		return StatePending
	}
}
