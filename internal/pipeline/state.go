package pipeline

// State is a position in the run state machine.
type State string

const (
	StateIdle             State = "idle"
	StateValidated        State = "validated"
	StateAudioExtracted   State = "audio_extracted"
	StateTranscribed      State = "transcribed"
	StateLanguageDetected State = "language_detected"
	StateAwaitingEdit     State = "awaiting_edit"
	StateTranslating      State = "translating"
	StateComplete         State = "complete"
	StateAborted          State = "aborted"
)

// String returns the string representation of State.
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateAborted
}

// order ranks the forward states; Aborted is reachable from any of them.
var order = map[State]int{
	StateIdle:             0,
	StateValidated:        1,
	StateAudioExtracted:   2,
	StateTranscribed:      3,
	StateLanguageDetected: 4,
	StateAwaitingEdit:     5,
	StateTranslating:      6,
	StateComplete:         7,
}

// CanTransition reports whether moving from s to next follows the state machine.
// Translating may repeat itself as each language completes.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateAborted {
		return s != StateIdle
	}
	if s == StateTranslating && next == StateTranslating {
		return true
	}
	from, okFrom := order[s]
	to, okTo := order[next]
	return okFrom && okTo && to == from+1
}

// Progress checkpoints reported between stages.
const (
	ProgressStart       = 0
	ProgressExtracted   = 25
	ProgressTranscribed = 50
	ProgressComplete    = 100
)

// TranslationProgress returns the percentage reported after the done-th of
// total translations: 50 + 50*done/total, truncated.
func TranslationProgress(done, total int) int {
	if total <= 0 {
		return ProgressComplete
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	return ProgressTranscribed + (ProgressComplete-ProgressTranscribed)*done/total
}
