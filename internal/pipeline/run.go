package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HugeFrog24/gpt-video-translator/internal/langdetect"
)

// Translation is one completed target-language result.
type Translation struct {
	Language string
	Text     string
	Path     string
}

// Run tracks one upload through the pipeline. It is safe for concurrent
// readers; the pipeline is its only writer.
type Run struct {
	mu sync.RWMutex

	id          string
	mediaName   string
	mediaSize   int64
	state       State
	progress    int
	detected    langdetect.Result
	transcript  string
	frozen      string
	languages   []string
	translation []Translation
	err         error
	workDir     string
	mediaPath   string
	createdAt   time.Time
	updatedAt   time.Time
}

func newRun(mediaName string, mediaSize int64, now time.Time) *Run {
	return &Run{
		id:        uuid.NewString(),
		mediaName: mediaName,
		mediaSize: mediaSize,
		state:     StateIdle,
		progress:  ProgressStart,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the run token keying the run's artifacts.
func (r *Run) ID() string {
	return r.id
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Transcript returns the transcript produced by the transcription stage.
func (r *Run) Transcript() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcript
}

// Translations returns completed translations in selection order.
func (r *Run) Translations() []Translation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Translation(nil), r.translation...)
}

// Translation returns the completed result for label.
func (r *Run) Translation(label string) (Translation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.translation {
		if t.Language == label {
			return t, true
		}
	}
	return Translation{}, false
}

// Err returns the error that aborted the run, if any.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Snapshot is a point-in-time copy of a run for observers and views.
type Snapshot struct {
	ID               string
	MediaName        string
	MediaSize        int64
	State            State
	Progress         int
	DetectedLanguage langdetect.Result
	Transcript       string
	EditedTranscript string
	Languages        []string
	Translations     []Translation
	Err              error
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Snapshot returns a copy of the run's current fields.
func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		ID:               r.id,
		MediaName:        r.mediaName,
		MediaSize:        r.mediaSize,
		State:            r.state,
		Progress:         r.progress,
		DetectedLanguage: r.detected,
		Transcript:       r.transcript,
		EditedTranscript: r.frozen,
		Languages:        append([]string(nil), r.languages...),
		Translations:     append([]Translation(nil), r.translation...),
		Err:              r.err,
		CreatedAt:        r.createdAt,
		UpdatedAt:        r.updatedAt,
	}
}

// advance moves to next and raises progress. Progress never decreases.
func (r *Run) advance(next State, progress int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.CanTransition(next) {
		return fmt.Errorf("invalid transition %s -> %s", r.state, next)
	}
	r.state = next
	if progress > r.progress {
		r.progress = progress
	}
	r.updatedAt = now
	return nil
}

func (r *Run) abort(err error, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsTerminal() {
		return
	}
	r.state = StateAborted
	r.err = err
	r.updatedAt = now
}

func (r *Run) setMedia(workDir, mediaPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workDir = workDir
	r.mediaPath = mediaPath
}

func (r *Run) media() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workDir, r.mediaPath
}

func (r *Run) setTranscript(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript = text
}

func (r *Run) setDetected(result langdetect.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected = result
}

func (r *Run) setLanguages(labels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages = append([]string(nil), labels...)
}

// freeze fixes the translation input. A blank edit keeps the original.
func (r *Run) freeze(edited string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.TrimSpace(edited) == "" {
		edited = r.transcript
	}
	r.frozen = edited
	return edited
}

func (r *Run) addTranslation(t Translation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translation = append(r.translation, t)
}
