package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/HugeFrog24/gpt-video-translator/internal/pipeline"
)

// recordTimeout bounds a single history write triggered by a run update.
const recordTimeout = 5 * time.Second

// Recorder persists every run update it observes. Write failures are logged
// and never interrupt the run.
type Recorder struct {
	Store  *Store
	Logger *slog.Logger
}

// NewRecorder returns a pipeline observer backed by store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{Store: store, Logger: logger}
}

func (r *Recorder) RunUpdated(snap pipeline.Snapshot) {
	if r == nil || r.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.Store.Record(ctx, snap); err != nil {
		r.Logger.Warn("failed to record run history",
			slog.String("run_id", snap.ID),
			slog.String("state", snap.State.String()),
			slog.String("error", err.Error()))
	}
}
