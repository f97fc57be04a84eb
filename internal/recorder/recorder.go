package recorder

import (
	"time"

	"github.com/traderecks999/data/internal/model"
)

// RunRecord holds everything worth keeping about one completed snapshot run.
type RunRecord struct {
	RunID      string
	AsOfUTC    time.Time
	Window     model.Window
	Trigger    string // gate reason: "forced" or "scheduled"
	Provider   string
	OutputPath string
	Stats      model.Stats
}

// SkipRecord holds a gate decision that stopped a run.
type SkipRecord struct {
	At     time.Time
	Reason string
	Detail string
}

// RunSummary is one row of the run log.
type RunSummary struct {
	RunID                   string
	AsOfUTC                 time.Time
	Window                  string
	Trigger                 string
	CountTickers            int
	CountFetchedNow         int
	CountFilledFromPrevious int
	CountMissing            int
	DurationMS              int64
}

// Recorder persists the run log for later analysis.
type Recorder interface {
	RecordRun(run *RunRecord) error
	RecordSkip(skip *SkipRecord) error
	RecentRuns(limit int) ([]RunSummary, error)
	Close() error
}
