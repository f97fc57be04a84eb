package model

import (
	"encoding/json"
	"time"
)

// Window labels which part of the trading day a run corresponds to. It is metadata only.
type Window string

const (
	WindowNone       Window = ""
	WindowMidSession Window = "mid_session"
	WindowClose      Window = "close"
	WindowManual     Window = "manual"
)

// MarshalJSON encodes the absent window as null.
func (w Window) MarshalJSON() ([]byte, error) {
	if w == WindowNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(w))
}

func (w *Window) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*w = WindowNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*w = Window(s)
	return nil
}

// RunStats is the per-stage breakdown published under "stats".
type RunStats struct {
	Requested       int   `json:"requested"`
	BulkOK          int   `json:"bulk_ok"`
	RetryOK         int   `json:"retry_ok"`
	RetrySmallOK    int   `json:"retry_small_ok"`
	SingleOK        int   `json:"single_ok"`
	SingleAttempted int   `json:"single_attempted"`
	ChunkFailures   int   `json:"chunk_failures"`
	DurationMS      int64 `json:"duration_ms"`
}

// Stats aggregates the outcome of one reconciliation.
// CountFetchedNow + CountFilledFromPrevious + CountMissing == CountTickers.
type Stats struct {
	CountTickers            int      `json:"countTickers"`
	CountFetchedNow         int      `json:"countFetchedNow"`
	CountFilledFromPrevious int      `json:"countFilledFromPrevious"`
	CountMissing            int      `json:"countMissing"`
	Missing                 []string `json:"missing"`
	Detail                  RunStats `json:"stats"`
}

// Snapshot is the persisted artifact of one run.
type Snapshot struct {
	Dataset   string    `json:"dataset,omitempty"`
	AsOfUTC   time.Time `json:"asOfUtc"`
	AsOfLocal string    `json:"asOfLocal,omitempty"`
	Window    Window    `json:"window"`
	Source    string    `json:"source,omitempty"`
	Stats
	Prices map[string]QuoteRecord `json:"prices"`
}
