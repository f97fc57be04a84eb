// Package runner wires one snapshot run end to end:
// previous snapshot -> gate -> target set -> reconcile -> write -> record.
package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/traderecks999/data/internal/collector"
	"github.com/traderecks999/data/internal/config"
	"github.com/traderecks999/data/internal/gate"
	"github.com/traderecks999/data/internal/model"
	"github.com/traderecks999/data/internal/reconciler"
	"github.com/traderecks999/data/internal/recorder"
	"github.com/traderecks999/data/internal/snapshot"
	"github.com/traderecks999/data/internal/tickers"
)

// Dataset names the published artifact.
const Dataset = "asx/prices"

// Result describes the outcome of Run.
type Result struct {
	RunID    string
	Decision gate.Decision
	Window   model.Window
	Skipped  bool
	Path     string
	Snapshot *model.Snapshot
}

// Runner executes snapshot runs.
type Runner struct {
	Config   *config.Config
	Source   collector.QuoteSource
	Calendar gate.Calendar
	Recorder recorder.Recorder
	Exchange *time.Location // window classification
	Local    *time.Location // asOfLocal label
	Now      func() time.Time
}

// New creates a Runner from configuration.
func New(cfg *config.Config, src collector.QuoteSource, cal gate.Calendar, rec recorder.Recorder) (*Runner, error) {
	exchange, err := time.LoadLocation(cfg.Gate.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load exchange timezone: %w", err)
	}
	local, err := time.LoadLocation(cfg.Gate.LocalTimezone)
	if err != nil {
		return nil, fmt.Errorf("load local timezone: %w", err)
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Runner{
		Config:   cfg,
		Source:   src,
		Calendar: cal,
		Recorder: rec,
		Exchange: exchange,
		Local:    local,
		Now:      time.Now,
	}, nil
}

// Decide evaluates the gate against the current previous snapshot without fetching anything.
func (r *Runner) Decide(force bool) (gate.Decision, model.Window, error) {
	now := r.Now()
	prev, err := snapshot.Read(r.Config.Files.Output)
	if err != nil {
		return gate.Decision{}, model.WindowNone, err
	}
	d := gate.ShouldRun(now, snapshot.AsOf(prev), r.Config.MaxAge(), force, r.Calendar)
	return d, gate.ClassifyWindow(now, r.Exchange, force), nil
}

// Run performs one snapshot run. It returns an error only when the target set
// cannot be built or the artifact cannot be read or written; in every error case
// the existing artifact is left as it was.
func (r *Runner) Run(ctx context.Context, force bool) (*Result, error) {
	now := r.Now()
	out := r.Config.Files.Output

	prev, err := snapshot.Read(out)
	if err != nil {
		return nil, err
	}
	prevAsOf := snapshot.AsOf(prev)

	decision := gate.ShouldRun(now, prevAsOf, r.Config.MaxAge(), force, r.Calendar)
	if !decision.Proceed {
		log.Printf("[INFO] skip run: %s", decision)
		if err := r.Recorder.RecordSkip(&recorder.SkipRecord{At: now, Reason: string(decision.Reason), Detail: decision.Detail}); err != nil {
			log.Printf("[ERROR] record skip: %v", err)
		}
		return &Result{Decision: decision, Skipped: true, Path: out}, nil
	}
	window := gate.ClassifyWindow(now, r.Exchange, force)
	log.Printf("[INFO] run: %s window=%q", decision, window)

	targets, err := tickers.Load(r.Config.Files.Tickers, r.Config.Files.Extra, r.Config.Files.Universe)
	if err != nil {
		return nil, fmt.Errorf("load target tickers: %w", err)
	}
	log.Printf("[INFO] %d target tickers, source=%s", len(targets), r.Source.Name())

	asOf := now.UTC().Truncate(time.Second)
	records, stats := reconciler.Reconcile(ctx, targets, r.Source, snapshot.Records(prev), reconciler.Options{
		ChunkSize:      r.Config.Reconcile.ChunkSize,
		SmallChunkSize: r.Config.Reconcile.SmallChunkSize,
		SingleCap:      r.Config.Reconcile.SingleCap,
		QueryTimeout:   r.Config.QueryTimeout(),
		Concurrency:    r.Config.Reconcile.Concurrency,
		ChunkAttempts:  r.Config.Reconcile.ChunkAttempts,
		Backoff:        r.Config.Backoff(),
		MissingCap:     r.Config.Reconcile.MissingCap,
		RunAt:          asOf,
		PreviousAsOf:   prevAsOf,
		Now:            r.Now,
	})

	snap := &model.Snapshot{
		Dataset:   Dataset,
		AsOfUTC:   asOf,
		AsOfLocal: asOf.In(r.Local).Format("2006-01-02 15:04:05 MST"),
		Window:    window,
		Source:    r.Source.Name(),
		Stats:     stats,
		Prices:    records,
	}
	if err := snapshot.Write(out, snap); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	log.Printf("[INFO] wrote %s with fresh=%d backfill=%d missing=%d total=%d",
		out, stats.CountFetchedNow, stats.CountFilledFromPrevious, stats.CountMissing, stats.CountTickers)

	runID := uuid.NewString()
	if err := r.Recorder.RecordRun(&recorder.RunRecord{
		RunID:      runID,
		AsOfUTC:    asOf,
		Window:     window,
		Trigger:    string(decision.Reason),
		Provider:   r.Source.Name(),
		OutputPath: out,
		Stats:      stats,
	}); err != nil {
		log.Printf("[ERROR] record run: %v", err)
	}

	return &Result{RunID: runID, Decision: decision, Window: window, Path: out, Snapshot: snap}, nil
}
