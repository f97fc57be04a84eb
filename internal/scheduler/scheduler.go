package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/traderecks999/data/internal/runner"
)

// SnapshotRunner executes one gated snapshot run.
type SnapshotRunner interface {
	Run(ctx context.Context, force bool) (*runner.Result, error)
}

// Scheduler triggers snapshot runs at the mid-session and close slots.
type Scheduler struct {
	Cron   *cron.Cron
	Runner SnapshotRunner
	Ctx    context.Context
}

// NewScheduler creates a new Scheduler whose specs are evaluated in loc.
// A slot that fires while the previous run is still going is skipped.
func NewScheduler(ctx context.Context, r SnapshotRunner, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		Runner: r,
		Ctx:    ctx,
	}
}

// RegisterAll registers the mid-session and close snapshot slots.
func (s *Scheduler) RegisterAll(midSessionCron, closeCron string) error {
	if _, err := s.Cron.AddFunc(midSessionCron, s.snapshotTask("mid_session")); err != nil {
		return fmt.Errorf("register mid-session task: %w", err)
	}
	if _, err := s.Cron.AddFunc(closeCron, s.snapshotTask("close")); err != nil {
		return fmt.Errorf("register close task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	for _, e := range s.Cron.Entries() {
		log.Printf("[INFO] next snapshot slot at %s", e.Next.Format(time.RFC3339))
	}
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunNow executes a snapshot run immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow(force bool) {
	s.run("manual", force)
}

func (s *Scheduler) snapshotTask(slot string) func() {
	return func() { s.run(slot, false) }
}

func (s *Scheduler) run(slot string, force bool) {
	if err := s.Ctx.Err(); err != nil {
		log.Printf("[WARN] %s slot: shutting down, not running", slot)
		return
	}
	log.Printf("[INFO] running %s snapshot", slot)
	res, err := s.Runner.Run(s.Ctx, force)
	if err != nil {
		log.Printf("[ERROR] %s snapshot: %v", slot, err)
		return
	}
	if res.Skipped {
		log.Printf("[INFO] %s snapshot skipped: %s", slot, res.Decision.Reason)
		return
	}
	log.Printf("[INFO] %s snapshot done: run=%s window=%q", slot, res.RunID, res.Window)
}
