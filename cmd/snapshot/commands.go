package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/traderecks999/data/internal/scheduler"
)

type runCmd struct {
	force bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "runs one price snapshot now" }
func (*runCmd) Usage() string {
	return `snapshot run [-force]

Reads the previous snapshot, asks the gate whether to proceed, then fetches
prices for every target ticker and atomically replaces the artifact.

Without -force the run is skipped on non-trading days and when the previous
snapshot is younger than gate.max_age_minutes.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "force", false, "Bypass the trading-day and freshness checks.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		log.Printf("[ERROR] %v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	res, err := a.runner.Run(ctx, c.force)
	if err != nil {
		log.Printf("[ERROR] snapshot run: %v", err)
		return subcommands.ExitFailure
	}
	if res.Skipped {
		fmt.Printf("skipped: %s\n", res.Decision)
		return subcommands.ExitSuccess
	}
	s := res.Snapshot
	fmt.Printf("wrote %s: %d tickers, %d fetched, %d from previous, %d missing\n",
		res.Path, s.CountTickers, s.CountFetchedNow, s.CountFilledFromPrevious, s.CountMissing)
	return subcommands.ExitSuccess
}

type gateCmd struct {
	force bool
}

func (*gateCmd) Name() string     { return "gate" }
func (*gateCmd) Synopsis() string { return "prints the gate decision without fetching" }
func (*gateCmd) Usage() string {
	return `snapshot gate [-force]

Evaluates the trading-day and freshness checks against the current artifact
and prints the decision and the window label a run would get.
`
}

func (c *gateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "force", false, "Evaluate as a forced run.")
}

func (c *gateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		log.Printf("[ERROR] %v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	d, w, err := a.runner.Decide(c.force)
	if err != nil {
		log.Printf("[ERROR] gate: %v", err)
		return subcommands.ExitFailure
	}
	window := string(w)
	if window == "" {
		window = "null"
	}
	fmt.Printf("%s\nwindow: %s\n", d, window)
	return subcommands.ExitSuccess
}

type daemonCmd struct{}

func (*daemonCmd) Name() string     { return "daemon" }
func (*daemonCmd) Synopsis() string { return "runs snapshots on the mid-session and close schedule" }
func (*daemonCmd) Usage() string {
	return `snapshot daemon

Runs the cron scheduler in the exchange timezone until SIGINT or SIGTERM.
Set RUN_ON_START=true to run one gated snapshot immediately.
`
}

func (*daemonCmd) SetFlags(*flag.FlagSet) {}

func (*daemonCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		log.Printf("[ERROR] %v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	// An in-flight run finishes on shutdown; Stop waits for it.
	sched := scheduler.NewScheduler(context.WithoutCancel(ctx), a.runner, a.cal.Location())
	if err := sched.RegisterAll(a.cfg.Schedule.MidSessionCron, a.cfg.Schedule.CloseCron); err != nil {
		log.Printf("[ERROR] register cron tasks: %v", err)
		return subcommands.ExitFailure
	}
	sched.Start()

	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing snapshot now")
		go sched.RunNow(false)
	}

	log.Println("[INFO] snapshot daemon is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Println("[INFO] shutdown signal received, stopping...")
	sched.Stop()
	return subcommands.ExitSuccess
}

type runsCmd struct {
	limit int
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "lists recent recorded snapshot runs" }
func (*runsCmd) Usage() string {
	return `snapshot runs [-n N]

Lists the most recent runs from the sqlite run log.
`
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 10, "Number of runs to list.")
}

func (c *runsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		log.Printf("[ERROR] %v", err)
		return subcommands.ExitFailure
	}
	rec := openRecorder(cfg.Database.SQLitePath)
	defer rec.Close()

	runs, err := rec.RecentRuns(c.limit)
	if err != nil {
		log.Printf("[ERROR] list runs: %v", err)
		return subcommands.ExitFailure
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AS OF (UTC)\tWINDOW\tTRIGGER\tTICKERS\tFRESH\tPREVIOUS\tMISSING\tDURATION\tRUN")
	for _, r := range runs {
		window := r.Window
		if window == "" {
			window = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.AsOfUTC.UTC().Format(time.RFC3339), window, r.Trigger,
			r.CountTickers, r.CountFetchedNow, r.CountFilledFromPrevious, r.CountMissing,
			time.Duration(r.DurationMS)*time.Millisecond, r.RunID)
	}
	if err := w.Flush(); err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
