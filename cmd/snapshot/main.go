package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/traderecks999/data/internal/calendar"
	"github.com/traderecks999/data/internal/collector"
	"github.com/traderecks999/data/internal/config"
	"github.com/traderecks999/data/internal/recorder"
	"github.com/traderecks999/data/internal/runner"
)

var configPath = flag.String("config", defaultConfigPath(), "Path to the YAML config file (env CONFIG_PATH)")

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "snapshot")
	subcommands.Register(&gateCmd{}, "snapshot")
	subcommands.Register(&daemonCmd{}, "snapshot")
	subcommands.Register(&runsCmd{}, "recorder")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := subcommands.Execute(ctx)
	stop()
	os.Exit(int(status))
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      *config.Config
	cal      *calendar.Calendar
	recorder recorder.Recorder
	runner   *runner.Runner
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads config and wires source, calendar, recorder and runner.
// The caller must Close the returned app.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cal, err := calendar.New(cfg.Gate.Timezone, cfg.Calendar.Holidays)
	if err != nil {
		return nil, err
	}

	var src collector.QuoteSource
	if cfg.DataSource.BaseURL != "" {
		src = collector.NewRESTSource(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.DataSource.DefaultCurrency, cfg.Proxy, cfg.QueryTimeout())
	} else {
		src = collector.NewYahooSource(cfg.Proxy, cfg.DataSource.DefaultCurrency, cal.Location(), cfg.QueryTimeout())
	}
	log.Printf("[INFO] data source: %s", src.Name())

	rec := openRecorder(cfg.Database.SQLitePath)
	r, err := runner.New(cfg, src, cal, rec)
	if err != nil {
		rec.Close()
		return nil, err
	}
	return &app{cfg: cfg, cal: cal, recorder: rec, runner: r}, nil
}

func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		log.Printf("[WARN] close recorder: %v", err)
	}
}

func openRecorder(path string) recorder.Recorder {
	if path == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(path)
	if err != nil {
		log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
		return recorder.NewNoopRecorder()
	}
	return sr
}
