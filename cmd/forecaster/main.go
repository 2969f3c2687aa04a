package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/utakatalp/league-forecaster/internal/config"
	"github.com/utakatalp/league-forecaster/internal/logger"
	"github.com/utakatalp/league-forecaster/internal/predict"
	"github.com/utakatalp/league-forecaster/internal/store"
)

const defaultConfigPath = "configs/forecaster.yaml"

type flags struct {
	configPath  string
	mode        string
	region      string
	competition string
	season      string
	runs        int
	since       string
	teams       string
	start       string
	file        string
	reset       bool
}

func parseFlags() flags {
	var f flags
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}
	flag.StringVar(&f.configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.StringVar(&f.mode, "mode", "serve", "serve, forecast, evaluate, standings, schedule, import or migrate")
	flag.StringVar(&f.region, "region", "england", "Competition region")
	flag.StringVar(&f.competition, "competition", "premier", "Competition name within the region")
	flag.StringVar(&f.season, "season", "", "Season, e.g. 2024-25 or 2024")
	flag.IntVar(&f.runs, "runs", 0, "Simulation runs (defaults to the configured value)")
	flag.StringVar(&f.since, "since", "", "Evaluate predictions from this date on (YYYY-MM-DD)")
	flag.StringVar(&f.teams, "teams", "", "Comma separated teams of a generated schedule")
	flag.StringVar(&f.start, "start", "", "First matchday of a generated schedule (YYYY-MM-DD)")
	flag.StringVar(&f.file, "file", "", "JSON file of matches to import")
	flag.BoolVar(&f.reset, "reset", false, "Delete the stored season before generating its schedule")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	cfg, err := config.LoadWithEnv(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	l, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f, cfg, l); err != nil {
		l.Error("forecaster failed", logger.String("mode", f.mode), logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, cfg *config.Config, l *logger.Logger) error {
	st, err := store.NewStore(cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			l.Warn("store close error", logger.Error(err))
		}
	}()

	opts := []predict.Option{
		predict.WithLogger(l),
		predict.WithRetention(cfg.Simulation.RetentionDays),
	}
	app := &app{cfg: cfg, store: st, log: l, opts: opts, flags: f}

	switch f.mode {
	case "serve":
		return app.serve(ctx)
	case "forecast":
		return app.forecast(ctx)
	case "evaluate":
		return app.evaluate(ctx)
	case "standings":
		return app.standings(ctx)
	case "schedule":
		return app.schedule(ctx)
	case "import":
		return app.importMatches(ctx)
	case "migrate":
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		l.Info("schema migrated")
		return nil
	}
	return errors.New("unknown mode " + f.mode)
}
