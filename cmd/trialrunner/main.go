package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/trialrunner/automatic"
	"github.com/domino14/trialrunner/config"
	"github.com/domino14/trialrunner/job"
	"github.com/domino14/trialrunner/ledger"
	"github.com/domino14/trialrunner/runner"
	"github.com/domino14/trialrunner/sink"
)

var (
	GitVersion string
)

func setupLogging(level string) error {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(output).Level(lvl).With().Timestamp().Logger()
	return nil
}

func main() {
	cfg := config.DefaultConfig()
	if err := cfg.Load(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := setupLogging(cfg.GetString(config.ConfigLogLevel)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.Debug().Str("version", GitVersion).Msg("trialrunner")

	if path := cfg.GetString(config.ConfigAnalyze); path != "" {
		summary, err := automatic.AnalyzeResultFile(path)
		if err != nil {
			log.Fatal().Err(err).Msg("analyze-failed")
		}
		fmt.Print(summary)
		return
	}

	if cfg.GetBool(config.ConfigAttention) {
		if err := listAttention(cfg.GetString(config.ConfigLedgerPath)); err != nil {
			log.Fatal().Err(err).Msg("attention-failed")
		}
		return
	}

	ex, err := os.Executable()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get executable path")
	}
	cfg.AdjustRelativePaths(filepath.Dir(ex))

	settings, err := cfg.Settings()
	if err != nil {
		log.Fatal().Err(err).Msg("bad-config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info().Str("signal", s.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := run(ctx, settings); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("batch interrupted")
			os.Exit(130)
		}
		log.Fatal().Err(err).Msg("batch-failed")
	}
}

func loadJobs(s *config.Settings) ([]job.Job, error) {
	var jobs []job.Job
	if s.JobsFile != "" {
		var err error
		if jobs, err = job.LoadFile(s.JobsFile); err != nil {
			return nil, err
		}
		log.Info().Str("file", s.JobsFile).Int("jobs", len(jobs)).Msg("loaded-jobs")
	} else {
		jobs = job.Enumerate(s.Repetitions)
	}
	if s.Shuffle {
		job.Shuffle(jobs)
	}
	return jobs, nil
}

func run(ctx context.Context, s *config.Settings) error {
	jobs, err := loadJobs(s)
	if err != nil {
		return err
	}

	var results sink.Appender = sink.NewResultStore(s.ResultPath)
	if s.NatsURL != "" {
		nm, err := sink.DialNats(s.NatsURL, s.NatsSubject)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer nm.Close()
		results = sink.NewMirror(results, nm)
	}

	opts := automatic.Options{
		Trials:     runner.NewRunner(s),
		Results:    results,
		Checkpoint: sink.NewCheckpoint(s.CheckpointPath),
	}
	if s.LedgerPath != "" {
		l, err := ledger.Open(s.LedgerPath)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer l.Close()
		opts.Ledger = l
	}

	report, err := automatic.NewScheduler(s, opts).Run(ctx, jobs)
	if report != nil {
		fmt.Print(report)
	}
	return err
}

func listAttention(path string) error {
	if path == "" {
		return errors.New("no ledger configured, set --ledger-path")
	}
	l, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer l.Close()
	entries, err := l.Attention(context.Background())
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %d.%d first=%-5v worker=%d port=%d  %-14s %s\n",
			e.StartedAt.Format(time.RFC3339), e.Board, e.Square, e.GoesFirst,
			e.Worker, e.Port, e.Status, e.Detail)
	}
	fmt.Printf("%d trials need attention\n", len(entries))
	return nil
}
