package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"sphinxfix/internal/config"
	"sphinxfix/internal/lock"
	"sphinxfix/internal/logging"
	"sphinxfix/internal/metrics"
	"sphinxfix/internal/newznab"
	"sphinxfix/internal/reconcile"
	"sphinxfix/internal/store"
	"sphinxfix/internal/watch"
)

func main() {
	os.Exit(cli(os.Args, os.Stdout, os.Stderr))
}

// cli runs the command and returns the process exit status.
func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		name := "sphinxfix"
		if len(args) > 0 {
			name = args[0]
		}
		fmt.Fprintf(stdout, "Please provide the path to your newznab config.php file like so: \n\t%s path_to_config\n", name)
		return 2
	}

	cfg, err := config.Load(os.Getenv("SPHINXFIX_CONFIG"))
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return 1
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, stdout)

	if err := run(cfg, args[1], log); err != nil {
		log.Error().Err(err).Msg("sphinxfix failed")
		return 1
	}
	return 0
}

func run(cfg config.Config, nnConfig string, log zerolog.Logger) error {
	dbCfg, err := newznab.ReadDBConfig(nnConfig)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	dsn, err := dbCfg.DSN(cfg.Database.Driver, loc)
	if err != nil {
		return err
	}

	open := func(ctx context.Context) (reconcile.Session, error) {
		st, err := store.Open(ctx, cfg.Database.Driver, dsn, loc)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	svc := reconcile.NewService(open, log)
	svc.Attempts = cfg.Retry.Attempts
	svc.Backoff = cfg.Retry.Backoff
	svc.Transient = cfg.Retry.Transient
	svc.FailOnExhaustion = cfg.Retry.FailOnExhaustion

	if cfg.Lock.RedisURL != "" {
		locker, err := lock.New(cfg.Lock.RedisURL, cfg.Lock.Key, cfg.Lock.TTL)
		if err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		defer locker.Close()
		svc.Lock = locker
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Watch.Schedule != "" {
		daemon := &watch.Daemon{
			Runner:   svc,
			Schedule: cfg.Watch.Schedule,
			Addr:     cfg.Watch.Addr,
			Location: loc,
			Log:      log,
		}
		return daemon.Run(ctx)
	}

	report, err := svc.Run(ctx)
	metrics.Observe(report, err)
	if err != nil {
		return err
	}
	if !report.Skipped && !report.Exhausted {
		log.Info().
			Str("run_id", report.RunID).
			Int("scanned", report.Scanned).
			Int("merges", report.MergesAdvanced).
			Int("rebuilds", report.RebuildsAdvanced).
			Msg("sphinx dates checked")
	}
	return nil
}
