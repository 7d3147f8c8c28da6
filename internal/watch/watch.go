package watch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"sphinxfix/internal/metrics"
	"sphinxfix/internal/reconcile"
)

type Runner interface {
	Run(ctx context.Context) (reconcile.Report, error)
}

// Daemon runs corrective passes on a cron schedule and serves health and metrics.
type Daemon struct {
	Runner   Runner
	Schedule string
	Addr     string
	Location *time.Location
	Log      zerolog.Logger
}

func (d *Daemon) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run blocks until ctx is cancelled or the HTTP listener fails. A pass still in flight
// when ctx ends is allowed to finish.
func (d *Daemon) Run(ctx context.Context) error {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	cronLog := d.Log.With().Str("component", "cron").Logger()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&cronLog))),
	)
	if _, err := c.AddFunc(d.Schedule, func() { d.tick(ctx) }); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              d.Addr,
		Handler:           d.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	c.Start()
	d.Log.Info().Str("schedule", d.Schedule).Str("addr", d.Addr).Msg("watching sphinx schedule")

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	<-c.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return err
}

func (d *Daemon) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := d.Runner.Run(ctx)
	metrics.Observe(report, err)
	if err != nil {
		d.Log.Error().Err(err).Str("run_id", report.RunID).Msg("pass failed")
		return
	}
	d.Log.Info().
		Str("run_id", report.RunID).
		Str("result", metrics.Result(report, nil)).
		Int("merges", report.MergesAdvanced).
		Int("rebuilds", report.RebuildsAdvanced).
		Msg("pass finished")
}
