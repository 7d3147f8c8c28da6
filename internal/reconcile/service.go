package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sphinxfix/internal/policy"
	"sphinxfix/internal/store"
)

var ErrRetriesExhausted = errors.New("database retries exhausted")

// Session is one connection's worth of access to the newznab tables.
type Session interface {
	Now(ctx context.Context) (time.Time, error)
	PolicySettings(ctx context.Context, keys []string) (map[string]string, error)
	EnabledIndexes(ctx context.Context) ([]store.Index, error)
	SetMergeDates(ctx context.Context, id int64, next, last time.Time) error
	SetRebuildDates(ctx context.Context, id int64, next, last time.Time) error
	Close() error
}

// Opener returns a fresh Session; it is called once per attempt.
type Opener func(ctx context.Context) (Session, error)

type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

type Service struct {
	Open Opener
	Lock Locker
	Log  zerolog.Logger

	// Now is the local clock used to decide whether a row is due. New dates are always
	// computed from the database clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	Attempts         int
	Backoff          time.Duration
	Transient        []string
	FailOnExhaustion bool
}

type Report struct {
	RunID            string
	Attempts         int
	Scanned          int
	MergesAdvanced   int
	RebuildsAdvanced int
	RebuildsDisabled int
	Exhausted        bool
	Skipped          bool
}

func NewService(open Opener, log zerolog.Logger) *Service {
	return &Service{
		Open:      open,
		Log:       log,
		Now:       time.Now,
		Sleep:     sleepContext,
		Attempts:  10,
		Backoff:   10 * time.Second,
		Transient: []string{"server has gone away"},
	}
}

// Run performs one corrective pass, retrying the whole pass when the connection drops.
// Counts in the report include rows written by attempts that later failed.
func (s *Service) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	log := s.Log.With().Str("run_id", report.RunID).Logger()

	if s.Lock != nil {
		release, ok, err := s.Lock.Acquire(ctx)
		if err != nil {
			return report, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			log.Info().Msg("another pass holds the run lock, skipping")
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				log.Warn().Err(err).Msg("release run lock")
			}
		}()
	}

	attempts := s.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		report.Attempts = attempt
		err := s.pass(ctx, log, &report)
		if err == nil {
			log.Debug().
				Int("scanned", report.Scanned).
				Int("merges", report.MergesAdvanced).
				Int("rebuilds", report.RebuildsAdvanced).
				Msg("pass complete")
			return report, nil
		}
		if !store.IsTransient(err, s.Transient) {
			return report, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", s.Backoff).Msg("database connection lost, retrying pass")
		if err := s.Sleep(ctx, s.Backoff); err != nil {
			return report, err
		}
	}

	report.Exhausted = true
	log.Warn().Err(lastErr).Int("attempts", attempts).Msg("giving up on this pass")
	if s.FailOnExhaustion {
		return report, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
	}
	return report, nil
}

func (s *Service) pass(ctx context.Context, log zerolog.Logger, report *Report) error {
	sess, err := s.Open(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug().Err(err).Msg("close database")
		}
	}()

	settings, err := sess.PolicySettings(ctx, policy.Keys)
	if err != nil {
		return err
	}
	pol, err := policy.Parse(settings)
	if err != nil {
		return fmt.Errorf("sphinx policy: %w", err)
	}

	indexes, err := sess.EnabledIndexes(ctx)
	if err != nil {
		return fmt.Errorf("list sphinx indexes: %w", err)
	}

	for _, idx := range indexes {
		report.Scanned++
		ilog := log.With().Str("index", idx.Name).Int64("id", idx.ID).Logger()

		if isDue(idx.NextMergeDate, s.Now()) {
			ilog.Info().Str("next_merge", describe(idx.NextMergeDate)).Msg("next merge date has passed, updating")
			next, err := s.advanceMerge(ctx, sess, pol, idx.ID)
			if err != nil {
				return fmt.Errorf("advance merge for %s: %w", idx.Name, err)
			}
			ilog.Debug().Time("next_merge", next).Msg("merge date advanced")
			report.MergesAdvanced++
		}

		if isDue(idx.NextRebuildDate, s.Now()) {
			ilog.Info().Str("next_rebuild", describe(idx.NextRebuildDate)).Msg("next rebuild date has passed, updating")
			next, ok, err := s.advanceRebuild(ctx, sess, pol, idx.ID)
			if err != nil {
				return fmt.Errorf("advance rebuild for %s: %w", idx.Name, err)
			}
			if !ok {
				ilog.Debug().Msg("rebuilds disabled, leaving rebuild dates alone")
				report.RebuildsDisabled++
				continue
			}
			ilog.Debug().Time("next_rebuild", next).Msg("rebuild date advanced")
			report.RebuildsAdvanced++
		}
	}
	return nil
}

func (s *Service) advanceMerge(ctx context.Context, sess Session, pol policy.Policy, id int64) (time.Time, error) {
	now, err := sess.Now(ctx)
	if err != nil {
		return time.Time{}, err
	}
	next := pol.NextMerge(now)
	return next, sess.SetMergeDates(ctx, id, next, now)
}

func (s *Service) advanceRebuild(ctx context.Context, sess Session, pol policy.Policy, id int64) (time.Time, bool, error) {
	if !pol.RebuildEnabled {
		return time.Time{}, false, nil
	}
	now, err := sess.Now(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	next, _ := pol.NextRebuild(now)
	return next, true, sess.SetRebuildDates(ctx, id, next, now)
}

// A NULL due date has never been scheduled and counts as passed.
func isDue(at sql.NullTime, now time.Time) bool {
	return !at.Valid || at.Time.Before(now)
}

func describe(at sql.NullTime) string {
	if !at.Valid {
		return "never"
	}
	return at.Time.Format("2006-01-02 15:04:05")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
