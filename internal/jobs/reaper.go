package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nekit-S/drowsiness-detection/internal/config"
)

type SessionCloser interface {
	CloseStale(ctx context.Context, before time.Time) (int, error)
}

type EventPurger interface {
	PurgeBefore(ctx context.Context, threshold time.Time) (int64, error)
}

// TryLocker grants a lock to at most one replica. Ticks that lose the race
// are skipped.
type TryLocker interface {
	TryLock(ctx context.Context, name string) (func(), bool, error)
}

type ReaperConfig struct {
	StaleAfter    time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
	PurgeInterval time.Duration
}

// SessionReaper runs the stale-session sweep and the event retention purge
// on independent tickers. Both are safe to repeat.
type SessionReaper struct {
	sessions SessionCloser
	events   EventPurger
	locker   TryLocker
	cfg      ReaperConfig
	now      func() time.Time
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewSessionReaper builds the reaper. locker may be nil for single-instance
// deployments.
func NewSessionReaper(sessions SessionCloser, events EventPurger, locker TryLocker, cfg ReaperConfig) *SessionReaper {
	return &SessionReaper{
		sessions: sessions,
		events:   events,
		locker:   locker,
		cfg:      cfg,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (j *SessionReaper) Start() {
	j.wg.Add(2)
	go j.run(j.cfg.SweepInterval, "stale-sessions", j.SweepStale)
	go j.run(j.cfg.PurgeInterval, "event-retention", j.PurgeExpired)
	log.Info().
		Dur("sweepInterval", j.cfg.SweepInterval).
		Dur("purgeInterval", j.cfg.PurgeInterval).
		Msg("session reaper started")
}

func (j *SessionReaper) Stop() {
	close(j.done)
	j.wg.Wait()
	log.Info().Msg("session reaper stopped")
}

// SweepStale force-ends sessions active for longer than StaleAfter.
func (j *SessionReaper) SweepStale(ctx context.Context) (int64, error) {
	closed, err := j.sessions.CloseStale(ctx, j.now().Add(-j.cfg.StaleAfter))
	return int64(closed), err
}

// PurgeExpired deletes events older than Retention.
func (j *SessionReaper) PurgeExpired(ctx context.Context) (int64, error) {
	return j.events.PurgeBefore(ctx, j.now().Add(-j.cfg.Retention))
}

func (j *SessionReaper) run(interval time.Duration, name string, fn func(context.Context) (int64, error)) {
	defer j.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.runTask(name, fn)

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.runTask(name, fn)
		}
	}
}

func (j *SessionReaper) runTask(name string, fn func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), config.JobRunTimeout)
	defer cancel()

	if j.locker != nil {
		unlock, ok, err := j.locker.TryLock(ctx, "reaper:"+name)
		if err != nil {
			log.Error().Err(err).Str("task", name).Msg("failed to acquire reaper lock")
			return
		}
		if !ok {
			log.Debug().Str("task", name).Msg("reaper task running elsewhere, skipping")
			return
		}
		defer unlock()
	}

	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Str("task", name).Msg("reaper task failed")
	} else if count > 0 {
		log.Info().Int64("count", count).Str("task", name).Msg("reaper task complete")
	}
}
