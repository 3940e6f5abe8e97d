/*
scheduler.go - Background rule scheduler

PURPOSE:
  Drives the compliance sweeps, the daily day-off rollover, the morning
  reminder, and the directory sync on their intervals. The rules
  themselves live in engine/sweeper.go and directory/; this file only
  decides when to invoke them.

CADENCE:
  - Break auto-close:  every BreakInterval (default 2 minutes)
  - Work overrun flag: every WorkInterval (default 30 minutes), which
    also fires the "no work started" reminder once past the configured
    latest start hour
  - Day-off rollover:  once per day, first tick after DailyHour
  - Directory sync:    at the hour/frequency stored in settings

DESIGN:
  - One background goroutine with two tickers; the slower rules piggyback
    on the work ticker and guard themselves against double-firing
  - Settings are re-read on every pass so admin changes apply without a
    restart
  - Stop() blocks until the goroutine has drained

USAGE:
  scheduler := NewScheduler(store, sweeper, syncer, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - engine/sweeper.go: The rules being scheduled
  - directory/directory.go: Sync and its Due() window
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/worktime-engine/directory"
	"github.com/warp/worktime-engine/engine"
)

// Scheduler runs the background rules on their intervals.
type Scheduler struct {
	Store   engine.Store
	Sweeper *engine.Sweeper
	Syncer  *directory.Syncer
	Logger  *slog.Logger

	BreakInterval time.Duration
	WorkInterval  time.Duration
	DailyHour     int // hour after which the daily rollover fires

	breakTicker *time.Ticker
	workTicker  *time.Ticker
	stop        chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex

	lastRollover time.Time // day of the last rollover run
	lastSync     time.Time // hour of the last directory sync
}

// NewScheduler creates a scheduler with default intervals.
func NewScheduler(store engine.Store, sweeper *engine.Sweeper, syncer *directory.Syncer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Store:         store,
		Sweeper:       sweeper,
		Syncer:        syncer,
		Logger:        logger,
		BreakInterval: 2 * time.Minute,
		WorkInterval:  30 * time.Minute,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (sc *Scheduler) Start() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.breakTicker = time.NewTicker(sc.BreakInterval)
	sc.workTicker = time.NewTicker(sc.WorkInterval)
	sc.wg.Add(1)

	go sc.run()

	sc.Logger.Info("scheduler started",
		"break_interval", sc.BreakInterval,
		"work_interval", sc.WorkInterval)
}

// Stop stops the scheduler and waits for the current pass to finish.
func (sc *Scheduler) Stop() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.breakTicker != nil {
		sc.breakTicker.Stop()
		sc.workTicker.Stop()
		close(sc.stop)
		sc.wg.Wait()
		sc.Logger.Info("scheduler stopped")
	}
}

func (sc *Scheduler) run() {
	defer sc.wg.Done()

	// Run both passes immediately on start.
	sc.breakPass()
	sc.workPass()

	for {
		select {
		case <-sc.breakTicker.C:
			sc.breakPass()
		case <-sc.workTicker.C:
			sc.workPass()
		case <-sc.stop:
			return
		}
	}
}

// breakPass force-closes breaks that ran past the daily budget.
func (sc *Scheduler) breakPass() {
	ctx := context.Background()
	settings, err := sc.Store.GetSettings(ctx)
	if err != nil {
		sc.Logger.Error("scheduler settings read failed", "err", err)
		return
	}
	closed, err := sc.Sweeper.AutoCloseOverlongBreaks(ctx, settings.MaxBreakMinutesPerDay)
	if err != nil {
		sc.Logger.Error("break sweep failed", "err", err)
		return
	}
	if closed > 0 {
		sc.Logger.Info("break sweep complete", "closed", closed)
	}
}

// workPass flags over-long work, nudges absentees, and piggybacks the
// daily rollover and directory sync.
func (sc *Scheduler) workPass() {
	ctx := context.Background()
	now := time.Now()

	settings, err := sc.Store.GetSettings(ctx)
	if err != nil {
		sc.Logger.Error("scheduler settings read failed", "err", err)
		return
	}

	flagged, err := sc.Sweeper.AutoFlagOverlongWork(ctx, settings.MaxWorkHoursPerDay)
	if err != nil {
		sc.Logger.Error("work sweep failed", "err", err)
	} else if flagged > 0 {
		sc.Logger.Info("work sweep complete", "flagged", flagged)
	}

	sent, err := sc.Sweeper.NotifyUsersWithoutWork(ctx, settings.LatestStartHour)
	if err != nil {
		sc.Logger.Error("absence reminder failed", "err", err)
	} else if sent > 0 {
		sc.Logger.Info("absence reminders sent", "count", sent)
	}

	sc.maybeRollover(ctx, now)
	sc.maybeSync(ctx, settings, now)
}

func (sc *Scheduler) maybeRollover(ctx context.Context, now time.Time) {
	today := engine.DayStart(now)
	if now.Hour() < sc.DailyHour || sc.lastRollover.Equal(today) {
		return
	}
	updated, err := sc.Sweeper.RolloverDayOffStatuses(ctx)
	if err != nil {
		sc.Logger.Error("day-off rollover failed", "err", err)
		return
	}
	sc.lastRollover = today
	if updated > 0 {
		sc.Logger.Info("day-off rollover complete", "updated", updated)
	}
}

func (sc *Scheduler) maybeSync(ctx context.Context, settings *engine.Settings, now time.Time) {
	if sc.Syncer == nil || !directory.Due(settings, now) {
		return
	}
	window := now.Truncate(time.Hour)
	if sc.lastSync.Equal(window) {
		return
	}
	if _, _, err := sc.Syncer.Sync(ctx); err != nil {
		sc.Logger.Error("directory sync failed", "err", err)
		return
	}
	sc.lastSync = window
}

// RunNow triggers an immediate full pass (for testing/admin).
func (sc *Scheduler) RunNow() {
	sc.breakPass()
	sc.workPass()
}
