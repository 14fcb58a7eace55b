// Package scheduler runs mcwatch's background maintenance: the daily event
// journal cleanup and a daily summary of the watched servers.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/mcwatch/internal/config"
	"github.com/energizer-project/mcwatch/internal/server"
	"github.com/energizer-project/mcwatch/internal/util"
)

// Pruner deletes journal entries older than maxAge.
type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Stats summarizes the watched servers at one point in time.
type Stats struct {
	Observers int
	Trackers  int
	Online    int
	Offline   int
	Pending   int
	Snapshots int
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg     config.JournalConfig
	journal Pruner // nil when the journal is disabled
	manager *server.Manager
	logger  zerolog.Logger
	now     func() time.Time
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg config.JournalConfig, journal Pruner, manager *server.Manager) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		journal: journal,
		manager: manager,
		logger:  util.ComponentLogger("scheduler"),
		now:     time.Now,
	}
}

// Start runs all scheduled tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Msg("scheduler started")

	if s.journal != nil {
		go s.runJournalCleanerLoop(ctx)
	}
	go s.runStatsCollectionLoop(ctx)

	<-ctx.Done()
	s.logger.Info().Msg("scheduler stopped")
}

// runJournalCleanerLoop runs the journal cleaner at the configured time.
func (s *Scheduler) runJournalCleanerLoop(ctx context.Context) {
	for {
		nextRun := NextRun(s.now(), s.cfg.CleanupTime)
		sleepDuration := nextRun.Sub(s.now())
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		s.logger.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("journal cleaner scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration):
			s.CleanJournal(ctx)
		}
	}
}

// CleanJournal removes entries older than the configured retention.
func (s *Scheduler) CleanJournal(ctx context.Context) int64 {
	if s.journal == nil {
		return 0
	}

	retention := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour
	removed, err := s.journal.Prune(ctx, retention)
	if err != nil {
		s.logger.Warn().Err(err).Msg("journal cleaner encountered errors")
		return 0
	}

	s.logger.Info().
		Int64("deleted_entries", removed).
		Int("retention_days", s.cfg.RetentionDays).
		Msg("journal cleaner completed")
	return removed
}

// runStatsCollectionLoop logs a summary once a day.
func (s *Scheduler) runStatsCollectionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logStats(s.CollectStats())
		}
	}
}

// CollectStats counts observers by the state of their latest snapshot.
func (s *Scheduler) CollectStats() Stats {
	observers := s.manager.Observers()
	trackers := s.manager.Trackers()

	st := Stats{Observers: len(observers), Trackers: len(trackers)}
	for _, t := range trackers {
		st.Snapshots += len(t.History())
	}
	for _, o := range observers {
		snap, ok := o.Tracker().LatestSnapshot(false)
		switch {
		case !ok:
			st.Pending++
		case snap.Success:
			st.Online++
		default:
			st.Offline++
		}
	}
	return st
}

func (s *Scheduler) logStats(st Stats) {
	load := util.GetHostLoad()
	s.logger.Info().
		Int("observers", st.Observers).
		Int("trackers", st.Trackers).
		Int("online", st.Online).
		Int("offline", st.Offline).
		Int("pending", st.Pending).
		Int("snapshots", st.Snapshots).
		Uint64("memory_used_mb", load.MemoryUsedMB).
		Int("goroutines", load.Goroutines).
		Msg("daily stats collected")
}

// NextRun returns the next occurrence of the local "HH:MM" clock time after
// now. An unparsable value falls back to 04:00.
func NextRun(now time.Time, clock string) time.Time {
	hour, minute := 4, 0
	parts := strings.Split(clock, ":")
	if len(parts) >= 2 {
		var h, m int
		_, errH := fmt.Sscanf(parts[0], "%d", &h)
		_, errM := fmt.Sscanf(parts[1], "%d", &m)
		if errH == nil && errM == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			hour, minute = h, m
		}
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
