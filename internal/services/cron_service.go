package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper removes stale offline cache generations
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RateLimitCleaner removes expired rate limit records
type RateLimitCleaner interface {
	CleanupExpiredRateLimits() (int64, error)
}

// IdleEvictor releases in-memory state that has not been used recently
type IdleEvictor interface {
	EvictIdle() int
}

// CronJobs selects the jobs a CronService runs. Nil dependencies are skipped.
type CronJobs struct {
	Sweeper         Sweeper
	SweepSchedule   string
	Cleaner         RateLimitCleaner
	CleanupSchedule string
	Evictor         IdleEvictor
	EvictSchedule   string
}

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	cleaner  RateLimitCleaner
	cleanup  string
	evictor  IdleEvictor
	evict    string
	timeout  time.Duration
	logger   logrus.FieldLogger

	mu        sync.Mutex
	lastRun   time.Time
	lastSwept int
	lastErr   error
}

// NewCronService creates a new CronService. Schedules accept the standard five-field
// format as well as descriptors such as "@every 1h".
func NewCronService(jobs CronJobs, logger logrus.FieldLogger) *CronService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CronService{
		cron:     cron.New(),
		sweeper:  jobs.Sweeper,
		schedule: jobs.SweepSchedule,
		cleaner:  jobs.Cleaner,
		cleanup:  jobs.CleanupSchedule,
		evictor:  jobs.Evictor,
		evict:    jobs.EvictSchedule,
		timeout:  time.Minute,
		logger:   logger.WithField("component", "cron"),
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.schedule, s.sweepCacheJob); err != nil {
			return fmt.Errorf("failed to schedule cache sweep job: %w", err)
		}
		s.logger.WithField("schedule", s.schedule).Info("Scheduled: sweep stale cache generations")
	}

	if s.cleaner != nil {
		if _, err := s.cron.AddFunc(s.cleanup, s.cleanupRateLimitsJob); err != nil {
			return fmt.Errorf("failed to schedule rate limit cleanup job: %w", err)
		}
		s.logger.WithField("schedule", s.cleanup).Info("Scheduled: cleanup expired rate limits")
	}

	if s.evictor != nil {
		if _, err := s.cron.AddFunc(s.evict, s.evictIdleJob); err != nil {
			return fmt.Errorf("failed to schedule idle store eviction job: %w", err)
		}
		s.logger.WithField("schedule", s.evict).Info("Scheduled: evict idle profile stores")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")

	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) sweepCacheJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunSweepNow(ctx); err != nil {
		s.logger.WithError(err).Error("Cache sweep failed")
	}
}

func (s *CronService) cleanupRateLimitsJob() {
	removed, err := s.cleaner.CleanupExpiredRateLimits()
	if err != nil {
		s.logger.WithError(err).Error("Rate limit cleanup failed")
		return
	}
	s.logger.WithField("removed", removed).Debug("Rate limit cleanup completed")
}

func (s *CronService) evictIdleJob() {
	evicted := s.evictor.EvictIdle()
	s.logger.WithField("evicted", evicted).Debug("Idle store eviction completed")
}

// RunSweepNow runs the cache sweep immediately
func (s *CronService) RunSweepNow(ctx context.Context) (int, error) {
	if s.sweeper == nil {
		return 0, errors.New("no cache sweeper configured")
	}
	start := time.Now()
	removed, err := s.sweeper.Sweep(ctx)

	s.mu.Lock()
	s.lastRun = start
	s.lastSwept = removed
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		return removed, err
	}

	s.logger.WithFields(logrus.Fields{
		"removed":     removed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Cache sweep completed")

	return removed, nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":    len(entries) > 0,
		"job_count":  len(entries),
		"jobs":       jobs,
		"schedule":   s.schedule,
		"last_sweep": s.lastRun,
		"last_swept": s.lastSwept,
	}
	if s.lastErr != nil {
		status["last_error"] = s.lastErr.Error()
	}
	return status
}
