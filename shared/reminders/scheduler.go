// Package reminders runs a job once a day at a fixed local time.
package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is the daily work, for example the owner's arrivals digest.
type Job func(ctx context.Context) error

// SchedulerConfig holds configuration for the daily scheduler.
type SchedulerConfig struct {
	// Timezone for scheduling (e.g., "Europe/London"). Empty means local time.
	Timezone string
	// DailyHour is the hour (0-23) when the job runs.
	DailyHour int
	// DailyMinute is the minute (0-59) when the job runs.
	DailyMinute int
	// CheckInterval is how often to check if it's time to run.
	CheckInterval time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		DailyHour:     18,
		DailyMinute:   0,
		CheckInterval: 1 * time.Minute,
	}
}

// Scheduler runs its job once per calendar day, on the first check at or
// after the configured time.
type Scheduler struct {
	config      SchedulerConfig
	job         Job
	location    *time.Location
	logger      zerolog.Logger
	now         func() time.Time
	mu          sync.Mutex
	lastRunDate string // YYYY-MM-DD of last run
	running     bool
	stopCh      chan struct{}
}

// NewScheduler creates a new daily scheduler.
func NewScheduler(config SchedulerConfig, job Job, logger *zerolog.Logger) (*Scheduler, error) {
	loc := time.Local
	if config.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(config.Timezone); err != nil {
			return nil, err
		}
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}

	return &Scheduler{
		config:   config,
		job:      job,
		location: loc,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start runs the scheduler loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Str("timezone", s.location.String()).
		Str("daily_time", s.formatTime()).
		Msg("daily scheduler started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("daily scheduler stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("daily scheduler stopped")
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

// checkAndRun runs the job if today's run is due and has not happened.
func (s *Scheduler) checkAndRun(ctx context.Context) bool {
	now := s.now().In(s.location)
	today := now.Format("2006-01-02")

	due := time.Date(now.Year(), now.Month(), now.Day(), s.config.DailyHour, s.config.DailyMinute, 0, 0, s.location)
	if now.Before(due) {
		return false
	}

	s.mu.Lock()
	if s.lastRunDate == today {
		s.mu.Unlock()
		return false
	}
	s.lastRunDate = today
	s.mu.Unlock()

	s.RunNow(ctx)
	return true
}

// RunNow forces an immediate run of the job.
func (s *Scheduler) RunNow(ctx context.Context) {
	start := s.now()
	if err := s.job(ctx); err != nil {
		s.logger.Error().Err(err).Msg("daily job failed")
		return
	}
	s.logger.Info().Dur("duration", s.now().Sub(start)).Msg("daily job finished")
}

// formatTime returns the scheduled time as a string.
func (s *Scheduler) formatTime() string {
	return time.Date(2000, 1, 1, s.config.DailyHour, s.config.DailyMinute, 0, 0, time.UTC).Format("15:04")
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
