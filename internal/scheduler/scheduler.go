// Package scheduler runs periodic batch refreshes on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"chanlun/internal/config"
	"chanlun/internal/engine"
)

// BatchRunner refreshes a list of symbols.
type BatchRunner interface {
	RunBatch(ctx context.Context, symbols []string) engine.BatchResult
}

// Scheduler manages the refresh cron task.
type Scheduler struct {
	Cron    *cron.Cron
	runner  BatchRunner
	symbols func() []string
	logger  zerolog.Logger
	ctx     context.Context
}

// New creates a scheduler whose cron parser accepts a leading seconds field.
// Runs that would overlap a still-running refresh are skipped.
func New(ctx context.Context, cfg config.ScheduleConfig, runner BatchRunner, symbols func() []string, logger zerolog.Logger) (*Scheduler, error) {
	cronLogger := cron.PrintfLogger(&logger)
	options := []cron.Option{
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	}

	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		options = append(options, cron.WithLocation(loc))
	}

	return &Scheduler{
		Cron:    cron.New(options...),
		runner:  runner,
		symbols: symbols,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		ctx:     ctx,
	}, nil
}

// Register adds the refresh task.
func (s *Scheduler) Register(spec string) (cron.EntryID, error) {
	id, err := s.Cron.AddFunc(spec, s.refresh)
	if err != nil {
		return 0, fmt.Errorf("register refresh task: %w", err)
	}
	return id, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info().Int("entries", len(s.Cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// RunNow executes the refresh task immediately.
func (s *Scheduler) RunNow() {
	s.refresh()
}

func (s *Scheduler) refresh() {
	if s.ctx.Err() != nil {
		return
	}
	symbols := s.symbols()
	s.logger.Info().Int("symbols", len(symbols)).Msg("Running scheduled refresh")

	result := s.runner.RunBatch(s.ctx, symbols)
	if failed := result.Failed(); len(failed) > 0 {
		s.logger.Warn().Strs("failed", failed).Msg("Scheduled refresh had failures")
	}
}
