package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// rebuildLookbackMonths is how far back the scheduled full rebuild reaches.
const rebuildLookbackMonths = 12

// Scheduler drives the periodic re-aggregation passes: a daily incremental
// pass over the previous day, and a monthly full rebuild that repairs any
// drift from missed summarize messages.
type Scheduler struct {
	agg  *Aggregator
	cron *cron.Cron
	log  zerolog.Logger

	incrementalSpec string
	fullRebuildSpec string
}

// NewScheduler creates a Scheduler with the given cron specs.
func NewScheduler(agg *Aggregator, incrementalSpec, fullRebuildSpec string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		agg:             agg,
		cron:            cron.New(cron.WithLocation(time.UTC)),
		log:             log.With().Str("component", "summary_scheduler").Logger(),
		incrementalSpec: incrementalSpec,
		fullRebuildSpec: fullRebuildSpec,
	}
}

// Start registers both jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.incrementalSpec, s.runIncremental); err != nil {
		return fmt.Errorf("schedule incremental pass: %w", err)
	}
	if _, err := s.cron.AddFunc(s.fullRebuildSpec, s.runFullRebuild); err != nil {
		return fmt.Errorf("schedule full rebuild: %w", err)
	}
	s.cron.Start()
	s.log.Info().
		Str("incremental", s.incrementalSpec).
		Str("full_rebuild", s.fullRebuildSpec).
		Msg("Summary scheduler started")
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Summary scheduler stopped")
}

func (s *Scheduler) runIncremental() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	if err := s.agg.RecomputeAll(ctx, yesterday, yesterday); err != nil {
		s.log.Error().Err(err).Msg("Incremental summary pass failed")
		return
	}
	s.log.Info().Msg("Incremental summary pass completed")
}

func (s *Scheduler) runFullRebuild() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	now := time.Now().UTC()
	from := now.AddDate(0, -rebuildLookbackMonths, 0)
	if err := s.agg.RecomputeAll(ctx, from, now); err != nil {
		s.log.Error().Err(err).Msg("Full summary rebuild failed")
		return
	}
	s.log.Info().Msg("Full summary rebuild completed")
}
