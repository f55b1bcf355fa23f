package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/services/pipeline"
)

// stopDrainTimeout bounds how long Stop waits for an in-flight fleet run.
const stopDrainTimeout = 30 * time.Second

// Scheduler triggers fleet runs on a cron schedule. A cycle that fires
// while the previous run is still going is skipped, not queued.
type Scheduler struct {
	fleet  *Service
	opts   pipeline.Options
	logger arbor.ILogger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	inRun   bool
	done    chan struct{} // closed when the current run finishes
}

// NewScheduler creates a scheduler around the fleet service.
func NewScheduler(fleet *Service, opts pipeline.Options, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		fleet:  fleet,
		opts:   opts,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start registers the fleet run under cronExpr and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if cronExpr == "" {
		return fmt.Errorf("empty cron expression")
	}

	_, err := s.cron.AddFunc(cronExpr, func() { s.runCycle(ctx) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cronExpr, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", cronExpr).Msg("Fleet scheduler started")
	return nil
}

// runCycle executes one fleet run with the skip-if-running guard.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.mu.Lock()
	if s.inRun {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous fleet run still in progress, skipping this cycle")
		return
	}
	s.inRun = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Panic recovered in scheduled fleet run")
		}
		s.mu.Lock()
		s.inRun = false
		close(s.done)
		s.mu.Unlock()
	}()

	if _, err := s.fleet.RunAll(ctx, s.opts); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled fleet run failed")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop halts the cron loop and waits up to stopDrainTimeout for an
// in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	inRun := s.inRun
	done := s.done
	s.mu.Unlock()

	s.cron.Stop()

	if inRun && done != nil {
		select {
		case <-done:
			s.logger.Info().Msg("In-flight fleet run finished")
		case <-time.After(stopDrainTimeout):
			s.logger.Warn().Dur("waited", stopDrainTimeout).Msg("Fleet run did not finish before shutdown timeout")
		}
	}
	s.logger.Info().Msg("Fleet scheduler stopped")
}
