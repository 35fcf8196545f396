package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"abaisprings/internal/orchestrator"
)

// Scheduler runs the periodic gateway health refresh. The refresh is
// best-effort: a slow or failing probe never blocks payment processing.
type Scheduler struct {
	cron   *cron.Cron
	health *orchestrator.HealthRegistry
	logger *zap.Logger
}

// New creates the scheduler with the health refresh job registered.
func New(health *orchestrator.HealthRegistry, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		cron:   cron.New(),
		health: health,
		logger: logger,
	}

	// Every minute; each run is bounded well under the interval.
	_, err := s.cron.AddFunc("* * * * *", s.refreshHealth)
	if err != nil {
		logger.Error("failed to register health refresh job", zap.Error(err))
	}

	return s
}

func (s *Scheduler) refreshHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.health.Refresh(ctx)
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that closes when running
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
