package winbackworker

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/medspa-winback/internal/winback"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

type jobs interface {
	Run(ctx context.Context) (*winback.RunSummary, error)
	Attribute(ctx context.Context) (*winback.AttributionRunSummary, error)
}

// Scheduler triggers win-back runs and attribution passes on fixed intervals.
type Scheduler struct {
	jobs                jobs
	logger              *logging.Logger
	runInterval         time.Duration
	attributionInterval time.Duration
	runOnStart          bool
}

func NewScheduler(jobs jobs, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		jobs:                jobs,
		logger:              logger,
		runInterval:         24 * time.Hour,
		attributionInterval: 6 * time.Hour,
	}
}

func (s *Scheduler) WithRunInterval(d time.Duration) *Scheduler {
	if d > 0 {
		s.runInterval = d
	}
	return s
}

func (s *Scheduler) WithAttributionInterval(d time.Duration) *Scheduler {
	if d > 0 {
		s.attributionInterval = d
	}
	return s
}

// WithRunOnStart runs both jobs once before the first tick.
func (s *Scheduler) WithRunOnStart(enabled bool) *Scheduler {
	s.runOnStart = enabled
	return s
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	runTicker := time.NewTicker(s.runInterval)
	defer runTicker.Stop()
	attrTicker := time.NewTicker(s.attributionInterval)
	defer attrTicker.Stop()

	if s.runOnStart {
		s.runOnce(ctx)
		s.attributeOnce(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-runTicker.C:
			s.runOnce(ctx)
		case <-attrTicker.C:
			s.attributeOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if s.jobs == nil {
		return
	}
	summary, err := s.jobs.Run(ctx)
	if err != nil {
		s.logJobError("run", err)
		return
	}
	s.logger.Info("scheduled win-back run finished",
		"run_id", summary.RunID,
		"tenants", summary.TenantsProcessed,
		"sent", summary.TotalSent,
		"failed", summary.TotalFailed,
	)
}

func (s *Scheduler) attributeOnce(ctx context.Context) {
	if s.jobs == nil {
		return
	}
	summary, err := s.jobs.Attribute(ctx)
	if err != nil {
		s.logJobError("attribute", err)
		return
	}
	s.logger.Info("scheduled attribution finished",
		"run_id", summary.RunID,
		"converted", summary.TotalConverted,
		"revenue_cents", summary.RevenueCents,
	)
}

func (s *Scheduler) logJobError(job string, err error) {
	if errors.Is(err, winback.ErrRunInProgress) {
		s.logger.Info("win-back job already running elsewhere", "job", job)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Error("win-back job failed", "job", job, "error", err)
}
