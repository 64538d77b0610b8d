package winback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medspa-winback/internal/observability/metrics"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

// SettingsSource loads settings snapshots.
type SettingsSource interface {
	Tenants(ctx context.Context) ([]string, error)
	Get(ctx context.Context, tenantID string) (*Settings, error)
}

// Locker guards a named job against concurrent execution.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(), error)
}

// ReportArchiver persists finished run summaries.
type ReportArchiver interface {
	ArchiveReport(ctx context.Context, kind, runID string, summary any) error
}

// Runner drives processing and attribution runs across all tenants.
type Runner struct {
	settings    SettingsSource
	processor   *Processor
	attributor  *Attributor
	lock        Locker
	archiver    ReportArchiver
	metrics     *metrics.WinbackMetrics
	logger      *logging.Logger
	concurrency int
	now         func() time.Time
}

// RunnerOption customizes runner behavior.
type RunnerOption func(*Runner)

// WithTenantConcurrency bounds how many tenants are processed at once.
func WithTenantConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLock serializes runs through l.
func WithLock(l Locker) RunnerOption {
	return func(r *Runner) {
		r.lock = l
	}
}

// WithArchiver stores every run summary through a.
func WithArchiver(a ReportArchiver) RunnerOption {
	return func(r *Runner) {
		r.archiver = a
	}
}

// WithRunnerMetrics records run durations.
func WithRunnerMetrics(m *metrics.WinbackMetrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithClock overrides the run clock.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner creates a run driver.
func NewRunner(settings SettingsSource, processor *Processor, attributor *Attributor, logger *logging.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Runner{
		settings:    settings,
		processor:   processor,
		attributor:  attributor,
		logger:      logger,
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every enabled tenant once. Each tenant's settings are read a
// single time at the start of its processing.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	release, err := r.acquire(ctx, "run")
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &RunSummary{RunID: uuid.New(), StartedAt: r.now().UTC(), Tenants: []TenantSummary{}}
	now := summary.StartedAt
	logger := r.logger.With("run_id", summary.RunID.String())

	tenants, err := r.settings.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("winback: run: %w", err)
	}

	results := make([]*TenantSummary, len(tenants))
	loadFailed := make([]bool, len(tenants))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, tenantID := range tenants {
		g.Go(func() error {
			settings, err := r.settings.Get(ctx, tenantID)
			if err != nil {
				logger.WithTenant(tenantID).Error("winback: load settings failed", "error", err)
				results[i] = &TenantSummary{TenantID: tenantID, Steps: []StepSummary{}, Errors: []string{err.Error()}}
				loadFailed[i] = true
				return nil
			}
			if !settings.Enabled {
				return nil
			}
			ts := r.processor.ProcessTenant(ctx, settings, now)
			results[i] = &ts
			return nil
		})
	}
	_ = g.Wait()

	for i, ts := range results {
		if ts == nil {
			continue
		}
		if loadFailed[i] {
			summary.TenantsFailed++
		} else {
			summary.TenantsProcessed++
		}
		summary.TotalSent += ts.Sent
		summary.TotalSkipped += ts.Skipped
		summary.TotalFailed += ts.Failed
		summary.Tenants = append(summary.Tenants, *ts)
	}
	summary.FinishedAt = r.now().UTC()

	r.metrics.ObserveRun("run", summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	r.archive(ctx, "run", summary.RunID, summary, logger)
	logger.Info("winback: run finished",
		"tenants", summary.TenantsProcessed,
		"tenants_failed", summary.TenantsFailed,
		"sent", summary.TotalSent,
		"skipped", summary.TotalSkipped,
		"failed", summary.TotalFailed,
	)
	return summary, nil
}

// Attribute runs conversion attribution for every tenant with saved settings,
// including disabled ones, so late bookings are still credited.
func (r *Runner) Attribute(ctx context.Context) (*AttributionRunSummary, error) {
	release, err := r.acquire(ctx, "attribute")
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &AttributionRunSummary{RunID: uuid.New(), StartedAt: r.now().UTC(), Tenants: []AttributionSummary{}}
	now := summary.StartedAt
	logger := r.logger.With("run_id", summary.RunID.String())

	tenants, err := r.settings.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("winback: attribute: %w", err)
	}

	results := make([]AttributionSummary, len(tenants))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, tenantID := range tenants {
		g.Go(func() error {
			as, err := r.attributor.AttributeTenant(ctx, tenantID, now)
			if err != nil {
				logger.WithTenant(tenantID).Error("winback: attribution failed", "error", err)
				as.Error = err.Error()
			}
			results[i] = as
			return nil
		})
	}
	_ = g.Wait()

	for _, as := range results {
		summary.TotalConverted += as.Converted
		summary.RevenueCents += as.RevenueCents
		summary.Tenants = append(summary.Tenants, as)
	}
	summary.FinishedAt = r.now().UTC()

	r.metrics.ObserveRun("attribution", summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	r.archive(ctx, "attribution", summary.RunID, summary, logger)
	logger.Info("winback: attribution finished",
		"tenants", len(summary.Tenants),
		"converted", summary.TotalConverted,
		"revenue_cents", summary.RevenueCents,
	)
	return summary, nil
}

// Preview returns who the step at dayOffset would reach right now, without
// sending or writing anything.
func (r *Runner) Preview(ctx context.Context, tenantID string, dayOffset int) (*ScanResult, error) {
	if dayOffset < 1 || dayOffset > MaxDayOffset {
		return nil, fmt.Errorf("winback: preview: day offset must be between 1 and %d", MaxDayOffset)
	}
	return r.processor.scanner.Scan(ctx, tenantID, dayOffset, r.now().UTC())
}

func (r *Runner) acquire(ctx context.Context, name string) (func(), error) {
	if r.lock == nil {
		return func() {}, nil
	}
	return r.lock.Acquire(ctx, name)
}

func (r *Runner) archive(ctx context.Context, kind string, runID uuid.UUID, summary any, logger *logging.Logger) {
	if r.archiver == nil {
		return
	}
	if err := r.archiver.ArchiveReport(ctx, kind, runID.String(), summary); err != nil {
		logger.Warn("winback: archive report failed", "kind", kind, "error", err)
	}
}
