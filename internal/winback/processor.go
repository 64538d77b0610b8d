package winback

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medspa-winback/internal/observability/metrics"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

var processorTracer = otel.Tracer("medspa.internal.winback.processor")

// Gateway delivers a rendered message on a single channel.
type Gateway interface {
	Send(ctx context.Context, ch Channel, destination string, msg OutboundMessage) error
}

// AttemptRecorder appends attempts to the ledger.
type AttemptRecorder interface {
	// Record inserts a, returning false when an attempt with the same
	// (tenant, customer, step) already exists.
	Record(ctx context.Context, a *Attempt) (bool, error)
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeSent:
		return "sent"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Processor advances one tenant's customers through its configured steps.
type Processor struct {
	scanner        *Scanner
	ledger         AttemptRecorder
	gateway        Gateway
	metrics        *metrics.WinbackMetrics
	logger         *logging.Logger
	concurrency    int
	gatewayTimeout time.Duration
}

// ProcessorOption customizes processor behavior.
type ProcessorOption func(*Processor)

// WithCustomerConcurrency bounds how many customers of one step are handled at once.
func WithCustomerConcurrency(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithGatewayTimeout bounds each gateway call.
func WithGatewayTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.gatewayTimeout = d
		}
	}
}

// WithProcessorMetrics records per-customer outcomes.
func WithProcessorMetrics(m *metrics.WinbackMetrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor creates a step processor.
func NewProcessor(scanner *Scanner, ledger AttemptRecorder, gateway Gateway, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{
		scanner:        scanner,
		ledger:         ledger,
		gateway:        gateway,
		logger:         logger,
		concurrency:    8,
		gatewayTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessTenant runs every step of the settings snapshot in ascending offset
// order. Failures are recorded in the summary; they never stop later steps.
func (p *Processor) ProcessTenant(ctx context.Context, settings *Settings, now time.Time) TenantSummary {
	summary := TenantSummary{TenantID: settings.TenantID, Steps: []StepSummary{}}
	logger := p.logger.WithTenant(settings.TenantID)

	ctx, span := processorTracer.Start(ctx, "winback.process_tenant")
	defer span.End()
	span.SetAttributes(
		attribute.String("winback.tenant_id", settings.TenantID),
		attribute.Int("winback.steps", len(settings.Steps)),
	)

	steps := settings.Steps
	if !sort.SliceIsSorted(steps, func(i, j int) bool { return steps[i].DayOffset < steps[j].DayOffset }) {
		logger.Warn("winback: settings steps out of order, sorting copy")
		steps = append([]StepConfig(nil), steps...)
		sort.Slice(steps, func(i, j int) bool { return steps[i].DayOffset < steps[j].DayOffset })
	}

	for _, step := range steps {
		stepSummary := p.processStep(ctx, settings, step, now, logger)
		summary.Sent += stepSummary.Sent
		summary.Skipped += stepSummary.Skipped
		summary.Failed += stepSummary.Failed
		if stepSummary.Error != "" {
			summary.Errors = append(summary.Errors, stepSummary.Error)
		}
		summary.Steps = append(summary.Steps, stepSummary)
	}

	span.SetAttributes(
		attribute.Int("winback.sent", summary.Sent),
		attribute.Int("winback.failed", summary.Failed),
	)
	logger.Info("winback: tenant processed",
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary
}

func (p *Processor) processStep(ctx context.Context, settings *Settings, step StepConfig, now time.Time, logger *logging.Logger) StepSummary {
	summary := StepSummary{DayOffset: step.DayOffset}
	logger = logger.With("step_offset", step.DayOffset)

	scan, err := p.scanner.Scan(ctx, settings.TenantID, step.DayOffset, now)
	if err != nil {
		logger.Error("winback: scan failed, skipping step", "error", err)
		summary.Error = err.Error()
		return summary
	}
	summary.Eligible = len(scan.Eligible)
	summary.Skipped = len(scan.Handled)
	for range scan.Handled {
		p.metrics.ObserveCustomer(outcomeSkipped.String(), "already_handled")
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.concurrency)
	for i := range scan.Eligible {
		customer := scan.Eligible[i]
		g.Go(func() error {
			out := p.processCustomer(ctx, settings, step, &customer, now, logger)
			mu.Lock()
			defer mu.Unlock()
			switch out {
			case outcomeSent:
				summary.Sent++
			case outcomeSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("winback: step processed",
		"eligible", summary.Eligible,
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary
}

func (p *Processor) processCustomer(ctx context.Context, settings *Settings, step StepConfig, c *Customer, now time.Time, logger *logging.Logger) outcome {
	logger = logger.With("customer_id", c.ID)

	var (
		attempted int
		delivered []Channel
	)
	for _, ch := range step.Channel.Deliveries() {
		dest := strings.TrimSpace(c.Destination(ch))
		if dest == "" {
			continue
		}
		attempted++
		msg := RenderStep(c, settings, step, ch, now)

		sendCtx, cancel := context.WithTimeout(ctx, p.gatewayTimeout)
		err := p.gateway.Send(sendCtx, ch, dest, msg)
		cancel()
		if err != nil {
			logger.Warn("winback: send failed", "channel", ch, "error", err)
			p.metrics.ObserveSend(string(ch), "failed")
			continue
		}
		p.metrics.ObserveSend(string(ch), "sent")
		delivered = append(delivered, ch)
	}

	if attempted == 0 {
		logger.Info("winback: no usable contact for channel", "channel", step.Channel)
		p.metrics.ObserveCustomer(outcomeSkipped.String(), "no_contact")
		return outcomeSkipped
	}
	if len(delivered) == 0 {
		p.metrics.ObserveCustomer(outcomeFailed.String(), "send_failed")
		return outcomeFailed
	}

	attempt := &Attempt{
		ID:              uuid.New(),
		TenantID:        settings.TenantID,
		CustomerID:      c.ID,
		StepOffset:      step.DayOffset,
		Channel:         channelUsed(delivered),
		DiscountPercent: step.DiscountPercent,
		Result:          ResultSent,
		SentAt:          now,
	}
	inserted, err := p.ledger.Record(ctx, attempt)
	if err != nil {
		logger.Error("winback: message delivered but attempt not recorded", "error", err)
		p.metrics.ObserveCustomer(outcomeFailed.String(), "ledger_error")
		return outcomeFailed
	}
	if !inserted {
		logger.Info("winback: attempt already recorded by another run")
		p.metrics.ObserveCustomer(outcomeSkipped.String(), "duplicate")
		return outcomeSkipped
	}
	p.metrics.ObserveCustomer(outcomeSent.String(), "")
	return outcomeSent
}

func channelUsed(delivered []Channel) Channel {
	if len(delivered) > 1 {
		return ChannelBoth
	}
	return delivered[0]
}
