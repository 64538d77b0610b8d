package winback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-winback/internal/observability/metrics"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

var attributorTracer = otel.Tracer("medspa.internal.winback.attributor")

// ConversionLedger exposes the attempts awaiting attribution.
type ConversionLedger interface {
	// PendingConversions returns, per customer without a converted attempt,
	// the most recent sent attempt.
	PendingConversions(ctx context.Context, tenantID string) ([]Attempt, error)
	// MarkConverted flips a sent attempt to converted. It returns false when
	// the attempt was no longer in the sent state.
	MarkConverted(ctx context.Context, tenantID string, attemptID uuid.UUID, at time.Time, revenueCents int64, bookingID string) (bool, error)
}

// Attributor credits bookings made after outreach to the attempt that
// preceded them.
type Attributor struct {
	customers CustomerSource
	ledger    ConversionLedger
	metrics   *metrics.WinbackMetrics
	logger    *logging.Logger
}

// NewAttributor creates a conversion attributor.
func NewAttributor(customers CustomerSource, ledger ConversionLedger, m *metrics.WinbackMetrics, logger *logging.Logger) *Attributor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Attributor{customers: customers, ledger: ledger, metrics: m, logger: logger}
}

// AttributeTenant marks at most one attempt per customer as converted. Only
// the latest sent attempt is a candidate, so earlier steps are never credited
// once a later one has gone out.
func (a *Attributor) AttributeTenant(ctx context.Context, tenantID string, now time.Time) (AttributionSummary, error) {
	summary := AttributionSummary{TenantID: tenantID}
	logger := a.logger.WithTenant(tenantID)

	ctx, span := attributorTracer.Start(ctx, "winback.attribute_tenant")
	defer span.End()
	span.SetAttributes(attribute.String("winback.tenant_id", tenantID))

	pending, err := a.ledger.PendingConversions(ctx, tenantID)
	if err != nil {
		return summary, fmt.Errorf("winback: attribute: load pending: %w", err)
	}

	for _, attempt := range pending {
		summary.Checked++
		booking, err := a.customers.FirstBookingAfter(ctx, tenantID, attempt.CustomerID, attempt.SentAt)
		if err != nil {
			logger.Warn("winback: booking lookup failed", "customer_id", attempt.CustomerID, "error", err)
			continue
		}
		if booking == nil {
			continue
		}
		marked, err := a.ledger.MarkConverted(ctx, tenantID, attempt.ID, now, booking.RevenueCents, booking.ID)
		if err != nil {
			logger.Warn("winback: mark converted failed", "attempt_id", attempt.ID, "error", err)
			continue
		}
		if !marked {
			continue
		}
		summary.Converted++
		summary.RevenueCents += booking.RevenueCents
		a.metrics.ObserveConversion(attempt.StepOffset, booking.RevenueCents)
		logger.Info("winback: conversion attributed",
			"customer_id", attempt.CustomerID,
			"step_offset", attempt.StepOffset,
			"booking_id", booking.ID,
			"revenue_cents", booking.RevenueCents,
		)
	}

	span.SetAttributes(attribute.Int("winback.converted", summary.Converted))
	return summary, nil
}
