package winback

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/medspa-winback/pkg/logging"
)

// CustomerSource reads customer booking history.
type CustomerSource interface {
	// DormantCustomers returns customers whose latest booking falls in (from, to].
	DormantCustomers(ctx context.Context, tenantID string, from, to time.Time) ([]Customer, error)
	// FirstBookingAfter returns the earliest qualifying booking strictly after t, or nil.
	FirstBookingAfter(ctx context.Context, tenantID, customerID string, t time.Time) (*Booking, error)
}

// ExclusionSource answers which customers the ledger already bars from a step.
type ExclusionSource interface {
	// ExcludedCustomers returns customers with an attempt at stepOffset or a
	// converted attempt at any offset.
	ExcludedCustomers(ctx context.Context, tenantID string, stepOffset int) (map[string]struct{}, error)
}

// StepWindow returns the dormancy band for a step: a customer whose latest
// booking is in (from, to] is due. Consecutive offsets produce adjacent,
// non-overlapping bands.
func StepWindow(now time.Time, dayOffset int) (from, to time.Time) {
	to = now.AddDate(0, 0, -dayOffset)
	return to.AddDate(0, 0, -1), to
}

// InWindow reports whether t lies in the band returned by StepWindow.
func InWindow(t, from, to time.Time) bool {
	return t.After(from) && !t.After(to)
}

// ScanResult splits the customers of a dormancy window.
type ScanResult struct {
	Eligible []Customer
	// Handled are in the window but barred by the ledger.
	Handled []Customer
}

// Scanner computes the customers due for a step.
type Scanner struct {
	customers CustomerSource
	ledger    ExclusionSource
	logger    *logging.Logger
}

// NewScanner creates an eligibility scanner.
func NewScanner(customers CustomerSource, ledger ExclusionSource, logger *logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scanner{customers: customers, ledger: ledger, logger: logger}
}

// Scan returns the eligible customers of tenantID for the step at dayOffset.
// It performs reads only.
func (s *Scanner) Scan(ctx context.Context, tenantID string, dayOffset int, now time.Time) (*ScanResult, error) {
	from, to := StepWindow(now, dayOffset)

	candidates, err := s.customers.DormantCustomers(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("winback: scan step %d: load customers: %w", dayOffset, err)
	}
	result := &ScanResult{}
	if len(candidates) == 0 {
		return result, nil
	}

	excluded, err := s.ledger.ExcludedCustomers(ctx, tenantID, dayOffset)
	if err != nil {
		return nil, fmt.Errorf("winback: scan step %d: load exclusions: %w", dayOffset, err)
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		last, ok := c.LastBooking()
		if !ok || !InWindow(last.ScheduledAt, from, to) {
			continue
		}
		if _, barred := excluded[c.ID]; barred {
			result.Handled = append(result.Handled, c)
			continue
		}
		result.Eligible = append(result.Eligible, c)
	}

	s.logger.Debug("winback: step scanned",
		"tenant_id", tenantID,
		"step_offset", dayOffset,
		"window_from", from,
		"window_to", to,
		"candidates", len(candidates),
		"eligible", len(result.Eligible),
		"handled", len(result.Handled),
	)
	return result, nil
}
