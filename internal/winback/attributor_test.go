package winback

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentAttempt(customerID string, offset int, sentAt time.Time) Attempt {
	return Attempt{
		ID:         uuid.New(),
		TenantID:   "tenant-1",
		CustomerID: customerID,
		StepOffset: offset,
		Channel:    ChannelSMS,
		Result:     ResultSent,
		SentAt:     sentAt,
	}
}

func TestAttributeCreditsOnlyLatestAttempt(t *testing.T) {
	ledger := &memLedger{attempts: []Attempt{
		sentAttempt("c-1", 14, daysAgo(16)),
		sentAttempt("c-1", 30, daysAgo(2)),
	}}
	customers := newMemCustomers()
	customers.later["tenant-1/c-1"] = &Booking{ID: "bk-new", ScheduledAt: daysAgo(1), RevenueCents: 22500}

	summary, err := NewAttributor(customers, ledger, nil, nil).AttributeTenant(context.Background(), "tenant-1", testNow)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Converted)
	assert.Equal(t, int64(22500), summary.RevenueCents)

	attempts := ledger.byCustomer("c-1")
	require.Len(t, attempts, 2)
	for _, a := range attempts {
		if a.StepOffset == 30 {
			assert.Equal(t, ResultConverted, a.Result)
			require.NotNil(t, a.ConvertedRevenueCents)
			assert.Equal(t, int64(22500), *a.ConvertedRevenueCents)
			require.NotNil(t, a.ConvertedBookingID)
			assert.Equal(t, "bk-new", *a.ConvertedBookingID)
			require.NotNil(t, a.ConvertedAt)
			assert.Equal(t, testNow, *a.ConvertedAt)
		} else {
			assert.Equal(t, ResultSent, a.Result)
		}
	}
}

func TestAttributeIgnoresBookingsBeforeSend(t *testing.T) {
	ledger := &memLedger{attempts: []Attempt{sentAttempt("c-1", 14, daysAgo(2))}}
	customers := newMemCustomers()
	customers.later["tenant-1/c-1"] = &Booking{ID: "bk-old", ScheduledAt: daysAgo(5), RevenueCents: 1000}

	summary, err := NewAttributor(customers, ledger, nil, nil).AttributeTenant(context.Background(), "tenant-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 0, summary.Converted)
}

func TestAttributeIsRepeatable(t *testing.T) {
	ledger := &memLedger{attempts: []Attempt{sentAttempt("c-1", 14, daysAgo(3))}}
	customers := newMemCustomers()
	customers.later["tenant-1/c-1"] = &Booking{ID: "bk-1", ScheduledAt: daysAgo(1), RevenueCents: 5000}
	attributor := NewAttributor(customers, ledger, nil, nil)

	first, err := attributor.AttributeTenant(context.Background(), "tenant-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Converted)

	second, err := attributor.AttributeTenant(context.Background(), "tenant-1", testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Checked)
	assert.Equal(t, 0, second.Converted)
}

func TestAttributeLeavesUnbookedCustomers(t *testing.T) {
	ledger := &memLedger{attempts: []Attempt{sentAttempt("c-1", 14, daysAgo(3))}}

	summary, err := NewAttributor(newMemCustomers(), ledger, nil, nil).AttributeTenant(context.Background(), "tenant-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Converted)
	assert.Equal(t, ResultSent, ledger.byCustomer("c-1")[0].Result)
}
