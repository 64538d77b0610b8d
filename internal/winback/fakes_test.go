package winback

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return testNow.AddDate(0, 0, -n)
}

func customerWithVisit(id string, visit time.Time) Customer {
	return Customer{
		ID:        id,
		TenantID:  "tenant-1",
		FirstName: "Ava",
		LastName:  "Stone",
		Phone:     "+15550001111",
		Email:     id + "@example.com",
		Bookings:  []Booking{{ID: "bk-" + id, ScheduledAt: visit, RevenueCents: 15000}},
	}
}

// memCustomers applies the same window filter as the SQL repository.
type memCustomers struct {
	mu        sync.Mutex
	customers map[string][]Customer
	later     map[string]*Booking
	err       error
	errOnce   map[int]bool
	calls     int
}

func newMemCustomers(customers ...Customer) *memCustomers {
	m := &memCustomers{customers: map[string][]Customer{}, later: map[string]*Booking{}}
	for _, c := range customers {
		m.customers[c.TenantID] = append(m.customers[c.TenantID], c)
	}
	return m
}

func (m *memCustomers) DormantCustomers(_ context.Context, tenantID string, from, to time.Time) ([]Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.errOnce[m.calls] {
		return nil, errors.New("db unavailable")
	}
	if m.err != nil {
		return nil, m.err
	}
	var out []Customer
	for _, c := range m.customers[tenantID] {
		last, ok := c.LastBooking()
		if ok && InWindow(last.ScheduledAt, from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCustomers) FirstBookingAfter(_ context.Context, tenantID, customerID string, t time.Time) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.later[tenantID+"/"+customerID]
	if !ok || !b.ScheduledAt.After(t) {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

// memLedger mirrors the unique (tenant, customer, step) constraint.
type memLedger struct {
	mu        sync.Mutex
	attempts  []Attempt
	recordErr error
}

func (l *memLedger) Record(_ context.Context, a *Attempt) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return false, l.recordErr
	}
	for _, existing := range l.attempts {
		if existing.TenantID == a.TenantID && existing.CustomerID == a.CustomerID && existing.StepOffset == a.StepOffset {
			return false, nil
		}
	}
	l.attempts = append(l.attempts, *a)
	return true, nil
}

func (l *memLedger) ExcludedCustomers(_ context.Context, tenantID string, stepOffset int) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := map[string]struct{}{}
	for _, a := range l.attempts {
		if a.TenantID != tenantID {
			continue
		}
		if a.StepOffset == stepOffset || a.Result == ResultConverted {
			out[a.CustomerID] = struct{}{}
		}
	}
	return out, nil
}

func (l *memLedger) PendingConversions(_ context.Context, tenantID string) ([]Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	converted := map[string]bool{}
	latest := map[string]Attempt{}
	for _, a := range l.attempts {
		if a.TenantID != tenantID {
			continue
		}
		if a.Result == ResultConverted {
			converted[a.CustomerID] = true
			continue
		}
		if cur, ok := latest[a.CustomerID]; !ok || a.SentAt.After(cur.SentAt) ||
			(a.SentAt.Equal(cur.SentAt) && a.StepOffset > cur.StepOffset) {
			latest[a.CustomerID] = a
		}
	}
	var out []Attempt
	for id, a := range latest {
		if !converted[id] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out, nil
}

func (l *memLedger) MarkConverted(_ context.Context, tenantID string, id uuid.UUID, at time.Time, revenueCents int64, bookingID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.attempts {
		a := &l.attempts[i]
		if a.ID != id || a.TenantID != tenantID || a.Result != ResultSent {
			continue
		}
		a.Result = ResultConverted
		a.ConvertedAt = &at
		a.ConvertedRevenueCents = &revenueCents
		a.ConvertedBookingID = &bookingID
		return true, nil
	}
	return false, nil
}

func (l *memLedger) byCustomer(customerID string) []Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Attempt
	for _, a := range l.attempts {
		if a.CustomerID == customerID {
			out = append(out, a)
		}
	}
	return out
}

type sentMessage struct {
	Channel     Channel
	Destination string
	Message     OutboundMessage
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[Channel]error
}

func (g *fakeGateway) Send(_ context.Context, ch Channel, destination string, msg OutboundMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail[ch]; err != nil {
		return err
	}
	g.sent = append(g.sent, sentMessage{Channel: ch, Destination: destination, Message: msg})
	return nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}
