package winback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Bookings in these states never count as a visit or a conversion.
var nonQualifyingStatuses = []string{"cancelled", "no_show"}

// SQLCustomerRepository reads customers and bookings owned by the booking system.
type SQLCustomerRepository struct {
	db *sql.DB
}

func NewSQLCustomerRepository(db *sql.DB) *SQLCustomerRepository {
	if db == nil {
		panic("winback: sql db required")
	}
	return &SQLCustomerRepository{db: db}
}

// DormantCustomers returns customers whose latest qualifying booking falls in
// (from, to]. Each customer carries only that latest booking.
func (r *SQLCustomerRepository) DormantCustomers(ctx context.Context, tenantID string, from, to time.Time) ([]Customer, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH last_visit AS (
			SELECT customer_id, MAX(scheduled_at) AS last_at
			FROM bookings
			WHERE tenant_id = $1 AND status <> ALL($4)
			GROUP BY customer_id
		)
		SELECT c.id, c.first_name, c.last_name, COALESCE(c.phone, ''), COALESCE(c.email, ''),
		       b.id, b.scheduled_at, b.revenue_cents
		FROM last_visit lv
		JOIN customers c ON c.tenant_id = $1 AND c.id = lv.customer_id
		JOIN bookings b ON b.tenant_id = $1 AND b.customer_id = lv.customer_id
		     AND b.scheduled_at = lv.last_at AND b.status <> ALL($4)
		WHERE lv.last_at > $2 AND lv.last_at <= $3
		ORDER BY c.id`,
		tenantID, from.UTC(), to.UTC(), pq.Array(nonQualifyingStatuses),
	)
	if err != nil {
		return nil, fmt.Errorf("winback: dormant customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	seen := make(map[string]struct{})
	for rows.Next() {
		var (
			c Customer
			b Booking
		)
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &b.ID, &b.ScheduledAt, &b.RevenueCents); err != nil {
			return nil, fmt.Errorf("winback: scan dormant customer: %w", err)
		}
		// two bookings at the same instant yield two rows
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		c.TenantID = tenantID
		c.Bookings = []Booking{b}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("winback: dormant customers: %w", err)
	}
	return out, nil
}

// FirstBookingAfter returns the earliest qualifying booking scheduled after t, or nil.
func (r *SQLCustomerRepository) FirstBookingAfter(ctx context.Context, tenantID, customerID string, t time.Time) (*Booking, error) {
	var b Booking
	err := r.db.QueryRowContext(ctx, `
		SELECT id, scheduled_at, revenue_cents
		FROM bookings
		WHERE tenant_id = $1 AND customer_id = $2 AND scheduled_at > $3 AND status <> ALL($4)
		ORDER BY scheduled_at ASC
		LIMIT 1`,
		tenantID, customerID, t.UTC(), pq.Array(nonQualifyingStatuses),
	).Scan(&b.ID, &b.ScheduledAt, &b.RevenueCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("winback: first booking after: %w", err)
	}
	return &b, nil
}
