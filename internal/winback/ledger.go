package winback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger persists attempts in winback_attempts. The unique
// (tenant_id, customer_id, step_offset) constraint makes Record idempotent.
type PostgresLedger struct {
	db DB
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	if pool == nil {
		panic("winback: pgx pool required")
	}
	return &PostgresLedger{db: pool}
}

func newLedgerWithDB(db DB) *PostgresLedger {
	if db == nil {
		panic("winback: db required")
	}
	return &PostgresLedger{db: db}
}

const attemptColumns = `id, tenant_id, customer_id, step_offset, channel, discount_percent, result, sent_at, converted_at, converted_revenue_cents, converted_booking_id`

// Record inserts a, returning false when the step was already recorded for the customer.
func (l *PostgresLedger) Record(ctx context.Context, a *Attempt) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Result == "" {
		a.Result = ResultSent
	}
	tag, err := l.db.Exec(ctx, `
		INSERT INTO winback_attempts (id, tenant_id, customer_id, step_offset, channel, discount_percent, result, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, customer_id, step_offset) DO NOTHING`,
		a.ID, a.TenantID, a.CustomerID, a.StepOffset, string(a.Channel), a.DiscountPercent, string(a.Result), a.SentAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("winback: record attempt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExcludedCustomers returns customers already attempted at stepOffset or
// converted at any step.
func (l *PostgresLedger) ExcludedCustomers(ctx context.Context, tenantID string, stepOffset int) (map[string]struct{}, error) {
	rows, err := l.db.Query(ctx, `
		SELECT DISTINCT customer_id
		FROM winback_attempts
		WHERE tenant_id = $1 AND (step_offset = $2 OR result = 'converted')`, tenantID, stepOffset)
	if err != nil {
		return nil, fmt.Errorf("winback: excluded customers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("winback: scan excluded customer: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("winback: excluded customers: %w", err)
	}
	return out, nil
}

// PendingConversions returns the latest sent attempt of every customer that
// has not converted yet.
func (l *PostgresLedger) PendingConversions(ctx context.Context, tenantID string) ([]Attempt, error) {
	rows, err := l.db.Query(ctx, `
		SELECT DISTINCT ON (a.customer_id)
			a.id, a.tenant_id, a.customer_id, a.step_offset, a.channel, a.discount_percent,
			a.result, a.sent_at, a.converted_at, a.converted_revenue_cents, a.converted_booking_id
		FROM winback_attempts a
		WHERE a.tenant_id = $1 AND a.result = 'sent'
		  AND NOT EXISTS (
			SELECT 1 FROM winback_attempts c
			WHERE c.tenant_id = a.tenant_id AND c.customer_id = a.customer_id AND c.result = 'converted'
		  )
		ORDER BY a.customer_id, a.sent_at DESC, a.step_offset DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("winback: pending conversions: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// MarkConverted flips a sent attempt to converted.
func (l *PostgresLedger) MarkConverted(ctx context.Context, tenantID string, attemptID uuid.UUID, at time.Time, revenueCents int64, bookingID string) (bool, error) {
	tag, err := l.db.Exec(ctx, `
		UPDATE winback_attempts
		SET result = 'converted', converted_at = $1, converted_revenue_cents = $2, converted_booking_id = $3
		WHERE id = $4 AND tenant_id = $5 AND result = 'sent'`,
		at.UTC(), revenueCents, bookingID, attemptID, tenantID,
	)
	if err != nil {
		return false, fmt.Errorf("winback: mark converted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns a tenant's attempts, newest first, optionally filtered by result.
func (l *PostgresLedger) List(ctx context.Context, tenantID string, result *AttemptResult, limit int) ([]Attempt, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if result != nil {
		rows, err = l.db.Query(ctx, `
			SELECT `+attemptColumns+`
			FROM winback_attempts
			WHERE tenant_id = $1 AND result = $2
			ORDER BY sent_at DESC LIMIT $3`, tenantID, string(*result), limit)
	} else {
		rows, err = l.db.Query(ctx, `
			SELECT `+attemptColumns+`
			FROM winback_attempts
			WHERE tenant_id = $1
			ORDER BY sent_at DESC LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("winback: list attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// Stats returns aggregated win-back metrics for the admin dashboard.
func (l *PostgresLedger) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	row := l.db.QueryRow(ctx, `
		SELECT
			COUNT(*) AS sent,
			COUNT(*) FILTER (WHERE result = 'converted') AS converted,
			COALESCE(SUM(converted_revenue_cents), 0) AS revenue
		FROM winback_attempts
		WHERE tenant_id = $1`, tenantID)

	var stats Stats
	if err := row.Scan(&stats.SentCount, &stats.ConvertedCount, &stats.RevenueCents); err != nil {
		return nil, fmt.Errorf("winback: stats: %w", err)
	}
	if stats.SentCount > 0 {
		stats.ConversionPct = float64(stats.ConvertedCount) / float64(stats.SentCount) * 100
	}
	return &stats, nil
}

func scanAttempts(rows pgx.Rows) ([]Attempt, error) {
	var result []Attempt
	for rows.Next() {
		var a Attempt
		var channel, status string
		err := rows.Scan(
			&a.ID, &a.TenantID, &a.CustomerID, &a.StepOffset, &channel,
			&a.DiscountPercent, &status, &a.SentAt,
			&a.ConvertedAt, &a.ConvertedRevenueCents, &a.ConvertedBookingID,
		)
		if err != nil {
			return nil, fmt.Errorf("winback: scan attempt: %w", err)
		}
		a.Channel = Channel(channel)
		a.Result = AttemptResult(status)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("winback: iterate attempts: %w", err)
	}
	return result, nil
}
