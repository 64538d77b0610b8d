package winback

import (
	"time"

	"github.com/google/uuid"
)

// Channel specifies how a step reaches the customer.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelBoth  Channel = "BOTH"
)

// Valid reports whether c is one of the configurable channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelBoth:
		return true
	}
	return false
}

// Deliveries expands c into the single-destination channels it sends on.
func (c Channel) Deliveries() []Channel {
	switch c {
	case ChannelSMS:
		return []Channel{ChannelSMS}
	case ChannelEmail:
		return []Channel{ChannelEmail}
	case ChannelBoth:
		return []Channel{ChannelSMS, ChannelEmail}
	}
	return nil
}

// AttemptResult tracks the lifecycle of a ledger entry.
type AttemptResult string

const (
	ResultSent      AttemptResult = "sent"
	ResultConverted AttemptResult = "converted"
)

// StepConfig is one rung of a tenant's win-back sequence.
type StepConfig struct {
	DayOffset            int     `json:"day_offset" yaml:"day_offset"`
	Channel              Channel `json:"channel" yaml:"channel"`
	Template             string  `json:"template" yaml:"template"`
	EmailSubjectTemplate string  `json:"email_subject_template,omitempty" yaml:"email_subject_template,omitempty"`
	DiscountPercent      int     `json:"discount_percent" yaml:"discount_percent"`
}

// Settings is the per-tenant engine configuration. Steps are kept sorted by
// ascending DayOffset once accepted by Validate.
type Settings struct {
	TenantID    string       `json:"tenant_id"`
	Enabled     bool         `json:"enabled"`
	TenantName  string       `json:"tenant_name,omitempty"`
	BookingLink string       `json:"booking_link,omitempty"`
	SMSFrom     string       `json:"sms_from,omitempty"`
	Steps       []StepConfig `json:"steps"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// DefaultSettings returns the disabled configuration used for tenants that
// have never saved one.
func DefaultSettings(tenantID string) *Settings {
	return &Settings{
		TenantID: tenantID,
		Enabled:  false,
		Steps:    []StepConfig{},
	}
}

// Booking is a single past appointment of a customer.
type Booking struct {
	ID           string    `json:"id"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	RevenueCents int64     `json:"revenue_cents"`
}

// Customer is the read-only view of a tenant's customer used by the engine.
type Customer struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Bookings  []Booking `json:"bookings"`
}

// LastBooking returns the most recent booking regardless of slice order.
func (c *Customer) LastBooking() (Booking, bool) {
	var (
		last  Booking
		found bool
	)
	for _, b := range c.Bookings {
		if !found || b.ScheduledAt.After(last.ScheduledAt) {
			last = b
			found = true
		}
	}
	return last, found
}

// Destination returns the contact address for a single-destination channel.
func (c *Customer) Destination(ch Channel) string {
	switch ch {
	case ChannelSMS:
		return c.Phone
	case ChannelEmail:
		return c.Email
	}
	return ""
}

// FullName joins first and last name.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Attempt is a ledger row: one outreach for (tenant, customer, step).
type Attempt struct {
	ID                    uuid.UUID     `json:"id"`
	TenantID              string        `json:"tenant_id"`
	CustomerID            string        `json:"customer_id"`
	StepOffset            int           `json:"step_offset"`
	Channel               Channel       `json:"channel"`
	DiscountPercent       int           `json:"discount_percent"`
	Result                AttemptResult `json:"result"`
	SentAt                time.Time     `json:"sent_at"`
	ConvertedAt           *time.Time    `json:"converted_at,omitempty"`
	ConvertedRevenueCents *int64        `json:"converted_revenue_cents,omitempty"`
	ConvertedBookingID    *string       `json:"converted_booking_id,omitempty"`
}

// OutboundMessage is the rendered content handed to the gateway.
type OutboundMessage struct {
	TenantID   string
	CustomerID string
	From       string // SMS sender number; empty uses the gateway default
	SenderName string
	ToName     string
	Subject    string
	Body       string
}

// StepSummary holds the counters of a single step within a tenant run.
type StepSummary struct {
	DayOffset int    `json:"day_offset"`
	Eligible  int    `json:"eligible"`
	Sent      int    `json:"sent"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// TenantSummary holds the counters of a single tenant run.
type TenantSummary struct {
	TenantID string        `json:"tenant_id"`
	Sent     int           `json:"sent"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Steps    []StepSummary `json:"steps"`
	Errors   []string      `json:"errors,omitempty"`
}

// RunSummary is returned to the scheduler after a processing run.
type RunSummary struct {
	RunID            uuid.UUID       `json:"run_id"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	TenantsProcessed int             `json:"tenants_processed"`
	TenantsFailed    int             `json:"tenants_failed"`
	TotalSent        int             `json:"total_sent"`
	TotalSkipped     int             `json:"total_skipped"`
	TotalFailed      int             `json:"total_failed"`
	Tenants          []TenantSummary `json:"tenants"`
}

// AttributionSummary holds the counters of a single tenant attribution pass.
type AttributionSummary struct {
	TenantID     string `json:"tenant_id"`
	Checked      int    `json:"checked"`
	Converted    int    `json:"converted"`
	RevenueCents int64  `json:"revenue_cents"`
	Error        string `json:"error,omitempty"`
}

// AttributionRunSummary is returned to the scheduler after an attribution run.
type AttributionRunSummary struct {
	RunID          uuid.UUID            `json:"run_id"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	TotalConverted int                  `json:"total_converted"`
	RevenueCents   int64                `json:"revenue_cents"`
	Tenants        []AttributionSummary `json:"tenants"`
}

// Stats holds aggregated ledger metrics for the admin dashboard.
type Stats struct {
	SentCount      int64   `json:"sent_count"`
	ConvertedCount int64   `json:"converted_count"`
	RevenueCents   int64   `json:"revenue_cents"`
	ConversionPct  float64 `json:"conversion_pct"`
}
