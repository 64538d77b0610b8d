package winback

import (
	"strconv"
	"strings"
	"time"
)

const defaultEmailSubject = "We miss you at {{tenantName}}"

// Render replaces every {{key}} in tmpl with vars[key]. Placeholders without a
// value are left as written. Substituted values are not re-scanned.
func Render(tmpl string, vars map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	var b strings.Builder
	b.Grow(len(tmpl))
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		key := rest[start+2 : start+2+end]
		b.WriteString(rest[:start])
		val, ok := vars[key]
		if !ok {
			// unknown key: emit the braces and rescan from just after them
			b.WriteString("{{")
			rest = rest[start+2:]
			continue
		}
		b.WriteString(val)
		rest = rest[start+2+end+2:]
	}
}

// MessageVars builds the placeholder values for one customer and step.
func MessageVars(c *Customer, s *Settings, step StepConfig, now time.Time) map[string]string {
	firstName := c.FirstName
	if firstName == "" {
		firstName = "there"
	}
	customerName := c.FullName()
	if customerName == "" {
		customerName = firstName
	}
	vars := map[string]string{
		"firstName":    firstName,
		"lastName":     c.LastName,
		"customerName": customerName,
		"tenantName":   s.TenantName,
		"discount":     strconv.Itoa(step.DiscountPercent),
		"bookingLink":  s.BookingLink,
		"stepOffset":   strconv.Itoa(step.DayOffset),
	}
	if last, ok := c.LastBooking(); ok {
		vars["daysSinceVisit"] = strconv.Itoa(int(now.Sub(last.ScheduledAt).Hours() / 24))
	}
	return vars
}

// RenderStep produces the outbound message for a single delivery channel.
func RenderStep(c *Customer, s *Settings, step StepConfig, ch Channel, now time.Time) OutboundMessage {
	vars := MessageVars(c, s, step, now)
	msg := OutboundMessage{
		TenantID:   s.TenantID,
		CustomerID: c.ID,
		From:       s.SMSFrom,
		SenderName: s.TenantName,
		ToName:     c.FullName(),
		Body:       Render(step.Template, vars),
	}
	if ch == ChannelEmail {
		subject := step.EmailSubjectTemplate
		if strings.TrimSpace(subject) == "" {
			subject = defaultEmailSubject
		}
		msg.Subject = Render(subject, vars)
	}
	return msg
}
