package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/wolfman30/medspa-winback/internal/messaging/telnyxclient"
	"github.com/wolfman30/medspa-winback/internal/notify"
	"github.com/wolfman30/medspa-winback/internal/winback"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

var tracer = otel.Tracer("medspa.internal.gateway")

// ErrChannelUnavailable is returned when no provider is configured for a channel.
var ErrChannelUnavailable = errors.New("gateway: channel not configured")

// SMSClient sends a single SMS.
type SMSClient interface {
	SendMessage(ctx context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error)
}

// Config wires providers into a Dispatcher.
type Config struct {
	SMS                SMSClient
	Email              notify.EmailSender
	DefaultFrom        string
	MessagingProfileID string
	// SMSPerSecond caps outbound SMS throughput; zero disables throttling.
	SMSPerSecond float64
	Logger       *logging.Logger
}

// Dispatcher routes win-back messages to the SMS or email provider.
type Dispatcher struct {
	sms                SMSClient
	email              notify.EmailSender
	defaultFrom        string
	messagingProfileID string
	smsLimiter         *rate.Limiter
	logger             *logging.Logger
}

// NewDispatcher creates a gateway dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		sms:                cfg.SMS,
		email:              cfg.Email,
		defaultFrom:        strings.TrimSpace(cfg.DefaultFrom),
		messagingProfileID: strings.TrimSpace(cfg.MessagingProfileID),
		logger:             logger,
	}
	if cfg.SMSPerSecond > 0 {
		burst := int(cfg.SMSPerSecond)
		if burst < 1 {
			burst = 1
		}
		d.smsLimiter = rate.NewLimiter(rate.Limit(cfg.SMSPerSecond), burst)
	}
	return d
}

// Send delivers msg to destination on a single channel.
func (d *Dispatcher) Send(ctx context.Context, ch winback.Channel, destination string, msg winback.OutboundMessage) error {
	ctx, span := tracer.Start(ctx, "gateway.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("winback.channel", string(ch)),
			attribute.String("winback.tenant_id", msg.TenantID),
		),
	)
	defer span.End()

	var err error
	switch ch {
	case winback.ChannelSMS:
		err = d.sendSMS(ctx, destination, msg)
	case winback.ChannelEmail:
		err = d.sendEmail(ctx, destination, msg)
	default:
		err = fmt.Errorf("gateway: unsupported channel %q", ch)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Dispatcher) sendSMS(ctx context.Context, to string, msg winback.OutboundMessage) error {
	if d.sms == nil {
		return fmt.Errorf("%w: sms", ErrChannelUnavailable)
	}
	if d.smsLimiter != nil {
		if err := d.smsLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("gateway: sms throttle: %w", err)
		}
	}
	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = d.defaultFrom
	}
	resp, err := d.sms.SendMessage(ctx, telnyxclient.SendMessageRequest{
		From:               from,
		To:                 to,
		Body:               msg.Body,
		MessagingProfileID: d.messagingProfileID,
	})
	if err != nil {
		return fmt.Errorf("gateway: send sms: %w", err)
	}
	d.logger.Debug("gateway: sms queued",
		"tenant_id", msg.TenantID,
		"customer_id", msg.CustomerID,
		"message_id", resp.ID,
		"status", resp.Status(),
	)
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, to string, msg winback.OutboundMessage) error {
	if d.email == nil {
		return fmt.Errorf("%w: email", ErrChannelUnavailable)
	}
	err := d.email.Send(ctx, notify.EmailMessage{
		To:       to,
		ToName:   msg.ToName,
		FromName: msg.SenderName,
		Subject:  msg.Subject,
		Body:     msg.Body,
	})
	if err != nil {
		return fmt.Errorf("gateway: send email: %w", err)
	}
	d.logger.Debug("gateway: email sent", "tenant_id", msg.TenantID, "customer_id", msg.CustomerID)
	return nil
}
