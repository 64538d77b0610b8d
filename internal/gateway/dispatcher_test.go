package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-winback/internal/messaging/telnyxclient"
	"github.com/wolfman30/medspa-winback/internal/notify"
	"github.com/wolfman30/medspa-winback/internal/winback"
)

type fakeSMS struct {
	req telnyxclient.SendMessageRequest
	err error
}

func (f *fakeSMS) SendMessage(_ context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &telnyxclient.MessageResponse{ID: "msg-1"}, nil
}

type fakeEmail struct {
	msg notify.EmailMessage
	err error
}

func (f *fakeEmail) Send(_ context.Context, msg notify.EmailMessage) error {
	f.msg = msg
	return f.err
}

func TestDispatcherSMSUsesTenantSender(t *testing.T) {
	sms := &fakeSMS{}
	d := NewDispatcher(Config{SMS: sms, DefaultFrom: "+15550000000", MessagingProfileID: "profile-1"})

	err := d.Send(context.Background(), winback.ChannelSMS, "+15551112222", winback.OutboundMessage{
		TenantID: "tenant-1",
		From:     "+15559998888",
		Body:     "Hi Ava",
	})
	require.NoError(t, err)
	assert.Equal(t, "+15559998888", sms.req.From)
	assert.Equal(t, "+15551112222", sms.req.To)
	assert.Equal(t, "Hi Ava", sms.req.Body)
	assert.Equal(t, "profile-1", sms.req.MessagingProfileID)
}

func TestDispatcherSMSFallsBackToDefaultSender(t *testing.T) {
	sms := &fakeSMS{}
	d := NewDispatcher(Config{SMS: sms, DefaultFrom: "+15550000000"})

	require.NoError(t, d.Send(context.Background(), winback.ChannelSMS, "+15551112222", winback.OutboundMessage{Body: "Hi"}))
	assert.Equal(t, "+15550000000", sms.req.From)
}

func TestDispatcherEmail(t *testing.T) {
	email := &fakeEmail{}
	d := NewDispatcher(Config{Email: email})

	err := d.Send(context.Background(), winback.ChannelEmail, "ava@example.com", winback.OutboundMessage{
		SenderName: "Glow Spa",
		ToName:     "Ava Stone",
		Subject:    "We miss you",
		Body:       "Come back",
	})
	require.NoError(t, err)
	assert.Equal(t, "ava@example.com", email.msg.To)
	assert.Equal(t, "Glow Spa", email.msg.FromName)
	assert.Equal(t, "We miss you", email.msg.Subject)
}

func TestDispatcherWrapsProviderErrors(t *testing.T) {
	d := NewDispatcher(Config{SMS: &fakeSMS{err: errors.New("carrier down")}, Email: &fakeEmail{err: errors.New("bounced")}})

	err := d.Send(context.Background(), winback.ChannelSMS, "+1", winback.OutboundMessage{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway: send sms")

	err = d.Send(context.Background(), winback.ChannelEmail, "a@example.com", winback.OutboundMessage{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway: send email")
}

func TestDispatcherUnconfiguredChannels(t *testing.T) {
	d := NewDispatcher(Config{})

	err := d.Send(context.Background(), winback.ChannelSMS, "+1", winback.OutboundMessage{Body: "x"})
	assert.ErrorIs(t, err, ErrChannelUnavailable)

	err = d.Send(context.Background(), winback.ChannelEmail, "a@example.com", winback.OutboundMessage{Body: "x"})
	assert.ErrorIs(t, err, ErrChannelUnavailable)

	err = d.Send(context.Background(), winback.ChannelBoth, "x", winback.OutboundMessage{Body: "x"})
	assert.Error(t, err)
}

func TestDispatcherSMSThrottleHonorsContext(t *testing.T) {
	sms := &fakeSMS{}
	d := NewDispatcher(Config{SMS: sms, DefaultFrom: "+15550000000", SMSPerSecond: 0.5})

	require.NoError(t, d.Send(context.Background(), winback.ChannelSMS, "+15551112222", winback.OutboundMessage{Body: "first"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Send(ctx, winback.ChannelSMS, "+15551112222", winback.OutboundMessage{Body: "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle")
	assert.Equal(t, "first", sms.req.Body)
}
