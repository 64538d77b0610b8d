package telnyxclient

import (
	"errors"
	"strings"
	"time"
)

// SendMessageRequest describes an outbound SMS payload.
type SendMessageRequest struct {
	From               string
	To                 string
	Body               string
	MessagingProfileID string
}

func (r SendMessageRequest) validate() error {
	if strings.TrimSpace(r.From) == "" && strings.TrimSpace(r.MessagingProfileID) == "" {
		return errors.New("telnyxclient: from number or messaging profile required")
	}
	if strings.TrimSpace(r.To) == "" {
		return errors.New("telnyxclient: to number required")
	}
	if strings.TrimSpace(r.Body) == "" {
		return errors.New("telnyxclient: body required")
	}
	return nil
}

// MessageResponse represents the Telnyx message resource.
type MessageResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Direction string    `json:"direction"`
	Parts     int       `json:"parts"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	To        []struct {
		PhoneNumber string `json:"phone_number"`
		Status      string `json:"status"`
	} `json:"to"`
}

// Status returns the delivery status of the first recipient.
func (m *MessageResponse) Status() string {
	if m == nil || len(m.To) == 0 {
		return ""
	}
	return m.To[0].Status
}
