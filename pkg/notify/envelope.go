package notify

import (
	"context"
	"time"

	"github.com/cuemby/cadence/pkg/types"
)

// EnvelopeType is the "type" discriminator of a pushed message
type EnvelopeType string

const (
	EnvelopeNotification          EnvelopeType = "notification"
	EnvelopeHeartbeat             EnvelopeType = "heartbeat"
	EnvelopeConnectionEstablished EnvelopeType = "connection_established"
	EnvelopeAck                   EnvelopeType = "ack"
)

// Envelope is the JSON message pushed to a live connection
type Envelope struct {
	Type            EnvelopeType         `json:"type"`
	Notification    *NotificationPayload `json:"notification,omitempty"`
	Message         string               `json:"message,omitempty"`
	UserID          string               `json:"user_id,omitempty"`
	PendingMessages int                  `json:"pending_messages,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}

// NotificationPayload is the client-facing rendering of a notification
type NotificationPayload struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Platform      string     `json:"platform"`
	StrategyName  string     `json:"strategyName,omitempty"`
	Message       string     `json:"message"`
	Timestamp     time.Time  `json:"timestamp"`
	IsRead        bool       `json:"isRead"`
	PostID        string     `json:"postId,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// NewNotificationEnvelope renders n for live delivery
func NewNotificationEnvelope(n *types.Notification) Envelope {
	payload := &NotificationPayload{
		ID:           n.ID,
		Type:         string(n.Kind),
		Platform:     string(n.Platform),
		StrategyName: n.StrategyName,
		Message:      n.Message,
		Timestamp:    n.CreatedAt,
		IsRead:       n.Read,
		PostID:       n.PostID,
		Error:        n.Error,
	}
	if !n.ScheduledFor.IsZero() {
		at := n.ScheduledFor
		payload.ScheduledTime = &at
	}
	return Envelope{
		Type:         EnvelopeNotification,
		Notification: payload,
		Timestamp:    n.CreatedAt,
	}
}

// Conn is one live client connection. Send must honor ctx and return an
// error if the message could not be written; after an error the hub drops
// the connection.
type Conn interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}
