package models

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelInApp     Channel = "IN_APP"
	ChannelEmail     Channel = "EMAIL"
	ChannelWebsocket Channel = "WEBSOCKET"
)

// DefaultChannels applies when a notification names none.
var DefaultChannels = []Channel{ChannelInApp, ChannelWebsocket}

// AllChannels is used for payment and refund outcomes.
var AllChannels = []Channel{ChannelInApp, ChannelWebsocket, ChannelEmail}

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

type Notification struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"user_id"`
	Subject   string             `json:"subject,omitempty"`
	Message   string             `json:"message"`
	Priority  Priority           `json:"priority"`
	Channels  []Channel          `json:"channels"`
	Category  string             `json:"category,omitempty"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	Status    NotificationStatus `json:"status"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

func (n Notification) HasChannel(channel Channel) bool {
	for _, c := range n.Channels {
		if c == channel {
			return true
		}
	}
	return false
}
