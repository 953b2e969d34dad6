package models

import (
	"time"
)

type SubscriptionChannel struct {
	CalendarID  string    `json:"calendarId"`
	ChannelID   string    `json:"channelId"`
	ResourceID  string    `json:"resourceId"`
	ResourceURI string    `json:"resourceUri"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IsNearExpiry reports whether now lies within margin of the expiry.
func (c SubscriptionChannel) IsNearExpiry(now time.Time, margin time.Duration) bool {
	return !now.Before(c.ExpiresAt.Add(-margin))
}

type ChannelState string

const (
	ChannelAbsent     ChannelState = "absent"
	ChannelActive     ChannelState = "active"
	ChannelNearExpiry ChannelState = "near_expiry"
)

type ChannelStatus struct {
	CalendarID string               `json:"calendarId"`
	State      ChannelState         `json:"state"`
	Channel    *SubscriptionChannel `json:"channel"`
}
