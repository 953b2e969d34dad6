package gcal

import (
	"context"
	"time"
)

type Client interface {
	ListEvents(
		ctx context.Context,
		calendarID string,
		timeMin time.Time,
		timeMax time.Time,
	) ([]Event, error)
	CreateEvent(ctx context.Context, calendarID string, event Event) (string, error)
	UpdateEvent(ctx context.Context, calendarID string, eventID string, event Event) error
	DeleteEvent(ctx context.Context, calendarID string, eventID string) error
	CreateChannel(
		ctx context.Context,
		calendarID string,
		address string,
		token string,
		ttl time.Duration,
	) (*Channel, error)
	StopChannel(ctx context.Context, channelID string, resourceID string) error
}
