package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"shadowcal.xdoubleu.com/internal/config"
)

const (
	StateSync      = "sync"
	StateExists    = "exists"
	StateNotExists = "not_exists"
)

// ValidationError rejects an inbound notification before it reaches the
// coalescer.
type ValidationError struct {
	Status  int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Notification holds the push notification headers sent by the provider.
type Notification struct {
	ChannelID     string
	Token         string
	ResourceState string
	ResourceID    string
	ResourceURI   string
	MessageNumber string
}

func NotificationFromHeader(header http.Header) Notification {
	return Notification{
		ChannelID:     header.Get("X-Goog-Channel-ID"),
		Token:         header.Get("X-Goog-Channel-Token"),
		ResourceState: header.Get("X-Goog-Resource-State"),
		ResourceID:    header.Get("X-Goog-Resource-ID"),
		ResourceURI:   header.Get("X-Goog-Resource-URI"),
		MessageNumber: header.Get("X-Goog-Message-Number"),
	}
}

type NotificationService struct {
	logger        *slog.Logger
	calendars     config.Calendars
	token         string
	subscriptions *SubscriptionService
	coalescer     *Coalescer
}

// Handle validates a notification and hands changes to the coalescer. It
// returns the calendar the notification was for, empty for sync messages.
func (service *NotificationService) Handle(
	ctx context.Context,
	notification Notification,
) (string, error) {
	if notification.ChannelID == "" {
		return "", &ValidationError{
			Status:  http.StatusBadRequest,
			Field:   "X-Goog-Channel-ID",
			Message: "missing channel id",
		}
	}

	if notification.ResourceState == "" {
		return "", &ValidationError{
			Status:  http.StatusBadRequest,
			Field:   "X-Goog-Resource-State",
			Message: "missing resource state",
		}
	}

	if subtle.ConstantTimeCompare([]byte(notification.Token), []byte(service.token)) != 1 {
		return "", &ValidationError{
			Status:  http.StatusUnauthorized,
			Field:   "X-Goog-Channel-Token",
			Message: "token mismatch",
		}
	}

	switch notification.ResourceState {
	case StateSync:
		service.logger.Debug(
			"channel sync acknowledged",
			slog.String("channel", notification.ChannelID),
		)
		return "", nil
	case StateExists, StateNotExists:
	default:
		return "", &ValidationError{
			Status:  http.StatusBadRequest,
			Field:   "X-Goog-Resource-State",
			Message: fmt.Sprintf("unsupported resource state %q", notification.ResourceState),
		}
	}

	calendarID, ok := service.resolveCalendar(ctx, notification)
	if !ok {
		return "", &ValidationError{
			Status:  http.StatusBadRequest,
			Field:   "X-Goog-Resource-URI",
			Message: "resource does not name a configured calendar",
		}
	}

	reason := "push:" + notification.ResourceState
	if notification.MessageNumber != "" {
		reason += "#" + notification.MessageNumber
	}

	service.coalescer.Notify(calendarID, reason)

	return calendarID, nil
}

func (service *NotificationService) resolveCalendar(
	ctx context.Context,
	notification Notification,
) (string, bool) {
	if calendarID, ok := CalendarFromResourceURI(notification.ResourceURI); ok {
		if _, known := service.calendars.Source(calendarID); known {
			return calendarID, true
		}
		return "", false
	}

	return service.subscriptions.CalendarForChannel(ctx, notification.ChannelID)
}

// CalendarFromResourceURI extracts the calendar id from a resource locator
// such as .../calendar/v3/calendars/{id}/events?alt=json.
func CalendarFromResourceURI(resourceURI string) (string, bool) {
	if resourceURI == "" {
		return "", false
	}

	parsed, err := url.Parse(resourceURI)
	if err != nil {
		return "", false
	}

	segments := strings.Split(strings.Trim(parsed.EscapedPath(), "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] != "calendars" {
			continue
		}

		calendarID, err := url.PathUnescape(segments[i+1])
		if err != nil || calendarID == "" {
			return "", false
		}
		return calendarID, true
	}

	return "", false
}
