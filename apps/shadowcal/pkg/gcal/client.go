package gcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	provenanceCalendarKey = "shadowcalSourceCalendar"
	provenanceEventKey    = "shadowcalSourceEvent"
	provenanceSyncedAtKey = "shadowcalSyncedAt"

	channelType  = "web_hook"
	pageSize     = 2500
	requestLimit = 30 * time.Second
)

type client struct {
	logger  *slog.Logger
	clock   clockwork.Clock
	service *calendar.Service
}

// New builds a client from a service account or authorized user JSON file.
func New(
	ctx context.Context,
	logger *slog.Logger,
	clk clockwork.Clock,
	credentialsFile string,
) (Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}

	//nolint:staticcheck //credentials are operator supplied
	creds, err := google.CredentialsFromJSON(ctx, data, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}

	return NewWithOptions(ctx, logger, clk, option.WithTokenSource(creds.TokenSource))
}

func NewWithOptions(
	ctx context.Context,
	logger *slog.Logger,
	clk clockwork.Clock,
	opts ...option.ClientOption,
) (Client, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return client{
		logger:  logger,
		clock:   clk,
		service: service,
	}, nil
}

func (client client) ListEvents(
	ctx context.Context,
	calendarID string,
	timeMin time.Time,
	timeMax time.Time,
) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, requestLimit)
	defer cancel()

	events := []Event{}
	err := client.service.Events.List(calendarID).
		SingleEvents(true).
		ShowDeleted(true).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		MaxResults(pageSize).
		Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				events = append(events, toEvent(item))
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(err)
	}

	client.logger.Debug(
		fmt.Sprintf("listed %d events", len(events)),
		"calendar", calendarID,
	)

	return events, nil
}

func (client client) CreateEvent(
	ctx context.Context,
	calendarID string,
	event Event,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestLimit)
	defer cancel()

	created, err := client.service.Events.Insert(calendarID, fromEvent(event)).
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapError(err)
	}

	return created.Id, nil
}

func (client client) UpdateEvent(
	ctx context.Context,
	calendarID string,
	eventID string,
	event Event,
) error {
	ctx, cancel := context.WithTimeout(ctx, requestLimit)
	defer cancel()

	_, err := client.service.Events.Update(calendarID, eventID, fromEvent(event)).
		Context(ctx).
		Do()
	return wrapError(err)
}

func (client client) DeleteEvent(
	ctx context.Context,
	calendarID string,
	eventID string,
) error {
	ctx, cancel := context.WithTimeout(ctx, requestLimit)
	defer cancel()

	err := client.service.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if isStatus(err, http.StatusNotFound) || isStatus(err, http.StatusGone) {
		return nil
	}

	return wrapError(err)
}

func (client client) CreateChannel(
	ctx context.Context,
	calendarID string,
	address string,
	token string,
	ttl time.Duration,
) (*Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, requestLimit)
	defer cancel()

	//nolint:exhaustruct //other fields are optional
	request := &calendar.Channel{
		Id:      newChannelID(),
		Type:    channelType,
		Address: address,
		Token:   token,
		Params: map[string]string{
			"ttl": strconv.FormatInt(int64(ttl/time.Second), 10),
		},
	}

	response, err := client.service.Events.Watch(calendarID, request).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}

	expiresAt := client.clock.Now().Add(ttl)
	if response.Expiration > 0 {
		expiresAt = time.UnixMilli(response.Expiration)
	}

	return &Channel{
		ID:          response.Id,
		ResourceID:  response.ResourceId,
		ResourceURI: response.ResourceUri,
		ExpiresAt:   expiresAt,
	}, nil
}

func (client client) StopChannel(
	ctx context.Context,
	channelID string,
	resourceID string,
) error {
	ctx, cancel := context.WithTimeout(ctx, requestLimit)
	defer cancel()

	//nolint:exhaustruct //other fields are optional
	err := client.service.Channels.Stop(&calendar.Channel{
		Id:         channelID,
		ResourceId: resourceID,
	}).Context(ctx).Do()
	if isStatus(err, http.StatusNotFound) {
		return nil
	}

	return wrapError(err)
}

func isStatus(err error, status int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == status
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	reason := ""
	if len(apiErr.Errors) > 0 {
		reason = apiErr.Errors[0].Reason
	}

	return &APIError{
		StatusCode:  apiErr.Code,
		ErrorReason: reason,
		Message:     apiErr.Message,
	}
}
