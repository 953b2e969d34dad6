package mocks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
)

const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpWatch  = "watch"
	OpStop   = "stop"
)

// MockCalendarClient is an in-memory provider with call counting and
// queued error injection per operation.
type MockCalendarClient struct {
	mu       sync.Mutex
	now      func() time.Time
	nextID   int
	events   map[string]map[string]gcal.Event
	channels map[string]gcal.Channel
	stopped  []string
	calls    map[string]int
	failures map[string][]error
}

func NewMockCalendarClient(now func() time.Time) *MockCalendarClient {
	if now == nil {
		now = time.Now
	}

	return &MockCalendarClient{
		mu:       sync.Mutex{},
		now:      now,
		nextID:   0,
		events:   map[string]map[string]gcal.Event{},
		channels: map[string]gcal.Channel{},
		stopped:  []string{},
		calls:    map[string]int{},
		failures: map[string][]error{},
	}
}

func NotFound() error {
	return &gcal.APIError{
		StatusCode:  http.StatusNotFound,
		ErrorReason: "notFound",
		Message:     "Not Found",
	}
}

func RateLimited() error {
	return &gcal.APIError{
		StatusCode:  http.StatusTooManyRequests,
		ErrorReason: "rateLimitExceeded",
		Message:     "Rate Limit Exceeded",
	}
}

func ResourceURI(calendarID string) string {
	return fmt.Sprintf(
		"https://www.googleapis.com/calendar/v3/calendars/%s/events?alt=json",
		url.PathEscape(calendarID),
	)
}

// PutEvent stores or replaces an event as if it was edited by a user.
func (client *MockCalendarClient) PutEvent(calendarID string, event gcal.Event) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.events[calendarID] == nil {
		client.events[calendarID] = map[string]gcal.Event{}
	}
	client.events[calendarID][event.ID] = event
}

func (client *MockCalendarClient) RemoveEvent(calendarID string, eventID string) {
	client.mu.Lock()
	defer client.mu.Unlock()

	delete(client.events[calendarID], eventID)
}

func (client *MockCalendarClient) Events(calendarID string) []gcal.Event {
	client.mu.Lock()
	defer client.mu.Unlock()

	return client.sortedEvents(calendarID)
}

func (client *MockCalendarClient) FailNext(op string, errs ...error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	client.failures[op] = append(client.failures[op], errs...)
}

func (client *MockCalendarClient) Calls(op string) int {
	client.mu.Lock()
	defer client.mu.Unlock()

	return client.calls[op]
}

func (client *MockCalendarClient) ResetCalls() {
	client.mu.Lock()
	defer client.mu.Unlock()

	client.calls = map[string]int{}
}

func (client *MockCalendarClient) Stopped() []string {
	client.mu.Lock()
	defer client.mu.Unlock()

	return append([]string{}, client.stopped...)
}

func (client *MockCalendarClient) ActiveChannels() []gcal.Channel {
	client.mu.Lock()
	defer client.mu.Unlock()

	channels := []gcal.Channel{}
	for _, channel := range client.channels {
		channels = append(channels, channel)
	}

	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	return channels
}

func (client *MockCalendarClient) sortedEvents(calendarID string) []gcal.Event {
	events := []gcal.Event{}
	for _, event := range client.events[calendarID] {
		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events
}

func (client *MockCalendarClient) begin(op string) error {
	client.calls[op]++

	queue := client.failures[op]
	if len(queue) == 0 {
		return nil
	}

	client.failures[op] = queue[1:]
	return queue[0]
}

func overlaps(event gcal.Event, timeMin time.Time, timeMax time.Time) bool {
	if !event.HasTime() {
		return true
	}

	start, okStart := event.Start.Instant(time.UTC)
	end, okEnd := event.End.Instant(time.UTC)
	if !okStart || !okEnd {
		return true
	}

	return start.Before(timeMax) && end.After(timeMin)
}

func (client *MockCalendarClient) ListEvents(
	_ context.Context,
	calendarID string,
	timeMin time.Time,
	timeMax time.Time,
) ([]gcal.Event, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if err := client.begin(OpList); err != nil {
		return nil, err
	}

	events := []gcal.Event{}
	for _, event := range client.sortedEvents(calendarID) {
		if overlaps(event, timeMin, timeMax) {
			events = append(events, event)
		}
	}

	return events, nil
}

func (client *MockCalendarClient) CreateEvent(
	_ context.Context,
	calendarID string,
	event gcal.Event,
) (string, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if err := client.begin(OpCreate); err != nil {
		return "", err
	}

	client.nextID++
	event.ID = fmt.Sprintf("placeholder-%d", client.nextID)
	if event.Status == "" {
		event.Status = gcal.StatusConfirmed
	}

	if client.events[calendarID] == nil {
		client.events[calendarID] = map[string]gcal.Event{}
	}
	client.events[calendarID][event.ID] = event

	return event.ID, nil
}

func (client *MockCalendarClient) UpdateEvent(
	_ context.Context,
	calendarID string,
	eventID string,
	event gcal.Event,
) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if err := client.begin(OpUpdate); err != nil {
		return err
	}

	if _, ok := client.events[calendarID][eventID]; !ok {
		return NotFound()
	}

	event.ID = eventID
	if event.Status == "" {
		event.Status = gcal.StatusConfirmed
	}
	client.events[calendarID][eventID] = event

	return nil
}

func (client *MockCalendarClient) DeleteEvent(
	_ context.Context,
	calendarID string,
	eventID string,
) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if err := client.begin(OpDelete); err != nil {
		return err
	}

	delete(client.events[calendarID], eventID)
	return nil
}

func (client *MockCalendarClient) CreateChannel(
	_ context.Context,
	calendarID string,
	_ string,
	_ string,
	ttl time.Duration,
) (*gcal.Channel, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if err := client.begin(OpWatch); err != nil {
		return nil, err
	}

	client.nextID++
	channel := gcal.Channel{
		ID:          fmt.Sprintf("channel-%d", client.nextID),
		ResourceID:  fmt.Sprintf("resource-%d", client.nextID),
		ResourceURI: ResourceURI(calendarID),
		ExpiresAt:   client.now().Add(ttl),
	}
	client.channels[channel.ID] = channel

	return &channel, nil
}

func (client *MockCalendarClient) StopChannel(
	_ context.Context,
	channelID string,
	_ string,
) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if err := client.begin(OpStop); err != nil {
		return err
	}

	delete(client.channels, channelID)
	client.stopped = append(client.stopped, channelID)

	return nil
}
