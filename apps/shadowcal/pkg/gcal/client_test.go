package gcal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

//nolint:gochecknoglobals //needed for tests
var clientNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewWithOptions(
		context.Background(),
		logging.NewNopLogger(),
		clockwork.NewFakeClockAt(clientNow),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.Nil(t, err)

	return c
}

func writeError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": http.StatusText(code),
			"errors":  []map[string]string{{"reason": reason}},
		},
	})
}

func TestToEvent(t *testing.T) {
	//nolint:exhaustruct //test data
	item := &calendar.Event{
		Id:      "e1",
		Summary: "Dentist",
		Status:  "confirmed",
		Start: &calendar.EventDateTime{
			DateTime: "2024-03-01T10:00:00+01:00",
			TimeZone: "Europe/Brussels",
		},
		End: &calendar.EventDateTime{
			DateTime: "2024-03-01T11:00:00+01:00",
			TimeZone: "Europe/Brussels",
		},
		Attendees: []*calendar.EventAttendee{
			{Email: "other@example.com", ResponseStatus: "accepted"},
			{Email: "me@example.com", Self: true, ResponseStatus: "declined"},
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				provenanceCalendarKey: "src",
				provenanceEventKey:    "orig",
				provenanceSyncedAtKey: "2024-02-28T08:00:00Z",
			},
		},
	}

	event := toEvent(item)

	assert.Equal(t, "e1", event.ID)
	assert.Equal(t, BusyOpaque, event.BusyState)
	assert.True(t, event.IsDeclined())
	assert.False(t, event.IsAllDay())
	assert.Equal(t, "Europe/Brussels", event.Start.TimeZone)
	require.NotNil(t, event.Provenance)
	assert.Equal(t, "src", event.Provenance.SourceCalendarID)
	assert.Equal(t, "orig", event.Provenance.SourceEventID)
	assert.Equal(t, time.Date(2024, 2, 28, 8, 0, 0, 0, time.UTC), event.Provenance.SyncedAt)
}

func TestToEventAllDayWithoutProvenance(t *testing.T) {
	//nolint:exhaustruct //test data
	item := &calendar.Event{
		Id:           "e2",
		Start:        &calendar.EventDateTime{Date: "2024-03-01"},
		End:          &calendar.EventDateTime{Date: "2024-03-02"},
		Transparency: "transparent",
	}

	event := toEvent(item)

	assert.True(t, event.IsAllDay())
	assert.True(t, event.IsFree())
	assert.Nil(t, event.Provenance)
	assert.Equal(t, "2024-03-01", event.Start.String())
}

func TestFromEventCarriesProvenance(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	//nolint:exhaustruct //test data
	item := fromEvent(Event{
		Title:     "Busy",
		Start:     At(start, "UTC"),
		End:       At(start.Add(time.Hour), "UTC"),
		ColorTag:  "8",
		BusyState: BusyOpaque,
		Provenance: &Provenance{
			SourceCalendarID: "src",
			SourceEventID:    "e1",
			SyncedAt:         start,
		},
	})

	assert.Equal(t, "Busy", item.Summary)
	assert.Equal(t, "2024-03-01T09:00:00Z", item.Start.DateTime)
	assert.Empty(t, item.Start.Date)
	assert.Equal(t, "e1", item.ExtendedProperties.Private[provenanceEventKey])
	assert.False(t, item.Reminders.UseDefault)
}

func TestListEventsFollowsPages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/src/events"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		assert.Equal(t, "true", r.URL.Query().Get("showDeleted"))

		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "a", "start": map[string]string{"date": "2024-03-01"},
						"end": map[string]string{"date": "2024-03-02"}},
				},
				"nextPageToken": "next",
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "b", "status": "cancelled"},
			},
		})
	})

	now := time.Now()
	events, err := c.ListEvents(context.Background(), "src", now, now.Add(time.Hour))
	require.Nil(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].ID)
	assert.True(t, events[1].IsCancelled())
}

func TestDeleteEventTreatsGoneAsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusGone, "deleted")
	})

	err := c.DeleteEvent(context.Background(), "target", "p1")
	assert.Nil(t, err)
}

func TestUpdateEventMapsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusConflict, "duplicate")
	})

	//nolint:exhaustruct //test data
	err := c.UpdateEvent(context.Background(), "target", "p1", Event{
		Start: DateOnly(time.Now()),
		End:   DateOnly(time.Now().Add(24 * time.Hour)),
	})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.HTTPStatus())
	assert.Equal(t, "duplicate", apiErr.Reason())
}

func TestCreateChannel(t *testing.T) {
	expiration := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body calendar.Channel
		assert.Nil(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, channelType, body.Type)
		assert.Equal(t, "https://example.com/hook", body.Address)
		assert.Equal(t, "secret", body.Token)
		assert.Equal(t, "3600", body.Params["ttl"])
		assert.NotEmpty(t, body.Id)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          body.Id,
			"resourceId":  "res-1",
			"resourceUri": "https://www.googleapis.com/calendar/v3/calendars/src/events",
			"expiration":  strconv.FormatInt(expiration.UnixMilli(), 10),
		})
	})

	channel, err := c.CreateChannel(
		context.Background(),
		"src",
		"https://example.com/hook",
		"secret",
		time.Hour,
	)
	require.Nil(t, err)
	assert.Equal(t, "res-1", channel.ResourceID)
	assert.True(t, expiration.Equal(channel.ExpiresAt))
}

func TestCreateChannelWithoutExpiration(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body calendar.Channel
		assert.Nil(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         body.Id,
			"resourceId": "res-1",
		})
	})

	channel, err := c.CreateChannel(
		context.Background(),
		"src",
		"https://example.com/hook",
		"secret",
		time.Hour,
	)
	require.Nil(t, err)
	assert.Equal(t, clientNow.Add(time.Hour), channel.ExpiresAt)
}
