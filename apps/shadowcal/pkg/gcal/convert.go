package gcal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
)

type APIError struct {
	StatusCode  int
	ErrorReason string
	Message     string
}

func (e *APIError) Error() string {
	if e.ErrorReason != "" {
		return fmt.Sprintf(
			"google calendar: status=%d reason=%s message=%s",
			e.StatusCode,
			e.ErrorReason,
			e.Message,
		)
	}
	return fmt.Sprintf("google calendar: status=%d message=%s", e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

func (e *APIError) Reason() string {
	return e.ErrorReason
}

func newChannelID() string {
	return uuid.NewString()
}

func toTimePoint(dt *calendar.EventDateTime) TimePoint {
	if dt == nil {
		return TimePoint{}
	}

	if dt.Date != "" {
		return TimePoint{Date: dt.Date, TimeZone: dt.TimeZone}
	}

	t, err := time.Parse(time.RFC3339, dt.DateTime)
	if err != nil {
		return TimePoint{}
	}

	return TimePoint{DateTime: t, TimeZone: dt.TimeZone}
}

func fromTimePoint(tp TimePoint) *calendar.EventDateTime {
	//nolint:exhaustruct //other fields are optional
	dt := &calendar.EventDateTime{TimeZone: tp.TimeZone}

	if tp.Date != "" {
		dt.Date = tp.Date
		return dt
	}

	dt.DateTime = tp.DateTime.Format(time.RFC3339)
	return dt
}

func toEvent(item *calendar.Event) Event {
	//nolint:exhaustruct //optional fields are set below
	event := Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Start:       toTimePoint(item.Start),
		End:         toTimePoint(item.End),
		ColorTag:    item.ColorId,
		BusyState:   item.Transparency,
		Visibility:  item.Visibility,
		Status:      item.Status,
	}

	if event.BusyState == "" {
		event.BusyState = BusyOpaque
	}

	for _, attendee := range item.Attendees {
		if attendee != nil && attendee.Self {
			event.SelfResponse = attendee.ResponseStatus
			break
		}
	}

	if item.ExtendedProperties != nil {
		event.Provenance = toProvenance(item.ExtendedProperties.Private)
	}

	return event
}

func toProvenance(props map[string]string) *Provenance {
	calendarID := props[provenanceCalendarKey]
	eventID := props[provenanceEventKey]
	if calendarID == "" || eventID == "" {
		return nil
	}

	//nolint:exhaustruct //SyncedAt is optional
	provenance := &Provenance{
		SourceCalendarID: calendarID,
		SourceEventID:    eventID,
	}

	if syncedAt, err := time.Parse(time.RFC3339, props[provenanceSyncedAtKey]); err == nil {
		provenance.SyncedAt = syncedAt
	}

	return provenance
}

func fromEvent(event Event) *calendar.Event {
	//nolint:exhaustruct //other fields are optional
	item := &calendar.Event{
		Summary:      event.Title,
		Description:  event.Description,
		Location:     event.Location,
		Start:        fromTimePoint(event.Start),
		End:          fromTimePoint(event.End),
		ColorId:      event.ColorTag,
		Transparency: event.BusyState,
		Visibility:   event.Visibility,
		//nolint:exhaustruct //other fields are optional
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
		},
	}

	if event.Provenance != nil {
		//nolint:exhaustruct //shared properties are unused
		item.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{
				provenanceCalendarKey: event.Provenance.SourceCalendarID,
				provenanceEventKey:    event.Provenance.SourceEventID,
				provenanceSyncedAtKey: event.Provenance.SyncedAt.UTC().Format(time.RFC3339),
			},
		}
	}

	return item
}
