package models

import (
	"time"

	sharedmodels "shadowcal.xdoubleu.com/internal/models"
)

// EventMapping links one source event to the placeholder created for it.
type EventMapping struct {
	SourceCalendarID string    `json:"sourceCalendarId"`
	SourceEventID    string    `json:"sourceEventId"`
	TargetEventID    string    `json:"targetEventId"`
	ContentHash      string    `json:"contentHash"`
	SyncedAt         time.Time `json:"syncedAt"`
}

type EventError struct {
	EventID string `json:"eventId"`
	Op      string `json:"op"`
	Message string `json:"message"`
}

type ReconcileResult struct {
	CalendarID string       `json:"calendarId"`
	Created    int          `json:"created"`
	Updated    int          `json:"updated"`
	Deleted    int          `json:"deleted"`
	Skipped    int          `json:"skipped"`
	Errors     []EventError `json:"errors"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

func NewReconcileResult(calendarID string, startedAt time.Time) *ReconcileResult {
	//nolint:exhaustruct //counters start at zero
	return &ReconcileResult{
		CalendarID: calendarID,
		Errors:     []EventError{},
		StartedAt:  startedAt,
	}
}

func (r *ReconcileResult) AddError(eventID string, op string, err error) {
	r.Errors = append(r.Errors, EventError{
		EventID: eventID,
		Op:      op,
		Message: err.Error(),
	})
}

// SyncMarker is the persisted summary of the last reconciliation run.
type SyncMarker struct {
	At      time.Time `json:"at"`
	Created int       `json:"created"`
	Updated int       `json:"updated"`
	Deleted int       `json:"deleted"`
	Skipped int       `json:"skipped"`
	Errors  int       `json:"errors"`
}

func SyncMarkerFromResult(result *ReconcileResult) SyncMarker {
	return SyncMarker{
		At:      result.FinishedAt,
		Created: result.Created,
		Updated: result.Updated,
		Deleted: result.Deleted,
		Skipped: result.Skipped,
		Errors:  len(result.Errors),
	}
}

type PendingSync struct {
	CalendarID          string    `json:"calendarId"`
	FirstNotificationAt time.Time `json:"firstNotificationAt"`
	Notifications       int       `json:"notifications"`
	LastReason          string    `json:"lastReason"`
}

type CalendarStatus struct {
	Calendar sharedmodels.SourceCalendar `json:"calendar"`
	LastSync *SyncMarker                 `json:"lastSync"`
	Pending  *PendingSync                `json:"pending"`
}
