package gcal

import (
	"time"
)

const DateFormat = "2006-01-02"

const (
	BusyOpaque      = "opaque"
	BusyTransparent = "transparent"

	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"

	ResponseAccepted    = "accepted"
	ResponseDeclined    = "declined"
	ResponseTentative   = "tentative"
	ResponseNeedsAction = "needsAction"

	VisibilityDefault = "default"
	VisibilityPrivate = "private"
)

// TimePoint is either a date (all-day) or a date-time with an optional zone.
// Exactly one of Date and DateTime is set.
type TimePoint struct {
	Date     string
	DateTime time.Time
	TimeZone string
}

func DateOnly(t time.Time) TimePoint {
	return TimePoint{Date: t.Format(DateFormat)}
}

func At(t time.Time, timeZone string) TimePoint {
	return TimePoint{DateTime: t, TimeZone: timeZone}
}

func (tp TimePoint) IsZero() bool {
	return tp.Date == "" && tp.DateTime.IsZero()
}

func (tp TimePoint) IsAllDay() bool {
	return tp.Date != ""
}

// Instant resolves the point to an absolute time. Dates are midnight in the
// point's zone, falling back to loc.
func (tp TimePoint) Instant(loc *time.Location) (time.Time, bool) {
	if !tp.DateTime.IsZero() {
		return tp.DateTime, true
	}

	if tp.Date == "" {
		return time.Time{}, false
	}

	if tp.TimeZone != "" {
		if zone, err := time.LoadLocation(tp.TimeZone); err == nil {
			loc = zone
		}
	}
	if loc == nil {
		loc = time.UTC
	}

	t, err := time.ParseInLocation(DateFormat, tp.Date, loc)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

func (tp TimePoint) String() string {
	if tp.Date != "" {
		return tp.Date
	}
	if tp.DateTime.IsZero() {
		return ""
	}
	return tp.DateTime.Format(time.RFC3339) + "|" + tp.TimeZone
}

// Provenance records which source event a placeholder was derived from.
type Provenance struct {
	SourceCalendarID string
	SourceEventID    string
	SyncedAt         time.Time
}

type Event struct {
	ID           string
	Title        string
	Description  string
	Location     string
	Start        TimePoint
	End          TimePoint
	ColorTag     string
	BusyState    string
	Visibility   string
	Status       string
	SelfResponse string
	Provenance   *Provenance
}

func (e Event) IsCancelled() bool {
	return e.Status == StatusCancelled
}

func (e Event) IsDeclined() bool {
	return e.SelfResponse == ResponseDeclined
}

func (e Event) HasTime() bool {
	return !e.Start.IsZero() && !e.End.IsZero()
}

func (e Event) IsAllDay() bool {
	return e.Start.IsAllDay()
}

func (e Event) IsFree() bool {
	return e.BusyState == BusyTransparent
}

type Channel struct {
	ID          string
	ResourceID  string
	ResourceURI string
	ExpiresAt   time.Time
}
