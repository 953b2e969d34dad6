package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
)

type PlaceholderConfig struct {
	Title             string
	Color             string
	IncludeFreeEvents bool
}

// qualifies reports whether a live source event should be mirrored.
func (cfg PlaceholderConfig) qualifies(event gcal.Event) bool {
	switch {
	case event.IsCancelled(), event.IsDeclined(), !event.HasTime():
		return false
	case event.Provenance != nil:
		// never mirror another shadow calendar's placeholders back
		return false
	case event.IsFree() && !cfg.IncludeFreeEvents:
		return false
	}
	return true
}

// derive builds the content free placeholder for a source event. Only the
// time window travels.
func (cfg PlaceholderConfig) derive(
	calendarID string,
	event gcal.Event,
	syncedAt time.Time,
) gcal.Event {
	//nolint:exhaustruct //placeholders carry no other content
	return gcal.Event{
		Title:      cfg.Title,
		Start:      event.Start,
		End:        event.End,
		ColorTag:   cfg.Color,
		BusyState:  gcal.BusyOpaque,
		Visibility: gcal.VisibilityPrivate,
		Provenance: &gcal.Provenance{
			SourceCalendarID: calendarID,
			SourceEventID:    event.ID,
			SyncedAt:         syncedAt,
		},
	}
}

func hashPoint(tp gcal.TimePoint) string {
	if tp.IsAllDay() {
		return tp.Date
	}
	return tp.DateTime.UTC().Format(time.RFC3339) + "@" + tp.TimeZone
}

// contentHash covers everything a placeholder update could change.
func contentHash(event gcal.Event) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		hashPoint(event.Start),
		hashPoint(event.End),
		event.Title,
		event.ColorTag,
		event.BusyState,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// contains reports whether outer's window covers inner's. All-day events
// only match an identical all-day date range.
func contains(outer gcal.Event, inner gcal.Event) bool {
	if outer.IsAllDay() || inner.IsAllDay() {
		return outer.IsAllDay() && inner.IsAllDay() &&
			outer.Start.Date == inner.Start.Date &&
			outer.End.Date == inner.End.Date
	}

	outerStart, ok1 := outer.Start.Instant(time.UTC)
	outerEnd, ok2 := outer.End.Instant(time.UTC)
	innerStart, ok3 := inner.Start.Instant(time.UTC)
	innerEnd, ok4 := inner.End.Instant(time.UTC)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}

	return !outerStart.After(innerStart) && !outerEnd.Before(innerEnd)
}
