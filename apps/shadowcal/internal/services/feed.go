package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/jonboulle/clockwork"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/backoff"
	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
	"shadowcal.xdoubleu.com/internal/config"
)

const feedProductID = "-//xdoubleu//shadowcal//EN"

// FeedService exports the placeholders of the target calendar as a read-only
// ICS feed of busy blocks.
type FeedService struct {
	clock     clockwork.Clock
	client    gcal.Client
	policy    *backoff.Policy
	calendars config.Calendars
	token     string
	title     string
	lookBack  time.Duration
	lookAhead time.Duration
}

// Authorized reports whether token opens the feed. An unset feed token
// disables the feed.
func (service *FeedService) Authorized(token string) bool {
	if service.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(service.token)) == 1
}

func (service *FeedService) Render(ctx context.Context) ([]byte, error) {
	now := service.clock.Now()

	events, err := backoff.DoValue(
		ctx,
		service.policy,
		"list feed events",
		func(ctx context.Context) ([]gcal.Event, error) {
			return service.client.ListEvents(
				ctx,
				service.calendars.Target,
				now.Add(-service.lookBack),
				now.Add(service.lookAhead),
			)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("list target events: %w", err)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(feedProductID)
	cal.SetXWRCalName(service.title)

	for _, event := range events {
		if event.IsCancelled() || event.Provenance == nil {
			continue
		}
		addBusyBlock(cal, event, now)
	}

	return []byte(cal.Serialize()), nil
}

func addBusyBlock(cal *ics.Calendar, event gcal.Event, stamp time.Time) {
	vevent := cal.AddEvent(event.ID + "@shadowcal")
	vevent.SetDtStampTime(stamp)
	vevent.SetSummary(event.Title)
	vevent.SetTimeTransparency(ics.TransparencyOpaque)
	vevent.SetStatus(ics.ObjectStatusConfirmed)

	if event.IsAllDay() {
		start, _ := event.Start.Instant(time.UTC)
		end, _ := event.End.Instant(time.UTC)
		vevent.SetAllDayStartAt(start)
		vevent.SetAllDayEndAt(end)
		return
	}

	vevent.SetStartAt(event.Start.DateTime)
	vevent.SetEndAt(event.End.DateTime)
}
