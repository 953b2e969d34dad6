package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/mocks"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/repositories"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/services"
	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
	"shadowcal.xdoubleu.com/internal/config"
	sharedmocks "shadowcal.xdoubleu.com/internal/mocks"
	sharedmodels "shadowcal.xdoubleu.com/internal/models"
)

const (
	targetID = "shadow@example.com"
	workID   = "work@example.com"
	familyID = "family@example.com"
	zone     = "Europe/Brussels"
)

//nolint:gochecknoglobals //test fixture
var start = time.Date(2024, 2, 28, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock    *clockwork.FakeClock
	client   *mocks.MockCalendarClient
	repos    *repositories.Repositories
	services *services.Services
}

func testConfig() config.Config {
	//nolint:exhaustruct //only the sync settings matter here
	return config.Config{
		WebURL:            "http://localhost:8000",
		WebhookURL:        "http://localhost:8000/shadowcal/notifications",
		WebhookToken:      "secret",
		FeedToken:         "feed",
		CoalescingWindow:  5 * time.Minute,
		HardCeiling:       30 * time.Minute,
		LookBack:          7 * 24 * time.Hour,
		LookAhead:         90 * 24 * time.Hour,
		MappingTTL:        130 * 24 * time.Hour,
		RenewalMargin:     time.Hour,
		ChannelTTL:        7 * 24 * time.Hour,
		RetryMaxAttempts:  3,
		RetryBaseDelay:    time.Millisecond,
		RetryMaxDelay:     2 * time.Millisecond,
		RetryMultiplier:   2,
		PlaceholderTitle:  "Busy",
		PlaceholderColor:  "8",
		IncludeFreeEvents: true,
	}
}

func testCalendars() config.Calendars {
	return config.Calendars{
		Target: targetID,
		Sources: []sharedmodels.SourceCalendar{
			{ID: workID, DisplayName: "Work"},
			{ID: familyID, DisplayName: "Family"},
		},
	}
}

func newFixture(t *testing.T, opts ...func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	clk := clockwork.NewFakeClockAt(start)
	client := mocks.NewMockCalendarClient(clk.Now)
	repos := repositories.New(repositories.NewMemoryStore(clk))

	svcs := services.New(
		context.Background(),
		logging.NewNopLogger(),
		cfg,
		testCalendars(),
		clk,
		repos,
		client,
		sharedmocks.NewMockedAuthService("user"),
	)
	t.Cleanup(svcs.Coalescer.Stop)

	return &fixture{
		clock:    clk,
		client:   client,
		repos:    repos,
		services: svcs,
	}
}

func timed(id string, from time.Time, duration time.Duration) gcal.Event {
	//nolint:exhaustruct //plain source event
	return gcal.Event{
		ID:          id,
		Title:       "Secret meeting",
		Description: "quarterly numbers",
		Location:    "Room 4",
		Start:       gcal.At(from, zone),
		End:         gcal.At(from.Add(duration), zone),
		BusyState:   gcal.BusyOpaque,
		Status:      gcal.StatusConfirmed,
	}
}

func allDay(id string, from time.Time, days int) gcal.Event {
	//nolint:exhaustruct //plain source event
	return gcal.Event{
		ID:        id,
		Title:     "Holiday",
		Start:     gcal.DateOnly(from),
		End:       gcal.DateOnly(from.AddDate(0, 0, days)),
		BusyState: gcal.BusyOpaque,
		Status:    gcal.StatusConfirmed,
	}
}
