package shadowcal_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	configtools "github.com/xdoubleu/essentia/v2/pkg/config"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"shadowcal.xdoubleu.com/apps/shadowcal"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/mocks"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/repositories"
	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
	"shadowcal.xdoubleu.com/internal/config"
	sharedmocks "shadowcal.xdoubleu.com/internal/mocks"
	sharedmodels "shadowcal.xdoubleu.com/internal/models"
)

const (
	targetID = "shadow@example.com"
	workID   = "work@example.com"
	familyID = "family@example.com"
	userID   = "4001e9cf-3fbe-4b09-863f-bd1654cfbf76"
)

//nolint:gochecknoglobals //needed for tests
var now = time.Date(2024, 2, 28, 9, 0, 0, 0, time.UTC)

type testApp struct {
	*shadowcal.ShadowCal
	clock  *clockwork.FakeClock
	client *mocks.MockCalendarClient
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := config.New(logging.NewNopLogger())
	cfg.Env = configtools.TestEnv
	cfg.WebhookToken = "secret"
	cfg.FeedToken = "feed"
	cfg.RetryMaxAttempts = 2
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = time.Millisecond

	calendars := config.Calendars{
		Target: targetID,
		Sources: []sharedmodels.SourceCalendar{
			{ID: workID, DisplayName: "Work"},
			{ID: familyID, DisplayName: "Family"},
		},
	}

	clk := clockwork.NewFakeClockAt(now)
	client := mocks.NewMockCalendarClient(clk.Now)

	app := shadowcal.NewInner(
		sharedmocks.NewMockedAuthService(userID),
		logging.NewNopLogger(),
		cfg,
		calendars,
		repositories.NewMemoryStore(clk),
		shadowcal.Clients{Calendar: client},
		clk,
	)
	t.Cleanup(app.Shutdown)

	return &testApp{
		ShadowCal: app,
		clock:     clk,
		client:    client,
	}
}

func (app *testApp) routes() http.Handler {
	mux := http.NewServeMux()
	app.Routes(app.GetName(), mux)
	return mux
}

func meeting(id string) gcal.Event {
	return meetingAt(id, now.Add(26*time.Hour))
}

func meetingAt(id string, from time.Time) gcal.Event {
	//nolint:exhaustruct //plain source event
	return gcal.Event{
		ID:        id,
		Title:     "Board meeting",
		Start:     gcal.At(from, "UTC"),
		End:       gcal.At(from.Add(time.Hour), "UTC"),
		BusyState: gcal.BusyOpaque,
		Status:    gcal.StatusConfirmed,
	}
}
