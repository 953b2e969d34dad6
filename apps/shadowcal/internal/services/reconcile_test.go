package services_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/backoff"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/mocks"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/services"
	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
	"shadowcal.xdoubleu.com/internal/config"
)

//nolint:gochecknoglobals //test fixture
var meeting = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestReconcileCreatesPlaceholderOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, result.Errors)

	placeholders := f.client.Events(targetID)
	require.Len(t, placeholders, 1)

	placeholder := placeholders[0]
	assert.Equal(t, "Busy", placeholder.Title)
	assert.Empty(t, placeholder.Description)
	assert.Empty(t, placeholder.Location)
	assert.Equal(t, gcal.VisibilityPrivate, placeholder.Visibility)
	assert.Equal(t, gcal.BusyOpaque, placeholder.BusyState)
	assert.Equal(t, meeting, placeholder.Start.DateTime)
	assert.Equal(t, zone, placeholder.Start.TimeZone)
	require.NotNil(t, placeholder.Provenance)
	assert.Equal(t, workID, placeholder.Provenance.SourceCalendarID)
	assert.Equal(t, "e1", placeholder.Provenance.SourceEventID)

	mapping, err := f.repos.Mappings.Get(ctx, workID, "e1")
	require.Nil(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, placeholder.ID, mapping.TargetEventID)

	result, err = f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 1, f.client.Calls(mocks.OpCreate))
	assert.Equal(t, 0, f.client.Calls(mocks.OpUpdate))
	assert.Len(t, f.client.Events(targetID), 1)
}

func TestReconcileUpdatesMovedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	_, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)

	moved := meeting.Add(2 * time.Hour)
	f.client.PutEvent(workID, timed("e1", moved, 30*time.Minute))

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Updated)

	placeholders := f.client.Events(targetID)
	require.Len(t, placeholders, 1)
	assert.Equal(t, moved, placeholders[0].Start.DateTime)
	assert.Equal(t, moved.Add(30*time.Minute), placeholders[0].End.DateTime)
}

func TestReconcileSkipsContainedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wide := timed("wide", meeting.Add(-time.Hour), 2*time.Hour)
	wide.Title = "Busy"
	//nolint:exhaustruct //synced at is irrelevant
	wide.Provenance = &gcal.Provenance{
		SourceCalendarID: familyID,
		SourceEventID:    "f1",
	}
	f.client.PutEvent(targetID, wide)

	f.client.PutEvent(workID, timed("e1", meeting.Add(-30*time.Minute), time.Hour))

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, f.client.Calls(mocks.OpCreate))

	mapping, err := f.repos.Mappings.Get(ctx, workID, "e1")
	require.Nil(t, err)
	assert.Nil(t, mapping)
}

func TestReconcileCreatesWhenCoveringPlaceholderMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e2", meeting.Add(-time.Hour), 3*time.Hour))
	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	require.Equal(t, 1, result.Created)

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	result, err = f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Skipped)

	f.client.PutEvent(workID, timed("e2", meeting.Add(4*time.Hour), time.Hour))
	result, err = f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, f.client.Events(targetID), 2)

	mapping, err := f.repos.Mappings.Get(ctx, workID, "e1")
	require.Nil(t, err)
	require.NotNil(t, mapping)

	result, err = f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Deleted)
	assert.Len(t, f.client.Events(targetID), 2)
}

func TestReconcileContainmentAcrossCalendars(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(familyID, timed("f1", meeting.Add(-time.Hour), 3*time.Hour))
	f.client.PutEvent(workID, timed("w1", meeting, time.Hour))

	result, err := f.services.Reconcile.Reconcile(ctx, familyID)
	require.Nil(t, err)
	require.Equal(t, 1, result.Created)

	result, err = f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, f.client.Events(targetID), 1)

	f.client.RemoveEvent(familyID, "f1")
	result, err = f.services.Reconcile.Reconcile(ctx, familyID)
	require.Nil(t, err)
	require.Equal(t, 1, result.Deleted)

	result, err = f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Created)

	placeholders := f.client.Events(targetID)
	require.Len(t, placeholders, 1)
	require.NotNil(t, placeholders[0].Provenance)
	assert.Equal(t, workID, placeholders[0].Provenance.SourceCalendarID)
}

func TestReconcileSerializesSameCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	f.client.PutEvent(workID, timed("e2", meeting.Add(3*time.Hour), time.Hour))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.services.Reconcile.Reconcile(ctx, workID)
			assert.Nil(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.client.Events(targetID), 2)
	assert.Equal(t, 2, f.client.Calls(mocks.OpCreate))
}

func TestReconcileAllDayNeedsExactRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	holiday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	long := allDay("long", holiday, 2)
	//nolint:exhaustruct //synced at is irrelevant
	long.Provenance = &gcal.Provenance{SourceCalendarID: familyID, SourceEventID: "f1"}
	f.client.PutEvent(targetID, long)

	f.client.PutEvent(workID, allDay("a1", holiday, 1))
	f.client.PutEvent(workID, allDay("a2", holiday, 2))

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)

	mapping, err := f.repos.Mappings.Get(ctx, workID, "a1")
	require.Nil(t, err)
	assert.NotNil(t, mapping)
}

func TestReconcileExcludesDeclinedAndUntimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	declined := timed("declined", meeting, time.Hour)
	declined.SelfResponse = gcal.ResponseDeclined
	f.client.PutEvent(workID, declined)

	//nolint:exhaustruct //an event without any time
	f.client.PutEvent(workID, gcal.Event{ID: "untimed", Status: gcal.StatusConfirmed})

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, f.client.Events(targetID))
}

func TestReconcileExcludesFreeEventsWhenConfigured(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.IncludeFreeEvents = false
	})
	ctx := context.Background()

	free := timed("free", meeting, time.Hour)
	free.BusyState = gcal.BusyTransparent
	f.client.PutEvent(workID, free)
	f.client.PutEvent(workID, timed("busy", meeting.Add(3*time.Hour), time.Hour))

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestReconcileDeletesCancelledEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	_, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)

	cancelled := timed("e1", meeting, time.Hour)
	cancelled.Status = gcal.StatusCancelled
	f.client.PutEvent(workID, cancelled)

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, f.client.Events(targetID))

	mapping, err := f.repos.Mappings.Get(ctx, workID, "e1")
	require.Nil(t, err)
	assert.Nil(t, mapping)
}

func TestReconcileDeletesWhenEventStopsQualifying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	_, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)

	declined := timed("e1", meeting, time.Hour)
	declined.SelfResponse = gcal.ResponseDeclined
	f.client.PutEvent(workID, declined)

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, f.client.Events(targetID))
}

func TestReconcileDeletesVanishedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	f.client.PutEvent(workID, timed("e2", meeting.Add(4*time.Hour), time.Hour))
	_, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)

	f.client.RemoveEvent(workID, "e1")

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Deleted)

	placeholders := f.client.Events(targetID)
	require.Len(t, placeholders, 1)
	assert.Equal(t, "e2", placeholders[0].Provenance.SourceEventID)
}

func TestReconcileLeavesOtherCalendarsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(familyID, timed("f1", meeting, time.Hour))
	_, err := f.services.Reconcile.Reconcile(ctx, familyID)
	require.Nil(t, err)

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Deleted)
	assert.Len(t, f.client.Events(targetID), 1)
}

func TestReconcileRecreatesExternallyDeletedPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	first, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	require.Equal(t, 1, first.Created)

	original := f.client.Events(targetID)[0].ID
	f.client.RemoveEvent(targetID, original)

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Created)

	mapping, err := f.repos.Mappings.Get(ctx, workID, "e1")
	require.Nil(t, err)
	require.NotNil(t, mapping)
	assert.NotEqual(t, original, mapping.TargetEventID)
}

func TestReconcileRecreatesOnUpdateNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	_, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)

	f.client.PutEvent(workID, timed("e1", meeting.Add(time.Hour), time.Hour))
	f.client.FailNext(mocks.OpUpdate, mocks.NotFound())

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, f.client.Calls(mocks.OpUpdate))

	// the stale copy is cleaned up as a duplicate on the next pass
	result, err = f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Created)

	placeholders := f.client.Events(targetID)
	require.Len(t, placeholders, 1)
	assert.Equal(t, meeting.Add(time.Hour), placeholders[0].Start.DateTime)
}

func TestReconcileAdoptsPlaceholderWithoutMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	_, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)

	placeholderID := f.client.Events(targetID)[0].ID
	require.Nil(t, f.repos.Mappings.Delete(ctx, workID, "e1"))

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, f.client.Calls(mocks.OpCreate))

	mapping, err := f.repos.Mappings.Get(ctx, workID, "e1")
	require.Nil(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, placeholderID, mapping.TargetEventID)
}

func TestReconcileRetriesRateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	f.client.FailNext(mocks.OpCreate, mocks.RateLimited(), mocks.RateLimited())

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 3, f.client.Calls(mocks.OpCreate))
}

func TestReconcileCollectsPerEventErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("a", meeting, time.Hour))
	f.client.PutEvent(workID, timed("b", meeting.Add(3*time.Hour), time.Hour))
	f.client.FailNext(mocks.OpCreate, &gcal.APIError{
		StatusCode:  http.StatusConflict,
		ErrorReason: "duplicate",
		Message:     "conflict",
	})

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "a", result.Errors[0].EventID)
	assert.Equal(t, "create", result.Errors[0].Op)
	assert.Equal(t, 2, f.client.Calls(mocks.OpCreate))

	marker, err := f.repos.Markers.Get(ctx, workID)
	require.Nil(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, 1, marker.Created)
	assert.Equal(t, 1, marker.Errors)
}

func TestReconcileRefetchesStaleListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.PutEvent(workID, timed("e1", meeting, time.Hour))
	f.client.FailNext(mocks.OpList, &gcal.APIError{
		StatusCode:  http.StatusGone,
		ErrorReason: "updatedMinTooLongAgo",
		Message:     "gone",
	})

	result, err := f.services.Reconcile.Reconcile(ctx, workID)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 3, f.client.Calls(mocks.OpList))
}

func TestReconcileFailsWhenListingFails(t *testing.T) {
	f := newFixture(t)

	f.client.FailNext(mocks.OpList, &gcal.APIError{
		StatusCode:  http.StatusForbidden,
		ErrorReason: "forbidden",
		Message:     "no access",
	})

	_, err := f.services.Reconcile.Reconcile(context.Background(), workID)
	assert.ErrorIs(t, err, backoff.ErrPermanent)
	assert.Equal(t, 1, f.client.Calls(mocks.OpList))
}

func TestReconcileUnknownCalendar(t *testing.T) {
	f := newFixture(t)

	_, err := f.services.Reconcile.Reconcile(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, services.ErrUnknownCalendar)
	assert.Equal(t, 0, f.client.Calls(mocks.OpList))
}

func TestReconcileAll(t *testing.T) {
	f := newFixture(t)

	f.client.PutEvent(workID, timed("w1", meeting, time.Hour))
	f.client.PutEvent(familyID, timed("f1", meeting.Add(5*time.Hour), time.Hour))

	results, err := f.services.Reconcile.ReconcileAll(context.Background())
	require.Nil(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, familyID, results[0].CalendarID)
	assert.Equal(t, workID, results[1].CalendarID)
	assert.Equal(t, 1, results[0].Created)
	assert.Equal(t, 1, results[1].Created)
	assert.Len(t, f.client.Events(targetID), 2)
}
