package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/moby/locker"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"github.com/xdoubleu/essentia/v2/pkg/threading"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/backoff"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/models"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/repositories"
	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
	"shadowcal.xdoubleu.com/internal/config"
)

var ErrUnknownCalendar = errors.New("unknown calendar")

const maxParallelCalendars = 4

type ReconcileService struct {
	logger      *slog.Logger
	clock       clockwork.Clock
	client      gcal.Client
	policy      *backoff.Policy
	mappings    *repositories.MappingRepository
	markers     *repositories.MarkerRepository
	calendars   config.Calendars
	placeholder PlaceholderConfig
	lookBack    time.Duration
	lookAhead   time.Duration
	mappingTTL  time.Duration
	locks       *locker.Locker
}

// reconcileRun is the working state of one pass over one source calendar.
type reconcileRun struct {
	calendarID string
	now        time.Time
	timeMin    time.Time
	timeMax    time.Time
	result     *models.ReconcileResult

	live     map[string]gcal.Event
	ended    []gcal.Event
	targets  map[string]gcal.Event
	owned    map[string][]gcal.Event
	covering []gcal.Event
	deleted  map[string]bool
	mappings map[string]*models.EventMapping
}

func (service *ReconcileService) newRun(calendarID string) *reconcileRun {
	now := service.clock.Now()

	return &reconcileRun{
		calendarID: calendarID,
		now:        now,
		timeMin:    now.Add(-service.lookBack),
		timeMax:    now.Add(service.lookAhead),
		result:     models.NewReconcileResult(calendarID, now),
		live:       map[string]gcal.Event{},
		ended:      []gcal.Event{},
		targets:    map[string]gcal.Event{},
		owned:      map[string][]gcal.Event{},
		covering:   []gcal.Event{},
		deleted:    map[string]bool{},
		mappings:   map[string]*models.EventMapping{},
	}
}

func (run *reconcileRun) index(
	cfg PlaceholderConfig,
	sourceEvents []gcal.Event,
	targetEvents []gcal.Event,
) {
	for _, event := range sourceEvents {
		if cfg.qualifies(event) {
			run.live[event.ID] = event
		} else {
			run.ended = append(run.ended, event)
		}
	}

	sort.Slice(targetEvents, func(i, j int) bool { return targetEvents[i].ID < targetEvents[j].ID })

	for _, event := range targetEvents {
		if event.IsCancelled() {
			continue
		}
		run.targets[event.ID] = event

		if event.Provenance == nil {
			continue
		}
		run.covering = append(run.covering, event)

		if event.Provenance.SourceCalendarID == run.calendarID {
			sourceEventID := event.Provenance.SourceEventID
			run.owned[sourceEventID] = append(run.owned[sourceEventID], event)
		}
	}
}

func (run *reconcileRun) inWindow(event gcal.Event) bool {
	start, ok := event.Start.Instant(time.UTC)
	return ok && !start.Before(run.timeMin) && start.Before(run.timeMax)
}

func (run *reconcileRun) alive(targetEventID string) bool {
	_, ok := run.targets[targetEventID]
	return ok && !run.deleted[targetEventID]
}

func (run *reconcileRun) containing(placeholder gcal.Event) *gcal.Event {
	for _, existing := range run.covering {
		if run.deleted[existing.ID] {
			continue
		}
		if contains(existing, placeholder) {
			return &existing
		}
	}
	return nil
}

// moved records the new window of an updated placeholder.
func (run *reconcileRun) moved(placeholder gcal.Event) {
	run.targets[placeholder.ID] = placeholder

	for i, existing := range run.covering {
		if existing.ID == placeholder.ID {
			run.covering[i] = placeholder
		}
	}

	if placeholder.Provenance == nil {
		return
	}
	owned := run.owned[placeholder.Provenance.SourceEventID]
	for i, existing := range owned {
		if existing.ID == placeholder.ID {
			owned[i] = placeholder
		}
	}
}

func (run *reconcileRun) ownedLive(sourceEventID string) *gcal.Event {
	for _, existing := range run.owned[sourceEventID] {
		if !run.deleted[existing.ID] {
			return &existing
		}
	}
	return nil
}

func (service *ReconcileService) Reconcile(
	ctx context.Context,
	calendarID string,
) (*models.ReconcileResult, error) {
	if _, ok := service.calendars.Source(calendarID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCalendar, calendarID)
	}

	service.locks.Lock(calendarID)
	//nolint:errcheck //always held here
	defer service.locks.Unlock(calendarID)

	run := service.newRun(calendarID)

	sourceEvents, err := service.listSource(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("list source events: %w", err)
	}

	targetEvents, err := backoff.DoValue(
		ctx,
		service.policy,
		"list target events",
		func(ctx context.Context) ([]gcal.Event, error) {
			return service.client.ListEvents(
				ctx,
				service.calendars.Target,
				run.timeMin,
				run.timeMax,
			)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("list target events: %w", err)
	}

	run.index(service.placeholder, sourceEvents, targetEvents)

	service.removeEnded(ctx, run)
	service.removeOrphans(ctx, run)
	service.upsertLive(ctx, run)

	run.result.FinishedAt = service.clock.Now()

	marker := models.SyncMarkerFromResult(run.result)
	if err = service.markers.Save(ctx, calendarID, marker); err != nil {
		service.logger.Warn(
			"failed to save sync marker",
			slog.String("calendar", calendarID),
			logging.ErrAttr(err),
		)
	}

	service.logger.Info(
		"reconciled calendar",
		slog.String("calendar", calendarID),
		slog.Int("created", run.result.Created),
		slog.Int("updated", run.result.Updated),
		slog.Int("deleted", run.result.Deleted),
		slog.Int("skipped", run.result.Skipped),
		slog.Int("errors", len(run.result.Errors)),
	)

	return run.result, nil
}

// ReconcileAll reconciles every source calendar, different calendars in
// parallel.
func (service *ReconcileService) ReconcileAll(
	ctx context.Context,
) ([]*models.ReconcileResult, error) {
	sources := service.calendars.Sources
	if len(sources) == 0 {
		return []*models.ReconcileResult{}, nil
	}

	workerPool := threading.NewWorkerPool(
		service.logger,
		min(len(sources), maxParallelCalendars),
		len(sources),
	)

	mu := sync.Mutex{}
	results := []*models.ReconcileResult{}
	errs := []error{}

	for _, source := range sources {
		workerPool.EnqueueWork(func(_ context.Context, _ *slog.Logger) error {
			result, err := service.Reconcile(ctx, source.ID)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", source.ID, err))
				return err
			}

			results = append(results, result)
			return nil
		})
	}

	workerPool.WaitUntilDone()

	sort.Slice(results, func(i, j int) bool {
		return results[i].CalendarID < results[j].CalendarID
	})

	return results, errors.Join(errs...)
}

func (service *ReconcileService) listSource(
	ctx context.Context,
	run *reconcileRun,
) ([]gcal.Event, error) {
	list := func(ctx context.Context) ([]gcal.Event, error) {
		return service.client.ListEvents(ctx, run.calendarID, run.timeMin, run.timeMax)
	}

	events, err := backoff.DoValue(ctx, service.policy, "list source events", list)
	if errors.Is(err, backoff.ErrStaleCursor) {
		service.logger.Warn(
			"source listing went stale, refetching full window",
			slog.String("calendar", run.calendarID),
		)
		events, err = backoff.DoValue(ctx, service.policy, "refetch source events", list)
	}

	return events, err
}

func (service *ReconcileService) lookup(
	ctx context.Context,
	run *reconcileRun,
	sourceEventID string,
) (*models.EventMapping, error) {
	if mapping, ok := run.mappings[sourceEventID]; ok {
		return mapping, nil
	}

	mapping, err := service.mappings.Get(ctx, run.calendarID, sourceEventID)
	if err != nil {
		return nil, err
	}

	run.mappings[sourceEventID] = mapping
	return mapping, nil
}

func (service *ReconcileService) saveMapping(
	ctx context.Context,
	run *reconcileRun,
	sourceEventID string,
	targetEventID string,
	hash string,
) {
	mapping := models.EventMapping{
		SourceCalendarID: run.calendarID,
		SourceEventID:    sourceEventID,
		TargetEventID:    targetEventID,
		ContentHash:      hash,
		SyncedAt:         run.now,
	}

	if err := service.mappings.Save(ctx, mapping, service.mappingTTL); err != nil {
		run.result.AddError(sourceEventID, "map", err)
		return
	}

	run.mappings[sourceEventID] = &mapping
}

func (service *ReconcileService) dropMapping(
	ctx context.Context,
	run *reconcileRun,
	sourceEventID string,
) {
	if err := service.mappings.Delete(ctx, run.calendarID, sourceEventID); err != nil {
		run.result.AddError(sourceEventID, "unmap", err)
		return
	}

	run.mappings[sourceEventID] = nil
}

// deletePlaceholder removes a target event. An empty sourceEventID leaves
// mappings untouched.
func (service *ReconcileService) deletePlaceholder(
	ctx context.Context,
	run *reconcileRun,
	sourceEventID string,
	targetEventID string,
) {
	if !run.deleted[targetEventID] {
		err := service.policy.Do(ctx, "delete placeholder", func(ctx context.Context) error {
			return service.client.DeleteEvent(ctx, service.calendars.Target, targetEventID)
		})

		switch {
		case err == nil:
			run.result.Deleted++
		case backoff.IsNotFound(err):
		default:
			eventID := sourceEventID
			if eventID == "" {
				eventID = targetEventID
			}
			run.result.AddError(eventID, "delete", err)
			return
		}

		run.deleted[targetEventID] = true
	}

	if sourceEventID != "" {
		service.dropMapping(ctx, run, sourceEventID)
	}
}

// removeEnded deletes placeholders of source events that were cancelled or
// stopped qualifying.
func (service *ReconcileService) removeEnded(ctx context.Context, run *reconcileRun) {
	for _, event := range run.ended {
		mapping, err := service.lookup(ctx, run, event.ID)
		if err != nil {
			run.result.AddError(event.ID, "lookup", err)
			continue
		}

		if mapping == nil {
			if !event.IsCancelled() {
				run.result.Skipped++
			}
			continue
		}

		service.deletePlaceholder(ctx, run, event.ID, mapping.TargetEventID)
	}
}

// removeOrphans deletes placeholders of this calendar whose source event is
// no longer in the window, and duplicate placeholders of live events.
func (service *ReconcileService) removeOrphans(ctx context.Context, run *reconcileRun) {
	sourceEventIDs := make([]string, 0, len(run.owned))
	for sourceEventID := range run.owned {
		sourceEventIDs = append(sourceEventIDs, sourceEventID)
	}
	sort.Strings(sourceEventIDs)

	for _, sourceEventID := range sourceEventIDs {
		placeholders := run.owned[sourceEventID]

		if _, ok := run.live[sourceEventID]; !ok {
			for _, placeholder := range placeholders {
				if run.inWindow(placeholder) {
					service.deletePlaceholder(ctx, run, sourceEventID, placeholder.ID)
				}
			}
			continue
		}

		if len(placeholders) < 2 { //nolint:mnd //duplicates only
			continue
		}

		keep := placeholders[0].ID
		mapping, err := service.lookup(ctx, run, sourceEventID)
		if err == nil && mapping != nil && run.alive(mapping.TargetEventID) {
			keep = mapping.TargetEventID
		}

		for _, placeholder := range placeholders {
			if placeholder.ID != keep {
				service.deletePlaceholder(ctx, run, "", placeholder.ID)
			}
		}
	}
}

// upsertLive moves mapped placeholders before creating new ones, so the
// containment check sees every placeholder at its current window.
func (service *ReconcileService) upsertLive(ctx context.Context, run *reconcileRun) {
	ids := make([]string, 0, len(run.live))
	for id := range run.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	unplaced := make([]gcal.Event, 0, len(ids))
	for _, id := range ids {
		if !service.syncMapped(ctx, run, run.live[id]) {
			unplaced = append(unplaced, run.live[id])
		}
	}

	for _, event := range unplaced {
		service.create(ctx, run, event)
	}
}

// syncMapped handles events that already own a placeholder. It returns false
// when the event still needs one.
func (service *ReconcileService) syncMapped(
	ctx context.Context,
	run *reconcileRun,
	event gcal.Event,
) bool {
	desired := service.placeholder.derive(run.calendarID, event, run.now)
	hash := contentHash(desired)

	mapping, err := service.lookup(ctx, run, event.ID)
	if err != nil {
		run.result.AddError(event.ID, "lookup", err)
		return true
	}

	if mapping != nil && !run.alive(mapping.TargetEventID) {
		service.logger.Debug(
			"mapped placeholder vanished",
			slog.String("calendar", run.calendarID),
			slog.String("event", event.ID),
		)
		service.dropMapping(ctx, run, event.ID)
		mapping = nil
	}

	adopted := false
	if mapping == nil {
		// a placeholder carrying this exact provenance, e.g. written before a
		// crash lost the mapping
		if existing := run.ownedLive(event.ID); existing != nil {
			//nolint:exhaustruct //only target and hash are read below
			mapping = &models.EventMapping{
				TargetEventID: existing.ID,
				ContentHash:   contentHash(*existing),
			}
			adopted = true
		}
	}

	if mapping == nil {
		return false
	}

	return service.updateMapped(ctx, run, event, desired, hash, mapping, adopted)
}

func (service *ReconcileService) create(
	ctx context.Context,
	run *reconcileRun,
	event gcal.Event,
) {
	desired := service.placeholder.derive(run.calendarID, event, run.now)
	hash := contentHash(desired)

	if covering := run.containing(desired); covering != nil {
		service.logger.Debug(
			"event already covered by placeholder",
			slog.String("calendar", run.calendarID),
			slog.String("event", event.ID),
			slog.String("placeholder", covering.ID),
		)
		run.result.Skipped++
		return
	}

	targetEventID, err := backoff.DoValue(
		ctx,
		service.policy,
		"create placeholder",
		func(ctx context.Context) (string, error) {
			return service.client.CreateEvent(ctx, service.calendars.Target, desired)
		},
	)
	if err != nil {
		run.result.AddError(event.ID, "create", err)
		return
	}

	run.result.Created++

	desired.ID = targetEventID
	run.targets[targetEventID] = desired
	run.covering = append(run.covering, desired)

	service.saveMapping(ctx, run, event.ID, targetEventID, hash)
}

// updateMapped brings an existing placeholder in line with its source event.
// It returns false when the placeholder turned out to be gone and the event
// has to go through the create path.
func (service *ReconcileService) updateMapped(
	ctx context.Context,
	run *reconcileRun,
	event gcal.Event,
	desired gcal.Event,
	hash string,
	mapping *models.EventMapping,
	adopted bool,
) bool {
	if mapping.ContentHash == hash {
		if adopted {
			service.saveMapping(ctx, run, event.ID, mapping.TargetEventID, hash)
		}
		return true
	}

	err := service.policy.Do(ctx, "update placeholder", func(ctx context.Context) error {
		return service.client.UpdateEvent(
			ctx,
			service.calendars.Target,
			mapping.TargetEventID,
			desired,
		)
	})

	switch {
	case err == nil:
		run.result.Updated++
		desired.ID = mapping.TargetEventID
		run.moved(desired)
		service.saveMapping(ctx, run, event.ID, mapping.TargetEventID, hash)
		return true
	case backoff.IsNotFound(err):
		run.deleted[mapping.TargetEventID] = true
		if !adopted {
			service.dropMapping(ctx, run, event.ID)
		}
		return false
	default:
		run.result.AddError(event.ID, "update", err)
		return true
	}
}
