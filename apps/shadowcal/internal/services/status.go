package services

import (
	"context"
	"fmt"

	"shadowcal.xdoubleu.com/apps/shadowcal/internal/models"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/repositories"
	"shadowcal.xdoubleu.com/internal/config"
)

type StatusService struct {
	markers   *repositories.MarkerRepository
	calendars config.Calendars
	coalescer *Coalescer
}

// Calendars lists every source calendar with its last sync marker and any
// pending debounced run.
func (service *StatusService) Calendars(ctx context.Context) ([]models.CalendarStatus, error) {
	pending := map[string]models.PendingSync{}
	for _, item := range service.coalescer.Pending() {
		pending[item.CalendarID] = item
	}

	statuses := make([]models.CalendarStatus, 0, len(service.calendars.Sources))
	for _, source := range service.calendars.Sources {
		marker, err := service.markers.Get(ctx, source.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source.ID, err)
		}

		//nolint:exhaustruct //pending is optional
		status := models.CalendarStatus{
			Calendar: source,
			LastSync: marker,
		}
		if item, ok := pending[source.ID]; ok {
			status.Pending = &item
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}
