package repositories

import (
	"context"

	"shadowcal.xdoubleu.com/apps/shadowcal/internal/models"
)

type MarkerRepository struct {
	store KeyValueStore
}

func markerKey(calendarID string) string {
	return "lastsync:" + calendarID
}

func (repo *MarkerRepository) Get(
	ctx context.Context,
	calendarID string,
) (*models.SyncMarker, error) {
	return getJSON[models.SyncMarker](ctx, repo.store, markerKey(calendarID))
}

func (repo *MarkerRepository) Save(
	ctx context.Context,
	calendarID string,
	marker models.SyncMarker,
) error {
	return setJSON(ctx, repo.store, markerKey(calendarID), marker, 0)
}
