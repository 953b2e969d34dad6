package repositories

import (
	"context"
	"fmt"
	"time"

	"shadowcal.xdoubleu.com/apps/shadowcal/internal/models"
)

type MappingRepository struct {
	store KeyValueStore
}

func mappingKey(calendarID string, eventID string) string {
	return fmt.Sprintf("mapping:%s:%s", calendarID, eventID)
}

func (repo *MappingRepository) Get(
	ctx context.Context,
	calendarID string,
	eventID string,
) (*models.EventMapping, error) {
	return getJSON[models.EventMapping](ctx, repo.store, mappingKey(calendarID, eventID))
}

func (repo *MappingRepository) Save(
	ctx context.Context,
	mapping models.EventMapping,
	ttl time.Duration,
) error {
	return setJSON(
		ctx,
		repo.store,
		mappingKey(mapping.SourceCalendarID, mapping.SourceEventID),
		mapping,
		ttl,
	)
}

func (repo *MappingRepository) Delete(
	ctx context.Context,
	calendarID string,
	eventID string,
) error {
	return repo.store.Delete(ctx, mappingKey(calendarID, eventID))
}
