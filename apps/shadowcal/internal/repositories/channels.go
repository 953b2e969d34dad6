package repositories

import (
	"context"
	"time"

	"shadowcal.xdoubleu.com/apps/shadowcal/internal/models"
)

type ChannelRepository struct {
	store KeyValueStore
}

func channelKey(calendarID string) string {
	return "subscription:" + calendarID
}

func (repo *ChannelRepository) Get(
	ctx context.Context,
	calendarID string,
) (*models.SubscriptionChannel, error) {
	return getJSON[models.SubscriptionChannel](ctx, repo.store, channelKey(calendarID))
}

func (repo *ChannelRepository) Save(
	ctx context.Context,
	channel models.SubscriptionChannel,
	ttl time.Duration,
) error {
	return setJSON(ctx, repo.store, channelKey(channel.CalendarID), channel, ttl)
}

func (repo *ChannelRepository) Delete(ctx context.Context, calendarID string) error {
	return repo.store.Delete(ctx, channelKey(calendarID))
}
