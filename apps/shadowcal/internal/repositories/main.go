package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Repositories struct {
	Store    KeyValueStore
	Mappings *MappingRepository
	Channels *ChannelRepository
	Markers  *MarkerRepository
}

func New(store KeyValueStore) *Repositories {
	return &Repositories{
		Store:    store,
		Mappings: &MappingRepository{store: store},
		Channels: &ChannelRepository{store: store},
		Markers:  &MarkerRepository{store: store},
	}
}

func getJSON[T any](ctx context.Context, store KeyValueStore, key string) (*T, error) {
	data, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil //nolint:nilnil //absence is not an error
	}

	var value T
	if err = json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	return &value, nil
}

func setJSON(
	ctx context.Context,
	store KeyValueStore,
	key string,
	value any,
	ttl time.Duration,
) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	return store.Set(ctx, key, data, ttl)
}
