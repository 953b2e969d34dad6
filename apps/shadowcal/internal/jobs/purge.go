package jobs

import (
	"context"
	"log/slog"
	"time"

	"shadowcal.xdoubleu.com/apps/shadowcal/internal/repositories"
)

const PurgeJobID = "purge"

// PurgeJob drops expired mappings and channel records from stores that keep
// them around until read.
type PurgeJob struct {
	store repositories.Purger
	every time.Duration
}

func NewPurgeJob(store repositories.Purger, every time.Duration) PurgeJob {
	return PurgeJob{
		store: store,
		every: every,
	}
}

func (j PurgeJob) ID() string {
	return PurgeJobID
}

func (j PurgeJob) RunEvery() time.Duration {
	return j.every
}

func (j PurgeJob) Run(ctx context.Context, logger *slog.Logger) error {
	purged, err := j.store.Purge(ctx)
	if err != nil {
		return err
	}

	logger.Debug("purged expired entries", slog.Int64("entries", purged))
	return nil
}
