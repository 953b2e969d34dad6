package jobs

import (
	"context"
	"log/slog"
	"time"

	"shadowcal.xdoubleu.com/apps/shadowcal/internal/services"
)

const RenewalJobID = "renewal"

type RenewalJob struct {
	subscriptions *services.SubscriptionService
	every         time.Duration
}

func NewRenewalJob(
	subscriptions *services.SubscriptionService,
	every time.Duration,
) RenewalJob {
	return RenewalJob{
		subscriptions: subscriptions,
		every:         every,
	}
}

func (j RenewalJob) ID() string {
	return RenewalJobID
}

func (j RenewalJob) RunEvery() time.Duration {
	return j.every
}

func (j RenewalJob) Run(ctx context.Context, logger *slog.Logger) error {
	logger.Debug("ensuring subscription channels")
	return j.subscriptions.EnsureAll(ctx)
}
