package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/moby/locker"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/backoff"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/models"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/repositories"
	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
	"shadowcal.xdoubleu.com/internal/config"
)

// recordGrace keeps a channel record around for a while after its expiry.
const recordGrace = 24 * time.Hour

type SubscriptionService struct {
	logger        *slog.Logger
	clock         clockwork.Clock
	client        gcal.Client
	policy        *backoff.Policy
	channels      *repositories.ChannelRepository
	calendars     config.Calendars
	webhookURL    string
	webhookToken  string
	channelTTL    time.Duration
	renewalMargin time.Duration
	locks         *locker.Locker
}

func (service *SubscriptionService) checkCalendar(calendarID string) error {
	if _, ok := service.calendars.Source(calendarID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCalendar, calendarID)
	}
	return nil
}

func (service *SubscriptionService) IsNearExpiry(
	ctx context.Context,
	calendarID string,
) (bool, error) {
	if err := service.checkCalendar(calendarID); err != nil {
		return false, err
	}

	channel, err := service.channels.Get(ctx, calendarID)
	if err != nil {
		return false, err
	}

	return channel == nil || channel.IsNearExpiry(service.clock.Now(), service.renewalMargin), nil
}

// Ensure makes sure the calendar has a channel that is not about to expire.
// The returned bool reports whether a new channel was created.
func (service *SubscriptionService) Ensure(
	ctx context.Context,
	calendarID string,
) (*models.SubscriptionChannel, bool, error) {
	if err := service.checkCalendar(calendarID); err != nil {
		return nil, false, err
	}

	service.locks.Lock(calendarID)
	//nolint:errcheck //always held here
	defer service.locks.Unlock(calendarID)

	current, err := service.channels.Get(ctx, calendarID)
	if err != nil {
		return nil, false, fmt.Errorf("load channel: %w", err)
	}

	if current != nil && !current.IsNearExpiry(service.clock.Now(), service.renewalMargin) {
		return current, false, nil
	}

	renewed, err := service.renew(ctx, calendarID, current)
	if err != nil {
		return nil, false, err
	}

	return renewed, true, nil
}

func (service *SubscriptionService) renew(
	ctx context.Context,
	calendarID string,
	current *models.SubscriptionChannel,
) (*models.SubscriptionChannel, error) {
	created, err := backoff.DoValue(
		ctx,
		service.policy,
		"create channel",
		func(ctx context.Context) (*gcal.Channel, error) {
			return service.client.CreateChannel(
				ctx,
				calendarID,
				service.webhookURL,
				service.webhookToken,
				service.channelTTL,
			)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	channel := models.SubscriptionChannel{
		CalendarID:  calendarID,
		ChannelID:   created.ID,
		ResourceID:  created.ResourceID,
		ResourceURI: created.ResourceURI,
		ExpiresAt:   created.ExpiresAt,
	}

	ttl := channel.ExpiresAt.Sub(service.clock.Now()) + recordGrace
	if err = service.channels.Save(ctx, channel, ttl); err != nil {
		// an unrecorded channel would never be renewed or stopped
		service.stop(ctx, calendarID, channel)
		return nil, fmt.Errorf("save channel: %w", err)
	}

	service.logger.Info(
		"subscription channel created",
		slog.String("calendar", calendarID),
		slog.String("channel", channel.ChannelID),
		slog.Time("expiresAt", channel.ExpiresAt),
	)

	if current != nil && current.ChannelID != channel.ChannelID {
		service.stop(ctx, calendarID, *current)
	}

	return &channel, nil
}

// stop tears a channel down on the provider side. Failures only get logged.
func (service *SubscriptionService) stop(
	ctx context.Context,
	calendarID string,
	channel models.SubscriptionChannel,
) {
	err := service.policy.Do(ctx, "stop channel", func(ctx context.Context) error {
		return service.client.StopChannel(ctx, channel.ChannelID, channel.ResourceID)
	})
	if err != nil {
		service.logger.Warn(
			"failed to stop channel",
			slog.String("calendar", calendarID),
			slog.String("channel", channel.ChannelID),
			logging.ErrAttr(err),
		)
	}
}

func (service *SubscriptionService) Status(
	ctx context.Context,
	calendarID string,
) (models.ChannelStatus, error) {
	channel, err := service.channels.Get(ctx, calendarID)
	if err != nil {
		return models.ChannelStatus{}, err //nolint:exhaustruct //error path
	}

	state := models.ChannelAbsent
	switch {
	case channel == nil:
	case channel.IsNearExpiry(service.clock.Now(), service.renewalMargin):
		state = models.ChannelNearExpiry
	default:
		state = models.ChannelActive
	}

	return models.ChannelStatus{
		CalendarID: calendarID,
		State:      state,
		Channel:    channel,
	}, nil
}

func (service *SubscriptionService) ListAll(ctx context.Context) ([]models.ChannelStatus, error) {
	statuses := make([]models.ChannelStatus, 0, len(service.calendars.Sources))

	for _, source := range service.calendars.Sources {
		status, err := service.Status(ctx, source.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source.ID, err)
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}

// EnsureAll runs Ensure for every source calendar. One failing calendar does
// not keep the others from being renewed.
func (service *SubscriptionService) EnsureAll(ctx context.Context) error {
	errs := []error{}
	renewed := 0

	for _, source := range service.calendars.Sources {
		_, ok, err := service.Ensure(ctx, source.ID)
		if err != nil {
			service.logger.Error(
				"failed to ensure subscription",
				slog.String("calendar", source.ID),
				logging.ErrAttr(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", source.ID, err))
			continue
		}
		if ok {
			renewed++
		}
	}

	service.logger.Debug(
		"subscriptions ensured",
		slog.Int("renewed", renewed),
		slog.Int("errors", len(errs)),
	)

	return errors.Join(errs...)
}

func (service *SubscriptionService) Teardown(ctx context.Context, calendarID string) error {
	if err := service.checkCalendar(calendarID); err != nil {
		return err
	}

	service.locks.Lock(calendarID)
	//nolint:errcheck //always held here
	defer service.locks.Unlock(calendarID)

	channel, err := service.channels.Get(ctx, calendarID)
	if err != nil {
		return err
	}
	if channel == nil {
		return nil
	}

	service.stop(ctx, calendarID, *channel)

	return service.channels.Delete(ctx, calendarID)
}

// CalendarForChannel finds the source calendar a channel id was issued for.
func (service *SubscriptionService) CalendarForChannel(
	ctx context.Context,
	channelID string,
) (string, bool) {
	for _, source := range service.calendars.Sources {
		channel, err := service.channels.Get(ctx, source.ID)
		if err != nil || channel == nil {
			continue
		}
		if channel.ChannelID == channelID {
			return source.ID, true
		}
	}

	return "", false
}
