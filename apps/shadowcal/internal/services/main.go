package services

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/moby/locker"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/backoff"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/repositories"
	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
	"shadowcal.xdoubleu.com/internal/auth"
	"shadowcal.xdoubleu.com/internal/config"
)

type Services struct {
	Auth          auth.Service
	Reconcile     *ReconcileService
	Subscriptions *SubscriptionService
	Coalescer     *Coalescer
	Notifications *NotificationService
	Feed          *FeedService
	Status        *StatusService
	WebSocket     *WebSocketService
}

func New(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.Config,
	calendars config.Calendars,
	clk clockwork.Clock,
	repositories *repositories.Repositories,
	calendarClient gcal.Client,
	authService auth.Service,
) *Services {
	policy := backoff.New(logger, backoff.Config{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Multiplier:  cfg.RetryMultiplier,
	})

	reconcile := &ReconcileService{
		logger:    logger,
		clock:     clk,
		client:    calendarClient,
		policy:    policy,
		mappings:  repositories.Mappings,
		markers:   repositories.Markers,
		calendars: calendars,
		placeholder: PlaceholderConfig{
			Title:             cfg.PlaceholderTitle,
			Color:             cfg.PlaceholderColor,
			IncludeFreeEvents: cfg.IncludeFreeEvents,
		},
		lookBack:   cfg.LookBack,
		lookAhead:  cfg.LookAhead,
		mappingTTL: cfg.MappingTTL,
		locks:      locker.New(),
	}

	subscriptions := &SubscriptionService{
		logger:        logger,
		clock:         clk,
		client:        calendarClient,
		policy:        policy,
		channels:      repositories.Channels,
		calendars:     calendars,
		webhookURL:    cfg.WebhookURL,
		webhookToken:  cfg.WebhookToken,
		channelTTL:    cfg.ChannelTTL,
		renewalMargin: cfg.RenewalMargin,
		locks:         locker.New(),
	}

	coalescer := NewCoalescer(
		ctx,
		logger,
		clk,
		cfg.CoalescingWindow,
		cfg.HardCeiling,
		func(ctx context.Context, calendarID string, _ string) error {
			_, err := reconcile.Reconcile(ctx, calendarID)
			return err
		},
	)

	return &Services{
		Auth:          authService,
		Reconcile:     reconcile,
		Subscriptions: subscriptions,
		Coalescer:     coalescer,
		Notifications: &NotificationService{
			logger:        logger,
			calendars:     calendars,
			token:         cfg.WebhookToken,
			subscriptions: subscriptions,
			coalescer:     coalescer,
		},
		Feed: &FeedService{
			clock:     clk,
			client:    calendarClient,
			policy:    policy,
			calendars: calendars,
			token:     cfg.FeedToken,
			title:     cfg.PlaceholderTitle,
			lookBack:  cfg.LookBack,
			lookAhead: cfg.LookAhead,
		},
		Status: &StatusService{
			markers:   repositories.Markers,
			calendars: calendars,
			coalescer: coalescer,
		},
		WebSocket: NewWebSocketService(logger, []string{cfg.WebURL}),
	}
}
