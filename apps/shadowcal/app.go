package shadowcal

import (
	"context"
	"fmt"
	"log/slog"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"github.com/xdoubleu/essentia/v2/pkg/threading"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/jobs"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/repositories"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/services"
	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
	"shadowcal.xdoubleu.com/internal/auth"
	"shadowcal.xdoubleu.com/internal/config"
)

type ShadowCal struct {
	logger       *slog.Logger
	ctx          context.Context
	ctxCancel    context.CancelFunc
	clock        clockwork.Clock
	Config       config.Config
	Calendars    config.Calendars
	clients      Clients
	store        repositories.KeyValueStore
	Services     *services.Services
	Repositories *repositories.Repositories
	jobQueue     *threading.JobQueue
	renewal      jobs.RenewalJob
	backstop     *jobs.Backstop
}

func New(
	ctx context.Context,
	authService auth.Service,
	logger *slog.Logger,
	cfg config.Config,
	store repositories.KeyValueStore,
	clk clockwork.Clock,
) (*ShadowCal, error) {
	calendars, err := config.LoadCalendars(cfg.CalendarsFile)
	if err != nil {
		return nil, err
	}

	calendarClient, err := gcal.New(ctx, logger, clk, cfg.GoogleCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("create calendar client: %w", err)
	}

	clients := Clients{
		Calendar: calendarClient,
	}

	return NewInner(authService, logger, cfg, calendars, store, clients, clk), nil
}

func NewInner(
	authService auth.Service,
	logger *slog.Logger,
	cfg config.Config,
	calendars config.Calendars,
	store repositories.KeyValueStore,
	clients Clients,
	clk clockwork.Clock,
) *ShadowCal {
	//nolint:mnd //no magic number
	jobQueue := threading.NewJobQueue(logger, 2, 100)

	//nolint:exhaustruct //other fields are set below
	app := &ShadowCal{
		logger:    logger,
		clock:     clk,
		Config:    cfg,
		Calendars: calendars,
		clients:   clients,
		store:     store,
		jobQueue:  jobQueue,
	}

	app.setContext()
	app.setServices(authService)

	return app
}

func (app *ShadowCal) setServices(authService auth.Service) {
	app.Repositories = repositories.New(app.store)
	app.Services = services.New(
		app.ctx,
		app.logger,
		app.Config,
		app.Calendars,
		app.clock,
		app.Repositories,
		app.clients.Calendar,
		authService,
	)

	app.renewal = jobs.NewRenewalJob(app.Services.Subscriptions, app.Config.RenewalInterval)
	app.backstop = jobs.NewBackstop(
		app.logger,
		app.clock,
		app.Services.Reconcile,
		app.Services.WebSocket.UpdateState,
	)

	topics := []string{app.renewal.ID(), app.backstop.ID()}
	if _, ok := app.store.(repositories.Purger); ok {
		topics = append(topics, jobs.PurgeJobID)
	}
	app.Services.WebSocket.RegisterTopics(topics)
}

// Start registers the periodic jobs, starts the backstop schedule and
// establishes channels for every source calendar in the background.
func (app *ShadowCal) Start() error {
	err := app.jobQueue.AddJob(app.renewal, app.Services.WebSocket.UpdateState)
	if err != nil {
		return err
	}

	if purger, ok := app.store.(repositories.Purger); ok {
		err = app.jobQueue.AddJob(
			jobs.NewPurgeJob(purger, app.Config.PurgeInterval),
			app.Services.WebSocket.UpdateState,
		)
		if err != nil {
			return err
		}
	}

	if err = app.backstop.Start(app.ctx, app.Config.BackstopCron); err != nil {
		return fmt.Errorf("start backstop: %w", err)
	}

	go func() {
		if errEnsure := app.Services.Subscriptions.EnsureAll(app.ctx); errEnsure != nil {
			app.logger.Error("initial subscription setup failed", logging.ErrAttr(errEnsure))
		}
	}()

	app.logger.Info(
		"shadowcal started",
		slog.Int("sources", len(app.Calendars.Sources)),
		slog.String("target", app.Calendars.Target),
	)

	return nil
}

// Shutdown drops pending debounced runs and stops every background trigger.
func (app *ShadowCal) Shutdown() {
	app.backstop.Stop()
	app.Services.Coalescer.Stop()
	app.jobQueue.Clear()
	app.ctxCancel()
}

func (app *ShadowCal) setContext() {
	ctx, cancel := context.WithCancel(context.Background())
	app.ctx = ctx
	app.ctxCancel = cancel
}

func (app *ShadowCal) GetName() string {
	return "shadowcal"
}
