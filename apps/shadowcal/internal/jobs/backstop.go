package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/services"
)

const BackstopID = "backstop"

var ErrBackstopRunning = errors.New("backstop already started")

type StateFunc func(id string, isRunning bool, lastRunTime *time.Time)

// Backstop reconciles every source calendar on a wall-clock schedule, so
// missed or dropped notifications are caught up eventually.
type Backstop struct {
	logger    *slog.Logger
	clock     clockwork.Clock
	reconcile *services.ReconcileService
	onState   StateFunc

	mu      sync.Mutex
	cron    *cron.Cron
	lastRun *time.Time
}

func NewBackstop(
	logger *slog.Logger,
	clk clockwork.Clock,
	reconcile *services.ReconcileService,
	onState StateFunc,
) *Backstop {
	return &Backstop{
		logger:    logger,
		clock:     clk,
		reconcile: reconcile,
		onState:   onState,
		mu:        sync.Mutex{},
		cron:      nil,
		lastRun:   nil,
	}
}

func (b *Backstop) ID() string {
	return BackstopID
}

// Start schedules the backstop with a standard five field cron spec.
func (b *Backstop) Start(ctx context.Context, spec string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cron != nil {
		return ErrBackstopRunning
	}

	scheduler := cron.New(
		cron.WithLogger(cron.PrintfLogger(
			slog.NewLogLogger(b.logger.Handler(), slog.LevelDebug),
		)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := scheduler.AddFunc(spec, func() {
		if errRun := b.Run(ctx); errRun != nil {
			b.logger.Error("backstop reconciliation failed", logging.ErrAttr(errRun))
		}
	})
	if err != nil {
		return err
	}

	scheduler.Start()
	b.cron = scheduler

	return nil
}

func (b *Backstop) Run(ctx context.Context) error {
	b.mu.Lock()
	lastRun := b.lastRun
	b.mu.Unlock()

	b.onState(BackstopID, true, lastRun)

	results, err := b.reconcile.ReconcileAll(ctx)

	now := b.clock.Now()
	b.mu.Lock()
	b.lastRun = &now
	b.mu.Unlock()

	b.onState(BackstopID, false, &now)

	b.logger.Info(
		"backstop reconciliation finished",
		slog.Int("calendars", len(results)),
	)

	return err
}

// Stop halts the schedule and waits for a running reconciliation.
func (b *Backstop) Stop() {
	b.mu.Lock()
	scheduler := b.cron
	b.cron = nil
	b.mu.Unlock()

	if scheduler == nil {
		return
	}

	<-scheduler.Stop().Done()
}
