package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/models"
)

type RunFunc func(ctx context.Context, calendarID string, reason string) error

type debounceState struct {
	firstNotificationAt time.Time
	timer               clockwork.Timer
	generation          uint64
	notifications       int
	lastReason          string
}

// Coalescer absorbs notification bursts per calendar and schedules exactly
// one run once the burst goes quiet, or once the hard ceiling since the first
// notification is reached.
type Coalescer struct {
	ctx     context.Context
	logger  *slog.Logger
	clock   clockwork.Clock
	window  time.Duration
	ceiling time.Duration
	run     RunFunc

	mu      sync.Mutex
	states  map[string]*debounceState
	stopped bool
	running sync.WaitGroup
}

func NewCoalescer(
	ctx context.Context,
	logger *slog.Logger,
	clk clockwork.Clock,
	window time.Duration,
	ceiling time.Duration,
	run RunFunc,
) *Coalescer {
	if ceiling < window {
		ceiling = window
	}

	return &Coalescer{
		ctx:     ctx,
		logger:  logger,
		clock:   clk,
		window:  window,
		ceiling: ceiling,
		run:     run,
		mu:      sync.Mutex{},
		states:  map[string]*debounceState{},
		stopped: false,
		running: sync.WaitGroup{},
	}
}

func (c *Coalescer) Notify(key string, reason string) {
	c.mu.Lock()

	if c.stopped {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()

	state, ok := c.states[key]
	if !ok {
		//nolint:exhaustruct //timer is set below
		state = &debounceState{firstNotificationAt: now}
		c.states[key] = state
	} else if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}

	state.generation++
	state.notifications++
	state.lastReason = reason
	generation := state.generation

	elapsed := now.Sub(state.firstNotificationAt)
	if elapsed >= c.ceiling {
		c.mu.Unlock()

		c.logger.Debug(
			"hard ceiling reached, firing now",
			slog.String("calendar", key),
			slog.String("reason", reason),
		)
		go c.fire(key, generation)
		return
	}

	delay := min(c.window, c.ceiling-elapsed)
	state.timer = c.clock.AfterFunc(delay, func() {
		c.fire(key, generation)
	})

	c.mu.Unlock()

	c.logger.Debug(
		"notification coalesced",
		slog.String("calendar", key),
		slog.String("reason", reason),
		slog.Duration("delay", delay),
	)
}

func (c *Coalescer) fire(key string, generation uint64) {
	c.mu.Lock()

	state, ok := c.states[key]
	if c.stopped || !ok || state.generation != generation {
		c.mu.Unlock()
		return
	}

	// the debounce state ends the moment the run starts
	delete(c.states, key)
	reason := state.lastReason
	notifications := state.notifications
	c.running.Add(1)

	c.mu.Unlock()
	defer c.running.Done()

	c.logger.Info(
		"starting coalesced reconciliation",
		slog.String("calendar", key),
		slog.String("reason", reason),
		slog.Int("notifications", notifications),
	)

	err := c.run(context.WithoutCancel(c.ctx), key, reason)
	if err != nil {
		c.logger.Error(
			"coalesced reconciliation failed",
			slog.String("calendar", key),
			logging.ErrAttr(err),
		)
	}
}

// Pending lists the calendars with a scheduled but not yet started run.
func (c *Coalescer) Pending() []models.PendingSync {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]models.PendingSync, 0, len(c.states))
	for key, state := range c.states {
		pending = append(pending, models.PendingSync{
			CalendarID:          key,
			FirstNotificationAt: state.firstNotificationAt,
			Notifications:       state.notifications,
			LastReason:          state.lastReason,
		})
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CalendarID < pending[j].CalendarID
	})

	return pending
}

// Stop cancels every pending timer and waits for runs already in flight.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	for key, state := range c.states {
		if state.timer != nil {
			state.timer.Stop()
		}
		delete(c.states, key)
	}
	c.mu.Unlock()

	c.running.Wait()
}
