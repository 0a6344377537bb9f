package scheduler

import (
	"context"
	"time"

	"github.com/overlaylabs/copresence/internal/logger"
	"github.com/overlaylabs/copresence/internal/registry"
	"github.com/overlaylabs/copresence/internal/tracking"
	redisstore "github.com/overlaylabs/copresence/internal/store/redis"
)

// DefaultSweepInterval is how often the session sweep runs.
const DefaultSweepInterval = 1 * time.Hour

// SessionSweeper periodically reconciles the session registry: sessions that
// were explicitly left, went silent past the inactivity window, or fail
// clock-skew checks are removed, their cursor state discarded and their
// persisted rows marked inactive (best effort).
type SessionSweeper struct {
	registry *registry.Registry
	engine   *tracking.Engine
	store    *redisstore.Store
	logger   logger.Logger
	interval time.Duration
	trigger  chan struct{}
	stopCh   chan struct{}
	now      func() time.Time
}

// NewSessionSweeper creates a session sweeper. The trigger channel allows
// manual sweeps (e.g. from the admin endpoint); it may be nil.
func NewSessionSweeper(
	reg *registry.Registry,
	engine *tracking.Engine,
	store *redisstore.Store,
	log logger.Logger,
	interval time.Duration,
	trigger chan struct{},
) *SessionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &SessionSweeper{
		registry: reg,
		engine:   engine,
		store:    store,
		logger:   log,
		interval: interval,
		trigger:  trigger,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the periodic sweep
func (sw *SessionSweeper) Start(ctx context.Context) error {
	// Run immediately on start
	if err := sw.Sweep(ctx); err != nil {
		sw.logger.Warn("initial session sweep failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(sw.interval)
	trigger := sw.triggerCh()
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sw.Sweep(ctx); err != nil {
					sw.logger.Error("session sweep failed",
						logger.Error(err))
				}
			case <-trigger:
				sw.logger.Info("manual session sweep triggered")
				if err := sw.Sweep(ctx); err != nil {
					sw.logger.Error("manual session sweep failed",
						logger.Error(err))
				}
			case <-sw.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the sweeper
func (sw *SessionSweeper) Stop() {
	close(sw.stopCh)
}

// Sweep removes invalid sessions and reconciles tracking and store state.
func (sw *SessionSweeper) Sweep(ctx context.Context) error {
	removed := sw.registry.Sweep(sw.now())
	if len(removed) == 0 {
		sw.logger.Debug("no sessions to sweep")
		return nil
	}

	for _, s := range removed {
		sw.engine.Cleanup(s.RoomID, s.UserID)

		// Mark the persisted row inactive (best effort)
		if sw.store != nil {
			if err := sw.store.MarkSessionInactive(ctx, s.RoomID, s.UserID, s.LastActivityAt); err != nil {
				sw.logger.Warn("failed to mark session inactive in store",
					logger.String("room_id", s.RoomID),
					logger.String("user_id", s.UserID),
					logger.Error(err))
			}
		}

		sw.logger.Info("swept stale session",
			logger.String("room_id", s.RoomID),
			logger.String("user_id", s.UserID))
	}

	sw.logger.Info("session sweep completed",
		logger.Int("sessions_removed", len(removed)))

	return nil
}

// triggerCh returns the manual trigger channel, or a never-firing one.
func (sw *SessionSweeper) triggerCh() <-chan struct{} {
	if sw.trigger != nil {
		return sw.trigger
	}
	return make(chan struct{})
}
