package services

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SharedPurger removes shared templates older than a retention window.
type SharedPurger interface {
	PurgeShared(ctx context.Context, retention time.Duration) (int, error)
}

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// JanitorConfig controls when and how aggressively shared templates expire.
type JanitorConfig struct {
	// Schedule is a cron spec; descriptors such as "@every 1h" are accepted.
	Schedule  string
	Retention time.Duration
	Timeout   time.Duration
}

// ShareJanitor periodically expires old entries from the shared template namespace.
type ShareJanitor struct {
	purger  SharedPurger
	monitor ConnectionHealth
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     JanitorConfig

	mu      sync.Mutex
	lastRun time.Time
	removed int
}

func NewShareJanitor(purger SharedPurger, monitor ConnectionHealth, logger *zap.Logger, cfg JanitorConfig) (*ShareJanitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &ShareJanitor{
		purger:  purger,
		monitor: monitor,
		logger:  logger.Named("share_janitor"),
		cfg:     cfg,
		cron:    cron.New(),
	}

	if _, err := j.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Error("shared template sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}
	return j, nil
}

// Start launches the cron scheduler.
func (j *ShareJanitor) Start() {
	if j == nil || j.cron == nil {
		return
	}
	j.cron.Start()
	j.logger.Info("share janitor started",
		zap.String("schedule", j.cfg.Schedule),
		zap.Duration("retention", j.cfg.Retention))
}

// Stop waits for a running sweep or for ctx, whichever ends first.
func (j *ShareJanitor) Stop(ctx context.Context) {
	if j == nil || j.cron == nil {
		return
	}
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	j.logger.Info("share janitor stopped")
}

// Sweep purges expired shared templates once. It is skipped while the store is offline.
func (j *ShareJanitor) Sweep(ctx context.Context) (int, error) {
	if j == nil || j.purger == nil {
		return 0, nil
	}
	if j.monitor != nil && !j.monitor.IsOnline() {
		j.logger.Debug("skipping shared template sweep (offline)")
		return 0, nil
	}

	removed, err := j.purger.PurgeShared(ctx, j.cfg.Retention)
	if err != nil {
		return 0, err
	}

	j.mu.Lock()
	j.lastRun = time.Now()
	j.removed += removed
	j.mu.Unlock()

	if removed > 0 {
		j.logger.Info("expired shared templates removed", zap.Int("removed", removed))
	}
	return removed, nil
}

// Stats returns the time of the last completed sweep and the total removed so far.
func (j *ShareJanitor) Stats() (time.Time, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun, j.removed
}
