// Package layout persists the designer page layout. Bursts of layout changes are merged
// into a single write after a quiet period.
package layout

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
)

// Store is the remote layout persistence.
type Store interface {
	GetLayout(ctx context.Context, guildID, page string) (domain.Layout, error)
	SaveLayout(ctx context.Context, guildID, page string, items json.RawMessage) error
}

// Timer is the part of *time.Timer the autosaver needs.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. time.AfterFunc satisfies it.
type Scheduler func(d time.Duration, f func()) Timer

func realScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options tunes an Autosaver.
type Options struct {
	Delay     time.Duration
	Timeout   time.Duration
	Scheduler Scheduler
	Bus       *eventbus.Bus
	Logger    *zap.Logger
}

// Autosaver debounces layout writes for one guild page.
type Autosaver struct {
	store   Store
	guildID string
	page    string
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	timer   Timer
	pending json.RawMessage
	saves   int
	closed  bool
}

func NewAutosaver(store Store, guildID, page string, opts Options) *Autosaver {
	if opts.Delay <= 0 {
		opts.Delay = 800 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = realScheduler
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{
		store:   store,
		guildID: guildID,
		page:    page,
		opts:    opts,
		logger:  logger.Named("layout").With(zap.String("guild_id", guildID), zap.String("page", page)),
	}
}

// Load fetches the stored layout. A missing layout yields nil items.
func (a *Autosaver) Load(ctx context.Context) (json.RawMessage, error) {
	l, err := a.store.GetLayout(ctx, a.guildID, a.page)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return l.Items, nil
}

// Changed records the latest layout and restarts the quiet period.
func (a *Autosaver) Changed(items json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.pending = append(json.RawMessage(nil), items...)
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = a.opts.Scheduler(a.opts.Delay, a.fire)
}

func (a *Autosaver) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.Timeout)
	defer cancel()
	_ = a.Flush(ctx)
}

// Flush writes the pending layout now, if any.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	items := a.pending
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	if items == nil {
		return nil
	}
	if err := a.store.SaveLayout(ctx, a.guildID, a.page, items); err != nil {
		a.logger.Warn("layout save failed", zap.Error(err))
		if a.opts.Bus != nil {
			eventbus.Emit(a.opts.Bus, events.Notification, events.NotificationEvent{
				Level:   events.LevelWarning,
				Message: "Layout could not be saved",
			})
		}
		return err
	}

	a.mu.Lock()
	a.saves++
	a.mu.Unlock()
	a.logger.Debug("layout saved", zap.Int("bytes", len(items)))
	return nil
}

// Saves counts successful writes.
func (a *Autosaver) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}

// Close flushes the pending layout and stops accepting changes.
func (a *Autosaver) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return a.Flush(ctx)
}
