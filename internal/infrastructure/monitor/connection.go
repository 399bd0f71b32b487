package monitor

import (
	"context"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LayoutCounter is satisfied by *layoutstore.Store.
type LayoutCounter interface {
	Size() (int, error)
}

// Deps lists what the monitor probes. A nil Database means the in-memory store, which is
// always available; a nil Redis means the active cache is disabled.
type Deps struct {
	Storage  string
	Database Pinger
	Redis    *redislib.Client
	Layouts  LayoutCounter
}

type Monitor struct {
	deps Deps

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(deps Deps, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		deps:     deps,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger.Named("monitor"),
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether every configured dependency answered the last probe.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.StorageOK && m.status.Layouts && (!m.status.CacheEnabled || m.status.Cache)
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh()
	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) refresh() {
	layoutsOK, layoutCount := m.checkLayouts()
	status := Status{
		Storage:      m.deps.Storage,
		StorageOK:    m.checkDatabase(),
		CacheEnabled: m.deps.Redis != nil,
		Cache:        m.checkRedis(),
		Layouts:      layoutsOK,
		LayoutCount:  layoutCount,
		LastCheck:    time.Now(),
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if previous.StorageOK && !status.StorageOK {
		m.logger.Warn("template store unreachable", zap.String("storage", status.Storage))
	}
}

func (m *Monitor) checkDatabase() bool {
	if m.deps.Database == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.deps.Database.Ping(ctx) == nil
}

func (m *Monitor) checkRedis() bool {
	if m.deps.Redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.deps.Redis.Ping(ctx).Err() == nil
}

func (m *Monitor) checkLayouts() (bool, int) {
	if m.deps.Layouts == nil {
		return false, 0
	}
	size, err := m.deps.Layouts.Size()
	if err != nil {
		m.logger.Warn("layout store check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
