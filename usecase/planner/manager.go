package planner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/repository"
)

// ManagerConfig controls per-user planner lifetimes.
type ManagerConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Options       Options
}

type managed struct {
	planner  *Planner
	ready    chan struct{}
	err      error
	lastUsed time.Time
}

// Manager hands out one Planner per user, loading it on first use and evicting it after
// a period of inactivity. Evicted planners commit their pending undo entries first.
type Manager struct {
	activities repository.ActivityRepository
	sessions   repository.SessionRepository
	cfg        ManagerConfig
	logger     *zap.Logger
	cron       *cron.Cron

	mu       sync.Mutex
	planners map[string]*managed
}

func NewManager(activities repository.ActivityRepository, sessions repository.SessionRepository, cfg ManagerConfig) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Options.Now == nil {
		cfg.Options.Now = time.Now
	}
	if cfg.Options.Logger == nil {
		cfg.Options.Logger = zap.NewNop()
	}

	m := &Manager{
		activities: activities,
		sessions:   sessions,
		cfg:        cfg,
		logger:     cfg.Options.Logger,
		cron:       cron.New(cron.WithSeconds()),
		planners:   make(map[string]*managed),
	}
	schedule := "@every " + cfg.SweepInterval.String()
	if _, err := m.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.SweepInterval)
		defer cancel()
		m.EvictIdle(ctx)
	}); err != nil {
		m.logger.Error("failed to schedule planner eviction", zap.Error(err))
	}
	return m
}

// Start launches the eviction scheduler.
func (m *Manager) Start() {
	m.cron.Start()
	m.logger.Info("planner manager started", zap.Duration("idle_ttl", m.cfg.IdleTTL))
}

// For returns the loaded planner of userID.
func (m *Manager) For(ctx context.Context, userID string) (*Planner, error) {
	m.mu.Lock()
	entry, ok := m.planners[userID]
	if ok {
		entry.lastUsed = m.cfg.Options.Now()
		m.mu.Unlock()
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.planner, nil
	}

	entry = &managed{
		planner:  New(userID, m.activities, m.sessions, m.cfg.Options),
		ready:    make(chan struct{}),
		lastUsed: m.cfg.Options.Now(),
	}
	m.planners[userID] = entry
	m.mu.Unlock()

	entry.err = entry.planner.Load(ctx)
	close(entry.ready)
	if entry.err != nil {
		m.mu.Lock()
		if m.planners[userID] == entry {
			delete(m.planners, userID)
		}
		m.mu.Unlock()
		_ = entry.planner.Close(ctx)
		return nil, entry.err
	}
	return entry.planner, nil
}

// EvictIdle closes planners unused for longer than the idle TTL.
func (m *Manager) EvictIdle(ctx context.Context) int {
	cutoff := m.cfg.Options.Now().Add(-m.cfg.IdleTTL)
	var idle []*Planner

	m.mu.Lock()
	for userID, entry := range m.planners {
		select {
		case <-entry.ready:
		default:
			continue
		}
		if entry.lastUsed.Before(cutoff) {
			idle = append(idle, entry.planner)
			delete(m.planners, userID)
		}
	}
	m.mu.Unlock()

	for _, p := range idle {
		if err := p.Close(ctx); err != nil {
			m.logger.Error("planner close failed", zap.String("user_id", p.UserID()), zap.Error(err))
		}
	}
	if len(idle) > 0 {
		m.logger.Info("evicted idle planners", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Shutdown stops the scheduler and closes every planner.
func (m *Manager) Shutdown(ctx context.Context) error {
	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	m.mu.Lock()
	all := make([]*managed, 0, len(m.planners))
	for userID, entry := range m.planners {
		all = append(all, entry)
		delete(m.planners, userID)
	}
	m.mu.Unlock()

	var result error
	for _, entry := range all {
		<-entry.ready
		if entry.err != nil {
			continue
		}
		if err := entry.planner.Close(ctx); err != nil {
			result = errors.Join(result, err)
		}
	}
	m.logger.Info("planner manager stopped", zap.Int("planners", len(all)))
	return result
}

// Len reports how many planners are resident.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.planners)
}
