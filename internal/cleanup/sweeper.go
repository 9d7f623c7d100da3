package cleanup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/internal/observability"
)

// ActivityWriter is the activity store as seen by the sweeper.
type ActivityWriter interface {
	Update(ctx context.Context, fn func(current []domain.Activity) ([]domain.Activity, bool)) error
	Subscribe(fn func()) func()
}

// SessionReader is the session registry as seen by the sweeper.
type SessionReader interface {
	Snapshot() []domain.Session
	Loaded() bool
	Subscribe(fn func()) func()
}

// Sweeper re-runs Sweep whenever either collection changes and writes the result back only
// when it differs from the current collection.
type Sweeper struct {
	activities ActivityWriter
	sessions   SessionReader
	timeout    time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	dirty   bool
	unsubs  []func()
}

func NewSweeper(activities ActivityWriter, sessions SessionReader, timeout time.Duration, logger *zap.Logger) *Sweeper {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		activities: activities,
		sessions:   sessions,
		timeout:    timeout,
		logger:     logger,
	}
}

// Start subscribes the sweeper to both collections.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.unsubs) > 0 {
		return
	}
	s.unsubs = append(s.unsubs,
		s.activities.Subscribe(s.Trigger),
		s.sessions.Subscribe(s.Trigger),
	)
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Trigger runs a sweep. Triggers arriving while a sweep is in flight, including the change
// notification caused by the sweep's own write, coalesce into one more pass. A failed pass
// ends the loop; the next change notification starts a new one.
func (s *Sweeper) Trigger() {
	s.mu.Lock()
	if s.running {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		_, err := s.Run(ctx)
		cancel()

		s.mu.Lock()
		// a failed write reloads the store, which would retrigger us against an unreachable backend
		if err != nil || !s.dirty {
			s.dirty = false
			s.running = false
			s.mu.Unlock()
			return
		}
		s.dirty = false
		s.mu.Unlock()
	}
}

// Run performs one sweep against the latest snapshots. It does nothing until the session
// registry has finished its initial load, since a partial registry would make live sessions
// look like orphans.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	if !s.sessions.Loaded() {
		observability.RecordSweep("skipped", 0, 0)
		return Report{}, nil
	}
	sessions := s.sessions.Snapshot()

	var report Report
	err := s.activities.Update(ctx, func(current []domain.Activity) ([]domain.Activity, bool) {
		next, r := Sweep(current, sessions)
		report = r
		return next, !Equal(current, next)
	})
	switch {
	case err != nil:
		observability.RecordSweep("failed", report.Patched, report.Removed)
		s.logger.Warn("cleanup write-back failed", zap.Error(err))
	case report.Changed():
		observability.RecordSweep("rewritten", report.Patched, report.Removed)
		s.logger.Info("cleanup rewrote activities",
			zap.Int("patched", report.Patched),
			zap.Int("removed", report.Removed))
	default:
		observability.RecordSweep("clean", 0, 0)
	}
	return report, err
}
