package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/internal/observability"
	"github.com/fastygo/studyplanner/repository"
)

// SessionRegistry owns one user's sessions and their lifecycle.
type SessionRegistry struct {
	userID string
	repo   repository.SessionRepository
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	items  []domain.Session
	index  map[string]int
	hidden map[string]int
	loaded bool

	observers observers
}

func NewSessionRegistry(userID string, repo repository.SessionRepository, now func() time.Time, logger *zap.Logger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &SessionRegistry{
		userID: userID,
		repo:   repo,
		now:    now,
		logger: logger.With(zap.String("user_id", userID), zap.String("collection", "sessions")),
		index:  make(map[string]int),
		hidden: make(map[string]int),
	}
}

// Load replaces the local registry with the persisted sessions and marks it loaded.
func (r *SessionRegistry) Load(ctx context.Context) error {
	sessions, err := r.repo.List(ctx, r.userID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	visible := make([]domain.Session, 0, len(sessions))
	for _, session := range sessions {
		if _, ok := r.hidden[session.ID]; ok {
			continue
		}
		visible = append(visible, session.Clone())
	}
	r.setLocked(visible)
	r.loaded = true
	r.mu.Unlock()

	r.observers.notify()
	return nil
}

// Loaded reports whether the initial load has completed.
func (r *SessionRegistry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

func (r *SessionRegistry) Snapshot() []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.CloneSessions(r.items)
}

func (r *SessionRegistry) Get(id string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.index[id]
	if !ok {
		return domain.Session{}, false
	}
	return r.items[idx].Clone(), true
}

func (r *SessionRegistry) GetByNumber(number int) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, session := range r.items {
		if session.Number == number {
			return session.Clone(), true
		}
	}
	return domain.Session{}, false
}

// Upsert stores session locally, then persists it. New sessions get an id and the next
// free number.
func (r *SessionRegistry) Upsert(ctx context.Context, session domain.Session) (domain.Session, error) {
	if session.Status != domain.SessionInProgress && session.Status != domain.SessionCompleted {
		return domain.Session{}, domain.NewError(domain.ErrCodeInvalid, "invalid session status")
	}

	r.mu.Lock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Number <= 0 {
		if existing, ok := r.index[session.ID]; ok {
			session.Number = r.items[existing].Number
		} else {
			session.Number = r.nextNumberLocked()
		}
	}
	session.UserID = r.userID
	session.LastUpdated = r.now()

	next := domain.CloneSessions(r.items)
	if idx, ok := r.index[session.ID]; ok {
		next[idx] = session.Clone()
	} else {
		next = append(next, session.Clone())
	}
	r.setLocked(next)
	r.mu.Unlock()
	r.observers.notify()

	started := time.Now()
	err := r.repo.Upsert(ctx, r.userID, &session)
	observability.RecordPersist("sessions", time.Since(started).Seconds(), err)
	if err != nil {
		return session, r.resync(ctx, err)
	}
	return session, nil
}

// Hide removes the session locally and keeps it out of reloads until Restore or Delete.
// Its position is remembered for Restore.
func (r *SessionRegistry) Hide(id string) (domain.Session, bool) {
	r.mu.Lock()
	idx, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return domain.Session{}, false
	}
	removed := r.items[idx].Clone()
	next := make([]domain.Session, 0, len(r.items)-1)
	next = append(next, r.items[:idx]...)
	next = append(next, r.items[idx+1:]...)
	r.hidden[id] = idx
	r.setLocked(next)
	r.mu.Unlock()

	r.observers.notify()
	return removed, true
}

// Restore puts a hidden session back at its former position without touching the
// repository.
func (r *SessionRegistry) Restore(session domain.Session) {
	r.mu.Lock()
	position, wasHidden := r.hidden[session.ID]
	delete(r.hidden, session.ID)
	if _, ok := r.index[session.ID]; ok {
		r.mu.Unlock()
		return
	}
	if !wasHidden || position > len(r.items) {
		position = len(r.items)
	}
	next := make([]domain.Session, 0, len(r.items)+1)
	next = append(next, domain.CloneSessions(r.items[:position])...)
	next = append(next, session.Clone())
	next = append(next, domain.CloneSessions(r.items[position:])...)
	r.setLocked(next)
	r.mu.Unlock()

	r.observers.notify()
}

// Delete removes the session locally and from the repository.
func (r *SessionRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.hidden, id)
	if idx, ok := r.index[id]; ok {
		next := make([]domain.Session, 0, len(r.items)-1)
		next = append(next, r.items[:idx]...)
		next = append(next, r.items[idx+1:]...)
		r.setLocked(next)
	}
	r.mu.Unlock()
	r.observers.notify()

	started := time.Now()
	err := r.repo.Delete(ctx, r.userID, id)
	observability.RecordPersist("sessions", time.Since(started).Seconds(), err)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return err
		}
		return r.resync(ctx, err)
	}
	return nil
}

func (r *SessionRegistry) Subscribe(fn func()) func() {
	return r.observers.subscribe(fn)
}

func (r *SessionRegistry) resync(ctx context.Context, cause error) error {
	r.logger.Warn("session write rejected, resynchronizing", zap.Error(cause))
	if err := r.Load(ctx); err != nil {
		r.logger.Error("session resync failed", zap.Error(err))
	}
	return notPersisted(cause)
}

func (r *SessionRegistry) nextNumberLocked() int {
	highest := 0
	for _, session := range r.items {
		if session.Number > highest {
			highest = session.Number
		}
	}
	return highest + 1
}

func (r *SessionRegistry) setLocked(items []domain.Session) {
	index := make(map[string]int, len(items))
	for i := range items {
		index[items[i].ID] = i
	}
	r.items = items
	r.index = index
}
