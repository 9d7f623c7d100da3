package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/internal/observability"
	"github.com/fastygo/studyplanner/repository"
)

// ActivityStore is the in-memory arena of one user's activities. Every mutation computes a
// complete next collection from the latest snapshot; the repository only ever sees whole
// collections. Hidden activities are invisible to readers but stay in the persisted
// collection until they are removed.
type ActivityStore struct {
	userID string
	repo   repository.ActivityRepository
	logger *zap.Logger

	mu      sync.RWMutex
	items   []domain.Activity
	index   map[string]int
	hidden  map[string]struct{}
	version uint64

	persistMu sync.Mutex
	observers observers
}

func NewActivityStore(userID string, repo repository.ActivityRepository, logger *zap.Logger) *ActivityStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityStore{
		userID: userID,
		repo:   repo,
		logger: logger.With(zap.String("user_id", userID), zap.String("collection", "activities")),
		index:  make(map[string]int),
		hidden: make(map[string]struct{}),
	}
}

// Load replaces the local collection with the persisted one. Hidden ids stay hidden.
func (s *ActivityStore) Load(ctx context.Context) error {
	items, err := s.repo.List(ctx, s.userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.setLocked(domain.CloneActivities(items))
	s.mu.Unlock()

	s.observers.notify()
	return nil
}

// Snapshot returns the visible activities.
func (s *ActivityStore) Snapshot() []domain.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleLocked()
}

func (s *ActivityStore) Get(id string) (domain.Activity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[id]
	if !ok {
		return domain.Activity{}, false
	}
	if _, hidden := s.hidden[id]; hidden {
		return domain.Activity{}, false
	}
	return s.items[idx].Clone(), true
}

// Contains reports whether id is in the collection, hidden or not.
func (s *ActivityStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// Version increases with every local change.
func (s *ActivityStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Apply changes the local collection without persisting it. fn receives a copy of the latest
// visible snapshot and reports whether it produced a different collection. Hidden activities
// keep their place next to the visible neighbour that preceded them.
func (s *ActivityStore) Apply(fn func(current []domain.Activity) ([]domain.Activity, bool)) bool {
	s.mu.Lock()
	next, changed := fn(s.visibleLocked())
	if !changed {
		s.mu.Unlock()
		return false
	}
	s.setLocked(mergeHidden(s.items, next, s.hidden))
	s.mu.Unlock()

	s.observers.notify()
	return true
}

// Update applies fn locally and then persists the latest collection. When persistence fails
// the store reloads from the repository and the error wraps domain.ErrNotPersisted.
func (s *ActivityStore) Update(ctx context.Context, fn func(current []domain.Activity) ([]domain.Activity, bool)) error {
	if !s.Apply(fn) {
		return nil
	}
	return s.Persist(ctx)
}

// Persist writes the latest collection, hidden activities included. Concurrent callers are
// serialized and each writes the collection current at the time it acquires the write slot,
// so the last write always carries the newest local state.
func (s *ActivityStore) Persist(ctx context.Context) error {
	err := s.write(ctx)
	if err == nil {
		return nil
	}

	s.logger.Warn("activity write rejected, resynchronizing", zap.Error(err))
	if loadErr := s.Load(ctx); loadErr != nil {
		s.logger.Error("activity resync failed", zap.Error(loadErr))
	}
	return notPersisted(err)
}

func (s *ActivityStore) write(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	collection := domain.CloneActivities(s.items)
	s.mu.RUnlock()

	started := time.Now()
	err := s.repo.Replace(ctx, s.userID, collection)
	observability.RecordPersist("activities", time.Since(started).Seconds(), err)
	return err
}

// Hide makes id invisible to readers without removing it from the persisted collection. It
// returns the hidden activity and its former position in the visible snapshot.
func (s *ActivityStore) Hide(id string) (domain.Activity, int, bool) {
	s.mu.Lock()
	idx, ok := s.index[id]
	if _, hidden := s.hidden[id]; !ok || hidden {
		s.mu.Unlock()
		return domain.Activity{}, -1, false
	}
	position := 0
	for _, item := range s.items[:idx] {
		if _, hidden := s.hidden[item.ID]; !hidden {
			position++
		}
	}
	hiddenActivity := s.items[idx].Clone()
	s.hidden[id] = struct{}{}
	s.version++
	s.mu.Unlock()

	s.observers.notify()
	return hiddenActivity, position, true
}

// Restore makes a hidden activity visible again. When a reload dropped it from the
// collection it is inserted back at position and persisted.
func (s *ActivityStore) Restore(ctx context.Context, activity domain.Activity, position int) error {
	s.mu.Lock()
	delete(s.hidden, activity.ID)
	_, present := s.index[activity.ID]
	s.version++
	s.mu.Unlock()

	if present {
		s.observers.notify()
		return nil
	}
	return s.Update(ctx, func(current []domain.Activity) ([]domain.Activity, bool) {
		return Insert(current, activity, position), true
	})
}

// Remove drops id from the collection, hidden or not, and persists the result.
func (s *ActivityStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.hidden, id)
	if next, found := Without(s.items, id); found {
		s.setLocked(next)
	}
	s.mu.Unlock()

	s.observers.notify()
	return s.Persist(ctx)
}

func (s *ActivityStore) Subscribe(fn func()) func() {
	return s.observers.subscribe(fn)
}

func (s *ActivityStore) visibleLocked() []domain.Activity {
	out := make([]domain.Activity, 0, len(s.items))
	for _, item := range s.items {
		if _, hidden := s.hidden[item.ID]; hidden {
			continue
		}
		out = append(out, item.Clone())
	}
	return out
}

func (s *ActivityStore) setLocked(items []domain.Activity) {
	index := make(map[string]int, len(items))
	for i := range items {
		index[items[i].ID] = i
	}
	s.items = items
	s.index = index
	s.version++
}

// mergeHidden rebuilds the full collection from the next visible one. Each hidden activity
// of previous follows the nearest preceding visible activity that survived into visible.
func mergeHidden(previous, visible []domain.Activity, hidden map[string]struct{}) []domain.Activity {
	if len(hidden) == 0 {
		return visible
	}
	kept := make(map[string]struct{}, len(visible))
	for _, item := range visible {
		kept[item.ID] = struct{}{}
	}

	following := make(map[string][]domain.Activity)
	anchor := ""
	for _, item := range previous {
		if _, ok := hidden[item.ID]; ok {
			if _, reintroduced := kept[item.ID]; !reintroduced {
				following[anchor] = append(following[anchor], item)
			}
			continue
		}
		if _, ok := kept[item.ID]; ok {
			anchor = item.ID
		}
	}

	out := make([]domain.Activity, 0, len(visible)+len(hidden))
	out = append(out, following[""]...)
	for _, item := range visible {
		out = append(out, item)
		out = append(out, following[item.ID]...)
	}
	return out
}

// Insert returns items with activity placed at position, clamped to the collection bounds.
func Insert(items []domain.Activity, activity domain.Activity, position int) []domain.Activity {
	if position < 0 || position > len(items) {
		position = len(items)
	}
	out := make([]domain.Activity, 0, len(items)+1)
	out = append(out, items[:position]...)
	out = append(out, activity)
	return append(out, items[position:]...)
}

// Without returns items minus the activity with id and whether it was present.
func Without(items []domain.Activity, id string) ([]domain.Activity, bool) {
	out := make([]domain.Activity, 0, len(items))
	found := false
	for _, item := range items {
		if item.ID == id {
			found = true
			continue
		}
		out = append(out, item)
	}
	return out, found
}
