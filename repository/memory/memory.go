// Package memory provides in-process repositories for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/repository"
)

// Store keeps both collections per user and can be told to reject writes.
type Store struct {
	mu         sync.RWMutex
	activities map[string][]domain.Activity
	sessions   map[string]map[string]domain.Session
	writeErr   error
	replaces   int
}

func NewStore() *Store {
	return &Store{
		activities: make(map[string][]domain.Activity),
		sessions:   make(map[string]map[string]domain.Session),
	}
}

// FailWrites makes every subsequent write return err. Pass nil to recover.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Replaces counts successful activity collection replacements.
func (s *Store) Replaces() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replaces
}

// SeedActivities stores activities without going through Replace.
func (s *Store) SeedActivities(userID string, activities []domain.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[userID] = domain.CloneActivities(activities)
}

// SeedSessions stores sessions without going through Upsert.
func (s *Store) SeedSessions(userID string, sessions ...domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.sessionBucket(userID)
	for _, session := range sessions {
		bucket[session.ID] = session.Clone()
	}
}

func (s *Store) Activities() repository.ActivityRepository { return activityRepo{s} }

func (s *Store) Sessions() repository.SessionRepository { return sessionRepo{s} }

func (s *Store) sessionBucket(userID string) map[string]domain.Session {
	bucket, ok := s.sessions[userID]
	if !ok {
		bucket = make(map[string]domain.Session)
		s.sessions[userID] = bucket
	}
	return bucket
}

type activityRepo struct{ s *Store }

func (r activityRepo) List(ctx context.Context, userID string) ([]domain.Activity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return domain.CloneActivities(r.s.activities[userID]), nil
}

func (r activityRepo) Replace(ctx context.Context, userID string, activities []domain.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.writeErr != nil {
		return r.s.writeErr
	}
	r.s.activities[userID] = domain.CloneActivities(activities)
	r.s.replaces++
	return nil
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) List(ctx context.Context, userID string) ([]domain.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Session, 0, len(r.s.sessions[userID]))
	for _, session := range r.s.sessions[userID] {
		out = append(out, session.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r sessionRepo) Upsert(ctx context.Context, userID string, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.writeErr != nil {
		return r.s.writeErr
	}
	r.s.sessionBucket(userID)[session.ID] = session.Clone()
	return nil
}

func (r sessionRepo) Delete(ctx context.Context, userID string, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.writeErr != nil {
		return r.s.writeErr
	}
	bucket := r.s.sessionBucket(userID)
	if _, ok := bucket[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(bucket, id)
	return nil
}
