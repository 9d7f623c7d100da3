package redis

import (
	"context"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/repository"
)

type sessionRepository struct {
	primary repository.SessionRepository
	cache   cache
}

// NewSessionRepository wraps primary with a read-through Redis cache. Row-level writes
// invalidate the cached collection instead of patching it.
func NewSessionRepository(primary repository.SessionRepository, client *redislib.Client, ttl time.Duration, logger *zap.Logger) repository.SessionRepository {
	return &sessionRepository{
		primary: primary,
		cache:   newCache(client, "sessions:", ttl, logger),
	}
}

func (r *sessionRepository) List(ctx context.Context, userID string) ([]domain.Session, error) {
	var cached []domain.Session
	if r.cache.get(ctx, userID, &cached) {
		return cached, nil
	}
	sessions, err := r.primary.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.cache.set(ctx, userID, sessions)
	return sessions, nil
}

func (r *sessionRepository) Upsert(ctx context.Context, userID string, session *domain.Session) error {
	defer r.cache.invalidate(ctx, userID)
	return r.primary.Upsert(ctx, userID, session)
}

func (r *sessionRepository) Delete(ctx context.Context, userID string, id string) error {
	defer r.cache.invalidate(ctx, userID)
	return r.primary.Delete(ctx, userID, id)
}
