package redis

import (
	"context"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/repository"
)

type activityRepository struct {
	primary repository.ActivityRepository
	cache   cache
}

// NewActivityRepository wraps primary with a read-through Redis cache of the whole collection.
func NewActivityRepository(primary repository.ActivityRepository, client *redislib.Client, ttl time.Duration, logger *zap.Logger) repository.ActivityRepository {
	return &activityRepository{
		primary: primary,
		cache:   newCache(client, "activities:", ttl, logger),
	}
}

func (r *activityRepository) List(ctx context.Context, userID string) ([]domain.Activity, error) {
	var cached []domain.Activity
	if r.cache.get(ctx, userID, &cached) {
		return cached, nil
	}
	activities, err := r.primary.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.cache.set(ctx, userID, activities)
	return activities, nil
}

func (r *activityRepository) Replace(ctx context.Context, userID string, activities []domain.Activity) error {
	if err := r.primary.Replace(ctx, userID, activities); err != nil {
		r.cache.invalidate(ctx, userID)
		return err
	}
	r.cache.set(ctx, userID, activities)
	return nil
}
