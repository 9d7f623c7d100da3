package repository

import (
	"context"

	"github.com/fastygo/studyplanner/domain"
)

// ActivityRepository persists a user's activity collection. Writes always replace the whole
// collection; there is no row-level update.
type ActivityRepository interface {
	List(ctx context.Context, userID string) ([]domain.Activity, error)
	Replace(ctx context.Context, userID string, activities []domain.Activity) error
}
