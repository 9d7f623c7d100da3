package repository

import (
	"context"

	"github.com/fastygo/studyplanner/domain"
)

type SessionRepository interface {
	List(ctx context.Context, userID string) ([]domain.Session, error)
	Upsert(ctx context.Context, userID string, session *domain.Session) error
	Delete(ctx context.Context, userID string, id string) error
}
