package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/repository"
)

var activityColumns = []string{
	"user_id", "id", "position", "day", "type", "status", "session_id", "title", "number", "metadata", "created_at", "updated_at",
}

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository returns a Postgres-backed implementation of ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) repository.ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) List(ctx context.Context, userID string) ([]domain.Activity, error) {
	const query = `
	SELECT user_id, id, day, type, status, session_id, title, number, metadata, created_at, updated_at
	FROM activities
	WHERE user_id = $1
	ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *activity)
	}
	return activities, rows.Err()
}

// Replace swaps the stored collection for the provided one inside a single transaction.
func (r *activityRepository) Replace(ctx context.Context, userID string, activities []domain.Activity) error {
	if userID == "" {
		return domain.ErrInvalidPayload
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE user_id = $1`, userID); err != nil {
		return err
	}

	if len(activities) > 0 {
		now := time.Now().UTC()
		rows := make([][]interface{}, 0, len(activities))
		for i, activity := range activities {
			if activity.ID == "" {
				return domain.ErrInvalidPayload
			}
			created := activity.CreatedAt
			if created.IsZero() {
				created = now
			}
			updated := activity.UpdatedAt
			if updated.IsZero() {
				updated = now
			}
			metadata, err := metadataColumn(activity.Metadata)
			if err != nil {
				return err
			}
			rows = append(rows, []interface{}{
				userID,
				activity.ID,
				i,
				string(activity.Date),
				string(activity.Type),
				string(activity.Status),
				activity.SessionID,
				activity.Title,
				activity.Number,
				metadata,
				created,
				updated,
			})
		}
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"activities"}, activityColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return err
		}
		if int(copied) != len(rows) {
			return fmt.Errorf("activities copy: wrote %d of %d rows", copied, len(rows))
		}
	}

	return tx.Commit(ctx)
}

func scanActivity(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Activity, error) {
	var activity domain.Activity
	var (
		day      string
		kind     string
		status   string
		metadata []byte
	)

	if err := row.Scan(
		&activity.UserID,
		&activity.ID,
		&day,
		&kind,
		&status,
		&activity.SessionID,
		&activity.Title,
		&activity.Number,
		&metadata,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	); err != nil {
		return nil, err
	}

	activity.Date = domain.Date(day)
	activity.Type = domain.ActivityType(kind)
	activity.Status = domain.ActivityStatus(status)
	if err := decodeColumn(metadata, &activity.Metadata); err != nil {
		return nil, err
	}

	return &activity, nil
}
