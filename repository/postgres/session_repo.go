package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/repository"
)

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository returns a Postgres-backed implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) repository.SessionRepository {
	return &sessionRepository{pool: pool}
}

func (r *sessionRepository) List(ctx context.Context, userID string) ([]domain.Session, error) {
	const query = `
	SELECT id, user_id, number, status, session_date, last_updated, planned_date, questions, metadata
	FROM sessions
	WHERE user_id = $1
	ORDER BY number ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

func (r *sessionRepository) Upsert(ctx context.Context, userID string, session *domain.Session) error {
	if session == nil || session.ID == "" || userID == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO sessions (id, user_id, number, status, session_date, last_updated, planned_date, questions, metadata)
	VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7, $8, $9)
	ON CONFLICT (user_id, id) DO UPDATE
	SET number = EXCLUDED.number,
		status = EXCLUDED.status,
		session_date = EXCLUDED.session_date,
		last_updated = EXCLUDED.last_updated,
		planned_date = EXCLUDED.planned_date,
		questions = EXCLUDED.questions,
		metadata = EXCLUDED.metadata
	RETURNING last_updated
	`

	questions, err := json.Marshal(session.Questions)
	if err != nil {
		return err
	}
	metadata, err := metadataColumn(session.Metadata)
	if err != nil {
		return err
	}

	var lastUpdated time.Time
	if err := r.pool.QueryRow(ctx, query,
		session.ID,
		userID,
		session.Number,
		string(session.Status),
		session.Date,
		timestampOrDefault(session.LastUpdated),
		session.PlannedDate,
		questions,
		metadata,
	).Scan(&lastUpdated); err != nil {
		return err
	}

	session.LastUpdated = lastUpdated
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, userID string, id string) error {
	const query = `DELETE FROM sessions WHERE user_id = $1 AND id = $2`
	tag, err := r.pool.Exec(ctx, query, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func scanSession(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Session, error) {
	var session domain.Session
	var (
		status    string
		questions []byte
		metadata  []byte
	)

	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Number,
		&status,
		&session.Date,
		&session.LastUpdated,
		&session.PlannedDate,
		&questions,
		&metadata,
	); err != nil {
		return nil, err
	}

	session.Status = domain.SessionStatus(status)
	if err := decodeColumn(questions, &session.Questions); err != nil {
		return nil, err
	}
	if err := decodeColumn(metadata, &session.Metadata); err != nil {
		return nil, err
	}

	return &session, nil
}
