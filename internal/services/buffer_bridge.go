package services

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/internal/infrastructure/buffer"
	"github.com/fastygo/studyplanner/repository"
)

// BufferBridge exposes the primary repositories with offline buffering: writes that cannot
// reach primary storage land in the buffer, and reads overlay whatever is still waiting
// there so a reload never shows state older than what the user last saved.
type BufferBridge struct {
	processor *BufferProcessor
	logger    *zap.Logger
}

func NewBufferBridge(processor *BufferProcessor, logger *zap.Logger) *BufferBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BufferBridge{processor: processor, logger: logger}
}

func (b *BufferBridge) Activities() repository.ActivityRepository { return bridgedActivities{b} }

func (b *BufferBridge) Sessions() repository.SessionRepository { return bridgedSessions{b} }

type bridgedActivities struct{ b *BufferBridge }

func (r bridgedActivities) List(ctx context.Context, userID string) ([]domain.Activity, error) {
	bp := r.b.processor
	item, ok, err := bp.store.Lookup(buffer.ActivitiesKey(userID))
	if err != nil {
		r.b.logger.Warn("buffer lookup failed", zap.String("user_id", userID), zap.Error(err))
	}
	if ok {
		var activities []domain.Activity
		if err := json.Unmarshal(item.Data, &activities); err == nil {
			return activities, nil
		}
	}
	return bp.activities.List(ctx, userID)
}

func (r bridgedActivities) Replace(ctx context.Context, userID string, activities []domain.Activity) error {
	if activities == nil {
		activities = []domain.Activity{}
	}
	payload, err := json.Marshal(activities)
	if err != nil {
		return err
	}
	return r.b.processor.Submit(ctx, buffer.Item{
		ID:        buffer.ActivitiesKey(userID),
		UserID:    userID,
		Entity:    buffer.EntityActivities,
		Operation: buffer.OperationReplace,
		Data:      payload,
		Priority:  3,
	})
}

type bridgedSessions struct{ b *BufferBridge }

func (r bridgedSessions) List(ctx context.Context, userID string) ([]domain.Session, error) {
	bp := r.b.processor
	pending, err := bp.store.Find(buffer.SessionPrefix(userID))
	if err != nil {
		r.b.logger.Warn("buffer lookup failed", zap.String("user_id", userID), zap.Error(err))
	}

	sessions, err := bp.sessions.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return sessions, nil
	}

	byID := make(map[string]domain.Session, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
	}
	for _, item := range pending {
		var s domain.Session
		if err := json.Unmarshal(item.Data, &s); err != nil {
			continue
		}
		switch item.Operation {
		case buffer.OperationUpsert:
			byID[s.ID] = s
		case buffer.OperationDelete:
			delete(byID, s.ID)
		}
	}

	out := make([]domain.Session, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r bridgedSessions) Upsert(ctx context.Context, userID string, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	return r.submit(ctx, userID, buffer.OperationUpsert, session)
}

func (r bridgedSessions) Delete(ctx context.Context, userID string, id string) error {
	if id == "" {
		return domain.ErrInvalidPayload
	}
	return r.submit(ctx, userID, buffer.OperationDelete, &domain.Session{ID: id, UserID: userID})
}

func (r bridgedSessions) submit(ctx context.Context, userID, operation string, session *domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.b.processor.Submit(ctx, buffer.Item{
		ID:        buffer.SessionKey(userID, session.ID),
		UserID:    userID,
		Entity:    buffer.EntitySession,
		Operation: operation,
		Data:      payload,
		Priority:  3,
	})
}
