package planner

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/internal/undo"
)

const (
	KindActivityDelete = "activity.delete"
	KindSessionDelete  = "session.delete"
)

type removedActivity struct {
	activity domain.Activity
	position int
}

type sessionDeletion struct {
	session    domain.Session
	activities []removedActivity
}

// StageDeleteActivity hides the activity immediately and commits its removal once the undo
// window elapses.
func (p *Planner) StageDeleteActivity(ctx context.Context, id string) (undo.Pending, error) {
	activity, position, ok := p.activities.Hide(id)
	if !ok {
		return undo.Pending{}, domain.ErrActivityNotFound
	}

	pending, err := p.undo.Stage(undo.Entry{
		ID:       "activity:" + id,
		Kind:     KindActivityDelete,
		Snapshot: removedActivity{activity: activity, position: position},
		OnUndo: func(ctx context.Context, snapshot interface{}) error {
			return p.restoreActivities(ctx, snapshot.(removedActivity))
		},
		OnCommit: func(ctx context.Context, snapshot interface{}) error {
			return p.commitActivityRemoval(ctx, snapshot.(removedActivity).activity.ID)
		},
	})
	if err != nil {
		_ = p.restoreActivities(ctx, removedActivity{activity: activity, position: position})
		return undo.Pending{}, err
	}
	p.logger.Info("activity delete staged", zap.String("activity_id", id))
	return pending, nil
}

// StageDeleteSession hides the session and every activity referencing it. One undo entry
// covers the whole group.
func (p *Planner) StageDeleteSession(ctx context.Context, id string) (undo.Pending, error) {
	session, ok := p.sessions.Hide(id)
	if !ok {
		return undo.Pending{}, domain.ErrSessionNotFound
	}

	deletion := sessionDeletion{session: session}
	for _, activity := range p.activities.Snapshot() {
		if activity.SessionID != id {
			continue
		}
		if removed, position, ok := p.activities.Hide(activity.ID); ok {
			deletion.activities = append(deletion.activities, removedActivity{activity: removed, position: position})
		}
	}

	pending, err := p.undo.Stage(undo.Entry{
		ID:       "session:" + id,
		Kind:     KindSessionDelete,
		Snapshot: deletion,
		OnUndo: func(ctx context.Context, snapshot interface{}) error {
			d := snapshot.(sessionDeletion)
			p.sessions.Restore(d.session)
			return p.restoreActivities(ctx, d.activities...)
		},
		OnCommit: func(ctx context.Context, snapshot interface{}) error {
			d := snapshot.(sessionDeletion)
			var result error
			if err := p.sessions.Delete(ctx, d.session.ID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				result = err
			}
			for _, removed := range d.activities {
				if err := p.commitActivityRemoval(ctx, removed.activity.ID); err != nil {
					result = errors.Join(result, err)
				}
			}
			return result
		},
	})
	if err != nil {
		p.sessions.Restore(session)
		_ = p.restoreActivities(ctx, deletion.activities...)
		return undo.Pending{}, err
	}
	p.logger.Info("session delete staged",
		zap.String("session_id", id),
		zap.Int("activities", len(deletion.activities)))
	return pending, nil
}

// Undo reverses a staged delete.
func (p *Planner) Undo(ctx context.Context, id string) error {
	return p.undo.Undo(ctx, id)
}

// Commit finalizes a staged delete without waiting for the window to elapse.
func (p *Planner) Commit(ctx context.Context, id string) error {
	return p.undo.Commit(ctx, id)
}

// CurrentUndo is the entry the UI offers to undo.
func (p *Planner) CurrentUndo() (undo.Pending, bool) {
	return p.undo.Current()
}

func (p *Planner) PendingUndo() []undo.Pending {
	return p.undo.Pending()
}

// restoreActivities makes hidden activities visible again, last hidden first, so each one
// lands back at its former position.
func (p *Planner) restoreActivities(ctx context.Context, removed ...removedActivity) error {
	var result error
	for i := len(removed) - 1; i >= 0; i-- {
		r := removed[i]
		if err := p.activities.Restore(ctx, r.activity, r.position); err != nil {
			result = errors.Join(result, err)
		}
	}
	return result
}

func (p *Planner) commitActivityRemoval(ctx context.Context, id string) error {
	return p.activities.Remove(ctx, id)
}
