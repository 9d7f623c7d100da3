package planner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/repository/memory"
)

const day = domain.Date("2024-01-01")

var clock = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newPlanner(t *testing.T, mem *memory.Store, window time.Duration) *Planner {
	t.Helper()
	p := New("u1", mem.Activities(), mem.Sessions(), Options{
		UndoWindow: window,
		Now:        func() time.Time { return clock },
	})
	require.NoError(t, p.Load(context.Background()))
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestLoadRunsCleanupAfterRegistry(t *testing.T) {
	mem := memory.NewStore()
	mem.SeedActivities("u1", []domain.Activity{
		{ID: "legacy", Date: day, Type: domain.ActivityTypePlanned, Status: domain.StatusCompleted},
		{ID: "stale", Date: day, Type: domain.ActivityTypeSession, Status: domain.StatusCompleted},
	})
	mem.SeedSessions("u1", domain.Session{ID: "s1", Number: 1, Status: domain.SessionCompleted,
		LastUpdated: clock, Metadata: map[string]string{domain.MetaCalendarEventID: "legacy"}})

	p := newPlanner(t, mem, time.Hour)

	snapshot := p.activities.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "s1", snapshot[0].SessionID)

	persisted, err := mem.Activities().List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, snapshot, persisted)

	view := p.View(day)
	require.Len(t, view, 1)
	assert.Equal(t, "s1", view[0].Key())
}

func TestUndoRestoresExactCollection(t *testing.T) {
	mem := memory.NewStore()
	mem.SeedActivities("u1", []domain.Activity{
		{ID: "a0", Date: day, Type: domain.ActivityTypeCustom, Status: domain.StatusPlanned, Title: "Read"},
		{ID: "a1", Date: day, Type: domain.ActivityTypeSession, Status: domain.StatusPlanned, Title: "Quiz #3"},
		{ID: "a2", Date: "2024-01-02", Type: domain.ActivityTypeNote, Title: "Bring notes"},
	})
	p := newPlanner(t, mem, time.Hour)
	before := p.activities.Snapshot()

	pending, err := p.StageDeleteActivity(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, KindActivityDelete, pending.Kind)
	assert.Len(t, p.View(day), 1)

	require.NoError(t, p.Undo(context.Background(), pending.ID))

	assert.Equal(t, before, p.activities.Snapshot())
	assert.Len(t, p.View(day), 2)
	_, ok := p.CurrentUndo()
	assert.False(t, ok)
}

func TestStagedDeleteCommitsAfterWindow(t *testing.T) {
	mem := memory.NewStore()
	mem.SeedActivities("u1", []domain.Activity{
		{ID: "a1", Date: day, Type: domain.ActivityTypeSession, Status: domain.StatusPlanned, Title: "Quiz #3"},
	})
	p := newPlanner(t, mem, 30*time.Millisecond)

	pending, err := p.StageDeleteActivity(context.Background(), "a1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		persisted, _ := mem.Activities().List(context.Background(), "u1")
		return len(persisted) == 0
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, p.Undo(context.Background(), pending.ID), domain.ErrUndoNotFound)
	assert.Empty(t, p.activities.Snapshot())
}

func TestStagedDeleteStaysPersistedUntilCommit(t *testing.T) {
	mem := memory.NewStore()
	mem.SeedActivities("u1", []domain.Activity{
		{ID: "a0", Date: day, Type: domain.ActivityTypeCustom, Status: domain.StatusPlanned},
		{ID: "a1", Date: day, Type: domain.ActivityTypeCustom, Status: domain.StatusPlanned},
	})
	p := newPlanner(t, mem, time.Hour)
	ctx := context.Background()

	pending, err := p.StageDeleteActivity(ctx, "a1")
	require.NoError(t, err)
	created, err := p.Schedule(ctx, domain.Activity{Date: day, Type: domain.ActivityTypeCustom, Title: "Review"})
	require.NoError(t, err)

	persisted, err := mem.Activities().List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "a1", created.ID}, keys(persisted))
	assert.Equal(t, []string{"a0", created.ID}, keys(p.View(day)))
	_, err = p.Schedule(ctx, domain.Activity{ID: "a1", Date: day, Type: domain.ActivityTypeCustom})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict), "a staged id is still taken")

	mem.FailWrites(errors.New("offline"))
	require.NoError(t, p.Undo(ctx, pending.ID))
	mem.FailWrites(nil)

	assert.Equal(t, []string{"a0", "a1", created.ID}, keys(p.activities.Snapshot()))

	pending, err = p.StageDeleteActivity(ctx, "a1")
	require.NoError(t, err)
	require.NoError(t, p.Commit(ctx, pending.ID))
	persisted, err = mem.Activities().List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", created.ID}, keys(persisted))
}

func TestStageDeleteUnknownActivity(t *testing.T) {
	p := newPlanner(t, memory.NewStore(), time.Hour)
	_, err := p.StageDeleteActivity(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrActivityNotFound)
}

func TestScheduleValidatesAndPersists(t *testing.T) {
	mem := memory.NewStore()
	p := newPlanner(t, mem, time.Hour)
	ctx := context.Background()

	_, err := p.Schedule(ctx, domain.Activity{Type: domain.ActivityTypeCustom})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	_, err = p.Schedule(ctx, domain.Activity{Date: day, Type: "meeting"})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	created, err := p.Schedule(ctx, domain.Activity{Date: day, Type: domain.ActivityTypeSession, Title: "Quiz #2"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusPlanned, created.Status)
	assert.Equal(t, clock, created.CreatedAt)

	_, err = p.Schedule(ctx, domain.Activity{ID: created.ID, Date: day, Type: domain.ActivityTypeCustom})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))

	persisted, err := mem.Activities().List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestPromoteAndCompleteSession(t *testing.T) {
	mem := memory.NewStore()
	p := newPlanner(t, mem, time.Hour)
	ctx := context.Background()

	planned, err := p.Schedule(ctx, domain.Activity{Date: day, Type: domain.ActivityTypeSession, Title: "Quiz #7", Number: "7"})
	require.NoError(t, err)

	session, err := p.Promote(ctx, planned.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, session.Status)
	assert.Equal(t, 7, session.Number)
	assert.Equal(t, planned.ID, session.CalendarEventID())

	view := p.View(day)
	require.Len(t, view, 1)
	assert.Equal(t, session.ID, view[0].SessionID)
	assert.Equal(t, domain.StatusInProgress, view[0].Status)

	_, err = p.Promote(ctx, planned.ID)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))

	completed, err := p.CompleteSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, completed.Status)

	view = p.View(day)
	require.Len(t, view, 1)
	assert.Equal(t, domain.StatusCompleted, view[0].Status)

	byNumber, err := p.SessionByNumber(7)
	require.NoError(t, err)
	assert.Equal(t, session.ID, byNumber.ID)
}

func TestStageDeleteSessionCascadesAndUndoes(t *testing.T) {
	mem := memory.NewStore()
	mem.SeedActivities("u1", []domain.Activity{
		{ID: "c1", Date: day, Type: domain.ActivityTypeCustom, Status: domain.StatusPlanned},
		{ID: "a1", Date: day, Type: domain.ActivityTypeSession, Status: domain.StatusCompleted, SessionID: "s1"},
	})
	mem.SeedSessions("u1", domain.Session{ID: "s1", Number: 1, Status: domain.SessionCompleted, LastUpdated: clock})
	p := newPlanner(t, mem, time.Hour)
	ctx := context.Background()
	before := p.activities.Snapshot()

	pending, err := p.StageDeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, KindSessionDelete, pending.Kind)
	assert.Equal(t, []string{"c1"}, keys(p.View(day)))

	require.NoError(t, p.Undo(ctx, pending.ID))
	assert.Equal(t, before, p.activities.Snapshot())
	_, err = p.Session("s1")
	require.NoError(t, err)

	pending, err = p.StageDeleteSession(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, p.Commit(ctx, pending.ID))

	sessions, err := mem.Sessions().List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, sessions)
	persisted, err := mem.Activities().List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, keys(persisted))
}

func TestCloseCommitsPendingDeletes(t *testing.T) {
	mem := memory.NewStore()
	mem.SeedActivities("u1", []domain.Activity{
		{ID: "a1", Date: day, Type: domain.ActivityTypeCustom, Status: domain.StatusPlanned},
	})
	p := New("u1", mem.Activities(), mem.Sessions(), Options{UndoWindow: time.Hour})
	require.NoError(t, p.Load(context.Background()))

	_, err := p.StageDeleteActivity(context.Background(), "a1")
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))

	persisted, err := mem.Activities().List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestFailedCommitRestoresActivity(t *testing.T) {
	mem := memory.NewStore()
	mem.SeedActivities("u1", []domain.Activity{
		{ID: "a1", Date: day, Type: domain.ActivityTypeCustom, Status: domain.StatusPlanned},
	})
	p := newPlanner(t, mem, time.Hour)
	ctx := context.Background()

	pending, err := p.StageDeleteActivity(ctx, "a1")
	require.NoError(t, err)
	mem.FailWrites(errors.New("offline"))

	err = p.Commit(ctx, pending.ID)
	require.ErrorIs(t, err, domain.ErrNotPersisted)
	assert.Len(t, p.View(day), 1, "unpersisted delete is rolled back to the stored state")
	mem.FailWrites(nil)
}

func TestSubscribersSeeMergedChanges(t *testing.T) {
	p := newPlanner(t, memory.NewStore(), time.Hour)
	var calls atomic.Int32
	unsubscribe := p.Subscribe(func() { calls.Add(1) })
	defer unsubscribe()

	_, err := p.Schedule(context.Background(), domain.Activity{Date: day, Type: domain.ActivityTypeNote, Title: "n"})
	require.NoError(t, err)

	assert.Positive(t, calls.Load())
	assert.Empty(t, p.View(day), "notes are not part of the activity list")
}

func keys(items []domain.Activity) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Key())
	}
	return out
}
